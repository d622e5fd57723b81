package client

import (
	"context"
	"errors"
	"io"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"

	"example.com/cardtable/internal/display"
)

// ---------- fakes ----------

type fakeConn struct {
	in     chan string
	sent   chan string
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan string, 16), sent: make(chan string, 16), closed: make(chan struct{})}
}

func (c *fakeConn) Read(ctx context.Context) (string, error) {
	select {
	case raw, ok := <-c.in:
		if !ok {
			return "", io.EOF
		}
		return raw, nil
	case <-c.closed:
		return "", io.EOF
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *fakeConn) Write(ctx context.Context, frame string) error {
	select {
	case <-c.closed:
		return errors.New("closed")
	default:
	}
	c.sent <- frame
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	dials int
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dials >= len(d.conns) {
		return nil, errors.New("no more connections")
	}
	c := d.conns[d.dials]
	d.dials++
	return c, nil
}

type recordingSurface struct {
	mu       sync.Mutex
	debug    []string
	repaints []display.View
}

func (s *recordingSurface) ShowDebug(raw string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.debug = append(s.debug, raw)
}

func (s *recordingSurface) Repaint(v display.View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.repaints = append(s.repaints, v)
}

func (s *recordingSurface) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.debug), len(s.repaints)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func recv(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return ""
	}
}

func expectNothing(t *testing.T, ch <-chan string) {
	t.Helper()
	select {
	case s := <-ch:
		t.Fatalf("unexpected frame %q", s)
	case <-time.After(30 * time.Millisecond):
	}
}

func slot(card string) display.Slot {
	return display.Slot{Card: card, Visible: true, Src: display.FrontAsset(card)}
}

var empty = display.Slot{Src: display.BackAsset}

// ---------- message handling ----------

func TestEndToEndSnapshot(t *testing.T) {
	surf := &recordingSurface{}
	r := New(&fakeDialer{}, surf, Options{HandSlots: 3, TableSlots: 4})

	r.HandleMessage(`{"hand":["AS","KH"],"table":["2C"]}`)

	want := display.View{
		Hand:  []display.Slot{slot("AS"), slot("KH"), empty},
		Table: []display.Slot{slot("2C"), empty, empty, empty},
	}
	if diff := cmp.Diff(want, r.View()); diff != "" {
		t.Fatalf("view mismatch (-want +got):\n%s", diff)
	}
	if len(surf.repaints) != 1 || len(surf.debug) != 1 || surf.debug[0] != `{"hand":["AS","KH"],"table":["2C"]}` {
		t.Fatalf("debug=%v repaints=%d", surf.debug, len(surf.repaints))
	}
}

func TestSentinelShortCircuit(t *testing.T) {
	surf := &recordingSurface{}
	r := New(&fakeDialer{}, surf, Options{HandSlots: 2, TableSlots: 2})
	r.HandleMessage(`{"hand":["AS"],"table":["2C","3C"]}`)
	before := r.View()

	r.HandleMessage("Select card")

	if diff := cmp.Diff(before, r.View()); diff != "" {
		t.Fatalf("prompt changed the board:\n%s", diff)
	}
	debug, repaints := surf.counts()
	if debug != 2 || repaints != 1 {
		t.Fatalf("debug=%d repaints=%d, want 2 and 1", debug, repaints)
	}
	if surf.debug[1] != "Select card" {
		t.Fatalf("debug surface got %q", surf.debug[1])
	}
}

func TestNonObjectPayloadIgnored(t *testing.T) {
	for _, raw := range []string{"42", `"hi"`, "true", "null", `["AS"]`} {
		surf := &recordingSurface{}
		r := New(&fakeDialer{}, surf, Options{HandSlots: 2, TableSlots: 1})
		r.HandleMessage(`{"hand":["AS","KH"],"table":["2C"]}`)
		before := r.View()

		r.HandleMessage(raw)

		if diff := cmp.Diff(before, r.View()); diff != "" {
			t.Fatalf("%s changed the board:\n%s", raw, diff)
		}
		if _, repaints := surf.counts(); repaints != 1 {
			t.Fatalf("%s repainted", raw)
		}
		if surf.debug[1] != raw {
			t.Fatalf("debug surface got %q want %q", surf.debug[1], raw)
		}
	}
}

func TestMalformedMessageDiscarded(t *testing.T) {
	surf := &recordingSurface{}
	r := New(&fakeDialer{}, surf, Options{HandSlots: 2, TableSlots: 2})
	r.HandleMessage("{not json")
	if _, repaints := surf.counts(); repaints != 0 {
		t.Fatal("malformed message repainted")
	}
	if len(surf.debug) != 2 || surf.debug[0] != "{not json" {
		t.Fatalf("debug = %v", surf.debug)
	}
}

func TestOversizedSnapshotTruncated(t *testing.T) {
	surf := &recordingSurface{}
	r := New(&fakeDialer{}, surf, Options{HandSlots: 1, TableSlots: 1})
	r.HandleMessage(`{"hand":["AS","KH"],"table":["2C","3C","4C"]}`)
	want := display.View{Hand: []display.Slot{slot("AS")}, Table: []display.Slot{slot("2C")}}
	if diff := cmp.Diff(want, r.View()); diff != "" {
		t.Fatalf("view mismatch (-want +got):\n%s", diff)
	}
}

// ---------- connection lifecycle ----------

func TestSelectionMapping(t *testing.T) {
	conn := newFakeConn()
	r := New(&fakeDialer{conns: []*fakeConn{conn}}, &recordingSurface{}, Options{HandSlots: 4, TableSlots: 1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	waitFor(t, "open", func() bool { return r.State() == StateOpen })
	if n := r.BoundListeners(); n != 4 {
		t.Fatalf("bound listeners = %d, want 4", n)
	}

	conn.in <- `{"hand":["AS"],"table":[]}`
	for i := 3; i >= 0; i-- {
		if !r.Click(i) {
			t.Fatalf("click %d had no listener", i)
		}
		if got := recv(t, conn.sent); got != strconv.Itoa(i) {
			t.Fatalf("click %d sent %q", i, got)
		}
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v", err)
	}
}

func TestClickAfterCloseDropped(t *testing.T) {
	conn := newFakeConn()
	r := New(&fakeDialer{conns: []*fakeConn{conn}}, &recordingSurface{}, Options{HandSlots: 2, TableSlots: 1})
	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()

	waitFor(t, "open", func() bool { return r.State() == StateOpen })
	close(conn.in)
	if err := <-done; err == nil {
		t.Fatal("Run returned nil after the connection closed")
	}
	if r.State() != StateClosed {
		t.Fatalf("state = %s", r.State())
	}
	if r.Click(0) {
		t.Fatal("listener still attached after close")
	}
	r.SendSelection(1)
	expectNothing(t, conn.sent)
}

func TestReconnectBindsOncePerGeneration(t *testing.T) {
	first, second := newFakeConn(), newFakeConn()
	clock := clockwork.NewFakeClock()
	r := New(&fakeDialer{conns: []*fakeConn{first, second}}, &recordingSurface{}, Options{
		HandSlots:  3,
		TableSlots: 1,
		Reconnect:  true,
		BackoffMin: time.Second,
		BackoffMax: 4 * time.Second,
		Clock:      clock,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = r.Run(ctx) }()

	waitFor(t, "first open", func() bool { return r.Generation() == 1 && r.State() == StateOpen })
	close(first.in)

	bctx, bcancel := context.WithTimeout(ctx, 2*time.Second)
	defer bcancel()
	if err := clock.BlockUntilContext(bctx, 1); err != nil {
		t.Fatalf("renderer never waited for backoff: %v", err)
	}
	if r.BoundListeners() != 0 {
		t.Fatal("listeners survived connection close")
	}
	clock.Advance(time.Second)

	waitFor(t, "second open", func() bool { return r.Generation() == 2 && r.State() == StateOpen })
	if n := r.BoundListeners(); n != 3 {
		t.Fatalf("bound listeners = %d, want 3", n)
	}

	r.Click(2)
	if got := recv(t, second.sent); got != "2" {
		t.Fatalf("sent %q", got)
	}
	expectNothing(t, second.sent)
	expectNothing(t, first.sent)
}

func TestNextBackoff(t *testing.T) {
	tests := []struct{ cur, max, want time.Duration }{
		{time.Second, 10 * time.Second, 2 * time.Second},
		{8 * time.Second, 10 * time.Second, 10 * time.Second},
		{10 * time.Second, 10 * time.Second, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := nextBackoff(tt.cur, tt.max); got != tt.want {
			t.Fatalf("nextBackoff(%s, %s) = %s, want %s", tt.cur, tt.max, got, tt.want)
		}
	}
}
