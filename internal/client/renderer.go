package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"example.com/cardtable/internal/display"
	"example.com/cardtable/internal/protocol"
)

// State is the connection lifecycle of a SyncRenderer.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

// Surface shows what the renderer decided. Implementations must not call
// back into the renderer.
type Surface interface {
	ShowDebug(raw string)
	Repaint(v display.View)
}

type Options struct {
	URL        string
	HandSlots  int
	TableSlots int
	Reconnect  bool
	BackoffMin time.Duration
	BackoffMax time.Duration
	SendBuffer int
	Clock      clockwork.Clock
}

func (o *Options) defaults() {
	if o.BackoffMin <= 0 {
		o.BackoffMin = 500 * time.Millisecond
	}
	if o.BackoffMax < o.BackoffMin {
		o.BackoffMax = 30 * time.Second
		if o.BackoffMax < o.BackoffMin {
			o.BackoffMax = o.BackoffMin
		}
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
}

// SyncRenderer keeps one connection to the host, turns hand-slot clicks
// into selection frames and projects inbound snapshots onto a Board.
type SyncRenderer struct {
	opts    Options
	dialer  Dialer
	surface Surface

	mu       sync.Mutex
	board    *display.Board
	state    State
	gen      uint64 // connection generation, bumped on every open
	boundGen uint64 // generation the hand listeners were bound for
	outbox   chan string
}

func New(dialer Dialer, surface Surface, opts Options) *SyncRenderer {
	opts.defaults()
	return &SyncRenderer{
		opts:    opts,
		dialer:  dialer,
		surface: surface,
		board:   display.NewBoard(opts.HandSlots, opts.TableSlots),
	}
}

func (r *SyncRenderer) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Generation is the number of connections opened so far.
func (r *SyncRenderer) Generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gen
}

// View copies the current display state.
func (r *SyncRenderer) View() display.View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.board.View()
}

// BoundListeners counts hand slots with a click listener attached.
func (r *SyncRenderer) BoundListeners() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.board.Hand.Bound()
}

// Run dials the host and processes frames until ctx ends. Without
// Options.Reconnect it returns after the first connection closes.
func (r *SyncRenderer) Run(ctx context.Context) error {
	backoff := r.opts.BackoffMin
	for {
		r.setState(StateConnecting)
		conn, err := r.dialer.Dial(ctx, r.opts.URL)
		if err != nil {
			if ctx.Err() != nil {
				r.setState(StateClosed)
				return ctx.Err()
			}
			log.Warn().Err(err).Str("url", r.opts.URL).Msg("dial failed")
			if !r.opts.Reconnect {
				r.setState(StateClosed)
				return err
			}
		} else {
			backoff = r.opts.BackoffMin
			err = r.serve(ctx, conn)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !r.opts.Reconnect {
				return err
			}
			log.Info().Err(err).Dur("backoff", backoff).Msg("connection lost, reconnecting")
		}

		select {
		case <-ctx.Done():
			r.setState(StateClosed)
			return ctx.Err()
		case <-r.opts.Clock.After(backoff):
		}
		backoff = nextBackoff(backoff, r.opts.BackoffMax)
	}
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max || next <= 0 {
		return max
	}
	return next
}

func (r *SyncRenderer) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

func (r *SyncRenderer) serve(ctx context.Context, conn Conn) error {
	gen, out := r.onConnectionEstablished()

	wctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for frame := range out {
			if err := conn.Write(wctx, frame); err != nil {
				log.Debug().Err(err).Uint64("conn_gen", gen).Str("frame", frame).Msg("selection not sent")
			}
		}
	}()

	var err error
	for {
		raw, rerr := conn.Read(ctx)
		if rerr != nil {
			err = rerr
			break
		}
		r.HandleMessage(raw)
	}

	r.onConnectionClosed(gen)
	cancel()
	<-done
	_ = conn.Close()
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("connection %d closed: %w", gen, err)
}

// onConnectionEstablished opens a new generation and binds one listener per
// hand slot. Binding happens at most once per generation.
func (r *SyncRenderer) onConnectionEstablished() (uint64, chan string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.gen++
	gen := r.gen
	r.state = StateOpen
	r.outbox = make(chan string, r.opts.SendBuffer)

	if r.boundGen != gen {
		for i := 0; i < r.board.Hand.Len(); i++ {
			idx := i
			r.board.Hand.Bind(i, func() { r.sendSelection(gen, idx) })
		}
		r.boundGen = gen
	}
	log.Info().Uint64("conn_gen", gen).Int("slots", r.board.Hand.Len()).Msg("connection open")
	return gen, r.outbox
}

func (r *SyncRenderer) onConnectionClosed(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.gen || r.outbox == nil {
		return
	}
	r.state = StateClosed
	close(r.outbox)
	r.outbox = nil
	r.board.Hand.Unbind()
	log.Info().Uint64("conn_gen", gen).Msg("connection closed")
}

// Click activates hand slot i as a user would. It reports whether a
// listener was attached.
func (r *SyncRenderer) Click(i int) bool {
	r.mu.Lock()
	fn := r.board.Hand.Listener(i)
	r.mu.Unlock()
	if fn == nil {
		log.Debug().Int("slot", i).Msg("click ignored, no listener")
		return false
	}
	fn()
	return true
}

// SendSelection queues the selection of hand slot i on the current
// connection. It never blocks; frames are dropped when the connection is
// not open or the send buffer is full.
func (r *SyncRenderer) SendSelection(i int) {
	r.mu.Lock()
	gen := r.gen
	r.mu.Unlock()
	r.sendSelection(gen, i)
}

func (r *SyncRenderer) sendSelection(gen uint64, i int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateOpen || gen != r.gen || r.outbox == nil {
		log.Debug().Int("slot", i).Uint64("conn_gen", gen).Str("state", r.state.String()).Msg("selection dropped, connection not open")
		return
	}
	select {
	case r.outbox <- protocol.EncodeSelection(i):
	default:
		log.Warn().Int("slot", i).Msg("send buffer full, selection dropped")
	}
}

// HandleMessage processes one inbound frame. The raw text always reaches
// the debug surface first.
func (r *SyncRenderer) HandleMessage(raw string) {
	r.surface.ShowDebug(raw)

	msg, err := protocol.Decode(raw)
	if err != nil {
		log.Warn().Err(err).Int("len", len(raw)).Msg("discarding malformed message")
		r.surface.ShowDebug("malformed message: " + err.Error())
		return
	}

	switch msg.Kind {
	case protocol.KindPrompt:
		log.Debug().Msg("select card prompt")
	case protocol.KindSnapshot:
		r.render(msg.Snapshot)
	default:
		log.Debug().Msg("ignoring non-object payload")
	}
}

func (r *SyncRenderer) render(s protocol.Snapshot) {
	r.mu.Lock()
	droppedHand := r.board.Hand.Render(s.Hand)
	droppedTable := r.board.Table.Render(s.Table)
	view := r.board.View()
	r.mu.Unlock()

	if droppedHand > 0 {
		log.Warn().Str("row", "hand").Int("dropped", droppedHand).Int("slots", len(view.Hand)).Msg("snapshot larger than row, truncated")
	}
	if droppedTable > 0 {
		log.Warn().Str("row", "table").Int("dropped", droppedTable).Int("slots", len(view.Table)).Msg("snapshot larger than row, truncated")
	}
	r.surface.Repaint(view)
}
