package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"nhooyr.io/websocket"

	"example.com/cardtable/internal/protocol"
)

var (
	ErrEmptyHand        = errors.New("ws: nothing to select from")
	ErrSelectionPending = errors.New("ws: selection already pending")
)

// Host serves viewers over websocket: it pushes snapshots and prompts and
// collects hand-slot selections. It knows nothing about game rules.
type Host struct {
	allowOrigins map[string]bool
	clients      map[*Client]struct{}
	mu           sync.RWMutex
	broadcast    chan []byte

	// last snapshot frame, replayed to viewers that join late
	lastMu sync.RWMutex
	last   []byte

	// pending selection
	selMu   sync.Mutex
	pending chan int
	handLen int
}

func NewHost(allow []string) *Host {
	m := map[string]bool{}
	for _, a := range allow {
		if a != "" {
			m[a] = true
		}
	}
	return &Host{
		allowOrigins: m,
		clients:      map[*Client]struct{}{},
		broadcast:    make(chan []byte, 256),
	}
}

// Run fans broadcast frames out to every viewer until ctx ends.
func (h *Host) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if !c.offer(msg) {
					log.Warn().Str("client_id", c.id).Msg("viewer send buffer full, frame dropped")
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Viewers is the number of connected viewers.
func (h *Host) Viewers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Host) enqueue(b []byte) {
	select {
	case h.broadcast <- b:
	default:
		log.Warn().Msg("broadcast queue full, frame dropped")
	}
}

// ---------- game-loop side ----------

// ShowState pushes s to every viewer.
func (h *Host) ShowState(s protocol.Snapshot) error {
	frame, err := protocol.EncodeSnapshot(s)
	if err != nil {
		return err
	}
	b := []byte(frame)
	h.lastMu.Lock()
	h.last = b
	h.lastMu.Unlock()
	h.enqueue(b)
	log.Debug().Int("hand", len(s.Hand)).Int("table", len(s.Table)).Msg("state pushed")
	return nil
}

// SelectCard prompts the viewers and blocks until one of them picks a hand
// slot below handLen, or ctx ends.
func (h *Host) SelectCard(ctx context.Context, handLen int) (int, error) {
	if handLen <= 0 {
		return 0, ErrEmptyHand
	}
	h.selMu.Lock()
	if h.pending != nil {
		h.selMu.Unlock()
		return 0, ErrSelectionPending
	}
	ch := make(chan int, 1)
	h.pending = ch
	h.handLen = handLen
	h.selMu.Unlock()

	defer func() {
		h.selMu.Lock()
		if h.pending == ch {
			h.pending = nil
		}
		h.selMu.Unlock()
	}()

	h.enqueue([]byte(protocol.PromptSentinel))
	return awaitSelection(ctx, ch)
}

// awaitSelection prefers a selection that is already in ch over ctx ending.
func awaitSelection(ctx context.Context, ch <-chan int) (int, error) {
	select {
	case idx := <-ch:
		log.Info().Int("slot", idx).Msg("card selected")
		return idx, nil
	case <-ctx.Done():
		select {
		case idx := <-ch:
			log.Info().Int("slot", idx).Msg("card selected")
			return idx, nil
		default:
		}
		return 0, fmt.Errorf("select card: %w", ctx.Err())
	}
}

// offerSelection hands idx to a pending SelectCard. Frames that arrive while
// nothing is pending, or that are out of range, are ignored.
func (h *Host) offerSelection(c *Client, idx int) bool {
	h.selMu.Lock()
	defer h.selMu.Unlock()
	if h.pending == nil {
		log.Debug().Str("client_id", c.id).Int("slot", idx).Msg("selection ignored, none pending")
		return false
	}
	if idx >= h.handLen {
		log.Debug().Str("client_id", c.id).Int("slot", idx).Int("hand", h.handLen).Msg("selection out of range")
		return false
	}
	h.pending <- idx
	h.pending = nil
	return true
}

func (h *Host) selectionPending() bool {
	h.selMu.Lock()
	defer h.selMu.Unlock()
	return h.pending != nil
}

// ---------- websockets ----------

// register adds c and queues the catch-up frames (latest state, then the open
// prompt if any) under h.mu, so no broadcast reaches c ahead of the replay.
func (h *Host) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}

	h.lastMu.RLock()
	last := h.last
	h.lastMu.RUnlock()
	if last != nil {
		c.offer(last)
	}
	if h.selectionPending() {
		c.offer([]byte(protocol.PromptSentinel))
	}
}

func (h *Host) ServeWS(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin != "" && !h.allowOrigins[origin] {
		http.Error(w, "forbidden origin", http.StatusForbidden)
		return
	}

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		log.Debug().Err(err).Msg("websocket accept failed")
		return
	}

	client := newClient(c)
	h.register(client)
	log.Info().Str("client_id", client.id).Msg("viewer connected")

	ctx := r.Context()

	// writer
	go func() {
		ping := time.NewTicker(15 * time.Second)
		defer func() { ping.Stop(); _ = c.Close(websocket.StatusNormalClosure, "bye") }()
		for {
			select {
			case msg, ok := <-client.send:
				if !ok {
					return
				}
				_ = c.Write(ctx, websocket.MessageText, msg)
			case <-ping.C:
				_ = c.Ping(ctx)
			}
		}
	}()

	// reader
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			break
		}
		if typ != websocket.MessageText {
			continue
		}
		idx, err := protocol.ParseSelection(string(data))
		if err != nil {
			log.Debug().Err(err).Str("client_id", client.id).Msg("ignoring frame")
			continue
		}
		h.offerSelection(client, idx)
	}

	// disconnect
	h.mu.Lock()
	delete(h.clients, client)
	close(client.send)
	h.mu.Unlock()

	log.Info().Str("client_id", client.id).Msg("viewer disconnected")
}

// ---------- http ----------

// Routes wires the index page, card assets, the websocket endpoint and a
// health check. staticDir holds index.html; assetsDir holds fronts/ and backs/.
func (h *Host) Routes(staticDir, assetsDir string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/ws", h.ServeWS)
	r.Handle("/assets/*", http.StripPrefix("/assets/", http.FileServer(http.Dir(assetsDir))))
	r.Handle("/*", http.FileServer(http.Dir(staticDir)))

	// an empty allowlist admits no origin
	return cors.New(cors.Options{
		AllowOriginFunc: func(origin string) bool { return h.allowOrigins[origin] },
		AllowedMethods:  []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:  []string{"Content-Type", "Authorization"},
	}).Handler(r)
}
