package realtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/pantrynav/pantrynav/internal/metrics"
	"github.com/pantrynav/pantrynav/internal/model"
)

const (
	// DefaultPushInterval is how often every watched location is re-sent.
	DefaultPushInterval = 30 * time.Second

	writeWait = 10 * time.Second
)

// SnapshotSource assembles the payload of a location. *cache.Cache satisfies it.
type SnapshotSource interface {
	Snapshot(ctx context.Context, locationID string, now time.Time) model.Snapshot
}

// HubOptions configures a Hub.
type HubOptions struct {
	PushInterval time.Duration
	// AllowedOrigins lists extra origins allowed to connect. Same-origin
	// requests and requests without an Origin header are always accepted.
	AllowedOrigins []string
}

type client struct {
	id       string
	location string
	conn     *websocket.Conn
	mu       sync.Mutex
}

func (c *client) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

func (c *client) closeGoingAway() {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

// Hub tracks websocket clients per location and pushes snapshots to them.
type Hub struct {
	source   SnapshotSource
	metrics  metrics.Recorder
	logger   *slog.Logger
	interval time.Duration
	upgrader websocket.Upgrader
	now      func() time.Time

	mu      sync.RWMutex
	clients map[string]map[string]*client

	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	runMu   sync.Mutex
}

// NewHub creates a hub over source.
func NewHub(source SnapshotSource, recorder metrics.Recorder, logger *slog.Logger, opts HubOptions) *Hub {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.PushInterval <= 0 {
		opts.PushInterval = DefaultPushInterval
	}

	h := &Hub{
		source:   source,
		metrics:  recorder,
		logger:   logger.With("component", "realtime.hub"),
		interval: opts.PushInterval,
		now:      func() time.Time { return time.Now().UTC() },
		clients:  make(map[string]map[string]*client),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(opts.AllowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(o, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := set["*"]; ok {
			return true
		}
		if _, ok := set[origin]; ok {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	}
}

// ServeWS upgrades the request, sends the current snapshot of locationID and
// keeps the client registered until the connection fails or closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, locationID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		h.logger.Warn("websocket upgrade failed", "location_id", locationID, "error", err)
		return
	}

	c := &client{
		id:       uuid.New().String(),
		location: locationID,
		conn:     conn,
	}
	h.register(c)
	defer h.unregister(c)

	if err := c.send(h.source.Snapshot(r.Context(), locationID, h.now())); err != nil {
		h.logger.Warn("failed to send initial snapshot", "client_id", c.id, "error", err)
		return
	}

	// Clients never send anything meaningful; reading detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("websocket read error", "client_id", c.id, "error", err)
			}
			return
		}
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	set, ok := h.clients[c.location]
	if !ok {
		set = make(map[string]*client)
		h.clients[c.location] = set
	}
	set[c.id] = c
	h.mu.Unlock()

	h.metrics.AddWebsocketConnections(1)
	h.logger.Info("websocket client connected", "client_id", c.id, "location_id", c.location)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	set, ok := h.clients[c.location]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, ok := set[c.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(set, c.id)
	if len(set) == 0 {
		delete(h.clients, c.location)
	}
	h.mu.Unlock()

	_ = c.conn.Close()
	h.metrics.AddWebsocketConnections(-1)
	h.logger.Info("websocket client disconnected", "client_id", c.id, "location_id", c.location)
}

// ClientCount returns the number of clients watching location.
func (h *Hub) ClientCount(location string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[location])
}

// Locations returns the locations that have at least one client.
func (h *Hub) Locations() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.clients))
	for loc := range h.clients {
		out = append(out, loc)
	}
	return out
}

func (h *Hub) clientsOf(location string) []*client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	set := h.clients[location]
	out := make([]*client, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

// Broadcast sends one snapshot to every client of every watched location.
// Clients that cannot be written to are dropped.
func (h *Hub) Broadcast(ctx context.Context) {
	now := h.now()
	for _, loc := range h.Locations() {
		snap := h.source.Snapshot(ctx, loc, now)
		for _, c := range h.clientsOf(loc) {
			if err := c.send(snap); err != nil {
				h.logger.Warn("failed to push snapshot", "client_id", c.id, "location_id", loc, "error", err)
				h.unregister(c)
			}
		}
	}
}

// Run broadcasts every push interval until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	h.runMu.Lock()
	if h.started {
		h.runMu.Unlock()
		return errors.New("hub already started")
	}
	h.started = true
	h.done = make(chan struct{})
	ctx, h.cancel = context.WithCancel(ctx)
	h.runMu.Unlock()

	defer close(h.done)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			h.Broadcast(ctx)
		}
	}
}

// Shutdown stops the broadcaster and closes every client connection.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.runMu.Lock()
	cancel, done := h.cancel, h.done
	h.runMu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for _, loc := range h.Locations() {
		for _, c := range h.clientsOf(loc) {
			c.closeGoingAway()
			h.unregister(c)
		}
	}
	return nil
}
