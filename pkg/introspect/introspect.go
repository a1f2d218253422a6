// Package introspect implements the daemon's optional, loopback-only
// status feed: a tiny websocket broadcast hub that pushes active-agent
// and session-count transitions for operational visibility. It is not
// part of either wire protocol — nothing here is read by the host or by
// session agents.
//
// Grounded on api/pkg/desktop/session_registry.go's broadcast-to-
// websocket-clients pattern: a registry of connections guarded by a
// mutex, each write serialized per-connection, broadcasts fanned out by
// iterating the registry.
package introspect

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Snapshot is one point-in-time view of the bridge core's externally
// observable state, pushed to every connected introspection client on
// each Publish (the bridge core publishes after every event it handles,
// whether or not anything changed).
type Snapshot struct {
	Time            time.Time `json:"time"`
	ActiveAgent     string    `json:"active_agent"`
	ConnectedAgents int       `json:"connected_agents"`
	ClientConnected bool      `json:"client_connected"`
	HostChannelOpen bool      `json:"host_channel_open"`
	TabletOpen      bool      `json:"tablet_open"`
}

var upgrader = websocket.Upgrader{
	// Loopback-only by construction (the HTTP server is bound to a
	// loopback address by the caller); no cross-origin concern here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// client is one connected introspection websocket, write-serialized.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// Hub accepts websocket upgrades on Handler and broadcasts every
// Publish call to all currently connected clients.
type Hub struct {
	log *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	last    *Snapshot
}

// NewHub returns an empty Hub ready to accept connections.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{log: log, clients: make(map[*client]struct{})}
}

// Handler upgrades the request to a websocket and registers the
// connection until it disconnects. The new client immediately receives
// the last published snapshot, if any.
func (h *Hub) Handler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("introspect: websocket upgrade failed", "err", err)
		return
	}

	c := &client{conn: conn}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	last := h.last
	h.mu.Unlock()

	if last != nil {
		if err := c.send(last); err != nil {
			h.log.Warn("introspect: initial snapshot send failed", "err", err)
		}
	}

	// Introspection clients never send anything meaningful; the only
	// reason to read is to notice the connection closing.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	conn.Close()
}

// Publish broadcasts snap to every connected client and remembers it as
// the snapshot new connections receive immediately on accept.
func (h *Hub) Publish(snap Snapshot) {
	if snap.Time.IsZero() {
		snap.Time = time.Now()
	}
	h.mu.Lock()
	h.last = &snap
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		if err := c.send(snap); err != nil {
			h.log.Warn("introspect: broadcast send failed", "err", err)
		}
	}
}

// Serve starts an HTTP server bound to addr (expected to be a loopback
// address) and blocks until the listener fails or is closed. The caller
// is responsible for running this in its own goroutine and for choosing
// a loopback bind address; Serve does not enforce one itself.
func Serve(addr string, h *Hub) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", h.Handler)
	srv := &http.Server{Addr: addr, Handler: mux}
	return srv.ListenAndServe()
}
