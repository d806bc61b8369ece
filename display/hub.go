package display

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	natspkg "github.com/nats-io/nats.go"

	"github.com/GetwithitMan/gwi-pos-sub005/component"
	"github.com/GetwithitMan/gwi-pos-sub005/errors"
	"github.com/GetwithitMan/gwi-pos-sub005/natsclient"
	"github.com/GetwithitMan/gwi-pos-sub005/pkg/buffer"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	clientBacklog  = 64
	maxMessageSize = 1 << 20
)

// HubConfig configures the websocket bridge.
type HubConfig struct {
	Port int
	Path string
}

// Hub bridges station broadcast subjects to websocket clients. A kitchen
// display connects to /ws?station=<id> and receives that station's Message
// stream. Slow clients drop their oldest backlog rather than stall the
// broadcast; the sequence gap tells them to refresh.
type Hub struct {
	cfg        HubConfig
	natsClient *natsclient.Client
	logger     *slog.Logger

	upgrader websocket.Upgrader
	server   *http.Server

	clientsMu sync.RWMutex
	clients   map[*hubClient]struct{}

	shutdown chan struct{}
	wg       sync.WaitGroup

	mu    sync.Mutex
	state component.State
}

type hubClient struct {
	conn      *websocket.Conn
	stationID string
	backlog   *buffer.Ring[[]byte]
	done      chan struct{}
	closeOnce sync.Once
}

func (c *hubClient) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.backlog.Close()
		_ = c.conn.Close()
	})
}

// NewHub creates a websocket hub for display stations.
func NewHub(cfg HubConfig, client *natsclient.Client, logger *slog.Logger) *Hub {
	if cfg.Path == "" {
		cfg.Path = "/ws"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		cfg:        cfg,
		natsClient: client,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*hubClient]struct{}),
		state:   component.StateCreated,
	}
}

// Initialize validates the hub configuration.
func (h *Hub) Initialize() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cfg.Port < 1024 || h.cfg.Port > 65535 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Hub", "Initialize",
			fmt.Sprintf("port %d out of range 1024-65535", h.cfg.Port))
	}
	if h.natsClient == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Hub", "Initialize",
			"NATS client is required")
	}
	h.state = component.StateInitialized
	return nil
}

// Start subscribes to the station subjects and serves websocket clients.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == component.StateStarted {
		return nil
	}
	if h.state != component.StateInitialized {
		return errors.WrapInvalid(errors.ErrNotStarted, "Hub", "Start",
			"hub must be initialized before starting")
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "Hub", "Start", "context already cancelled")
	}

	h.shutdown = make(chan struct{})

	if _, err := h.natsClient.Subscribe(SubjectPrefix+".>", h.handleBroadcast); err != nil {
		return errors.Wrap(err, "Hub", "Start", "subscribe to station subjects")
	}

	mux := http.NewServeMux()
	mux.HandleFunc(h.cfg.Path, h.handleWS)
	h.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", h.cfg.Port),
		Handler: mux,
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("websocket server failed", "error", err)
		}
	}()

	h.state = component.StateStarted
	h.logger.Info("display hub started", "port", h.cfg.Port, "path", h.cfg.Path)
	return nil
}

// handleBroadcast fans one NATS station message out to the connected
// clients subscribed to that station.
func (h *Hub) handleBroadcast(msg *natspkg.Msg) {
	stationID := strings.TrimPrefix(msg.Subject, SubjectPrefix+".")
	if stationID == "" || strings.Contains(stationID, ".") {
		return
	}

	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	for c := range h.clients {
		if c.stationID != stationID {
			continue
		}
		// DropOldest: a stalled display loses history, not the hub.
		_ = c.backlog.Write(msg.Data)
	}
}

// handleWS upgrades a client connection and streams its station's backlog.
func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	stationID := r.URL.Query().Get("station")
	if stationID == "" {
		http.Error(w, "station query parameter required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &hubClient{
		conn:      conn,
		stationID: stationID,
		backlog:   buffer.NewRing(clientBacklog, buffer.WithOverflowPolicy[[]byte](buffer.DropOldest)),
		done:      make(chan struct{}),
	}

	h.clientsMu.Lock()
	h.clients[client] = struct{}{}
	h.clientsMu.Unlock()
	h.logger.Info("display client connected", "station", stationID, "remote", conn.RemoteAddr())

	h.wg.Add(2)
	go h.writePump(client)
	go h.readPump(client)
}

// writePump drains the client's backlog onto the socket, pinging to keep
// the connection alive.
func (h *Hub) writePump(c *hubClient) {
	defer h.wg.Done()
	defer h.unregister(c)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	messages := make(chan []byte)
	go func() {
		defer close(messages)
		for {
			data, ok := c.backlog.ReadBlocking()
			if !ok {
				return
			}
			select {
			case messages <- data:
			case <-c.done:
				return
			}
		}
	}()

	for {
		select {
		case <-h.shutdown:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(writeWait))
			return
		case data, ok := <-messages:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes control frames and detects disconnects.
func (h *Hub) readPump(c *hubClient) {
	defer h.wg.Done()
	defer h.unregister(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// unregister removes a client. Safe to call from both pumps.
func (h *Hub) unregister(c *hubClient) {
	h.clientsMu.Lock()
	_, present := h.clients[c]
	delete(h.clients, c)
	h.clientsMu.Unlock()

	c.close()
	if present {
		h.logger.Info("display client disconnected", "station", c.stationID)
	}
}

// ClientCount returns the number of connected clients for a station.
func (h *Hub) ClientCount(stationID string) int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	n := 0
	for c := range h.clients {
		if c.stationID == stationID {
			n++
		}
	}
	return n
}

// Stop closes client connections and the HTTP server.
func (h *Hub) Stop(timeout time.Duration) error {
	h.mu.Lock()
	if h.state != component.StateStarted {
		h.mu.Unlock()
		return nil
	}
	h.state = component.StateStopped
	h.mu.Unlock()

	close(h.shutdown)

	h.clientsMu.Lock()
	for c := range h.clients {
		c.close()
	}
	h.clients = make(map[*hubClient]struct{})
	h.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if h.server != nil {
		_ = h.server.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.WrapTransient(ctx.Err(), "Hub", "Stop", "client goroutines did not drain")
	}
}

var _ component.Lifecycle = (*Hub)(nil)
