// Package gateway accepts authenticated websocket connections and exposes
// non-blocking send primitives keyed by connection id.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/credio/credio-alerts/internal/auth"
	"github.com/credio/credio-alerts/internal/metrics"
)

var (
	ErrConnectionGone = errors.New("connection gone")
	ErrSlowConnection = errors.New("connection send queue full")
)

// Handler reacts to connection lifecycle events. All three methods for one
// connection are called from the same goroutine, and OnDisconnect is called
// exactly once.
type Handler interface {
	OnConnect(ctx context.Context, c *Client)
	OnMessage(ctx context.Context, c *Client, msg Message)
	OnDisconnect(ctx context.Context, c *Client)
}

type Config struct {
	SendBuffer     int
	AllowedOrigins []string // "*" allows any origin
}

type Gateway struct {
	authn    auth.Authenticator
	upgrader websocket.Upgrader
	cfg      Config
	logger   *slog.Logger
	metrics  *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	clients map[string]*Client
	closed  bool
}

func New(authn auth.Authenticator, cfg Config, logger *slog.Logger, m *metrics.Metrics) *Gateway {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	g := &Gateway{
		authn:   authn,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
		clients: make(map[string]*Client),
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     g.checkOrigin,
	}
	return g
}

// ServeWS returns the gin handler that authenticates, upgrades and serves
// connections with h.
func (g *Gateway) ServeWS(h Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := g.authn.Authenticate(c.Request.Context(), auth.TokenFromRequest(c.Request))
		if err != nil {
			g.logger.Debug("websocket auth rejected", "remote", c.ClientIP(), "error", err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// upgrader already replied with an HTTP error
			g.logger.Debug("websocket upgrade failed", "error", err)
			return
		}

		client := newClient(uuid.NewString(), identity, conn, g.cfg.SendBuffer)
		if !g.register(client) {
			_ = conn.Close()
			return
		}

		g.logger.Info("connection opened", "conn_id", client.id, "user_id", identity.UserID)

		g.wg.Add(3)
		go g.writePump(client)
		go g.readPump(client)
		go g.serve(client, h)
	}
}

// Send queues msg for connID without blocking. A connection whose queue is
// full is dropped.
func (g *Gateway) Send(connID string, msg Message) error {
	g.mu.RLock()
	c, ok := g.clients[connID]
	if !ok {
		g.mu.RUnlock()
		return ErrConnectionGone
	}

	select {
	case c.send <- msg:
		g.mu.RUnlock()
		return nil
	default:
		g.mu.RUnlock()
		g.logger.Warn("dropping slow connection", "conn_id", connID)
		g.drop(c)
		return ErrSlowConnection
	}
}

// Broadcast sends msg to every listed connection and returns how many
// accepted it.
func (g *Gateway) Broadcast(connIDs []string, msg Message) int {
	n := 0
	for _, id := range connIDs {
		if g.Send(id, msg) == nil {
			n++
		}
	}
	return n
}

func (g *Gateway) ConnectionCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients)
}

// Close disconnects every client and waits for their goroutines to finish.
func (g *Gateway) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	for id, c := range g.clients {
		delete(g.clients, id)
		close(c.send)
		g.metrics.Connections.Dec()
	}
	g.mu.Unlock()

	g.cancel()
	g.wg.Wait()
}

func (g *Gateway) register(c *Client) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return false
	}
	g.clients[c.id] = c
	g.metrics.Connections.Inc()
	return true
}

// drop unregisters c and closes its send queue, which makes the write pump
// close the socket. Safe to call more than once.
func (g *Gateway) drop(c *Client) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if cur, ok := g.clients[c.id]; !ok || cur != c {
		return
	}
	delete(g.clients, c.id)
	close(c.send)
	g.metrics.Connections.Dec()
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(g.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range g.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
