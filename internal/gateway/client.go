package gateway

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/credio/credio-alerts/internal/auth"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Client is one authenticated websocket connection.
type Client struct {
	id       string
	identity auth.Identity
	conn     *websocket.Conn

	send    chan Message // closed by the gateway under its write lock
	inbound chan Message // closed by readPump
}

func newClient(id string, identity auth.Identity, conn *websocket.Conn, sendBuffer int) *Client {
	return &Client{
		id:       id,
		identity: identity,
		conn:     conn,
		send:     make(chan Message, sendBuffer),
		inbound:  make(chan Message),
	}
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) Identity() auth.Identity {
	return c.identity
}

// readPump decodes frames into the inbound channel until the peer goes
// away or the connection is closed by the write side.
func (g *Gateway) readPump(c *Client) {
	// drop before closing inbound so every Send after OnDisconnect fails
	defer func() {
		g.drop(c)
		close(c.inbound)
		_ = c.conn.Close()
		g.wg.Done()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				g.logger.Debug("unexpected websocket close", "conn_id", c.id, "error", err)
			}
			return
		}

		select {
		case c.inbound <- decodeFrame(data):
		case <-g.ctx.Done():
			return
		}
	}
}

// writePump drains the send queue onto the socket and keeps the peer alive
// with pings. It owns all writes to the connection.
func (g *Gateway) writePump(c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		g.wg.Done()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			frame, err := encodeFrame(msg)
			if err != nil {
				g.logger.Error("failed to encode frame", "conn_id", c.id, "type", msg.Type, "error", err)
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				g.logger.Debug("websocket write failed", "conn_id", c.id, "error", err)
				g.drop(c)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				g.drop(c)
				return
			}
		}
	}
}

// serve runs the handler for one connection. Inbound messages are handled
// one at a time in arrival order.
func (g *Gateway) serve(c *Client, h Handler) {
	defer g.wg.Done()

	h.OnConnect(g.ctx, c)
	for msg := range c.inbound {
		h.OnMessage(g.ctx, c, msg)
	}
	h.OnDisconnect(g.ctx, c)
}

// NewDetachedClient returns a client with no socket behind it. Handlers can
// be driven with it directly, e.g. in tests or in-process tooling.
func NewDetachedClient(id string, identity auth.Identity) *Client {
	return &Client{id: id, identity: identity}
}
