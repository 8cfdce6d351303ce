package ws

import (
	"context"
	"errors"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/signalcraft/beacon/internal/domain"
)

var errSendClosed = errors.New("send queue closed")
var errSendFull = errors.New("send queue full")

const sendQueueSize = 64

// Client is one live signaling connection. Until registration succeeds it
// carries no identity; after that it is bound to exactly one (room, peer)
// pair for its remaining lifetime.
type Client struct {
	conn *connWrapper
	hub  *Hub

	sendMu sync.Mutex
	send   chan []byte
	closed bool

	disconnectOnce sync.Once

	// Set once by a successful register, read by the dispatch loop only.
	peerID string
	role   domain.Role
	room   *domain.Room
}

func NewClient(conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		conn: newConnWrapper(conn),
		hub:  hub,
		send: make(chan []byte, sendQueueSize), // buffered so routing never blocks on a slow client
	}
}

func (c *Client) Registered() bool {
	return c.room != nil
}

// Enqueue hands data to the write pump without blocking. A full queue
// means the client cannot keep up; the message is dropped and the caller
// reports delivery failure.
func (c *Client) Enqueue(data []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed {
		return errSendClosed
	}

	select {
	case c.send <- data:
		return nil
	default:
		return errSendFull
	}
}

func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// ReadPump drives the connection's inbound side. When the read loop ends,
// for any reason, the disconnect path runs exactly once.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		// Cleanup must run even when the request context died with the
		// connection.
		c.hub.Disconnect(context.WithoutCancel(ctx), c)
		_ = c.conn.Close()
	}()

	for {
		_, raw, err := c.conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.logReadError(c, err)
			}
			break
		}

		c.hub.Dispatch(ctx, c, raw)
	}
}

// WritePump drains the send queue onto the wire. Exits when closeSend runs
// or the connection dies.
func (c *Client) WritePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for data := range c.send {
		if err := c.conn.WriteMessage(data); err != nil {
			break
		}
	}
}

func (c *Client) reply(v any) {
	data, err := marshalReply(v)
	if err != nil {
		return
	}
	_ = c.Enqueue(data)
}
