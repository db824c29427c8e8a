package websocket

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 512                 // Maximum message size allowed from peer.
	sendBuffer     = 256
)

// Client states.
const (
	StateConnecting int32 = iota
	StateOpen
	StateClosing
	StateClosed
)

var (
	ErrClientNotOpen  = errors.New("websocket client not open")
	ErrSendBufferFull = errors.New("websocket send buffer full")
)

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	mu      sync.Mutex // guards state, send and pending
	state   int32
	send    chan []byte
	pending [][]byte // live frames received while connecting
	once    sync.Once
}

func newClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:   hub,
		conn:  conn,
		state: StateConnecting,
		send:  make(chan []byte, sendBuffer),
	}
}

// State returns the current connection state.
func (c *Client) State() int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Ready reports whether the client accepts frames. A connecting client
// holds them until its replay frames are queued.
func (c *Client) Ready() bool {
	state := c.State()
	return state == StateConnecting || state == StateOpen
}

// Send queues frame for the write pump. A client whose buffer is full is
// considered stuck and gets disconnected.
func (c *Client) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateConnecting:
		if len(c.pending) == sendBuffer {
			c.closeLocked()
			return ErrSendBufferFull
		}
		c.pending = append(c.pending, frame)
		return nil
	case StateOpen:
	default:
		return ErrClientNotOpen
	}
	select {
	case c.send <- frame:
		return nil
	default:
		c.closeLocked()
		return ErrSendBufferFull
	}
}

// Close starts an orderly disconnect. Safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	c.once.Do(func() {
		c.state = StateClosing
		close(c.send)
		c.hub.Unregister(c)
	})
}

// run queues the replay frames ahead of any live frames that arrived since
// the client was registered, then blocks until the connection closes.
func (c *Client) run(replay [][]byte) {
	c.mu.Lock()
	if c.state != StateConnecting {
		c.mu.Unlock()
		_ = c.conn.Close()
		return
	}
	for _, frame := range append(replay, c.pending...) {
		if len(c.send) == cap(c.send) {
			break
		}
		c.send <- frame
	}
	c.pending = nil
	c.state = StateOpen
	c.mu.Unlock()

	go c.writePump()
	c.readPump()
}

// readPump discards inbound frames and detects disconnects.
func (c *Client) readPump() {
	defer func() {
		c.Close()
		log.Printf("WebSocket client disconnected: %s", c.conn.RemoteAddr())
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket read error: %v", err)
			}
			return
		}
	}
}

// writePump pumps frames from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub side closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Printf("WebSocket write error: %v", err)
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("WebSocket ping error: %v", err)
				c.Close()
				return
			}
		}
	}
}
