// Package netsync keeps a local puzzle board in step with a room: local
// mutations go out as protocol messages, and messages from peers are
// applied to the board.
package netsync

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Seednode/partypuzzle/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 1 << 20
	sendBuffer     = 256
	inboundBuffer  = 256
)

var ErrOffline = errors.New("connection closed")

// Transport carries protocol messages to and from a room.
type Transport interface {
	// Send queues msg without blocking and reports whether it was queued.
	Send(msg protocol.Message) bool
	Inbound() <-chan protocol.Message
	Done() <-chan struct{}
	Err() error
	Close() error
}

// Conn is a websocket Transport. A read pump decodes frames on its own
// goroutine and hands them over through Inbound; it never touches a board.
type Conn struct {
	ws     *websocket.Conn
	send   chan []byte
	in     chan protocol.Message
	done   chan struct{}
	once   sync.Once
	logger *log.Logger

	mu  sync.Mutex
	err error
}

// Dial connects to a room websocket URL.
func Dial(ctx context.Context, url string, logger *log.Logger) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}

	return NewConn(ws, logger), nil
}

// NewConn wraps an established websocket and starts its pumps.
func NewConn(ws *websocket.Conn, logger *log.Logger) *Conn {
	if logger == nil {
		logger = log.Default()
	}

	c := &Conn{
		ws:     ws,
		send:   make(chan []byte, sendBuffer),
		in:     make(chan protocol.Message, inboundBuffer),
		done:   make(chan struct{}),
		logger: logger,
	}

	go c.writePump()
	go c.readPump()

	return c
}

func (c *Conn) Inbound() <-chan protocol.Message {
	return c.in
}

func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err returns why the connection went down, or nil while it is up.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.err
}

// Send is fire-and-forget: messages are dropped when the connection is down
// or the send buffer is full.
func (c *Conn) Send(msg protocol.Message) bool {
	data, err := protocol.Encode(msg)
	if err != nil {
		c.logger.Printf("netsync: encode %T: %v", msg, err)
		return false
	}

	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- data:
		return true
	case <-c.done:
		return false
	default:
		c.logger.Printf("netsync: send buffer full, dropping %s", msg.MessageType())
		return false
	}
}

// Close shuts the connection down. It is safe to call more than once.
func (c *Conn) Close() error {
	c.fail(ErrOffline)
	return nil
}

func (c *Conn) fail(err error) {
	c.once.Do(func() {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()

		close(c.done)

		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = c.ws.Close()
	})
}

func (c *Conn) readPump() {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			c.fail(err)
			return
		}
		if kind != websocket.TextMessage {
			continue
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			c.logger.Printf("netsync: dropping frame: %v", err)
			continue
		}

		select {
		case c.in <- msg:
		case <-c.done:
			return
		}
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.fail(err)
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.fail(err)
				return
			}

		case <-c.done:
			return
		}
	}
}
