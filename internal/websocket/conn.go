package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/luciancaetano/vowsock"
	"github.com/luciancaetano/vowsock/internal/protocol"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// conn owns a socket and its write pump.
type conn struct {
	ws         *websocket.Conn
	remoteAddr string
	ctx        context.Context
	cancel     context.CancelFunc
	sendCh     chan protocol.Frame
	mu         sync.RWMutex
	closed     bool
}

func newConn(ws *websocket.Conn, remoteAddr string, queue int) *conn {
	ctx, cancel := context.WithCancel(context.Background())
	c := &conn{
		ws:         ws,
		remoteAddr: remoteAddr,
		ctx:        ctx,
		cancel:     cancel,
		sendCh:     make(chan protocol.Frame, queue),
	}

	go c.writePump()

	return c
}

// Send queues a frame. It never blocks: a full queue means the peer is not
// reading and is reported as an error.
func (c *conn) Send(frame protocol.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return vowsock.ErrConnectionClosed
	}
	select {
	case c.sendCh <- frame:
		return nil
	default:
		return vowsock.ErrSendQueueFull
	}
}

// Close closes the socket with a normal closure.
func (c *conn) Close() error {
	return c.CloseWithCode(websocket.CloseNormalClosure, "")
}

// CloseWithCode closes the socket with a close code and optional reason.
// Only the first call has an effect.
func (c *conn) CloseWithCode(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	c.cancel()

	message := websocket.FormatCloseMessage(code, reason)
	c.ws.WriteControl(websocket.CloseMessage, message, time.Now().Add(time.Second))

	close(c.sendCh)
	return c.ws.Close()
}

// IsAlive returns true while the socket is open.
func (c *conn) IsAlive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

func (c *conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case frame, ok := <-c.sendCh:
			if !ok {
				return
			}
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))

			messageType := websocket.TextMessage
			if frame.Binary {
				messageType = websocket.BinaryMessage
			}
			if err := c.ws.WriteMessage(messageType, frame.Data); err != nil {
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}
