package signal

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/dkeye/meshcast/internal/domain"
	"github.com/gorilla/websocket"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrNotConnected = errors.New("signal connection closed")
)

// WsSignalConn is one live relay connection. It implements core.SignalChannel.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	mu     sync.RWMutex
	closed bool
}

func newWsSignalConn(conn *websocket.Conn, buffer int) *WsSignalConn {
	return &WsSignalConn{
		conn: conn,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

func (c *WsSignalConn) Send(m domain.Message) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return c.TrySend(b)
}

// TrySend queues a frame without blocking.
func (c *WsSignalConn) TrySend(f []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrNotConnected
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

// Done is closed when the connection is gone.
func (c *WsSignalConn) Done() <-chan struct{} { return c.done }

func (c *WsSignalConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.send)
	close(c.done)
	return c.conn.Close()
}
