package app

import (
	"maps"
	"sync"
	"sync/atomic"

	"github.com/dkeye/meshcast/internal/core"
	"github.com/dkeye/meshcast/internal/domain"
)

// Connection is one registry record: a transport plus the outgoing senders
// the router has attached to it.
type Connection struct {
	Key       domain.ConnKey
	transport core.Transport

	mu          sync.Mutex
	senders     map[domain.TrackKind]core.Sender
	iceState    domain.ICEState
	renegotiate bool

	closed atomic.Bool
}

func newConnection(key domain.ConnKey, t core.Transport) *Connection {
	return &Connection{
		Key:       key,
		transport: t,
		senders:   make(map[domain.TrackKind]core.Sender),
		iceState:  domain.ICENew,
	}
}

func (c *Connection) Transport() core.Transport { return c.transport }

func (c *Connection) Sender(kind domain.TrackKind) (core.Sender, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.senders[kind]
	return s, ok
}

func (c *Connection) SetSender(kind domain.TrackKind, s core.Sender) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.senders[kind] = s
}

// Senders returns a snapshot of the outgoing senders by kind.
func (c *Connection) Senders() map[domain.TrackKind]core.Sender {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[domain.TrackKind]core.Sender, len(c.senders))
	maps.Copy(out, c.senders)
	return out
}

func (c *Connection) HasSenders() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.senders) > 0
}

func (c *Connection) ICEState() domain.ICEState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.iceState
}

func (c *Connection) SetICEState(s domain.ICEState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.iceState = s
}

// MarkRenegotiate records an offer trigger that arrived outside stable.
func (c *Connection) MarkRenegotiate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.renegotiate = true
}

// TakeRenegotiate reports and clears a pending offer trigger.
func (c *Connection) TakeRenegotiate() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	pending := c.renegotiate
	c.renegotiate = false
	return pending
}

func (c *Connection) SignalingState() domain.SignalingState {
	if c.Closed() {
		return domain.SignalingClosed
	}
	return c.transport.SignalingState()
}

// HasRemoteDescription reports whether remote candidates can be applied.
func (c *Connection) HasRemoteDescription() bool {
	return c.transport.RemoteDescription() != nil
}

func (c *Connection) Closed() bool { return c.closed.Load() }

// close shuts the transport down once. Later calls return nil.
func (c *Connection) close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.transport.Close()
}
