package apptest

import (
	"errors"
	"slices"
	"sync"

	"github.com/dkeye/meshcast/internal/domain"
)

var ErrChannelClosed = errors.New("channel closed")

// Channel is a SignalChannel that keeps every sent message.
type Channel struct {
	mu      sync.Mutex
	sent    []domain.Message
	closed  bool
	journal *Journal
}

func NewChannel(j *Journal) *Channel {
	return &Channel{journal: j}
}

func (c *Channel) Send(m domain.Message) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	c.sent = append(c.sent, m)
	c.mu.Unlock()
	return nil
}

func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.journal.Add("signal.close")
	}
	return nil
}

func (c *Channel) Sent() []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.sent)
}

// OfType filters sent messages by type.
func (c *Channel) OfType(t domain.MessageType) []domain.Message {
	var out []domain.Message
	for _, m := range c.Sent() {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
