package core

import "github.com/dkeye/meshcast/internal/domain"

// SignalChannel abstracts the relay transport.
// Owned by the adapter; the adapter must Close() it.
type SignalChannel interface {
	Send(domain.Message) error
	Close() error
}
