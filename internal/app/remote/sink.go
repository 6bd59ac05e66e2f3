package remote

import (
	"sync/atomic"

	"github.com/dkeye/meshcast/internal/core"
)

type SinkState int32

const (
	SinkStateOk SinkState = iota
	SinkStateDelete
)

// Sink is one consumer attached to a remote track.
type Sink struct {
	W     core.PacketSink
	state atomic.Int32 // zero by default (SinkStateOk)
}

func NewSink(w core.PacketSink) *Sink {
	return &Sink{W: w}
}

func (s *Sink) State() SinkState {
	return SinkState(s.state.Load())
}

func (s *Sink) MarkDelete() {
	s.state.Store(int32(SinkStateDelete))
}
