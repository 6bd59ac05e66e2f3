package remote

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/dkeye/meshcast/internal/core"
	"github.com/pion/rtp"
	"github.com/rs/zerolog"
)

// trackRelay drains one remote track and fans packets out to its sinks.
type trackRelay struct {
	Src core.RemoteTrack

	mu    sync.RWMutex
	sinks map[string]*Sink

	packets atomic.Uint64
	cancel  context.CancelFunc
}

func newTrackRelay(src core.RemoteTrack, cancel context.CancelFunc) *trackRelay {
	return &trackRelay{
		Src:    src,
		sinks:  make(map[string]*Sink),
		cancel: cancel,
	}
}

func (r *trackRelay) loop(ctx context.Context, logger *zerolog.Logger) {
	defer r.closeAll(logger)
	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("relay ctx done")
			return
		default:
		}
		pkt, err := r.Src.ReadRTP()
		if err != nil {
			logger.Debug().Err(err).Msg("remote track ended")
			return
		}
		r.packets.Add(1)
		r.forward(pkt, logger)
	}
}

func (r *trackRelay) forward(pkt *rtp.Packet, logger *zerolog.Logger) {
	r.mu.RLock()
	snapshot := make(map[string]*Sink, len(r.sinks))
	maps.Copy(snapshot, r.sinks)
	r.mu.RUnlock()

	dirty := make([]string, 0, len(snapshot))
	for name, s := range snapshot {
		switch s.State() {
		case SinkStateDelete:
			dirty = append(dirty, name)
		case SinkStateOk:
			if err := s.W.WriteRTP(pkt); err != nil {
				logger.Error().Err(err).Str("sink", name).Msg("sink write error, detaching")
				s.MarkDelete()
				dirty = append(dirty, name)
			}
		}
	}

	// Cleanup is done outside the RLock.
	if len(dirty) > 0 {
		r.cleanupDeleted(dirty, logger)
	}
}

func (r *trackRelay) cleanupDeleted(dirty []string, logger *zerolog.Logger) {
	r.mu.Lock()
	removed := make([]*Sink, 0, len(dirty))
	for _, name := range dirty {
		if s, ok := r.sinks[name]; ok {
			removed = append(removed, s)
			delete(r.sinks, name)
		}
	}
	r.mu.Unlock()
	for _, s := range removed {
		if err := s.W.Close(); err != nil {
			logger.Warn().Err(err).Msg("sink close")
		}
	}
}

func (r *trackRelay) closeAll(logger *zerolog.Logger) {
	r.mu.Lock()
	names := make([]string, 0, len(r.sinks))
	for name, s := range r.sinks {
		s.MarkDelete()
		names = append(names, name)
	}
	r.mu.Unlock()
	r.cleanupDeleted(names, logger)
}

func (r *trackRelay) markAllDelete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sinks {
		s.MarkDelete()
	}
}

func (r *trackRelay) addSink(name string, s *Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[name] = s
}
