// Package remote keeps the media received from each mesh peer.
package remote

import (
	"context"
	"slices"
	"sync"

	"github.com/dkeye/meshcast/internal/core"
	"github.com/dkeye/meshcast/internal/domain"
	"github.com/rs/zerolog/log"
)

// SinkFactory opens a consumer for a newly received track. Returning a nil
// sink and nil error means the track is only drained.
type SinkFactory func(peer domain.ParticipantID, track core.RemoteTrack) (core.PacketSink, error)

// Bundle is the set of tracks received from one peer.
type Bundle struct {
	Peer domain.ParticipantID

	mu     sync.RWMutex
	relays []*trackRelay
}

// Tracks describes every received track in arrival order.
func (b *Bundle) Tracks() []domain.TrackInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]domain.TrackInfo, 0, len(b.relays))
	for _, r := range b.relays {
		out = append(out, domain.TrackInfo{
			ID:       r.Src.ID(),
			Kind:     r.Src.Kind(),
			MimeType: r.Src.MimeType(),
			Packets:  r.packets.Load(),
		})
	}
	return out
}

func (b *Bundle) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.relays)
}

func (b *Bundle) stop() {
	b.mu.Lock()
	relays := b.relays
	b.relays = nil
	b.mu.Unlock()
	for _, r := range relays {
		r.markAllDelete()
		r.cancel()
	}
}

// BundleSet maps mesh peers to their received media.
type BundleSet struct {
	sinks SinkFactory

	mu      sync.RWMutex
	bundles map[domain.ParticipantID]*Bundle
}

func NewBundleSet(sinks SinkFactory) *BundleSet {
	return &BundleSet{
		sinks:   sinks,
		bundles: make(map[domain.ParticipantID]*Bundle),
	}
}

// Append adds track to the peer's bundle and starts draining it.
func (s *BundleSet) Append(ctx context.Context, peer domain.ParticipantID, track core.RemoteTrack) {
	logger := log.With().
		Str("module", "remote").
		Str("peer", peer.Short()).
		Str("kind", string(track.Kind())).
		Str("track_id", track.ID()).
		Logger()

	relayCtx, cancel := context.WithCancel(ctx)
	relay := newTrackRelay(track, cancel)
	if s.sinks != nil {
		w, err := s.sinks(peer, track)
		switch {
		case err != nil:
			logger.Error().Err(err).Msg("open sink")
		case w != nil:
			relay.addSink("record", NewSink(w))
		}
	}

	s.mu.Lock()
	b, ok := s.bundles[peer]
	if !ok {
		b = &Bundle{Peer: peer}
		s.bundles[peer] = b
	}
	s.mu.Unlock()

	b.mu.Lock()
	if i := slices.IndexFunc(b.relays, func(r *trackRelay) bool { return r.Src.ID() == track.ID() }); i >= 0 {
		logger.Info().Msg("replacing existing relay for track")
		old := b.relays[i]
		old.markAllDelete()
		old.cancel()
		b.relays[i] = relay
	} else {
		b.relays = append(b.relays, relay)
	}
	b.mu.Unlock()

	logger.Info().Msg("remote track added")
	go relay.loop(relayCtx, &logger)
}

// Drop forgets the peer's bundle and stops its relays.
func (s *BundleSet) Drop(peer domain.ParticipantID) bool {
	s.mu.Lock()
	b, ok := s.bundles[peer]
	if ok {
		delete(s.bundles, peer)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	b.stop()
	log.Info().Str("module", "remote").Str("peer", peer.Short()).Msg("bundle dropped")
	return true
}

func (s *BundleSet) DropAll() {
	s.mu.RLock()
	peers := make([]domain.ParticipantID, 0, len(s.bundles))
	for p := range s.bundles {
		peers = append(peers, p)
	}
	s.mu.RUnlock()
	for _, p := range peers {
		s.Drop(p)
	}
}

func (s *BundleSet) Get(peer domain.ParticipantID) (*Bundle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bundles[peer]
	return b, ok
}

func (s *BundleSet) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bundles)
}

// Discard drains a track nobody consumes so the transport's buffers do not fill.
func Discard(ctx context.Context, track core.RemoteTrack) {
	logger := log.With().Str("module", "remote").Str("track_id", track.ID()).Logger()
	relayCtx, cancel := context.WithCancel(ctx)
	go newTrackRelay(track, cancel).loop(relayCtx, &logger)
}
