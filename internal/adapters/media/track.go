// Package media provides file-backed local tracks and recorders for
// received tracks.
package media

import (
	"sync"

	"github.com/dkeye/meshcast/internal/core"
	"github.com/dkeye/meshcast/internal/domain"
	"github.com/pion/webrtc/v4"
)

// Track is a local sample track fed by a background reader until stopped.
type Track struct {
	local *webrtc.TrackLocalStaticSample
	kind  domain.TrackKind

	once sync.Once
	stop chan struct{}
}

func newTrack(local *webrtc.TrackLocalStaticSample, kind domain.TrackKind) *Track {
	return &Track{local: local, kind: kind, stop: make(chan struct{})}
}

func (t *Track) ID() string                    { return t.local.ID() }
func (t *Track) Kind() domain.TrackKind        { return t.kind }
func (t *Track) TrackLocal() webrtc.TrackLocal { return t.local }

func (t *Track) Stop() {
	t.once.Do(func() { close(t.stop) })
}

func (t *Track) stopped() <-chan struct{} { return t.stop }

// Source groups tracks acquired together.
type Source struct {
	tracks []core.MediaTrack
}

func (s *Source) Tracks() []core.MediaTrack { return s.tracks }

func (s *Source) Stop() {
	for _, t := range s.tracks {
		t.Stop()
	}
}
