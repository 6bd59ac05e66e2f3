package apptest

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/dkeye/meshcast/internal/core"
	"github.com/dkeye/meshcast/internal/domain"
)

type Track struct {
	id      string
	kind    domain.TrackKind
	stopped atomic.Bool
	journal *Journal
}

func NewTrack(id string, kind domain.TrackKind) *Track {
	return &Track{id: id, kind: kind}
}

func (t *Track) ID() string             { return t.id }
func (t *Track) Kind() domain.TrackKind { return t.kind }
func (t *Track) Stopped() bool          { return t.stopped.Load() }

func (t *Track) Stop() {
	if t.stopped.CompareAndSwap(false, true) {
		t.journal.Add("track.stop " + t.id)
	}
}

type Source struct {
	tracks  []core.MediaTrack
	stopped atomic.Bool
}

// NewSource groups tracks; the journal, if any, is attached to each track.
func NewSource(j *Journal, tracks ...*Track) *Source {
	s := &Source{}
	for _, t := range tracks {
		t.journal = j
		s.tracks = append(s.tracks, t)
	}
	return s
}

func (s *Source) Tracks() []core.MediaTrack { return s.tracks }
func (s *Source) Stopped() bool             { return s.stopped.Load() }

func (s *Source) Stop() {
	s.stopped.Store(true)
	for _, t := range s.tracks {
		t.Stop()
	}
}

// Provider hands out preset sources or errors.
type Provider struct {
	mu        sync.Mutex
	CameraSrc core.MediaSource
	ScreenSrc core.MediaSource
	CameraErr error
	ScreenErr error
}

func (p *Provider) Camera(context.Context) (core.MediaSource, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CameraErr != nil {
		return nil, p.CameraErr
	}
	return p.CameraSrc, nil
}

func (p *Provider) Screen(context.Context) (core.MediaSource, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ScreenErr != nil {
		return nil, p.ScreenErr
	}
	return p.ScreenSrc, nil
}
