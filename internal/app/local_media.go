package app

import (
	"errors"
	"sync"

	"github.com/dkeye/meshcast/internal/core"
	"github.com/dkeye/meshcast/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoCamera   = errors.New("camera is not active")
	ErrNotSharing = errors.New("screen share is not active")
)

// LocalMedia holds the active local source. While a screen is shared its
// video shadows the camera video; audio always comes from the camera. The
// camera source is kept so it can be restored.
type LocalMedia struct {
	mu     sync.Mutex
	camera core.MediaSource
	screen core.MediaSource
}

func NewLocalMedia() *LocalMedia { return &LocalMedia{} }

func (l *LocalMedia) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.camera != nil
}

func (l *LocalMedia) Sharing() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.screen != nil
}

// Tracks returns the effective outgoing set, at most one track per kind.
func (l *LocalMedia) Tracks() []core.MediaTrack {
	l.mu.Lock()
	defer l.mu.Unlock()

	byKind := firstPerKind(l.camera)
	if v, ok := firstPerKind(l.screen)[domain.KindVideo]; ok {
		byKind[domain.KindVideo] = v
	}
	out := make([]core.MediaTrack, 0, len(byKind))
	for _, k := range domain.Kinds {
		if t, ok := byKind[k]; ok {
			out = append(out, t)
		}
	}
	return out
}

// firstPerKind keeps the first track of each kind in src.
func firstPerKind(src core.MediaSource) map[domain.TrackKind]core.MediaTrack {
	byKind := make(map[domain.TrackKind]core.MediaTrack, 2)
	if src == nil {
		return byKind
	}
	for _, t := range src.Tracks() {
		if _, seen := byKind[t.Kind()]; !seen {
			byKind[t.Kind()] = t
		}
	}
	return byKind
}

// SetCamera installs src as the base source. A previous camera is stopped.
func (l *LocalMedia) SetCamera(src core.MediaSource) {
	l.mu.Lock()
	prev := l.camera
	l.camera = src
	l.mu.Unlock()
	if prev != nil && prev != src {
		prev.Stop()
	}
	log.Info().Str("module", "app.media").Int("tracks", len(src.Tracks())).Msg("camera active")
}

func (l *LocalMedia) StartShare(src core.MediaSource) error {
	l.mu.Lock()
	if l.camera == nil {
		l.mu.Unlock()
		src.Stop()
		return ErrNoCamera
	}
	prev := l.screen
	l.screen = src
	l.mu.Unlock()
	if prev != nil && prev != src {
		prev.Stop()
	}
	log.Info().Str("module", "app.media").Msg("screen share started")
	return nil
}

// StopShare stops the screen tracks and falls back to the camera.
func (l *LocalMedia) StopShare() error {
	l.mu.Lock()
	screen := l.screen
	l.screen = nil
	l.mu.Unlock()
	if screen == nil {
		return ErrNotSharing
	}
	screen.Stop()
	log.Info().Str("module", "app.media").Msg("screen share stopped")
	return nil
}

// Release stops every local track.
func (l *LocalMedia) Release() {
	l.mu.Lock()
	camera, screen := l.camera, l.screen
	l.camera, l.screen = nil, nil
	l.mu.Unlock()
	if screen != nil {
		screen.Stop()
	}
	if camera != nil {
		camera.Stop()
	}
}
