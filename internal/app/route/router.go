// Package route decides, per connection, whether a local track can be
// swapped into an existing sender or needs a new one.
package route

import (
	"errors"
	"fmt"

	"github.com/dkeye/meshcast/internal/app"
	"github.com/dkeye/meshcast/internal/core"
	"github.com/dkeye/meshcast/internal/domain"
	"github.com/rs/zerolog/log"
)

// TrackSource is anything that can list the current outgoing tracks.
type TrackSource interface {
	Tracks() []core.MediaTrack
}

type Router struct{}

func New() *Router { return &Router{} }

// Sync points the senders of conn at src. A sender of the same kind is
// replaced in place; a missing kind gets a new sender, which needs an
// offer. Only the first track of each kind is routed.
func (r *Router) Sync(conn *app.Connection, src TrackSource) (needsOffer bool, err error) {
	logger := log.With().Str("module", "route").Str("key", conn.Key.String()).Logger()

	seen := make(map[domain.TrackKind]bool, 2)
	var errs []error
	for _, track := range src.Tracks() {
		kind := track.Kind()
		if seen[kind] {
			continue
		}
		seen[kind] = true

		if sender, ok := conn.Sender(kind); ok {
			if cur := sender.Track(); cur != nil && cur.ID() == track.ID() {
				continue
			}
			if err := sender.ReplaceTrack(track); err != nil {
				errs = append(errs, fmt.Errorf("replace %s: %w", kind, err))
				continue
			}
			logger.Debug().Str("kind", string(kind)).Str("track_id", track.ID()).Msg("replaced track")
			continue
		}

		sender, err := conn.Transport().AddTrack(track)
		if err != nil {
			errs = append(errs, fmt.Errorf("add %s: %w", kind, err))
			continue
		}
		conn.SetSender(kind, sender)
		needsOffer = true
		logger.Debug().Str("kind", string(kind)).Str("track_id", track.ID()).Msg("added track")
	}
	return needsOffer, errors.Join(errs...)
}
