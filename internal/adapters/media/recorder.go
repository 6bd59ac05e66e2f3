package media

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dkeye/meshcast/internal/app/remote"
	"github.com/dkeye/meshcast/internal/core"
	"github.com/dkeye/meshcast/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"github.com/rs/zerolog/log"
)

// Recorder returns a sink factory that stores VP8 as IVF and Opus as Ogg
// under dir. Other codecs are only drained.
func Recorder(dir string) remote.SinkFactory {
	return func(peer domain.ParticipantID, track core.RemoteTrack) (core.PacketSink, error) {
		mime := strings.ToLower(track.MimeType())
		var ext string
		switch mime {
		case strings.ToLower(webrtc.MimeTypeVP8):
			ext = "ivf"
		case strings.ToLower(webrtc.MimeTypeOpus):
			ext = "ogg"
		default:
			log.Debug().Str("module", "media").Str("mime", track.MimeType()).Msg("no recorder for codec")
			return nil, nil
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		name := fmt.Sprintf("%s-%s-%s.%s", peer.Short(), track.Kind(), time.Now().Format("20060102-150405"), ext)
		path := filepath.Join(dir, name)
		log.Info().Str("module", "media").Str("peer", peer.Short()).Str("path", path).Msg("recording remote track")
		if ext == "ivf" {
			w, err := ivfwriter.New(path)
			if err != nil {
				return nil, err
			}
			return w, nil
		}
		w, err := oggwriter.New(path, 48000, 2)
		if err != nil {
			return nil, err
		}
		return w, nil
	}
}
