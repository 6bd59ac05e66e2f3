package media

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/meshcast/internal/core"
	"github.com/dkeye/meshcast/internal/domain"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var ErrNoFile = errors.New("no media file configured")

// FileProvider plays IVF video and Ogg/Opus audio files as local capture.
type FileProvider struct {
	VideoFile  string
	AudioFile  string
	ScreenFile string
}

// Camera returns microphone and camera tracks. Audio is optional.
func (p *FileProvider) Camera(ctx context.Context) (core.MediaSource, error) {
	if p.VideoFile == "" {
		return nil, fmt.Errorf("camera: %w", ErrNoFile)
	}
	stream := "camera-" + uuid.NewString()
	src := &Source{}
	if p.AudioFile != "" {
		a, err := openOgg(ctx, p.AudioFile, stream)
		if err != nil {
			return nil, fmt.Errorf("microphone: %w", err)
		}
		src.tracks = append(src.tracks, a)
	}
	v, err := openIVF(ctx, p.VideoFile, stream)
	if err != nil {
		src.Stop()
		return nil, fmt.Errorf("camera: %w", err)
	}
	src.tracks = append(src.tracks, v)
	return src, nil
}

// Screen returns a single video track.
func (p *FileProvider) Screen(ctx context.Context) (core.MediaSource, error) {
	if p.ScreenFile == "" {
		return nil, fmt.Errorf("screen: %w", ErrNoFile)
	}
	v, err := openIVF(ctx, p.ScreenFile, "screen-"+uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("screen: %w", err)
	}
	return &Source{tracks: []core.MediaTrack{v}}, nil
}

func openIVF(ctx context.Context, path, stream string) (*Track, error) {
	mime, err := ivfMimeType(path)
	if err != nil {
		return nil, err
	}
	local, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: mime}, "video-"+uuid.NewString(), stream)
	if err != nil {
		return nil, err
	}
	t := newTrack(local, domain.KindVideo)
	logger := log.With().Str("module", "media").Str("file", path).Str("track_id", t.ID()).Logger()
	go feedIVF(t, path, logger)
	stopWith(ctx, t)
	return t, nil
}

func openOgg(ctx context.Context, path, stream string) (*Track, error) {
	local, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio-"+uuid.NewString(), stream)
	if err != nil {
		return nil, err
	}
	t := newTrack(local, domain.KindAudio)
	logger := log.With().Str("module", "media").Str("file", path).Str("track_id", t.ID()).Logger()
	go feedOgg(t, path, logger)
	stopWith(ctx, t)
	return t, nil
}

// stopWith ties the track to ctx when ctx can be cancelled.
func stopWith(ctx context.Context, t *Track) {
	if ctx.Done() == nil {
		return
	}
	go func() {
		select {
		case <-ctx.Done():
			t.Stop()
		case <-t.stopped():
		}
	}()
}
