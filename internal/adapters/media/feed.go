package media

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"github.com/rs/zerolog"
)

const oggPageDuration = 20 * time.Millisecond

// ivfMimeType maps the IVF FourCC to a codec mime type.
func ivfMimeType(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	_, header, err := ivfreader.NewWith(f)
	if err != nil {
		return "", fmt.Errorf("read ivf header: %w", err)
	}
	switch header.FourCC {
	case "VP80":
		return webrtc.MimeTypeVP8, nil
	case "VP90":
		return webrtc.MimeTypeVP9, nil
	case "AV01":
		return webrtc.MimeTypeAV1, nil
	default:
		return "", fmt.Errorf("unsupported ivf codec %q", header.FourCC)
	}
}

// feedIVF writes the frames of path into t, looping at EOF.
func feedIVF(t *Track, path string, logger zerolog.Logger) {
	for {
		rewind, err := playIVF(t, path)
		if err != nil {
			logger.Error().Err(err).Msg("ivf feed stopped")
			return
		}
		if !rewind {
			return
		}
	}
}

func playIVF(t *Track, path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	ivf, header, err := ivfreader.NewWith(f)
	if err != nil {
		return false, err
	}
	frameDuration := time.Millisecond * time.Duration(float64(header.TimebaseNumerator)/float64(header.TimebaseDenominator)*1000)
	if frameDuration <= 0 {
		frameDuration = 33 * time.Millisecond
	}
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopped():
			return false, nil
		case <-ticker.C:
		}
		frame, _, err := ivf.ParseNextFrame()
		if errors.Is(err, io.EOF) {
			return true, nil
		}
		if err != nil {
			return false, err
		}
		if err := t.local.WriteSample(media.Sample{Data: frame, Duration: frameDuration}); err != nil {
			return false, err
		}
	}
}

// feedOgg writes the Opus pages of path into t, looping at EOF.
func feedOgg(t *Track, path string, logger zerolog.Logger) {
	for {
		rewind, err := playOgg(t, path)
		if err != nil {
			logger.Error().Err(err).Msg("ogg feed stopped")
			return
		}
		if !rewind {
			return
		}
	}
}

func playOgg(t *Track, path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	ogg, _, err := oggreader.NewWith(f)
	if err != nil {
		return false, err
	}
	ticker := time.NewTicker(oggPageDuration)
	defer ticker.Stop()

	var lastGranule uint64
	for {
		select {
		case <-t.stopped():
			return false, nil
		case <-ticker.C:
		}
		page, header, err := ogg.ParseNextPage()
		if errors.Is(err, io.EOF) {
			return true, nil
		}
		if err != nil {
			return false, err
		}
		samples := float64(header.GranulePosition - lastGranule)
		lastGranule = header.GranulePosition
		duration := time.Duration(samples/48000*1000) * time.Millisecond
		if err := t.local.WriteSample(media.Sample{Data: page, Duration: duration}); err != nil {
			return false, err
		}
	}
}
