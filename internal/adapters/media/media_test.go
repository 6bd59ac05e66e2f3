package media

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dkeye/meshcast/internal/app/apptest"
	"github.com/dkeye/meshcast/internal/domain"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeIVF(t *testing.T, fourcc string, frames int) string {
	t.Helper()
	header := make([]byte, 32)
	copy(header[0:4], "DKIF")
	binary.LittleEndian.PutUint16(header[4:], 0)
	binary.LittleEndian.PutUint16(header[6:], 32)
	copy(header[8:12], fourcc)
	binary.LittleEndian.PutUint16(header[12:], 640)
	binary.LittleEndian.PutUint16(header[14:], 480)
	binary.LittleEndian.PutUint32(header[16:], 30)
	binary.LittleEndian.PutUint32(header[20:], 1)
	binary.LittleEndian.PutUint32(header[24:], uint32(frames))

	data := header
	for i := range frames {
		frame := []byte{0x10, 0x02, byte(i)}
		fh := make([]byte, 12)
		binary.LittleEndian.PutUint32(fh[0:], uint32(len(frame)))
		binary.LittleEndian.PutUint64(fh[4:], uint64(i))
		data = append(data, fh...)
		data = append(data, frame...)
	}
	path := filepath.Join(t.TempDir(), "video.ivf")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func writeOgg(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audio.ogg")
	w, err := oggwriter.New(path, 48000, 2)
	require.NoError(t, err)
	for i := range 3 {
		require.NoError(t, w.WriteRTP(&rtp.Packet{
			Header:  rtp.Header{SequenceNumber: uint16(i), Timestamp: uint32(i * 960)},
			Payload: []byte{0xfc, 0xff, 0xfe},
		}))
	}
	require.NoError(t, w.Close())
	return path
}

func TestFileProvider_Camera(t *testing.T) {
	p := &FileProvider{VideoFile: writeIVF(t, "VP80", 3), AudioFile: writeOgg(t)}

	src, err := p.Camera(context.Background())
	require.NoError(t, err)
	defer src.Stop()

	tracks := src.Tracks()
	require.Len(t, tracks, 2)
	assert.Equal(t, domain.KindAudio, tracks[0].Kind())
	assert.Equal(t, domain.KindVideo, tracks[1].Kind())

	video := tracks[1].(*Track)
	assert.Equal(t, video.ID(), video.TrackLocal().ID())
	assert.Equal(t, webrtc.MimeTypeVP8, video.local.Codec().MimeType)
	assert.Equal(t, tracks[0].(*Track).TrackLocal().StreamID(), video.TrackLocal().StreamID())
}

func TestFileProvider_VideoOnlyCamera(t *testing.T) {
	p := &FileProvider{VideoFile: writeIVF(t, "VP90", 1)}

	src, err := p.Camera(context.Background())
	require.NoError(t, err)
	defer src.Stop()

	require.Len(t, src.Tracks(), 1)
	assert.Equal(t, webrtc.MimeTypeVP9, src.Tracks()[0].(*Track).local.Codec().MimeType)
}

func TestFileProvider_Errors(t *testing.T) {
	p := &FileProvider{}

	_, err := p.Camera(context.Background())
	assert.ErrorIs(t, err, ErrNoFile)
	_, err = p.Screen(context.Background())
	assert.ErrorIs(t, err, ErrNoFile)

	p.VideoFile = writeIVF(t, "H264", 1)
	_, err = p.Camera(context.Background())
	assert.ErrorContains(t, err, "unsupported ivf codec")

	p.ScreenFile = filepath.Join(t.TempDir(), "missing.ivf")
	_, err = p.Screen(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFileProvider_ScreenStopsWithContext(t *testing.T) {
	p := &FileProvider{ScreenFile: writeIVF(t, "VP80", 2)}
	ctx, cancel := context.WithCancel(context.Background())

	src, err := p.Screen(ctx)
	require.NoError(t, err)
	require.Len(t, src.Tracks(), 1)
	track := src.Tracks()[0].(*Track)
	assert.Equal(t, domain.KindVideo, track.Kind())

	cancel()
	assert.Eventually(t, func() bool {
		select {
		case <-track.stopped():
			return true
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)

	// second stop is a no-op
	track.Stop()
}

type h264Track struct{ *apptest.RemoteTrack }

func (h264Track) MimeType() string { return webrtc.MimeTypeH264 }

func TestRecorder(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "rec")
	open := Recorder(dir)
	peer := domain.NewParticipantID()

	audio, err := open(peer, apptest.NewRemoteTrack("a", domain.KindAudio))
	require.NoError(t, err)
	require.NotNil(t, audio)
	require.NoError(t, audio.WriteRTP(&rtp.Packet{Header: rtp.Header{Timestamp: 960}, Payload: []byte{0xfc}}))
	require.NoError(t, audio.Close())

	video, err := open(peer, apptest.NewRemoteTrack("v", domain.KindVideo))
	require.NoError(t, err)
	require.NotNil(t, video)
	require.NoError(t, video.Close())

	oggs, _ := filepath.Glob(filepath.Join(dir, peer.Short()+"-audio-*.ogg"))
	ivfs, _ := filepath.Glob(filepath.Join(dir, peer.Short()+"-video-*.ivf"))
	assert.Len(t, oggs, 1)
	assert.Len(t, ivfs, 1)

	sink, err := open(peer, h264Track{apptest.NewRemoteTrack("h", domain.KindVideo)})
	assert.NoError(t, err)
	assert.Nil(t, sink)
}
