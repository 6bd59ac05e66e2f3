package remote

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/meshcast/internal/app/apptest"
	"github.com/dkeye/meshcast/internal/core"
	"github.com/dkeye/meshcast/internal/domain"
	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordSink struct {
	mu      sync.Mutex
	packets []uint16
	closed  bool
	failAt  int
}

func (s *recordSink) WriteRTP(p *rtp.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAt > 0 && len(s.packets)+1 == s.failAt {
		return errors.New("disk full")
	}
	s.packets = append(s.packets, p.SequenceNumber)
	return nil
}

func (s *recordSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordSink) snapshot() ([]uint16, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint16(nil), s.packets...), s.closed
}

func factoryFor(sink *recordSink) SinkFactory {
	return func(domain.ParticipantID, core.RemoteTrack) (core.PacketSink, error) {
		return sink, nil
	}
}

func TestAppend_ForwardsToSink(t *testing.T) {
	sink := &recordSink{}
	set := NewBundleSet(factoryFor(sink))
	track := apptest.NewRemoteTrack("v1", domain.KindVideo)

	set.Append(context.Background(), "p1", track)
	track.Push(&rtp.Packet{Header: rtp.Header{SequenceNumber: 1}})
	track.Push(&rtp.Packet{Header: rtp.Header{SequenceNumber: 2}})

	require.Eventually(t, func() bool {
		got, _ := sink.snapshot()
		return len(got) == 2
	}, time.Second, 5*time.Millisecond)

	b, ok := set.Get("p1")
	require.True(t, ok)
	infos := b.Tracks()
	require.Len(t, infos, 1)
	assert.Equal(t, domain.KindVideo, infos[0].Kind)
	assert.Equal(t, uint64(2), infos[0].Packets)

	track.End()
	require.Eventually(t, func() bool {
		_, closed := sink.snapshot()
		return closed
	}, time.Second, 5*time.Millisecond)
}

func TestAppend_GroupsByPeer(t *testing.T) {
	set := NewBundleSet(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := apptest.NewRemoteTrack("a", domain.KindAudio)
	v := apptest.NewRemoteTrack("v", domain.KindVideo)
	other := apptest.NewRemoteTrack("o", domain.KindAudio)
	set.Append(ctx, "p1", a)
	set.Append(ctx, "p1", v)
	set.Append(ctx, "p2", other)

	b, ok := set.Get("p1")
	require.True(t, ok)
	assert.Equal(t, 2, b.Len())
	assert.Equal(t, 2, set.Count())

	for _, tr := range []*apptest.RemoteTrack{a, v, other} {
		tr.End()
	}
}

func TestAppend_SameTrackReplaces(t *testing.T) {
	set := NewBundleSet(nil)
	first := apptest.NewRemoteTrack("v", domain.KindVideo)
	second := apptest.NewRemoteTrack("v", domain.KindVideo)

	set.Append(context.Background(), "p1", first)
	set.Append(context.Background(), "p1", second)

	b, _ := set.Get("p1")
	assert.Equal(t, 1, b.Len())
	first.End()
	second.End()
}

func TestSinkWriteError_Detaches(t *testing.T) {
	sink := &recordSink{failAt: 2}
	set := NewBundleSet(factoryFor(sink))
	track := apptest.NewRemoteTrack("v", domain.KindVideo)
	set.Append(context.Background(), "p1", track)

	track.Push(&rtp.Packet{Header: rtp.Header{SequenceNumber: 1}})
	track.Push(&rtp.Packet{Header: rtp.Header{SequenceNumber: 2}})
	track.Push(&rtp.Packet{Header: rtp.Header{SequenceNumber: 3}})

	require.Eventually(t, func() bool {
		_, closed := sink.snapshot()
		return closed
	}, time.Second, 5*time.Millisecond)
	got, _ := sink.snapshot()
	assert.Equal(t, []uint16{1}, got)
	track.End()
}

func TestDrop(t *testing.T) {
	set := NewBundleSet(nil)
	track := apptest.NewRemoteTrack("v", domain.KindVideo)
	set.Append(context.Background(), "p1", track)

	assert.True(t, set.Drop("p1"))
	assert.False(t, set.Drop("p1"))
	_, ok := set.Get("p1")
	assert.False(t, ok)
	assert.Zero(t, set.Count())
	track.End()
}
