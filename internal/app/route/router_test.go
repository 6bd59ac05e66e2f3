package route

import (
	"testing"

	"github.com/dkeye/meshcast/internal/app"
	"github.com/dkeye/meshcast/internal/app/apptest"
	"github.com/dkeye/meshcast/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConn(t *testing.T) (*app.Connection, *apptest.Transport) {
	t.Helper()
	f := &apptest.Factory{}
	reg := app.NewRegistry(f.New, nil)
	c, err := reg.GetOrCreateMesh("p1")
	require.NoError(t, err)
	return c, f.Last(c.Key)
}

func TestSync_FirstAdditionNeedsOffer(t *testing.T) {
	conn, tr := newConn(t)
	src := apptest.NewSource(nil,
		apptest.NewTrack("mic", domain.KindAudio),
		apptest.NewTrack("cam", domain.KindVideo),
	)

	needs, err := New().Sync(conn, src)
	require.NoError(t, err)
	assert.True(t, needs)
	assert.Len(t, tr.Senders(), 2)

	needs, err = New().Sync(conn, src)
	require.NoError(t, err)
	assert.False(t, needs, "same tracks again is a no-op")
}

func TestSync_SwapReplacesInPlace(t *testing.T) {
	conn, tr := newConn(t)
	mic := apptest.NewTrack("mic", domain.KindAudio)
	_, err := New().Sync(conn, apptest.NewSource(nil, mic, apptest.NewTrack("cam", domain.KindVideo)))
	require.NoError(t, err)

	needs, err := New().Sync(conn, apptest.NewSource(nil, mic, apptest.NewTrack("scr", domain.KindVideo)))
	require.NoError(t, err)

	assert.False(t, needs)
	senders := tr.Senders()
	require.Len(t, senders, 2)
	video, ok := conn.Sender(domain.KindVideo)
	require.True(t, ok)
	assert.Equal(t, "scr", video.Track().ID())
	assert.Equal(t, 1, video.(*apptest.Sender).Replaced())
}

func TestSync_NewKindLaterNeedsOffer(t *testing.T) {
	conn, _ := newConn(t)
	mic := apptest.NewTrack("mic", domain.KindAudio)
	_, err := New().Sync(conn, apptest.NewSource(nil, mic))
	require.NoError(t, err)

	needs, err := New().Sync(conn, apptest.NewSource(nil, mic, apptest.NewTrack("cam", domain.KindVideo)))
	require.NoError(t, err)
	assert.True(t, needs)
}

func TestSync_OnlyFirstTrackPerKind(t *testing.T) {
	conn, tr := newConn(t)
	_, err := New().Sync(conn, apptest.NewSource(nil,
		apptest.NewTrack("v1", domain.KindVideo),
		apptest.NewTrack("v2", domain.KindVideo),
	))
	require.NoError(t, err)
	require.Len(t, tr.Senders(), 1)
	assert.Equal(t, "v1", tr.Senders()[0].Track().ID())
}

func TestSync_ClosedTransportErrors(t *testing.T) {
	conn, tr := newConn(t)
	require.NoError(t, tr.Close())

	needs, err := New().Sync(conn, apptest.NewSource(nil, apptest.NewTrack("mic", domain.KindAudio)))
	assert.Error(t, err)
	assert.False(t, needs)
}
