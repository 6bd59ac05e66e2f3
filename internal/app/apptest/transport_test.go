package apptest

import (
	"testing"

	"github.com/dkeye/meshcast/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransport_LocalOfferCannotBeUndone(t *testing.T) {
	tr := NewTransport(domain.MeshKey("p"), nil)
	offer, err := tr.CreateOffer()
	require.NoError(t, err)
	require.NoError(t, tr.SetLocalDescription(offer))

	assert.ErrorIs(t, tr.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback, SDP: offer.SDP}), ErrWrongState)
	assert.ErrorIs(t, tr.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: SDP(domain.KindAudio)}), ErrWrongState)
	assert.Equal(t, domain.SignalingHaveLocalOffer, tr.SignalingState())
}

func TestTransport_DistinctUfrags(t *testing.T) {
	a := NewTransport(domain.MeshKey("p"), nil)
	b := NewTransport(domain.MeshKey("p"), nil)
	oa, err := a.CreateOffer()
	require.NoError(t, err)

	assert.NotEqual(t, a.Ufrag, b.Ufrag)
	assert.Contains(t, oa.SDP, "a=ice-ufrag:"+a.Ufrag)
}
