package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMessage_MeshOffer(t *testing.T) {
	raw := `{"type":"mesh-offer","sdp":{"type":"offer","sdp":"v=0\r\n"},"toPeerId":"b","fromPeerId":"a"}`

	m, err := DecodeMessage([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, TypeMeshOffer, m.Type)
	assert.Equal(t, ParticipantID("a"), m.Sender())
	assert.Equal(t, ParticipantID("b"), m.ToPeerID)
	require.NotNil(t, m.SDP)
	assert.Equal(t, webrtc.SDPTypeOffer, m.SDP.Type)
}

func TestDecodeMessage_Candidate(t *testing.T) {
	raw := `{"type":"uplink-candidate","candidate":{"candidate":"candidate:1 1 udp 1 10.0.0.1 5000 typ host","sdpMid":"0","sdpMLineIndex":0}}`

	m, err := DecodeMessage([]byte(raw))
	require.NoError(t, err)
	require.NotNil(t, m.Candidate)
	require.NotNil(t, m.Candidate.SDPMid)
	assert.Equal(t, "0", *m.Candidate.SDPMid)
}

func TestDecodeMessage_Rejects(t *testing.T) {
	cases := map[string]struct {
		raw  string
		want error
	}{
		"bad json":          {`{"type":`, ErrMalformed},
		"unknown type":      {`{"type":"hello"}`, ErrUnknownType},
		"announce no id":    {`{"type":"peer-announce"}`, ErrMalformed},
		"offer no sdp":      {`{"type":"uplink-answer"}`, ErrMalformed},
		"mesh no sender":    {`{"type":"mesh-candidate","candidate":{"candidate":"x"}}`, ErrMalformed},
		"sdp and candidate": {`{"type":"mesh-answer","fromPeerId":"a","sdp":{"type":"answer","sdp":"v=0"},"candidate":{"candidate":"x"}}`, ErrMalformed},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeMessage([]byte(tc.raw))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestAnnounce_AcceptsRelayedSender(t *testing.T) {
	m, err := DecodeMessage([]byte(`{"type":"peer-announce","fromPeerId":"p1"}`))
	require.NoError(t, err)
	assert.Equal(t, ParticipantID("p1"), m.Sender())
}

func TestNewDescription_Addressing(t *testing.T) {
	self := ParticipantID("self")
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"}
	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"}

	up := NewDescription(UplinkKey(), self, offer)
	assert.Equal(t, TypeUplinkOffer, up.Type)
	assert.Empty(t, up.ToPeerID)
	assert.Empty(t, up.FromPeerID)

	mesh := NewDescription(MeshKey("peer"), self, answer)
	assert.Equal(t, TypeMeshAnswer, mesh.Type)
	assert.Equal(t, ParticipantID("peer"), mesh.ToPeerID)
	assert.Equal(t, self, mesh.FromPeerID)

	b, err := json.Marshal(mesh)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"mesh-answer","sdp":{"type":"answer","sdp":"v=0"},"toPeerId":"peer","fromPeerId":"self"}`, string(b))
}

func TestNewCandidate_NeverCarriesSDP(t *testing.T) {
	m := NewCandidate(MeshKey("peer"), "self", webrtc.ICECandidateInit{Candidate: "c"})
	assert.Equal(t, TypeMeshCandidate, m.Type)
	assert.Nil(t, m.SDP)
	assert.NoError(t, m.Validate())
}

func TestICEState_Terminal(t *testing.T) {
	for _, s := range []ICEState{ICEDisconnected, ICEFailed, ICEClosed} {
		assert.True(t, s.Terminal(), s)
	}
	for _, s := range []ICEState{ICENew, ICEChecking, ICEConnected, ICECompleted} {
		assert.False(t, s.Terminal(), s)
	}
}

func TestConnKey(t *testing.T) {
	assert.Equal(t, "uplink", UplinkKey().String())
	assert.Equal(t, "mesh:abcdefgh", MeshKey("abcdefgh-1234").String())
	assert.NotEqual(t, MeshKey("a"), MeshKey("b"))
	assert.Equal(t, MeshKey("a"), MeshKey("a"))
}
