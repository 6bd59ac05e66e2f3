package core

import (
	"context"

	"github.com/dkeye/meshcast/internal/domain"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// MediaTrack is one outgoing local track.
type MediaTrack interface {
	ID() string
	Kind() domain.TrackKind
	// Stop releases the capture behind the track. Idempotent.
	Stop()
}

// MediaSource is a set of local tracks acquired together (camera+mic or screen+mic).
type MediaSource interface {
	Tracks() []MediaTrack
	Stop()
}

// MediaProvider acquires local media. Failures are user-facing.
type MediaProvider interface {
	Camera(ctx context.Context) (MediaSource, error)
	Screen(ctx context.Context) (MediaSource, error)
}

// Sender is the outgoing slot of one track kind on a connection.
type Sender interface {
	Track() MediaTrack
	ReplaceTrack(MediaTrack) error
}

// RemoteTrack is a track received from the far end.
type RemoteTrack interface {
	ID() string
	Kind() domain.TrackKind
	MimeType() string
	ReadRTP() (*rtp.Packet, error)
}

// PacketSink consumes RTP from one remote track.
type PacketSink interface {
	WriteRTP(*rtp.Packet) error
	Close() error
}

// Transport is one real-time connection as seen by the negotiation code.
type Transport interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	// LocalDescription returns the full current local SDP or nil.
	LocalDescription() *webrtc.SessionDescription
	RemoteDescription() *webrtc.SessionDescription
	SignalingState() domain.SignalingState
	AddICECandidate(webrtc.ICECandidateInit) error
	AddTrack(MediaTrack) (Sender, error)

	OnICECandidate(func(webrtc.ICECandidateInit))
	OnICEStateChange(func(domain.ICEState))
	OnTrack(func(RemoteTrack))
	Close() error
}

// TransportFactory builds a fresh transport for the given connection key.
type TransportFactory func(key domain.ConnKey) (Transport, error)
