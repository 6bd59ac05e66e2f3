package domain

// Status is the read-only projection shown to the operator.
type Status struct {
	ClientID        ParticipantID `json:"clientId"`
	SignalConnected bool          `json:"signalConnected"`
	UplinkActive    bool          `json:"uplinkActive"`
	MeshCount       int           `json:"meshCount"`
	MediaActive     bool          `json:"mediaActive"`
	ScreenSharing   bool          `json:"screenSharing"`
	Participants    int           `json:"participants"`
	Peers           []PeerStatus  `json:"peers"`
}

type PeerStatus struct {
	ID        ParticipantID  `json:"id"`
	ICEState  ICEState       `json:"iceState"`
	Signaling SignalingState `json:"signaling"`
	Tracks    []TrackInfo    `json:"tracks"`
}

type TrackInfo struct {
	ID       string    `json:"id"`
	Kind     TrackKind `json:"kind"`
	MimeType string    `json:"mimeType"`
	Packets  uint64    `json:"packets"`
}
