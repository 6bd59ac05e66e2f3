package domain

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
)

var (
	ErrUnknownType = errors.New("unknown message type")
	ErrMalformed   = errors.New("malformed message")
)

type MessageType string

const (
	TypePeerAnnounce    MessageType = "peer-announce"
	TypeUplinkOffer     MessageType = "uplink-offer"
	TypeUplinkAnswer    MessageType = "uplink-answer"
	TypeUplinkCandidate MessageType = "uplink-candidate"
	TypeMeshOffer       MessageType = "mesh-offer"
	TypeMeshAnswer      MessageType = "mesh-answer"
	TypeMeshCandidate   MessageType = "mesh-candidate"
)

func (t MessageType) IsMesh() bool {
	switch t {
	case TypeMeshOffer, TypeMeshAnswer, TypeMeshCandidate:
		return true
	}
	return false
}

func (t MessageType) known() bool {
	switch t {
	case TypePeerAnnounce,
		TypeUplinkOffer, TypeUplinkAnswer, TypeUplinkCandidate,
		TypeMeshOffer, TypeMeshAnswer, TypeMeshCandidate:
		return true
	}
	return false
}

// Message is the signaling envelope. Payload is either SDP or a single
// candidate, never both.
type Message struct {
	Type       MessageType                `json:"type"`
	ClientID   ParticipantID              `json:"clientId,omitempty"`
	SDP        *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate  *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
	ToPeerID   ParticipantID              `json:"toPeerId,omitempty"`
	FromPeerID ParticipantID              `json:"fromPeerId,omitempty"`
}

// Sender returns the originating participant, if the message names one.
func (m Message) Sender() ParticipantID {
	if m.FromPeerID != "" {
		return m.FromPeerID
	}
	return m.ClientID
}

func (m Message) Validate() error {
	if !m.Type.known() {
		return fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}
	if m.SDP != nil && m.Candidate != nil {
		return fmt.Errorf("%w: both sdp and candidate", ErrMalformed)
	}
	switch m.Type {
	case TypePeerAnnounce:
		if m.Sender() == "" {
			return fmt.Errorf("%w: announce without id", ErrMalformed)
		}
	case TypeUplinkOffer, TypeUplinkAnswer, TypeMeshOffer, TypeMeshAnswer:
		if m.SDP == nil || m.SDP.SDP == "" {
			return fmt.Errorf("%w: %s without sdp", ErrMalformed, m.Type)
		}
	case TypeUplinkCandidate, TypeMeshCandidate:
		if m.Candidate == nil {
			return fmt.Errorf("%w: %s without candidate", ErrMalformed, m.Type)
		}
	}
	if m.Type.IsMesh() && m.FromPeerID == "" {
		return fmt.Errorf("%w: %s without fromPeerId", ErrMalformed, m.Type)
	}
	return nil
}

// DecodeMessage parses and validates one frame from the relay.
func DecodeMessage(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

func NewAnnounce(self ParticipantID) Message {
	return Message{Type: TypePeerAnnounce, ClientID: self}
}

// NewDescription builds an offer or answer for the connection addressed by key.
func NewDescription(key ConnKey, self ParticipantID, sd webrtc.SessionDescription) Message {
	m := Message{SDP: &sd}
	offer := sd.Type == webrtc.SDPTypeOffer
	switch {
	case key.IsUplink() && offer:
		m.Type = TypeUplinkOffer
	case key.IsUplink():
		m.Type = TypeUplinkAnswer
	case offer:
		m.Type = TypeMeshOffer
	default:
		m.Type = TypeMeshAnswer
	}
	if !key.IsUplink() {
		m.ToPeerID = key.Peer
		m.FromPeerID = self
	}
	return m
}

func NewCandidate(key ConnKey, self ParticipantID, c webrtc.ICECandidateInit) Message {
	m := Message{Type: TypeUplinkCandidate, Candidate: &c}
	if !key.IsUplink() {
		m.Type = TypeMeshCandidate
		m.ToPeerID = key.Peer
		m.FromPeerID = self
	}
	return m
}
