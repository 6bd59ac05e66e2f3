// Package domain contains entities without logic, just meta-data and the wire vocabulary.
package domain

import (
	"github.com/google/uuid"
)

// ParticipantID identifies one client process for the lifetime of a session.
type ParticipantID string

func NewParticipantID() ParticipantID {
	return ParticipantID(uuid.NewString())
}

// Short returns the first eight characters, enough for log lines.
func (id ParticipantID) Short() string {
	if len(id) <= 8 {
		return string(id)
	}
	return string(id[:8])
}

// Less orders participant ids lexicographically.
func (id ParticipantID) Less(other ParticipantID) bool {
	return id < other
}

type TrackKind string

const (
	KindAudio TrackKind = "audio"
	KindVideo TrackKind = "video"
)

// Kinds is the routing order used when syncing senders.
var Kinds = []TrackKind{KindAudio, KindVideo}

type Role int

const (
	RoleUplink Role = iota
	RoleMesh
)

func (r Role) String() string {
	switch r {
	case RoleUplink:
		return "uplink"
	case RoleMesh:
		return "mesh"
	default:
		return "unknown"
	}
}

// ConnKey addresses one connection. Peer is empty for the uplink.
type ConnKey struct {
	Role Role
	Peer ParticipantID
}

func UplinkKey() ConnKey { return ConnKey{Role: RoleUplink} }

func MeshKey(peer ParticipantID) ConnKey { return ConnKey{Role: RoleMesh, Peer: peer} }

func (k ConnKey) IsUplink() bool { return k.Role == RoleUplink }

func (k ConnKey) String() string {
	if k.Role == RoleUplink {
		return "uplink"
	}
	return "mesh:" + k.Peer.Short()
}
