package negotiate

import "github.com/dkeye/meshcast/internal/domain"

type GlareAction int

const (
	// KeepLocal ignores the colliding remote offer.
	KeepLocal GlareAction = iota
	// YieldLocal abandons the local offer and answers the remote one on a
	// fresh connection.
	YieldLocal
)

func (a GlareAction) String() string {
	if a == YieldLocal {
		return "yield"
	}
	return "keep"
}

// Policy resolves an offer collision on a connection.
type Policy interface {
	OnGlare(self, remote domain.ParticipantID) GlareAction
}

// IDPolicy makes the side with the smaller participant id polite.
type IDPolicy struct{}

func (IDPolicy) OnGlare(self, remote domain.ParticipantID) GlareAction {
	if self.Less(remote) {
		return YieldLocal
	}
	return KeepLocal
}
