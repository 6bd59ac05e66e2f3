package domain

type SignalingState string

const (
	SignalingStable          SignalingState = "stable"
	SignalingHaveLocalOffer  SignalingState = "have-local-offer"
	SignalingHaveRemoteOffer SignalingState = "have-remote-offer"
	SignalingClosed          SignalingState = "closed"
)

type ICEState string

const (
	ICENew          ICEState = "new"
	ICEChecking     ICEState = "checking"
	ICEConnected    ICEState = "connected"
	ICECompleted    ICEState = "completed"
	ICEDisconnected ICEState = "disconnected"
	ICEFailed       ICEState = "failed"
	ICEClosed       ICEState = "closed"
)

// Terminal reports whether the connection must be torn down.
// Disconnected counts: the session never waits for ICE to recover.
func (s ICEState) Terminal() bool {
	switch s {
	case ICEDisconnected, ICEFailed, ICEClosed:
		return true
	}
	return false
}

// Up reports whether media can flow.
func (s ICEState) Up() bool {
	return s == ICEConnected || s == ICECompleted
}
