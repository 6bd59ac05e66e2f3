// Package negotiate drives the offer/answer exchange of a single connection.
// Callers serialize calls per connection key.
package negotiate

import (
	"errors"
	"fmt"

	"github.com/dkeye/meshcast/internal/app"
	"github.com/dkeye/meshcast/internal/domain"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrStale            = errors.New("connection replaced or closed during negotiation")
	ErrUnexpectedAnswer = errors.New("answer without a pending local offer")
	ErrUnexpectedOffer  = errors.New("offer while another remote offer is pending")
	ErrClosed           = errors.New("connection closed")
)

// Outbox delivers signaling messages to the relay.
type Outbox interface {
	Send(domain.Message) error
}

// Attacher puts the current local tracks on a freshly created connection.
type Attacher func(conn *app.Connection) error

type Engine struct {
	self   domain.ParticipantID
	reg    *app.Registry
	out    Outbox
	policy Policy
	attach Attacher
}

func NewEngine(self domain.ParticipantID, reg *app.Registry, out Outbox, policy Policy) *Engine {
	if policy == nil {
		policy = IDPolicy{}
	}
	return &Engine{self: self, reg: reg, out: out, policy: policy}
}

// OnReplace installs the hook that re-attaches local tracks when a
// connection is rebuilt to resolve an offer collision.
func (e *Engine) OnReplace(fn Attacher) { e.attach = fn }

func (e *Engine) logger(conn *app.Connection) zerolog.Logger {
	return log.With().Str("module", "negotiate").Str("key", conn.Key.String()).Logger()
}

// Offer sends a fresh offer if conn is stable. Outside stable the request
// is remembered and replayed once the connection is stable again.
func (e *Engine) Offer(conn *app.Connection) error {
	if !e.reg.IsLive(conn) {
		return ErrStale
	}
	logger := e.logger(conn)
	if st := conn.SignalingState(); st != domain.SignalingStable {
		conn.MarkRenegotiate()
		logger.Debug().Str("state", string(st)).Msg("offer deferred")
		return nil
	}
	conn.TakeRenegotiate()

	t := conn.Transport()
	offer, err := t.CreateOffer()
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if !e.reg.IsLive(conn) {
		return ErrStale
	}
	if err := t.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local offer: %w", err)
	}
	if !e.reg.IsLive(conn) {
		return ErrStale
	}
	if err := e.sendLocal(conn); err != nil {
		return err
	}
	logger.Info().Msg("offer sent")
	return nil
}

// Resend repeats a pending local offer, for example after the relay
// connection was re-established.
func (e *Engine) Resend(conn *app.Connection) error {
	if !e.reg.IsLive(conn) {
		return ErrStale
	}
	if conn.SignalingState() != domain.SignalingHaveLocalOffer {
		return nil
	}
	return e.sendLocal(conn)
}

// HandleOffer answers a remote offer, resolving a collision with a pending
// local offer through the policy. The transport cannot roll a local offer
// back, so the yielding side answers on a fresh connection. An offer from a
// peer that rebuilt its connection is answered on a fresh connection too.
func (e *Engine) HandleOffer(conn *app.Connection, sd webrtc.SessionDescription) error {
	if !e.reg.IsLive(conn) {
		return ErrStale
	}
	logger := e.logger(conn)

	switch st := conn.SignalingState(); st {
	case domain.SignalingStable:
		if peerReplaced(conn, sd) {
			logger.Info().Msg("peer rebuilt its connection, rebuilding")
			fresh, err := e.replace(conn)
			if err != nil {
				return err
			}
			conn = fresh
		}
	case domain.SignalingHaveLocalOffer:
		action := e.policy.OnGlare(e.self, conn.Key.Peer)
		logger.Info().Str("action", action.String()).Msg("offer collision")
		if action == KeepLocal {
			return nil
		}
		fresh, err := e.replace(conn)
		if err != nil {
			return err
		}
		conn = fresh
	case domain.SignalingClosed:
		return ErrClosed
	default:
		return fmt.Errorf("%w: %s", ErrUnexpectedOffer, st)
	}

	t := conn.Transport()
	if err := t.SetRemoteDescription(sd); err != nil {
		return fmt.Errorf("set remote offer: %w", err)
	}
	if !e.reg.IsLive(conn) {
		return ErrStale
	}
	e.flush(conn, &logger)

	answer, err := t.CreateAnswer()
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	if !e.reg.IsLive(conn) {
		return ErrStale
	}
	if err := t.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local answer: %w", err)
	}
	if !e.reg.IsLive(conn) {
		return ErrStale
	}
	if err := e.sendLocal(conn); err != nil {
		return err
	}
	logger.Info().Msg("answer sent")

	missing := missingKinds(conn, sd.SDP)
	if len(missing) > 0 {
		logger.Info().Strs("kinds", kindStrings(missing)).Msg("remote offer lacks our kinds, re-offering")
	}
	if conn.TakeRenegotiate() || len(missing) > 0 {
		return e.Offer(conn)
	}
	return nil
}

// HandleAnswer applies a remote answer to the pending local offer. An
// answer from a peer that rebuilt its connection cannot be applied to the
// existing session; the connection is rebuilt here too and offered afresh.
func (e *Engine) HandleAnswer(conn *app.Connection, sd webrtc.SessionDescription) error {
	if !e.reg.IsLive(conn) {
		return ErrStale
	}
	if st := conn.SignalingState(); st != domain.SignalingHaveLocalOffer {
		return fmt.Errorf("%w: %s", ErrUnexpectedAnswer, st)
	}
	logger := e.logger(conn)
	if peerReplaced(conn, sd) {
		logger.Info().Msg("peer rebuilt its connection, rebuilding")
		fresh, err := e.replace(conn)
		if err != nil {
			return err
		}
		return e.Offer(fresh)
	}
	if err := conn.Transport().SetRemoteDescription(sd); err != nil {
		return fmt.Errorf("set remote answer: %w", err)
	}
	if !e.reg.IsLive(conn) {
		return ErrStale
	}
	e.flush(conn, &logger)
	logger.Info().Msg("answer applied")

	if conn.TakeRenegotiate() {
		return e.Offer(conn)
	}
	return nil
}

// AddCandidate applies c now if the connection can take it, otherwise queues
// it. Candidates for a closed or removed connection are dropped.
func (e *Engine) AddCandidate(key domain.ConnKey, c webrtc.ICECandidateInit) error {
	buf := e.reg.Candidates()
	conn, ok := e.reg.Get(key)
	switch {
	case !ok && e.reg.Retired(key):
		return nil
	case !ok:
		buf.Add(key, c)
		return nil
	case conn.SignalingState() == domain.SignalingClosed:
		return nil
	case !conn.HasRemoteDescription():
		buf.Add(key, c)
		return nil
	}
	if err := conn.Transport().AddICECandidate(c); err != nil {
		return fmt.Errorf("add candidate: %w", err)
	}
	return nil
}

// replace removes old and builds a new connection for the same key with the
// local tracks attached. A pending renegotiation carries over.
func (e *Engine) replace(old *app.Connection) (*app.Connection, error) {
	pending := old.TakeRenegotiate()
	e.reg.Remove(old)
	fresh, _, err := e.reg.GetOrCreate(old.Key)
	if err != nil {
		return nil, fmt.Errorf("rebuild %s: %w", old.Key, err)
	}
	logger := e.logger(fresh)
	if e.attach != nil {
		if err := e.attach(fresh); err != nil {
			logger.Warn().Err(err).Msg("attach tracks to rebuilt connection")
		}
	}
	if pending {
		fresh.MarkRenegotiate()
	}
	logger.Info().Msg("connection rebuilt")
	return fresh, nil
}

func (e *Engine) flush(conn *app.Connection, logger *zerolog.Logger) {
	pending := e.reg.Candidates().Drain(conn.Key)
	for _, c := range pending {
		if err := conn.Transport().AddICECandidate(c); err != nil {
			logger.Warn().Err(err).Msg("buffered candidate rejected")
		}
	}
	if len(pending) > 0 {
		logger.Debug().Int("count", len(pending)).Msg("flushed buffered candidates")
	}
}

func (e *Engine) sendLocal(conn *app.Connection) error {
	local := conn.Transport().LocalDescription()
	if local == nil {
		return fmt.Errorf("no local description on %s", conn.Key)
	}
	if err := e.out.Send(domain.NewDescription(conn.Key, e.self, *local)); err != nil {
		return fmt.Errorf("send %s: %w", local.Type, err)
	}
	return nil
}

// missingKinds lists sender kinds that have no m-line in the remote SDP.
func missingKinds(conn *app.Connection, raw string) []domain.TrackKind {
	parsed := &sdp.SessionDescription{}
	if err := parsed.Unmarshal([]byte(raw)); err != nil {
		return nil
	}
	present := make(map[domain.TrackKind]bool, len(parsed.MediaDescriptions))
	for _, md := range parsed.MediaDescriptions {
		present[domain.TrackKind(md.MediaName.Media)] = true
	}
	senders := conn.Senders()
	var out []domain.TrackKind
	for _, k := range domain.Kinds {
		if _, ok := senders[k]; ok && !present[k] {
			out = append(out, k)
		}
	}
	return out
}

const attrICEUfrag = "ice-ufrag"

// peerReplaced reports whether sd comes from a different ICE agent than the
// remote description already applied to conn.
func peerReplaced(conn *app.Connection, sd webrtc.SessionDescription) bool {
	prev := conn.Transport().RemoteDescription()
	if prev == nil {
		return false
	}
	before, now := iceUfrag(prev.SDP), iceUfrag(sd.SDP)
	return before != "" && now != "" && before != now
}

// iceUfrag returns the session-level ice-ufrag or the first media-level one.
func iceUfrag(raw string) string {
	parsed := &sdp.SessionDescription{}
	if err := parsed.Unmarshal([]byte(raw)); err != nil {
		return ""
	}
	if v, ok := parsed.Attribute(attrICEUfrag); ok {
		return v
	}
	for _, md := range parsed.MediaDescriptions {
		if v, ok := md.Attribute(attrICEUfrag); ok {
			return v
		}
	}
	return ""
}

func kindStrings(kinds []domain.TrackKind) []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}
