package orch

import (
	"errors"

	"github.com/dkeye/meshcast/internal/core"
	"github.com/dkeye/meshcast/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// OnSignalConnected adopts ch, announces this participant and brings every
// connection up to date with the local media.
func (o *Orchestrator) OnSignalConnected(ch core.SignalChannel) {
	if o.stopped() {
		_ = ch.Close()
		return
	}
	o.mu.Lock()
	o.signal, o.connected = ch, true
	o.mu.Unlock()
	log.Info().Str("module", "orch").Str("self", o.self.Short()).Msg("signaling connected")

	if err := o.Send(domain.NewAnnounce(o.self)); err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("announce")
	}
	if o.Local.Active() {
		o.syncAll(true)
	}
}

func (o *Orchestrator) OnSignalDisconnected() {
	o.mu.Lock()
	o.signal, o.connected = nil, false
	o.mu.Unlock()
	log.Warn().Str("module", "orch").Msg("signaling disconnected")
}

// HandleMessage validates m and queues it behind earlier messages for the
// same connection. Malformed, self-originated and misaddressed messages are
// dropped.
func (o *Orchestrator) HandleMessage(m domain.Message) {
	logger := log.With().Str("module", "orch").Str("type", string(m.Type)).Logger()
	if err := m.Validate(); err != nil {
		logger.Warn().Err(err).Msg("dropping invalid message")
		return
	}
	from := m.Sender()
	if from == o.self {
		logger.Debug().Msg("dropping own message")
		return
	}
	if m.ToPeerID != "" && m.ToPeerID != o.self {
		logger.Debug().Str("to", m.ToPeerID.Short()).Msg("dropping message for another participant")
		return
	}

	switch m.Type {
	case domain.TypePeerAnnounce:
		o.dispatch(domain.MeshKey(from), func() { o.onPeerAnnounce(from) })
	case domain.TypeMeshOffer:
		sd := *m.SDP
		o.dispatch(domain.MeshKey(from), func() { o.onMeshOffer(from, sd) })
	case domain.TypeMeshAnswer:
		sd := *m.SDP
		o.dispatch(domain.MeshKey(from), func() { o.onAnswer(domain.MeshKey(from), sd) })
	case domain.TypeMeshCandidate:
		c := *m.Candidate
		o.dispatch(domain.MeshKey(from), func() { o.onCandidate(domain.MeshKey(from), c) })
	case domain.TypeUplinkAnswer:
		sd := *m.SDP
		o.dispatch(domain.UplinkKey(), func() { o.onAnswer(domain.UplinkKey(), sd) })
	case domain.TypeUplinkCandidate:
		c := *m.Candidate
		o.dispatch(domain.UplinkKey(), func() { o.onCandidate(domain.UplinkKey(), c) })
	case domain.TypeUplinkOffer:
		// the uplink is always offered from this side
		logger.Warn().Msg("dropping server-initiated uplink offer")
	}
}

func (o *Orchestrator) dispatch(key domain.ConnKey, fn func()) {
	o.queue.Do(key, func() {
		if o.stopped() {
			return
		}
		o.withKey(key, fn)
	})
}

func (o *Orchestrator) onPeerAnnounce(peer domain.ParticipantID) {
	logger := log.With().Str("module", "orch").Str("peer", peer.Short()).Logger()
	if c, ok := o.Registry.Mesh(peer); ok && o.Registry.IsLive(c) {
		logger.Debug().Msg("peer already known")
		return
	}
	conn, err := o.Registry.GetOrCreateMesh(peer)
	if err != nil {
		logger.Error().Err(err).Msg("create mesh connection")
		return
	}
	logger.Info().Msg("new peer")
	if !o.Local.Active() {
		logger.Debug().Msg("no local media yet, waiting for the peer or for media")
		return
	}
	if _, err := o.Router.Sync(conn, o.Local); err != nil {
		logger.Error().Err(err).Msg("attach tracks")
	}
	if !conn.HasSenders() {
		return
	}
	if err := o.Engine.Offer(conn); err != nil {
		logger.Error().Err(err).Msg("offer to new peer")
	}
}

func (o *Orchestrator) onMeshOffer(peer domain.ParticipantID, sd webrtc.SessionDescription) {
	logger := log.With().Str("module", "orch").Str("peer", peer.Short()).Logger()
	conn, err := o.Registry.GetOrCreateMesh(peer)
	if err != nil {
		logger.Error().Err(err).Msg("create mesh connection")
		return
	}
	if o.Local.Active() {
		// a follow-up offer for new kinds is decided by the engine after answering
		if _, err := o.Router.Sync(conn, o.Local); err != nil {
			logger.Error().Err(err).Msg("attach tracks")
		}
	}
	if err := o.Engine.HandleOffer(conn, sd); err != nil {
		logger.Error().Err(err).Msg("handle offer")
	}
}

func (o *Orchestrator) onAnswer(key domain.ConnKey, sd webrtc.SessionDescription) {
	logger := log.With().Str("module", "orch").Str("key", key.String()).Logger()
	conn, ok := o.Registry.Get(key)
	if !ok {
		logger.Warn().Msg("answer for unknown connection")
		return
	}
	if err := o.Engine.HandleAnswer(conn, sd); err != nil {
		logger.Error().Err(err).Msg("handle answer")
	}
}

func (o *Orchestrator) onCandidate(key domain.ConnKey, c webrtc.ICECandidateInit) {
	if err := o.Engine.AddCandidate(key, c); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("key", key.String()).Msg("remote candidate")
	}
}

func logNegotiation(key domain.ConnKey, op string, err error) {
	if err == nil {
		return
	}
	ev := log.Error()
	if errors.Is(err, ErrNotConnected) {
		ev = log.Warn()
	}
	ev.Err(err).Str("module", "orch").Str("key", key.String()).Msg(op)
}
