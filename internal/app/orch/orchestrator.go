// Package orch sequences signaling events, local media changes and
// transport state changes over the connection registry.
package orch

import (
	"context"
	"errors"
	"sync"

	"github.com/dkeye/meshcast/internal/app"
	"github.com/dkeye/meshcast/internal/app/negotiate"
	"github.com/dkeye/meshcast/internal/app/remote"
	"github.com/dkeye/meshcast/internal/app/route"
	"github.com/dkeye/meshcast/internal/core"
	"github.com/dkeye/meshcast/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotConnected     = errors.New("signaling not connected")
	ErrMediaUnavailable = errors.New("local media unavailable")
	ErrStopped          = errors.New("session stopped")
)

type Deps struct {
	Self    domain.ParticipantID
	Factory core.TransportFactory
	Media   core.MediaProvider
	// Sinks is optional; without it remote tracks are only drained.
	Sinks  remote.SinkFactory
	Policy negotiate.Policy
}

type Orchestrator struct {
	Registry *app.Registry
	Bundles  *remote.BundleSet
	Local    *app.LocalMedia
	Engine   *negotiate.Engine
	Router   *route.Router

	self  domain.ParticipantID
	media core.MediaProvider

	locks *keyedMutex
	queue *dispatcher

	mu        sync.RWMutex
	signal    core.SignalChannel
	connected bool

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	done     chan struct{}
}

func New(d Deps) *Orchestrator {
	if d.Self == "" {
		d.Self = domain.NewParticipantID()
	}
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		Registry: app.NewRegistry(d.Factory, app.NewCandidateBuffer()),
		Bundles:  remote.NewBundleSet(d.Sinks),
		Local:    app.NewLocalMedia(),
		Router:   route.New(),
		self:     d.Self,
		media:    d.Media,
		locks:    newKeyedMutex(),
		queue:    newDispatcher(),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	o.Engine = negotiate.NewEngine(d.Self, o.Registry, o, d.Policy)
	o.Engine.OnReplace(func(c *app.Connection) error {
		if !o.Local.Active() {
			return nil
		}
		_, err := o.Router.Sync(c, o.Local)
		return err
	})
	o.Registry.OnCreate(o.bindTransport)
	o.Registry.OnRemove(func(key domain.ConnKey) {
		if !key.IsUplink() {
			o.Bundles.Drop(key.Peer)
		}
	})
	return o
}

func (o *Orchestrator) Self() domain.ParticipantID { return o.self }

// Done is closed once Stop has finished.
func (o *Orchestrator) Done() <-chan struct{} { return o.done }

// Send delivers m over the current signaling channel.
func (o *Orchestrator) Send(m domain.Message) error {
	o.mu.RLock()
	ch, ok := o.signal, o.connected
	o.mu.RUnlock()
	if !ok || ch == nil {
		return ErrNotConnected
	}
	return ch.Send(m)
}

// Run feeds msgs into the orchestrator until the stream ends, ctx is
// cancelled or the session stops.
func (o *Orchestrator) Run(ctx context.Context, msgs <-chan domain.Message) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-o.done:
			return ErrStopped
		case m, ok := <-msgs:
			if !ok {
				return nil
			}
			o.HandleMessage(m)
		}
	}
}

// withKey runs fn holding the per-key lock.
func (o *Orchestrator) withKey(key domain.ConnKey, fn func()) {
	unlock := o.locks.Lock(key)
	defer unlock()
	fn()
}

func (o *Orchestrator) bindTransport(conn *app.Connection) {
	key := conn.Key
	t := conn.Transport()
	logger := log.With().Str("module", "orch").Str("key", key.String()).Logger()

	t.OnICECandidate(func(c webrtc.ICECandidateInit) {
		if err := o.Send(domain.NewCandidate(key, o.self, c)); err != nil {
			logger.Warn().Err(err).Msg("send local candidate")
		}
	})
	t.OnICEStateChange(func(s domain.ICEState) {
		o.onICEState(conn, s)
	})
	t.OnTrack(func(rt core.RemoteTrack) {
		o.onRemoteTrack(conn, rt)
	})
}

// onICEState records s in callback order. Teardown takes the key lock, which
// the caller may hold since pion fires the callback from Close.
func (o *Orchestrator) onICEState(conn *app.Connection, s domain.ICEState) {
	conn.SetICEState(s)
	log.Info().Str("module", "orch").Str("key", conn.Key.String()).Str("ice_state", string(s)).Msg("ICE state")
	if s.Terminal() {
		go o.teardown(conn)
	}
}

func (o *Orchestrator) teardown(conn *app.Connection) {
	o.withKey(conn.Key, func() {
		if o.Registry.Remove(conn) {
			log.Info().Str("module", "orch").Str("key", conn.Key.String()).Msg("connection torn down")
		}
	})
}

func (o *Orchestrator) onRemoteTrack(conn *app.Connection, rt core.RemoteTrack) {
	o.withKey(conn.Key, func() {
		if !o.Registry.IsLive(conn) {
			log.Debug().Str("module", "orch").Str("key", conn.Key.String()).Msg("track on replaced connection")
			return
		}
		if conn.Key.IsUplink() {
			remote.Discard(o.ctx, rt)
			return
		}
		o.Bundles.Append(o.ctx, conn.Key.Peer, rt)
	})
}

// Stop ends the session: connections first, then signaling, then local media.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() {
		log.Info().Str("module", "orch").Msg("stopping session")
		o.Registry.CloseAll()

		o.mu.Lock()
		ch := o.signal
		o.signal, o.connected = nil, false
		o.mu.Unlock()
		if ch != nil {
			if err := ch.Close(); err != nil {
				log.Warn().Err(err).Str("module", "orch").Msg("close signaling")
			}
		}

		o.Local.Release()
		o.Bundles.DropAll()
		o.cancel()
		close(o.done)
	})
}

func (o *Orchestrator) stopped() bool {
	select {
	case <-o.done:
		return true
	default:
		return false
	}
}

func (o *Orchestrator) Status() domain.Status {
	o.mu.RLock()
	connected := o.connected
	o.mu.RUnlock()

	st := domain.Status{
		ClientID:        o.self,
		SignalConnected: connected,
		MeshCount:       o.Registry.MeshCount(),
		MediaActive:     o.Local.Active(),
		ScreenSharing:   o.Local.Sharing(),
		Participants:    o.Bundles.Count() + 1,
		Peers:           []domain.PeerStatus{},
	}
	if up, ok := o.Registry.Uplink(); ok {
		st.UplinkActive = up.ICEState().Up()
	}
	for _, peer := range o.Registry.MeshPeers() {
		conn, ok := o.Registry.Mesh(peer)
		if !ok {
			continue
		}
		ps := domain.PeerStatus{
			ID:        peer,
			ICEState:  conn.ICEState(),
			Signaling: conn.SignalingState(),
			Tracks:    []domain.TrackInfo{},
		}
		if b, ok := o.Bundles.Get(peer); ok {
			ps.Tracks = b.Tracks()
		}
		st.Peers = append(st.Peers, ps)
	}
	return st
}

// Bundle returns the tracks received from peer.
func (o *Orchestrator) Bundle(peer domain.ParticipantID) ([]domain.TrackInfo, bool) {
	b, ok := o.Bundles.Get(peer)
	if !ok {
		return nil, false
	}
	return b.Tracks(), true
}
