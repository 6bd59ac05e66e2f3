package rtc

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/meshcast/internal/core"
	"github.com/dkeye/meshcast/internal/domain"
	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/intervalpli"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrUnsupportedTrack = errors.New("track has no pion backing")

// LocalTrack is implemented by media tracks that pion can send.
type LocalTrack interface {
	core.MediaTrack
	TrackLocal() webrtc.TrackLocal
}

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

// Config builds a pion configuration from STUN/TURN urls; empty uses the default.
func Config(iceServers []string) webrtc.Configuration {
	if len(iceServers) == 0 {
		return DefaultWebRTCConfig()
	}
	return webrtc.Configuration{ICEServers: []webrtc.ICEServer{{URLs: iceServers}}}
}

// NewAPI registers default codecs and the NACK/RTCP report interceptors,
// plus periodic keyframe requests for received video.
func NewAPI() (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	i := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, i); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}
	pli, err := intervalpli.NewReceiverInterceptor()
	if err != nil {
		return nil, fmt.Errorf("create pli interceptor: %w", err)
	}
	i.Add(pli)
	return webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(i)), nil
}

// Factory returns a core.TransportFactory backed by api.
func Factory(api *webrtc.API, cfg webrtc.Configuration) core.TransportFactory {
	return func(key domain.ConnKey) (core.Transport, error) {
		return NewWebRTCConnection(api, cfg, key)
	}
}

// WebRTCConnection adapts a pion PeerConnection to core.Transport.
type WebRTCConnection struct {
	pc     *webrtc.PeerConnection
	key    domain.ConnKey
	logger zerolog.Logger

	mu         sync.RWMutex
	onICE      func(webrtc.ICECandidateInit)
	onICEState func(domain.ICEState)
	onTrack    func(core.RemoteTrack)
}

func NewWebRTCConnection(api *webrtc.API, cfg webrtc.Configuration, key domain.ConnKey) (*WebRTCConnection, error) {
	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	c := &WebRTCConnection{
		pc:     pc,
		key:    key,
		logger: log.With().Str("module", "webrtc").Str("key", key.String()).Logger(),
	}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		c.mu.RLock()
		fn := c.onICE
		c.mu.RUnlock()
		if fn != nil {
			fn(cand.ToJSON())
		}
	})

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		c.logger.Info().Str("ice_state", s.String()).Msg("ICE state")
		c.mu.RLock()
		fn := c.onICEState
		c.mu.RUnlock()
		if fn != nil {
			fn(domain.ICEState(s.String()))
		}
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.logger.Debug().Str("peer_connection_state", s.String()).Msg("Peer state")
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		c.logger.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		c.mu.RLock()
		fn := c.onTrack
		c.mu.RUnlock()
		if fn != nil {
			fn(&remoteTrack{track: track})
		}
	})

	return c, nil
}

func (c *WebRTCConnection) CreateOffer() (webrtc.SessionDescription, error) {
	return c.pc.CreateOffer(nil)
}

func (c *WebRTCConnection) CreateAnswer() (webrtc.SessionDescription, error) {
	return c.pc.CreateAnswer(nil)
}

func (c *WebRTCConnection) SetLocalDescription(sd webrtc.SessionDescription) error {
	return c.pc.SetLocalDescription(sd)
}

func (c *WebRTCConnection) SetRemoteDescription(sd webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(sd)
}

func (c *WebRTCConnection) LocalDescription() *webrtc.SessionDescription {
	return c.pc.LocalDescription()
}

func (c *WebRTCConnection) RemoteDescription() *webrtc.SessionDescription {
	return c.pc.RemoteDescription()
}

func (c *WebRTCConnection) SignalingState() domain.SignalingState {
	switch c.pc.SignalingState() {
	case webrtc.SignalingStateHaveLocalOffer:
		return domain.SignalingHaveLocalOffer
	case webrtc.SignalingStateHaveRemoteOffer:
		return domain.SignalingHaveRemoteOffer
	case webrtc.SignalingStateClosed:
		return domain.SignalingClosed
	default:
		return domain.SignalingStable
	}
}

func (c *WebRTCConnection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

// AddTrack attaches a local track and starts draining RTCP for its sender.
func (c *WebRTCConnection) AddTrack(t core.MediaTrack) (core.Sender, error) {
	lt, ok := t.(LocalTrack)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedTrack, t.ID())
	}
	sender, err := c.pc.AddTrack(lt.TrackLocal())
	if err != nil {
		return nil, err
	}
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return &rtpSender{sender: sender, track: t}, nil
}

func (c *WebRTCConnection) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onICE = fn
}

func (c *WebRTCConnection) OnICEStateChange(fn func(domain.ICEState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onICEState = fn
}

// OnTrack sets application-level callback for remote tracks.
func (c *WebRTCConnection) OnTrack(fn func(core.RemoteTrack)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTrack = fn
}

func (c *WebRTCConnection) Close() error {
	if err := c.pc.Close(); err != nil {
		c.logger.Error().Err(err).Msg("close error")
		return err
	}
	c.logger.Info().Msg("closed")
	return nil
}

type rtpSender struct {
	sender *webrtc.RTPSender

	mu    sync.Mutex
	track core.MediaTrack
}

func (s *rtpSender) Track() core.MediaTrack {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.track
}

func (s *rtpSender) ReplaceTrack(t core.MediaTrack) error {
	lt, ok := t.(LocalTrack)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedTrack, t.ID())
	}
	if err := s.sender.ReplaceTrack(lt.TrackLocal()); err != nil {
		return err
	}
	s.mu.Lock()
	s.track = t
	s.mu.Unlock()
	return nil
}

type remoteTrack struct {
	track *webrtc.TrackRemote
}

func (r *remoteTrack) ID() string { return r.track.ID() }

func (r *remoteTrack) Kind() domain.TrackKind {
	if r.track.Kind() == webrtc.RTPCodecTypeVideo {
		return domain.KindVideo
	}
	return domain.KindAudio
}

func (r *remoteTrack) MimeType() string { return r.track.Codec().MimeType }

func (r *remoteTrack) ReadRTP() (*rtp.Packet, error) {
	pkt, _, err := r.track.ReadRTP()
	return pkt, err
}
