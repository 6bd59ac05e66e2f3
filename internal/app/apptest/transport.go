package apptest

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/dkeye/meshcast/internal/core"
	"github.com/dkeye/meshcast/internal/domain"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

var (
	ErrClosed     = errors.New("transport closed")
	ErrWrongState = errors.New("wrong signaling state")
	ErrNoRemote   = errors.New("remote description not set")
)

var ufrags atomic.Uint64

// Transport mimics the signaling state machine of a pion peer connection,
// including its refusal to roll back a local offer. Offers carry one m-line
// per negotiated or sender kind and a per-transport ice-ufrag.
type Transport struct {
	Key     domain.ConnKey
	Ufrag   string
	journal *Journal

	mu       sync.Mutex
	state    domain.SignalingState
	local    *webrtc.SessionDescription
	remote   *webrtc.SessionDescription
	senders  []*Sender
	applied  []webrtc.ICECandidateInit
	offers   int
	closed   bool
	offerErr error

	onICE      func(webrtc.ICECandidateInit)
	onICEState func(domain.ICEState)
	onTrack    func(core.RemoteTrack)
}

func NewTransport(key domain.ConnKey, j *Journal) *Transport {
	return &Transport{
		Key:     key,
		Ufrag:   fmt.Sprintf("u%d", ufrags.Add(1)),
		journal: j,
		state:   domain.SignalingStable,
	}
}

// FailNextOffer makes the next CreateOffer return err.
func (t *Transport) FailNextOffer(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.offerErr = err
}

// kindsLocked lists already negotiated kinds followed by new sender kinds.
func (t *Transport) kindsLocked() []domain.TrackKind {
	var kinds []domain.TrackKind
	if t.remote != nil {
		kinds = Kinds(t.remote.SDP)
	}
	for _, s := range t.senders {
		if !slices.Contains(kinds, s.kind) {
			kinds = append(kinds, s.kind)
		}
	}
	return kinds
}

func (t *Transport) CreateOffer() (webrtc.SessionDescription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return webrtc.SessionDescription{}, ErrClosed
	}
	if err := t.offerErr; err != nil {
		t.offerErr = nil
		return webrtc.SessionDescription{}, err
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: Session(t.Ufrag, t.kindsLocked()...)}, nil
}

// CreateAnswer mirrors the m-lines of the remote offer.
func (t *Transport) CreateAnswer() (webrtc.SessionDescription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return webrtc.SessionDescription{}, ErrClosed
	}
	if t.state != domain.SignalingHaveRemoteOffer {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: answer in %s", ErrWrongState, t.state)
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: Session(t.Ufrag, Kinds(t.remote.SDP)...)}, nil
}

func (t *Transport) SetLocalDescription(sd webrtc.SessionDescription) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	switch {
	case sd.Type == webrtc.SDPTypeOffer && t.state == domain.SignalingStable:
		t.state = domain.SignalingHaveLocalOffer
		t.offers++
		t.journal.Add(fmt.Sprintf("%s.offer", t.Key))
	case sd.Type == webrtc.SDPTypeOffer && t.state == domain.SignalingHaveLocalOffer:
		// replacing the pending offer stays in have-local-offer
	case sd.Type == webrtc.SDPTypeAnswer && t.state == domain.SignalingHaveRemoteOffer:
		t.state = domain.SignalingStable
	default:
		return fmt.Errorf("%w: local %s in %s", ErrWrongState, sd.Type, t.state)
	}
	t.local = &sd
	return nil
}

func (t *Transport) SetRemoteDescription(sd webrtc.SessionDescription) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	switch {
	case sd.Type == webrtc.SDPTypeOffer && t.state == domain.SignalingStable:
		t.state = domain.SignalingHaveRemoteOffer
	case sd.Type == webrtc.SDPTypeOffer && t.state == domain.SignalingHaveRemoteOffer:
	case sd.Type == webrtc.SDPTypeAnswer && t.state == domain.SignalingHaveLocalOffer:
		t.state = domain.SignalingStable
	default:
		return fmt.Errorf("%w: remote %s in %s", ErrWrongState, sd.Type, t.state)
	}
	t.remote = &sd
	return nil
}

func (t *Transport) LocalDescription() *webrtc.SessionDescription {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.local
}

func (t *Transport) RemoteDescription() *webrtc.SessionDescription {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remote
}

func (t *Transport) SignalingState() domain.SignalingState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transport) AddICECandidate(c webrtc.ICECandidateInit) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if t.remote == nil {
		return ErrNoRemote
	}
	t.applied = append(t.applied, c)
	return nil
}

func (t *Transport) AddTrack(track core.MediaTrack) (core.Sender, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrClosed
	}
	s := &Sender{kind: track.Kind(), track: track}
	t.senders = append(t.senders, s)
	return s, nil
}

func (t *Transport) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onICE = fn
}

func (t *Transport) OnICEStateChange(fn func(domain.ICEState)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onICEState = fn
}

func (t *Transport) OnTrack(fn func(core.RemoteTrack)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onTrack = fn
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	t.state = domain.SignalingClosed
	t.journal.Add(fmt.Sprintf("%s.close", t.Key))
	return nil
}

// EmitCandidate plays a locally gathered candidate.
func (t *Transport) EmitCandidate(c webrtc.ICECandidateInit) {
	t.mu.Lock()
	fn := t.onICE
	t.mu.Unlock()
	if fn != nil {
		fn(c)
	}
}

func (t *Transport) EmitICEState(s domain.ICEState) {
	t.mu.Lock()
	fn := t.onICEState
	t.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (t *Transport) EmitTrack(rt core.RemoteTrack) {
	t.mu.Lock()
	fn := t.onTrack
	t.mu.Unlock()
	if fn != nil {
		fn(rt)
	}
}

func (t *Transport) Applied() []webrtc.ICECandidateInit {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.applied)
}

// Offers counts local offers that reached have-local-offer.
func (t *Transport) Offers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.offers
}

func (t *Transport) Senders() []*Sender {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.senders)
}

func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

type Sender struct {
	mu       sync.Mutex
	kind     domain.TrackKind
	track    core.MediaTrack
	replaced int
}

func (s *Sender) Track() core.MediaTrack {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.track
}

func (s *Sender) ReplaceTrack(t core.MediaTrack) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.track = t
	s.replaced++
	return nil
}

func (s *Sender) Replaced() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replaced
}

// Factory builds fake transports and remembers every instance per key.
type Factory struct {
	Journal *Journal
	Err     error

	mu    sync.Mutex
	built map[domain.ConnKey][]*Transport
}

func (f *Factory) New(key domain.ConnKey) (core.Transport, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	t := NewTransport(key, f.Journal)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.built == nil {
		f.built = make(map[domain.ConnKey][]*Transport)
	}
	f.built[key] = append(f.built[key], t)
	return t, nil
}

// Last returns the most recent transport built for key.
func (f *Factory) Last(key domain.ConnKey) *Transport {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.built[key]
	if len(all) == 0 {
		return nil
	}
	return all[len(all)-1]
}

func (f *Factory) Count(key domain.ConnKey) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.built[key])
}

// RemoteTrack is a readable track fed by Push.
type RemoteTrack struct {
	id      string
	kind    domain.TrackKind
	packets chan *rtp.Packet
	once    sync.Once
}

func NewRemoteTrack(id string, kind domain.TrackKind) *RemoteTrack {
	return &RemoteTrack{id: id, kind: kind, packets: make(chan *rtp.Packet, 16)}
}

func (r *RemoteTrack) ID() string             { return r.id }
func (r *RemoteTrack) Kind() domain.TrackKind { return r.kind }

func (r *RemoteTrack) MimeType() string {
	if r.kind == domain.KindVideo {
		return webrtc.MimeTypeVP8
	}
	return webrtc.MimeTypeOpus
}

func (r *RemoteTrack) Push(p *rtp.Packet) { r.packets <- p }

// End makes further reads fail with io.EOF.
func (r *RemoteTrack) End() { r.once.Do(func() { close(r.packets) }) }

func (r *RemoteTrack) ReadRTP() (*rtp.Packet, error) {
	p, ok := <-r.packets
	if !ok {
		return nil, io.EOF
	}
	return p, nil
}
