package app

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/dkeye/meshcast/internal/core"
	"github.com/dkeye/meshcast/internal/domain"
	"github.com/rs/zerolog/log"
)

var ErrNoFactory = errors.New("registry has no transport factory")

// Registry owns the uplink slot and the mesh map. At most one live
// connection exists per key; removal closes the transport before the
// record leaves the registry.
type Registry struct {
	factory    core.TransportFactory
	candidates *CandidateBuffer

	mu       sync.RWMutex
	uplink   *Connection
	mesh     map[domain.ParticipantID]*Connection
	retired  map[domain.ConnKey]struct{}
	onCreate func(*Connection)
	onRemove []func(domain.ConnKey)
}

func NewRegistry(factory core.TransportFactory, candidates *CandidateBuffer) *Registry {
	if candidates == nil {
		candidates = NewCandidateBuffer()
	}
	return &Registry{
		factory:    factory,
		candidates: candidates,
		mesh:       make(map[domain.ParticipantID]*Connection),
		retired:    make(map[domain.ConnKey]struct{}),
	}
}

// OnCreate installs a hook run for every new connection before it is
// published. The hook must not call back into the registry.
func (r *Registry) OnCreate(fn func(*Connection)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onCreate = fn
}

// OnRemove adds a hook run after a connection left the registry.
func (r *Registry) OnRemove(fn func(domain.ConnKey)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onRemove = append(r.onRemove, fn)
}

func (r *Registry) Candidates() *CandidateBuffer { return r.candidates }

func (r *Registry) GetOrCreateUplink() (*Connection, error) {
	c, _, err := r.GetOrCreate(domain.UplinkKey())
	return c, err
}

func (r *Registry) GetOrCreateMesh(peer domain.ParticipantID) (*Connection, error) {
	c, _, err := r.GetOrCreate(domain.MeshKey(peer))
	return c, err
}

// GetOrCreate returns the live connection for key, building one when the
// slot is empty or holds a closed instance.
func (r *Registry) GetOrCreate(key domain.ConnKey) (*Connection, bool, error) {
	r.mu.RLock()
	c := r.lookup(key)
	r.mu.RUnlock()
	if c != nil && !c.Closed() {
		return c, false, nil
	}

	r.mu.Lock()
	c = r.lookup(key)
	if c != nil && !c.Closed() {
		r.mu.Unlock()
		return c, false, nil
	}
	stale := c
	if r.factory == nil {
		r.mu.Unlock()
		return nil, false, ErrNoFactory
	}
	t, err := r.factory(key)
	if err != nil {
		r.mu.Unlock()
		return nil, false, fmt.Errorf("create transport %s: %w", key, err)
	}
	c = newConnection(key, t)
	if r.onCreate != nil {
		r.onCreate(c)
	}
	r.store(key, c)
	delete(r.retired, key)
	hooks := slices.Clone(r.onRemove)
	r.mu.Unlock()

	if stale != nil {
		r.cascade(stale.Key, hooks)
	}
	log.Info().Str("module", "app.registry").Str("key", key.String()).Msg("created connection")
	return c, true, nil
}

func (r *Registry) Get(key domain.ConnKey) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := r.lookup(key)
	return c, c != nil
}

func (r *Registry) Uplink() (*Connection, bool) { return r.Get(domain.UplinkKey()) }

func (r *Registry) Mesh(peer domain.ParticipantID) (*Connection, bool) {
	return r.Get(domain.MeshKey(peer))
}

// IsLive reports whether c is still the registry's instance for its key.
func (r *Registry) IsLive(c *Connection) bool {
	if c == nil || c.Closed() {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookup(c.Key) == c
}

// Retired reports whether the last connection for key was removed and no
// new one has been created since.
func (r *Registry) Retired(key domain.ConnKey) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.retired[key]
	return ok
}

func (r *Registry) RemoveUplink() bool {
	c, ok := r.Uplink()
	if !ok {
		return false
	}
	return r.Remove(c)
}

func (r *Registry) RemoveMesh(peer domain.ParticipantID) bool {
	c, ok := r.Mesh(peer)
	if !ok {
		return false
	}
	return r.Remove(c)
}

// Remove closes c and drops it if it is still the instance stored for its
// key. Returns false when another instance has taken the slot.
func (r *Registry) Remove(c *Connection) bool {
	if err := c.close(); err != nil {
		log.Warn().Err(err).Str("module", "app.registry").Str("key", c.Key.String()).Msg("close transport")
	}

	r.mu.Lock()
	if r.lookup(c.Key) != c {
		r.mu.Unlock()
		return false
	}
	r.store(c.Key, nil)
	r.retired[c.Key] = struct{}{}
	hooks := slices.Clone(r.onRemove)
	r.mu.Unlock()

	r.cascade(c.Key, hooks)
	log.Info().Str("module", "app.registry").Str("key", c.Key.String()).Msg("removed connection")
	return true
}

func (r *Registry) cascade(key domain.ConnKey, hooks []func(domain.ConnKey)) {
	r.candidates.Clear(key)
	for _, fn := range hooks {
		fn(key)
	}
}

// All returns the uplink (if any) followed by mesh connections ordered by peer id.
func (r *Registry) All() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Connection, 0, len(r.mesh)+1)
	if r.uplink != nil {
		out = append(out, r.uplink)
	}
	for _, peer := range r.meshPeersLocked() {
		out = append(out, r.mesh[peer])
	}
	return out
}

func (r *Registry) MeshPeers() []domain.ParticipantID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.meshPeersLocked()
}

func (r *Registry) MeshCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.mesh)
}

// CloseAll removes every connection.
func (r *Registry) CloseAll() {
	for _, c := range r.All() {
		r.Remove(c)
	}
}

func (r *Registry) meshPeersLocked() []domain.ParticipantID {
	peers := make([]domain.ParticipantID, 0, len(r.mesh))
	for p := range r.mesh {
		peers = append(peers, p)
	}
	slices.Sort(peers)
	return peers
}

func (r *Registry) lookup(key domain.ConnKey) *Connection {
	if key.IsUplink() {
		return r.uplink
	}
	return r.mesh[key.Peer]
}

func (r *Registry) store(key domain.ConnKey, c *Connection) {
	if key.IsUplink() {
		r.uplink = c
		return
	}
	if c == nil {
		delete(r.mesh, key.Peer)
		return
	}
	r.mesh[key.Peer] = c
}
