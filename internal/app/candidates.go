package app

import (
	"sync"

	"github.com/dkeye/meshcast/internal/domain"
	"github.com/pion/webrtc/v4"
)

// CandidateBuffer holds remote candidates that arrived before their
// connection had a remote description.
type CandidateBuffer struct {
	mu      sync.Mutex
	pending map[domain.ConnKey][]webrtc.ICECandidateInit
}

func NewCandidateBuffer() *CandidateBuffer {
	return &CandidateBuffer{pending: make(map[domain.ConnKey][]webrtc.ICECandidateInit)}
}

func (b *CandidateBuffer) Add(key domain.ConnKey, c webrtc.ICECandidateInit) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending[key] = append(b.pending[key], c)
}

// Drain returns queued candidates in arrival order and forgets them.
func (b *CandidateBuffer) Drain(key domain.ConnKey) []webrtc.ICECandidateInit {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.pending[key]
	delete(b.pending, key)
	return out
}

func (b *CandidateBuffer) Len(key domain.ConnKey) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending[key])
}

func (b *CandidateBuffer) Clear(key domain.ConnKey) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pending, key)
}
