package orch

import (
	"sync"

	"github.com/dkeye/meshcast/internal/domain"
)

// dispatcher runs jobs for the same key one after another in submission
// order, and jobs for different keys in parallel.
type dispatcher struct {
	mu      sync.Mutex
	pending map[domain.ConnKey][]func()
	wg      sync.WaitGroup
}

func newDispatcher() *dispatcher {
	return &dispatcher{pending: make(map[domain.ConnKey][]func())}
}

func (d *dispatcher) Do(key domain.ConnKey, job func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	q, running := d.pending[key]
	d.pending[key] = append(q, job)
	if !running {
		d.wg.Add(1)
		go d.drain(key)
	}
}

func (d *dispatcher) drain(key domain.ConnKey) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		q := d.pending[key]
		if len(q) == 0 {
			delete(d.pending, key)
			d.mu.Unlock()
			return
		}
		job := q[0]
		d.pending[key] = q[1:]
		d.mu.Unlock()
		job()
	}
}

// wait blocks until every queue is empty.
func (d *dispatcher) wait() {
	d.wg.Wait()
}
