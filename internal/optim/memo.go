package optim

import (
	"sync"

	"github.com/san-kum/pitchsim/internal/metrics"
	"github.com/san-kum/pitchsim/internal/physics"
	"github.com/san-kum/pitchsim/internal/sim"
)

type memoKey struct {
	sim *sim.Simulator
	p   physics.Params
}

// Memo maps complete parameter sets to their responses, per Simulator. It is
// owned by the caller and may be shared between sweeps; entries produced by
// one Simulator are never returned for another.
type Memo struct {
	mu      sync.Mutex
	entries map[memoKey]metrics.Response
	hits    int
	misses  int
}

func NewMemo() *Memo {
	return &Memo{entries: make(map[memoKey]metrics.Response)}
}

func (m *Memo) Get(s *sim.Simulator, p physics.Params) (metrics.Response, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	resp, ok := m.entries[memoKey{s, p}]
	if ok {
		m.hits++
	} else {
		m.misses++
	}
	return resp, ok
}

func (m *Memo) Put(s *sim.Simulator, p physics.Params, resp metrics.Response) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[memoKey{s, p}] = resp
}

func (m *Memo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Stats returns the number of lookups that found and missed an entry.
func (m *Memo) Stats() (hits, misses int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits, m.misses
}
