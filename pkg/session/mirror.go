package session

import "sync"

// mirror projects (ready, loading, agent) onto the SubjectStore. It runs
// after every state change but only writes when its inputs change, and
// never while there is no live client or loading is in progress.
//
// The projection is computed under the manager lock and written after it
// is released. Writes carry a sequence number so that a write overtaken by
// a newer one is dropped.
type mirror struct {
	store SubjectStore

	// guarded by Manager.mu
	primed bool
	active bool
	agent  Agent
	issued uint64

	mu      sync.Mutex
	cond    *sync.Cond
	applied uint64
}

// mirrorWrite is a pending SubjectStore update.
type mirrorWrite struct {
	seq uint64
	sub string
}

func newMirror(store SubjectStore) *mirror {
	m := &mirror{store: store}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// sync computes the projection for the given state. It returns the write to
// apply once the manager lock is released, or nil. Must be called with
// Manager.mu held.
func (m *mirror) sync(ready, loading bool, agent Agent) *mirrorWrite {
	active := ready && !loading
	if m.primed && active == m.active && sameAgent(agent, m.agent) {
		return nil
	}

	m.primed = true
	m.active = active
	m.agent = agent

	if !active {
		return nil
	}

	m.issued++
	w := &mirrorWrite{seq: m.issued}
	if agent != nil {
		w.sub = agent.Sub()
	}
	return w
}

// apply performs w unless a newer write has already been applied.
func (m *mirror) apply(w *mirrorWrite) {
	if w == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if w.seq <= m.applied {
		return
	}

	if w.sub != "" {
		m.store.Save(w.sub)
	} else {
		m.store.Clear()
	}

	m.applied = w.seq
	m.cond.Broadcast()
}

// flush blocks until every write up to seq has been applied or overtaken.
func (m *mirror) flush(seq uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for m.applied < seq {
		m.cond.Wait()
	}
}
