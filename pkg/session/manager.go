package session

import (
	"context"
	"errors"
	"sync"

	"github.com/jeremyhahn/go-oauthsession/pkg/effect"
	"github.com/sirupsen/logrus"
)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(log *logrus.Entry) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithCallbacks registers transition callbacks.
func WithCallbacks(cb Callbacks) Option {
	return func(m *Manager) {
		m.callbacks = cb
	}
}

// Manager owns the live client and at most one live agent.
// It is safe for concurrent use.
type Manager struct {
	mu        sync.Mutex
	log       *logrus.Entry
	callbacks Callbacks
	subjects  SubjectStore
	mirror    *mirror

	// processed is set once SetClient has run; client is then the last
	// processed identity.
	processed  bool
	client     Client
	agent      Agent
	loading    bool
	signingIn  bool
	signingOut bool
	closed     bool

	// init holds one token per client, watch one per (client, agent).
	init  *effect.Runner
	watch *effect.Runner

	changed chan struct{}
}

// NewManager creates a Manager in the uninitialized state.
func NewManager(subjects SubjectStore, opts ...Option) *Manager {
	m := &Manager{
		subjects: subjects,
		log:      logrus.NewEntry(logrus.StandardLogger()).WithField("component", "session"),
		changed:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.mirror = newMirror(subjects)
	m.init = effect.NewRunner(effect.WithLogger(m.log))
	m.watch = effect.NewRunner(effect.WithLogger(m.log))

	return m
}

// SetClient makes c the live client. A client identical to the last one
// processed is ignored. Any other value, nil included, cancels all work
// tied to the previous client, drops the live agent and, for a non-nil
// client, starts initialization.
func (m *Manager) SetClient(c Client) {
	ctx, w, start := m.setClient(c)
	m.mirror.apply(w)

	if start {
		m.init.Go(ctx, func(ctx context.Context) error {
			return m.restore(ctx, c)
		})
	}
}

func (m *Manager) setClient(c Client) (context.Context, *mirrorWrite, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || (m.processed && sameClient(m.client, c)) {
		return nil, nil, false
	}

	m.processed = true
	m.client = c
	m.agent = nil
	m.loading = c != nil
	m.signingIn = false
	m.signingOut = false
	m.watch.Stop()

	var ctx context.Context
	if c != nil {
		ctx, _ = m.init.Start(c)
	} else {
		m.init.Stop()
	}

	return ctx, m.commitLocked(), c != nil
}

// restore runs client initialization against the persisted subject.
func (m *Manager) restore(ctx context.Context, c Client) error {
	sub, _ := m.subjects.Load()
	res, err := c.Init(ctx, sub)

	m.mu.Lock()
	if ctx.Err() != nil {
		m.mu.Unlock()
		return nil
	}

	m.loading = false

	var notify func()
	switch {
	case errors.Is(err, ErrLoginContinuedInParent):
		m.log.WithError(err).Debug("Login continues in another process")
	case err != nil:
		m.log.WithError(err).WithField("sub", sub).Error("Failed to init")
	case res != nil && res.Agent != nil:
		agent := res.Agent
		m.attachLocked(c, agent)
		if res.Callback {
			state := res.State
			notify = func() { m.signedIn(agent, state) }
		} else {
			notify = func() { m.restored(agent) }
		}
	}

	w := m.commitLocked()
	m.mu.Unlock()
	m.mirror.apply(w)

	if notify != nil {
		notify()
	}
	return nil
}

// attachLocked makes agent live, subscribes to its revocation and kicks
// off a best-effort refresh. Must be called with m.mu held.
func (m *Manager) attachLocked(c Client, agent Agent) {
	m.agent = agent

	ctx, _ := m.watch.Start(c, agent)
	c.Subscribe(ctx, EventDeleted, func(ev Event) {
		m.revoked(ctx, agent, ev)
	})

	m.watch.Go(ctx, func(ctx context.Context) error {
		if err := agent.RefreshIfNeeded(ctx); err != nil {
			m.log.WithError(err).WithField("sub", agent.Sub()).Debug("Refresh failed")
		}
		return nil
	})
}

// revoked handles a deleted event delivered under ctx.
func (m *Manager) revoked(ctx context.Context, agent Agent, ev Event) {
	if ev.Sub != agent.Sub() {
		return
	}

	m.mu.Lock()
	if ctx.Err() != nil || !sameAgent(m.agent, agent) {
		m.mu.Unlock()
		return
	}

	m.log.WithField("sub", ev.Sub).Info("Session deleted")

	m.agent = nil
	m.watch.Stop()
	w := m.commitLocked()
	m.mu.Unlock()
	m.mirror.apply(w)

	m.signedOut()
}

// SignIn runs an interactive sign-in with the live client. It fails fast
// while loading, before a client exists or while signing out. Client
// failures are returned unchanged and leave the manager not loading.
func (m *Manager) SignIn(ctx context.Context, input string, opts *AuthorizeOptions) error {
	m.mu.Lock()
	switch {
	case m.closed:
		m.mu.Unlock()
		return ErrClosed
	case m.loading:
		m.mu.Unlock()
		return ErrLoading
	case m.client == nil:
		m.mu.Unlock()
		return ErrNoClient
	case m.signingOut:
		m.mu.Unlock()
		return ErrBusy
	}

	c := m.client
	token := m.init.Context()
	m.loading = true
	m.signingIn = true
	w := m.commitLocked()
	m.mu.Unlock()
	m.mirror.apply(w)

	callCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(token, cancel)
	agent, err := c.SignIn(callCtx, input, opts)
	stop()
	cancel()

	if err == nil && agent == nil {
		err = ErrNoAgent
	}

	m.mu.Lock()
	if token.Err() != nil {
		m.mu.Unlock()
		return ErrSuperseded
	}

	m.loading = false
	m.signingIn = false

	if err != nil {
		w := m.commitLocked()
		m.mu.Unlock()
		m.mirror.apply(w)
		m.log.WithError(err).WithField("input", input).Error("Failed to sign in")
		return err
	}

	m.attachLocked(c, agent)
	w = m.commitLocked()
	m.mu.Unlock()
	m.mirror.apply(w)

	var state string
	if opts != nil {
		state = opts.State
	}
	m.signedIn(agent, state)
	return nil
}

// SignOut releases the live agent. It is a no-op while loading, while
// another sign-out runs or without an agent. The local session is
// released even when the remote sign-out fails.
func (m *Manager) SignOut(ctx context.Context) {
	m.mu.Lock()
	if m.closed || m.loading || m.agent == nil || m.signingOut {
		m.mu.Unlock()
		return
	}

	agent := m.agent
	token := m.init.Context()
	m.signingOut = true
	w := m.commitLocked()
	m.mu.Unlock()
	m.mirror.apply(w)

	if err := agent.SignOut(ctx); err != nil {
		m.log.WithError(err).WithField("sub", agent.Sub()).Warn("Failed to clear credentials")
	}

	m.mu.Lock()
	if token.Err() != nil {
		m.mu.Unlock()
		return
	}

	m.signingOut = false

	// a deleted event may already have released the agent
	release := sameAgent(m.agent, agent)
	if release {
		m.agent = nil
		m.watch.Stop()
	}

	w = m.commitLocked()
	m.mu.Unlock()
	m.mirror.apply(w)

	if release {
		m.signedOut()
	}
}

// State returns a consistent snapshot.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

func (m *Manager) stateLocked() State {
	return State{
		Client:  m.client,
		Agent:   m.agent,
		Loading: m.client == nil || m.loading,
		Phase:   m.phaseLocked(),
	}
}

func (m *Manager) phaseLocked() Phase {
	switch {
	case m.client == nil:
		return PhaseUninitialized
	case m.signingIn:
		return PhaseSigningIn
	case m.signingOut:
		return PhaseSigningOut
	case m.loading:
		return PhaseLoading
	case m.agent != nil:
		return PhaseLoggedIn
	default:
		return PhaseLoggedOut
	}
}

// Changed returns a channel closed at the next state change.
func (m *Manager) Changed() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.changed
}

// Wait blocks until pred holds for the current state or ctx is done. When
// pred holds, the persisted subject reflects the returned state.
func (m *Manager) Wait(ctx context.Context, pred func(State) bool) (State, error) {
	for {
		m.mu.Lock()
		s := m.stateLocked()
		ch := m.changed
		issued := m.mirror.issued
		m.mu.Unlock()

		if pred(s) {
			m.mirror.flush(issued)
			return s, nil
		}

		select {
		case <-ch:
		case <-ctx.Done():
			return s, ctx.Err()
		}
	}
}

// Close cancels all in-flight work and subscriptions and waits for
// background tasks to return. The state is left as it was.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.init.Stop()
	m.watch.Stop()
	m.mu.Unlock()

	m.init.Close()
	m.watch.Close()
}

// commitLocked computes the subject projection and wakes waiters. The
// returned write must be applied after m.mu is released.
// Must be called with m.mu held.
func (m *Manager) commitLocked() *mirrorWrite {
	w := m.mirror.sync(m.client != nil, m.loading, m.agent)

	close(m.changed)
	m.changed = make(chan struct{})
	return w
}

func (m *Manager) restored(agent Agent) {
	if m.callbacks.OnRestored != nil {
		m.callbacks.OnRestored(agent)
	}
}

func (m *Manager) signedIn(agent Agent, state string) {
	if m.callbacks.OnSignedIn != nil {
		m.callbacks.OnSignedIn(agent, state)
	}
}

func (m *Manager) signedOut() {
	if m.callbacks.OnSignedOut != nil {
		m.callbacks.OnSignedOut()
	}
}

func sameClient(a, b Client) bool {
	return effect.Equal([]any{a}, []any{b})
}

func sameAgent(a, b Agent) bool {
	return effect.Equal([]any{a}, []any{b})
}
