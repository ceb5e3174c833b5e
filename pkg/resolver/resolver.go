// Package resolver turns a client configuration value into the single live
// session.Client, loading it asynchronously when needed.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jeremyhahn/go-oauthsession/pkg/effect"
	"github.com/jeremyhahn/go-oauthsession/pkg/session"
	"github.com/sirupsen/logrus"
)

var (
	// ErrBuildFailed wraps an error returned by a Builder.
	ErrBuildFailed = errors.New("resolver: client construction failed")

	// ErrLoadFailed wraps an error returned by a Loader.
	ErrLoadFailed = errors.New("resolver: client load failed")

	// ErrNoClient indicates a source produced no client and no error.
	ErrNoClient = errors.New("resolver: source produced no client")

	// ErrClosed indicates the resolver has been closed.
	ErrClosed = errors.New("resolver: closed")
)

// Source is a client configuration value. Sources are compared by pointer
// identity: resolving the same pointer twice is a no-op.
type Source interface {
	source()
}

// Instance is an already constructed client.
type Instance struct {
	Client session.Client
}

// Builder constructs a client synchronously.
type Builder struct {
	Build func() (session.Client, error)
}

// Loader loads a client asynchronously. Load must honour ctx.
type Loader struct {
	Load func(ctx context.Context) (session.Client, error)
}

func (*Instance) source() {}
func (*Builder) source()  {}
func (*Loader) source()   {}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the resolver's logger.
func WithLogger(log *logrus.Entry) Option {
	return func(r *Resolver) {
		if log != nil {
			r.log = log
		}
	}
}

// WithErrorHandler registers a handler for asynchronous load failures of
// the current source. It is invoked outside the resolver lock.
func WithErrorHandler(fn func(error)) Option {
	return func(r *Resolver) {
		r.onError = fn
	}
}

// Resolver tracks the latest Source and publishes its client through apply.
type Resolver struct {
	mu      sync.Mutex
	log     *logrus.Entry
	apply   func(session.Client)
	onError func(error)
	loads   *effect.Runner

	src    Source
	client session.Client
	err    error
	closed bool
}

// New creates a Resolver. apply receives every change of the live client,
// nil meaning none, and is called with the resolver lock held so that a
// superseded result can never be published after a newer one.
func New(apply func(session.Client), opts ...Option) *Resolver {
	r := &Resolver{
		apply: apply,
		log:   logrus.NewEntry(logrus.StandardLogger()).WithField("component", "resolver"),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.loads = effect.NewRunner(effect.WithLogger(r.log))
	return r
}

// Resolve makes src the current source. Instance and Builder sources are
// applied before Resolve returns. A Loader source clears the live client and
// loads in the background; its failure is reported through the error
// handler and Err. Any in-flight load for an earlier source is cancelled.
func (r *Resolver) Resolve(src Source) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if r.src != nil && r.src == src {
		return nil
	}

	r.src = src
	r.err = nil

	switch s := src.(type) {
	case *Loader:
		ctx, _ := r.loads.Start(s)
		r.setLocked(nil)
		r.log.Debug("Loading client")
		r.loads.Go(ctx, func(ctx context.Context) error {
			r.load(ctx, s)
			return nil
		})
		return nil

	case *Builder:
		r.loads.Stop()
		c, err := s.Build()
		if err == nil && c == nil {
			err = ErrNoClient
		}
		if err != nil {
			r.err = fmt.Errorf("%w: %w", ErrBuildFailed, err)
			r.setLocked(nil)
			return r.err
		}
		r.setLocked(c)
		return nil

	case *Instance:
		r.loads.Stop()
		if s == nil {
			r.setLocked(nil)
			return nil
		}
		r.setLocked(s.Client)
		return nil

	default:
		r.loads.Stop()
		r.setLocked(nil)
		return nil
	}
}

func (r *Resolver) load(ctx context.Context, s *Loader) {
	c, err := s.Load(ctx)
	if err == nil && c == nil {
		err = ErrNoClient
	}

	r.mu.Lock()
	if ctx.Err() != nil {
		r.mu.Unlock()
		r.log.Debug("Discarding superseded client load")
		return
	}

	if err != nil {
		r.err = fmt.Errorf("%w: %w", ErrLoadFailed, err)
		failure := r.err
		r.mu.Unlock()

		r.log.WithError(err).Error("Failed to load client")
		if r.onError != nil {
			r.onError(failure)
		}
		return
	}

	r.setLocked(c)
	r.mu.Unlock()
}

func (r *Resolver) setLocked(c session.Client) {
	if r.client == nil && c == nil {
		return
	}
	r.client = c
	if r.apply != nil {
		r.apply(c)
	}
}

// Client returns the live client, or nil while loading or after a failure.
func (r *Resolver) Client() session.Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.client
}

// Err returns the failure of the current source, if any.
func (r *Resolver) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Close cancels any in-flight load and waits for it to return.
func (r *Resolver) Close() {
	r.mu.Lock()
	r.closed = true
	r.loads.Stop()
	r.mu.Unlock()

	r.loads.Close()
}
