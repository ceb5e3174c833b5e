// Package effect runs asynchronous work bound to a cancellation token that
// is replaced whenever the work's dependency set changes.
//
// A Runner holds at most one live token. Starting a run for a new
// dependency set cancels the previous token before the new one is created,
// so work from a superseded run can always detect that it is stale by
// checking its context before applying any result.
//
// Example:
//
//	r := effect.NewRunner()
//	defer r.Close()
//
//	r.Run(func(ctx context.Context) error {
//	    v, err := fetch(ctx, cfg)
//	    if err != nil {
//	        return err
//	    }
//	    if ctx.Err() != nil {
//	        return nil // superseded
//	    }
//	    apply(v)
//	    return nil
//	}, cfg)
package effect

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/sirupsen/logrus"
)

// Func is an asynchronous operation bound to a cancellation token.
type Func func(ctx context.Context) error

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger used to report rejected runs.
func WithLogger(log *logrus.Entry) Option {
	return func(r *Runner) {
		if log != nil {
			r.log = log
		}
	}
}

// WithContext sets the parent of every token created by the runner.
// Cancelling the parent cancels the live token.
func WithContext(ctx context.Context) Option {
	return func(r *Runner) {
		if ctx != nil {
			r.parent = ctx
		}
	}
}

// Runner owns the cancellation token of the current dependency set.
// It is safe for concurrent use.
type Runner struct {
	mu     sync.Mutex
	parent context.Context
	log    *logrus.Entry

	deps    []any
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	closed  bool

	wg sync.WaitGroup
}

var canceled = func() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}()

// NewRunner creates a Runner with no live token.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		parent: context.Background(),
		log:    logrus.NewEntry(logrus.StandardLogger()).WithField("component", "effect"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start creates a token for deps. If deps equals the dependency set of the
// live token, the live token is returned with started=false and nothing
// else happens. Otherwise the live token is cancelled first and a fresh
// one is returned with started=true.
//
// After Close, Start returns an already-cancelled token.
func (r *Runner) Start(deps ...any) (ctx context.Context, started bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return canceled, false
	}

	if r.started && Equal(r.deps, deps) {
		return r.ctx, false
	}

	if r.cancel != nil {
		r.cancel()
	}

	r.ctx, r.cancel = context.WithCancel(r.parent)
	r.deps = append([]any(nil), deps...)
	r.started = true

	return r.ctx, true
}

// Run starts a token for deps and, when a new token was created, invokes
// fn with it on a separate goroutine. It reports whether fn was invoked.
func (r *Runner) Run(fn Func, deps ...any) bool {
	ctx, started := r.Start(deps...)
	if !started {
		return false
	}
	r.Go(ctx, fn)
	return true
}

// Go invokes fn with ctx on a goroutine tracked by the runner. Errors and
// panics are logged and never propagated. After Close, fn is not run.
func (r *Runner) Go(ctx context.Context, fn Func) {
	if fn == nil {
		return
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		r.invoke(ctx, fn)
	}()
}

func (r *Runner) invoke(ctx context.Context, fn Func) {
	var err error
	func() {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("effect: panic: %v", p)
			}
		}()
		err = fn(ctx)
	}()

	if err == nil {
		return
	}

	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		r.log.WithError(err).Debug("Superseded effect finished with error")
		return
	}

	r.log.WithError(err).Warn("Effect rejected")
}

// Context returns the live token, or a cancelled context if there is none.
func (r *Runner) Context() context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started || r.ctx == nil {
		return canceled
	}
	return r.ctx
}

// Stop cancels the live token and forgets its dependency set, so the next
// Start always creates a new token.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopLocked()
}

func (r *Runner) stopLocked() {
	if r.cancel != nil {
		r.cancel()
	}
	r.ctx = nil
	r.cancel = nil
	r.deps = nil
	r.started = false
}

// Wait blocks until every goroutine started by the runner has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Close cancels the live token, refuses new runs and waits for tracked
// goroutines to return.
func (r *Runner) Close() {
	r.mu.Lock()
	r.stopLocked()
	r.closed = true
	r.mu.Unlock()

	r.wg.Wait()
}

// Equal compares two dependency sets element by element with ==.
// Values whose dynamic type is not comparable never compare equal.
func Equal(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !same(a[i], b[i]) {
			return false
		}
	}
	return true
}

func same(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if reflect.TypeOf(a) != reflect.TypeOf(b) {
		return false
	}
	// Value.Comparable looks through interface fields, so a comparable
	// struct holding a slice is rejected here instead of panicking below.
	if !reflect.ValueOf(a).Comparable() || !reflect.ValueOf(b).Comparable() {
		return false
	}
	return a == b
}
