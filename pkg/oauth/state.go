package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/jeremyhahn/go-oauthsession/pkg/store"
)

const (
	stateKeyPrefix   = "state:"
	handoffKeyPrefix = "handoff:"
)

// pendingAuthorization is what a sign-in leaves behind while the user is at
// the authorization server.
type pendingAuthorization struct {
	// Verifier is the PKCE code verifier.
	Verifier string `json:"verifier"`

	// AppState is returned to the application with the signed-in agent.
	AppState string `json:"app_state,omitempty"`

	// Handoff marks a request whose redirect is delivered to the waiting
	// process instead of being completed by whoever receives it.
	Handoff bool `json:"handoff,omitempty"`

	ExpiresAt time.Time `json:"expires_at"`
}

func (p *pendingAuthorization) expired() bool {
	return !p.ExpiresAt.IsZero() && time.Now().After(p.ExpiresAt)
}

// ttlSetter is implemented by backends with native expiry.
type ttlSetter interface {
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
}

// stateStore keeps pending authorization requests in a backend so that a
// redirect received by another process can be matched to its request.
type stateStore struct {
	backend store.Backend
	ttl     time.Duration
}

func newStateStore(backend store.Backend, ttl time.Duration) *stateStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &stateStore{backend: backend, ttl: ttl}
}

// create stores p under a new random state and returns the state.
func (s *stateStore) create(ctx context.Context, p *pendingAuthorization) (string, error) {
	state := uuid.NewString()
	p.ExpiresAt = time.Now().Add(s.ttl)

	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}

	if err := s.set(ctx, stateKeyPrefix+state, string(data)); err != nil {
		return "", fmt.Errorf("oauth: failed to store authorization state: %w", err)
	}
	return state, nil
}

// get returns the pending request for state. Expired entries are removed.
func (s *stateStore) get(ctx context.Context, state string) (*pendingAuthorization, error) {
	raw, ok, err := s.backend.Get(ctx, stateKeyPrefix+state)
	if err != nil {
		return nil, fmt.Errorf("oauth: failed to read authorization state: %w", err)
	}
	if !ok {
		return nil, ErrStateNotFound
	}

	var p pendingAuthorization
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		s.delete(ctx, state)
		return nil, fmt.Errorf("%w: %v", ErrStateNotFound, err)
	}

	if p.expired() {
		s.delete(ctx, state)
		return nil, ErrStateExpired
	}

	return &p, nil
}

// delete removes the pending request and any undelivered redirect.
func (s *stateStore) delete(ctx context.Context, state string) {
	s.backend.Delete(ctx, stateKeyPrefix+state)
	s.backend.Delete(ctx, handoffKeyPrefix+state)
}

// deliver hands a received redirect to the process waiting on state.
func (s *stateStore) deliver(ctx context.Context, state string, params url.Values) error {
	if err := s.set(ctx, handoffKeyPrefix+state, params.Encode()); err != nil {
		return fmt.Errorf("oauth: failed to deliver redirect: %w", err)
	}
	return nil
}

// take returns and removes a redirect delivered for state.
func (s *stateStore) take(ctx context.Context, state string) (url.Values, bool, error) {
	raw, ok, err := s.backend.Get(ctx, handoffKeyPrefix+state)
	if err != nil || !ok {
		return nil, false, err
	}

	if err := s.backend.Delete(ctx, handoffKeyPrefix+state); err != nil {
		return nil, false, err
	}

	params, err := url.ParseQuery(raw)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrAuthorizationFailed, err)
	}
	return params, true, nil
}

func (s *stateStore) set(ctx context.Context, key, value string) error {
	if b, ok := s.backend.(ttlSetter); ok {
		return b.SetWithTTL(ctx, key, value, s.ttl)
	}
	return s.backend.Set(ctx, key, value)
}
