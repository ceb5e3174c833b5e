package oauth

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jeremyhahn/go-oauthsession/pkg/store"
)

const sessionKeyPrefix = "session:"

// sessionStore persists one TokenSet per subject.
type sessionStore struct {
	backend store.Backend
}

func (s *sessionStore) get(ctx context.Context, sub string) (*TokenSet, error) {
	raw, ok, err := s.backend.Get(ctx, sessionKeyPrefix+sub)
	if err != nil {
		return nil, fmt.Errorf("oauth: failed to read session: %w", err)
	}
	if !ok {
		return nil, ErrSessionNotFound
	}

	var ts TokenSet
	if err := json.Unmarshal([]byte(raw), &ts); err != nil {
		return nil, fmt.Errorf("%w: corrupt session: %v", ErrSessionNotFound, err)
	}
	if ts.Subject != sub {
		return nil, fmt.Errorf("%w: stored subject %q", ErrSessionNotFound, ts.Subject)
	}

	return &ts, nil
}

func (s *sessionStore) put(ctx context.Context, ts *TokenSet) error {
	data, err := json.Marshal(ts)
	if err != nil {
		return err
	}
	if err := s.backend.Set(ctx, sessionKeyPrefix+ts.Subject, string(data)); err != nil {
		return fmt.Errorf("oauth: failed to store session: %w", err)
	}
	return nil
}

func (s *sessionStore) delete(ctx context.Context, sub string) error {
	if err := s.backend.Delete(ctx, sessionKeyPrefix+sub); err != nil {
		return fmt.Errorf("oauth: failed to delete session: %w", err)
	}
	return nil
}
