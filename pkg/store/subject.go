package store

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// CurrentSubjectKey is the well-known key holding the last authenticated
// subject. Its absence means logged out.
const CurrentSubjectKey = "CURRENT_AUTHENTICATED_SUB"

// SubjectOption configures a SubjectStore.
type SubjectOption func(*SubjectStore)

// WithKey overrides CurrentSubjectKey.
func WithKey(key string) SubjectOption {
	return func(s *SubjectStore) {
		if key != "" {
			s.key = key
		}
	}
}

// WithTimeout bounds every backend call.
func WithTimeout(d time.Duration) SubjectOption {
	return func(s *SubjectStore) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets the logger used to report backend failures.
func WithLogger(log *logrus.Entry) SubjectOption {
	return func(s *SubjectStore) {
		if log != nil {
			s.log = log
		}
	}
}

// SubjectStore persists a single subject identifier. It never reports
// errors: a failing backend is logged and reads as absent.
type SubjectStore struct {
	backend Backend
	key     string
	timeout time.Duration
	log     *logrus.Entry
}

// NewSubjectStore creates a SubjectStore over backend.
func NewSubjectStore(backend Backend, opts ...SubjectOption) *SubjectStore {
	s := &SubjectStore{
		backend: backend,
		key:     CurrentSubjectKey,
		timeout: 2 * time.Second,
		log:     logrus.NewEntry(logrus.StandardLogger()).WithField("component", "store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save records subject as the current one.
func (s *SubjectStore) Save(subject string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.backend.Set(ctx, s.key, subject); err != nil {
		s.log.WithError(err).WithField("key", s.key).Warn("Failed to save current subject")
	}
}

// Load returns the current subject, if any.
func (s *SubjectStore) Load() (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	v, ok, err := s.backend.Get(ctx, s.key)
	if err != nil {
		s.log.WithError(err).WithField("key", s.key).Warn("Failed to load current subject")
		return "", false
	}
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Clear removes the current subject.
func (s *SubjectStore) Clear() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.backend.Delete(ctx, s.key); err != nil {
		s.log.WithError(err).WithField("key", s.key).Warn("Failed to clear current subject")
	}
}
