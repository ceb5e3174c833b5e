// Package store provides small string key-value backends used to persist
// session state outside process memory, and the SubjectStore that mirrors
// the currently authenticated subject.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

var (
	// ErrInvalidConfiguration indicates the store configuration is invalid.
	ErrInvalidConfiguration = errors.New("store: invalid configuration")

	// ErrBackendNotSupported indicates an unknown backend name.
	ErrBackendNotSupported = errors.New("store: backend not supported")

	// ErrUnavailable indicates the backing store could not be reached.
	ErrUnavailable = errors.New("store: backend unavailable")
)

// Backend is a string key-value store.
type Backend interface {
	// Get returns the value stored under key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// BackendType names a Backend implementation.
type BackendType string

const (
	BackendMemory BackendType = "memory"
	BackendFile   BackendType = "file"
	BackendRedis  BackendType = "redis"
)

// Config selects and configures a Backend.
type Config struct {
	// Backend is the backend type. Default: memory.
	Backend BackendType

	// Path is the yaml file used by the file backend.
	// Default: $HOME/.config/oauthsession/session.yaml
	Path string

	// RedisAddr is the redis server address for the redis backend.
	RedisAddr string

	// RedisPassword is the optional redis password.
	RedisPassword string

	// RedisDB selects the redis database.
	RedisDB int

	// Prefix is prepended to every key by the redis backend.
	// Default: "oauthsession:"
	Prefix string

	// Timeout bounds each SubjectStore call. Default: 2 seconds.
	Timeout time.Duration
}

// Validate checks the configuration and fills defaults.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalidConfiguration)
	}

	if c.Backend == "" {
		c.Backend = BackendMemory
	}

	switch c.Backend {
	case BackendMemory:
	case BackendFile:
		if strings.TrimSpace(c.Path) == "" {
			path, err := DefaultPath()
			if err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
			}
			c.Path = path
		}
	case BackendRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			return fmt.Errorf("%w: redis_addr required for redis backend", ErrInvalidConfiguration)
		}
		if c.Prefix == "" {
			c.Prefix = "oauthsession:"
		}
	default:
		return fmt.Errorf("%w: %s", ErrBackendNotSupported, c.Backend)
	}

	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Second
	}

	return nil
}

// Open validates cfg and returns the configured Backend.
func Open(cfg *Config) (Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case BackendFile:
		return NewFile(cfg.Path)
	case BackendRedis:
		return NewRedis(newRedisClient(cfg), cfg.Prefix), nil
	default:
		return NewMemory(), nil
	}
}

// Memory is an in-process Backend.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

// Get implements Backend.
func (m *Memory) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	return v, ok, nil
}

// Set implements Backend.
func (m *Memory) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = value
	return nil
}

// Delete implements Backend.
func (m *Memory) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.values, key)
	return nil
}
