package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// fileVersion is written into every file the File backend produces.
const fileVersion = "1.0"

// fileDocument is the on-disk layout of the File backend.
type fileDocument struct {
	Version   string            `yaml:"version"`
	Timestamp time.Time         `yaml:"timestamp"`
	Values    map[string]string `yaml:"values"`
}

// File is a Backend persisted as a yaml document readable only by its
// owner. Every operation re-reads the file so that several processes
// sharing it observe each other's writes.
type File struct {
	mu   sync.Mutex
	path string
}

// DefaultPath returns $HOME/.config/oauthsession/session.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "oauthsession", "session.yaml"), nil
}

// NewFile returns a File backend at path, creating its directory.
func NewFile(path string) (*File, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: file path is required", ErrInvalidConfiguration)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return &File{path: path}, nil
}

// Path returns the backing file path.
func (f *File) Path() string {
	return f.path
}

// Get implements Backend.
func (f *File) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		return "", false, err
	}

	v, ok := doc.Values[key]
	return v, ok, nil
}

// Set implements Backend.
func (f *File) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		return err
	}

	doc.Values[key] = value
	return f.write(doc)
}

// Delete implements Backend.
func (f *File) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		return err
	}

	if _, ok := doc.Values[key]; !ok {
		return nil
	}

	delete(doc.Values, key)
	return f.write(doc)
}

// read loads the document. A missing or empty file reads as an empty
// document. An unparsable file is reported as ErrUnavailable and left for
// the user to repair. Must be called with f.mu held.
func (f *File) read() (*fileDocument, error) {
	empty := &fileDocument{Version: fileVersion, Values: make(map[string]string)}

	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return empty, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if len(data) == 0 {
		return empty, nil
	}

	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s: %v", ErrUnavailable, f.path, err)
	}
	if doc.Values == nil {
		doc.Values = make(map[string]string)
	}

	return &doc, nil
}

// write replaces the file atomically. Must be called with f.mu held.
func (f *File) write(doc *fileDocument) error {
	doc.Version = fileVersion
	doc.Timestamp = time.Now().UTC()

	data, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".session-*.yaml")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return nil
}
