// Package tokenstore provides durable request.TokenStore implementations.
package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	request "github.com/zhangxinping666/admin-mp-sub001"
)

const fileHeader = "# Backstage session tokens. DO NOT COMMIT.\n"

// FileStore keeps tokens in a YAML file readable only by the owner.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store backed by path. The file is created on first
// Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the stored tokens. A missing file yields zero tokens.
func (s *FileStore) Load(_ context.Context) (request.Tokens, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return request.Tokens{}, nil
	}
	if err != nil {
		return request.Tokens{}, fmt.Errorf("reading %s: %w", s.path, err)
	}

	var tokens request.Tokens
	if err := yaml.Unmarshal(data, &tokens); err != nil {
		return request.Tokens{}, fmt.Errorf("parsing %s: %w", s.path, err)
	}
	return tokens, nil
}

// Save replaces the file atomically.
func (s *FileStore) Save(_ context.Context, tokens request.Tokens) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := yaml.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("marshaling tokens: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tokens-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.WriteString(fileHeader + string(data)); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", tmpPath, err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("writing %s: %w", s.path, err)
	}
	return nil
}

// Clear removes the file. Clearing an absent file is not an error.
func (s *FileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", s.path, err)
	}
	return nil
}

var _ request.TokenStore = (*FileStore)(nil)
