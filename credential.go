package request

import (
	"context"
	"fmt"
	"sync"
)

// Tokens is the credential pair persisted across restarts.
type Tokens struct {
	AccessToken  string `json:"access_token" yaml:"access_token"`
	RefreshToken string `json:"refresh_token" yaml:"refresh_token"`
}

// TokenStore is durable token storage. Load returns zero Tokens and a nil
// error when nothing is stored.
type TokenStore interface {
	Load(ctx context.Context) (Tokens, error)
	Save(ctx context.Context, tokens Tokens) error
	Clear(ctx context.Context) error
}

// Credentials holds the access token in memory for the request path and
// delegates the refresh token to a TokenStore. Readers never observe a
// partially updated token.
type Credentials struct {
	mu          sync.RWMutex
	accessToken string
	store       TokenStore
}

// NewCredentials wraps store. A nil store keeps tokens in memory only.
func NewCredentials(store TokenStore) *Credentials {
	if store == nil {
		store = NewMemoryTokenStore()
	}
	return &Credentials{store: store}
}

// AccessToken returns the current access token, empty when logged out.
func (c *Credentials) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// Restore loads persisted tokens into memory. It is called once at startup.
func (c *Credentials) Restore(ctx context.Context) error {
	tokens, err := c.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("restore credentials: %w", err)
	}
	c.mu.Lock()
	c.accessToken = tokens.AccessToken
	c.mu.Unlock()
	return nil
}

// Set replaces both tokens, typically after a login.
func (c *Credentials) Set(ctx context.Context, tokens Tokens) error {
	if err := c.store.Save(ctx, tokens); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	c.mu.Lock()
	c.accessToken = tokens.AccessToken
	c.mu.Unlock()
	return nil
}

// RefreshToken reads the durable refresh token.
func (c *Credentials) RefreshToken(ctx context.Context) (string, error) {
	tokens, err := c.store.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("load refresh token: %w", err)
	}
	return tokens.RefreshToken, nil
}

// rotate stores a refreshed access token and, when the server rotated it, the
// new refresh token. The in-memory token is updated even if persisting fails
// so in-flight waiters can proceed.
func (c *Credentials) rotate(ctx context.Context, accessToken, refreshToken string) error {
	c.mu.Lock()
	c.accessToken = accessToken
	c.mu.Unlock()

	tokens, err := c.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	tokens.AccessToken = accessToken
	if refreshToken != "" {
		tokens.RefreshToken = refreshToken
	}
	if err := c.store.Save(ctx, tokens); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}

// Clear wipes the in-memory token and the durable store.
func (c *Credentials) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.accessToken = ""
	c.mu.Unlock()
	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}

// MemoryTokenStore keeps tokens in process memory.
type MemoryTokenStore struct {
	mu     sync.RWMutex
	tokens Tokens
}

// NewMemoryTokenStore returns an empty in-memory store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (s *MemoryTokenStore) Load(_ context.Context) (Tokens, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens, nil
}

func (s *MemoryTokenStore) Save(_ context.Context, tokens Tokens) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = tokens
	return nil
}

func (s *MemoryTokenStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = Tokens{}
	return nil
}
