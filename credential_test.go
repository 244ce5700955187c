package request

import (
	"context"
	"errors"
	"testing"
)

type failingStore struct {
	MemoryTokenStore
	saveErr error
}

func (s *failingStore) Save(ctx context.Context, tokens Tokens) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	return s.MemoryTokenStore.Save(ctx, tokens)
}

func TestCredentialsLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryTokenStore()
	credentials := NewCredentials(store)

	if credentials.AccessToken() != "" {
		t.Errorf("Expected empty access token, got %q", credentials.AccessToken())
	}

	if err := credentials.Set(ctx, Tokens{AccessToken: "T1", RefreshToken: "R1"}); err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}
	if credentials.AccessToken() != "T1" {
		t.Errorf("Expected T1, got %q", credentials.AccessToken())
	}
	if stored, _ := store.Load(ctx); stored.RefreshToken != "R1" {
		t.Errorf("Expected stored refresh token R1, got %q", stored.RefreshToken)
	}

	if err := credentials.Clear(ctx); err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}
	if credentials.AccessToken() != "" {
		t.Errorf("Expected cleared access token, got %q", credentials.AccessToken())
	}
	if stored, _ := store.Load(ctx); stored != (Tokens{}) {
		t.Errorf("Expected empty store, got %+v", stored)
	}
}

func TestCredentialsRestore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryTokenStore()
	_ = store.Save(ctx, Tokens{AccessToken: "saved", RefreshToken: "R"})

	credentials := NewCredentials(store)
	if err := credentials.Restore(ctx); err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}
	if credentials.AccessToken() != "saved" {
		t.Errorf("Expected restored token, got %q", credentials.AccessToken())
	}
}

func TestCredentialsRotateKeepsMemoryTokenOnSaveError(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{}
	credentials := NewCredentials(store)
	_ = credentials.Set(ctx, Tokens{AccessToken: "T1", RefreshToken: "R1"})

	store.saveErr = errors.New("disk full")
	err := credentials.rotate(ctx, "T2", "")
	if err == nil {
		t.Error("Expected save error")
	}
	if credentials.AccessToken() != "T2" {
		t.Errorf("Expected in-memory T2 despite save failure, got %q", credentials.AccessToken())
	}
}

func TestCredentialsNilStore(t *testing.T) {
	credentials := NewCredentials(nil)
	refreshToken, err := credentials.RefreshToken(context.Background())
	if err != nil || refreshToken != "" {
		t.Errorf("Expected empty refresh token, got %q, %v", refreshToken, err)
	}
}
