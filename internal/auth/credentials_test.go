package auth

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// stubKeyring routes the keyring seams at an in-memory map, or at a failing
// backend so the file fallback kicks in. Restores the real functions and
// points the credential file at a temp home.
func stubKeyring(t *testing.T, broken bool) map[string]string {
	t.Helper()

	store := map[string]string{}
	origGet, origSet, origDelete, origHome := keyringGet, keyringSet, keyringDelete, userHomeDir
	t.Cleanup(func() {
		keyringGet, keyringSet, keyringDelete, userHomeDir = origGet, origSet, origDelete, origHome
	})

	errUnavailable := errors.New("keyring unavailable")
	keyringGet = func(service, name string) (string, error) {
		if broken {
			return "", errUnavailable
		}
		token, ok := store[service+"/"+name]
		if !ok {
			return "", errUnavailable
		}
		return token, nil
	}
	keyringSet = func(service, name, token string) error {
		if broken {
			return errUnavailable
		}
		store[service+"/"+name] = token
		return nil
	}
	keyringDelete = func(service, name string) error {
		delete(store, service+"/"+name)
		return nil
	}

	home := t.TempDir()
	userHomeDir = func() (string, error) { return home, nil }
	return store
}

func TestStoreAndLoadTokenViaKeyring(t *testing.T) {
	stubKeyring(t, false)

	if err := StoreToken("default", "secret-1"); err != nil {
		t.Fatalf("store token: %v", err)
	}
	token, err := LoadToken("default")
	if err != nil {
		t.Fatalf("load token: %v", err)
	}
	if token != "secret-1" {
		t.Fatalf("unexpected token %q", token)
	}
}

func TestProfilesAreIsolated(t *testing.T) {
	stubKeyring(t, false)

	if err := StoreToken("work", "work-token"); err != nil {
		t.Fatalf("store token: %v", err)
	}
	if _, err := LoadToken("personal"); !errors.Is(err, ErrCredentialNotFound) {
		t.Fatalf("expected ErrCredentialNotFound for other profile, got %v", err)
	}
}

func TestFileFallbackWhenKeyringUnavailable(t *testing.T) {
	stubKeyring(t, true)

	if err := StoreToken("default", "fallback-token"); err != nil {
		t.Fatalf("store token: %v", err)
	}

	path, err := credentialFilePath()
	if err != nil {
		t.Fatalf("credential path: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("expected credential file at %s: %v", path, err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected 0600 permissions, got %o", perm)
	}
	if filepath.Base(path) != "credentials.json" {
		t.Fatalf("unexpected file name %q", path)
	}

	token, err := LoadToken("default")
	if err != nil {
		t.Fatalf("load token: %v", err)
	}
	if token != "fallback-token" {
		t.Fatalf("unexpected token %q", token)
	}
}

func TestDeleteTokenRemovesBothStores(t *testing.T) {
	store := stubKeyring(t, false)

	if err := StoreToken("default", "secret"); err != nil {
		t.Fatalf("store token: %v", err)
	}
	if err := DeleteToken("default"); err != nil {
		t.Fatalf("delete token: %v", err)
	}
	if len(store) != 0 {
		t.Fatalf("expected empty keyring, got %v", store)
	}
	if _, err := LoadToken("default"); !errors.Is(err, ErrCredentialNotFound) {
		t.Fatalf("expected ErrCredentialNotFound after delete, got %v", err)
	}
}

func TestDeleteMissingTokenIsNotAnError(t *testing.T) {
	stubKeyring(t, false)

	if err := DeleteToken("never-stored"); err != nil {
		t.Fatalf("expected nil for missing entry, got %v", err)
	}
}

func TestStoreEmptyTokenRejected(t *testing.T) {
	stubKeyring(t, false)

	if err := StoreToken("default", "  "); err == nil {
		t.Fatal("expected error for blank token")
	}
}

func TestKeyringProviderRestore(t *testing.T) {
	stubKeyring(t, false)
	if err := StoreToken("default", "restored"); err != nil {
		t.Fatalf("store token: %v", err)
	}

	k := NewKeyring(nil, "default")
	if !k.Loading() {
		t.Fatal("expected loading before restore")
	}

	k.Restore()
	if k.Loading() {
		t.Fatal("expected loading resolved after restore")
	}
	if !k.Authenticated() {
		t.Fatal("expected authenticated after restore")
	}
	token, err := k.Token(context.Background())
	if err != nil || token != "restored" {
		t.Fatalf("unexpected token %q, err %v", token, err)
	}
}

func TestKeyringProviderLogout(t *testing.T) {
	stubKeyring(t, false)
	if err := StoreToken("default", "secret"); err != nil {
		t.Fatalf("store token: %v", err)
	}

	k := NewKeyring(nil, "default")
	k.Restore()
	if err := k.Logout(); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if k.Authenticated() {
		t.Fatal("expected unauthenticated after logout")
	}
	if _, err := k.Token(context.Background()); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestStaticProvider(t *testing.T) {
	t.Parallel()

	s := Static{Value: "fixed"}
	token, err := s.Token(context.Background())
	if err != nil || token != "fixed" {
		t.Fatalf("unexpected token %q, err %v", token, err)
	}
	if !s.Authenticated() || s.Loading() {
		t.Fatal("expected authenticated, not loading")
	}

	empty := Static{}
	if _, err := empty.Token(context.Background()); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for empty static token, got %v", err)
	}
}
