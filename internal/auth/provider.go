package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prpo-labs/prpo/internal/api"
)

// ErrUnauthenticated means no usable credential exists. It is a
// precondition failure, not an error to surface: callers start a login
// flow instead.
var ErrUnauthenticated = errors.New("not authenticated")

// Provider supplies a short-lived bearer credential on demand.
type Provider interface {
	// Token returns the current bearer token or ErrUnauthenticated.
	Token(ctx context.Context) (string, error)
	// Authenticated reports whether a credential is currently available.
	Authenticated() bool
	// Loading reports whether the authentication status is still being
	// determined. While true, route-driven actions are deferred.
	Loading() bool
}

// LoginNotifier receives progress from a device login flow so the caller
// can show the verification URL and code to the user.
type LoginNotifier func(verificationURI, userCode string)

// Keyring is the production Provider: it restores the token from the
// credential store and runs the backend's device login when asked.
type Keyring struct {
	client  *api.Client
	profile string

	mu      sync.Mutex
	token   string
	loaded  bool
	loading bool
}

func NewKeyring(client *api.Client, profile string) *Keyring {
	return &Keyring{client: client, profile: profile, loading: true}
}

// Restore loads any stored token. It resolves the initial loading state and
// is called once at startup.
func (k *Keyring) Restore() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.restoreLocked()
}

func (k *Keyring) restoreLocked() {
	if k.loaded {
		return
	}
	token, err := LoadToken(k.profile)
	if err == nil {
		k.token = token
	}
	k.loaded = true
	k.loading = false
}

func (k *Keyring) Token(ctx context.Context) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.restoreLocked()
	if strings.TrimSpace(k.token) == "" {
		return "", ErrUnauthenticated
	}
	return k.token, nil
}

func (k *Keyring) Authenticated() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.loaded && strings.TrimSpace(k.token) != ""
}

func (k *Keyring) Loading() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.loading
}

// Login runs the device-authorization flow to completion: starts a grant,
// notifies the caller with the verification details, polls until the user
// approves, then persists the token.
func (k *Keyring) Login(ctx context.Context, notify LoginNotifier) error {
	grant, err := k.client.DeviceStart(ctx)
	if err != nil {
		return err
	}
	if notify != nil {
		notify(grant.VerificationURI, grant.UserCode)
	}

	interval := time.Duration(grant.IntervalSeconds) * time.Second
	deadline := time.Now().Add(time.Duration(grant.ExpiresIn) * time.Second)
	if grant.ExpiresIn <= 0 {
		deadline = time.Now().Add(10 * time.Minute)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
		if time.Now().After(deadline) {
			return errors.New("device login expired before approval")
		}

		token, err := k.client.DeviceToken(ctx, grant.DeviceCode)
		if api.IsAuthorizationPending(err) {
			continue
		}
		if err != nil {
			return err
		}

		if err := StoreToken(k.profile, token); err != nil {
			return fmt.Errorf("persist token: %w", err)
		}
		k.mu.Lock()
		k.token = token
		k.loaded = true
		k.loading = false
		k.mu.Unlock()
		return nil
	}
}

// Logout drops the in-memory token and deletes the stored one.
func (k *Keyring) Logout() error {
	k.mu.Lock()
	k.token = ""
	k.loaded = true
	k.loading = false
	k.mu.Unlock()
	return DeleteToken(k.profile)
}

// Static is a fixed-token Provider used by tests and one-shot subcommands.
type Static struct {
	Value string
}

func (s Static) Token(ctx context.Context) (string, error) {
	if strings.TrimSpace(s.Value) == "" {
		return "", ErrUnauthenticated
	}
	return s.Value, nil
}

func (s Static) Authenticated() bool { return strings.TrimSpace(s.Value) != "" }
func (s Static) Loading() bool       { return false }
