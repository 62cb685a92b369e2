package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
)

const credentialService = "prpo"

// tokenKey is the single keyring entry: one bearer token per backend host.
const tokenKey = "token"

var ErrCredentialNotFound = errors.New("credential not found")

var (
	credentialFileMu sync.Mutex
	keyringGet       = keyring.Get
	keyringSet       = keyring.Set
	keyringDelete    = keyring.Delete
	userHomeDir      = os.UserHomeDir
)

func credentialName(profile string) string {
	profile = strings.TrimSpace(profile)
	if profile == "" {
		return tokenKey
	}
	return tokenKey + ":" + profile
}

// StoreToken saves the bearer token for a backend profile, preferring the
// system keyring and falling back to an owner-only file.
func StoreToken(profile, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("token is empty")
	}
	name := credentialName(profile)

	if err := keyringSet(credentialService, name, token); err == nil {
		return nil
	}

	credentialFileMu.Lock()
	defer credentialFileMu.Unlock()

	entries, err := readCredentialFileUnlocked()
	if err != nil {
		return err
	}
	entries[name] = token
	return writeCredentialFileUnlocked(entries)
}

// LoadToken returns the stored bearer token for a backend profile, or
// ErrCredentialNotFound.
func LoadToken(profile string) (string, error) {
	name := credentialName(profile)

	if token, err := keyringGet(credentialService, name); err == nil {
		token = strings.TrimSpace(token)
		if token != "" {
			return token, nil
		}
	}

	credentialFileMu.Lock()
	defer credentialFileMu.Unlock()

	entries, err := readCredentialFileUnlocked()
	if err != nil {
		return "", err
	}
	token := strings.TrimSpace(entries[name])
	if token == "" {
		return "", ErrCredentialNotFound
	}
	return token, nil
}

// DeleteToken removes the stored token from both the keyring and the
// fallback file. Missing entries are not an error.
func DeleteToken(profile string) error {
	name := credentialName(profile)
	_ = keyringDelete(credentialService, name)

	credentialFileMu.Lock()
	defer credentialFileMu.Unlock()

	entries, err := readCredentialFileUnlocked()
	if err != nil {
		return err
	}
	if _, ok := entries[name]; !ok {
		return nil
	}
	delete(entries, name)
	return writeCredentialFileUnlocked(entries)
}

func credentialFilePath() (string, error) {
	home, err := userHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	home = strings.TrimSpace(home)
	if home == "" {
		return "", errors.New("home directory is empty")
	}
	return filepath.Join(home, ".config", "prpo", "credentials.json"), nil
}

func readCredentialFileUnlocked() (map[string]string, error) {
	path, err := credentialFilePath()
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credential file: %w", err)
	}
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return map[string]string{}, nil
	}
	entries := make(map[string]string)
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode credential file: %w", err)
	}
	clean := make(map[string]string, len(entries))
	for k, v := range entries {
		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		clean[k] = v
	}
	return clean, nil
}

func writeCredentialFileUnlocked(entries map[string]string) error {
	path, err := credentialFilePath()
	if err != nil {
		return err
	}
	if entries == nil {
		entries = map[string]string{}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create credential directory: %w", err)
	}
	payload, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credential file: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, payload, 0o600); err != nil {
		return fmt.Errorf("write credential temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replace credential file: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		return fmt.Errorf("set credential file permissions: %w", err)
	}
	return nil
}
