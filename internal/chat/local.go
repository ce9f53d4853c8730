package chat

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

// SaveLocal writes the full session snapshot to disk, creating the parent
// directory if necessary.
func SaveLocal(path string, sessions []Session) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(sessions, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadLocal reads the locally persisted session snapshot. A missing file is
// not an error; it yields an empty list.
func LoadLocal(path string) ([]Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var sessions []Session
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// Credentials is the persisted identity pair (username + access token).
type Credentials struct {
	Username string `json:"username"`
	Token    string `json:"token"`
}

// SaveCredentials persists the identity pair with owner-only permissions.
func SaveCredentials(path string, creds Credentials) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// LoadCredentials reads the cached identity; a missing file yields the zero
// value so callers can proceed unauthenticated.
func LoadCredentials(path string) (Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Credentials{}, nil
		}
		return Credentials{}, err
	}
	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return Credentials{}, err
	}
	return creds, nil
}
