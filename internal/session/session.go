// Package session stores the bearer token and signed-in user between runs.
// The backend owns authentication; this package only keeps what it returned.
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/five82/roomwatch/internal/config"
)

const defaultSessionPath = "~/.config/roomwatch/session.toml"

// Session is the persisted login state.
type Session struct {
	Token     string `toml:"token"`
	UserID    string `toml:"user_id"`
	UserName  string `toml:"user_name,omitempty"`
	UserEmail string `toml:"user_email"`
}

// Valid reports whether the session carries a token.
func (s Session) Valid() bool {
	return strings.TrimSpace(s.Token) != ""
}

// DefaultPath returns the default session file path.
func DefaultPath() string {
	return defaultSessionPath
}

// Load reads the session file. A missing file yields an empty session.
func Load(path string) (Session, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Session{}, err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Session{}, nil
		}
		return Session{}, fmt.Errorf("read session: %w", err)
	}
	var s Session
	if err := toml.Unmarshal(data, &s); err != nil {
		return Session{}, fmt.Errorf("parse session: %w", err)
	}
	s.Token = strings.TrimSpace(s.Token)
	return s, nil
}

// Save writes the session readable by the current user only.
func Save(path string, s Session) error {
	resolved, err := resolvePath(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	data, err := toml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := os.WriteFile(resolved, data, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// Clear removes the session file. A missing file is not an error.
func Clear(path string) error {
	resolved, err := resolvePath(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	if err := os.Remove(resolved); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return config.ExpandPath(defaultSessionPath)
	}
	return config.ExpandPath(path)
}
