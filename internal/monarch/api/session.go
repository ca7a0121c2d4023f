package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"monarch/internal/monarch"
)

// FileSessionStore keeps the session token in a JSON file, created 0600
// since the token grants full account access.
type FileSessionStore struct {
	path string
}

var _ monarch.SessionStore = (*FileSessionStore)(nil)

func NewFileSessionStore(path string) (*FileSessionStore, error) {
	if path == "" {
		return nil, errors.New("empty session file path")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create session directory: %w", err)
		}
	}
	return &FileSessionStore{path: path}, nil
}

func (s *FileSessionStore) Load() (monarch.Session, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return monarch.Session{}, monarch.ErrNoSession
		}
		return monarch.Session{}, fmt.Errorf("read session file: %w", err)
	}

	var sess monarch.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return monarch.Session{}, fmt.Errorf("decode session file: %w", err)
	}
	if sess.Token == "" {
		return monarch.Session{}, monarch.ErrNoSession
	}
	return sess, nil
}

func (s *FileSessionStore) Save(sess monarch.Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return nil
}

func (s *FileSessionStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}
