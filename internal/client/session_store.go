package client

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"
)

var errMissingSessionPath = errors.New("client: session path required")

// Session is the signed-in state kept between runs.
type Session struct {
	AccessToken string    `json:"access_token"`
	UserID      string    `json:"user_id"`
	Email       string    `json:"email"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Valid reports whether the session carries a token that has not expired at now.
func (s Session) Valid(now time.Time) bool {
	return s.AccessToken != "" && (s.ExpiresAt.IsZero() || now.Before(s.ExpiresAt))
}

// SessionStore persists the current session.
type SessionStore interface {
	Load() (Session, bool, error)
	Save(Session) error
	Clear() error
}

// MemorySessionStore keeps the session in process memory.
type MemorySessionStore struct {
	mu      sync.Mutex
	session Session
	present bool
}

func (m *MemorySessionStore) Load() (Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session, m.present, nil
}

func (m *MemorySessionStore) Save(session Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = session
	m.present = true
	return nil
}

func (m *MemorySessionStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = Session{}
	m.present = false
	return nil
}

// FileSessionStore keeps the session as a JSON document on a filesystem.
type FileSessionStore struct {
	filesystem afero.Fs
	path       string
}

// NewFileSessionStore stores the session at path. A nil filesystem uses the OS filesystem.
func NewFileSessionStore(filesystem afero.Fs, path string) (*FileSessionStore, error) {
	if path == "" {
		return nil, errMissingSessionPath
	}
	if filesystem == nil {
		filesystem = afero.NewOsFs()
	}
	return &FileSessionStore{filesystem: filesystem, path: path}, nil
}

func (f *FileSessionStore) Load() (Session, bool, error) {
	content, err := afero.ReadFile(f.filesystem, f.path)
	if errors.Is(err, os.ErrNotExist) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, err
	}
	var session Session
	if err := json.Unmarshal(content, &session); err != nil {
		return Session{}, false, err
	}
	return session, true, nil
}

func (f *FileSessionStore) Save(session Session) error {
	content, err := json.Marshal(session)
	if err != nil {
		return err
	}
	if err := f.filesystem.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	return afero.WriteFile(f.filesystem, f.path, content, 0o600)
}

func (f *FileSessionStore) Clear() error {
	err := f.filesystem.Remove(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
