package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	apperrors "atsbeaters/internal/errors"
)

// StorageKey names the single persisted record
const StorageKey = "atsbeaters_user"

// Store persists the raw user record. An empty slice from Load means no user.
type Store interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
	Clear(ctx context.Context) error
}

// FileStore keeps the record as a JSON file in a data directory
type FileStore struct {
	dir string
}

// NewFileStore creates the data directory if needed
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, apperrors.NewConfigError(apperrors.ErrCodeInvalidConfig, "session data directory is empty", nil)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, apperrors.NewIOError(apperrors.ErrCodeStoreFailed, "failed to create session directory", err).
			WithContext("dir", dir)
	}
	return &FileStore{dir: dir}, nil
}

// Path returns the file holding the record
func (s *FileStore) Path() string {
	return filepath.Join(s.dir, StorageKey+".json")
}

func (s *FileStore) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewIOError(apperrors.ErrCodeStoreFailed, "failed to read session", err).
			WithContext("path", s.Path())
	}
	return data, nil
}

// Save writes to a temp file in the same directory, then renames it into place
func (s *FileStore) Save(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, StorageKey+".*.tmp")
	if err != nil {
		return apperrors.NewIOError(apperrors.ErrCodeStoreFailed, "failed to create temp session file", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return apperrors.NewIOError(apperrors.ErrCodeStoreFailed, "failed to write session", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return apperrors.NewIOError(apperrors.ErrCodeStoreFailed, "failed to set session permissions", err)
	}
	if err := tmp.Close(); err != nil {
		return apperrors.NewIOError(apperrors.ErrCodeStoreFailed, "failed to close session file", err)
	}
	if err := os.Rename(tmpName, s.Path()); err != nil {
		return apperrors.NewIOError(apperrors.ErrCodeStoreFailed, "failed to replace session file", err)
	}
	return nil
}

func (s *FileStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(s.Path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return apperrors.NewIOError(apperrors.ErrCodeStoreFailed, "failed to remove session", err)
	}
	return nil
}

// MemoryStore keeps the record in memory
type MemoryStore struct {
	mu   sync.Mutex
	data []byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return nil, nil
	}
	return append([]byte(nil), s.data...), nil
}

func (s *MemoryStore) Save(ctx context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append([]byte(nil), data...)
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = nil
	return nil
}

// Backend names accepted by OpenStore
const (
	BackendFile     = "file"
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// OpenStore builds the store for a configured backend. The returned close
// function is always non-nil.
func OpenStore(ctx context.Context, backend, dataDir, databaseURL string) (Store, func(), error) {
	noop := func() {}
	switch backend {
	case BackendFile, "":
		s, err := NewFileStore(dataDir)
		return s, noop, err
	case BackendMemory:
		return NewMemoryStore(), noop, nil
	case BackendPostgres:
		s, err := NewPostgresStore(ctx, databaseURL)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	default:
		return nil, noop, apperrors.NewConfigError(apperrors.ErrCodeInvalidConfig,
			fmt.Sprintf("unknown session backend %q", backend), nil)
	}
}
