package storage

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/teracrafts/posthog-go/errors"
	"github.com/teracrafts/posthog-go/types"
)

// FileStore keeps named documents as files in one directory. Writes are
// atomic: a document is written to a temporary file and renamed into place.
type FileStore struct {
	dir    string
	cipher *Cipher
	logger types.Logger
	mu     sync.Mutex
}

// FileStoreConfig contains file store configuration.
type FileStoreConfig struct {
	Dir string

	// Encrypt seals documents with a key derived from APIKey.
	Encrypt bool
	APIKey  string

	Logger types.Logger
}

// NewFileStore creates the directory if needed and returns a store.
func NewFileStore(config *FileStoreConfig) (*FileStore, error) {
	if config.Dir == "" {
		return nil, errors.NewError(errors.ErrInvalidConfig, "storage directory is required")
	}
	if err := os.MkdirAll(config.Dir, 0o700); err != nil {
		return nil, errors.NewErrorWithCause(errors.ErrStorage, "failed to create storage directory", err)
	}

	logger := config.Logger
	if logger == nil {
		logger = &types.NullLogger{}
	}

	store := &FileStore{dir: config.Dir, logger: logger}
	if config.Encrypt {
		c, err := NewCipher(config.APIKey)
		if err != nil {
			return nil, err
		}
		store.cipher = c
		logger.Debug("Storage encryption enabled")
	}
	return store, nil
}

// Put stores data under name, replacing any previous document.
func (s *FileStore) Put(name string, data []byte) error {
	if s.cipher != nil {
		sealed, err := s.cipher.Seal(data)
		if err != nil {
			return err
		}
		data = sealed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return errors.NewErrorWithCause(errors.ErrStorage, "failed to create temp file", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.NewErrorWithCause(errors.ErrStorage, "failed to write document", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.NewErrorWithCause(errors.ErrStorage, "failed to sync document", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.NewErrorWithCause(errors.ErrStorage, "failed to close document", err)
	}
	if err := os.Rename(tmpPath, s.path(name)); err != nil {
		os.Remove(tmpPath)
		return errors.NewErrorWithCause(errors.ErrStorage, "failed to replace document", err)
	}
	return nil
}

// Get returns the document stored under name. found is false when there is
// none. Plaintext documents are returned as-is even when encryption is on.
func (s *FileStore) Get(name string) (data []byte, found bool, err error) {
	s.mu.Lock()
	raw, err := os.ReadFile(s.path(name))
	s.mu.Unlock()

	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.NewErrorWithCause(errors.ErrStorage, "failed to read document", err)
	}

	if IsEnvelope(raw) {
		if s.cipher == nil {
			return nil, false, errors.NewError(errors.ErrStorage, "document is encrypted but encryption is disabled")
		}
		plain, err := s.cipher.Open(raw)
		if err != nil {
			return nil, false, err
		}
		return plain, true, nil
	}
	return raw, true, nil
}

// Delete removes the document stored under name.
func (s *FileStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(name)); err != nil && !os.IsNotExist(err) {
		return errors.NewErrorWithCause(errors.ErrStorage, "failed to delete document", err)
	}
	return nil
}

// Encrypted reports whether documents are sealed.
func (s *FileStore) Encrypted() bool {
	return s.cipher != nil
}

// Close releases the store.
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, name)
}
