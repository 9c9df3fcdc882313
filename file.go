package cgisession

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileStore keeps the whole session mapping in one JSON file:
//
//	{"<token>": {"visits": 3}, ...}
//
// Save truncates and rewrites the file in place unless AtomicWrite is set.
type FileStore struct {
	path        string
	perm        fs.FileMode
	atomicWrite bool
	maxBytes    int64
	locker      *FileLocker
}

// FileConfig holds configuration for the file store.
type FileConfig struct {
	Path string
	// Perm is the mode of a newly created file. Defaults to 0o644.
	Perm fs.FileMode
	// AtomicWrite writes to a temporary file in the same directory and
	// renames it over Path.
	AtomicWrite bool
	// MaxBytes rejects loading a file larger than this. 0 means unlimited.
	MaxBytes int64
	// LockPath is the advisory lock file. Defaults to Path + ".lock".
	LockPath string
}

// NewFileStore creates a FileStore with default configuration.
func NewFileStore(path string) (*FileStore, error) {
	return NewFileStoreWithConfig(FileConfig{Path: path})
}

// NewFileStoreWithConfig creates a FileStore with custom configuration. The
// file itself is not touched until Load or Save.
func NewFileStoreWithConfig(cfg FileConfig) (*FileStore, error) {
	if cfg.Path == "" {
		return nil, errors.New("cgisession: empty store path")
	}
	if cfg.Perm == 0 {
		cfg.Perm = 0o644
	}
	if cfg.LockPath == "" {
		cfg.LockPath = cfg.Path + ".lock"
	}

	return &FileStore{
		path:        cfg.Path,
		perm:        cfg.Perm,
		atomicWrite: cfg.AtomicWrite,
		maxBytes:    cfg.MaxBytes,
		locker:      NewFileLocker(cfg.LockPath),
	}, nil
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the mapping. A missing file is an empty store; a file that is
// not a JSON object of objects is ErrCorruptStore.
func (s *FileStore) Load(ctx context.Context) (Sessions, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if s.maxBytes > 0 {
		if fi, err := os.Stat(s.path); err == nil && fi.Size() > s.maxBytes {
			return nil, ErrStoreTooLarge
		}
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Sessions{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	sessions, err := decodeSessions(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	return sessions, nil
}

// Save rewrites the whole file.
func (s *FileStore) Save(ctx context.Context, sessions Sessions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	buf, err := encodeSessions(sessions)
	if err != nil {
		return err
	}
	defer PutBuffer(buf)

	if !s.atomicWrite {
		if err := os.WriteFile(s.path, buf.Bytes(), s.perm); err != nil {
			return fmt.Errorf("failed to write session file: %w", err)
		}
		return nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp session file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp session file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp session file: %w", err)
	}
	if err := os.Chmod(tmpName, s.perm); err != nil {
		return fmt.Errorf("failed to chmod temp session file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

// Lock takes the advisory lock next to the session file.
func (s *FileStore) Lock(ctx context.Context) (func() error, error) {
	return s.locker.Lock(ctx)
}

// Close is a no-op; the file is only open during Load and Save.
func (s *FileStore) Close() error {
	return nil
}
