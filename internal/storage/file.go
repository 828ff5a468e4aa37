package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"keywarden/pkg/logging"
	"keywarden/pkg/oauth"
)

const (
	// DefaultLockTimeout bounds advisory lock acquisition. A crashed holder
	// must not wedge other processes forever; past the bound the caller gets
	// oauth.ErrLockTimeout and decides what to do.
	DefaultLockTimeout = 10 * time.Second

	// DefaultLockRetryDelay is the polling interval while waiting for an
	// advisory lock held by another process.
	DefaultLockRetryDelay = 50 * time.Millisecond
)

// FileStorageConfig configures a FileStorage.
type FileStorageConfig struct {
	// Dir is the directory holding the records and lock files.
	// Defaults to ~/.config/keywarden/store.
	Dir string

	// LockTimeout bounds LockToken acquisition. Zero means DefaultLockTimeout.
	LockTimeout time.Duration

	// LockRetryDelay is the lock polling interval. Zero means
	// DefaultLockRetryDelay.
	LockRetryDelay time.Duration
}

// DefaultStorageDir is the default directory for persisted records, relative
// to the user's home directory.
const DefaultStorageDir = ".config/keywarden/store"

// FileStorage persists sessions and tokens as one JSON document per key and
// provides the per-key advisory lock used to coordinate refreshes across
// independent processes sharing the same directory.
//
// Records are written with 0600 permissions inside a 0700 directory; token
// values are never logged. Filenames are derived by hashing the namespaced
// key, so opaque keys never reach the filesystem verbatim.
type FileStorage struct {
	dir            string
	lockTimeout    time.Duration
	lockRetryDelay time.Duration

	// Guards in-process read-modify-write on files. Cross-process exclusion
	// is the advisory lock's job.
	mu sync.RWMutex
}

// NewFileStorage creates a file-backed storage rooted at cfg.Dir, creating
// the directory if needed.
func NewFileStorage(cfg FileStorageConfig) (*FileStorage, error) {
	dir := cfg.Dir
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to determine home directory: %w", err)
		}
		dir = filepath.Join(homeDir, DefaultStorageDir)
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	lockTimeout := cfg.LockTimeout
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	lockRetryDelay := cfg.LockRetryDelay
	if lockRetryDelay <= 0 {
		lockRetryDelay = DefaultLockRetryDelay
	}

	return &FileStorage{
		dir:            dir,
		lockTimeout:    lockTimeout,
		lockRetryDelay: lockRetryDelay,
	}, nil
}

// Dir returns the backing directory.
func (f *FileStorage) Dir() string {
	return f.dir
}

// SaveSession persists a session under the given state.
func (f *FileStorage) SaveSession(_ context.Context, state string, session *oauth.Session) error {
	return f.writeRecord(recordKey("session", state), session)
}

// GetSession returns the session for the given state, or nil if absent.
func (f *FileStorage) GetSession(_ context.Context, state string) (*oauth.Session, error) {
	var session oauth.Session
	ok, err := f.readRecord(recordKey("session", state), &session)
	if err != nil || !ok {
		return nil, err
	}
	return &session, nil
}

// DeleteSession removes the session for the given state.
func (f *FileStorage) DeleteSession(_ context.Context, state string) error {
	return f.deleteRecord(recordKey("session", state))
}

// SaveToken persists a token under the given key.
func (f *FileStorage) SaveToken(_ context.Context, key string, token *oauth.Token) error {
	return f.writeRecord(recordKey("token", key), token)
}

// GetToken returns the token for the given key, or nil if absent.
func (f *FileStorage) GetToken(_ context.Context, key string) (*oauth.Token, error) {
	var token oauth.Token
	ok, err := f.readRecord(recordKey("token", key), &token)
	if err != nil || !ok {
		return nil, err
	}
	return &token, nil
}

// DeleteToken removes the token for the given key.
func (f *FileStorage) DeleteToken(_ context.Context, key string) error {
	return f.deleteRecord(recordKey("token", key))
}

// LockToken acquires the advisory lock for the given token key, blocking up
// to the configured timeout. The lock file is named deterministically from
// the key so unrelated keys never contend. The returned UnlockFunc releases
// the lock and must be called on every exit path.
func (f *FileStorage) LockToken(ctx context.Context, key string) (UnlockFunc, error) {
	lockPath := filepath.Join(f.dir, recordKey("token", key)+".lock")
	fl := flock.New(lockPath)

	lockCtx, cancel := context.WithTimeout(ctx, f.lockTimeout)
	defer cancel()

	locked, err := fl.TryLockContext(lockCtx, f.lockRetryDelay)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			logging.Warn("Storage", "Advisory lock acquisition timed out for key=%s", key)
			return nil, fmt.Errorf("%w: %s", oauth.ErrLockTimeout, lockPath)
		}
		return nil, fmt.Errorf("%w: acquire %s: %v", oauth.ErrStorageFailure, lockPath, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", oauth.ErrLockTimeout, lockPath)
	}

	return func() error {
		return fl.Close()
	}, nil
}

// recordKey derives a filesystem-safe record name from a namespaced key.
// Sessions and tokens hash into disjoint names even for identical keys.
func recordKey(namespace, key string) string {
	hash := sha256.Sum256([]byte(namespace + ":" + key))
	return hex.EncodeToString(hash[:16])
}

func (f *FileStorage) writeRecord(name string, value interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal record: %v", oauth.ErrStorageFailure, err)
	}

	// Write to a temp file and rename into place so a reader in another
	// process never observes a partially written record.
	tmp, err := os.CreateTemp(f.dir, name+"-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: write record: %v", oauth.ErrStorageFailure, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: write record: %v", oauth.ErrStorageFailure, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: write record: %v", oauth.ErrStorageFailure, err)
	}

	path := filepath.Join(f.dir, name+".json")
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: write record: %v", oauth.ErrStorageFailure, err)
	}
	return nil
}

// readRecord reads a record into value. Returns (false, nil) if the record
// does not exist.
func (f *FileStorage) readRecord(name string, value interface{}) (bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	path := filepath.Join(f.dir, name+".json")
	// #nosec G304 -- path is derived from a hashed internal key, not user input
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("%w: read record: %v", oauth.ErrStorageFailure, err)
	}

	if err := json.Unmarshal(data, value); err != nil {
		return false, fmt.Errorf("%w: decode record %s: %v", oauth.ErrStorageFailure, name, err)
	}
	return true, nil
}

func (f *FileStorage) deleteRecord(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := filepath.Join(f.dir, name+".json")
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: delete record: %v", oauth.ErrStorageFailure, err)
	}
	return nil
}
