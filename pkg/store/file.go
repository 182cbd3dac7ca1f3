package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const (
	storeFileMode   = 0o600
	storeDirMode    = 0o700
	entrySuffix     = ".json"
	tempFilePattern = ".entry-*.tmp"
)

var (
	lockRegistryMu sync.Mutex
	dirLockMap     = map[string]*sync.RWMutex{}
)

// FileStore keeps one file per key under a directory.
// Writes go through a temp file and a rename so a crash never leaves a torn entry.
type FileStore struct {
	dir string
	mu  *sync.RWMutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore opens (and creates if needed) a store rooted at dir
func NewFileStore(dir string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("store directory is empty")
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve store directory: %w", err)
	}
	absDir = filepath.Clean(absDir)

	if err := os.MkdirAll(absDir, storeDirMode); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	return &FileStore{dir: absDir, mu: lockForDir(absDir)}, nil
}

func (f *FileStore) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return ErrEmptyKey
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tempFile, err := os.CreateTemp(f.dir, tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp entry file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(value); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp entry file: %w", err)
	}

	if err := tempFile.Chmod(storeFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp entry file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp entry file: %w", err)
	}

	if err := os.Rename(tempName, f.path(key)); err != nil {
		return fmt.Errorf("replace entry %s: %w", key, err)
	}

	cleanup = false
	return nil
}

func (f *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if key == "" {
		return nil, ErrNotFound
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read entry %s: %w", key, err)
	}
	return data, nil
}

func (f *FileStore) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove entry %s: %w", key, err)
	}
	return nil
}

func (f *FileStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("read store directory: %w", err)
	}

	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, entrySuffix) || strings.HasPrefix(name, ".") {
			continue
		}
		key, err := url.PathUnescape(strings.TrimSuffix(name, entrySuffix))
		if err != nil {
			continue
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// path maps a key onto a file name that cannot escape the store directory
func (f *FileStore) path(key string) string {
	name := url.PathEscape(key)
	if strings.HasPrefix(name, ".") {
		name = "%2E" + name[1:]
	}
	return filepath.Join(f.dir, name+entrySuffix)
}

func lockForDir(dir string) *sync.RWMutex {
	lockRegistryMu.Lock()
	defer lockRegistryMu.Unlock()

	if mu, ok := dirLockMap[dir]; ok {
		return mu
	}

	mu := &sync.RWMutex{}
	dirLockMap[dir] = mu
	return mu
}
