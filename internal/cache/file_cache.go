package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/lshigami/examprep/internal/model"
	"github.com/spf13/afero"
)

const filePrefix = "attempt-"

// FileCache stores one JSON file per attempt under <dir>/<namespace>. Files
// are written to a temp name and renamed so a crash never leaves a torn entry.
type FileCache struct {
	fs  afero.Fs
	dir string
	mu  sync.Mutex
}

func NewFileCache(fs afero.Fs, dir, namespace string) (*FileCache, error) {
	if namespace == "" {
		return nil, errors.New("cache: namespace is required")
	}
	full := filepath.Join(dir, namespace)
	if err := fs.MkdirAll(full, 0o755); err != nil {
		return nil, fmt.Errorf("cache: creating %s: %w", full, err)
	}
	return &FileCache{fs: fs, dir: full}, nil
}

func (c *FileCache) path(attemptID uint) string {
	return filepath.Join(c.dir, filePrefix+strconv.FormatUint(uint64(attemptID), 10)+".json")
}

func (c *FileCache) Put(_ context.Context, result *model.AttemptResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("cache: encoding result %d: %w", result.AttemptID, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tmp := c.path(result.AttemptID) + ".tmp"
	if err := afero.WriteFile(c.fs, tmp, data, 0o600); err != nil {
		return fmt.Errorf("cache: writing result %d: %w", result.AttemptID, err)
	}
	if err := c.fs.Rename(tmp, c.path(result.AttemptID)); err != nil {
		_ = c.fs.Remove(tmp)
		return fmt.Errorf("cache: committing result %d: %w", result.AttemptID, err)
	}
	return nil
}

func (c *FileCache) Get(_ context.Context, attemptID uint) (*model.AttemptResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := afero.ReadFile(c.fs, c.path(attemptID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache: reading result %d: %w", attemptID, err)
	}
	var result model.AttemptResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("cache: decoding result %d: %w", attemptID, err)
	}
	return &result, nil
}

func (c *FileCache) Delete(_ context.Context, attemptID uint) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.fs.Remove(c.path(attemptID))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("cache: deleting result %d: %w", attemptID, err)
	}
	return nil
}

func (c *FileCache) Keys(_ context.Context) ([]uint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := afero.ReadDir(c.fs, c.dir)
	if err != nil {
		return nil, fmt.Errorf("cache: listing %s: %w", c.dir, err)
	}
	var ids []uint
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		id, err := strconv.ParseUint(strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), ".json"), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, uint(id))
	}
	return ids, nil
}
