// Package cache persists each service's log buffer so a control-plane
// restart can restore history for groups that kept running underneath it.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/renameio/v2"

	"github.com/atikulmunna/moor/internal/model"
)

// Store keeps one JSON file per service under a cache directory.
type Store struct {
	mu  sync.Mutex
	dir string
}

// NewStore creates the cache directory if needed and returns a Store rooted
// there.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Load returns the cached records for a service, or nil when no cache file
// exists yet.
func (s *Store) Load(service string) ([]model.LogRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path(service))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read cache for %s: %w", service, err)
	}

	var records []model.LogRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decode cache for %s: %w", service, err)
	}
	return records, nil
}

// Save writes the records for a service atomically, replacing any previous
// cache file.
func (s *Store) Save(service string, records []model.LogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode cache for %s: %w", service, err)
	}
	if err := renameio.WriteFile(s.path(service), raw, 0o644); err != nil {
		return fmt.Errorf("write cache for %s: %w", service, err)
	}
	return nil
}

// path maps a service name to its cache file, flattening path separators so
// a config-supplied name cannot escape the cache directory.
func (s *Store) path(service string) string {
	name := strings.NewReplacer("/", "_", string(os.PathSeparator), "_").Replace(service)
	return filepath.Join(s.dir, name+".json")
}
