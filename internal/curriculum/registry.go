package curriculum

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Registry holds every curriculum loaded from disk, keyed by file base name.
type Registry struct {
	mu        sync.RWMutex
	curricula map[string]Schema
}

func NewRegistry() *Registry {
	return &Registry{curricula: make(map[string]Schema)}
}

// LoadDir reads every *.json file under dir, validates it, and registers
// the valid ones. Invalid files are logged and skipped so one bad file
// does not take the whole registry down.
func (r *Registry) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read curricula directory %s: %w", dir, err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".json")
		path := filepath.Join(dir, entry.Name())

		schema, err := loadFile(path)
		if err != nil {
			slog.Warn("Skipping invalid curriculum file", "path", path, "error", err)
			continue
		}

		r.mu.Lock()
		r.curricula[name] = schema
		r.mu.Unlock()
		loaded++
	}

	slog.Info("Loaded curricula", "dir", dir, "count", loaded)
	return nil
}

func loadFile(path string) (Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if problems := ValidateBytes(data); len(problems) > 0 {
		return nil, fmt.Errorf("schema validation: %s", strings.Join(problems, "; "))
	}

	var schema Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return schema, nil
}

// Get returns the named curriculum.
func (r *Registry) Get(name string) (Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	schema, ok := r.curricula[name]
	return schema, ok
}

// Names lists registered curricula in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.curricula))
	for name := range r.curricula {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Register adds a curriculum directly, replacing any existing entry.
func (r *Registry) Register(name string, schema Schema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.curricula[name] = schema
}
