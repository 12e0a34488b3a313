package functions

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Registry is the authoritative, in-memory catalog of deployed functions.
// Reads see a consistent generation; Replace swaps the whole generation
// atomically so a redeploy never exposes a half-updated catalog.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*Descriptor
	logger zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		byName: make(map[string]*Descriptor),
		logger: logger.With().Str("component", "registry").Logger(),
	}
}

// Register adds a single function to the current generation.
func (r *Registry) Register(d *Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[d.Name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateName, d.Name)
	}
	r.byName[d.Name] = d
	r.logger.Debug().Str("function", d.Name).Str("runtime", string(d.Runtime)).Msg("function registered")
	return nil
}

// Lookup returns the descriptor for a function name.
func (r *Registry) Lookup(name string) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrFunctionNotFound, name)
	}
	return d, nil
}

// List returns all registered functions sorted by name.
func (r *Registry) List() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Descriptor, 0, len(r.byName))
	for _, d := range r.byName {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Count returns the number of registered functions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}

// Replace atomically swaps the registry contents with a new generation.
// Duplicate names in the new set fail the whole swap; the previous
// generation stays live.
func (r *Registry) Replace(descs []*Descriptor) error {
	next := make(map[string]*Descriptor, len(descs))
	for _, d := range descs {
		if _, ok := next[d.Name]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateName, d.Name)
		}
		next[d.Name] = d
	}

	r.mu.Lock()
	r.byName = next
	r.mu.Unlock()

	r.logger.Info().Int("count", len(next)).Msg("registry replaced")
	return nil
}

// Discover walks a functions directory and loads every subdirectory that
// contains a manifest. Subdirectories without one are skipped.
func Discover(dir string, logger zerolog.Logger) ([]*Descriptor, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading functions directory: %w", err)
	}

	var descs []*Descriptor
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		fnDir := filepath.Join(dir, entry.Name())
		if _, err := os.Stat(filepath.Join(fnDir, ManifestFile)); err != nil {
			continue
		}
		m, err := LoadManifest(fnDir)
		if err != nil {
			logger.Warn().Err(err).Str("dir", fnDir).Msg("skipping function with invalid manifest")
			continue
		}
		d, err := m.Descriptor(fnDir)
		if err != nil {
			logger.Warn().Err(err).Str("dir", fnDir).Msg("skipping function")
			continue
		}
		descs = append(descs, d)
	}
	return descs, nil
}
