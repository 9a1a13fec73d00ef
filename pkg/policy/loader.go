package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Loader loads and optionally hot-reloads policy documents from YAML files.
// Reloading never removes the built-in default policy.
type Loader struct {
	dir string

	mu       sync.RWMutex
	policies map[string]*Policy
}

// NewLoader creates a new policy loader for the given directory.
func NewLoader(dir string) *Loader {
	def := Default()
	return &Loader{
		dir:      dir,
		policies: map[string]*Policy{def.Name: &def},
	}
}

// LoadAll loads all .yaml and .yml files from the configured directory.
func (l *Loader) LoadAll() (map[string]*Policy, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("read policy dir %q: %w", l.dir, err)
	}

	def := Default()
	result := map[string]*Policy{def.Name: &def}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(l.dir, entry.Name())
		p, err := l.loadFile(path)
		if err != nil {
			return nil, fmt.Errorf("load %q: %w", path, err)
		}
		result[p.Name] = p
	}

	l.mu.Lock()
	l.policies = result
	l.mu.Unlock()

	return result, nil
}

// Get returns a loaded policy by name.
func (l *Loader) Get(name string) (*Policy, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.policies[name]
	return p, ok
}

// GetOrDefault returns the named policy, falling back to the built-in default
// when the name is empty or unknown.
func (l *Loader) GetOrDefault(name string) *Policy {
	if p, ok := l.Get(name); ok {
		return p
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.policies["default"]
}

// All returns all loaded policies.
func (l *Loader) All() map[string]*Policy {
	l.mu.RLock()
	defer l.mu.RUnlock()
	result := make(map[string]*Policy, len(l.policies))
	for k, v := range l.policies {
		result[k] = v
	}
	return result
}

func (l *Loader) loadFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Start from defaults so partial documents only override what they name.
	p := Default()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	if p.Name == "" {
		p.Name = filepath.Base(path)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	return &p, nil
}

// WatchAndReload starts watching the policy directory for changes and reloads.
// This blocks until the done channel is closed.
func (l *Loader) WatchAndReload(done <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(l.dir); err != nil {
		return fmt.Errorf("watch dir %q: %w", l.dir, err)
	}

	for {
		select {
		case <-done:
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				ext := filepath.Ext(event.Name)
				if ext == ".yaml" || ext == ".yml" {
					l.LoadAll()
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}
