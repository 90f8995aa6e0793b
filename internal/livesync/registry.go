package livesync

import (
	"errors"
	"sort"
	"sync"
)

// Watcher is the type-erased view of a Watch held by a Registry
type Watcher interface {
	Status() Status
	Done() <-chan struct{}
	Close() error
}

// Registry tracks the active watches of a process by name
type Registry struct {
	mu      sync.Mutex
	watches map[string]Watcher
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{watches: make(map[string]Watcher)}
}

// Add registers w under name. A watch already registered under name is
// closed and replaced.
func (r *Registry) Add(name string, w Watcher) {
	r.mu.Lock()
	prev := r.watches[name]
	r.watches[name] = w
	r.mu.Unlock()

	if prev != nil && prev != w {
		_ = prev.Close()
	}
}

// Get returns the watch registered under name if it is still running
func (r *Registry) Get(name string) (Watcher, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.watches[name]
	if !ok {
		return nil, false
	}
	select {
	case <-w.Done():
		delete(r.watches, name)
		return nil, false
	default:
		return w, true
	}
}

// Statuses returns the status of every registered watch ordered by name
func (r *Registry) Statuses() []Status {
	r.mu.Lock()
	names := make([]string, 0, len(r.watches))
	for name := range r.watches {
		names = append(names, name)
	}
	sort.Strings(names)
	watches := make([]Watcher, len(names))
	for i, name := range names {
		watches[i] = r.watches[name]
	}
	r.mu.Unlock()

	out := make([]Status, len(watches))
	for i, w := range watches {
		out[i] = w.Status()
	}
	return out
}

// Len returns the number of registered watches
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.watches)
}

// CloseAll closes and forgets every watch
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	watches := r.watches
	r.watches = make(map[string]Watcher)
	r.mu.Unlock()

	var errs []error
	for _, w := range watches {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
