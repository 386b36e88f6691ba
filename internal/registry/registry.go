// Package registry indexes platform resources by name for one
// reconciliation run. Registries are loaded once, filtered to the names the
// fleet declares, and discarded when the run ends.
package registry

import (
	"errors"
	"maps"
	"sync"

	"github.com/danmuck/agentctl/internal/fleet"
	"golang.org/x/sync/singleflight"
)

var ErrNotLoaded = errors.New("registry: not loaded")

// Entry is the identity of one named platform resource.
type Entry struct {
	ID   string
	Name string
	// Label is the raw platform label for blocks; it may carry a version.
	Label       string
	Version     string
	ContentHash string
	Shared      bool
	Metadata    map[string]any
}

// named is the name-keyed core shared by every registry kind. The zero
// value is ready to use.
type named struct {
	mu      sync.RWMutex
	entries map[string]Entry
	loaded  bool
	flight  singleflight.Group
}

func (n *named) get(key string) (Entry, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	e, ok := n.entries[key]
	return e, ok
}

func (n *named) set(key string, e Entry) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.entries == nil {
		n.entries = make(map[string]Entry)
	}
	n.entries[key] = e
}

func (n *named) reset(entries map[string]Entry) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.entries = entries
	n.loaded = true
}

func (n *named) isLoaded() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.loaded
}

// snapshot returns a copy that callers may mutate freely.
func (n *named) snapshot() map[string]Entry {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return maps.Clone(n.entries)
}



// once runs create for key at most once across concurrent callers; callers
// arriving after registration see the stored entry.
func (n *named) once(key string, lookup func() (Entry, bool), create func() (Entry, error)) (Entry, error) {
	v, err, _ := n.flight.Do(key, func() (any, error) {
		if e, ok := lookup(); ok {
			return e, nil
		}
		e, err := create()
		if err != nil {
			return Entry{}, err
		}
		n.set(key, e)
		return e, nil
	})
	if err != nil {
		return Entry{}, err
	}
	return v.(Entry), nil
}

// admit applies the desired-name filter. A nil set admits everything.
func admit(desired fleet.NameSet, name string) bool {
	return desired == nil || desired.Has(name)
}
