package registry

import (
	"context"
	"fmt"

	"github.com/danmuck/agentctl/internal/fleet"
	"github.com/danmuck/agentctl/internal/logging"
	"github.com/danmuck/agentctl/internal/platform"
)

// FolderRegistry indexes folders by name.
type FolderRegistry struct {
	api platform.FolderAPI
	named
}

func NewFolderRegistry(api platform.FolderAPI) *FolderRegistry {
	return &FolderRegistry{api: api}
}

// Load replaces the index with the platform's folders whose name is in
// desired. Entries without a name or id are skipped.
func (r *FolderRegistry) Load(ctx context.Context, desired fleet.NameSet) error {
	folders, err := r.api.ListFolders(ctx)
	if err != nil {
		return fmt.Errorf("registry: load folders: %w", err)
	}
	entries := make(map[string]Entry, len(folders))
	skipped := 0
	for _, f := range folders {
		if f.ID == "" || f.Name == "" || !admit(desired, f.Name) {
			skipped++
			continue
		}
		if _, dup := entries[f.Name]; dup {
			continue
		}
		entries[f.Name] = Entry{ID: f.ID, Name: f.Name, Metadata: f.Metadata}
	}
	r.reset(entries)
	logging.Debugf("registry.Folders.Load loaded=%d skipped=%d", len(entries), skipped)
	return nil
}

// ID returns the id registered for name.
func (r *FolderRegistry) ID(name string) (string, bool) {
	e, ok := r.get(name)
	return e.ID, ok
}

// GetOrCreate returns the id for spec.Name, creating the folder when it is
// not registered. created reports whether this call created it.
func (r *FolderRegistry) GetOrCreate(ctx context.Context, spec platform.FolderSpec) (id string, created bool, err error) {
	if !r.isLoaded() {
		return "", false, ErrNotLoaded
	}
	e, err := r.once(spec.Name, func() (Entry, bool) { return r.get(spec.Name) }, func() (Entry, error) {
		folder, err := r.api.CreateFolder(ctx, spec)
		if err != nil {
			return Entry{}, fmt.Errorf("registry: create folder %q: %w", spec.Name, err)
		}
		created = true
		logging.Infof("registry.Folders.GetOrCreate created name=%q id=%s", spec.Name, folder.ID)
		return Entry{ID: folder.ID, Name: spec.Name, Metadata: folder.Metadata}, nil
	})
	if err != nil {
		return "", false, err
	}
	return e.ID, created, nil
}

// Entries returns a copy of the index keyed by name.
func (r *FolderRegistry) Entries() map[string]Entry {
	return r.snapshot()
}
