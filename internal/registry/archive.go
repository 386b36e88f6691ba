package registry

import (
	"context"
	"fmt"

	"github.com/danmuck/agentctl/internal/fleet"
	"github.com/danmuck/agentctl/internal/logging"
	"github.com/danmuck/agentctl/internal/platform"
)

// ArchiveRegistry indexes archives by name.
type ArchiveRegistry struct {
	api platform.ArchiveAPI
	named
}

func NewArchiveRegistry(api platform.ArchiveAPI) *ArchiveRegistry {
	return &ArchiveRegistry{api: api}
}

func (r *ArchiveRegistry) Load(ctx context.Context, desired fleet.NameSet) error {
	archives, err := r.api.ListArchives(ctx)
	if err != nil {
		return fmt.Errorf("registry: load archives: %w", err)
	}
	entries := make(map[string]Entry, len(archives))
	for _, a := range archives {
		if a.ID == "" || a.Name == "" || !admit(desired, a.Name) {
			continue
		}
		if _, dup := entries[a.Name]; dup {
			continue
		}
		entries[a.Name] = Entry{ID: a.ID, Name: a.Name}
	}
	r.reset(entries)
	logging.Debugf("registry.Archives.Load loaded=%d listed=%d", len(entries), len(archives))
	return nil
}

func (r *ArchiveRegistry) ID(name string) (string, bool) {
	e, ok := r.get(name)
	return e.ID, ok
}

func (r *ArchiveRegistry) GetOrCreate(ctx context.Context, spec platform.ArchiveSpec) (string, error) {
	if !r.isLoaded() {
		return "", ErrNotLoaded
	}
	e, err := r.once(spec.Name, func() (Entry, bool) { return r.get(spec.Name) }, func() (Entry, error) {
		archive, err := r.api.CreateArchive(ctx, spec)
		if err != nil {
			return Entry{}, fmt.Errorf("registry: create archive %q: %w", spec.Name, err)
		}
		logging.Infof("registry.Archives.GetOrCreate created name=%q id=%s", spec.Name, archive.ID)
		return Entry{ID: archive.ID, Name: spec.Name}, nil
	})
	if err != nil {
		return "", err
	}
	return e.ID, nil
}

func (r *ArchiveRegistry) Entries() map[string]Entry {
	return r.snapshot()
}
