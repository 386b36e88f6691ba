package reconcile

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/danmuck/agentctl/internal/logging"
	"github.com/danmuck/agentctl/internal/platform"
	"github.com/danmuck/agentctl/internal/registry"
	"github.com/danmuck/agentctl/internal/versioning"
	"golang.org/x/sync/errgroup"
)

// scanLimit bounds concurrent ListAttached calls during a usage scan.
const scanLimit = 8

// Usage is the live attachment graph: for each kind, resource id to the
// names of the agents it is attached to.
type Usage struct {
	byKind map[platform.Kind]map[string][]string
}

// ScanUsage lists the attachments of every agent for the given kinds. The
// calls only read, so they run concurrently.
func ScanUsage(ctx context.Context, api platform.AgentAPI, agents []platform.Agent, kinds ...platform.Kind) (*Usage, error) {
	u := &Usage{byKind: make(map[platform.Kind]map[string][]string, len(kinds))}
	for _, k := range kinds {
		u.byKind[k] = make(map[string][]string)
	}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scanLimit)
	for _, a := range agents {
		for _, k := range kinds {
			g.Go(func() error {
				attached, err := api.ListAttached(gctx, a.ID, k)
				if err != nil {
					return fmt.Errorf("scan %s of agent %q: %w", k, a.Name, err)
				}
				mu.Lock()
				defer mu.Unlock()
				for _, r := range attached {
					u.byKind[k][r.ID] = append(u.byKind[k][r.ID], a.Name)
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, ids := range u.byKind {
		for id, names := range ids {
			slices.Sort(names)
			ids[id] = slices.Compact(names)
		}
	}
	logging.Debugf("reconcile.ScanUsage agents=%d kinds=%v", len(agents), kinds)
	return u, nil
}

// AttachedTo returns the agents that have id attached.
func (u *Usage) AttachedTo(kind platform.Kind, id string) []string {
	if u == nil {
		return nil
	}
	return slices.Clone(u.byKind[kind][id])
}

// Others returns the agents other than agent that have id attached.
func (u *Usage) Others(kind platform.Kind, id, agent string) []string {
	var out []string
	for _, name := range u.AttachedTo(kind, id) {
		if name != agent {
			out = append(out, name)
		}
	}
	return out
}

// ResourceUsage is one platform resource with the agents using it.
type ResourceUsage struct {
	Kind   platform.Kind `json:"kind" yaml:"kind"`
	ID     string        `json:"id" yaml:"id"`
	Name   string        `json:"name" yaml:"name"`
	Label  string        `json:"label,omitempty" yaml:"label,omitempty"`
	Shared bool          `json:"shared" yaml:"shared"`
	Agents []string      `json:"agents" yaml:"agents"`
}

// Orphaned reports whether no agent uses the resource.
func (r ResourceUsage) Orphaned() bool {
	return len(r.Agents) == 0
}

// UsageFilter selects a usage view.
type UsageFilter string

const (
	UsageAll      UsageFilter = ""
	UsageShared   UsageFilter = "shared"
	UsageOrphaned UsageFilter = "orphaned"
)

func (f UsageFilter) admit(r ResourceUsage) bool {
	switch f {
	case UsageShared:
		return r.Shared
	case UsageOrphaned:
		return r.Orphaned()
	default:
		return true
	}
}

// BlockUsage lists every block with the agents it is attached to. A block
// is shared when tagged so or attached to more than one agent.
func BlockUsage(ctx context.Context, api platform.API, filter UsageFilter) ([]ResourceUsage, error) {
	blocks, err := api.ListBlocks(ctx)
	if err != nil {
		return nil, err
	}
	usage, err := scanAll(ctx, api, platform.KindBlock)
	if err != nil {
		return nil, err
	}
	out := []ResourceUsage{}
	for _, b := range blocks {
		agents := usage.AttachedTo(platform.KindBlock, b.ID)
		tagged, _ := b.Metadata[registry.MetaScope].(string)
		r := ResourceUsage{
			Kind:   platform.KindBlock,
			ID:     b.ID,
			Name:   versioning.BaseName(b.Label),
			Label:  b.Label,
			Shared: tagged == registry.ScopeShared || len(agents) > 1,
			Agents: orEmpty(agents),
		}
		if filter.admit(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

// FolderUsage lists every folder with the agents it is attached to. A
// folder is shared when attached to more than one agent.
func FolderUsage(ctx context.Context, api platform.API, filter UsageFilter) ([]ResourceUsage, error) {
	folders, err := api.ListFolders(ctx)
	if err != nil {
		return nil, err
	}
	usage, err := scanAll(ctx, api, platform.KindFolder)
	if err != nil {
		return nil, err
	}
	out := []ResourceUsage{}
	for _, f := range folders {
		agents := usage.AttachedTo(platform.KindFolder, f.ID)
		r := ResourceUsage{
			Kind:   platform.KindFolder,
			ID:     f.ID,
			Name:   f.Name,
			Shared: len(agents) > 1,
			Agents: orEmpty(agents),
		}
		if filter.admit(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func scanAll(ctx context.Context, api platform.AgentAPI, kinds ...platform.Kind) (*Usage, error) {
	agents, err := api.ListAgents(ctx)
	if err != nil {
		return nil, err
	}
	return ScanUsage(ctx, api, agents, kinds...)
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
