// Package diff partitions an agent's attached resources against its
// declared ones. It is pure computation over already-fetched data.
package diff

import (
	"github.com/danmuck/agentctl/internal/platform"
	"github.com/danmuck/agentctl/internal/registry"
	"github.com/danmuck/agentctl/internal/versioning"
)

// Update reasons.
const (
	ReasonSourceCodeChanged = "source_code_changed"
	ReasonBlockIDChanged    = "block_id_changed"
)

// Ref names one resource and its platform id. ID is empty when a desired
// resource could not be resolved.
type Ref struct {
	Name string `json:"name" yaml:"name"`
	ID   string `json:"id" yaml:"id"`
}

// Update is a matched resource attached under a stale identity.
type Update struct {
	Name      string `json:"name" yaml:"name"`
	CurrentID string `json:"current_id" yaml:"current_id"`
	DesiredID string `json:"desired_id" yaml:"desired_id"`
	Reason    string `json:"reason" yaml:"reason"`
}

// KindDiff is the four-way partition for one resource kind. Every attached
// and every desired name lands in exactly one partition; a matched pair
// lands once in ToUpdate or Unchanged.
type KindDiff struct {
	Kind      platform.Kind `json:"kind" yaml:"kind"`
	ToAdd     []Ref         `json:"to_add" yaml:"to_add"`
	ToRemove  []Ref         `json:"to_remove" yaml:"to_remove"`
	ToUpdate  []Update      `json:"to_update" yaml:"to_update"`
	Unchanged []Ref         `json:"unchanged" yaml:"unchanged"`
}

// Count is the number of operations the diff implies.
func (d KindDiff) Count() int {
	return len(d.ToAdd) + len(d.ToRemove) + len(d.ToUpdate)
}

// Empty reports whether nothing needs to change.
func (d KindDiff) Empty() bool {
	return d.Count() == 0
}

// Resolver maps a desired name to its registry id.
type Resolver func(name string) (string, bool)

// BlockResolver resolves block names in the shared or agent keyspace.
type BlockResolver interface {
	ID(name string, shared bool) (string, bool)
}

// decideFunc classifies a matched pair. It returns the update to apply, or
// nil when the pair is unchanged.
type decideFunc func(name string, current platform.Resource, desiredID string, resolved bool) *Update

// partition runs the shared algorithm: index attached resources by name,
// walk desired names in order, then sweep attached resources nobody wants.
// When several attached resources share a name, the one carrying the
// resolved id is the match and the rest are removed.
func partition(
	kind platform.Kind,
	current []platform.Resource,
	nameOf func(platform.Resource) string,
	desired []string,
	resolve func(name string) (string, bool),
	decide decideFunc,
) KindDiff {
	out := KindDiff{
		Kind:      kind,
		ToAdd:     []Ref{},
		ToRemove:  []Ref{},
		ToUpdate:  []Update{},
		Unchanged: []Ref{},
	}

	byName := make(map[string][]int, len(current))
	for i, res := range current {
		name := nameOf(res)
		byName[name] = append(byName[name], i)
	}

	matched := make(map[int]bool, len(current))
	seen := make(map[string]bool, len(desired))
	for _, name := range desired {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		id, ok := resolve(name)
		candidates := byName[name]
		if len(candidates) == 0 {
			out.ToAdd = append(out.ToAdd, Ref{Name: name, ID: id})
			continue
		}
		pick := candidates[0]
		if ok {
			for _, i := range candidates {
				if current[i].ID == id {
					pick = i
					break
				}
			}
		}
		matched[pick] = true
		cur := current[pick]
		if upd := decide(name, cur, id, ok); upd != nil {
			out.ToUpdate = append(out.ToUpdate, *upd)
			continue
		}
		out.Unchanged = append(out.Unchanged, Ref{Name: name, ID: cur.ID})
	}

	for i, res := range current {
		if matched[i] {
			continue
		}
		out.ToRemove = append(out.ToRemove, Ref{Name: nameOf(res), ID: res.ID})
	}
	return out
}

func plainName(r platform.Resource) string { return r.Name }

func blockName(r platform.Resource) string { return versioning.BaseName(r.Name) }

func unchanged(string, platform.Resource, string, bool) *Update { return nil }

// AnalyzeTools diffs attached tools against desired tool names. A matched
// tool is updated only when its registry id moved and its source is
// tracked; builtins are never updated.
func AnalyzeTools(current []platform.Resource, desired []string, resolve Resolver, sourceHashes map[string]string) KindDiff {
	decide := func(name string, cur platform.Resource, desiredID string, resolved bool) *Update {
		if !resolved || desiredID == cur.ID || registry.IsBuiltinTool(name) {
			return nil
		}
		if sourceHashes[name] == "" {
			return nil
		}
		return &Update{Name: name, CurrentID: cur.ID, DesiredID: desiredID, Reason: ReasonSourceCodeChanged}
	}
	return partition(platform.KindTool, current, plainName, desired, orNone(resolve), decide)
}

// DesiredBlock is a block the agent declares, addressed in its scope.
type DesiredBlock struct {
	Name   string
	Shared bool
}

// AnalyzeBlocks diffs attached blocks, matched by base label, against the
// declared blocks. A matched block whose declared id resolves to a
// different block, after a version rotation, is updated; otherwise it is
// unchanged. Content changes are not decided here.
func AnalyzeBlocks(current []platform.Resource, desired []DesiredBlock, reg BlockResolver) KindDiff {
	names := make([]string, 0, len(desired))
	shared := make(map[string]bool, len(desired))
	for _, b := range desired {
		names = append(names, b.Name)
		shared[b.Name] = b.Shared
	}
	resolve := func(name string) (string, bool) {
		if reg == nil {
			return "", false
		}
		return reg.ID(name, shared[name])
	}
	decide := func(name string, cur platform.Resource, desiredID string, resolved bool) *Update {
		if !resolved || desiredID == cur.ID {
			return nil
		}
		return &Update{Name: name, CurrentID: cur.ID, DesiredID: desiredID, Reason: ReasonBlockIDChanged}
	}
	return partition(platform.KindBlock, current, blockName, names, resolve, decide)
}

// AnalyzeFolders matches folders purely by name.
func AnalyzeFolders(current []platform.Resource, desired []string, resolve Resolver) KindDiff {
	return partition(platform.KindFolder, current, plainName, desired, orNone(resolve), unchanged)
}

// AnalyzeArchives matches archives purely by name.
func AnalyzeArchives(current []platform.Resource, desired []string, resolve Resolver) KindDiff {
	return partition(platform.KindArchive, current, plainName, desired, orNone(resolve), unchanged)
}

func orNone(r Resolver) Resolver {
	if r != nil {
		return r
	}
	return func(string) (string, bool) { return "", false }
}
