package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/agentctl/internal/contenthash"
	"github.com/danmuck/agentctl/internal/fleet"
	"github.com/danmuck/agentctl/internal/logging"
	"github.com/danmuck/agentctl/internal/platform"
	"github.com/danmuck/agentctl/internal/versioning"
)

// Block metadata keys written by agentctl.
const (
	MetaScope       = "scope"
	MetaOwner       = "owner_agent"
	MetaVersion     = "version"
	MetaContentHash = "content_hash"

	ScopeShared  = "shared"
	sharedPrefix = ScopeShared + ":"
)

// ScopeKey encodes the registry key for a block name. Shared and
// agent-scoped names live in disjoint keyspaces.
func ScopeKey(name string, shared bool) string {
	if shared {
		return sharedPrefix + name
	}
	return name
}

// SplitScopeKey is the inverse of ScopeKey.
func SplitScopeKey(key string) (name string, shared bool) {
	if rest, ok := strings.CutPrefix(key, sharedPrefix); ok {
		return rest, true
	}
	return key, false
}

// BlockAction is what GetOrCreate did for a block.
type BlockAction string

const (
	BlockReused  BlockAction = "reused"
	BlockCreated BlockAction = "created"
	BlockUpdated BlockAction = "updated"
	BlockRotated BlockAction = "rotated"
)

// BlockRequest asks for the id of a declared block.
type BlockRequest struct {
	Block  fleet.Block
	Shared bool
	// Agent owns agent-scoped blocks; ignored for shared blocks.
	Agent string
}

type BlockResult struct {
	ID      string
	Label   string
	Version string
	Action  BlockAction
}

// BlockRegistry indexes blocks in two keyspaces. The shared keyspace is
// filled from the platform by Load; the agent keyspace holds the blocks
// attached to the agent currently being reconciled.
type BlockRegistry struct {
	api platform.BlockAPI
	now func() time.Time
	named

	indexMu sync.RWMutex
	// versions indexes every loaded shared block by key and version so a
	// pinned version resolves to the block carrying it.
	versions map[string]map[string]Entry
	// byID holds every loaded block the fleet may refer to.
	byID map[string]platform.Block
	// owned indexes agent-owned blocks by owner and base name, attached or
	// not, so a block left detached by a failed attach is found again.
	owned map[string]Entry
}

func NewBlockRegistry(api platform.BlockAPI) *BlockRegistry {
	return &BlockRegistry{
		api:      api,
		now:      time.Now,
		versions: make(map[string]map[string]Entry),
		byID:     make(map[string]platform.Block),
		owned:    make(map[string]Entry),
	}
}

func ownedKey(agent, name string) string {
	return agent + "/" + name
}

// SetClock overrides the clock used for version tags.
func (r *BlockRegistry) SetClock(now func() time.Time) {
	r.now = now
}

func metaString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func entryFromBlock(b platform.Block, shared bool) Entry {
	label := versioning.Parse(b.Label)
	return Entry{
		ID:          b.ID,
		Name:        label.Base,
		Label:       b.Label,
		Version:     label.VersionOrInitial(),
		ContentHash: contenthash.Of(b.Value),
		Shared:      shared,
		Metadata:    b.Metadata,
	}
}

// Load fills the shared keyspace from the platform. Blocks whose base name
// is not in desired are skipped, as are blocks tagged with an owning agent.
// When several blocks share a base name, one tagged shared wins, otherwise
// the first listed.
func (r *BlockRegistry) Load(ctx context.Context, desired fleet.NameSet) error {
	blocks, err := r.api.ListBlocks(ctx)
	if err != nil {
		return fmt.Errorf("registry: load blocks: %w", err)
	}
	entries := make(map[string]Entry)
	versions := make(map[string]map[string]Entry)
	byID := make(map[string]platform.Block)
	owned := make(map[string]Entry)
	for _, b := range blocks {
		if b.ID == "" || b.Label == "" {
			continue
		}
		base := versioning.BaseName(b.Label)
		if !admit(desired, base) {
			continue
		}
		byID[b.ID] = b
		if owner := metaString(b.Metadata, MetaOwner); owner != "" {
			if _, dup := owned[ownedKey(owner, base)]; !dup {
				owned[ownedKey(owner, base)] = entryFromBlock(b, false)
			}
			continue
		}
		e := entryFromBlock(b, true)
		key := ScopeKey(base, true)
		if versions[key] == nil {
			versions[key] = make(map[string]Entry)
		}
		if _, dup := versions[key][e.Version]; !dup {
			versions[key][e.Version] = e
		}
		current, exists := entries[key]
		if !exists || (metaString(current.Metadata, MetaScope) != ScopeShared && metaString(b.Metadata, MetaScope) == ScopeShared) {
			entries[key] = e
		}
	}
	r.reset(entries)
	r.indexMu.Lock()
	r.versions = versions
	r.byID = byID
	r.owned = owned
	r.indexMu.Unlock()
	logging.Debugf("registry.Blocks.Load shared=%d owned=%d listed=%d", len(entries), len(owned), len(blocks))
	return nil
}

// ClearAgentScope drops every agent-scoped entry, leaving the shared
// keyspace intact.
func (r *BlockRegistry) ClearAgentScope() {
	r.named.mu.Lock()
	defer r.named.mu.Unlock()
	for key := range r.entries {
		if _, shared := SplitScopeKey(key); !shared {
			delete(r.entries, key)
		}
	}
}

// RegisterAgentBlocks fills the agent keyspace from the blocks attached to
// one agent. Blocks tagged shared, or whose base name the agent references
// as a shared block, stay out of it.
func (r *BlockRegistry) RegisterAgentBlocks(attached []platform.Resource, sharedRefs fleet.NameSet) {
	r.indexMu.RLock()
	defer r.indexMu.RUnlock()
	for _, res := range attached {
		if res.ID == "" || res.Name == "" {
			continue
		}
		label := versioning.Parse(res.Name)
		if metaString(res.Metadata, MetaScope) == ScopeShared || sharedRefs.Has(label.Base) {
			continue
		}
		e := Entry{
			ID:       res.ID,
			Name:     label.Base,
			Label:    res.Name,
			Version:  label.VersionOrInitial(),
			Metadata: res.Metadata,
		}
		if b, ok := r.byID[res.ID]; ok {
			e.ContentHash = contenthash.Of(b.Value)
		} else if h := metaString(res.Metadata, MetaContentHash); contenthash.Valid(h) {
			// A malformed tag leaves the hash unknown, so a declared value
			// is pushed again.
			e.ContentHash = h
		}
		r.set(ScopeKey(label.Base, false), e)
	}
}

// ownedEntry returns the loaded block agent owns under name.
func (r *BlockRegistry) ownedEntry(agent, name string) (Entry, bool) {
	r.indexMu.RLock()
	defer r.indexMu.RUnlock()
	e, ok := r.owned[ownedKey(agent, name)]
	return e, ok
}

// ID resolves a block name in the given scope. A name registered only in
// the other scope does not resolve.
func (r *BlockRegistry) ID(name string, shared bool) (string, bool) {
	e, ok := r.get(ScopeKey(name, shared))
	return e.ID, ok
}

// SharedID resolves a shared block name.
func (r *BlockRegistry) SharedID(name string) (string, bool) {
	return r.ID(name, true)
}

// Entry returns the registered entry for name in the given scope.
func (r *BlockRegistry) Entry(name string, shared bool) (Entry, bool) {
	return r.get(ScopeKey(name, shared))
}

// Register stores e under its scoped key.
func (r *BlockRegistry) Register(e Entry) {
	r.set(ScopeKey(e.Name, e.Shared), e)
}

// Entries returns a copy of both keyspaces keyed by scoped key.
func (r *BlockRegistry) Entries() map[string]Entry {
	return r.snapshot()
}

// GetOrCreate returns the id for a declared block.
//
// An existing shared block is returned as is; it is never updated here. An
// existing agent-scoped block that is not agent-owned gets the declared
// value pushed when its content hash differs. A changed version pin rotates
// to a block labeled with the new version. An agent-scoped name that is not
// attached falls back to a loaded block the agent owns. Absent blocks are
// created.
func (r *BlockRegistry) GetOrCreate(ctx context.Context, req BlockRequest) (BlockResult, error) {
	if !r.isLoaded() {
		return BlockResult{}, ErrNotLoaded
	}
	b := req.Block
	key := ScopeKey(b.Name, req.Shared)
	pin := ""
	if strings.TrimSpace(b.Version) != "" {
		pin = versioning.SanitizeUserVersion(b.Version)
	}
	hash := contenthash.Of(b.Value)

	var result BlockResult
	_, err, _ := r.flight.Do(key, func() (any, error) {
		current, exists := r.get(key)
		if !exists && !req.Shared {
			if e, ok := r.ownedEntry(req.Agent, b.Name); ok {
				r.set(key, e)
				current, exists = e, true
				logging.Infof("registry.Blocks.GetOrCreate adopt label=%q id=%s agent=%q", e.Label, e.ID, req.Agent)
			}
		}
		switch {
		case !exists:
			e, err := r.create(ctx, req, pin, hash, true)
			if err != nil {
				return nil, err
			}
			result = BlockResult{ID: e.ID, Label: e.Label, Version: e.Version, Action: BlockCreated}
		case pin != "" && pin != current.Version:
			e, action, err := r.rotate(ctx, req, key, pin, hash)
			if err != nil {
				return nil, err
			}
			result = BlockResult{ID: e.ID, Label: e.Label, Version: e.Version, Action: action}
		case !req.Shared && !b.IsAgentOwned() && current.ContentHash != hash:
			e, err := r.push(ctx, req, current, hash)
			if err != nil {
				return nil, err
			}
			result = BlockResult{ID: e.ID, Label: e.Label, Version: e.Version, Action: BlockUpdated}
		default:
			result = BlockResult{ID: current.ID, Label: current.Label, Version: current.Version, Action: BlockReused}
		}
		return nil, nil
	})
	if err != nil {
		return BlockResult{}, err
	}
	if result.ID == "" {
		// A concurrent caller did the work; report what is registered now.
		e, _ := r.get(key)
		result = BlockResult{ID: e.ID, Label: e.Label, Version: e.Version, Action: BlockReused}
	}
	return result, nil
}

func (r *BlockRegistry) metadata(req BlockRequest, version, hash string) map[string]any {
	meta := map[string]any{MetaVersion: version, MetaContentHash: hash}
	if req.Shared {
		meta[MetaScope] = ScopeShared
	} else {
		meta[MetaOwner] = req.Agent
	}
	return meta
}

func (r *BlockRegistry) create(ctx context.Context, req BlockRequest, pin, hash string, first bool) (Entry, error) {
	version := pin
	if version == "" {
		version = versioning.Initial
	}
	label := versioning.BuildLabel(req.Block.Name, version, first)
	block, err := r.api.CreateBlock(ctx, platform.BlockSpec{
		Label:       label,
		Description: req.Block.Description,
		Value:       req.Block.Value,
		Limit:       req.Block.Limit,
		Metadata:    r.metadata(req, version, hash),
	})
	if err != nil {
		return Entry{}, fmt.Errorf("registry: create block %q: %w", label, err)
	}
	e := Entry{
		ID:          block.ID,
		Name:        req.Block.Name,
		Label:       label,
		Version:     version,
		ContentHash: hash,
		Shared:      req.Shared,
		Metadata:    block.Metadata,
	}
	r.Register(e)
	r.indexMu.Lock()
	if req.Shared {
		key := ScopeKey(e.Name, true)
		if r.versions[key] == nil {
			r.versions[key] = make(map[string]Entry)
		}
		r.versions[key][version] = e
	} else {
		r.owned[ownedKey(req.Agent, e.Name)] = e
	}
	r.indexMu.Unlock()
	logging.Infof("registry.Blocks.create label=%q id=%s shared=%t", label, block.ID, req.Shared)
	return e, nil
}

// rotate switches key to the block carrying pin, creating it when no loaded
// shared block has that version.
func (r *BlockRegistry) rotate(ctx context.Context, req BlockRequest, key, pin, hash string) (Entry, BlockAction, error) {
	if req.Shared {
		r.indexMu.RLock()
		existing, ok := r.versions[key][pin]
		r.indexMu.RUnlock()
		if ok {
			r.set(key, existing)
			logging.Infof("registry.Blocks.rotate reuse label=%q id=%s", existing.Label, existing.ID)
			return existing, BlockRotated, nil
		}
	}
	e, err := r.create(ctx, req, pin, hash, false)
	if err != nil {
		return Entry{}, "", err
	}
	return e, BlockRotated, nil
}

// push writes the declared value into an existing agent-scoped block and
// records a new content version in its metadata. The label is unchanged.
func (r *BlockRegistry) push(ctx context.Context, req BlockRequest, current Entry, hash string) (Entry, error) {
	version := versioning.NextVersionAt(hash, r.now().UTC())
	value := req.Block.Value
	update := platform.BlockUpdate{
		Value:    &value,
		Metadata: r.metadata(req, version, hash),
	}
	if req.Block.Description != "" {
		desc := req.Block.Description
		update.Description = &desc
	}
	if req.Block.Limit > 0 {
		limit := req.Block.Limit
		update.Limit = &limit
	}
	if _, err := r.api.UpdateBlock(ctx, current.ID, update); err != nil {
		return Entry{}, fmt.Errorf("registry: update block %q: %w", current.Label, err)
	}
	current.ContentHash = hash
	current.Metadata = update.Metadata
	r.Register(current)
	logging.Infof("registry.Blocks.push label=%q id=%s content_version=%s", current.Label, current.ID, version)
	return current, nil
}
