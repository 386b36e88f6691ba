package registry

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/danmuck/agentctl/internal/contenthash"
	"github.com/danmuck/agentctl/internal/logging"
	"github.com/danmuck/agentctl/internal/platform"
)

// BuiltinTools are platform primitives. They have no source file, are never
// hashed, and id drift on them is not a change.
var BuiltinTools = []string{
	"archival_memory_insert",
	"archival_memory_search",
	"conversation_search",
	"send_message",
	"core_memory_append",
	"core_memory_replace",
	"memory_insert",
	"memory_replace",
}

// IsBuiltinTool reports whether name is a platform primitive.
func IsBuiltinTool(name string) bool {
	return slices.Contains(BuiltinTools, name)
}

// ToolRegistry indexes tools by name and tracks the source hashes of tools
// that are backed by a local source file.
type ToolRegistry struct {
	api platform.ToolAPI
	named

	hashMu       sync.Mutex
	sourceHashes map[string]string
}

func NewToolRegistry(api platform.ToolAPI) *ToolRegistry {
	return &ToolRegistry{api: api, sourceHashes: make(map[string]string)}
}

// Load indexes every platform tool. Tools are not tenant-scoped, so there
// is no name filter. Later duplicates replace earlier ones.
func (r *ToolRegistry) Load(ctx context.Context) error {
	tools, err := r.api.ListTools(ctx)
	if err != nil {
		return fmt.Errorf("registry: load tools: %w", err)
	}
	entries := make(map[string]Entry, len(tools))
	for _, t := range tools {
		if t.ID == "" || t.Name == "" {
			continue
		}
		e := Entry{ID: t.ID, Name: t.Name}
		if t.SourceCode != "" {
			e.ContentHash = contenthash.Of(t.SourceCode)
		}
		entries[t.Name] = e
	}
	r.reset(entries)
	logging.Debugf("registry.Tools.Load loaded=%d", len(entries))
	return nil
}

func (r *ToolRegistry) ID(name string) (string, bool) {
	e, ok := r.get(name)
	return e.ID, ok
}

// Register records an externally resolved tool, e.g. one added from an MCP
// server.
func (r *ToolRegistry) Register(name, id string) {
	r.set(name, Entry{ID: id, Name: name})
}

// EnsureSource records the hash of source for name and registers the tool
// on the platform unless a tool of that name already carries the same
// source. changed reports whether a new tool id was produced.
func (r *ToolRegistry) EnsureSource(ctx context.Context, name, source string) (id string, changed bool, err error) {
	if !r.isLoaded() {
		return "", false, ErrNotLoaded
	}
	if IsBuiltinTool(name) {
		return "", false, fmt.Errorf("registry: tool %q is a builtin and has no source", name)
	}
	hash := contenthash.Of(source)
	r.hashMu.Lock()
	r.sourceHashes[name] = hash
	r.hashMu.Unlock()

	lookup := func() (Entry, bool) {
		e, ok := r.get(name)
		if ok && e.ContentHash == hash {
			return e, true
		}
		return Entry{}, false
	}
	e, err := r.once(name, lookup, func() (Entry, error) {
		tool, err := r.api.CreateTool(ctx, platform.ToolSpec{SourceCode: source, SourceType: "python"})
		if err != nil {
			return Entry{}, fmt.Errorf("registry: register tool %q: %w", name, err)
		}
		if tool.Name != "" && tool.Name != name {
			return Entry{}, fmt.Errorf("registry: tool source for %q defines %q", name, tool.Name)
		}
		changed = true
		logging.Infof("registry.Tools.EnsureSource registered name=%q id=%s hash=%s", name, tool.ID, hash)
		return Entry{ID: tool.ID, Name: name, ContentHash: hash}, nil
	})
	if err != nil {
		return "", false, err
	}
	return e.ID, changed, nil
}

// SourceHashes returns a copy of the tracked source hashes by tool name.
func (r *ToolRegistry) SourceHashes() map[string]string {
	r.hashMu.Lock()
	defer r.hashMu.Unlock()
	return maps.Clone(r.sourceHashes)
}

func (r *ToolRegistry) Entries() map[string]Entry {
	return r.snapshot()
}
