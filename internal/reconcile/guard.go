package reconcile

import (
	"context"
	"slices"

	"github.com/danmuck/agentctl/internal/diff"
	"github.com/danmuck/agentctl/internal/logging"
	"github.com/danmuck/agentctl/internal/platform"
	"github.com/danmuck/agentctl/internal/registry"
	"github.com/danmuck/agentctl/internal/versioning"
)

// guardDetach decides whether a computed detach must be held back. Every
// detach needs Force. A shared block or folder is additionally held while
// any other agent declares it or has it attached.
func (rn *run) guardDetach(ctx context.Context, agent string, kind platform.Kind, ref diff.Ref) (GuardRejection, bool) {
	g := GuardRejection{Kind: kind.Singular(), Name: ref.Name, ID: ref.ID}
	if !rn.opts.Force {
		g.Reason = ReasonForceRequired
		return g, true
	}
	if !rn.isShared(kind, ref) {
		return g, false
	}

	declared := rn.sharedUse
	if kind == platform.KindFolder {
		declared = rn.folderUse
	}
	users := declared.Others(versioning.BaseName(ref.Name), agent)
	usage, err := rn.liveUsage(ctx)
	if err != nil {
		// Without the live graph the resource cannot be proven unused.
		logging.Warnf("reconcile.guardDetach usage scan failed: %v", err)
		g.Reason = ReasonSharedInUse + " (usage scan failed: " + err.Error() + ")"
		return g, true
	}
	users = append(users, usage.Others(kind, ref.ID, agent)...)
	if len(users) == 0 {
		return g, false
	}
	slices.Sort(users)
	g.Reason = ReasonSharedInUse
	g.Users = slices.Compact(users)
	return g, true
}

func (rn *run) isShared(kind platform.Kind, ref diff.Ref) bool {
	switch kind {
	case platform.KindBlock:
		if e, ok := rn.blocks.Entry(ref.Name, true); ok && e.ID == ref.ID {
			return true
		}
		return rn.names.SharedBlocks.Has(versioning.BaseName(ref.Name)) || rn.taggedShared(ref.ID)
	case platform.KindFolder:
		return rn.names.SharedFolders.Has(ref.Name)
	default:
		return false
	}
}

// taggedShared reports whether the block with id carries the shared scope
// tag in the loaded registry.
func (rn *run) taggedShared(id string) bool {
	for _, e := range rn.blocks.Entries() {
		if e.ID == id {
			scope, _ := e.Metadata[registry.MetaScope].(string)
			return scope == registry.ScopeShared
		}
	}
	return false
}
