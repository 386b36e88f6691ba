package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/danmuck/agentctl/internal/fleet"
	"github.com/danmuck/agentctl/internal/logging"
	"github.com/danmuck/agentctl/internal/observability"
	"github.com/danmuck/agentctl/internal/platform"
	"github.com/danmuck/agentctl/internal/registry"
	"github.com/danmuck/agentctl/internal/versioning"
)

// DeleteReport is the result of deleting an agent.
type DeleteReport struct {
	Agent    string          `json:"agent" yaml:"agent"`
	AgentID  string          `json:"agent_id" yaml:"agent_id"`
	Deleted  []ResourceRef   `json:"cleaned_up" yaml:"cleaned_up"`
	Kept     []ResourceRef   `json:"kept" yaml:"kept"`
	Warnings []Warning       `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Rejected *GuardRejection `json:"rejected,omitempty" yaml:"rejected,omitempty"`
}

// ResourceRef names one platform resource of a kind.
type ResourceRef struct {
	Kind string `json:"kind" yaml:"kind"`
	Name string `json:"name" yaml:"name"`
	ID   string `json:"id" yaml:"id"`
}

// DeleteAgent deletes the named agent, then cleans up what only it used:
// its non-shared folders and its agent-owned blocks, when no other agent
// has them attached. cfg may be nil; when set, resources it declares as
// shared are always kept. Cleanup is advisory: failures become warnings.
func (r *Reconciler) DeleteAgent(ctx context.Context, cfg *fleet.Config, name string) (*DeleteReport, error) {
	rep := &DeleteReport{Agent: name, Deleted: []ResourceRef{}, Kept: []ResourceRef{}}
	if !r.opts.Force {
		rep.Rejected = &GuardRejection{Kind: "agent", Name: name, Reason: ReasonForceRequired}
		return rep, fmt.Errorf("%w: delete agent %q %s", ErrGuardRejected, name, ReasonForceRequired)
	}
	agent, agents, err := platform.FindAgentByName(ctx, r.api, name)
	if err != nil {
		return rep, err
	}
	rep.AgentID = agent.ID

	blocks, err := r.api.ListAttached(ctx, agent.ID, platform.KindBlock)
	if err != nil {
		return rep, fmt.Errorf("reconcile: list blocks of %q: %w", name, err)
	}
	folders, err := r.api.ListAttached(ctx, agent.ID, platform.KindFolder)
	if err != nil {
		return rep, fmt.Errorf("reconcile: list folders of %q: %w", name, err)
	}

	if err := r.api.DeleteAgent(ctx, agent.ID); err != nil {
		observability.RecordReconcileOp("agent", ActionDelete, "error")
		return rep, fmt.Errorf("reconcile: delete agent %q: %w", name, err)
	}
	observability.RecordReconcileOp("agent", ActionDelete, "ok")
	logging.Infof("reconcile.DeleteAgent agent=%q id=%s", name, agent.ID)

	var others []platform.Agent
	for _, a := range agents {
		if a.ID != agent.ID {
			others = append(others, a)
		}
	}
	usage, err := ScanUsage(ctx, r.api, others, platform.KindBlock, platform.KindFolder)
	if err != nil {
		// Nothing can be proven orphaned; keep everything.
		rep.Warnings = append(rep.Warnings, Warning{Step: "scan usage", Message: err.Error()})
		return rep, nil
	}

	names := fleet.CollectDesiredNames(cfg)
	var steps []Advisory
	for _, f := range folders {
		ref := ResourceRef{Kind: "folder", Name: f.Name, ID: f.ID}
		if names.SharedFolders.Has(f.Name) || len(usage.AttachedTo(platform.KindFolder, f.ID)) > 0 {
			rep.Kept = append(rep.Kept, ref)
			continue
		}
		steps = append(steps, r.cleanup(rep, ref, r.api.DeleteFolder))
	}
	for _, b := range blocks {
		ref := ResourceRef{Kind: "block", Name: b.Name, ID: b.ID}
		if !ownedBy(b, name, names) || len(usage.AttachedTo(platform.KindBlock, b.ID)) > 0 {
			rep.Kept = append(rep.Kept, ref)
			continue
		}
		steps = append(steps, r.cleanup(rep, ref, r.api.DeleteBlock))
	}
	rep.Warnings = append(rep.Warnings, RunAdvisories(ctx, steps...)...)
	return rep, nil
}

func (r *Reconciler) cleanup(rep *DeleteReport, ref ResourceRef, del func(context.Context, string) error) Advisory {
	return Advisory{
		Step: fmt.Sprintf("delete %s %q", ref.Kind, ref.Name),
		Do: func(ctx context.Context) error {
			if err := del(ctx, ref.ID); err != nil {
				observability.RecordReconcileOp(ref.Kind, ActionDelete, "error")
				return err
			}
			observability.RecordReconcileOp(ref.Kind, ActionDelete, "ok")
			rep.Deleted = append(rep.Deleted, ref)
			return nil
		},
	}
}

// ownedBy reports whether an attached block belongs to agent alone: tagged
// with it as owner, or untagged and not a declared shared block.
func ownedBy(b platform.Resource, agent string, names fleet.DesiredNames) bool {
	scope, _ := b.Metadata[registry.MetaScope].(string)
	if scope == registry.ScopeShared || names.SharedBlocks.Has(versioning.BaseName(b.Name)) {
		return false
	}
	owner, _ := b.Metadata[registry.MetaOwner].(string)
	return owner == "" || owner == agent
}

// DeleteResource deletes every block, folder or archive named name. Blocks
// match by label, or by base name when no label matches. Deletion requires
// Force and is refused while any match is attached to an agent.
func (r *Reconciler) DeleteResource(ctx context.Context, kind platform.Kind, name string) ([]ResourceRef, error) {
	if !r.opts.Force {
		return nil, fmt.Errorf("%w: delete %s %q %s", ErrGuardRejected, kind.Singular(), name, ReasonForceRequired)
	}
	matches, del, err := r.matchResources(ctx, kind, name)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, platform.NotFound(kind.Singular(), name)
	}
	usage, err := scanAll(ctx, r.api, kind)
	if err != nil {
		return nil, err
	}
	for _, m := range matches {
		if users := usage.AttachedTo(kind, m.ID); len(users) > 0 {
			g := GuardRejection{Kind: kind.Singular(), Name: m.Name, ID: m.ID, Reason: ReasonAttached, Users: users}
			return nil, fmt.Errorf("%w: %s", ErrGuardRejected, g)
		}
	}
	var deleted []ResourceRef
	var errs []error
	for _, m := range matches {
		if err := del(ctx, m.ID); err != nil {
			errs = append(errs, fmt.Errorf("delete %s %s: %w", m.Kind, m.ID, err))
			observability.RecordReconcileOp(m.Kind, ActionDelete, "error")
			continue
		}
		observability.RecordReconcileOp(m.Kind, ActionDelete, "ok")
		deleted = append(deleted, m)
	}
	logging.Infof("reconcile.DeleteResource kind=%s name=%q deleted=%d", kind, name, len(deleted))
	return deleted, errors.Join(errs...)
}

func (r *Reconciler) matchResources(ctx context.Context, kind platform.Kind, name string) ([]ResourceRef, func(context.Context, string) error, error) {
	var out []ResourceRef
	switch kind {
	case platform.KindBlock:
		blocks, err := r.api.ListBlocks(ctx)
		if err != nil {
			return nil, nil, err
		}
		var byBase []ResourceRef
		for _, b := range blocks {
			ref := ResourceRef{Kind: "block", Name: b.Label, ID: b.ID}
			if b.Label == name {
				out = append(out, ref)
			} else if versioning.BaseName(b.Label) == name {
				byBase = append(byBase, ref)
			}
		}
		if len(out) == 0 {
			out = byBase
		}
		return out, r.api.DeleteBlock, nil
	case platform.KindFolder:
		folders, err := r.api.ListFolders(ctx)
		if err != nil {
			return nil, nil, err
		}
		for _, f := range folders {
			if f.Name == name {
				out = append(out, ResourceRef{Kind: "folder", Name: f.Name, ID: f.ID})
			}
		}
		return out, r.api.DeleteFolder, nil
	case platform.KindArchive:
		archives, err := r.api.ListArchives(ctx)
		if err != nil {
			return nil, nil, err
		}
		for _, a := range archives {
			if a.Name == name {
				out = append(out, ResourceRef{Kind: "archive", Name: a.Name, ID: a.ID})
			}
		}
		return out, r.api.DeleteArchive, nil
	default:
		return nil, nil, fmt.Errorf("reconcile: cannot delete %s", kind)
	}
}
