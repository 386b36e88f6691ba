package reconcile

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/danmuck/agentctl/internal/diff"
	"github.com/danmuck/agentctl/internal/fleet"
	"github.com/danmuck/agentctl/internal/logging"
	"github.com/danmuck/agentctl/internal/observability"
	"github.com/danmuck/agentctl/internal/platform"
	"github.com/danmuck/agentctl/internal/registry"
)

// applyAgent converges one agent. Failures are recorded on the result;
// only a failure that leaves no agent to work on ends it early.
func (rn *run) applyAgent(ctx context.Context, a fleet.Agent) AgentResult {
	res := AgentResult{Agent: a.Name}

	current, found := rn.findAgent(a.Name)
	if !found {
		created, err := rn.createAgent(ctx, a)
		if err != nil {
			res.Error = err.Error()
			observability.RecordReconcileOp("agent", ActionCreate, "error")
			return res
		}
		observability.RecordReconcileOp("agent", ActionCreate, "ok")
		current = created
		res.Created = true
	}
	res.AgentID = current.ID

	attached, err := rn.listAttached(ctx, current.ID, res.Created)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	rn.blocks.ClearAgentScope()
	rn.blocks.RegisterAgentBlocks(attached[platform.KindBlock], nameSet(a.SharedBlocks))

	desiredTools := rn.resolveTools(ctx, a, &res)
	desiredBlocks := rn.resolveBlocks(ctx, a, &res)
	desiredFolders := rn.resolveFolders(ctx, a, &res)
	desiredArchives := rn.resolveArchives(ctx, a, &res)

	var fields []diff.FieldChange
	var patch platform.AgentUpdate
	if !res.Created {
		fields, patch = diff.AgentFields(current, a)
	}
	plan := diff.NewAgentUpdateOperations(a.Name, current.ID, fields, patch,
		diff.AnalyzeTools(attached[platform.KindTool], desiredTools, rn.tools.ID, rn.tools.SourceHashes()),
		diff.AnalyzeBlocks(attached[platform.KindBlock], desiredBlocks, rn.blocks),
		diff.AnalyzeFolders(attached[platform.KindFolder], desiredFolders, rn.folders.ID),
		diff.AnalyzeArchives(attached[platform.KindArchive], desiredArchives, rn.archives.ID),
	)
	// The plan reflects the agent before creation.
	plan.Create = res.Created
	res.Plan = plan
	logging.Debugf("reconcile.applyAgent agent=%q fields=%d tools=%d blocks=%d folders=%d archives=%d",
		a.Name, len(plan.Fields), plan.Tools.Count(), plan.Blocks.Count(), plan.Folders.Count(), plan.Archives.Count())

	if !patch.Empty() {
		if _, err := rn.api.UpdateAgent(ctx, current.ID, patch); err != nil {
			res.Failures = append(res.Failures, Failure{Kind: "agent", Name: a.Name, Action: ActionUpdate, Error: err.Error()})
			observability.RecordReconcileOp("agent", ActionUpdate, "error")
		} else {
			observability.RecordReconcileOp("agent", ActionUpdate, "ok")
		}
	}
	for _, kd := range plan.Kinds() {
		rn.applyKind(ctx, current.ID, kd, &res)
	}

	rn.ensureConversations(ctx, a, current.ID, &res)

	if res.Created && a.FirstMessage != "" {
		if err := rn.api.SendMessage(ctx, current.ID, a.FirstMessage); err != nil {
			res.Failures = append(res.Failures, Failure{Kind: "agent", Name: a.Name, Action: "first_message", Error: err.Error()})
		}
	}
	return res
}

func (rn *run) findAgent(name string) (platform.Agent, bool) {
	for _, a := range rn.agents {
		if a.Name == name {
			return a, true
		}
	}
	return platform.Agent{}, false
}

func (rn *run) createAgent(ctx context.Context, a fleet.Agent) (platform.Agent, error) {
	spec := platform.AgentSpec{
		Name:        a.Name,
		Description: a.Description,
		System:      a.SystemPrompt.Value,
		LLMConfig: &platform.LLMConfig{
			Model:         a.LLMConfig.Model,
			ContextWindow: a.LLMConfig.ContextWindow,
			MaxTokens:     a.LLMConfig.MaxTokens,
		},
		Embedding: a.Embedding,
		Tags:      a.Tags,
		Reasoning: a.Reasoning,
	}
	created, err := rn.api.CreateAgent(ctx, spec)
	if err != nil {
		return platform.Agent{}, fmt.Errorf("reconcile: create agent %q: %w", a.Name, err)
	}
	rn.agents = append(rn.agents, created)
	logging.Infof("reconcile.createAgent agent=%q id=%s", a.Name, created.ID)
	return created, nil
}

// listAttached fetches the agent's attachments per kind. A fresh agent has
// none, so no calls are made for it.
func (rn *run) listAttached(ctx context.Context, agentID string, fresh bool) (map[platform.Kind][]platform.Resource, error) {
	out := make(map[platform.Kind][]platform.Resource, 4)
	for _, k := range platform.Kinds() {
		if fresh {
			out[k] = nil
			continue
		}
		attached, err := rn.api.ListAttached(ctx, agentID, k)
		if err != nil {
			return nil, fmt.Errorf("reconcile: list attached %s: %w", k, err)
		}
		out[k] = attached
	}
	return out, nil
}

// resolveTools returns the agent's desired tool names, registering source
// tracked tools and MCP tools on the way. A name that cannot be resolved
// stays desired so an attached copy is not detached.
func (rn *run) resolveTools(ctx context.Context, a fleet.Agent, res *AgentResult) []string {
	names := make([]string, 0, len(a.Tools))
	for _, name := range a.Tools {
		names = append(names, name)
		if registry.IsBuiltinTool(name) {
			if _, ok := rn.tools.ID(name); !ok {
				res.fail(platform.KindTool, name, ActionAttach, platform.NotFound("tool", name))
			}
			continue
		}
		source, tracked, err := rn.cfg.ToolSource(name)
		if err != nil {
			res.fail(platform.KindTool, name, ActionCreate, err)
			continue
		}
		if tracked {
			if _, changed, err := rn.tools.EnsureSource(ctx, name, source); err != nil {
				res.fail(platform.KindTool, name, ActionCreate, err)
			} else if changed {
				observability.RecordReconcileOp(platform.KindTool.Singular(), ActionCreate, "ok")
			}
			continue
		}
		if _, ok := rn.tools.ID(name); !ok {
			res.fail(platform.KindTool, name, ActionAttach, platform.NotFound("tool", name))
		}
	}
	for _, ref := range a.MCPTools {
		mcpNames, err := rn.resolveMCPTools(ctx, ref)
		if err != nil {
			res.fail(platform.KindTool, ref.Server, ActionAttach, err)
		}
		names = append(names, mcpNames...)
	}
	return names
}

// resolveBlocks gets or creates every block the agent declares, shared
// references first.
func (rn *run) resolveBlocks(ctx context.Context, a fleet.Agent, res *AgentResult) []diff.DesiredBlock {
	out := make([]diff.DesiredBlock, 0, len(a.SharedBlocks)+len(a.MemoryBlocks))
	for _, name := range a.SharedBlocks {
		out = append(out, diff.DesiredBlock{Name: name, Shared: true})
		spec, ok := rn.cfg.SharedBlock(name)
		if !ok {
			res.fail(platform.KindBlock, name, ActionCreate, fmt.Errorf("%w: shared block %q is not declared", fleet.ErrInvalidConfig, name))
			continue
		}
		rn.resolveBlock(ctx, registry.BlockRequest{Block: spec, Shared: true}, res)
	}
	for _, b := range a.MemoryBlocks {
		out = append(out, diff.DesiredBlock{Name: b.Name})
		rn.resolveBlock(ctx, registry.BlockRequest{Block: b, Agent: a.Name}, res)
	}
	return out
}

func (rn *run) resolveBlock(ctx context.Context, req registry.BlockRequest, res *AgentResult) {
	result, err := rn.blocks.GetOrCreate(ctx, req)
	if err != nil {
		res.fail(platform.KindBlock, req.Block.Name, ActionCreate, err)
		observability.RecordReconcileOp(platform.KindBlock.Singular(), ActionCreate, "error")
		return
	}
	if result.Action != registry.BlockReused {
		observability.RecordReconcileOp(platform.KindBlock.Singular(), string(result.Action), "ok")
	}
	res.Blocks = append(res.Blocks, BlockChange{
		Name:   req.Block.Name,
		Shared: req.Shared,
		ID:     result.ID,
		Label:  result.Label,
		Action: result.Action,
	})
}

func (rn *run) resolveFolders(ctx context.Context, a fleet.Agent, res *AgentResult) []string {
	out := make([]string, 0, len(a.Folders)+len(a.SharedFolders))
	for _, name := range a.SharedFolders {
		out = append(out, name)
		spec, ok := rn.cfg.SharedFolder(name)
		if !ok {
			res.fail(platform.KindFolder, name, ActionCreate, fmt.Errorf("%w: shared folder %q is not declared", fleet.ErrInvalidConfig, name))
			continue
		}
		if _, err := rn.ensureFolder(ctx, spec, a.Embedding); err != nil {
			res.fail(platform.KindFolder, name, ActionCreate, err)
		}
	}
	for _, f := range a.Folders {
		out = append(out, f.Name)
		if _, err := rn.ensureFolder(ctx, f, a.Embedding); err != nil {
			res.fail(platform.KindFolder, f.Name, ActionCreate, err)
		}
	}
	return out
}

// ensureFolder gets or creates a folder and uploads its files when this
// call created it. Existing folders are not synced. The id is returned even
// when an upload fails.
func (rn *run) ensureFolder(ctx context.Context, f fleet.Folder, embedding string) (string, error) {
	id, created, err := rn.folders.GetOrCreate(ctx, platform.FolderSpec{Name: f.Name, Embedding: embedding})
	if err != nil {
		observability.RecordReconcileOp(platform.KindFolder.Singular(), ActionCreate, "error")
		return "", err
	}
	if !created {
		return id, nil
	}
	observability.RecordReconcileOp(platform.KindFolder.Singular(), ActionCreate, "ok")
	var errs []error
	for _, ref := range f.Files {
		data, err := rn.cfg.ReadFile(ref)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := rn.api.UploadFile(ctx, id, filepath.Base(ref), data); err != nil {
			errs = append(errs, fmt.Errorf("upload %s: %w", ref, err))
			observability.RecordReconcileOp(platform.KindFolder.Singular(), ActionUpload, "error")
			continue
		}
		observability.RecordReconcileOp(platform.KindFolder.Singular(), ActionUpload, "ok")
	}
	return id, errors.Join(errs...)
}

func (rn *run) resolveArchives(ctx context.Context, a fleet.Agent, res *AgentResult) []string {
	out := make([]string, 0, len(a.Archives))
	for _, ar := range a.Archives {
		out = append(out, ar.Name)
		embedding := ar.Embedding
		if embedding == "" {
			embedding = a.Embedding
		}
		if _, err := rn.archives.GetOrCreate(ctx, platform.ArchiveSpec{Name: ar.Name, Description: ar.Description, Embedding: embedding}); err != nil {
			res.fail(platform.KindArchive, ar.Name, ActionCreate, err)
		}
	}
	return out
}

// applyKind executes one kind's diff: attaches, swaps, then guarded
// detaches. Each operation succeeds or fails on its own.
func (rn *run) applyKind(ctx context.Context, agentID string, kd diff.KindDiff, res *AgentResult) {
	kind := kd.Kind.Singular()
	for _, ref := range kd.ToAdd {
		if ref.ID == "" {
			// Resolution already failed and was recorded.
			continue
		}
		if err := rn.api.Attach(ctx, agentID, kd.Kind, ref.ID); err != nil {
			res.fail(kd.Kind, ref.Name, ActionAttach, err)
			observability.RecordReconcileOp(kind, ActionAttach, "error")
			continue
		}
		observability.RecordReconcileOp(kind, ActionAttach, "ok")
	}
	for _, u := range kd.ToUpdate {
		if err := rn.swap(ctx, agentID, kd.Kind, u); err != nil {
			res.fail(kd.Kind, u.Name, ActionSwap, err)
			observability.RecordReconcileOp(kind, ActionSwap, "error")
			continue
		}
		observability.RecordReconcileOp(kind, ActionSwap, "ok")
	}
	for _, ref := range kd.ToRemove {
		if g, held := rn.guardDetach(ctx, res.Agent, kd.Kind, ref); held {
			res.reject(g)
			observability.RecordReconcileOp(kind, ActionDetach, "rejected")
			continue
		}
		if err := rn.api.Detach(ctx, agentID, kd.Kind, ref.ID); err != nil {
			res.fail(kd.Kind, ref.Name, ActionDetach, err)
			observability.RecordReconcileOp(kind, ActionDetach, "error")
			continue
		}
		observability.RecordReconcileOp(kind, ActionDetach, "ok")
	}
}

// swap replaces the attached id with the desired one.
func (rn *run) swap(ctx context.Context, agentID string, kind platform.Kind, u diff.Update) error {
	if err := rn.api.Detach(ctx, agentID, kind, u.CurrentID); err != nil && !platform.IsNotFound(err) {
		return fmt.Errorf("detach %s: %w", u.CurrentID, err)
	}
	if err := rn.api.Attach(ctx, agentID, kind, u.DesiredID); err != nil {
		return fmt.Errorf("attach %s: %w", u.DesiredID, err)
	}
	logging.Infof("reconcile.swap agent=%s kind=%s name=%q from=%s to=%s reason=%s", agentID, kind, u.Name, u.CurrentID, u.DesiredID, u.Reason)
	return nil
}

func nameSet(names []string) fleet.NameSet {
	s := fleet.NameSet{}
	s.Add(names...)
	return s
}
