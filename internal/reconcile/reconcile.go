// Package reconcile drives a platform toward a fleet document. One Apply
// call is one run: it loads fresh registries, reconciles each selected
// agent in turn and returns a Report. Removals are held back unless forced,
// and shared resources still used elsewhere in the fleet are never
// detached.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/agentctl/internal/fleet"
	"github.com/danmuck/agentctl/internal/logging"
	"github.com/danmuck/agentctl/internal/platform"
	"github.com/danmuck/agentctl/internal/registry"
	"github.com/google/uuid"
)

var (
	// ErrGuardRejected marks operations reported but not executed.
	ErrGuardRejected = errors.New("reconcile: guard rejected")
	// ErrApplyFailed marks a run in which at least one operation failed.
	ErrApplyFailed = errors.New("reconcile: apply failed")
)

// Options tune a Reconciler.
type Options struct {
	// Force allows removals: detaches during apply and deletions.
	Force bool
	// Agents restricts apply to the named agents. Empty means all.
	Agents []string
}

// Reconciler applies fleet documents to a platform.
type Reconciler struct {
	api  platform.API
	opts Options
	now  func() time.Time
}

func New(api platform.API, opts Options) *Reconciler {
	return &Reconciler{api: api, opts: opts, now: time.Now}
}

// SetClock overrides the clock used for report timestamps and block
// content versions.
func (r *Reconciler) SetClock(now func() time.Time) {
	r.now = now
}

// run is the state owned by one Apply call.
type run struct {
	*Reconciler
	cfg   *fleet.Config
	names fleet.DesiredNames

	blocks   *registry.BlockRegistry
	folders  *registry.FolderRegistry
	archives *registry.ArchiveRegistry
	tools    *registry.ToolRegistry

	agents     []platform.Agent
	usage      *Usage
	usageErr   error
	sharedUse  fleet.Usage
	folderUse  fleet.Usage
	mcpKnown   map[string]bool
	mcpTools   map[string][]string
	mcpFailure map[string]error

	report *Report
}

// Apply reconciles every selected agent of cfg. The returned error is
// non-nil only when the run could not start: invalid configuration or a
// failed registry load. Per-agent outcomes are in the Report; Report.Err
// summarizes them.
func (r *Reconciler) Apply(ctx context.Context, cfg *fleet.Config) (*Report, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: no fleet document", fleet.ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.ResolveContent(); err != nil {
		return nil, err
	}
	selected, err := r.selectAgents(cfg)
	if err != nil {
		return nil, err
	}

	rn := &run{
		Reconciler: r,
		cfg:        cfg,
		names:      fleet.CollectDesiredNames(cfg),
		blocks:     registry.NewBlockRegistry(r.api),
		folders:    registry.NewFolderRegistry(r.api),
		archives:   registry.NewArchiveRegistry(r.api),
		tools:      registry.NewToolRegistry(r.api),
		sharedUse:  cfg.SharedBlockUsage(),
		folderUse:  cfg.SharedFolderUsage(),
		mcpKnown:   make(map[string]bool),
		mcpTools:   make(map[string][]string),
		mcpFailure: make(map[string]error),
		report: &Report{
			RunID:     uuid.NewString(),
			StartedAt: r.now().UTC(),
			Force:     r.opts.Force,
			Agents:    []AgentResult{},
		},
	}
	rn.blocks.SetClock(r.now)
	logging.Infof("reconcile.Apply run=%s agents=%d force=%t", rn.report.RunID, len(selected), r.opts.Force)

	if err := rn.load(ctx); err != nil {
		return nil, err
	}
	if err := rn.ensureMCPServers(ctx); err != nil {
		return nil, err
	}
	if len(r.opts.Agents) == 0 {
		rn.ensureSharedResources(ctx)
	}
	for _, a := range selected {
		res := rn.applyAgent(ctx, a)
		res.settle()
		logging.Infof("reconcile.Apply agent=%q outcome=%s ops=%d", res.Agent, res.Outcome, res.Plan.OperationCount)
		rn.report.Agents = append(rn.report.Agents, res)
	}
	rn.report.FinishedAt = r.now().UTC()
	return rn.report, nil
}

func (r *Reconciler) selectAgents(cfg *fleet.Config) ([]fleet.Agent, error) {
	if len(r.opts.Agents) == 0 {
		return cfg.Agents, nil
	}
	out := make([]fleet.Agent, 0, len(r.opts.Agents))
	for _, name := range r.opts.Agents {
		a, ok := cfg.Agent(name)
		if !ok {
			return nil, fmt.Errorf("%w: agent %q is not declared (declared: %s)", fleet.ErrInvalidConfig, name, strings.Join(cfg.AgentNames(), ", "))
		}
		out = append(out, a)
	}
	return out, nil
}

// load fills every registry and lists the platform's agents. Any failure
// aborts the run: nothing may be diffed against a partial index.
func (rn *run) load(ctx context.Context) error {
	if err := rn.blocks.Load(ctx, rn.names.Blocks); err != nil {
		return err
	}
	if err := rn.folders.Load(ctx, rn.names.Folders); err != nil {
		return err
	}
	if err := rn.archives.Load(ctx, rn.names.Archives); err != nil {
		return err
	}
	if err := rn.tools.Load(ctx); err != nil {
		return err
	}
	agents, err := rn.api.ListAgents(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: list agents: %w", err)
	}
	rn.agents = agents
	return nil
}

// liveUsage scans the fleet's live attachments once per run, on first use.
func (rn *run) liveUsage(ctx context.Context) (*Usage, error) {
	if rn.usage == nil && rn.usageErr == nil {
		rn.usage, rn.usageErr = ScanUsage(ctx, rn.api, rn.agents, platform.KindBlock, platform.KindFolder)
	}
	return rn.usage, rn.usageErr
}

// ensureSharedResources creates every declared shared block and folder,
// including ones no agent references yet.
func (rn *run) ensureSharedResources(ctx context.Context) {
	for _, b := range rn.cfg.SharedBlocks {
		if _, err := rn.blocks.GetOrCreate(ctx, registry.BlockRequest{Block: b, Shared: true}); err != nil {
			rn.report.Failures = append(rn.report.Failures, Failure{Kind: "block", Name: b.Name, Action: ActionCreate, Error: err.Error()})
		}
	}
	for _, f := range rn.cfg.SharedFolders {
		if _, err := rn.ensureFolder(ctx, f, ""); err != nil {
			rn.report.Failures = append(rn.report.Failures, Failure{Kind: "folder", Name: f.Name, Action: ActionCreate, Error: err.Error()})
		}
	}
}
