package cli

import (
	"github.com/danmuck/agentctl/internal/fleet"
	"github.com/danmuck/agentctl/internal/logging"
	"github.com/danmuck/agentctl/internal/observability"
	"github.com/danmuck/agentctl/internal/reconcile"
	"github.com/danmuck/agentctl/internal/render"
	"github.com/spf13/cobra"
)

const (
	FlagFile            = "file"
	FlagAgent           = "agent"
	FlagMetricsTextfile = "metrics-textfile"
)

type applyOptions struct {
	file            string
	force           bool
	agents          []string
	metricsTextfile string
}

func (a *App) applyCommand() *cobra.Command {
	var opts applyOptions
	cmd := &cobra.Command{
		Use:   "apply -f FLEET",
		Short: "Converge the platform to a fleet document",
		Long: `apply creates and attaches everything the fleet document declares.
Detaching undeclared resources requires --force; without it those
operations are reported and the command exits with status 2. Shared
resources still declared or attached elsewhere are never detached.`,
		Example: `  agentctl apply -f fleet.yaml
  agentctl apply -f fleet.yaml --agent support --force -o wide`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runApply(cmd, opts)
		},
		DisableAutoGenTag: true,
	}
	cmd.Flags().StringVarP(&opts.file, FlagFile, "f", "", "fleet document (.yaml, .yml, .json or .toml)")
	cmd.Flags().BoolVar(&opts.force, FlagForce, false, "allow detaching undeclared resources")
	cmd.Flags().StringSliceVar(&opts.agents, FlagAgent, nil, "only reconcile these agents (repeatable)")
	cmd.Flags().StringVar(&opts.metricsTextfile, FlagMetricsTextfile, "", "write run metrics to a node-exporter textfile")
	_ = cmd.MarkFlagRequired(FlagFile)
	return cmd
}

func (a *App) runApply(cmd *cobra.Command, opts applyOptions) error {
	cfg, err := fleet.LoadWithRoot(opts.file, a.settings.RootPath)
	if err != nil {
		return err
	}
	api, err := a.api()
	if err != nil {
		return err
	}
	rec := reconcile.New(api, reconcile.Options{Force: opts.force, Agents: opts.agents})
	rep, err := rec.Apply(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	if opts.metricsTextfile != "" {
		if err := observability.WriteTextfile(opts.metricsTextfile); err != nil {
			a.warn("%v", err)
		}
	}

	if err := a.write(render.ApplyReport{Report: rep}); err != nil {
		return err
	}
	if a.tabular() {
		a.summarize(rep)
	}
	logging.Infof("cli.apply run=%s agents=%d", rep.RunID, len(rep.Agents))
	return rep.Err()
}

// summarize prints what a table cannot hold: held operations, failures
// and warnings.
func (a *App) summarize(rep *reconcile.Report) {
	if rejections := rep.Rejections(); len(rejections) > 0 {
		a.warn("%d operation(s) held back, rerun with --force to apply:", len(rejections))
		_ = render.Write(a.Err, a.format, render.Rejections(rejections))
	}
	for _, f := range rep.Failures {
		a.warn("%s %q %s: %s", f.Kind, f.Name, f.Action, f.Error)
	}
	for _, r := range rep.Agents {
		if r.Error != "" {
			a.warn("agent %q: %s", r.Agent, r.Error)
		}
		for _, f := range r.Failures {
			a.warn("agent %q: %s %q %s: %s", r.Agent, f.Kind, f.Name, f.Action, f.Error)
		}
	}
	for _, w := range rep.Warnings {
		a.warn("%s: %s", w.Step, w.Message)
	}
}
