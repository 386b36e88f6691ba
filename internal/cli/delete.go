package cli

import (
	"github.com/danmuck/agentctl/internal/fleet"
	"github.com/danmuck/agentctl/internal/platform"
	"github.com/danmuck/agentctl/internal/reconcile"
	"github.com/danmuck/agentctl/internal/render"
	"github.com/spf13/cobra"
)

func (a *App) deleteCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "delete {agent|block|folder|archive} NAME",
		Short: "Delete platform resources (requires --force)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.PersistentFlags().BoolVar(&force, FlagForce, false, "actually delete")

	var file string
	agent := &cobra.Command{
		Use:   "agent NAME",
		Short: "Delete an agent and clean up what only it used",
		Long: `delete agent removes the agent, then deletes its folders and its
agent-owned memory blocks when no other agent has them attached. With
-f, resources the fleet document declares as shared are always kept.
Cleanup failures are reported as warnings.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg *fleet.Config
			if file != "" {
				var err error
				if cfg, err = fleet.LoadWithRoot(file, a.settings.RootPath); err != nil {
					return err
				}
			}
			api, err := a.api()
			if err != nil {
				return err
			}
			rep, err := reconcile.New(api, reconcile.Options{Force: force}).DeleteAgent(cmd.Context(), cfg, args[0])
			if rep != nil && (err == nil || rep.Rejected != nil) {
				if werr := a.write(render.DeleteReport{Report: rep}); werr != nil {
					return werr
				}
				for _, w := range rep.Warnings {
					a.warn("%s: %s", w.Step, w.Message)
				}
			}
			return err
		},
	}
	agent.Flags().StringVarP(&file, FlagFile, "f", "", "fleet document whose shared resources are kept")
	cmd.AddCommand(agent)

	for _, kind := range []platform.Kind{platform.KindBlock, platform.KindFolder, platform.KindArchive} {
		cmd.AddCommand(&cobra.Command{
			Use:   kind.Singular() + " NAME",
			Short: "Delete every " + kind.Singular() + " named NAME that no agent has attached",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				api, err := a.api()
				if err != nil {
					return err
				}
				deleted, err := reconcile.New(api, reconcile.Options{Force: force}).DeleteResource(cmd.Context(), kind, args[0])
				if len(deleted) > 0 {
					if werr := a.write(render.Deleted(deleted)); werr != nil {
						return werr
					}
				}
				return err
			},
		})
	}
	return cmd
}
