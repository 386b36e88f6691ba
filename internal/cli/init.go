package cli

import (
	"fmt"

	"github.com/danmuck/agentctl/internal/config"
	"github.com/danmuck/agentctl/internal/logging"
	"github.com/spf13/cobra"
)

func (a *App) initCommand() *cobra.Command {
	var path string
	var overwrite bool
	cmd := &cobra.Command{
		Use:       "init [settings|fleet]",
		Short:     "Write a starter settings or fleet file",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{config.TemplateSettings, config.TemplateFleet},
		// The settings file may not exist yet.
		PersistentPreRunE: func(*cobra.Command, []string) error {
			logging.ConfigureRuntime()
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := config.TemplateSettings
			if len(args) == 1 {
				kind = args[0]
			}
			target := path
			if target == "" {
				target = a.configPath
				if kind == config.TemplateFleet {
					target = "fleet.yaml"
				} else if target == "" {
					target = config.DefaultPath()
				}
			}
			if err := config.WriteTemplate(target, kind, overwrite); err != nil {
				return err
			}
			fmt.Fprintf(a.Out, "wrote %s template to %s\n", kind, target)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "output path (default: settings path, or ./fleet.yaml)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing file")
	return cmd
}
