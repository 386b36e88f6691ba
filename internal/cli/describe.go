package cli

import (
	"fmt"

	"github.com/danmuck/agentctl/internal/platform"
	"github.com/danmuck/agentctl/internal/render"
	"github.com/spf13/cobra"
)

func (a *App) describeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "describe agent NAME",
		Short: "Show a resource with what is attached to it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:     "agent NAME",
		Aliases: []string{"agents"},
		Short:   "Show an agent with its tools, blocks, folders and archives",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := a.api()
			if err != nil {
				return err
			}
			agent, _, err := platform.FindAgentByName(cmd.Context(), api, args[0])
			if err != nil {
				return err
			}
			desc := render.AgentDescription{Agent: agent, Attached: make(map[platform.Kind][]platform.Resource)}
			for _, kind := range platform.Kinds() {
				attached, err := api.ListAttached(cmd.Context(), agent.ID, kind)
				if err != nil {
					return fmt.Errorf("list %s of %q: %w", kind, agent.Name, err)
				}
				desc.Attached[kind] = attached
			}
			return a.write(desc)
		},
	})
	return cmd
}
