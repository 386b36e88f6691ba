package cli

import (
	"fmt"

	"github.com/danmuck/agentctl/internal/platform"
	"github.com/danmuck/agentctl/internal/reconcile"
	"github.com/danmuck/agentctl/internal/render"
	"github.com/spf13/cobra"
)

const (
	FlagShared   = "shared"
	FlagOrphaned = "orphaned"
)

func (a *App) getCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get {agents|blocks|folders|archives|tools|mcp-servers|conversations}",
		Short: "List platform resources",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(a.getList("agents", []string{"agent"}, func(c *cobra.Command, api platform.API) (any, error) {
		agents, err := api.ListAgents(c.Context())
		return render.Agents(agents), err
	}))
	cmd.AddCommand(a.getUsage("blocks", []string{"block"}, platform.KindBlock, func(c *cobra.Command, api platform.API) (any, error) {
		blocks, err := api.ListBlocks(c.Context())
		return render.Blocks(blocks), err
	}))
	cmd.AddCommand(a.getUsage("folders", []string{"folder"}, platform.KindFolder, func(c *cobra.Command, api platform.API) (any, error) {
		folders, err := api.ListFolders(c.Context())
		return render.Folders(folders), err
	}))
	cmd.AddCommand(a.getList("archives", []string{"archive"}, func(c *cobra.Command, api platform.API) (any, error) {
		archives, err := api.ListArchives(c.Context())
		return render.Archives(archives), err
	}))
	cmd.AddCommand(a.getList("tools", []string{"tool"}, func(c *cobra.Command, api platform.API) (any, error) {
		tools, err := api.ListTools(c.Context())
		return render.Tools(tools), err
	}))
	cmd.AddCommand(a.getList("mcp-servers", []string{"mcp-server", "mcp"}, func(c *cobra.Command, api platform.API) (any, error) {
		servers, err := api.ListMCPServers(c.Context())
		return render.MCPServers(servers), err
	}))
	cmd.AddCommand(a.getConversations())
	return cmd
}

type lister func(*cobra.Command, platform.API) (any, error)

func (a *App) getList(use string, aliases []string, list lister) *cobra.Command {
	return &cobra.Command{
		Use:     use,
		Aliases: aliases,
		Short:   "List " + use,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			api, err := a.api()
			if err != nil {
				return err
			}
			out, err := list(cmd, api)
			if err != nil {
				return fmt.Errorf("list %s: %w", use, err)
			}
			return a.write(out)
		},
	}
}

// getUsage is getList with --shared and --orphaned views backed by the
// attachment scan.
func (a *App) getUsage(use string, aliases []string, kind platform.Kind, list lister) *cobra.Command {
	var shared, orphaned bool
	cmd := a.getList(use, aliases, list)
	plain := cmd.RunE
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		filter := reconcile.UsageAll
		switch {
		case shared && orphaned:
			return fmt.Errorf("--%s and --%s are mutually exclusive", FlagShared, FlagOrphaned)
		case shared:
			filter = reconcile.UsageShared
		case orphaned:
			filter = reconcile.UsageOrphaned
		default:
			return plain(cmd, args)
		}
		api, err := a.api()
		if err != nil {
			return err
		}
		var usage []reconcile.ResourceUsage
		if kind == platform.KindBlock {
			usage, err = reconcile.BlockUsage(cmd.Context(), api, filter)
		} else {
			usage, err = reconcile.FolderUsage(cmd.Context(), api, filter)
		}
		if err != nil {
			return fmt.Errorf("scan %s usage: %w", use, err)
		}
		return a.write(render.Usage(usage))
	}
	cmd.Flags().BoolVar(&shared, FlagShared, false, "only "+use+" shared between agents")
	cmd.Flags().BoolVar(&orphaned, FlagOrphaned, false, "only "+use+" attached to no agent")
	return cmd
}

func (a *App) getConversations() *cobra.Command {
	return &cobra.Command{
		Use:     "conversations AGENT",
		Aliases: []string{"conversation", "convs"},
		Short:   "List the conversations of an agent",
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
			convs, err := api.ListConversations(cmd.Context(), agent.ID)
			if err != nil {
				return fmt.Errorf("list conversations of %q: %w", args[0], err)
			}
			return a.write(render.Conversations(convs))
		},
	}
}
