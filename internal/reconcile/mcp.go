package reconcile

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/danmuck/agentctl/internal/fleet"
	"github.com/danmuck/agentctl/internal/logging"
	"github.com/danmuck/agentctl/internal/observability"
	"github.com/danmuck/agentctl/internal/platform"
)

// ensureMCPServers registers declared MCP servers that the platform does
// not know yet. Listing is a registry load and fatal on failure; a failed
// creation only fails the agents that use the server.
func (rn *run) ensureMCPServers(ctx context.Context) error {
	if len(rn.cfg.MCPServers) == 0 && !rn.usesMCP() {
		return nil
	}
	servers, err := rn.api.ListMCPServers(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: list mcp servers: %w", err)
	}
	for _, s := range servers {
		rn.mcpKnown[s.Name] = true
	}
	for _, s := range rn.cfg.MCPServers {
		if rn.mcpKnown[s.Name] {
			continue
		}
		if _, err := rn.api.CreateMCPServer(ctx, toPlatformServer(s)); err != nil {
			rn.mcpFailure[s.Name] = err
			rn.report.Failures = append(rn.report.Failures, Failure{Kind: "mcp_server", Name: s.Name, Action: ActionCreate, Error: err.Error()})
			observability.RecordReconcileOp("mcp_server", ActionCreate, "error")
			continue
		}
		rn.mcpKnown[s.Name] = true
		observability.RecordReconcileOp("mcp_server", ActionCreate, "ok")
		logging.Infof("reconcile.ensureMCPServers created name=%q type=%s", s.Name, s.Type)
	}
	return nil
}

func (rn *run) usesMCP() bool {
	for _, a := range rn.cfg.Agents {
		if len(a.MCPTools) > 0 {
			return true
		}
	}
	return false
}

func toPlatformServer(s fleet.MCPServer) platform.MCPServer {
	return platform.MCPServer{
		Name:          s.Name,
		Type:          s.Type,
		ServerURL:     s.ServerURL,
		AuthHeader:    s.AuthHeader,
		AuthToken:     s.AuthToken,
		CustomHeaders: s.CustomHeaders,
		Command:       s.Command,
		Args:          s.Args,
		Env:           s.Env,
	}
}

// resolveMCPTools returns the tool names ref selects, adding server tools
// to the platform when no tool of that name is registered. Every selected
// name is returned, even alongside an error, so an attached copy of a tool
// that failed to resolve is never detached.
func (rn *run) resolveMCPTools(ctx context.Context, ref fleet.MCPToolRef) ([]string, error) {
	var declared []string
	if !ref.Tools.All() {
		declared = slices.Clone(ref.Tools)
	}
	if err, failed := rn.mcpFailure[ref.Server]; failed {
		return declared, fmt.Errorf("mcp server %q unavailable: %w", ref.Server, err)
	}
	if !rn.mcpKnown[ref.Server] {
		return declared, fmt.Errorf("%w: mcp server %q is neither declared nor registered", fleet.ErrInvalidConfig, ref.Server)
	}
	available, ok := rn.mcpTools[ref.Server]
	if !ok {
		tools, err := rn.api.ListMCPTools(ctx, ref.Server)
		if err != nil {
			return declared, fmt.Errorf("list tools of mcp server %q: %w", ref.Server, err)
		}
		for _, t := range tools {
			available = append(available, t.Name)
		}
		rn.mcpTools[ref.Server] = available
	}

	selected := available
	if !ref.Tools.All() {
		selected = ref.Tools
	}
	var errs []error
	for _, name := range selected {
		if !slices.Contains(available, name) {
			errs = append(errs, fmt.Errorf("%w: mcp server %q has no tool %q", platform.ErrNotFound, ref.Server, name))
			continue
		}
		if _, ok := rn.tools.ID(name); !ok {
			tool, err := rn.api.AddMCPTool(ctx, ref.Server, name)
			if err != nil {
				errs = append(errs, fmt.Errorf("add mcp tool %q: %w", name, err))
				continue
			}
			rn.tools.Register(name, tool.ID)
			observability.RecordReconcileOp(platform.KindTool.Singular(), ActionCreate, "ok")
		}
	}
	return slices.Clone(selected), errors.Join(errs...)
}
