package cli

import (
	"errors"
	"fmt"

	"github.com/danmuck/agentctl/internal/render"
	"github.com/spf13/cobra"
)

var errUnhealthy = errors.New("platform unhealthy")

const (
	statusOK   = "ok"
	statusFail = "fail"
	statusWarn = "warn"
)

func (a *App) healthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the platform is reachable",
		Long: `health calls the platform health endpoint. With --verbose it also
lists agents and tools and reports whether an api key is configured.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			api, err := a.api()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			var checks render.Health
			failed := false
			check := func(name string, detail string, err error) {
				c := render.HealthCheck{Check: name, Status: statusOK, Detail: detail}
				if err != nil {
					c.Status, c.Detail, failed = statusFail, err.Error(), true
				}
				checks = append(checks, c)
			}

			h, err := api.Health(ctx)
			check("platform", fmt.Sprintf("%s %s (%s)", h.Status, h.Version, a.settings.BaseURL), err)
			if a.verbose {
				agents, err := api.ListAgents(ctx)
				check("agents", fmt.Sprintf("%d listed", len(agents)), err)
				tools, err := api.ListTools(ctx)
				check("tools", fmt.Sprintf("%d listed", len(tools)), err)
				key := render.HealthCheck{Check: "api key", Status: statusOK, Detail: "set"}
				if a.settings.APIKey == "" {
					key.Status, key.Detail = statusWarn, "not set"
				}
				checks = append(checks, key)
			}
			if err := a.write(checks); err != nil {
				return err
			}
			if failed {
				return errUnhealthy
			}
			return nil
		},
	}
}
