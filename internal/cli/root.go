// Package cli is the agentctl command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/danmuck/agentctl/internal/config"
	"github.com/danmuck/agentctl/internal/logging"
	"github.com/danmuck/agentctl/internal/platform"
	"github.com/danmuck/agentctl/internal/reconcile"
	"github.com/danmuck/agentctl/internal/render"
	"github.com/spf13/cobra"
)

const (
	FlagConfig  = "config"
	FlagOutput  = "output"
	FlagVerbose = "verbose"
	FlagBaseURL = "base-url"
	FlagAPIKey  = "api-key"
	FlagForce   = "force"
)

// APIFactory builds the platform client from resolved settings.
type APIFactory func(config.Settings) (platform.API, error)

// App holds the state shared by every command of one invocation.
type App struct {
	Out    io.Writer
	Err    io.Writer
	NewAPI APIFactory

	configPath string
	output     string
	verbose    bool
	baseURL    string
	apiKey     string

	settings config.Settings
	format   render.Format
}

func NewApp() *App {
	return &App{Out: os.Stdout, Err: os.Stderr, NewAPI: newClient}
}

func newClient(s config.Settings) (platform.API, error) {
	return platform.NewClient(platform.ClientConfig{
		BaseURL: s.BaseURL,
		APIKey:  s.APIKey,
		Timeout: s.Timeout,
		CAFile:  s.CAFile,
	})
}

// Execute runs the command tree with args and returns the process exit
// code.
func Execute(ctx context.Context, args []string) int {
	return NewApp().Run(ctx, args)
}

func (a *App) Run(ctx context.Context, args []string) int {
	cmd := a.Command()
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(a.Err, "error: %v\n", err)
	}
	return reconcile.ExitCode(err)
}

// Command builds the root command.
func (a *App) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agentctl",
		Short: "Converge agents and their memory, tools and sources to a fleet document",
		Long: `agentctl reconciles a declarative fleet document against an agent
platform: it creates missing agents, shared memory blocks, folders,
archives and tools, attaches what is declared and, with --force, detaches
what is not.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		PersistentPreRunE: a.setup,
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}
	cmd.SetOut(a.Out)
	cmd.SetErr(a.Err)

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configPath, FlagConfig, "", "settings file (default ~/.agentctl/config.toml)")
	flags.StringVarP(&a.output, FlagOutput, "o", "", "output format: "+strings.Join(render.Formats(), "|"))
	flags.BoolVarP(&a.verbose, FlagVerbose, "v", false, "debug logging")
	flags.StringVar(&a.baseURL, FlagBaseURL, "", "platform base url, overriding settings and "+config.EnvBaseURL)
	flags.StringVar(&a.apiKey, FlagAPIKey, "", "platform api key, overriding settings and "+config.EnvAPIKey)

	cmd.AddCommand(a.applyCommand())
	cmd.AddCommand(a.getCommand())
	cmd.AddCommand(a.describeCommand())
	cmd.AddCommand(a.deleteCommand())
	cmd.AddCommand(a.healthCommand())
	cmd.AddCommand(a.initCommand())
	return cmd
}

// setup resolves settings: defaults, file, environment, then flags.
func (a *App) setup(cmd *cobra.Command, _ []string) error {
	logging.ConfigureRuntime()

	path, required := a.configPath, true
	if path == "" {
		path, required = config.DefaultPath(), false
	}
	settings, err := config.Load(path, required)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed(FlagBaseURL) {
		settings.BaseURL = strings.TrimSpace(a.baseURL)
	}
	if cmd.Flags().Changed(FlagAPIKey) {
		settings.APIKey = strings.TrimSpace(a.apiKey)
	}
	if cmd.Flags().Changed(FlagOutput) {
		format, err := render.ParseFormat(a.output)
		if err != nil {
			return err
		}
		settings.Output = format
	}
	if err := settings.Validate(); err != nil {
		return err
	}
	if settings.LogLevel != "" {
		logging.SetLevel(settings.LogLevel)
	}
	if a.verbose {
		logging.SetLevel("debug")
	}
	a.settings = settings
	a.format = settings.Output
	logging.Debugf("cli.setup command=%q base_url=%q output=%s", cmd.CommandPath(), settings.BaseURL, a.format)
	return nil
}

func (a *App) api() (platform.API, error) {
	api, err := a.NewAPI(a.settings)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", a.settings.BaseURL, err)
	}
	return api, nil
}

func (a *App) write(v any) error {
	return render.Write(a.Out, a.format, v)
}

// tabular reports whether output is meant for a terminal.
func (a *App) tabular() bool {
	return a.format == render.FormatTable || a.format == render.FormatWide
}

func (a *App) warn(format string, args ...any) {
	fmt.Fprintf(a.Err, "warning: "+format+"\n", args...)
}
