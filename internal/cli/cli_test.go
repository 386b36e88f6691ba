package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/agentctl/internal/config"
	"github.com/danmuck/agentctl/internal/platform"
	"github.com/danmuck/agentctl/internal/platform/platformtest"
	"github.com/danmuck/agentctl/internal/reconcile"
	"github.com/danmuck/agentctl/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cliFleet = `
agents:
  - name: support
    system_prompt: {value: You are helpful.}
    llm_config: {model: openai/gpt-4o-mini, context_window: 32000}
    tools: [send_message]
    memory_blocks:
      - {name: persona, limit: 500, value: I am support.}
`

type harness struct {
	t        *testing.T
	fake     *platformtest.Fake
	dir      string
	settings string
	seen     config.Settings
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv(config.EnvBaseURL, "")
	t.Setenv(config.EnvAPIKey, "")
	fake := platformtest.NewFake()
	fake.AddTool(platform.Tool{Name: "send_message", ToolType: "letta_core"})
	fake.AddTool(platform.Tool{Name: "archival_memory_search", ToolType: "letta_core"})
	h := &harness{t: t, fake: fake, dir: t.TempDir()}
	h.settings = h.write("config.toml", "base_url = \"http://platform.test:8283\"\n")
	return h
}

func (h *harness) write(rel, content string) string {
	h.t.Helper()
	path := filepath.Join(h.dir, rel)
	require.NoError(h.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(h.t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// run executes one agentctl invocation against the fake.
func (h *harness) run(args ...string) (int, string, string) {
	h.t.Helper()
	var out, errOut bytes.Buffer
	app := &App{
		Out: &out,
		Err: &errOut,
		NewAPI: func(s config.Settings) (platform.API, error) {
			h.seen = s
			return h.fake, nil
		},
	}
	code := app.Run(context.Background(), append([]string{"--config", h.settings}, args...))
	return code, out.String(), errOut.String()
}

func TestApplyCreatesThenConverges(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	fleetPath := h.write("fleet.yaml", cliFleet)

	code, out, stderr := h.run("apply", "-f", fleetPath, "-o", "json")
	require.Equal(t, 0, code, stderr)
	var rep reconcile.Report
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	require.Len(t, rep.Agents, 1)
	assert.Equal(t, reconcile.OutcomeApplied, rep.Agents[0].Outcome)
	assert.True(t, rep.Agents[0].Created)
	assert.Equal(t, 1, h.fake.Calls("CreateAgent"))

	code, out, stderr = h.run("apply", "-f", fleetPath)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, "support")
	assert.Contains(t, out, reconcile.OutcomeUnchanged)
	assert.Equal(t, 1, h.fake.Calls("CreateAgent"))
}

func TestApplyHeldRemovalsExitTwo(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	fleetPath := h.write("fleet.yaml", cliFleet)

	code, _, stderr := h.run("apply", "-f", fleetPath)
	require.Equal(t, 0, code, stderr)
	agent, _, err := platform.FindAgentByName(context.Background(), h.fake, "support")
	require.NoError(t, err)
	stray := h.fake.AddBlock(platform.Block{Label: "stray", Value: "x", Limit: 10})
	h.fake.AttachExisting(agent.ID, platform.KindBlock, stray.ID)

	code, _, stderr = h.run("apply", "-f", fleetPath)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "held back")
	assert.Contains(t, stderr, "stray")
	assert.Contains(t, h.fake.AttachedIDs(agent.ID, platform.KindBlock), stray.ID)

	code, _, stderr = h.run("apply", "-f", fleetPath, "--force")
	require.Equal(t, 0, code, stderr)
	assert.NotContains(t, h.fake.AttachedIDs(agent.ID, platform.KindBlock), stray.ID)
}

func TestApplyInvalidFleetMakesNoCalls(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	fleetPath := h.write("fleet.yaml", `
agents:
  - name: support
    llm_config: {context_window: 0}
`)
	code, _, stderr := h.run("apply", "-f", fleetPath)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "invalid")
	assert.Zero(t, h.fake.Calls("ListAgents"))

	code, _, _ = h.run("apply")
	assert.Equal(t, 1, code, "missing -f")
}

func TestApplyWritesMetricsTextfile(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	fleetPath := h.write("fleet.yaml", cliFleet)
	metrics := filepath.Join(h.dir, "agentctl.prom")

	code, _, stderr := h.run("apply", "-f", fleetPath, "--metrics-textfile", metrics)
	require.Equal(t, 0, code, stderr)
	data, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(data), "agentctl_reconcile_operations_total")
}

func TestSettingsFlagsWin(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	t.Setenv(config.EnvAPIKey, "sk-env")

	code, _, stderr := h.run("get", "agents")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "http://platform.test:8283", h.seen.BaseURL)
	assert.Equal(t, "sk-env", h.seen.APIKey)

	code, _, stderr = h.run("--base-url", "https://letta.example.com", "--api-key", "sk-flag", "get", "agents")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "https://letta.example.com", h.seen.BaseURL)
	assert.Equal(t, "sk-flag", h.seen.APIKey)

	code, _, stderr = h.run("-o", "xml", "get", "agents")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "unknown output format")
}

func TestGetViews(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	a := h.fake.AddAgent(platform.Agent{Name: "alpha"})
	b := h.fake.AddAgent(platform.Agent{Name: "beta"})
	company := h.fake.AddBlock(platform.Block{Label: "company", Value: "acme", Limit: 100})
	h.fake.AddBlock(platform.Block{Label: "scratch", Value: "", Limit: 100})
	h.fake.AttachExisting(a.ID, platform.KindBlock, company.ID)
	h.fake.AttachExisting(b.ID, platform.KindBlock, company.ID)

	code, out, stderr := h.run("get", "agents")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, "alpha")
	assert.Contains(t, out, "beta")

	code, out, stderr = h.run("get", "blocks", "--shared", "-o", "json")
	require.Equal(t, 0, code, stderr)
	var usage []reconcile.ResourceUsage
	require.NoError(t, json.Unmarshal([]byte(out), &usage))
	require.Len(t, usage, 1)
	assert.Equal(t, "company", usage[0].Name)
	assert.ElementsMatch(t, []string{"alpha", "beta"}, usage[0].Agents)

	code, out, stderr = h.run("get", "blocks", "--orphaned")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, "scratch")
	assert.NotContains(t, out, "company")

	code, _, _ = h.run("get", "blocks", "--shared", "--orphaned")
	assert.Equal(t, 1, code)

	code, out, stderr = h.run("get", "tools", "-o", "yaml")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, "name: send_message")

	code, _, stderr = h.run("get", "conversations", "nobody")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "nobody")
}

func TestDescribeAgent(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	code, _, stderr := h.run("apply", "-f", h.write("fleet.yaml", cliFleet))
	require.Equal(t, 0, code, stderr)

	code, out, stderr := h.run("describe", "agent", "support", "-o", "json")
	require.Equal(t, 0, code, stderr)
	var desc struct {
		Agent    platform.Agent                 `json:"agent"`
		Attached map[string][]map[string]string `json:"attached"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &desc))
	assert.Equal(t, "support", desc.Agent.Name)
	require.Len(t, desc.Attached["tools"], 1)
	assert.Equal(t, "send_message", desc.Attached["tools"][0]["name"])
	require.Len(t, desc.Attached["blocks"], 1)
	assert.Equal(t, "persona", desc.Attached["blocks"][0]["name"])
}

func TestDeleteCommands(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	code, _, stderr := h.run("apply", "-f", h.write("fleet.yaml", cliFleet))
	require.Equal(t, 0, code, stderr)
	h.fake.AddBlock(platform.Block{Label: "scratch", Limit: 10})

	code, out, _ := h.run("delete", "agent", "support")
	assert.Equal(t, 2, code)
	assert.Contains(t, out, "requires --force")
	assert.Zero(t, h.fake.Calls("DeleteAgent"))

	code, _, _ = h.run("delete", "block", "persona", "--force")
	assert.Equal(t, 2, code, "attached blocks are refused")

	code, out, stderr = h.run("delete", "agent", "support", "--force")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, 1, h.fake.Calls("DeleteAgent"))
	assert.Contains(t, out, "persona")

	code, out, stderr = h.run("delete", "block", "scratch", "--force")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, "scratch")

	code, _, stderr = h.run("delete", "folder", "missing", "--force")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "missing")
}

func TestHealth(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)

	code, out, stderr := h.run("health")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, "platform")
	assert.NotContains(t, out, "api key")

	code, out, stderr = h.run("health", "--verbose")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, "api key")
	assert.Contains(t, out, "not set")

	h.fake.FailNext("Health", errors.New("connection refused"))
	code, out, _ = h.run("health")
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "connection refused")
}

func TestInitWritesTemplates(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	settings := filepath.Join(h.dir, "fresh", "config.toml")
	fleetPath := filepath.Join(h.dir, "fleet.yaml")

	var out, errOut bytes.Buffer
	app := &App{Out: &out, Err: &errOut, NewAPI: newClient}
	require.Equal(t, 0, app.Run(context.Background(), []string{"--config", settings, "init"}), errOut.String())
	_, err := os.Stat(settings)
	require.NoError(t, err)

	code, _, stderr := h.run("init", "fleet", "--path", fleetPath)
	require.Equal(t, 0, code, stderr)
	code, _, stderr = h.run("init", "fleet", "--path", fleetPath)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "already exists")

	code, _, stderr = h.run("apply", "-f", fleetPath)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, 1, h.fake.Calls("CreateAgent"))
}
