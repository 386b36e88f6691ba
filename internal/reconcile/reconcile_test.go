package reconcile_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/agentctl/internal/diff"
	"github.com/danmuck/agentctl/internal/fleet"
	"github.com/danmuck/agentctl/internal/platform"
	"github.com/danmuck/agentctl/internal/platform/platformtest"
	"github.com/danmuck/agentctl/internal/reconcile"
	"github.com/danmuck/agentctl/internal/registry"
	"github.com/danmuck/agentctl/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const supportFleet = `
shared_blocks:
  - name: company
    limit: 1000
    value: Acme builds rockets.
shared_folders:
  - name: handbook
    files: [docs/handbook.md]
agents:
  - name: support
    description: support agent
    system_prompt: {value: You are helpful.}
    llm_config: {model: openai/gpt-4o-mini, context_window: 32000}
    tools: [send_message, lookup_order]
    shared_blocks: [company]
    shared_folders: [handbook]
    memory_blocks:
      - {name: persona, limit: 500, value: I am support.}
    folders:
      - name: notes
        files: [docs/notes.md]
    archives:
      - name: tickets
    conversations:
      - summary: onboarding
        isolated_blocks: [persona]
    first_message: calibrate
`

const lookupOrderV1 = "def lookup_order(order_id: str) -> str:\n    return order_id\n"

// mutations are the fake's state-changing operations.
var mutations = []string{
	"CreateAgent", "UpdateAgent", "DeleteAgent", "Attach", "Detach", "SendMessage",
	"CreateBlock", "UpdateBlock", "DeleteBlock", "CreateFolder", "UploadFile", "DeleteFolder",
	"CreateArchive", "DeleteArchive", "CreateTool", "DeleteTool", "CreateMCPServer", "AddMCPTool",
	"CreateConversation",
}

type fixture struct {
	t    *testing.T
	fake *platformtest.Fake
	dir  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fake := platformtest.NewFake()
	fake.AddTool(platform.Tool{Name: "send_message", ToolType: "letta_core"})
	fake.AddTool(platform.Tool{Name: "archival_memory_search", ToolType: "letta_core"})
	fx := &fixture{t: t, fake: fake, dir: t.TempDir()}
	fx.write("docs/handbook.md", "# handbook")
	fx.write("docs/notes.md", "notes")
	fx.write("tools/lookup_order.py", lookupOrderV1)
	return fx
}

func (fx *fixture) write(rel, content string) {
	fx.t.Helper()
	path := filepath.Join(fx.dir, rel)
	require.NoError(fx.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(fx.t, os.WriteFile(path, []byte(content), 0o600))
}

func (fx *fixture) fleet(doc string) *fleet.Config {
	fx.t.Helper()
	cfg, err := fleet.Decode([]byte(doc), fleet.FormatYAML)
	require.NoError(fx.t, err)
	cfg.SetRoot(fx.dir)
	return cfg
}

func (fx *fixture) apply(cfg *fleet.Config, opts reconcile.Options) *reconcile.Report {
	fx.t.Helper()
	r := reconcile.New(fx.fake, opts)
	r.SetClock(func() time.Time { return time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC) })
	rep, err := r.Apply(context.Background(), cfg)
	require.NoError(fx.t, err)
	return rep
}

func (fx *fixture) agentID(name string) string {
	fx.t.Helper()
	a, _, err := platform.FindAgentByName(context.Background(), fx.fake, name)
	require.NoError(fx.t, err)
	return a.ID
}

func agentResult(t *testing.T, rep *reconcile.Report, name string) reconcile.AgentResult {
	t.Helper()
	res, ok := rep.Agent(name)
	require.True(t, ok, "no result for %q", name)
	return res
}

func TestApplyCreatesAgentAndConverges(t *testing.T) {
	testlog.Start(t)
	fx := newFixture(t)

	rep := fx.apply(fx.fleet(supportFleet), reconcile.Options{})
	require.NoError(t, rep.Err())
	assert.NotEmpty(t, rep.RunID)
	res := agentResult(t, rep, "support")
	assert.Equal(t, reconcile.OutcomeApplied, res.Outcome)
	assert.True(t, res.Created)
	assert.True(t, res.Plan.PreservesConversation)
	assert.Empty(t, res.Failures)

	id := fx.agentID("support")
	assert.Len(t, fx.fake.AttachedIDs(id, platform.KindTool), 2)
	assert.Len(t, fx.fake.AttachedIDs(id, platform.KindBlock), 2)
	assert.Len(t, fx.fake.AttachedIDs(id, platform.KindFolder), 2)
	assert.Len(t, fx.fake.AttachedIDs(id, platform.KindArchive), 1)
	assert.Equal(t, []string{"calibrate"}, fx.fake.Messages(id))
	assert.Equal(t, []string{"onboarding"}, res.Conversations)
	assert.Equal(t, 2, fx.fake.Calls("UploadFile"))
	assert.Equal(t, 1, fx.fake.Calls("CreateTool"))

	for _, bid := range fx.fake.AttachedIDs(id, platform.KindBlock) {
		b, ok := fx.fake.Block(bid)
		require.True(t, ok)
		switch b.Label {
		case "company":
			assert.Equal(t, registry.ScopeShared, b.Metadata[registry.MetaScope])
		case "persona":
			assert.Equal(t, "support", b.Metadata[registry.MetaOwner])
		default:
			t.Fatalf("unexpected block label %q", b.Label)
		}
	}

	fx.fake.ResetCalls()
	again := fx.apply(fx.fleet(supportFleet), reconcile.Options{})
	require.NoError(t, again.Err())
	res = agentResult(t, again, "support")
	assert.Equal(t, reconcile.OutcomeUnchanged, res.Outcome)
	assert.Zero(t, res.Plan.OperationCount)
	assert.Zero(t, fx.fake.TotalCalls(mutations...), "a converged fleet issues no mutations")
}

func TestApplyHoldsRemovalsWithoutForce(t *testing.T) {
	testlog.Start(t)
	fx := newFixture(t)
	fx.apply(fx.fleet(supportFleet), reconcile.Options{})
	id := fx.agentID("support")
	legacy := fx.fake.AddTool(platform.Tool{Name: "legacy_tool"})
	fx.fake.AttachExisting(id, platform.KindTool, legacy.ID)

	rep := fx.apply(fx.fleet(supportFleet), reconcile.Options{})
	res := agentResult(t, rep, "support")
	assert.Equal(t, reconcile.OutcomePlanned, res.Outcome)
	require.Len(t, res.Rejections, 1)
	assert.Equal(t, "legacy_tool", res.Rejections[0].Name)
	assert.Equal(t, reconcile.ReasonForceRequired, res.Rejections[0].Reason)
	assert.ErrorIs(t, rep.Err(), reconcile.ErrGuardRejected)
	assert.Equal(t, 2, reconcile.ExitCode(rep.Err()))
	assert.Contains(t, fx.fake.AttachedIDs(id, platform.KindTool), legacy.ID)

	rep = fx.apply(fx.fleet(supportFleet), reconcile.Options{Force: true})
	require.NoError(t, rep.Err())
	assert.Equal(t, reconcile.OutcomeApplied, agentResult(t, rep, "support").Outcome)
	assert.NotContains(t, fx.fake.AttachedIDs(id, platform.KindTool), legacy.ID)
}

const twoAgentFleet = `
shared_blocks:
  - {name: company, limit: 100, value: acme}
agents:
  - name: a
    llm_config: {model: m, context_window: 10}
    shared_blocks: [company]
  - name: b
    llm_config: {model: m, context_window: 10}
    shared_blocks: [company]
`

const twoAgentFleetADropsCompany = `
shared_blocks:
  - {name: company, limit: 100, value: acme}
agents:
  - name: a
    llm_config: {model: m, context_window: 10}
  - name: b
    llm_config: {model: m, context_window: 10}
    shared_blocks: [company]
`

func TestApplySharedBlockGuard(t *testing.T) {
	testlog.Start(t)
	fx := newFixture(t)
	fx.apply(fx.fleet(twoAgentFleet), reconcile.Options{})
	a := fx.agentID("a")
	require.Len(t, fx.fake.AttachedIDs(a, platform.KindBlock), 1)
	assert.Equal(t, fx.fake.AttachedIDs(a, platform.KindBlock), fx.fake.AttachedIDs(fx.agentID("b"), platform.KindBlock),
		"both agents attach the same shared block")

	rep := fx.apply(fx.fleet(twoAgentFleetADropsCompany), reconcile.Options{Force: true})
	res := agentResult(t, rep, "a")
	require.Len(t, res.Rejections, 1)
	assert.Equal(t, reconcile.ReasonSharedInUse, res.Rejections[0].Reason)
	assert.Equal(t, []string{"b"}, res.Rejections[0].Users)
	assert.Len(t, fx.fake.AttachedIDs(a, platform.KindBlock), 1, "still attached")
	assert.Equal(t, reconcile.OutcomeUnchanged, agentResult(t, rep, "b").Outcome)
}

func TestApplySharedBlockDetachedWhenUnused(t *testing.T) {
	testlog.Start(t)
	fx := newFixture(t)
	single := `
shared_blocks:
  - {name: company, limit: 100, value: acme}
agents:
  - name: a
    llm_config: {model: m, context_window: 10}
    shared_blocks: [company]
`
	fx.apply(fx.fleet(single), reconcile.Options{})
	a := fx.agentID("a")

	dropped := `
shared_blocks:
  - {name: company, limit: 100, value: acme}
agents:
  - name: a
    llm_config: {model: m, context_window: 10}
`
	rep := fx.apply(fx.fleet(dropped), reconcile.Options{Force: true})
	require.NoError(t, rep.Err())
	assert.Empty(t, fx.fake.AttachedIDs(a, platform.KindBlock))
}

func TestApplySharedBlockAttachedOutsideFleetIsKept(t *testing.T) {
	testlog.Start(t)
	fx := newFixture(t)
	single := `
shared_blocks:
  - {name: company, limit: 100, value: acme}
agents:
  - name: a
    llm_config: {model: m, context_window: 10}
    shared_blocks: [company]
`
	fx.apply(fx.fleet(single), reconcile.Options{})
	a := fx.agentID("a")
	blockID := fx.fake.AttachedIDs(a, platform.KindBlock)[0]
	outsider := fx.fake.AddAgent(platform.Agent{Name: "outsider"})
	fx.fake.AttachExisting(outsider.ID, platform.KindBlock, blockID)

	dropped := `
shared_blocks:
  - {name: company, limit: 100, value: acme}
agents:
  - name: a
    llm_config: {model: m, context_window: 10}
`
	rep := fx.apply(fx.fleet(dropped), reconcile.Options{Force: true})
	res := agentResult(t, rep, "a")
	require.Len(t, res.Rejections, 1)
	assert.Equal(t, []string{"outsider"}, res.Rejections[0].Users)
	assert.Equal(t, []string{blockID}, fx.fake.AttachedIDs(a, platform.KindBlock))
}

func TestApplySwapsChangedToolSource(t *testing.T) {
	testlog.Start(t)
	fx := newFixture(t)
	fx.apply(fx.fleet(supportFleet), reconcile.Options{})
	id := fx.agentID("support")
	before := fx.fake.AttachedIDs(id, platform.KindTool)

	fx.write("tools/lookup_order.py", "def lookup_order(order_id: str) -> str:\n    return order_id.upper()\n")
	rep := fx.apply(fx.fleet(supportFleet), reconcile.Options{})
	require.NoError(t, rep.Err(), "a swap needs no force")
	res := agentResult(t, rep, "support")
	require.Len(t, res.Plan.Tools.ToUpdate, 1)
	upd := res.Plan.Tools.ToUpdate[0]
	assert.Equal(t, "lookup_order", upd.Name)
	assert.Equal(t, diff.ReasonSourceCodeChanged, upd.Reason)

	after := fx.fake.AttachedIDs(id, platform.KindTool)
	assert.Len(t, after, 2)
	assert.NotContains(t, after, upd.CurrentID)
	assert.Contains(t, after, upd.DesiredID)
	assert.Contains(t, before, upd.CurrentID)
}

const pushFleet = `
shared_blocks:
  - {name: company, limit: 100, value: %s}
agents:
  - name: a
    llm_config: {model: m, context_window: 10}
    shared_blocks: [company]
    memory_blocks:
      - {name: policy, limit: 100, value: %s, agent_owned: false}
      - {name: persona, limit: 100, value: %s}
`

func TestApplyBlockContentPolicy(t *testing.T) {
	testlog.Start(t)
	fx := newFixture(t)
	fx.apply(fx.fleet(fmt.Sprintf(pushFleet, "v1", "v1", "v1")), reconcile.Options{})
	a := fx.agentID("a")
	fx.fake.ResetCalls()

	rep := fx.apply(fx.fleet(fmt.Sprintf(pushFleet, "v2", "v2", "v2")), reconcile.Options{})
	require.NoError(t, rep.Err())
	assert.Equal(t, 1, fx.fake.Calls("UpdateBlock"), "only the non-agent-owned block is pushed")
	assert.Zero(t, fx.fake.Calls("CreateBlock"))

	values := map[string]string{}
	for _, bid := range fx.fake.AttachedIDs(a, platform.KindBlock) {
		b, _ := fx.fake.Block(bid)
		values[b.Label] = b.Value
	}
	assert.Equal(t, map[string]string{"company": "v1", "policy": "v2", "persona": "v1"}, values)

	res := agentResult(t, rep, "a")
	actions := map[string]registry.BlockAction{}
	for _, b := range res.Blocks {
		actions[b.Name] = b.Action
	}
	assert.Equal(t, registry.BlockUpdated, actions["policy"])
	assert.Equal(t, registry.BlockReused, actions["persona"])
	assert.Equal(t, registry.BlockReused, actions["company"])
	assert.Equal(t, reconcile.OutcomeApplied, res.Outcome)
}

func TestApplyVersionPinRotatesAndSwaps(t *testing.T) {
	testlog.Start(t)
	fx := newFixture(t)
	doc := `
agents:
  - name: a
    llm_config: {model: m, context_window: 10}
    memory_blocks:
      - {name: guide, limit: 100, value: one%s}
`
	fx.apply(fx.fleet(fmt.Sprintf(doc, "")), reconcile.Options{})
	a := fx.agentID("a")
	old := fx.fake.AttachedIDs(a, platform.KindBlock)
	require.Len(t, old, 1)

	rep := fx.apply(fx.fleet(fmt.Sprintf(doc, ", version: V2")), reconcile.Options{})
	require.NoError(t, rep.Err())
	res := agentResult(t, rep, "a")
	require.Len(t, res.Plan.Blocks.ToUpdate, 1)
	assert.Equal(t, diff.ReasonBlockIDChanged, res.Plan.Blocks.ToUpdate[0].Reason)

	now := fx.fake.AttachedIDs(a, platform.KindBlock)
	require.Len(t, now, 1)
	assert.NotEqual(t, old, now)
	b, _ := fx.fake.Block(now[0])
	assert.Equal(t, "guide__v__v2", b.Label)
	_, kept := fx.fake.Block(old[0])
	assert.True(t, kept, "the previous version is kept")

	fx.fake.ResetCalls()
	rep = fx.apply(fx.fleet(fmt.Sprintf(doc, ", version: V2")), reconcile.Options{})
	assert.Equal(t, reconcile.OutcomeUnchanged, agentResult(t, rep, "a").Outcome)
	assert.Zero(t, fx.fake.TotalCalls(mutations...))
}

func TestApplyUpdatesAgentFields(t *testing.T) {
	testlog.Start(t)
	fx := newFixture(t)
	fx.apply(fx.fleet(supportFleet), reconcile.Options{})
	cfg := fx.fleet(supportFleet)
	cfg.Agents[0].Description = "tier two support"
	cfg.Agents[0].Tags = []string{"tier:2"}

	rep := fx.apply(cfg, reconcile.Options{})
	require.NoError(t, rep.Err())
	res := agentResult(t, rep, "support")
	var fields []string
	for _, f := range res.Plan.Fields {
		fields = append(fields, f.Field)
	}
	assert.Equal(t, []string{"description", "tags"}, fields)
	assert.Equal(t, 1, fx.fake.Calls("UpdateAgent"))

	agent, err := fx.fake.GetAgent(context.Background(), fx.agentID("support"))
	require.NoError(t, err)
	assert.Equal(t, "tier two support", agent.Description)
	assert.Equal(t, []string{"tier:2"}, agent.Tags)
}

func TestApplyAttachFailureIsPerResource(t *testing.T) {
	testlog.Start(t)
	fx := newFixture(t)
	fx.fake.FailNext("Attach", &platform.RemoteError{Method: "PATCH", Path: "/v1/agents/x/tools/attach/y", Status: 500})

	rep := fx.apply(fx.fleet(supportFleet), reconcile.Options{})
	res := agentResult(t, rep, "support")
	assert.Equal(t, reconcile.OutcomeFailed, res.Outcome)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "tool", res.Failures[0].Kind)
	assert.Equal(t, "send_message", res.Failures[0].Name)
	assert.Equal(t, reconcile.ActionAttach, res.Failures[0].Action)
	assert.ErrorIs(t, rep.Err(), reconcile.ErrApplyFailed)
	assert.Equal(t, 1, reconcile.ExitCode(rep.Err()))

	id := fx.agentID("support")
	assert.Len(t, fx.fake.AttachedIDs(id, platform.KindTool), 1, "the sibling tool is attached")
	assert.Len(t, fx.fake.AttachedIDs(id, platform.KindBlock), 2)
}

func TestApplyReattachesDetachedAgentBlock(t *testing.T) {
	testlog.Start(t)
	fx := newFixture(t)
	require.NoError(t, fx.apply(fx.fleet(supportFleet), reconcile.Options{}).Err())

	id := fx.agentID("support")
	persona := ""
	for _, bid := range fx.fake.AttachedIDs(id, platform.KindBlock) {
		if b, _ := fx.fake.Block(bid); b.Label == "persona" {
			persona = bid
		}
	}
	require.NotEmpty(t, persona)
	require.NoError(t, fx.fake.Detach(context.Background(), id, platform.KindBlock, persona))

	fx.fake.ResetCalls()
	rep := fx.apply(fx.fleet(supportFleet), reconcile.Options{})
	require.NoError(t, rep.Err())
	assert.Zero(t, fx.fake.Calls("CreateBlock"), "the detached block is reused")
	assert.Equal(t, 1, fx.fake.Calls("Attach"))
	assert.Contains(t, fx.fake.AttachedIDs(id, platform.KindBlock), persona)
}

func TestApplyAgentCreateFailureStopsThatAgent(t *testing.T) {
	testlog.Start(t)
	fx := newFixture(t)
	fx.fake.FailNext("CreateAgent", errors.New("quota exceeded"))

	rep := fx.apply(fx.fleet(supportFleet), reconcile.Options{})
	res := agentResult(t, rep, "support")
	assert.Equal(t, reconcile.OutcomeFailed, res.Outcome)
	assert.Contains(t, res.Error, "quota exceeded")
	assert.Zero(t, fx.fake.Calls("Attach"))
	assert.Zero(t, fx.fake.Calls("SendMessage"))
}

func TestApplyRegistryLoadFailureAbortsRun(t *testing.T) {
	testlog.Start(t)
	fx := newFixture(t)
	fx.fake.Fail("ListBlocks", errors.New("boom"))

	_, err := reconcile.New(fx.fake, reconcile.Options{}).Apply(context.Background(), fx.fleet(supportFleet))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load blocks")
	assert.Zero(t, fx.fake.TotalCalls(mutations...))
}

func TestApplyRejectsInvalidConfigBeforeRemoteCalls(t *testing.T) {
	testlog.Start(t)
	fx := newFixture(t)
	cfg := fx.fleet(`
agents:
  - name: a
    llm_config: {model: m, context_window: 10}
  - name: a
    llm_config: {model: m, context_window: 10}
`)
	_, err := reconcile.New(fx.fake, reconcile.Options{}).Apply(context.Background(), cfg)
	require.ErrorIs(t, err, fleet.ErrInvalidConfig)
	assert.Zero(t, fx.fake.Calls("ListBlocks"))

	_, err = reconcile.New(fx.fake, reconcile.Options{Agents: []string{"ghost"}}).Apply(context.Background(), fx.fleet(supportFleet))
	require.ErrorIs(t, err, fleet.ErrInvalidConfig)
}

func TestApplyAgentFilter(t *testing.T) {
	testlog.Start(t)
	fx := newFixture(t)
	rep := fx.apply(fx.fleet(twoAgentFleet), reconcile.Options{Agents: []string{"b"}})
	require.Len(t, rep.Agents, 1)
	assert.Equal(t, "b", rep.Agents[0].Agent)
	_, _, err := platform.FindAgentByName(context.Background(), fx.fake, "a")
	assert.ErrorIs(t, err, platform.ErrNotFound)

	_, err = reconcile.New(fx.fake, reconcile.Options{Agents: []string{"c"}}).Apply(context.Background(), fx.fleet(twoAgentFleet))
	require.ErrorIs(t, err, fleet.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "(declared: a, b)")
}

func TestApplyMCPTools(t *testing.T) {
	testlog.Start(t)
	fx := newFixture(t)
	fx.fake.AddMCPServer(platform.MCPServer{Name: "search", Type: platform.MCPTypeSSE}, "web_search", "fetch")
	doc := `
mcp_servers:
  - {name: search, type: sse, server_url: "http://localhost:3001/sse"}
  - {name: docs, type: stdio, command: docs-mcp}
agents:
  - name: a
    llm_config: {model: m, context_window: 10}
    mcp_tools:
      - {server: search, tools: all}
      - {server: ghost, tools: [x]}
`
	rep := fx.apply(fx.fleet(doc), reconcile.Options{})
	assert.Equal(t, 1, fx.fake.Calls("CreateMCPServer"), "only the unknown server is created")
	assert.Equal(t, 2, fx.fake.Calls("AddMCPTool"))

	res := agentResult(t, rep, "a")
	assert.Len(t, fx.fake.AttachedIDs(fx.agentID("a"), platform.KindTool), 2)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "ghost", res.Failures[0].Name)
	assert.Contains(t, res.Failures[0].Error, "neither declared nor registered")

	fx.fake.ResetCalls()
	fx.apply(fx.fleet(doc), reconcile.Options{})
	assert.Zero(t, fx.fake.Calls("AddMCPTool"), "registered tools are reused")
	assert.Zero(t, fx.fake.Calls("CreateMCPServer"))
}

func TestApplyToolWithoutSourceResolvesByName(t *testing.T) {
	testlog.Start(t)
	fx := newFixture(t)
	fx.apply(fx.fleet(supportFleet), reconcile.Options{})
	id := fx.agentID("support")
	require.NoError(t, os.Remove(filepath.Join(fx.dir, "tools", "lookup_order.py")))
	before := fx.fake.AttachedIDs(id, platform.KindTool)

	rep := fx.apply(fx.fleet(supportFleet), reconcile.Options{Force: true})
	res := agentResult(t, rep, "support")
	assert.Empty(t, res.Failures, "the registered tool still resolves by name")
	assert.Equal(t, before, fx.fake.AttachedIDs(id, platform.KindTool))
}
