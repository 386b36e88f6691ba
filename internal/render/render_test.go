package render

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/danmuck/agentctl/internal/diff"
	"github.com/danmuck/agentctl/internal/platform"
	"github.com/danmuck/agentctl/internal/reconcile"
	"github.com/danmuck/agentctl/internal/registry"
	"github.com/danmuck/agentctl/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func sampleAgents() Agents {
	return Agents{
		{ID: "agent-1", Name: "support", LLMConfig: &platform.LLMConfig{Model: "openai/gpt-4o", ContextWindow: 32000}, Tags: []string{"team:cx"}},
		{ID: "agent-2", Name: "billing"},
	}
}

func TestParseFormat(t *testing.T) {
	testlog.Start(t)

	tests := []struct {
		raw  string
		want Format
	}{
		{"", FormatTable},
		{"table", FormatTable},
		{"WIDE", FormatWide},
		{" json ", FormatJSON},
		{"yaml", FormatYAML},
	}
	for _, tc := range tests {
		got, err := ParseFormat(tc.raw)
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.want, got, tc.raw)
	}

	_, err := ParseFormat("xml")
	require.ErrorIs(t, err, ErrUnknownFormat)
	assert.Contains(t, err.Error(), "table, wide, json, yaml")
}

func TestWriteTable(t *testing.T) {
	testlog.Start(t)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatTable, sampleAgents()))
	out := buf.String()
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "MODEL")
	assert.NotContains(t, out, "DESCRIPTION")
	assert.Contains(t, out, "support")
	assert.Contains(t, out, "openai/gpt-4o")
	assert.NotContains(t, out, "┌", "border is disabled")

	buf.Reset()
	require.NoError(t, Write(&buf, FormatWide, sampleAgents()))
	assert.Contains(t, buf.String(), "DESCRIPTION")
	assert.Contains(t, buf.String(), "team:cx")
	assert.Contains(t, buf.String(), "32000")
}

func TestWriteJSONAndYAML(t *testing.T) {
	testlog.Start(t)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSON, sampleAgents()))
	var decoded []platform.Agent
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "support", decoded[0].Name)

	buf.Reset()
	require.NoError(t, Write(&buf, FormatYAML, sampleAgents()))
	var generic []map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &generic))
	require.Len(t, generic, 2)
	assert.Equal(t, "billing", generic[1]["name"])
}

func TestWriteRejectsUntabular(t *testing.T) {
	testlog.Start(t)

	var buf bytes.Buffer
	err := Write(&buf, FormatTable, map[string]string{"a": "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no table form")

	require.NoError(t, Write(&buf, FormatJSON, map[string]string{"a": "b"}))
	require.ErrorIs(t, Write(&buf, Format("xml"), sampleAgents()), ErrUnknownFormat)
}

func TestBlocksWideShowsMetadata(t *testing.T) {
	testlog.Start(t)

	blocks := Blocks{{
		ID: "block-1", Label: "company", Value: "hello", Limit: 5000,
		Metadata: map[string]any{registry.MetaScope: registry.ScopeShared, registry.MetaVersion: "v2"},
	}}
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatWide, blocks))
	out := buf.String()
	assert.Contains(t, out, "company")
	assert.Contains(t, out, registry.ScopeShared)
	assert.Contains(t, out, "v2")

	rows := blocks.Rows(false)
	require.Len(t, rows, 1)
	assert.Len(t, rows[0], len(blocks.Header(false)))
}

func TestApplyReportView(t *testing.T) {
	testlog.Start(t)

	rep := &reconcile.Report{
		RunID: "run-1",
		Agents: []reconcile.AgentResult{
			{
				Agent:   "support",
				Outcome: reconcile.OutcomeApplied,
				Created: true,
				Plan: diff.AgentUpdateOperations{
					OperationCount: 3,
					Tools:          diff.KindDiff{ToAdd: []diff.Ref{{Name: "lookup"}}},
					Blocks:         diff.KindDiff{ToRemove: []diff.Ref{{Name: "old"}}},
				},
			},
			{
				Agent:      "billing",
				Outcome:    reconcile.OutcomePlanned,
				Rejections: []reconcile.GuardRejection{{Kind: "block", Name: "company", Reason: reconcile.ReasonForceRequired}},
			},
		},
	}
	view := ApplyReport{Report: rep}

	rows := view.Rows(true)
	require.Len(t, rows, 2)
	assert.Equal(t, "support", rows[0][0])
	assert.Equal(t, "applied (created)", rows[0][1])
	assert.Equal(t, 1, rows[0][3])
	assert.Equal(t, 1, rows[0][4])
	assert.Equal(t, 1, rows[1][7])

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSON, view))
	assert.True(t, strings.Contains(buf.String(), `"run_id": "run-1"`))

	buf.Reset()
	require.NoError(t, Write(&buf, FormatTable, Rejections(rep.Rejections())))
	assert.Contains(t, buf.String(), "requires --force")
	assert.Contains(t, buf.String(), "billing")
}

func TestDeleteReportView(t *testing.T) {
	testlog.Start(t)

	rep := &reconcile.DeleteReport{
		Agent:   "support",
		AgentID: "agent-1",
		Deleted: []reconcile.ResourceRef{{Kind: "folder", Name: "docs", ID: "folder-1"}},
		Kept:    []reconcile.ResourceRef{{Kind: "block", Name: "company", ID: "block-1"}},
	}
	rows := DeleteReport{Report: rep}.Rows(false)
	require.Len(t, rows, 3)
	assert.Equal(t, "deleted", rows[0][2])
	assert.Equal(t, "docs", rows[1][1])
	assert.Equal(t, "kept", rows[2][2])

	held := DeleteReport{Report: &reconcile.DeleteReport{
		Agent:    "support",
		Rejected: &reconcile.GuardRejection{Kind: "agent", Name: "support", Reason: reconcile.ReasonForceRequired},
	}}.Rows(false)
	require.Len(t, held, 1)
	assert.Equal(t, "held: requires --force", held[0][2])
}

func TestAgentDescriptionData(t *testing.T) {
	testlog.Start(t)

	desc := AgentDescription{
		Agent: platform.Agent{ID: "agent-1", Name: "support"},
		Attached: map[platform.Kind][]platform.Resource{
			platform.KindTool:  {{ID: "tool-1", Name: "send_message"}},
			platform.KindBlock: {{ID: "block-1", Name: "persona"}},
		},
	}
	rows := desc.Rows(false)
	require.Len(t, rows, 3)
	assert.Equal(t, "tool", rows[1][0], "kinds follow reconcile order")
	assert.Equal(t, "block", rows[2][0])

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSON, desc))
	var decoded struct {
		Attached map[string][]map[string]string `json:"attached"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "send_message", decoded.Attached["tools"][0]["name"])
	assert.Empty(t, decoded.Attached["folders"])
}

func TestUsageView(t *testing.T) {
	testlog.Start(t)

	usage := Usage{
		{Kind: platform.KindBlock, ID: "block-1", Name: "guide", Label: "guide__v__v2", Shared: true, Agents: []string{"a", "b"}},
		{Kind: platform.KindFolder, ID: "folder-1", Name: "docs", Agents: []string{}},
	}
	rows := usage.Rows(true)
	require.Len(t, rows, 2)
	assert.Equal(t, "guide__v__v2", rows[0][1])
	assert.Equal(t, 2, rows[0][4])
	assert.Equal(t, "a,b", rows[0][5])
	assert.Equal(t, "-", rows[1][5])
}
