package diff

import (
	"slices"
	"strconv"
	"strings"

	"github.com/danmuck/agentctl/internal/fleet"
	"github.com/danmuck/agentctl/internal/platform"
)

// FieldChange is one in-place agent field update.
type FieldChange struct {
	Field string `json:"field" yaml:"field"`
	From  string `json:"from" yaml:"from"`
	To    string `json:"to" yaml:"to"`
}

// AgentUpdateOperations bundles everything apply would do to one agent.
type AgentUpdateOperations struct {
	Agent    string        `json:"agent" yaml:"agent"`
	AgentID  string        `json:"agent_id,omitempty" yaml:"agent_id,omitempty"`
	Create   bool          `json:"create" yaml:"create"`
	Fields   []FieldChange `json:"field_changes" yaml:"field_changes"`
	Tools    KindDiff      `json:"tools" yaml:"tools"`
	Blocks   KindDiff      `json:"blocks" yaml:"blocks"`
	Folders  KindDiff      `json:"folders" yaml:"folders"`
	Archives KindDiff      `json:"archives" yaml:"archives"`

	OperationCount        int  `json:"operation_count" yaml:"operation_count"`
	PreservesConversation bool `json:"preserves_conversation" yaml:"preserves_conversation"`

	// Patch carries the field changes in wire form.
	Patch platform.AgentUpdate `json:"-" yaml:"-"`
}

// NewAgentUpdateOperations assembles the per-kind diffs and derives the
// operation count. Agents are only ever patched in place, never replaced,
// so the conversation is always preserved.
func NewAgentUpdateOperations(agent, agentID string, fields []FieldChange, patch platform.AgentUpdate, tools, blocks, folders, archives KindDiff) AgentUpdateOperations {
	if fields == nil {
		fields = []FieldChange{}
	}
	ops := AgentUpdateOperations{
		Agent:                 agent,
		AgentID:               agentID,
		Create:                agentID == "",
		Fields:                fields,
		Patch:                 patch,
		Tools:                 tools,
		Blocks:                blocks,
		Folders:               folders,
		Archives:              archives,
		PreservesConversation: true,
	}
	ops.OperationCount = len(fields) + tools.Count() + blocks.Count() + folders.Count() + archives.Count()
	return ops
}

// Kinds returns the per-kind diffs in apply order.
func (o AgentUpdateOperations) Kinds() []KindDiff {
	return []KindDiff{o.Tools, o.Blocks, o.Folders, o.Archives}
}

// HasChanges reports whether apply would do anything.
func (o AgentUpdateOperations) HasChanges() bool {
	return o.Create || o.OperationCount > 0
}

// Removals counts detach operations across kinds.
func (o AgentUpdateOperations) Removals() int {
	n := 0
	for _, k := range o.Kinds() {
		n += len(k.ToRemove)
	}
	return n
}

// AgentFields compares the declared agent with the live one and returns the
// field changes plus the matching patch. Unset declared tags leave the live
// tags alone.
func AgentFields(current platform.Agent, desired fleet.Agent) ([]FieldChange, platform.AgentUpdate) {
	var changes []FieldChange
	var patch platform.AgentUpdate

	if current.Description != desired.Description {
		changes = append(changes, FieldChange{Field: "description", From: current.Description, To: desired.Description})
		d := desired.Description
		patch.Description = &d
	}
	if prompt := desired.SystemPrompt.Value; prompt != "" && current.System != prompt {
		changes = append(changes, FieldChange{Field: "system_prompt", From: summarize(current.System), To: summarize(prompt)})
		patch.System = &prompt
	}

	var live platform.LLMConfig
	if current.LLMConfig != nil {
		live = *current.LLMConfig
	}
	want := platform.LLMConfig{
		Model:         desired.LLMConfig.Model,
		ContextWindow: desired.LLMConfig.ContextWindow,
		MaxTokens:     desired.LLMConfig.MaxTokens,
	}
	llmChanged := false
	if want.Model != "" && live.Model != want.Model {
		changes = append(changes, FieldChange{Field: "model", From: live.Model, To: want.Model})
		llmChanged = true
	}
	if want.ContextWindow > 0 && live.ContextWindow != want.ContextWindow {
		changes = append(changes, FieldChange{Field: "context_window", From: strconv.Itoa(live.ContextWindow), To: strconv.Itoa(want.ContextWindow)})
		llmChanged = true
	}
	if want.MaxTokens > 0 && live.MaxTokens != want.MaxTokens {
		changes = append(changes, FieldChange{Field: "max_tokens", From: strconv.Itoa(live.MaxTokens), To: strconv.Itoa(want.MaxTokens)})
		llmChanged = true
	}
	if llmChanged {
		merged := live
		if want.Model != "" {
			merged.Model = want.Model
		}
		if want.ContextWindow > 0 {
			merged.ContextWindow = want.ContextWindow
		}
		if want.MaxTokens > 0 {
			merged.MaxTokens = want.MaxTokens
		}
		patch.LLMConfig = &merged
	}

	if desired.Tags != nil && !sameSet(current.Tags, desired.Tags) {
		changes = append(changes, FieldChange{Field: "tags", From: strings.Join(current.Tags, ","), To: strings.Join(desired.Tags, ",")})
		patch.Tags = slices.Clone(desired.Tags)
	}
	return changes, patch
}

func sameSet(a, b []string) bool {
	x := slices.Clone(a)
	y := slices.Clone(b)
	slices.Sort(x)
	slices.Sort(y)
	return slices.Equal(slices.Compact(x), slices.Compact(y))
}

func summarize(s string) string {
	const limit = 48
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
