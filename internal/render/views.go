package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/agentctl/internal/platform"
	"github.com/danmuck/agentctl/internal/reconcile"
	"github.com/danmuck/agentctl/internal/registry"
	"github.com/jedib0t/go-pretty/v6/table"
)

type Agents []platform.Agent

func (a Agents) Header(wide bool) table.Row {
	if wide {
		return table.Row{"NAME", "ID", "MODEL", "CONTEXT", "TAGS", "DESCRIPTION"}
	}
	return table.Row{"NAME", "ID", "MODEL"}
}

func (a Agents) Rows(wide bool) []table.Row {
	rows := make([]table.Row, 0, len(a))
	for _, agent := range a {
		model, window := "-", "-"
		if agent.LLMConfig != nil {
			model = orNone(agent.LLMConfig.Model)
			window = fmt.Sprint(agent.LLMConfig.ContextWindow)
		}
		if wide {
			rows = append(rows, table.Row{agent.Name, agent.ID, model, window, orNone(strings.Join(agent.Tags, ",")), orNone(agent.Description)})
			continue
		}
		rows = append(rows, table.Row{agent.Name, agent.ID, model})
	}
	return rows
}

type Blocks []platform.Block

func (b Blocks) Header(wide bool) table.Row {
	if wide {
		return table.Row{"LABEL", "ID", "LIMIT", "SIZE", "SCOPE", "OWNER", "VERSION"}
	}
	return table.Row{"LABEL", "ID", "LIMIT"}
}

func (b Blocks) Rows(wide bool) []table.Row {
	rows := make([]table.Row, 0, len(b))
	for _, block := range b {
		if wide {
			rows = append(rows, table.Row{
				block.Label, block.ID, block.Limit, len(block.Value),
				orNone(meta(block.Metadata, registry.MetaScope)),
				orNone(meta(block.Metadata, registry.MetaOwner)),
				orNone(meta(block.Metadata, registry.MetaVersion)),
			})
			continue
		}
		rows = append(rows, table.Row{block.Label, block.ID, block.Limit})
	}
	return rows
}

type Folders []platform.Folder

func (f Folders) Header(wide bool) table.Row {
	if wide {
		return table.Row{"NAME", "ID", "EMBEDDING", "SCOPE"}
	}
	return table.Row{"NAME", "ID"}
}

func (f Folders) Rows(wide bool) []table.Row {
	rows := make([]table.Row, 0, len(f))
	for _, folder := range f {
		if wide {
			rows = append(rows, table.Row{folder.Name, folder.ID, orNone(folder.Embedding), orNone(meta(folder.Metadata, registry.MetaScope))})
			continue
		}
		rows = append(rows, table.Row{folder.Name, folder.ID})
	}
	return rows
}

type Archives []platform.Archive

func (a Archives) Header(wide bool) table.Row {
	if wide {
		return table.Row{"NAME", "ID", "EMBEDDING", "DESCRIPTION"}
	}
	return table.Row{"NAME", "ID"}
}

func (a Archives) Rows(wide bool) []table.Row {
	rows := make([]table.Row, 0, len(a))
	for _, archive := range a {
		if wide {
			rows = append(rows, table.Row{archive.Name, archive.ID, orNone(archive.Embedding), orNone(archive.Description)})
			continue
		}
		rows = append(rows, table.Row{archive.Name, archive.ID})
	}
	return rows
}

type Tools []platform.Tool

func (t Tools) Header(wide bool) table.Row {
	if wide {
		return table.Row{"NAME", "ID", "TYPE", "SOURCE", "TAGS"}
	}
	return table.Row{"NAME", "ID", "TYPE"}
}

func (t Tools) Rows(wide bool) []table.Row {
	rows := make([]table.Row, 0, len(t))
	for _, tool := range t {
		if wide {
			rows = append(rows, table.Row{tool.Name, tool.ID, orNone(tool.ToolType), orNone(tool.SourceType), orNone(strings.Join(tool.Tags, ","))})
			continue
		}
		rows = append(rows, table.Row{tool.Name, tool.ID, orNone(tool.ToolType)})
	}
	return rows
}

type MCPServers []platform.MCPServer

func (m MCPServers) Header(wide bool) table.Row {
	if wide {
		return table.Row{"NAME", "TYPE", "TARGET", "ARGS"}
	}
	return table.Row{"NAME", "TYPE", "TARGET"}
}

func (m MCPServers) Rows(wide bool) []table.Row {
	rows := make([]table.Row, 0, len(m))
	for _, s := range m {
		target := s.ServerURL
		if target == "" {
			target = s.Command
		}
		if wide {
			rows = append(rows, table.Row{s.Name, s.Type, orNone(target), orNone(strings.Join(s.Args, " "))})
			continue
		}
		rows = append(rows, table.Row{s.Name, s.Type, orNone(target)})
	}
	return rows
}

type Conversations []platform.Conversation

func (c Conversations) Header(wide bool) table.Row {
	if wide {
		return table.Row{"ID", "SUMMARY", "MESSAGES", "CREATED", "UPDATED"}
	}
	return table.Row{"ID", "SUMMARY", "MESSAGES"}
}

func (c Conversations) Rows(wide bool) []table.Row {
	rows := make([]table.Row, 0, len(c))
	for _, conv := range c {
		if wide {
			rows = append(rows, table.Row{conv.ID, orNone(conv.Summary), conv.MessageCount, stamp(conv.CreatedAt), stamp(conv.UpdatedAt)})
			continue
		}
		rows = append(rows, table.Row{conv.ID, orNone(conv.Summary), conv.MessageCount})
	}
	return rows
}

// Usage lists resources with the agents attached to them.
type Usage []reconcile.ResourceUsage

func (u Usage) Header(wide bool) table.Row {
	if wide {
		return table.Row{"KIND", "NAME", "ID", "SHARED", "USERS", "AGENTS"}
	}
	return table.Row{"KIND", "NAME", "ID", "USERS"}
}

func (u Usage) Rows(wide bool) []table.Row {
	rows := make([]table.Row, 0, len(u))
	for _, r := range u {
		name := r.Name
		if r.Label != "" && r.Label != r.Name {
			name = r.Label
		}
		if wide {
			rows = append(rows, table.Row{r.Kind.Singular(), name, r.ID, r.Shared, len(r.Agents), orNone(strings.Join(r.Agents, ","))})
			continue
		}
		rows = append(rows, table.Row{r.Kind.Singular(), name, r.ID, len(r.Agents)})
	}
	return rows
}

// ApplyReport shows one row per agent.
type ApplyReport struct {
	Report *reconcile.Report
}

func (a ApplyReport) Data() any { return a.Report }

func (a ApplyReport) Header(wide bool) table.Row {
	if wide {
		return table.Row{"AGENT", "OUTCOME", "OPS", "ADDED", "REMOVED", "UPDATED", "FIELDS", "HELD", "FAILURES"}
	}
	return table.Row{"AGENT", "OUTCOME", "OPS", "HELD"}
}

func (a ApplyReport) Rows(wide bool) []table.Row {
	if a.Report == nil {
		return nil
	}
	rows := make([]table.Row, 0, len(a.Report.Agents))
	for _, r := range a.Report.Agents {
		outcome := r.Outcome
		if r.Created {
			outcome += " (created)"
		}
		if !wide {
			rows = append(rows, table.Row{r.Agent, outcome, r.Plan.OperationCount, len(r.Rejections)})
			continue
		}
		var added, removed, updated int
		for _, k := range r.Plan.Kinds() {
			added += len(k.ToAdd)
			removed += len(k.ToRemove)
			updated += len(k.ToUpdate)
		}
		rows = append(rows, table.Row{r.Agent, outcome, r.Plan.OperationCount, added, removed, updated, len(r.Plan.Fields), len(r.Rejections), len(r.Failures)})
	}
	return rows
}

// Rejections lists guard rejections.
type Rejections []reconcile.GuardRejection

func (g Rejections) Header(wide bool) table.Row {
	if wide {
		return table.Row{"AGENT", "KIND", "NAME", "ID", "REASON", "REFERENCED BY"}
	}
	return table.Row{"AGENT", "KIND", "NAME", "REASON"}
}

func (g Rejections) Rows(wide bool) []table.Row {
	rows := make([]table.Row, 0, len(g))
	for _, r := range g {
		if wide {
			rows = append(rows, table.Row{orNone(r.Agent), r.Kind, r.Name, orNone(r.ID), r.Reason, orNone(strings.Join(r.Users, ","))})
			continue
		}
		rows = append(rows, table.Row{orNone(r.Agent), r.Kind, r.Name, r.Reason})
	}
	return rows
}

// DeleteReport shows the agent row followed by each cleaned or kept
// resource.
type DeleteReport struct {
	Report *reconcile.DeleteReport
}

func (d DeleteReport) Data() any { return d.Report }

func (d DeleteReport) Header(wide bool) table.Row {
	if wide {
		return table.Row{"KIND", "NAME", "ID", "RESULT"}
	}
	return table.Row{"KIND", "NAME", "RESULT"}
}

func (d DeleteReport) Rows(wide bool) []table.Row {
	if d.Report == nil {
		return nil
	}
	row := func(kind, name, id, result string) table.Row {
		if wide {
			return table.Row{kind, name, orNone(id), result}
		}
		return table.Row{kind, name, result}
	}
	if d.Report.Rejected != nil {
		return []table.Row{row("agent", d.Report.Agent, d.Report.AgentID, "held: "+d.Report.Rejected.Reason)}
	}
	rows := []table.Row{row("agent", d.Report.Agent, d.Report.AgentID, "deleted")}
	for _, r := range d.Report.Deleted {
		rows = append(rows, row(r.Kind, r.Name, r.ID, "deleted"))
	}
	for _, r := range d.Report.Kept {
		rows = append(rows, row(r.Kind, r.Name, r.ID, "kept"))
	}
	return rows
}

// Deleted lists resources removed by a delete command.
type Deleted []reconcile.ResourceRef

func (d Deleted) Header(bool) table.Row {
	return table.Row{"KIND", "NAME", "ID"}
}

func (d Deleted) Rows(bool) []table.Row {
	rows := make([]table.Row, 0, len(d))
	for _, r := range d {
		rows = append(rows, table.Row{r.Kind, r.Name, r.ID})
	}
	return rows
}

// AgentDescription is an agent with its attached sub-resources.
type AgentDescription struct {
	Agent    platform.Agent                        `json:"agent" yaml:"agent"`
	Attached map[platform.Kind][]platform.Resource `json:"-" yaml:"-"`
}

type describedResource struct {
	Name string `json:"name" yaml:"name"`
	ID   string `json:"id" yaml:"id"`
}

func (d AgentDescription) Data() any {
	attached := make(map[string][]describedResource, len(d.Attached))
	for _, kind := range platform.Kinds() {
		list := make([]describedResource, 0, len(d.Attached[kind]))
		for _, r := range d.Attached[kind] {
			list = append(list, describedResource{Name: r.Name, ID: r.ID})
		}
		attached[string(kind)] = list
	}
	return struct {
		Agent    platform.Agent                 `json:"agent" yaml:"agent"`
		Attached map[string][]describedResource `json:"attached" yaml:"attached"`
	}{d.Agent, attached}
}

func (d AgentDescription) Header(wide bool) table.Row {
	if wide {
		return table.Row{"KIND", "NAME", "ID", "SCOPE"}
	}
	return table.Row{"KIND", "NAME", "ID"}
}

func (d AgentDescription) Rows(wide bool) []table.Row {
	row := func(kind, name, id, scope string) table.Row {
		if wide {
			return table.Row{kind, name, id, orNone(scope)}
		}
		return table.Row{kind, name, id}
	}
	rows := []table.Row{row("agent", d.Agent.Name, d.Agent.ID, "")}
	for _, kind := range platform.Kinds() {
		for _, r := range d.Attached[kind] {
			rows = append(rows, row(kind.Singular(), r.Name, r.ID, meta(r.Metadata, registry.MetaScope)))
		}
	}
	return rows
}

// HealthCheck is one line of the health command.
type HealthCheck struct {
	Check  string `json:"check" yaml:"check"`
	Status string `json:"status" yaml:"status"`
	Detail string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

type Health []HealthCheck

func (h Health) Header(bool) table.Row {
	return table.Row{"CHECK", "STATUS", "DETAIL"}
}

func (h Health) Rows(bool) []table.Row {
	rows := make([]table.Row, 0, len(h))
	for _, c := range h {
		rows = append(rows, table.Row{c.Check, c.Status, orNone(c.Detail)})
	}
	return rows
}

func meta(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func stamp(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
