package reconcile

import (
	"context"

	"github.com/danmuck/agentctl/internal/fleet"
	"github.com/danmuck/agentctl/internal/observability"
	"github.com/danmuck/agentctl/internal/platform"
)

// ensureConversations creates the declared conversations the agent does
// not have yet, matched by summary. Isolated blocks are passed by the label
// the block resolved to in this run.
func (rn *run) ensureConversations(ctx context.Context, a fleet.Agent, agentID string, res *AgentResult) {
	if len(a.Conversations) == 0 {
		return
	}
	existing, err := rn.api.ListConversations(ctx, agentID)
	if err != nil {
		res.Failures = append(res.Failures, Failure{Kind: "conversation", Name: a.Name, Action: "list", Error: err.Error()})
		return
	}
	have := make(map[string]bool, len(existing))
	for _, c := range existing {
		have[c.Summary] = true
	}
	labels := make(map[string]string, len(res.Blocks))
	for _, b := range res.Blocks {
		labels[b.Name] = b.Label
	}
	for _, c := range a.Conversations {
		if have[c.Summary] {
			continue
		}
		spec := platform.ConversationSpec{AgentID: agentID, Summary: c.Summary}
		for _, name := range c.IsolatedBlocks {
			label := labels[name]
			if label == "" {
				label = name
			}
			spec.IsolatedBlockLabels = append(spec.IsolatedBlockLabels, label)
		}
		if _, err := rn.api.CreateConversation(ctx, spec); err != nil {
			res.Failures = append(res.Failures, Failure{Kind: "conversation", Name: c.Summary, Action: ActionCreate, Error: err.Error()})
			observability.RecordReconcileOp("conversation", ActionCreate, "error")
			continue
		}
		have[c.Summary] = true
		res.Conversations = append(res.Conversations, c.Summary)
		observability.RecordReconcileOp("conversation", ActionCreate, "ok")
	}
}
