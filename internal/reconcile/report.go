package reconcile

import (
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/agentctl/internal/diff"
	"github.com/danmuck/agentctl/internal/platform"
	"github.com/danmuck/agentctl/internal/registry"
)

// Agent outcomes.
const (
	OutcomeUnchanged = "unchanged"
	OutcomeApplied   = "applied"
	// OutcomePlanned means guarded operations were reported, not executed.
	OutcomePlanned = "planned"
	OutcomeFailed  = "failed"
)

// Operation actions, also used as metric labels.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionAttach = "attach"
	ActionDetach = "detach"
	ActionSwap   = "swap"
	ActionUpload = "upload"
	ActionDelete = "delete"
)

// Guard reasons.
const (
	ReasonForceRequired = "requires --force"
	ReasonSharedInUse   = "shared resource referenced by other agents"
	ReasonAttached      = "resource is attached to agents"
)

// Failure is one operation that did not succeed.
type Failure struct {
	Kind   string `json:"kind" yaml:"kind"`
	Name   string `json:"name" yaml:"name"`
	Action string `json:"action" yaml:"action"`
	Error  string `json:"error" yaml:"error"`
}

// GuardRejection is an operation that was computed but not executed.
type GuardRejection struct {
	Agent  string   `json:"agent,omitempty" yaml:"agent,omitempty"`
	Kind   string   `json:"kind" yaml:"kind"`
	Name   string   `json:"name" yaml:"name"`
	ID     string   `json:"id,omitempty" yaml:"id,omitempty"`
	Reason string   `json:"reason" yaml:"reason"`
	Users  []string `json:"referenced_by,omitempty" yaml:"referenced_by,omitempty"`
}

func (g GuardRejection) String() string {
	s := fmt.Sprintf("%s %q: %s", g.Kind, g.Name, g.Reason)
	if len(g.Users) > 0 {
		s += fmt.Sprintf(" %v", g.Users)
	}
	return s
}

// BlockChange records what block resolution did for one declared block.
type BlockChange struct {
	Name   string               `json:"name" yaml:"name"`
	Shared bool                 `json:"shared" yaml:"shared"`
	ID     string               `json:"id" yaml:"id"`
	Label  string               `json:"label" yaml:"label"`
	Action registry.BlockAction `json:"action" yaml:"action"`
}

// AgentResult is the outcome of reconciling one agent.
type AgentResult struct {
	Agent         string                     `json:"agent" yaml:"agent"`
	AgentID       string                     `json:"agent_id,omitempty" yaml:"agent_id,omitempty"`
	Outcome       string                     `json:"outcome" yaml:"outcome"`
	Created       bool                       `json:"created" yaml:"created"`
	Plan          diff.AgentUpdateOperations `json:"plan" yaml:"plan"`
	Blocks        []BlockChange              `json:"blocks,omitempty" yaml:"blocks,omitempty"`
	Conversations []string                   `json:"conversations_created,omitempty" yaml:"conversations_created,omitempty"`
	Failures      []Failure                  `json:"failures,omitempty" yaml:"failures,omitempty"`
	Rejections    []GuardRejection           `json:"rejections,omitempty" yaml:"rejections,omitempty"`
	Error         string                     `json:"error,omitempty" yaml:"error,omitempty"`
}

func (a *AgentResult) fail(kind platform.Kind, name, action string, err error) {
	a.Failures = append(a.Failures, Failure{Kind: kind.Singular(), Name: name, Action: action, Error: err.Error()})
}

func (a *AgentResult) reject(g GuardRejection) {
	g.Agent = a.Agent
	a.Rejections = append(a.Rejections, g)
}

// changedBlocks reports whether block resolution created, pushed or
// rotated anything.
func (a *AgentResult) changedBlocks() bool {
	for _, b := range a.Blocks {
		if b.Action != registry.BlockReused {
			return true
		}
	}
	return false
}

func (a *AgentResult) settle() {
	switch {
	case a.Error != "" || len(a.Failures) > 0:
		a.Outcome = OutcomeFailed
	case len(a.Rejections) > 0:
		a.Outcome = OutcomePlanned
	case a.Created || a.Plan.HasChanges() || a.changedBlocks() || len(a.Conversations) > 0:
		a.Outcome = OutcomeApplied
	default:
		a.Outcome = OutcomeUnchanged
	}
}

// Report is the result of one apply run.
type Report struct {
	RunID      string        `json:"run_id" yaml:"run_id"`
	StartedAt  time.Time     `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time     `json:"finished_at" yaml:"finished_at"`
	Force      bool          `json:"force" yaml:"force"`
	Agents     []AgentResult `json:"agents" yaml:"agents"`
	Failures   []Failure     `json:"failures,omitempty" yaml:"failures,omitempty"`
	Warnings   []Warning     `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Agent returns the result for name.
func (r *Report) Agent(name string) (AgentResult, bool) {
	for _, a := range r.Agents {
		if a.Agent == name {
			return a, true
		}
	}
	return AgentResult{}, false
}

// Rejections collects every guard rejection across agents.
func (r *Report) Rejections() []GuardRejection {
	var out []GuardRejection
	for _, a := range r.Agents {
		for _, g := range a.Rejections {
			if g.Agent == "" {
				g.Agent = a.Agent
			}
			out = append(out, g)
		}
	}
	return out
}

// Err summarizes the run: ErrApplyFailed when anything failed, otherwise
// ErrGuardRejected when anything was held back, otherwise nil.
func (r *Report) Err() error {
	var failed []string
	for _, a := range r.Agents {
		if a.Outcome == OutcomeFailed {
			failed = append(failed, a.Agent)
		}
	}
	if len(failed) > 0 || len(r.Failures) > 0 {
		return fmt.Errorf("%w: agents=%v fleet_failures=%d", ErrApplyFailed, failed, len(r.Failures))
	}
	if n := len(r.Rejections()); n > 0 {
		return fmt.Errorf("%w: %d operation(s) held back", ErrGuardRejected, n)
	}
	return nil
}

// ExitCode maps a run error to the CLI exit status: 0 success, 2 guard
// rejection, 1 anything else.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrApplyFailed):
		return 1
	case errors.Is(err, ErrGuardRejected):
		return 2
	default:
		return 1
	}
}
