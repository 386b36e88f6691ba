package reconcile

import (
	"context"

	"github.com/danmuck/agentctl/internal/logging"
)

// Warning is a failed advisory step.
type Warning struct {
	Step    string `json:"step" yaml:"step"`
	Message string `json:"message" yaml:"message"`
}

// Advisory is a best-effort step that follows a primary operation. Its
// failure becomes a Warning and never fails the primary operation.
type Advisory struct {
	Step string
	Do   func(ctx context.Context) error
}

// RunAdvisories runs every step in order and returns one Warning per
// failed step.
func RunAdvisories(ctx context.Context, steps ...Advisory) []Warning {
	var warnings []Warning
	for _, s := range steps {
		if s.Do == nil {
			continue
		}
		if err := s.Do(ctx); err != nil {
			logging.Warnf("reconcile.Advisory step=%q err=%v", s.Step, err)
			warnings = append(warnings, Warning{Step: s.Step, Message: err.Error()})
			continue
		}
		logging.Debugf("reconcile.Advisory step=%q ok", s.Step)
	}
	return warnings
}
