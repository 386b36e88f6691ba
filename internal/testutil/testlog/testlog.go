package testlog

import (
	"testing"

	"github.com/danmuck/agentctl/internal/logging"
)

func Start(t *testing.T) {
	t.Helper()
	logging.ConfigureTests()
	logging.Debugf("test=%s", t.Name())
}
