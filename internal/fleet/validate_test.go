package fleet

import (
	"testing"

	"github.com/danmuck/agentctl/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validAgent(name string) Agent {
	return Agent{
		Name:         name,
		SystemPrompt: Prompt{Value: "hi"},
		LLMConfig:    LLMConfig{Model: "m", ContextWindow: 1000},
	}
}

func TestValidate(t *testing.T) {
	testlog.Start(t)
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "missing agent name",
			mutate:  func(c *Config) { c.Agents[0].Name = "" },
			wantMsg: "Agents[0].Name is required",
		},
		{
			name:    "duplicate agent",
			mutate:  func(c *Config) { c.Agents = append(c.Agents, validAgent("a")) },
			wantMsg: `duplicate name "a"`,
		},
		{
			name:    "missing model",
			mutate:  func(c *Config) { c.Agents[0].LLMConfig.Model = "" },
			wantMsg: "LLMConfig.Model is required",
		},
		{
			name: "non-positive limit",
			mutate: func(c *Config) {
				c.Agents[0].MemoryBlocks = []Block{{Name: "persona", Value: "x"}}
			},
			wantMsg: "Limit must be greater than 0",
		},
		{
			name: "value and from_file",
			mutate: func(c *Config) {
				c.Agents[0].MemoryBlocks = []Block{{Name: "persona", Limit: 10, Value: "x", FromFile: "p.md"}}
			},
			wantMsg: "mutually exclusive",
		},
		{
			name: "duplicate memory block",
			mutate: func(c *Config) {
				c.Agents[0].MemoryBlocks = []Block{{Name: "p", Limit: 1}, {Name: "p", Limit: 1}}
			},
			wantMsg: `duplicate memory block "p"`,
		},
		{
			name:    "undeclared shared block",
			mutate:  func(c *Config) { c.Agents[0].SharedBlocks = []string{"ghost"} },
			wantMsg: `shared block "ghost" is not declared`,
		},
		{
			name: "memory block shadows shared block",
			mutate: func(c *Config) {
				c.SharedBlocks = []Block{{Name: "ctx", Limit: 10}}
				c.Agents[0].SharedBlocks = []string{"ctx"}
				c.Agents[0].MemoryBlocks = []Block{{Name: "ctx", Limit: 10}}
			},
			wantMsg: "collides with a shared block reference",
		},
		{
			name:    "undeclared shared folder",
			mutate:  func(c *Config) { c.Agents[0].SharedFolders = []string{"ghost"} },
			wantMsg: `shared folder "ghost" is not declared`,
		},
		{
			name: "bad mcp type",
			mutate: func(c *Config) {
				c.MCPServers = []MCPServer{{Name: "s", Type: "carrier-pigeon"}}
			},
			wantMsg: "must be one of",
		},
		{
			name: "stdio without command",
			mutate: func(c *Config) {
				c.MCPServers = []MCPServer{{Name: "s", Type: "stdio"}}
			},
			wantMsg: "Command is required",
		},
		{
			name: "sse without url",
			mutate: func(c *Config) {
				c.MCPServers = []MCPServer{{Name: "s", Type: "sse"}}
			},
			wantMsg: "ServerURL is required",
		},
		{
			name: "stdio with command",
			mutate: func(c *Config) {
				c.MCPServers = []MCPServer{{Name: "s", Type: "stdio", Command: "npx"}}
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{Agents: []Agent{validAgent("a")}}
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantMsg == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tc.wantMsg)
		})
	}
}
