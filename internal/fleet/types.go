// Package fleet models the declarative fleet document: the agents to
// converge and the shared resources they reference.
package fleet

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root desired-state document.
type Config struct {
	RootPath      string      `yaml:"root_path,omitempty" json:"root_path,omitempty" toml:"root_path,omitempty"`
	SharedBlocks  []Block     `yaml:"shared_blocks,omitempty" json:"shared_blocks,omitempty" toml:"shared_blocks,omitempty" validate:"dive"`
	SharedFolders []Folder    `yaml:"shared_folders,omitempty" json:"shared_folders,omitempty" toml:"shared_folders,omitempty" validate:"dive"`
	MCPServers    []MCPServer `yaml:"mcp_servers,omitempty" json:"mcp_servers,omitempty" toml:"mcp_servers,omitempty" validate:"dive"`
	Agents        []Agent     `yaml:"agents" json:"agents" toml:"agents" validate:"dive"`

	root     string
	resolved bool
}

type Agent struct {
	Name          string         `yaml:"name" json:"name" toml:"name" validate:"required"`
	Description   string         `yaml:"description,omitempty" json:"description,omitempty" toml:"description,omitempty"`
	SystemPrompt  Prompt         `yaml:"system_prompt" json:"system_prompt" toml:"system_prompt"`
	LLMConfig     LLMConfig      `yaml:"llm_config" json:"llm_config" toml:"llm_config"`
	Tools         []string       `yaml:"tools,omitempty" json:"tools,omitempty" toml:"tools,omitempty" validate:"dive,required"`
	MCPTools      []MCPToolRef   `yaml:"mcp_tools,omitempty" json:"mcp_tools,omitempty" toml:"mcp_tools,omitempty" validate:"dive"`
	SharedBlocks  []string       `yaml:"shared_blocks,omitempty" json:"shared_blocks,omitempty" toml:"shared_blocks,omitempty" validate:"dive,required"`
	MemoryBlocks  []Block        `yaml:"memory_blocks,omitempty" json:"memory_blocks,omitempty" toml:"memory_blocks,omitempty" validate:"dive"`
	Archives      []Archive      `yaml:"archives,omitempty" json:"archives,omitempty" toml:"archives,omitempty" validate:"dive"`
	Conversations []Conversation `yaml:"conversations,omitempty" json:"conversations,omitempty" toml:"conversations,omitempty" validate:"dive"`
	Folders       []Folder       `yaml:"folders,omitempty" json:"folders,omitempty" toml:"folders,omitempty" validate:"dive"`
	SharedFolders []string       `yaml:"shared_folders,omitempty" json:"shared_folders,omitempty" toml:"shared_folders,omitempty" validate:"dive,required"`
	Embedding     string         `yaml:"embedding,omitempty" json:"embedding,omitempty" toml:"embedding,omitempty"`
	FirstMessage  string         `yaml:"first_message,omitempty" json:"first_message,omitempty" toml:"first_message,omitempty"`
	Reasoning     *bool          `yaml:"reasoning,omitempty" json:"reasoning,omitempty" toml:"reasoning,omitempty"`
	Tags          []string       `yaml:"tags,omitempty" json:"tags,omitempty" toml:"tags,omitempty"`
}

// Prompt is an inline value or a file reference.
type Prompt struct {
	Value             string `yaml:"value,omitempty" json:"value,omitempty" toml:"value,omitempty"`
	FromFile          string `yaml:"from_file,omitempty" json:"from_file,omitempty" toml:"from_file,omitempty"`
	DisableBasePrompt bool   `yaml:"disable_base_prompt,omitempty" json:"disable_base_prompt,omitempty" toml:"disable_base_prompt,omitempty"`
}

type LLMConfig struct {
	Model         string `yaml:"model" json:"model" toml:"model" validate:"required"`
	ContextWindow int    `yaml:"context_window" json:"context_window" toml:"context_window" validate:"gt=0"`
	MaxTokens     int    `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty" toml:"max_tokens,omitempty" validate:"gte=0"`
}

// Block is a memory block, either declared on an agent or shared.
type Block struct {
	Name        string `yaml:"name" json:"name" toml:"name" validate:"required"`
	Description string `yaml:"description,omitempty" json:"description,omitempty" toml:"description,omitempty"`
	Limit       int    `yaml:"limit" json:"limit" toml:"limit" validate:"gt=0"`
	Value       string `yaml:"value,omitempty" json:"value,omitempty" toml:"value,omitempty"`
	FromFile    string `yaml:"from_file,omitempty" json:"from_file,omitempty" toml:"from_file,omitempty"`
	Version     string `yaml:"version,omitempty" json:"version,omitempty" toml:"version,omitempty"`
	AgentOwned  *bool  `yaml:"agent_owned,omitempty" json:"agent_owned,omitempty" toml:"agent_owned,omitempty"`
}

// IsAgentOwned defaults to true: the platform may diverge from the declared
// value after creation.
func (b Block) IsAgentOwned() bool {
	return b.AgentOwned == nil || *b.AgentOwned
}

type Folder struct {
	Name  string   `yaml:"name" json:"name" toml:"name" validate:"required"`
	Files []string `yaml:"files,omitempty" json:"files,omitempty" toml:"files,omitempty" validate:"dive,required"`
}

type Archive struct {
	Name        string `yaml:"name" json:"name" toml:"name" validate:"required"`
	Description string `yaml:"description,omitempty" json:"description,omitempty" toml:"description,omitempty"`
	Embedding   string `yaml:"embedding,omitempty" json:"embedding,omitempty" toml:"embedding,omitempty"`
}

type Conversation struct {
	Summary        string   `yaml:"summary" json:"summary" toml:"summary" validate:"required"`
	IsolatedBlocks []string `yaml:"isolated_blocks,omitempty" json:"isolated_blocks,omitempty" toml:"isolated_blocks,omitempty"`
}

type MCPServer struct {
	Name          string            `yaml:"name" json:"name" toml:"name" validate:"required"`
	Type          string            `yaml:"type" json:"type" toml:"type" validate:"required,oneof=sse stdio streamable_http"`
	ServerURL     string            `yaml:"server_url,omitempty" json:"server_url,omitempty" toml:"server_url,omitempty" validate:"required_unless=Type stdio"`
	AuthHeader    string            `yaml:"auth_header,omitempty" json:"auth_header,omitempty" toml:"auth_header,omitempty"`
	AuthToken     string            `yaml:"auth_token,omitempty" json:"auth_token,omitempty" toml:"auth_token,omitempty"`
	CustomHeaders map[string]string `yaml:"custom_headers,omitempty" json:"custom_headers,omitempty" toml:"custom_headers,omitempty"`
	Command       string            `yaml:"command,omitempty" json:"command,omitempty" toml:"command,omitempty" validate:"required_if=Type stdio"`
	Args          []string          `yaml:"args,omitempty" json:"args,omitempty" toml:"args,omitempty"`
	Env           map[string]string `yaml:"env,omitempty" json:"env,omitempty" toml:"env,omitempty"`
}

// MCPToolRef selects tools from an MCP server.
type MCPToolRef struct {
	Server string        `yaml:"server" json:"server" toml:"server" validate:"required"`
	Tools  ToolSelection `yaml:"tools,omitempty" json:"tools,omitempty" toml:"tools,omitempty"`
}

// AllTools is the selector that picks every tool a server exposes.
const AllTools = "all"

// ToolSelection is either the scalar "all" or an explicit list of tool
// names. An empty selection means all.
type ToolSelection []string

// All reports whether every tool of the server is selected.
func (s ToolSelection) All() bool {
	return len(s) == 0 || (len(s) == 1 && strings.EqualFold(s[0], AllTools))
}

func (s *ToolSelection) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if !strings.EqualFold(node.Value, AllTools) {
			return fmt.Errorf("mcp tools: scalar must be %q, got %q", AllTools, node.Value)
		}
		*s = ToolSelection{AllTools}
		return nil
	case yaml.SequenceNode:
		var names []string
		if err := node.Decode(&names); err != nil {
			return err
		}
		*s = names
		return nil
	default:
		return fmt.Errorf("mcp tools: expected %q or a list", AllTools)
	}
}

func (s *ToolSelection) UnmarshalJSON(data []byte) error {
	var scalar string
	if err := json.Unmarshal(data, &scalar); err == nil {
		if !strings.EqualFold(scalar, AllTools) {
			return fmt.Errorf("mcp tools: scalar must be %q, got %q", AllTools, scalar)
		}
		*s = ToolSelection{AllTools}
		return nil
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return fmt.Errorf("mcp tools: expected %q or a list: %w", AllTools, err)
	}
	*s = names
	return nil
}

// Agent returns the agent named name.
func (c *Config) Agent(name string) (Agent, bool) {
	i := slices.IndexFunc(c.Agents, func(a Agent) bool { return a.Name == name })
	if i < 0 {
		return Agent{}, false
	}
	return c.Agents[i], true
}

// SharedBlock returns the shared block named name.
func (c *Config) SharedBlock(name string) (Block, bool) {
	i := slices.IndexFunc(c.SharedBlocks, func(b Block) bool { return b.Name == name })
	if i < 0 {
		return Block{}, false
	}
	return c.SharedBlocks[i], true
}

// SharedFolder returns the shared folder named name.
func (c *Config) SharedFolder(name string) (Folder, bool) {
	i := slices.IndexFunc(c.SharedFolders, func(f Folder) bool { return f.Name == name })
	if i < 0 {
		return Folder{}, false
	}
	return c.SharedFolders[i], true
}

// MCPServer returns the declared server named name.
func (c *Config) MCPServer(name string) (MCPServer, bool) {
	i := slices.IndexFunc(c.MCPServers, func(s MCPServer) bool { return s.Name == name })
	if i < 0 {
		return MCPServer{}, false
	}
	return c.MCPServers[i], true
}

// AgentNames lists agent names in document order.
func (c *Config) AgentNames() []string {
	out := make([]string, 0, len(c.Agents))
	for _, a := range c.Agents {
		out = append(out, a.Name)
	}
	return out
}
