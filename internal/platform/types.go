package platform

import "time"

// Kind names an attachable sub-resource of an agent.
type Kind string

const (
	KindBlock   Kind = "blocks"
	KindTool    Kind = "tools"
	KindFolder  Kind = "folders"
	KindArchive Kind = "archives"
)

// Kinds lists every attachable kind in reconcile order.
func Kinds() []Kind {
	return []Kind{KindTool, KindBlock, KindFolder, KindArchive}
}

// Singular returns the display name used in logs and errors.
func (k Kind) Singular() string {
	switch k {
	case KindBlock:
		return "block"
	case KindTool:
		return "tool"
	case KindFolder:
		return "folder"
	case KindArchive:
		return "archive"
	default:
		return string(k)
	}
}

// Resource is the kind-agnostic identity of an attached sub-resource.
// For blocks Name carries the raw label, which may include a version suffix.
type Resource struct {
	ID       string
	Name     string
	Metadata map[string]any
}

type LLMConfig struct {
	Model         string `json:"model" yaml:"model"`
	ContextWindow int    `json:"context_window" yaml:"context_window"`
	MaxTokens     int    `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

type Agent struct {
	ID          string         `json:"id" yaml:"id"`
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	System      string         `json:"system,omitempty" yaml:"system,omitempty"`
	LLMConfig   *LLMConfig     `json:"llm_config,omitempty" yaml:"llm_config,omitempty"`
	Embedding   string         `json:"embedding,omitempty" yaml:"embedding,omitempty"`
	Tags        []string       `json:"tags,omitempty" yaml:"tags,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	CreatedAt   *time.Time     `json:"created_at,omitempty" yaml:"created_at,omitempty"`
}

// AgentSpec is the create payload for an agent.
type AgentSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	System      string         `json:"system,omitempty"`
	LLMConfig   *LLMConfig     `json:"llm_config,omitempty"`
	Embedding   string         `json:"embedding,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Reasoning   *bool          `json:"reasoning,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	// IncludeBaseTools is always sent false; tools are attached explicitly.
	IncludeBaseTools bool `json:"include_base_tools"`
}

// AgentUpdate is a partial agent patch; nil fields are left untouched.
type AgentUpdate struct {
	Description *string    `json:"description,omitempty"`
	System      *string    `json:"system,omitempty"`
	LLMConfig   *LLMConfig `json:"llm_config,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (u AgentUpdate) Empty() bool {
	return u.Description == nil && u.System == nil && u.LLMConfig == nil && u.Tags == nil
}

type Block struct {
	ID          string         `json:"id" yaml:"id"`
	Label       string         `json:"label" yaml:"label"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Value       string         `json:"value" yaml:"value"`
	Limit       int            `json:"limit,omitempty" yaml:"limit,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

type BlockSpec struct {
	Label       string         `json:"label"`
	Description string         `json:"description,omitempty"`
	Value       string         `json:"value"`
	Limit       int            `json:"limit,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type BlockUpdate struct {
	Value       *string        `json:"value,omitempty"`
	Description *string        `json:"description,omitempty"`
	Limit       *int           `json:"limit,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type Folder struct {
	ID        string         `json:"id" yaml:"id"`
	Name      string         `json:"name" yaml:"name"`
	Embedding string         `json:"embedding,omitempty" yaml:"embedding,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

type FolderSpec struct {
	Name      string         `json:"name"`
	Embedding string         `json:"embedding,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type FileMetadata struct {
	ID       string `json:"id" yaml:"id"`
	FolderID string `json:"folder_id,omitempty" yaml:"folder_id,omitempty"`
	FileName string `json:"file_name" yaml:"file_name"`
}

type Archive struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Embedding   string `json:"embedding,omitempty" yaml:"embedding,omitempty"`
}

type ArchiveSpec struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Embedding   string `json:"embedding,omitempty"`
}

type Tool struct {
	ID         string   `json:"id" yaml:"id"`
	Name       string   `json:"name" yaml:"name"`
	SourceCode string   `json:"source_code,omitempty" yaml:"-"`
	SourceType string   `json:"source_type,omitempty" yaml:"source_type,omitempty"`
	ToolType   string   `json:"tool_type,omitempty" yaml:"tool_type,omitempty"`
	Tags       []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

type ToolSpec struct {
	SourceCode string   `json:"source_code"`
	SourceType string   `json:"source_type,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

// MCP transport types.
const (
	MCPTypeSSE            = "sse"
	MCPTypeStdio          = "stdio"
	MCPTypeStreamableHTTP = "streamable_http"
)

type MCPServer struct {
	Name          string            `json:"server_name" yaml:"name"`
	Type          string            `json:"type" yaml:"type"`
	ServerURL     string            `json:"server_url,omitempty" yaml:"server_url,omitempty"`
	AuthHeader    string            `json:"auth_header,omitempty" yaml:"-"`
	AuthToken     string            `json:"auth_token,omitempty" yaml:"-"`
	CustomHeaders map[string]string `json:"custom_headers,omitempty" yaml:"-"`
	Command       string            `json:"command,omitempty" yaml:"command,omitempty"`
	Args          []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env           map[string]string `json:"env,omitempty" yaml:"-"`
}

type Conversation struct {
	ID           string     `json:"id" yaml:"id"`
	AgentID      string     `json:"agent_id" yaml:"agent_id"`
	Summary      string     `json:"summary,omitempty" yaml:"summary,omitempty"`
	MessageCount int        `json:"message_count,omitempty" yaml:"message_count,omitempty"`
	CreatedAt    *time.Time `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

type ConversationSpec struct {
	AgentID             string   `json:"agent_id"`
	Summary             string   `json:"summary"`
	IsolatedBlockLabels []string `json:"isolated_block_labels,omitempty"`
}

type Health struct {
	Status  string `json:"status" yaml:"status"`
	Version string `json:"version" yaml:"version"`
}
