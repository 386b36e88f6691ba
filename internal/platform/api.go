package platform

import "context"

// API is everything agentctl consumes from the remote platform.
type API interface {
	AgentAPI
	BlockAPI
	FolderAPI
	ArchiveAPI
	ToolAPI
	MCPAPI
	ConversationAPI
	Health(ctx context.Context) (Health, error)
}

type AgentAPI interface {
	ListAgents(ctx context.Context) ([]Agent, error)
	GetAgent(ctx context.Context, id string) (Agent, error)
	CreateAgent(ctx context.Context, spec AgentSpec) (Agent, error)
	UpdateAgent(ctx context.Context, id string, update AgentUpdate) (Agent, error)
	DeleteAgent(ctx context.Context, id string) error
	ListAttached(ctx context.Context, agentID string, kind Kind) ([]Resource, error)
	Attach(ctx context.Context, agentID string, kind Kind, id string) error
	Detach(ctx context.Context, agentID string, kind Kind, id string) error
	SendMessage(ctx context.Context, agentID string, text string) error
}

type BlockAPI interface {
	ListBlocks(ctx context.Context) ([]Block, error)
	CreateBlock(ctx context.Context, spec BlockSpec) (Block, error)
	UpdateBlock(ctx context.Context, id string, update BlockUpdate) (Block, error)
	DeleteBlock(ctx context.Context, id string) error
}

type FolderAPI interface {
	ListFolders(ctx context.Context) ([]Folder, error)
	CreateFolder(ctx context.Context, spec FolderSpec) (Folder, error)
	DeleteFolder(ctx context.Context, id string) error
	UploadFile(ctx context.Context, folderID string, fileName string, content []byte) (FileMetadata, error)
	ListFiles(ctx context.Context, folderID string) ([]FileMetadata, error)
}

type ArchiveAPI interface {
	ListArchives(ctx context.Context) ([]Archive, error)
	CreateArchive(ctx context.Context, spec ArchiveSpec) (Archive, error)
	DeleteArchive(ctx context.Context, id string) error
}

type ToolAPI interface {
	ListTools(ctx context.Context) ([]Tool, error)
	CreateTool(ctx context.Context, spec ToolSpec) (Tool, error)
	DeleteTool(ctx context.Context, id string) error
}

type MCPAPI interface {
	ListMCPServers(ctx context.Context) ([]MCPServer, error)
	CreateMCPServer(ctx context.Context, server MCPServer) (MCPServer, error)
	ListMCPTools(ctx context.Context, serverName string) ([]Tool, error)
	AddMCPTool(ctx context.Context, serverName string, toolName string) (Tool, error)
}

type ConversationAPI interface {
	ListConversations(ctx context.Context, agentID string) ([]Conversation, error)
	CreateConversation(ctx context.Context, spec ConversationSpec) (Conversation, error)
}

// FindAgentByName lists agents and returns the one named name, or ErrNotFound.
// The full list is returned as well so callers can scan the fleet without a
// second round trip.
func FindAgentByName(ctx context.Context, api AgentAPI, name string) (Agent, []Agent, error) {
	agents, err := api.ListAgents(ctx)
	if err != nil {
		return Agent{}, nil, err
	}
	for _, a := range agents {
		if a.Name == name {
			return a, agents, nil
		}
	}
	return Agent{}, agents, NotFound("agent", name)
}
