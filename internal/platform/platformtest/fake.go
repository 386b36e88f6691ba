// Package platformtest provides an in-memory platform for tests, plus an
// HTTP server that exposes it on the same routes as the real service.
package platformtest

import (
	"context"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"sync"

	"github.com/danmuck/agentctl/internal/platform"
)

var defRe = regexp.MustCompile(`(?m)^\s*def\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(`)

// ToolName derives a tool name from Python source the way the platform does:
// the first top-level function definition.
func ToolName(source string) string {
	m := defRe.FindStringSubmatch(source)
	if m == nil {
		return ""
	}
	return m[1]
}

// Fake is a concurrency-safe in-memory platform.API. Every call is counted
// by method name, and failures can be injected per method.
type Fake struct {
	mu  sync.Mutex
	seq int

	agents        []platform.Agent
	blocks        []platform.Block
	folders       []platform.Folder
	archives      []platform.Archive
	tools         []platform.Tool
	mcpServers    []platform.MCPServer
	mcpTools      map[string][]platform.Tool
	conversations []platform.Conversation
	files         map[string][]platform.FileMetadata
	attached      map[string]map[platform.Kind][]string
	messages      map[string][]string

	calls    map[string]int
	failNext map[string][]error
	fail     map[string]error
	health   platform.Health
}

var _ platform.API = (*Fake)(nil)

func NewFake() *Fake {
	return &Fake{
		mcpTools: make(map[string][]platform.Tool),
		files:    make(map[string][]platform.FileMetadata),
		attached: make(map[string]map[platform.Kind][]string),
		messages: make(map[string][]string),
		calls:    make(map[string]int),
		failNext: make(map[string][]error),
		fail:     make(map[string]error),
		health:   platform.Health{Status: "ok", Version: "fake"},
	}
}

// Calls returns how many times op (an API method name) was invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// TotalCalls sums the counts for the given ops.
func (f *Fake) TotalCalls(ops ...string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, op := range ops {
		n += f.calls[op]
	}
	return n
}

// ResetCalls zeroes every call counter.
func (f *Fake) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	clear(f.calls)
}

// FailNext makes the next call to op return err. Calls queue in order.
func (f *Fake) FailNext(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext[op] = append(f.failNext[op], err)
}

// Fail makes every call to op return err until cleared with a nil err.
func (f *Fake) Fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fail, op)
		return
	}
	f.fail[op] = err
}

// SetHealth overrides the Health response.
func (f *Fake) SetHealth(h platform.Health) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.health = h
}

// enter records a call and returns any injected failure. Caller holds mu.
func (f *Fake) enter(op string) error {
	f.calls[op]++
	if queue := f.failNext[op]; len(queue) > 0 {
		err := queue[0]
		f.failNext[op] = queue[1:]
		return err
	}
	return f.fail[op]
}

func (f *Fake) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq)
}

func remoteNotFound(method, path string) error {
	return &platform.RemoteError{Method: method, Path: path, Status: 404, Body: `{"detail":"not found"}`}
}

// seeding

// AddAgent stores a, assigning an id when empty, and returns the stored copy.
func (f *Fake) AddAgent(a platform.Agent) platform.Agent {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a.ID == "" {
		a.ID = f.nextID("agent")
	}
	f.agents = append(f.agents, a)
	return a
}

func (f *Fake) AddBlock(b platform.Block) platform.Block {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b.ID == "" {
		b.ID = f.nextID("block")
	}
	f.blocks = append(f.blocks, b)
	return b
}

func (f *Fake) AddFolder(fo platform.Folder) platform.Folder {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fo.ID == "" {
		fo.ID = f.nextID("folder")
	}
	f.folders = append(f.folders, fo)
	return fo
}

func (f *Fake) AddArchive(a platform.Archive) platform.Archive {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a.ID == "" {
		a.ID = f.nextID("archive")
	}
	f.archives = append(f.archives, a)
	return a
}

func (f *Fake) AddTool(t platform.Tool) platform.Tool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t.ID == "" {
		t.ID = f.nextID("tool")
	}
	f.tools = append(f.tools, t)
	return t
}

// AddMCPServer registers a server and the tools it exposes.
func (f *Fake) AddMCPServer(s platform.MCPServer, tools ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mcpServers = append(f.mcpServers, s)
	for _, name := range tools {
		f.mcpTools[s.Name] = append(f.mcpTools[s.Name], platform.Tool{Name: name, ToolType: "external_mcp"})
	}
}

// AttachExisting attaches id to agentID without counting a call.
func (f *Fake) AttachExisting(agentID string, kind platform.Kind, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attach(agentID, kind, id)
}

func (f *Fake) attach(agentID string, kind platform.Kind, id string) {
	byKind, ok := f.attached[agentID]
	if !ok {
		byKind = make(map[platform.Kind][]string)
		f.attached[agentID] = byKind
	}
	if !slices.Contains(byKind[kind], id) {
		byKind[kind] = append(byKind[kind], id)
	}
}

// inspection

// AttachedIDs returns the ids attached to agentID for kind, in attach order.
func (f *Fake) AttachedIDs(agentID string, kind platform.Kind) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.attached[agentID][kind])
}

// Messages returns the messages sent to agentID.
func (f *Fake) Messages(agentID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.messages[agentID])
}

// Block returns the stored block with id.
func (f *Fake) Block(id string) (platform.Block, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := slices.IndexFunc(f.blocks, func(b platform.Block) bool { return b.ID == id })
	if i < 0 {
		return platform.Block{}, false
	}
	return cloneBlock(f.blocks[i]), true
}

// Files returns the files uploaded to folderID.
func (f *Fake) Files(folderID string) []platform.FileMetadata {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.files[folderID])
}

func cloneBlock(b platform.Block) platform.Block {
	b.Metadata = maps.Clone(b.Metadata)
	return b
}

// agents

func (f *Fake) ListAgents(ctx context.Context) ([]platform.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListAgents"); err != nil {
		return nil, err
	}
	return slices.Clone(f.agents), nil
}

func (f *Fake) agentIndex(id string) int {
	return slices.IndexFunc(f.agents, func(a platform.Agent) bool { return a.ID == id })
}

func (f *Fake) GetAgent(ctx context.Context, id string) (platform.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetAgent"); err != nil {
		return platform.Agent{}, err
	}
	i := f.agentIndex(id)
	if i < 0 {
		return platform.Agent{}, remoteNotFound("GET", "/v1/agents/"+id)
	}
	return f.agents[i], nil
}

func (f *Fake) CreateAgent(ctx context.Context, spec platform.AgentSpec) (platform.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreateAgent"); err != nil {
		return platform.Agent{}, err
	}
	a := platform.Agent{
		ID:          f.nextID("agent"),
		Name:        spec.Name,
		Description: spec.Description,
		System:      spec.System,
		LLMConfig:   spec.LLMConfig,
		Embedding:   spec.Embedding,
		Tags:        slices.Clone(spec.Tags),
		Metadata:    maps.Clone(spec.Metadata),
	}
	f.agents = append(f.agents, a)
	return a, nil
}

func (f *Fake) UpdateAgent(ctx context.Context, id string, update platform.AgentUpdate) (platform.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("UpdateAgent"); err != nil {
		return platform.Agent{}, err
	}
	i := f.agentIndex(id)
	if i < 0 {
		return platform.Agent{}, remoteNotFound("PATCH", "/v1/agents/"+id)
	}
	a := &f.agents[i]
	if update.Description != nil {
		a.Description = *update.Description
	}
	if update.System != nil {
		a.System = *update.System
	}
	if update.LLMConfig != nil {
		cfg := *update.LLMConfig
		a.LLMConfig = &cfg
	}
	if update.Tags != nil {
		a.Tags = slices.Clone(update.Tags)
	}
	return *a, nil
}

func (f *Fake) DeleteAgent(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DeleteAgent"); err != nil {
		return err
	}
	i := f.agentIndex(id)
	if i < 0 {
		return remoteNotFound("DELETE", "/v1/agents/"+id)
	}
	f.agents = slices.Delete(f.agents, i, i+1)
	delete(f.attached, id)
	f.conversations = slices.DeleteFunc(f.conversations, func(c platform.Conversation) bool { return c.AgentID == id })
	return nil
}

func (f *Fake) resource(kind platform.Kind, id string) (platform.Resource, bool) {
	switch kind {
	case platform.KindBlock:
		for _, b := range f.blocks {
			if b.ID == id {
				return platform.Resource{ID: b.ID, Name: b.Label, Metadata: maps.Clone(b.Metadata)}, true
			}
		}
	case platform.KindFolder:
		for _, fo := range f.folders {
			if fo.ID == id {
				return platform.Resource{ID: fo.ID, Name: fo.Name, Metadata: maps.Clone(fo.Metadata)}, true
			}
		}
	case platform.KindArchive:
		for _, a := range f.archives {
			if a.ID == id {
				return platform.Resource{ID: a.ID, Name: a.Name}, true
			}
		}
	case platform.KindTool:
		for _, t := range f.tools {
			if t.ID == id {
				return platform.Resource{ID: t.ID, Name: t.Name}, true
			}
		}
	}
	return platform.Resource{}, false
}

func (f *Fake) ListAttached(ctx context.Context, agentID string, kind platform.Kind) ([]platform.Resource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListAttached"); err != nil {
		return nil, err
	}
	if f.agentIndex(agentID) < 0 {
		return nil, remoteNotFound("GET", "/v1/agents/"+agentID+"/"+string(kind))
	}
	out := []platform.Resource{}
	for _, id := range f.attached[agentID][kind] {
		if r, ok := f.resource(kind, id); ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *Fake) Attach(ctx context.Context, agentID string, kind platform.Kind, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Attach"); err != nil {
		return err
	}
	if f.agentIndex(agentID) < 0 {
		return remoteNotFound("PATCH", "/v1/agents/"+agentID)
	}
	if _, ok := f.resource(kind, id); !ok {
		return remoteNotFound("PATCH", "/v1/agents/"+agentID+"/"+string(kind)+"/attach/"+id)
	}
	f.attach(agentID, kind, id)
	return nil
}

func (f *Fake) Detach(ctx context.Context, agentID string, kind platform.Kind, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Detach"); err != nil {
		return err
	}
	ids := f.attached[agentID][kind]
	i := slices.Index(ids, id)
	if i < 0 {
		return remoteNotFound("PATCH", "/v1/agents/"+agentID+"/"+string(kind)+"/detach/"+id)
	}
	f.attached[agentID][kind] = slices.Delete(ids, i, i+1)
	return nil
}

func (f *Fake) SendMessage(ctx context.Context, agentID string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("SendMessage"); err != nil {
		return err
	}
	if f.agentIndex(agentID) < 0 {
		return remoteNotFound("POST", "/v1/agents/"+agentID+"/messages")
	}
	f.messages[agentID] = append(f.messages[agentID], text)
	return nil
}

// detachEverywhere removes id from every agent. Caller holds mu.
func (f *Fake) detachEverywhere(kind platform.Kind, id string) {
	for _, byKind := range f.attached {
		byKind[kind] = slices.DeleteFunc(byKind[kind], func(v string) bool { return v == id })
	}
}

// blocks

func (f *Fake) ListBlocks(ctx context.Context) ([]platform.Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListBlocks"); err != nil {
		return nil, err
	}
	out := make([]platform.Block, 0, len(f.blocks))
	for _, b := range f.blocks {
		out = append(out, cloneBlock(b))
	}
	return out, nil
}

func (f *Fake) CreateBlock(ctx context.Context, spec platform.BlockSpec) (platform.Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreateBlock"); err != nil {
		return platform.Block{}, err
	}
	b := platform.Block{
		ID:          f.nextID("block"),
		Label:       spec.Label,
		Description: spec.Description,
		Value:       spec.Value,
		Limit:       spec.Limit,
		Metadata:    maps.Clone(spec.Metadata),
	}
	f.blocks = append(f.blocks, b)
	return cloneBlock(b), nil
}

func (f *Fake) UpdateBlock(ctx context.Context, id string, update platform.BlockUpdate) (platform.Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("UpdateBlock"); err != nil {
		return platform.Block{}, err
	}
	i := slices.IndexFunc(f.blocks, func(b platform.Block) bool { return b.ID == id })
	if i < 0 {
		return platform.Block{}, remoteNotFound("PATCH", "/v1/blocks/"+id)
	}
	b := &f.blocks[i]
	if update.Value != nil {
		b.Value = *update.Value
	}
	if update.Description != nil {
		b.Description = *update.Description
	}
	if update.Limit != nil {
		b.Limit = *update.Limit
	}
	if update.Metadata != nil {
		b.Metadata = maps.Clone(update.Metadata)
	}
	return cloneBlock(*b), nil
}

func (f *Fake) DeleteBlock(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DeleteBlock"); err != nil {
		return err
	}
	i := slices.IndexFunc(f.blocks, func(b platform.Block) bool { return b.ID == id })
	if i < 0 {
		return remoteNotFound("DELETE", "/v1/blocks/"+id)
	}
	f.blocks = slices.Delete(f.blocks, i, i+1)
	f.detachEverywhere(platform.KindBlock, id)
	return nil
}

// folders

func (f *Fake) ListFolders(ctx context.Context) ([]platform.Folder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListFolders"); err != nil {
		return nil, err
	}
	return slices.Clone(f.folders), nil
}

func (f *Fake) CreateFolder(ctx context.Context, spec platform.FolderSpec) (platform.Folder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreateFolder"); err != nil {
		return platform.Folder{}, err
	}
	fo := platform.Folder{ID: f.nextID("folder"), Name: spec.Name, Embedding: spec.Embedding, Metadata: maps.Clone(spec.Metadata)}
	f.folders = append(f.folders, fo)
	return fo, nil
}

func (f *Fake) DeleteFolder(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DeleteFolder"); err != nil {
		return err
	}
	i := slices.IndexFunc(f.folders, func(fo platform.Folder) bool { return fo.ID == id })
	if i < 0 {
		return remoteNotFound("DELETE", "/v1/folders/"+id)
	}
	f.folders = slices.Delete(f.folders, i, i+1)
	delete(f.files, id)
	f.detachEverywhere(platform.KindFolder, id)
	return nil
}

func (f *Fake) UploadFile(ctx context.Context, folderID string, fileName string, content []byte) (platform.FileMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("UploadFile"); err != nil {
		return platform.FileMetadata{}, err
	}
	if !slices.ContainsFunc(f.folders, func(fo platform.Folder) bool { return fo.ID == folderID }) {
		return platform.FileMetadata{}, remoteNotFound("POST", "/v1/folders/"+folderID+"/upload")
	}
	meta := platform.FileMetadata{ID: f.nextID("file"), FolderID: folderID, FileName: fileName}
	f.files[folderID] = append(f.files[folderID], meta)
	return meta, nil
}

func (f *Fake) ListFiles(ctx context.Context, folderID string) ([]platform.FileMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListFiles"); err != nil {
		return nil, err
	}
	return slices.Clone(f.files[folderID]), nil
}

// archives

func (f *Fake) ListArchives(ctx context.Context) ([]platform.Archive, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListArchives"); err != nil {
		return nil, err
	}
	return slices.Clone(f.archives), nil
}

func (f *Fake) CreateArchive(ctx context.Context, spec platform.ArchiveSpec) (platform.Archive, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreateArchive"); err != nil {
		return platform.Archive{}, err
	}
	a := platform.Archive{ID: f.nextID("archive"), Name: spec.Name, Description: spec.Description, Embedding: spec.Embedding}
	f.archives = append(f.archives, a)
	return a, nil
}

func (f *Fake) DeleteArchive(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DeleteArchive"); err != nil {
		return err
	}
	i := slices.IndexFunc(f.archives, func(a platform.Archive) bool { return a.ID == id })
	if i < 0 {
		return remoteNotFound("DELETE", "/v1/archives/"+id)
	}
	f.archives = slices.Delete(f.archives, i, i+1)
	f.detachEverywhere(platform.KindArchive, id)
	return nil
}

// tools

func (f *Fake) ListTools(ctx context.Context) ([]platform.Tool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListTools"); err != nil {
		return nil, err
	}
	return slices.Clone(f.tools), nil
}

// CreateTool registers source under the name of its first function. An
// existing tool of that name is replaced by a new record with a new id.
func (f *Fake) CreateTool(ctx context.Context, spec platform.ToolSpec) (platform.Tool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreateTool"); err != nil {
		return platform.Tool{}, err
	}
	name := ToolName(spec.SourceCode)
	if name == "" {
		return platform.Tool{}, &platform.RemoteError{Method: "POST", Path: "/v1/tools/", Status: 422, Body: `{"detail":"no function definition"}`}
	}
	f.tools = slices.DeleteFunc(f.tools, func(t platform.Tool) bool { return t.Name == name })
	sourceType := spec.SourceType
	if sourceType == "" {
		sourceType = "python"
	}
	t := platform.Tool{
		ID:         f.nextID("tool"),
		Name:       name,
		SourceCode: spec.SourceCode,
		SourceType: sourceType,
		ToolType:   "custom",
		Tags:       slices.Clone(spec.Tags),
	}
	f.tools = append(f.tools, t)
	return t, nil
}

func (f *Fake) DeleteTool(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DeleteTool"); err != nil {
		return err
	}
	i := slices.IndexFunc(f.tools, func(t platform.Tool) bool { return t.ID == id })
	if i < 0 {
		return remoteNotFound("DELETE", "/v1/tools/"+id)
	}
	f.tools = slices.Delete(f.tools, i, i+1)
	f.detachEverywhere(platform.KindTool, id)
	return nil
}

// mcp

func (f *Fake) ListMCPServers(ctx context.Context) ([]platform.MCPServer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListMCPServers"); err != nil {
		return nil, err
	}
	return slices.Clone(f.mcpServers), nil
}

func (f *Fake) CreateMCPServer(ctx context.Context, server platform.MCPServer) (platform.MCPServer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreateMCPServer"); err != nil {
		return platform.MCPServer{}, err
	}
	if slices.ContainsFunc(f.mcpServers, func(s platform.MCPServer) bool { return s.Name == server.Name }) {
		return platform.MCPServer{}, &platform.RemoteError{Method: "PUT", Path: "/v1/tools/mcp/servers", Status: 409, Body: `{"detail":"server exists"}`}
	}
	f.mcpServers = append(f.mcpServers, server)
	return server, nil
}

func (f *Fake) ListMCPTools(ctx context.Context, serverName string) ([]platform.Tool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListMCPTools"); err != nil {
		return nil, err
	}
	if !slices.ContainsFunc(f.mcpServers, func(s platform.MCPServer) bool { return s.Name == serverName }) {
		return nil, remoteNotFound("GET", "/v1/tools/mcp/servers/"+serverName+"/tools")
	}
	return slices.Clone(f.mcpTools[serverName]), nil
}

// AddMCPTool registers a server tool as a platform tool, reusing an existing
// registration of the same name.
func (f *Fake) AddMCPTool(ctx context.Context, serverName string, toolName string) (platform.Tool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("AddMCPTool"); err != nil {
		return platform.Tool{}, err
	}
	if !slices.ContainsFunc(f.mcpTools[serverName], func(t platform.Tool) bool { return t.Name == toolName }) {
		return platform.Tool{}, remoteNotFound("POST", "/v1/tools/mcp/servers/"+serverName+"/"+toolName)
	}
	if i := slices.IndexFunc(f.tools, func(t platform.Tool) bool { return t.Name == toolName }); i >= 0 {
		return f.tools[i], nil
	}
	t := platform.Tool{ID: f.nextID("tool"), Name: toolName, ToolType: "external_mcp", Tags: []string{"mcp:" + serverName}}
	f.tools = append(f.tools, t)
	return t, nil
}

// conversations

func (f *Fake) ListConversations(ctx context.Context, agentID string) ([]platform.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListConversations"); err != nil {
		return nil, err
	}
	out := []platform.Conversation{}
	for _, c := range f.conversations {
		if c.AgentID == agentID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *Fake) CreateConversation(ctx context.Context, spec platform.ConversationSpec) (platform.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreateConversation"); err != nil {
		return platform.Conversation{}, err
	}
	if f.agentIndex(spec.AgentID) < 0 {
		return platform.Conversation{}, remoteNotFound("POST", "/v1/conversations/")
	}
	c := platform.Conversation{ID: f.nextID("conv"), AgentID: spec.AgentID, Summary: spec.Summary}
	f.conversations = append(f.conversations, c)
	return c, nil
}

func (f *Fake) Health(ctx context.Context) (platform.Health, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Health"); err != nil {
		return platform.Health{}, err
	}
	return f.health, nil
}
