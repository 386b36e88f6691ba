package platform

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/danmuck/agentctl/internal/logging"
	"github.com/danmuck/agentctl/internal/observability"
)

const (
	defaultTimeout = 60 * time.Second
	maxErrorBody   = 4096
)

// ClientConfig configures the HTTP platform client.
type ClientConfig struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	UserAgent string
	// CAFile is a PEM bundle trusted in addition to the system roots.
	CAFile     string
	HTTPClient *http.Client
}

// Client implements API over the platform's REST interface.
type Client struct {
	baseURL   *url.URL
	apiKey    string
	userAgent string
	http      *http.Client
}

var _ API = (*Client)(nil)

// NewClient validates cfg and returns a ready client.
func NewClient(cfg ClientConfig) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, errors.New("platform: base url required")
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("platform: invalid base url %q: %w", raw, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("platform: base url %q must be http or https", raw)
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
		if ca := strings.TrimSpace(cfg.CAFile); ca != "" {
			transport, err := caTransport(ca)
			if err != nil {
				return nil, err
			}
			hc.Transport = transport
		}
	}
	ua := strings.TrimSpace(cfg.UserAgent)
	if ua == "" {
		ua = "agentctl"
	}
	return &Client{
		baseURL:   base,
		apiKey:    strings.TrimSpace(cfg.APIKey),
		userAgent: ua,
		http:      hc,
	}, nil
}

func caTransport(path string) (*http.Transport, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("platform: read ca file: %w", err)
	}
	pool, err := x509.SystemCertPool()
	if err != nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("platform: ca file %s holds no certificates", path)
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	return transport, nil
}

// BaseURL returns the configured platform endpoint.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// request is one outbound call. route is the templated path used as the
// metrics label; path is the concrete, escaped path.
type request struct {
	method      string
	route       string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
}

func (c *Client) newRequest(method, route, path string, payload any) (request, error) {
	req := request{method: method, route: route, path: path}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return request{}, fmt.Errorf("platform: encode %s %s: %w", method, route, err)
		}
		req.body = bytes.NewReader(data)
		req.contentType = "application/json"
	}
	return req, nil
}

// send executes req and returns the response body of a 2xx response.
func (c *Client) send(ctx context.Context, req request) ([]byte, error) {
	u := *c.baseURL
	u.Path = c.baseURL.Path + req.path
	u.RawPath = ""
	if len(req.query) > 0 {
		u.RawQuery = req.query.Encode()
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, u.String(), req.body)
	if err != nil {
		return nil, &RemoteError{Method: req.method, Path: req.path, Err: err}
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		observability.RecordPlatformRequest(req.method, req.route, 0, time.Since(start))
		logging.Debugf("platform.send method=%s path=%q err=%v", req.method, req.path, err)
		return nil, &RemoteError{Method: req.method, Path: req.path, Err: err}
	}
	defer resp.Body.Close()
	observability.RecordPlatformRequest(req.method, req.route, resp.StatusCode, time.Since(start))
	logging.Tracef("platform.send method=%s path=%q status=%d", req.method, req.path, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &RemoteError{Method: req.method, Path: req.path, Status: resp.StatusCode, Body: string(body)}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RemoteError{Method: req.method, Path: req.path, Status: resp.StatusCode, Err: err}
	}
	return body, nil
}

func (c *Client) call(ctx context.Context, method, route, path string, payload any, out any) error {
	req, err := c.newRequest(method, route, path, payload)
	if err != nil {
		return err
	}
	body, err := c.send(ctx, req)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("platform: decode %s %s: %w", method, route, err)
	}
	return nil
}

func list[T any](ctx context.Context, c *Client, route, path string, query url.Values) ([]T, error) {
	req, err := c.newRequest(http.MethodGet, route, path, nil)
	if err != nil {
		return nil, err
	}
	req.query = query
	body, err := c.send(ctx, req)
	if err != nil {
		return nil, err
	}
	items, err := DecodeList[T](body)
	if err != nil {
		return nil, fmt.Errorf("platform: GET %s: %w", route, err)
	}
	return items, nil
}

func seg(s string) string {
	return url.PathEscape(s)
}

// attachedPath maps a kind to the agent sub-collection path.
func attachedPath(agentID string, kind Kind) string {
	if kind == KindBlock {
		return "/v1/agents/" + seg(agentID) + "/core-memory/blocks"
	}
	return "/v1/agents/" + seg(agentID) + "/" + string(kind)
}

func attachedRoute(kind Kind) string {
	if kind == KindBlock {
		return "/v1/agents/{id}/core-memory/blocks"
	}
	return "/v1/agents/{id}/" + string(kind)
}

// agents

func (c *Client) ListAgents(ctx context.Context) ([]Agent, error) {
	return list[Agent](ctx, c, "/v1/agents/", "/v1/agents/", nil)
}

func (c *Client) GetAgent(ctx context.Context, id string) (Agent, error) {
	var out Agent
	err := c.call(ctx, http.MethodGet, "/v1/agents/{id}", "/v1/agents/"+seg(id), nil, &out)
	return out, err
}

func (c *Client) CreateAgent(ctx context.Context, spec AgentSpec) (Agent, error) {
	var out Agent
	err := c.call(ctx, http.MethodPost, "/v1/agents/", "/v1/agents/", spec, &out)
	return out, err
}

func (c *Client) UpdateAgent(ctx context.Context, id string, update AgentUpdate) (Agent, error) {
	var out Agent
	err := c.call(ctx, http.MethodPatch, "/v1/agents/{id}", "/v1/agents/"+seg(id), update, &out)
	return out, err
}

func (c *Client) DeleteAgent(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, "/v1/agents/{id}", "/v1/agents/"+seg(id), nil, nil)
}

// attachedRecord covers every attached payload shape: blocks carry label,
// everything else carries name.
type attachedRecord struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Label    string         `json:"label"`
	Metadata map[string]any `json:"metadata"`
}

func (c *Client) ListAttached(ctx context.Context, agentID string, kind Kind) ([]Resource, error) {
	records, err := list[attachedRecord](ctx, c, attachedRoute(kind), attachedPath(agentID, kind), nil)
	if err != nil {
		return nil, err
	}
	out := make([]Resource, 0, len(records))
	for _, r := range records {
		name := r.Name
		if kind == KindBlock || name == "" {
			if r.Label != "" {
				name = r.Label
			}
		}
		out = append(out, Resource{ID: r.ID, Name: name, Metadata: r.Metadata})
	}
	return out, nil
}

func (c *Client) Attach(ctx context.Context, agentID string, kind Kind, id string) error {
	return c.call(ctx, http.MethodPatch, attachedRoute(kind)+"/attach/{rid}", attachedPath(agentID, kind)+"/attach/"+seg(id), nil, nil)
}

func (c *Client) Detach(ctx context.Context, agentID string, kind Kind, id string) error {
	return c.call(ctx, http.MethodPatch, attachedRoute(kind)+"/detach/{rid}", attachedPath(agentID, kind)+"/detach/"+seg(id), nil, nil)
}

type messageCreate struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messageRequest struct {
	Messages []messageCreate `json:"messages"`
}

func (c *Client) SendMessage(ctx context.Context, agentID string, text string) error {
	payload := messageRequest{Messages: []messageCreate{{Role: "user", Content: text}}}
	return c.call(ctx, http.MethodPost, "/v1/agents/{id}/messages", "/v1/agents/"+seg(agentID)+"/messages", payload, nil)
}

// blocks

func (c *Client) ListBlocks(ctx context.Context) ([]Block, error) {
	return list[Block](ctx, c, "/v1/blocks/", "/v1/blocks/", nil)
}

func (c *Client) CreateBlock(ctx context.Context, spec BlockSpec) (Block, error) {
	var out Block
	err := c.call(ctx, http.MethodPost, "/v1/blocks/", "/v1/blocks/", spec, &out)
	return out, err
}

func (c *Client) UpdateBlock(ctx context.Context, id string, update BlockUpdate) (Block, error) {
	var out Block
	err := c.call(ctx, http.MethodPatch, "/v1/blocks/{id}", "/v1/blocks/"+seg(id), update, &out)
	return out, err
}

func (c *Client) DeleteBlock(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, "/v1/blocks/{id}", "/v1/blocks/"+seg(id), nil, nil)
}

// folders

func (c *Client) ListFolders(ctx context.Context) ([]Folder, error) {
	return list[Folder](ctx, c, "/v1/folders/", "/v1/folders/", nil)
}

func (c *Client) CreateFolder(ctx context.Context, spec FolderSpec) (Folder, error) {
	var out Folder
	err := c.call(ctx, http.MethodPost, "/v1/folders/", "/v1/folders/", spec, &out)
	return out, err
}

func (c *Client) DeleteFolder(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, "/v1/folders/{id}", "/v1/folders/"+seg(id), nil, nil)
}

func (c *Client) UploadFile(ctx context.Context, folderID string, fileName string, content []byte) (FileMetadata, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return FileMetadata{}, fmt.Errorf("platform: upload %s: %w", fileName, err)
	}
	if _, err := part.Write(content); err != nil {
		return FileMetadata{}, fmt.Errorf("platform: upload %s: %w", fileName, err)
	}
	if err := mw.Close(); err != nil {
		return FileMetadata{}, fmt.Errorf("platform: upload %s: %w", fileName, err)
	}
	req := request{
		method:      http.MethodPost,
		route:       "/v1/folders/{id}/upload",
		path:        "/v1/folders/" + seg(folderID) + "/upload",
		body:        &buf,
		contentType: mw.FormDataContentType(),
	}
	body, err := c.send(ctx, req)
	if err != nil {
		return FileMetadata{}, err
	}
	var out FileMetadata
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &out); err != nil {
			return FileMetadata{}, fmt.Errorf("platform: decode upload response: %w", err)
		}
	}
	return out, nil
}

func (c *Client) ListFiles(ctx context.Context, folderID string) ([]FileMetadata, error) {
	return list[FileMetadata](ctx, c, "/v1/folders/{id}/files", "/v1/folders/"+seg(folderID)+"/files", nil)
}

// archives

func (c *Client) ListArchives(ctx context.Context) ([]Archive, error) {
	return list[Archive](ctx, c, "/v1/archives/", "/v1/archives/", nil)
}

func (c *Client) CreateArchive(ctx context.Context, spec ArchiveSpec) (Archive, error) {
	var out Archive
	err := c.call(ctx, http.MethodPost, "/v1/archives/", "/v1/archives/", spec, &out)
	return out, err
}

func (c *Client) DeleteArchive(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, "/v1/archives/{id}", "/v1/archives/"+seg(id), nil, nil)
}

// tools

func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	return list[Tool](ctx, c, "/v1/tools/", "/v1/tools/", nil)
}

func (c *Client) CreateTool(ctx context.Context, spec ToolSpec) (Tool, error) {
	var out Tool
	err := c.call(ctx, http.MethodPost, "/v1/tools/", "/v1/tools/", spec, &out)
	return out, err
}

func (c *Client) DeleteTool(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, "/v1/tools/{id}", "/v1/tools/"+seg(id), nil, nil)
}

// mcp

func (c *Client) ListMCPServers(ctx context.Context) ([]MCPServer, error) {
	return list[MCPServer](ctx, c, "/v1/tools/mcp/servers", "/v1/tools/mcp/servers", nil)
}

func (c *Client) CreateMCPServer(ctx context.Context, server MCPServer) (MCPServer, error) {
	var out MCPServer
	err := c.call(ctx, http.MethodPut, "/v1/tools/mcp/servers", "/v1/tools/mcp/servers", server, &out)
	return out, err
}

func (c *Client) ListMCPTools(ctx context.Context, serverName string) ([]Tool, error) {
	return list[Tool](ctx, c, "/v1/tools/mcp/servers/{name}/tools", "/v1/tools/mcp/servers/"+seg(serverName)+"/tools", nil)
}

func (c *Client) AddMCPTool(ctx context.Context, serverName string, toolName string) (Tool, error) {
	var out Tool
	err := c.call(ctx, http.MethodPost, "/v1/tools/mcp/servers/{name}/{tool}",
		"/v1/tools/mcp/servers/"+seg(serverName)+"/"+seg(toolName), nil, &out)
	return out, err
}

// conversations

func (c *Client) ListConversations(ctx context.Context, agentID string) ([]Conversation, error) {
	return list[Conversation](ctx, c, "/v1/conversations/", "/v1/conversations/", url.Values{"agent_id": {agentID}})
}

func (c *Client) CreateConversation(ctx context.Context, spec ConversationSpec) (Conversation, error) {
	var out Conversation
	err := c.call(ctx, http.MethodPost, "/v1/conversations/", "/v1/conversations/", spec, &out)
	return out, err
}

func (c *Client) Health(ctx context.Context) (Health, error) {
	var out Health
	err := c.call(ctx, http.MethodGet, "/v1/health/", "/v1/health/", nil, &out)
	return out, err
}
