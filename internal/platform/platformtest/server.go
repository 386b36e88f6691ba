package platformtest

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/danmuck/agentctl/internal/auth"
	"github.com/danmuck/agentctl/internal/observability"
	"github.com/danmuck/agentctl/internal/platform"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// ServerConfig controls the HTTP double.
type ServerConfig struct {
	// Token is the accepted API key. Empty accepts any request.
	Token string
	// WrapLists returns list responses as {"items": [...]}.
	WrapLists bool
}

// NewServer starts an httptest server exposing fake. Callers Close it.
func NewServer(fake *Fake, cfg ServerConfig) *httptest.Server {
	return httptest.NewServer(Handler(fake, cfg))
}

// Handler builds the gin router for fake.
func Handler(fake *Fake, cfg ServerConfig) http.Handler {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.ServedRequests("platformtest", log.Logger))
	var validator auth.Validator = auth.AllowAll{}
	if cfg.Token != "" {
		validator = auth.StaticToken{Token: cfg.Token}
	}
	r.Use(auth.Middleware(validator))

	s := &server{fake: fake, wrap: cfg.WrapLists}
	s.routes(r)
	return r
}

type server struct {
	fake *Fake
	wrap bool
}

func (s *server) routes(r *gin.Engine) {
	v1 := r.Group("/v1")

	v1.GET("/health/", func(c *gin.Context) {
		h, err := s.fake.Health(c.Request.Context())
		s.respond(c, h, err)
	})

	agents := v1.Group("/agents")
	agents.GET("/", func(c *gin.Context) {
		out, err := s.fake.ListAgents(c.Request.Context())
		s.list(c, out, err)
	})
	agents.POST("/", func(c *gin.Context) {
		var spec platform.AgentSpec
		if !bind(c, &spec) {
			return
		}
		out, err := s.fake.CreateAgent(c.Request.Context(), spec)
		s.respond(c, out, err)
	})
	agents.GET("/:id", func(c *gin.Context) {
		out, err := s.fake.GetAgent(c.Request.Context(), c.Param("id"))
		s.respond(c, out, err)
	})
	agents.PATCH("/:id", func(c *gin.Context) {
		var update platform.AgentUpdate
		if !bind(c, &update) {
			return
		}
		out, err := s.fake.UpdateAgent(c.Request.Context(), c.Param("id"), update)
		s.respond(c, out, err)
	})
	agents.DELETE("/:id", func(c *gin.Context) {
		s.respond(c, nil, s.fake.DeleteAgent(c.Request.Context(), c.Param("id")))
	})
	agents.POST("/:id/messages", func(c *gin.Context) {
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if !bind(c, &req) {
			return
		}
		for _, m := range req.Messages {
			if err := s.fake.SendMessage(c.Request.Context(), c.Param("id"), m.Content); err != nil {
				s.respond(c, nil, err)
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"messages": []any{}})
	})

	s.attachRoutes(agents, "/:id/core-memory/blocks", platform.KindBlock)
	s.attachRoutes(agents, "/:id/tools", platform.KindTool)
	s.attachRoutes(agents, "/:id/folders", platform.KindFolder)
	s.attachRoutes(agents, "/:id/archives", platform.KindArchive)

	blocks := v1.Group("/blocks")
	blocks.GET("/", func(c *gin.Context) {
		out, err := s.fake.ListBlocks(c.Request.Context())
		s.list(c, out, err)
	})
	blocks.POST("/", func(c *gin.Context) {
		var spec platform.BlockSpec
		if !bind(c, &spec) {
			return
		}
		out, err := s.fake.CreateBlock(c.Request.Context(), spec)
		s.respond(c, out, err)
	})
	blocks.PATCH("/:id", func(c *gin.Context) {
		var update platform.BlockUpdate
		if !bind(c, &update) {
			return
		}
		out, err := s.fake.UpdateBlock(c.Request.Context(), c.Param("id"), update)
		s.respond(c, out, err)
	})
	blocks.DELETE("/:id", func(c *gin.Context) {
		s.respond(c, nil, s.fake.DeleteBlock(c.Request.Context(), c.Param("id")))
	})

	folders := v1.Group("/folders")
	folders.GET("/", func(c *gin.Context) {
		out, err := s.fake.ListFolders(c.Request.Context())
		s.list(c, out, err)
	})
	folders.POST("/", func(c *gin.Context) {
		var spec platform.FolderSpec
		if !bind(c, &spec) {
			return
		}
		out, err := s.fake.CreateFolder(c.Request.Context(), spec)
		s.respond(c, out, err)
	})
	folders.DELETE("/:id", func(c *gin.Context) {
		s.respond(c, nil, s.fake.DeleteFolder(c.Request.Context(), c.Param("id")))
	})
	folders.GET("/:id/files", func(c *gin.Context) {
		out, err := s.fake.ListFiles(c.Request.Context(), c.Param("id"))
		s.list(c, out, err)
	})
	folders.POST("/:id/upload", func(c *gin.Context) {
		header, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
			return
		}
		fh, err := header.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
			return
		}
		defer fh.Close()
		content, err := io.ReadAll(fh)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
			return
		}
		out, err := s.fake.UploadFile(c.Request.Context(), c.Param("id"), header.Filename, content)
		s.respond(c, out, err)
	})

	archives := v1.Group("/archives")
	archives.GET("/", func(c *gin.Context) {
		out, err := s.fake.ListArchives(c.Request.Context())
		s.list(c, out, err)
	})
	archives.POST("/", func(c *gin.Context) {
		var spec platform.ArchiveSpec
		if !bind(c, &spec) {
			return
		}
		out, err := s.fake.CreateArchive(c.Request.Context(), spec)
		s.respond(c, out, err)
	})
	archives.DELETE("/:id", func(c *gin.Context) {
		s.respond(c, nil, s.fake.DeleteArchive(c.Request.Context(), c.Param("id")))
	})

	tools := v1.Group("/tools")
	tools.GET("/", func(c *gin.Context) {
		out, err := s.fake.ListTools(c.Request.Context())
		s.list(c, out, err)
	})
	tools.POST("/", func(c *gin.Context) {
		var spec platform.ToolSpec
		if !bind(c, &spec) {
			return
		}
		out, err := s.fake.CreateTool(c.Request.Context(), spec)
		s.respond(c, out, err)
	})
	tools.DELETE("/:id", func(c *gin.Context) {
		s.respond(c, nil, s.fake.DeleteTool(c.Request.Context(), c.Param("id")))
	})
	tools.GET("/mcp/servers", func(c *gin.Context) {
		out, err := s.fake.ListMCPServers(c.Request.Context())
		s.list(c, out, err)
	})
	tools.PUT("/mcp/servers", func(c *gin.Context) {
		var server platform.MCPServer
		if !bind(c, &server) {
			return
		}
		out, err := s.fake.CreateMCPServer(c.Request.Context(), server)
		s.respond(c, out, err)
	})
	tools.GET("/mcp/servers/:name/tools", func(c *gin.Context) {
		out, err := s.fake.ListMCPTools(c.Request.Context(), c.Param("name"))
		s.list(c, out, err)
	})
	tools.POST("/mcp/servers/:name/:tool", func(c *gin.Context) {
		out, err := s.fake.AddMCPTool(c.Request.Context(), c.Param("name"), c.Param("tool"))
		s.respond(c, out, err)
	})

	conversations := v1.Group("/conversations")
	conversations.GET("/", func(c *gin.Context) {
		out, err := s.fake.ListConversations(c.Request.Context(), c.Query("agent_id"))
		s.list(c, out, err)
	})
	conversations.POST("/", func(c *gin.Context) {
		var spec platform.ConversationSpec
		if !bind(c, &spec) {
			return
		}
		out, err := s.fake.CreateConversation(c.Request.Context(), spec)
		s.respond(c, out, err)
	})
}

type attachedJSON struct {
	ID       string         `json:"id"`
	Name     string         `json:"name,omitempty"`
	Label    string         `json:"label,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (s *server) attachRoutes(g *gin.RouterGroup, base string, kind platform.Kind) {
	g.GET(base, func(c *gin.Context) {
		res, err := s.fake.ListAttached(c.Request.Context(), c.Param("id"), kind)
		if err != nil {
			s.respond(c, nil, err)
			return
		}
		out := make([]attachedJSON, 0, len(res))
		for _, r := range res {
			rec := attachedJSON{ID: r.ID, Metadata: r.Metadata}
			if kind == platform.KindBlock {
				rec.Label = r.Name
			} else {
				rec.Name = r.Name
			}
			out = append(out, rec)
		}
		s.list(c, out, nil)
	})
	g.PATCH(base+"/attach/:rid", func(c *gin.Context) {
		err := s.fake.Attach(c.Request.Context(), c.Param("id"), kind, c.Param("rid"))
		s.respond(c, gin.H{"id": c.Param("id")}, err)
	})
	g.PATCH(base+"/detach/:rid", func(c *gin.Context) {
		err := s.fake.Detach(c.Request.Context(), c.Param("id"), kind, c.Param("rid"))
		s.respond(c, gin.H{"id": c.Param("id")}, err)
	})
}

func bind(c *gin.Context, out any) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return false
	}
	return true
}

func (s *server) list(c *gin.Context, items any, err error) {
	if err != nil {
		s.respond(c, nil, err)
		return
	}
	if s.wrap {
		c.JSON(http.StatusOK, gin.H{"items": items})
		return
	}
	c.JSON(http.StatusOK, items)
}

func (s *server) respond(c *gin.Context, body any, err error) {
	if err != nil {
		c.JSON(statusFor(err), gin.H{"detail": err.Error()})
		return
	}
	if body == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, body)
}

func statusFor(err error) int {
	var remote *platform.RemoteError
	if errors.As(err, &remote) && remote.Status != 0 {
		return remote.Status
	}
	if platform.IsNotFound(err) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
