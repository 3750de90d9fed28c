// Package httpapi is the external-facing adapter layer (C6): it
// translates the HTTP surface in SPEC_FULL.md's route table into
// internal/coordinator calls and internal/subscribers event frames, and
// holds no business state of its own. Grounded on the teacher's
// internal/orchestrator/handlers gin-router-group wiring style.
package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/kdlbs/sessiond/internal/coordinator"
	"github.com/kdlbs/sessiond/internal/httpmw"
	"github.com/kdlbs/sessiond/internal/logger"
	"github.com/kdlbs/sessiond/internal/pushsvc"
	"github.com/kdlbs/sessiond/internal/sessionlog"
	"github.com/kdlbs/sessiond/internal/subscribers"
)

// Server bundles the adapters behind the daemon's HTTP surface.
type Server struct {
	coord  *coordinator.Coordinator
	reader *sessionlog.Reader
	hub    *subscribers.Hub
	push   *pushsvc.Service
	logger *logger.Logger
	token  string
}

// NewServer builds the adapter layer. token is the bearer token every
// mutating (and the SSE) route requires.
func NewServer(coord *coordinator.Coordinator, reader *sessionlog.Reader, hub *subscribers.Hub, push *pushsvc.Service, log *logger.Logger, token string) *Server {
	return &Server{
		coord:  coord,
		reader: reader,
		hub:    hub,
		push:   push,
		logger: log.WithFields(),
		token:  token,
	}
}

// NewRouter builds the gin engine with every route in SPEC_FULL.md §6
// wired to s's handlers.
func (s *Server) NewRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmw.RequestLogger(s.logger, "sessiond"))
	r.Use(httpmw.OtelTracing("sessiond"))

	r.GET("/health", s.handleHealth)

	authed := r.Group("/")
	authed.Use(RequireBearerToken(s.token))

	authed.GET("/api/claude/projects", s.handleListProjects)
	authed.GET("/api/claude/projects/:path/sessions", s.handleListSessions)
	authed.POST("/api/claude/projects/:path/new", s.handleNewSession)
	authed.GET("/api/claude/sessions/:id", s.handleGetSession)
	authed.GET("/api/claude/sessions/:id/metadata", s.handleSessionMetadata)
	authed.POST("/api/claude/sessions/:id/send", s.handleSend)
	authed.POST("/api/claude/sessions/:id/permission", s.handlePermission)
	authed.POST("/api/sessions/:id/abort", s.handleAbort)
	authed.POST("/api/claude-hook", s.handleHook)

	// The SSE route alone accepts a ?token= fallback (EventSource cannot
	// set headers); it gets its own middleware rather than joining authed,
	// so no other route's query string is ever treated as a credential.
	r.GET("/api/events/:id", RequireBearerTokenOrQuery(s.token), s.handleEvents)

	authed.GET("/api/push/vapid-public-key", s.handlePushPublicKey)
	authed.POST("/api/push/subscribe", s.handlePushSubscribe)
	authed.DELETE("/api/push/subscribe", s.handlePushUnsubscribe)

	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}
