package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kdlbs/sessiond/internal/coordinator"
	"github.com/kdlbs/sessiond/pkg/claudecode"
)

func (s *Server) handleListProjects(c *gin.Context) {
	projects, err := s.reader.Projects()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

func (s *Server) handleListSessions(c *gin.Context) {
	sessions, err := s.reader.Sessions(c.Param("path"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

type newSessionRequest struct {
	Text           string            `json:"text"`
	Images         []claudecode.Image `json:"images,omitempty"`
	PermissionMode string            `json:"permissionMode,omitempty"`
	Model          string            `json:"model,omitempty"`
}

func (s *Server) handleNewSession(c *gin.Context) {
	var req newSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	sessionID, err := s.coord.StartNew(c.Request.Context(), c.Param("path"))
	if err != nil {
		writeError(c, err)
		return
	}

	if req.Text != "" {
		if err := s.coord.Send(c.Request.Context(), sessionID, c.Param("path"), req.Text, req.Images); err != nil {
			writeError(c, err)
			return
		}
	}

	c.JSON(http.StatusCreated, gin.H{"sessionId": sessionID})
}

// handleGetSession returns a page of a session's normalized messages,
// paginated from the tail: offset=0 is the most recent message.
func (s *Server) handleGetSession(c *gin.Context) {
	sessionID := c.Param("id")
	messages, _, err := s.reader.Read(sessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "SESSION_NOT_FOUND", "message": err.Error()}})
		return
	}

	limit := queryInt(c, "limit", 50)
	offset := queryInt(c, "offset", 0)

	total := len(messages)
	end := total - offset
	if end < 0 {
		end = 0
	}
	start := end - limit
	if start < 0 {
		start = 0
	}
	page := messages[start:end]

	c.JSON(http.StatusOK, gin.H{
		"messages": page,
		"total":    total,
	})
}

func (s *Server) handleSessionMetadata(c *gin.Context) {
	meta, err := s.reader.Metadata(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "SESSION_NOT_FOUND", "message": err.Error()}})
		return
	}
	c.JSON(http.StatusOK, meta)
}

type sendRequest struct {
	ProjectPath string             `json:"projectPath"`
	Text        string             `json:"text"`
	Images      []claudecode.Image `json:"images,omitempty"`
}

func (s *Server) handleSend(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.ProjectPath == "" {
		if p, err := s.reader.ProjectOfSession(c.Param("id")); err == nil {
			req.ProjectPath = p
		}
	}

	if err := s.coord.Send(c.Request.Context(), c.Param("id"), req.ProjectPath, req.Text, req.Images); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "sent"})
}

type permissionRequest struct {
	RequestID    string         `json:"requestId" binding:"required"`
	Allow        bool           `json:"allow"`
	AllowAll     bool           `json:"allowAll,omitempty"`
	ToolName     string         `json:"toolName,omitempty"`
	UpdatedInput map[string]any `json:"updatedInput,omitempty"`
}

func (s *Server) handlePermission(c *gin.Context) {
	var req permissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	if err := s.coord.Permission(c.Param("id"), req.RequestID, req.Allow, req.AllowAll, req.ToolName, req.UpdatedInput); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "resolved"})
}

func (s *Server) handleAbort(c *gin.Context) {
	if err := s.coord.Abort(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "aborted"})
}

func (s *Server) handleHook(c *gin.Context) {
	var payload coordinator.HookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		badRequest(c, err.Error())
		return
	}
	s.coord.HandleHook(payload)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func queryInt(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}
