package httpapi

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kdlbs/sessiond/internal/subscribers"
)

// handleEvents is the SSE subscription endpoint. It registers both with
// the coordinator (subscriber-count bookkeeping, session lifecycle) and
// the subscribers hub (actual frame delivery), and tears both down on
// disconnect.
func (s *Server) handleEvents(c *gin.Context) {
	sessionID := c.Param("id")
	projectPath := c.Query("projectPath")

	s.coord.Subscribe(sessionID, projectPath)
	client := s.hub.Subscribe(uuid.NewString(), sessionID)
	defer func() {
		s.hub.Unsubscribe(client)
		s.coord.Unsubscribe(sessionID)
	}()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.Stream(func(w gin.ResponseWriter) bool {
		select {
		case frame, ok := <-client.Send():
			if !ok {
				return false
			}
			writeFrame(c, frame)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func writeFrame(c *gin.Context, frame subscribers.Frame) {
	switch frame.Type {
	case subscribers.FrameConnected:
		c.SSEvent("connected", gin.H{})
	case subscribers.FrameHeartbeat:
		c.SSEvent("heartbeat", gin.H{})
	case subscribers.FrameEvent:
		c.SSEvent(string(frame.Event.Type), frame.Event)
	}
}
