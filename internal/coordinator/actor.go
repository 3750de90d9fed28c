package coordinator

import (
	"go.uber.org/zap"

	"github.com/kdlbs/sessiond/internal/prompts"
	"github.com/kdlbs/sessiond/internal/sessionlog"
	"github.com/kdlbs/sessiond/pkg/claudecode"
)

// handleChildMessage is wired as a spawned child's OnMessage callback. It
// always posts onto the owning session's mailbox: nothing here touches
// Session fields directly.
func (c *Coordinator) handleChildMessage(sessionID string, msg *claudecode.CLIMessage) {
	s, ok := c.get(sessionID)
	if !ok {
		return
	}

	switch msg.Type {
	case claudecode.MessageTypeAssistant:
		normalized := normalizeLiveMessage(msg)
		if normalized == nil {
			return
		}
		s.post(func(s *Session) {
			s.touch()
			s.completionEmitted = false
			s.publish(Event{Type: EventMessage, Message: normalized})
		})

	case claudecode.MessageTypeResult:
		s.post(func(s *Session) {
			if s.completionEmitted {
				return
			}
			s.completionEmitted = true
			if s.state == StateWorking {
				s.transition(StateIdle)
			}
			s.publish(Event{Type: EventProcessingComplete})
		})

	default:
		// system/control messages carry handshake and slash-command data
		// already consumed by the spawner; nothing to forward.
	}
}

// handleChildPermissionRequest is wired as a spawned child's
// OnPermissionRequest callback.
func (c *Coordinator) handleChildPermissionRequest(sessionID, requestID string, req *claudecode.ControlRequest) {
	s, ok := c.get(sessionID)
	if !ok {
		return
	}

	p := prompts.Prompt{
		SessionID: sessionID,
		ToolName:  req.ToolName,
		ToolInput: req.Input,
		ToolUseID: req.ToolUseID,
		RequestID: requestID,
		Source:    prompts.SourceSpawned,
	}

	decision := c.prompts.Observe(p)
	if decision != prompts.DecisionAutoApproved {
		return
	}

	s.post(func(s *Session) {
		if s.activeChild == nil {
			return
		}
		if err := s.activeChild.SendPermissionResponse(requestID, true, nil); err != nil {
			s.logger.Warn("failed to auto-approve permission request", zap.Error(err), zap.String("tool_name", req.ToolName))
		}
	})
}

// normalizeLiveMessage converts a live stdout assistant message into the
// same NormalizedMessage shape internal/sessionlog produces for an
// on-disk log entry, so C5 subscribers see one consistent message shape
// regardless of whether the session is spawned or merely observed.
func normalizeLiveMessage(msg *claudecode.CLIMessage) *sessionlog.NormalizedMessage {
	if msg.Message == nil {
		return nil
	}
	blocks := msg.Message.GetContentBlocks()

	var content []sessionlog.ContentPart
	var toolCalls []sessionlog.ToolCall
	for _, b := range blocks {
		switch b.Type {
		case "text":
			if b.Text != "" {
				content = append(content, sessionlog.ContentPart{Type: "text", Text: b.Text})
			}
		case "image":
			part := sessionlog.ContentPart{Type: "image"}
			if b.Source != nil {
				part.ImageMediaType = b.Source.MediaType
				part.ImageData = b.Source.Data
				part.ImageURL = b.Source.URL
			}
			content = append(content, part)
		case "tool_use":
			toolCalls = append(toolCalls, sessionlog.ToolCall{ID: b.ID, Name: b.Name, Input: b.Input})
		}
	}
	if len(content) == 0 && len(toolCalls) == 0 {
		return nil
	}

	return &sessionlog.NormalizedMessage{
		Role:      msg.Message.Role,
		Content:   content,
		ToolCalls: toolCalls,
	}
}
