package coordinator

import (
	"github.com/google/uuid"

	"github.com/kdlbs/sessiond/internal/prompts"
)

// HookPayload is the body of POST /api/claude-hook: the agent is
// configured (outside this daemon) to call back whenever it reaches a
// notable point in a terminal session it is running independently.
type HookPayload struct {
	SessionID        string `json:"session_id"`
	NotificationType string `json:"notification_type"`
	Message          string `json:"message"`
	Cwd              string `json:"cwd"`
}

const notificationPermissionPrompt = "permission_prompt"

// HandleHook processes an out-of-band hook callback. A permission_prompt
// notification registers a hook-sourced prompt; any other notification is
// simply evidence the session is alive, which is enough to move it out of
// Idle. The hook payload has no separate tool-name field, so Message is
// treated as the tool name for permission_prompt notifications — it is
// the only candidate the payload offers, and the retry-via-resume flow
// only needs a tool name to reissue and match the re-raised prompt.
func (c *Coordinator) HandleHook(payload HookPayload) {
	s := c.getOrCreate(payload.SessionID, payload.Cwd, OriginTerminal)

	if payload.NotificationType != notificationPermissionPrompt {
		s.post(func(s *Session) {
			s.touch()
			if s.state == StateIdle {
				s.transition(StateWorking)
			}
		})
		return
	}

	requestID := uuid.NewString()
	p := prompts.Prompt{
		SessionID: payload.SessionID,
		ToolName:  payload.Message,
		ToolUseID: requestID,
		RequestID: requestID,
		Source:    prompts.SourceHook,
	}
	c.prompts.Observe(p)
}
