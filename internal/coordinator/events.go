package coordinator

import (
	"time"

	"github.com/kdlbs/sessiond/internal/prompts"
	"github.com/kdlbs/sessiond/internal/sessionlog"
)

// EventType is one of the six kinds in the uniform event stream fed to
// every subscriber, regardless of whether the underlying session is
// spawned or merely observed from a terminal.
type EventType string

const (
	EventMessage            EventType = "message"
	EventPermissionRequest  EventType = "permission_request"
	EventPermissionResolved EventType = "permission_resolved"
	EventPermissionTimeout  EventType = "permission_timeout"
	EventSessionAborted     EventType = "session_aborted"
	EventProcessingComplete EventType = "processing_complete"
)

// Event is one frame of the uniform event stream.
type Event struct {
	Type      EventType                     `json:"type"`
	SessionID string                        `json:"sessionId"`
	Message   *sessionlog.NormalizedMessage `json:"message,omitempty"`
	Prompt    *PromptView                   `json:"prompt,omitempty"`
	Behavior  string                        `json:"behavior,omitempty"`
	Timestamp time.Time                     `json:"timestamp"`
}

// PromptView is the externally-visible projection of a prompts.Prompt.
type PromptView struct {
	RequestID string         `json:"requestId"`
	ToolUseID string         `json:"toolUseId"`
	ToolName  string         `json:"toolName"`
	ToolInput map[string]any `json:"toolInput,omitempty"`
	Source    string         `json:"source"`
}

func newPromptView(p prompts.Prompt) *PromptView {
	return &PromptView{
		RequestID: p.RequestID,
		ToolUseID: p.ToolUseID,
		ToolName:  p.ToolName,
		ToolInput: p.ToolInput,
		Source:    string(p.Source),
	}
}

// EventSink receives events published for a session. internal/subscribers
// implements this to fan events out over SSE; keeping it as an interface
// here means internal/coordinator never imports internal/subscribers.
type EventSink interface {
	Publish(sessionID string, ev Event)
}

type nopSink struct{}

func (nopSink) Publish(string, Event) {}
