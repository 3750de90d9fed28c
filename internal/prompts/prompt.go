// Package prompts is the single logical view of outstanding permission
// prompts across the daemon's three observation sources: a spawned child's
// own control requests, out-of-band hook callbacks from a terminal agent,
// and tool_use/tool_result gaps inferred from polling a terminal session's
// log. It encodes the policy deciding whether a newly observed prompt is
// surfaced, auto-approved, or suppressed, but never answers a prompt itself
// — that is internal/coordinator's job.
package prompts

import "time"

// Source identifies where a Prompt was observed.
type Source string

const (
	SourceSpawned Source = "spawned"
	SourceHook    Source = "hook"
	SourceFile    Source = "file"
)

// Prompt is one open permission request.
type Prompt struct {
	SessionID string
	ToolName  string
	ToolInput map[string]any
	ToolUseID string
	// RequestID may equal ToolUseID for file-derived prompts; hook prompts
	// use one generated id for both; spawned prompts carry a distinct
	// control-protocol request id.
	RequestID string
	Source    Source
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (p Prompt) key() promptKey {
	return promptKey{sessionID: p.SessionID, requestID: p.RequestID}
}

func (p Prompt) expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

type promptKey struct {
	sessionID string
	requestID string
}

// ApprovalHint is a short-lived, one-shot approval for one tool name within
// a session, set after a direct allow: the next prompt for that tool name
// is auto-approved and consumes the hint.
type ApprovalHint struct {
	ToolName  string
	ToolInput map[string]any
	ExpiresAt time.Time
}

func (h ApprovalHint) expired(now time.Time) bool {
	return now.After(h.ExpiresAt)
}
