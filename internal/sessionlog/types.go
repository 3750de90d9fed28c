// Package sessionlog reads the agent's append-only per-project,
// per-session JSONL logs into normalized messages and pending tool calls.
// The log is an external, read-only contract: another process owns and
// appends to it, and this package never writes to it.
package sessionlog

import "time"

// NormalizedMessage is the UI event contract's message shape: an agent
// transcript entry reduced to ordered text/image content plus any tool
// calls it carries, with results merged in where known.
type NormalizedMessage struct {
	ID        string         `json:"id"`
	Role      string         `json:"role"` // "user" or "assistant"
	Content   []ContentPart  `json:"content"`
	ToolCalls []ToolCall     `json:"toolCalls,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// ContentPart is one ordered segment of a normalized message's content.
type ContentPart struct {
	Type string `json:"type"` // "text" or "image"
	Text string `json:"text,omitempty"`

	ImageMediaType string `json:"imageMediaType,omitempty"`
	ImageData      string `json:"imageData,omitempty"`
	ImageURL       string `json:"imageUrl,omitempty"`
}

// ToolCall is a tool_use entry enriched with its result, if the matching
// tool_result has appeared elsewhere in the log.
type ToolCall struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Input   map[string]any `json:"input,omitempty"`
	Result  string         `json:"result,omitempty"`
	IsError bool           `json:"isError,omitempty"`
	HasResult bool         `json:"hasResult"`
}

// PendingToolCall is a tool_use with no matching tool_result anywhere in
// the session log yet.
type PendingToolCall struct {
	ToolUseID string         `json:"toolUseId"`
	Name      string         `json:"name"`
	Input     map[string]any `json:"input,omitempty"`
}

// SessionInfo is one entry in a project's session listing.
type SessionInfo struct {
	ID         string    `json:"id"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// SessionMetadata is the slim per-session summary surfaced by the
// metadata endpoint: whatever the log itself records about the run,
// without needing a full Read.
type SessionMetadata struct {
	Model   string `json:"model,omitempty"`
	Summary string `json:"summary,omitempty"`
	Slug    string `json:"slug,omitempty"`
}
