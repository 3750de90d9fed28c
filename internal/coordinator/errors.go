package coordinator

import "errors"

// Typed errors surfaced to internal/httpapi and mapped to HTTP status
// there. ParseSkip and TransportDrop never reach this layer: they are
// recovered locally in internal/sessionlog and internal/subscribers
// respectively.
var (
	ErrSessionNotFound = errors.New("coordinator: session not found")
	ErrSpawnFailed     = errors.New("coordinator: agent failed to start")
	ErrConcurrentSend  = errors.New("coordinator: a send is already in flight for this session")
	ErrPromptNotFound  = errors.New("coordinator: prompt not found or already resolved")
	errTimedOut        = errors.New("coordinator: timed out")
)
