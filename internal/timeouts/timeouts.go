// Package timeouts centralizes the daemon's fixed time budgets.
//
// These mirror the per-instance Config fields in internal/config as named
// constants. No other package of the daemon imports them; the running
// code reads its time budgets from *config.Config.
package timeouts

import "time"

const (
	// HandshakeTimeout bounds how long a freshly spawned child has to emit
	// its first system/init message before the spawn is considered failed.
	HandshakeTimeout = 10 * time.Second

	// SendCeiling bounds how long a single user-turn send may run before
	// the coordinator treats the session as stuck.
	SendCeiling = 5 * time.Minute

	// PermissionPromptTTL bounds how long an unanswered permission prompt
	// is held before it times out (permission_timeout is emitted; it is
	// not answered with a denial).
	PermissionPromptTTL = 60 * time.Second

	// RetryCompanionBudget bounds the lifetime of a --resume companion
	// process spawned to re-raise a hook-sourced permission prompt.
	RetryCompanionBudget = 30 * time.Second

	// AbortGrace bounds how long a child is given to exit after stdin is
	// closed before it is force-killed.
	AbortGrace = 2 * time.Second

	// InactivityWindow is the quiet period after which a session with no
	// new log lines is considered idle rather than still working.
	InactivityWindow = 10 * time.Second

	// PendingApprovalHintTTL bounds how long the one-shot approval hint set
	// after a direct allow of a spawned prompt stays usable.
	PendingApprovalHintTTL = 30 * time.Second

	// PollInterval is the cadence of the session-log filesystem poll.
	PollInterval = time.Second

	// HeartbeatInterval is the cadence of SSE heartbeat events.
	HeartbeatInterval = 15 * time.Second
)
