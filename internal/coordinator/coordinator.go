// Package coordinator is the per-session owner and state authority (C4):
// it consumes child stdout, filesystem polling, and hook callbacks, and
// emits the uniform event stream described in SPEC_FULL.md to whatever
// EventSink internal/subscribers wires in. It owns every policy decision
// about a session's lifecycle; internal/httpapi only translates requests
// into calls here.
package coordinator

import (
	"context"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kdlbs/sessiond/internal/config"
	"github.com/kdlbs/sessiond/internal/logger"
	"github.com/kdlbs/sessiond/internal/prompts"
	"github.com/kdlbs/sessiond/internal/sessionlog"
	"github.com/kdlbs/sessiond/internal/spawner"
)

// Coordinator is the top-level registry of live sessions. Per-entry state
// is owned by each Session's actor goroutine; the registry map itself is
// guarded by one coarse mutex, per the concurrency model's "global sets
// mutated under one coarse sync.RWMutex, per-entry payloads actor-owned"
// split.
type Coordinator struct {
	cfg     *config.Config
	logger  *logger.Logger
	spawner *spawner.Spawner
	reader  *sessionlog.Reader
	prompts *prompts.Registry
	sink    EventSink

	mu       sync.RWMutex
	sessions map[string]*Session

	pollCancel context.CancelFunc
}

// New builds a Coordinator. Call SetSink before any session activity if
// the caller wants events delivered anywhere but nowhere (the default
// nopSink silently drops them, which is fine for tests).
func New(cfg *config.Config, log *logger.Logger, sp *spawner.Spawner, reader *sessionlog.Reader) *Coordinator {
	promptRegistry := prompts.NewRegistry(cfg.PermissionPromptTTL)
	c := &Coordinator{
		cfg:      cfg,
		logger:   log,
		spawner:  sp,
		reader:   reader,
		prompts:  promptRegistry,
		sink:     nopSink{},
		sessions: make(map[string]*Session),
	}
	promptRegistry.SetCallbacks(c.onPromptFanout, c.onPromptTimeout)
	return c
}

// SetSink wires the event sink (internal/subscribers.Hub in production).
func (c *Coordinator) SetSink(sink EventSink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sink = sink
}

// Start launches the shared 1Hz poller. Call once at daemon startup.
func (c *Coordinator) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.pollCancel = cancel
	go c.pollLoop(ctx)
}

// Shutdown stops the poller and every session actor, but does not kill
// active children — callers that want a clean exit should Abort sessions
// first.
func (c *Coordinator) Shutdown() {
	if c.pollCancel != nil {
		c.pollCancel()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.sessions {
		s.closeMailbox()
	}
}

func (c *Coordinator) get(sessionID string) (*Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.sessions[sessionID]
	return s, ok
}

// getOrCreate returns the existing session record or creates one bound to
// projectPath with the given origin. A session created as terminal never
// has its Origin flipped to spawned even once the daemon resumes it.
func (c *Coordinator) getOrCreate(sessionID, projectPath string, origin Origin) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.sessions[sessionID]; ok {
		return s
	}
	s := newSession(c, sessionID, projectPath, origin)
	c.sessions[sessionID] = s
	c.logger.Info("session registered", zap.String("session_id", sessionID), zap.String("origin", string(origin)))
	return s
}

// maybeDrop removes a session record once it has zero subscribers, no
// activeChild, and no open prompts, per the data model's lifecycle rule.
func (c *Coordinator) maybeDrop(sessionID string) {
	c.mu.Lock()
	s, ok := c.sessions[sessionID]
	if !ok {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	done := make(chan bool, 1)
	s.post(func(s *Session) {
		eligible := s.subscriberCount <= 0 && s.activeChild == nil && len(c.prompts.Open(s.ID)) == 0
		done <- eligible
	})

	if !<-done {
		return
	}

	// Re-check-and-delete atomically: only the caller that actually
	// removes the map entry may close the mailbox, so two concurrent
	// maybeDrop calls (e.g. a child exit racing a client disconnect)
	// never double-close it.
	c.mu.Lock()
	_, stillPresent := c.sessions[sessionID]
	if stillPresent {
		delete(c.sessions, sessionID)
	}
	c.mu.Unlock()

	if !stillPresent {
		return
	}
	c.prompts.ClearSession(sessionID)
	s.closeMailbox()
	c.logger.Debug("session record dropped", zap.String("session_id", sessionID))
}

// Subscribe registers a client against a session for event delivery
// bookkeeping (internal/subscribers calls this on connect); the session
// record is created here for terminal sessions first observed via a
// client subscription rather than a spawn.
func (c *Coordinator) Subscribe(sessionID, projectPath string) {
	var s *Session
	if existing, ok := c.get(sessionID); ok {
		s = existing
	} else {
		s = c.getOrCreate(sessionID, projectPath, OriginTerminal)
	}
	s.post(func(s *Session) { s.subscriberCount++ })
}

// Unsubscribe drops a client's interest in a session; the session record
// itself is dropped only once every condition in maybeDrop is satisfied.
func (c *Coordinator) Unsubscribe(sessionID string) {
	s, ok := c.get(sessionID)
	if !ok {
		return
	}
	s.post(func(s *Session) {
		if s.subscriberCount > 0 {
			s.subscriberCount--
		}
	})
	c.maybeDrop(sessionID)
}

// OpenPrompts returns a session's currently open prompts, for replay to a
// freshly-subscribed client.
func (c *Coordinator) OpenPrompts(sessionID string) []PromptView {
	open := c.prompts.Open(sessionID)
	out := make([]PromptView, 0, len(open))
	for _, p := range open {
		out = append(out, *newPromptView(p))
	}
	return out
}

func (c *Coordinator) onPromptFanout(p prompts.Prompt) {
	s, ok := c.get(p.SessionID)
	if !ok {
		return
	}
	s.post(func(s *Session) {
		s.pendingPromptIDs[p.ToolUseID] = true
		if s.state == StateWorking {
			s.transition(StateAwaitingUser)
		}
		s.publish(Event{Type: EventPermissionRequest, Prompt: newPromptView(p)})
	})
}

// onPromptTimeout fires when a prompt's TTL elapses unanswered. A
// spawned-source prompt means the child itself is stuck waiting on a
// control-protocol response nobody will ever send, so it is killed; the
// session then falls back to Idle rather than AwaitingUser/Working. A
// hook- or file-sourced prompt has no child for this coordinator to own,
// so only the bookkeeping transition runs.
func (c *Coordinator) onPromptTimeout(p prompts.Prompt) {
	s, ok := c.get(p.SessionID)
	if !ok {
		return
	}
	s.post(func(s *Session) {
		delete(s.pendingPromptIDs, p.ToolUseID)
		s.publish(Event{Type: EventPermissionTimeout, Prompt: newPromptView(p)})

		if p.Source == prompts.SourceSpawned && s.activeChild != nil {
			_ = s.activeChild.Kill(os.Interrupt)
			s.activeChild = nil
			s.transition(StateIdle)
			return
		}

		c.maybeTransitionAwayFromAwaitingUserLocked(s)
	})
}

// maybeTransitionAwayFromAwaitingUserLocked moves Working<-AwaitingUser
// once every prompt the session is tracking has closed. Must run on s's
// own actor goroutine.
func (c *Coordinator) maybeTransitionAwayFromAwaitingUserLocked(s *Session) {
	if s.state != StateAwaitingUser {
		return
	}
	if len(c.prompts.Open(s.ID)) == 0 {
		s.transition(StateWorking)
	}
}

// sleepCtx is a tiny helper so poller code reads linearly.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
