package coordinator

import (
	"context"
	"time"

	"github.com/kdlbs/sessiond/internal/prompts"
	"github.com/kdlbs/sessiond/internal/sessionlog"
)

// pollLoop is the shared 1Hz poller: one tick per watched session (any
// session without a live spawned child already forwarding its output),
// skipping sessions currently being resumed by a retry companion.
func (c *Coordinator) pollLoop(ctx context.Context) {
	for sleepCtx(ctx, c.cfg.PollInterval) {
		for _, s := range c.snapshotSessions() {
			c.pollOne(s)
		}
	}
}

func (c *Coordinator) snapshotSessions() []*Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		out = append(out, s)
	}
	return out
}

func (c *Coordinator) pollOne(s *Session) {
	skipCh := make(chan bool, 1)
	s.post(func(s *Session) {
		skipCh <- s.beingResumedForApproval || s.activeChild != nil
	})
	if <-skipCh {
		return
	}

	messages, pending, err := c.reader.Read(s.ID)
	if err != nil {
		return
	}
	recentlyActive, _ := c.reader.IsRecentlyActive(s.ID, c.cfg.InactivityWindow)

	s.post(func(s *Session) {
		c.applyPollResult(s, messages, pending, recentlyActive)
	})
}

func (c *Coordinator) applyPollResult(s *Session, messages []sessionlog.NormalizedMessage, pending []sessionlog.PendingToolCall, recentlyActive bool) {
	newCount := len(messages)
	if newCount > s.lastLogMessageCount {
		if s.state == StateIdle {
			s.transition(StateWorking)
		}
		for _, m := range messages[s.lastLogMessageCount:newCount] {
			mCopy := m
			s.publish(Event{Type: EventMessage, Message: &mCopy})
		}
		s.lastLogMessageCount = newCount
		s.completionEmitted = false
		s.touch()
	}

	currentPending := make(map[string]bool, len(pending))
	for _, p := range pending {
		currentPending[p.ToolUseID] = true
		if s.pendingPromptIDs[p.ToolUseID] {
			continue // already tracked, nothing new to register
		}
		if prompts.IsFileEligible(p.Name) && recentlyActive {
			prompt := prompts.Prompt{
				SessionID: s.ID,
				ToolName:  p.Name,
				ToolInput: p.Input,
				ToolUseID: p.ToolUseID,
				RequestID: p.ToolUseID,
				Source:    prompts.SourceFile,
			}
			c.prompts.Observe(prompt)
		}
	}

	for id := range s.pendingPromptIDs {
		if !currentPending[id] {
			if resolved := c.prompts.Resolve(s.ID, id); resolved != nil {
				s.publish(Event{Type: EventPermissionResolved, Prompt: newPromptView(*resolved), Behavior: "allow"})
			}
		}
	}
	s.pendingPromptIDs = currentPending

	c.maybeTransitionAwayFromAwaitingUserLocked(s)

	if s.state == StateWorking && !s.completionEmitted && len(s.pendingPromptIDs) == 0 {
		if time.Since(s.lastActivityAt) >= c.cfg.InactivityWindow {
			s.completionEmitted = true
			s.transition(StateIdle)
			s.publish(Event{Type: EventProcessingComplete})
		}
	}
}
