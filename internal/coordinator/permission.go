package coordinator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kdlbs/sessiond/internal/prompts"
	"github.com/kdlbs/sessiond/internal/spawner"
	"github.com/kdlbs/sessiond/pkg/claudecode"
)

// Permission answers a pending prompt. The branch taken depends on the
// prompt's source: spawned prompts are answered directly over the
// child's stdin; hook and file prompts have no attached child to write
// to, so an allow is carried out via a retry-via-resume companion. A
// denial of a spawned prompt is also written to the child's stdin; a
// denial of a hook or file prompt is local-only bookkeeping.
//
// allowAll blanket-approves toolName (or, if toolName is empty, the
// prompt's own tool) for the rest of the session's lifetime, so every
// later prompt for that tool auto-approves with no permission_request
// fan-out at all. It is ignored when allow is false.
func (c *Coordinator) Permission(sessionID, requestID string, allow, allowAll bool, toolName string, updatedInput map[string]any) error {
	p, ok := c.prompts.Peek(sessionID, requestID)
	if !ok {
		return ErrPromptNotFound
	}

	s, ok := c.get(sessionID)
	if !ok {
		return ErrSessionNotFound
	}

	if allow && allowAll {
		name := toolName
		if name == "" {
			name = p.ToolName
		}
		c.prompts.AllowAlways(sessionID, name)
	}

	if !allow {
		c.prompts.Deny(sessionID, requestID)
		if p.Source == prompts.SourceSpawned {
			s.post(func(s *Session) {
				if s.activeChild != nil {
					if err := s.activeChild.SendPermissionResponse(requestID, false, nil); err != nil {
						s.logger.Warn("failed to send permission denial", zap.Error(err))
					}
				}
				delete(s.pendingPromptIDs, p.ToolUseID)
				s.publish(Event{Type: EventPermissionResolved, Prompt: newPromptView(p), Behavior: "deny"})
				c.maybeTransitionAwayFromAwaitingUserLocked(s)
			})
		} else {
			s.post(func(s *Session) {
				delete(s.pendingPromptIDs, p.ToolUseID)
				s.publish(Event{Type: EventPermissionResolved, Prompt: newPromptView(p), Behavior: "deny"})
				c.maybeTransitionAwayFromAwaitingUserLocked(s)
			})
		}
		return nil
	}

	switch p.Source {
	case prompts.SourceSpawned:
		c.prompts.Resolve(sessionID, requestID)
		c.prompts.SetHint(sessionID, prompts.ApprovalHint{
			ToolName:  p.ToolName,
			ToolInput: p.ToolInput,
			ExpiresAt: time.Now().Add(c.cfg.PendingApprovalHintTTL),
		})
		s.post(func(s *Session) {
			if s.activeChild == nil {
				return
			}
			if err := s.activeChild.SendPermissionResponse(requestID, true, updatedInput); err != nil {
				s.logger.Warn("failed to send permission approval", zap.Error(err))
				return
			}
			delete(s.pendingPromptIDs, p.ToolUseID)
			s.publish(Event{Type: EventPermissionResolved, Prompt: newPromptView(p), Behavior: "allow"})
			c.maybeTransitionAwayFromAwaitingUserLocked(s)
		})
		return nil

	case prompts.SourceHook, prompts.SourceFile:
		c.prompts.Resolve(sessionID, requestID)
		go c.retryViaResume(sessionID, p, updatedInput)
		return nil
	}

	return ErrPromptNotFound
}

func retrySentinelText(toolName string) string {
	return "Retry the " + toolName + " tool call now."
}

// retryViaResume spawns a short-lived companion resuming the session, re-
// raises the original tool call via the fixed sentinel text, and auto-
// approves the prompt the companion re-raises for it. The companion is
// killed once that approval lands or its budget elapses, whichever comes
// first; beingResumedForApproval keeps the poller from also watching this
// session's log while the companion runs.
//
// originalUpdatedInput is the caller's updatedInput from the original
// Permission call; it is only meaningful for an "ask-user-question"
// prompt, where it carries the user's actual answer and must be threaded
// through to the re-raised prompt rather than discarded. For every other
// tool, the companion instead forwards the re-raised request's own fresh
// input, since that is what the agent is asking to run this time.
func (c *Coordinator) retryViaResume(sessionID string, p prompts.Prompt, originalUpdatedInput map[string]any) {
	s, ok := c.get(sessionID)
	if !ok {
		return
	}

	guardSet := make(chan struct{})
	s.post(func(s *Session) { s.beingResumedForApproval = true; close(guardSet) })
	<-guardSet
	defer func() {
		s.post(func(s *Session) { s.beingResumedForApproval = false })
	}()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RetryCompanionBudget)
	defer cancel()

	var handle *spawner.Handle
	approved := make(chan error, 1)

	h, err := c.spawner.Spawn(ctx, spawner.SpawnOptions{
		Cwd:             s.ProjectPath,
		ResumeSessionID: sessionID,
		OnPermissionRequest: func(requestID string, req *claudecode.ControlRequest) {
			if handle == nil || req.ToolName != p.ToolName {
				return
			}
			input := req.Input
			if p.ToolName == prompts.AskUserQuestionTool {
				input = originalUpdatedInput
			}
			select {
			case approved <- handle.SendPermissionResponse(requestID, true, input):
			default:
			}
		},
	})
	if err != nil {
		s.logger.Warn("retry-via-resume companion failed to start", zap.Error(err), zap.String("tool_name", p.ToolName))
		return
	}
	handle = h
	defer h.Stop(c.cfg.AbortGrace)

	if err := h.Send(retrySentinelText(p.ToolName), nil); err != nil {
		s.logger.Warn("retry-via-resume companion failed to send sentinel", zap.Error(err))
		return
	}

	select {
	case err := <-approved:
		if err != nil {
			s.logger.Warn("retry-via-resume companion approval failed", zap.Error(err))
			return
		}
	case <-ctx.Done():
		s.logger.Warn("retry-via-resume companion exceeded its budget", zap.String("session_id", sessionID), zap.String("tool_name", p.ToolName))
		return
	}

	c.prompts.MarkRetried(sessionID, p.RequestID)
	s.post(func(s *Session) {
		delete(s.pendingPromptIDs, p.ToolUseID)
		s.publish(Event{Type: EventPermissionResolved, Prompt: newPromptView(p), Behavior: "allow"})
		c.maybeTransitionAwayFromAwaitingUserLocked(s)
	})
}
