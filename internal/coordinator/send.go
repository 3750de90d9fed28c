package coordinator

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/kdlbs/sessiond/internal/spawner"
	"github.com/kdlbs/sessiond/pkg/claudecode"
)

// Send implements the spawned send flow: resolve the session (creating
// its record if this is the first send), reject a second concurrent send,
// spawn a resume-mode child wired into the mailbox, write the user turn,
// and retain the child until a result arrives or the send ceiling
// elapses.
func (c *Coordinator) Send(ctx context.Context, sessionID, projectPath, text string, images []claudecode.Image) error {
	s := c.getOrCreate(sessionID, projectPath, OriginSpawned)

	errCh := make(chan error, 1)
	s.post(func(s *Session) {
		if s.activeChild != nil {
			errCh <- ErrConcurrentSend
			return
		}
		if s.beingResumedForApproval {
			errCh <- ErrConcurrentSend
			return
		}

		h, err := c.spawner.Spawn(ctx, spawner.SpawnOptions{
			Cwd:             s.ProjectPath,
			ResumeSessionID: s.ID,
			OnMessage:       func(msg *claudecode.CLIMessage) { c.handleChildMessage(s.ID, msg) },
			OnPermissionRequest: func(requestID string, req *claudecode.ControlRequest) {
				c.handleChildPermissionRequest(s.ID, requestID, req)
			},
		})
		if err != nil {
			errCh <- fmt.Errorf("%w: %v", ErrSpawnFailed, err)
			return
		}

		s.activeChild = h
		s.completionEmitted = false
		s.transition(StateWorking)
		s.touch()

		h.OnExit(func(int) {
			s.post(func(s *Session) { c.onChildExit(s) })
		})

		if sendErr := h.Send(text, images); sendErr != nil {
			errCh <- sendErr
			return
		}

		go c.watchSendCeiling(s.ID, h)
		errCh <- nil
	})

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// watchSendCeiling kills a session's active child once the 5-minute send
// ceiling elapses without a result, per "on expiry the child is killed and
// the send returns."
func (c *Coordinator) watchSendCeiling(sessionID string, h *spawner.Handle) {
	done := make(chan struct{})
	h.OnExit(func(int) { close(done) })

	select {
	case <-done:
	case <-time.After(c.cfg.SendCeiling):
		s, ok := c.get(sessionID)
		if !ok {
			return
		}
		s.post(func(s *Session) {
			if s.activeChild != h {
				return
			}
			_ = h.Kill(os.Interrupt)
			s.activeChild = nil
			if s.state == StateWorking {
				s.transition(StateIdle)
			}
		})
	}
}

func (c *Coordinator) onChildExit(s *Session) {
	s.activeChild = nil
	s.transition(StateClosing)
	s.publish(Event{Type: EventSessionAborted})
	go c.maybeDrop(s.ID)
}

// Abort sends SIGINT to a session's active child, per the abort route's
// contract (abort is SIGINT + session_aborted).
func (c *Coordinator) Abort(sessionID string) error {
	s, ok := c.get(sessionID)
	if !ok {
		return ErrSessionNotFound
	}

	errCh := make(chan error, 1)
	s.post(func(s *Session) {
		if s.activeChild == nil {
			errCh <- ErrSessionNotFound
			return
		}
		errCh <- s.activeChild.Kill(os.Interrupt)
	})
	return <-errCh
}
