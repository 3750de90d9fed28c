package coordinator

import (
	"context"
	"fmt"

	"github.com/kdlbs/sessiond/internal/spawner"
	"github.com/kdlbs/sessiond/pkg/claudecode"
)

// StartNew spawns a brand-new agent child (no resume) rooted at
// projectPath and returns the session id the agent assigns during its
// handshake. The spawner intercepts the handshake's system message itself,
// never forwards it, and calls OnSessionID while handling it, before any
// later stdout line reaches OnMessage/OnPermissionRequest, so sessionID is
// always populated by the time either callback can fire.
func (c *Coordinator) StartNew(ctx context.Context, projectPath string) (string, error) {
	var sessionID string
	var s *Session

	h, err := c.spawner.Spawn(ctx, spawner.SpawnOptions{
		Cwd: projectPath,
		OnSessionID: func(id string) {
			sessionID = id
			s = c.getOrCreate(id, projectPath, OriginSpawned)
		},
		OnMessage: func(msg *claudecode.CLIMessage) {
			c.handleChildMessage(sessionID, msg)
		},
		OnPermissionRequest: func(requestID string, req *claudecode.ControlRequest) {
			c.handleChildPermissionRequest(sessionID, requestID, req)
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	wired := make(chan struct{})
	s.post(func(s *Session) {
		s.activeChild = h
		s.transition(StateWorking)
		s.touch()
		close(wired)
	})
	<-wired

	h.OnExit(func(int) {
		s.post(func(s *Session) { c.onChildExit(s) })
	})

	return sessionID, nil
}
