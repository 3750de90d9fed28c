package spawner

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kdlbs/sessiond/internal/logger"
	"github.com/kdlbs/sessiond/pkg/claudecode"
)

// Handle represents one running (or exited) agent child process.
type Handle struct {
	cmd    *exec.Cmd
	logger *logger.Logger
	client *claudecode.Client

	outputBuffer *OutputBuffer
	registry     *registry

	status   atomic.Value // Status
	exitCode atomic.Int32
	exitErr  atomic.Value // errorWrapper
	sessionID atomic.Value // string

	hasPermissionPrompt atomic.Bool

	exitCbMu  sync.Mutex
	exitCbs   []func(exitCode int)

	wg     sync.WaitGroup
	stopCh chan struct{}
	doneCh chan struct{}
}

// SessionID returns the session id announced in the child's handshake.
func (h *Handle) SessionID() string {
	if v, ok := h.sessionID.Load().(string); ok {
		return v
	}
	return ""
}

// Status returns the child's current lifecycle state.
func (h *Handle) Status() Status {
	if v, ok := h.status.Load().(Status); ok {
		return v
	}
	return StatusError
}

// ExitCode returns the exit code, or -1 if the child has not exited.
func (h *Handle) ExitCode() int {
	return int(h.exitCode.Load())
}

// ExitError returns the wait error, if the child exited abnormally.
func (h *Handle) ExitError() error {
	if v, ok := h.exitErr.Load().(errorWrapper); ok {
		return v.err
	}
	return nil
}

// PID returns the child's process id.
func (h *Handle) PID() int {
	if h.cmd.Process == nil {
		return -1
	}
	return h.cmd.Process.Pid
}

// OutputBuffer returns the child's stderr ring buffer, for diagnostics.
func (h *Handle) OutputBuffer() *OutputBuffer {
	return h.outputBuffer
}

// Send delivers a user turn (optionally with image attachments) to the child.
func (h *Handle) Send(text string, images []claudecode.Image) error {
	return h.client.SendUserTurn(text, images)
}

// SendPermissionResponse answers an outstanding can_use_tool control request.
func (h *Handle) SendPermissionResponse(requestID string, allow bool, updatedInput map[string]any) error {
	behavior := claudecode.BehaviorDeny
	if allow {
		behavior = claudecode.BehaviorAllow
	}
	resp := &claudecode.ControlResponseMessage{
		Type:      claudecode.MessageTypeControlResponse,
		RequestID: requestID,
		Response: &claudecode.ControlResponse{
			Subtype: "success",
			Result: &claudecode.PermissionResult{
				Behavior:     behavior,
				UpdatedInput: updatedInput,
			},
		},
	}
	if err := h.client.SendControlResponse(resp); err != nil {
		return fmt.Errorf("spawner: failed to send permission response: %w", err)
	}
	h.hasPermissionPrompt.Store(false)
	h.registry.markPrompting(h.PID(), false)
	return nil
}

// OnExit registers a callback invoked once the child's wait() returns.
// If the child has already exited, cb is invoked immediately.
func (h *Handle) OnExit(cb func(exitCode int)) {
	h.exitCbMu.Lock()
	select {
	case <-h.doneCh:
		h.exitCbMu.Unlock()
		cb(h.ExitCode())
		return
	default:
	}
	h.exitCbs = append(h.exitCbs, cb)
	h.exitCbMu.Unlock()
}

// Kill sends sig to the child process.
func (h *Handle) Kill(sig os.Signal) error {
	if h.cmd.Process == nil {
		return fmt.Errorf("spawner: process not started")
	}
	return h.cmd.Process.Signal(sig)
}

// Stop closes stdin so the child can exit cleanly, falling back to a
// forced kill if it doesn't exit within grace.
func (h *Handle) Stop(grace time.Duration) {
	h.status.Store(StatusStopping)
	close(h.stopCh)

	h.client.Stop()

	select {
	case <-h.doneCh:
		h.status.Store(StatusStopped)
		return
	default:
	}

	select {
	case <-h.doneCh:
	case <-time.After(grace):
		h.forceKill()
		<-h.doneCh
	}
	h.status.Store(StatusStopped)
}

func (h *Handle) forceKill() {
	if h.cmd.Process != nil {
		h.logger.Warn("force killing agent process")
		_ = h.cmd.Process.Kill()
	}
}

func (h *Handle) readStderr(stderr io.Reader) {
	defer h.wg.Done()

	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		h.outputBuffer.Add(OutputLine{
			Timestamp: time.Now(),
			Stream:    "stderr",
			Content:   scanner.Text(),
		})
	}
	if err := scanner.Err(); err != nil {
		h.logger.Debug("stderr reader error", zap.Error(err))
	}
}

func (h *Handle) waitForExit() {
	defer h.wg.Done()

	err := h.cmd.Wait()

	if err != nil {
		h.exitErr.Store(errorWrapper{err: err})
		if exitErr, ok := err.(*exec.ExitError); ok {
			h.exitCode.Store(int32(exitErr.ExitCode()))
		}
		h.logger.Info("agent process exited with error", zap.Error(err))
	} else {
		h.exitCode.Store(0)
		h.logger.Info("agent process exited")
	}

	h.status.Store(StatusStopped)
	h.registry.remove(h.PID())

	h.exitCbMu.Lock()
	close(h.doneCh)
	cbs := h.exitCbs
	h.exitCbMu.Unlock()
	for _, cb := range cbs {
		cb(h.ExitCode())
	}
}
