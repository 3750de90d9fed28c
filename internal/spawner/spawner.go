// Package spawner owns agent child processes: launching the Claude Code
// CLI in streaming-JSON mode, parsing its stdout via pkg/claudecode.Client,
// and surfacing permission prompts and session lifecycle events to callers
// without applying any prompt policy itself (that lives in internal/prompts).
package spawner

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kdlbs/sessiond/internal/config"
	"github.com/kdlbs/sessiond/internal/logger"
	"github.com/kdlbs/sessiond/internal/tracing"
	"github.com/kdlbs/sessiond/pkg/claudecode"
)

// ErrSpawnFailed is returned when a child exits, or its stdout closes,
// before it announces a session id.
var ErrSpawnFailed = errors.New("spawner: agent failed to start")

// Status mirrors a child process's lifecycle state.
type Status string

const (
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusStopped  Status = "stopped"
	StatusError    Status = "error"
)

// errorWrapper lets an error be stored in atomic.Value, which cannot store
// a nil interface directly.
type errorWrapper struct {
	err error
}

// Image is re-exported for callers that only import this package.
type Image = claudecode.Image

// SpawnOptions configures a single child launch.
type SpawnOptions struct {
	// Cwd is the working directory for the child. Falls back to the
	// Spawner's configured default when empty.
	Cwd string

	// ResumeSessionID, when set, is passed to the CLI as --resume so the
	// child continues an existing transcript instead of starting fresh.
	ResumeSessionID string

	// PermissionMode, when set, is passed as --permission-mode.
	PermissionMode string

	// Model, when set, is passed as --model.
	Model string

	// OnSessionID is invoked exactly once, with the session id taken from
	// the child's first system message.
	OnSessionID func(sessionID string)

	// OnMessage is invoked for every parsed stdout message after the
	// handshake system message (which is not forwarded), once OnSessionID
	// has returned.
	OnMessage func(msg *claudecode.CLIMessage)

	// OnPermissionRequest is invoked for every can_use_tool control
	// request. No approval policy is applied here.
	OnPermissionRequest func(requestID string, req *claudecode.ControlRequest)
}

// Spawner launches and tracks agent child processes for a single daemon
// instance, and maintains the on-disk registry used to detect orphans left
// behind by a previous instance.
type Spawner struct {
	cfg    *config.Config
	logger *logger.Logger

	registry *registry
}

// NewSpawner creates a Spawner bound to cfg. cfg.OrphanRegistry is the JSON
// registry file recording live children for orphan detection across
// daemon restarts.
func NewSpawner(cfg *config.Config, log *logger.Logger) (*Spawner, error) {
	reg, err := openRegistry(cfg.OrphanRegistry)
	if err != nil {
		return nil, fmt.Errorf("spawner: failed to open orphan registry: %w", err)
	}
	return &Spawner{
		cfg:      cfg,
		logger:   log.WithFields(zap.String("component", "spawner")),
		registry: reg,
	}, nil
}

// Spawn launches a child and blocks until its handshake system message
// arrives (or HandshakeTimeout elapses), in which case the child is killed
// and ErrSpawnFailed is returned.
func (s *Spawner) Spawn(ctx context.Context, opts SpawnOptions) (*Handle, error) {
	cwd := opts.Cwd
	if cwd == "" {
		cwd = s.cfg.WorkDir
	}

	ctx, span := tracing.TraceSpawnStart(ctx, opts.ResumeSessionID, opts.ResumeSessionID != "")
	defer span.End()

	args := s.buildArgs(opts)

	s.logger.Info("spawning agent process",
		zap.Strings("args", args),
		zap.String("cwd", cwd))

	// NOTE: we intentionally don't use exec.CommandContext here because we
	// don't want the HTTP request context that triggered this spawn to
	// kill a long-lived child once the request completes.
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = cwd
	cmd.Env = s.cfg.AgentEnv

	stdin, err := cmd.StdinPipe()
	if err != nil {
		tracing.TraceSpawnResult(span, "error", err)
		return nil, fmt.Errorf("spawner: failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		tracing.TraceSpawnResult(span, "error", err)
		return nil, fmt.Errorf("spawner: failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		tracing.TraceSpawnResult(span, "error", err)
		return nil, fmt.Errorf("spawner: failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		tracing.TraceSpawnResult(span, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	h := &Handle{
		cmd:          cmd,
		logger:       s.logger.WithFields(zap.Int("pid", cmd.Process.Pid)),
		outputBuffer: NewOutputBuffer(s.cfg.OutputBufferSize),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
		registry:     s.registry,
	}
	h.status.Store(StatusStarting)
	h.exitCode.Store(-1)

	h.client = claudecode.NewClient(stdin, stdout, s.logger)
	h.client.SetRequestHandler(func(requestID string, req *claudecode.ControlRequest) {
		if req.Subtype == claudecode.SubtypeCanUseTool {
			h.hasPermissionPrompt.Store(true)
			h.registry.markPrompting(h.cmd.Process.Pid, true)
		}
		if opts.OnPermissionRequest != nil {
			opts.OnPermissionRequest(requestID, req)
		}
	})

	handshake := make(chan *claudecode.CLIMessage, 1)
	var handshakeOnce sync.Once
	h.client.SetMessageHandler(func(msg *claudecode.CLIMessage) {
		if msg.Type == claudecode.MessageTypeSystem && msg.SessionID != "" {
			handshakeOnce.Do(func() {
				h.sessionID.Store(msg.SessionID)
				if opts.OnSessionID != nil {
					opts.OnSessionID(msg.SessionID)
				}
				handshake <- msg
			})
			return
		}
		if opts.OnMessage != nil {
			opts.OnMessage(msg)
		}
	})

	h.client.Start(ctx)

	h.wg.Add(2)
	go h.readStderr(stderr)
	go h.waitForExit()

	s.registry.record(registryRecord{
		PID:       cmd.Process.Pid,
		SessionID: opts.ResumeSessionID,
		StartedAt: time.Now(),
	})

	select {
	case msg := <-handshake:
		h.status.Store(StatusRunning)
		tracing.TraceSpawnResult(span, "ok", nil)
		s.registry.setSessionID(cmd.Process.Pid, msg.SessionID)
		return h, nil
	case <-h.doneCh:
		tracing.TraceSpawnResult(span, "exited_before_handshake", ErrSpawnFailed)
		s.registry.remove(cmd.Process.Pid)
		return nil, ErrSpawnFailed
	case <-time.After(s.cfg.HandshakeTimeout):
		h.forceKill()
		tracing.TraceSpawnResult(span, "timeout", ErrSpawnFailed)
		s.registry.remove(cmd.Process.Pid)
		return nil, fmt.Errorf("%w: handshake timed out after %v", ErrSpawnFailed, s.cfg.HandshakeTimeout)
	case <-ctx.Done():
		h.forceKill()
		s.registry.remove(cmd.Process.Pid)
		return nil, ctx.Err()
	}
}

func (s *Spawner) buildArgs(opts SpawnOptions) []string {
	args := make([]string, len(s.cfg.AgentArgs))
	copy(args, s.cfg.AgentArgs)

	if opts.ResumeSessionID != "" {
		args = append(args, "--resume", opts.ResumeSessionID)
	}
	if opts.PermissionMode != "" {
		args = append(args, "--permission-mode", opts.PermissionMode)
	}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	return args
}

// SweepOrphans terminates children recorded in the registry that are still
// alive and still blocked on a permission prompt, left behind by a
// previous daemon instance that never answered it. It should run once at
// startup, before the HTTP server binds.
func (s *Spawner) SweepOrphans(ctx context.Context) error {
	records := s.registry.snapshot()

	ctx, span := tracing.TraceOrphanSweep(ctx, len(records))
	defer span.End()

	return sweep(ctx, records, s.cfg.AbortGrace, s.logger)
}

