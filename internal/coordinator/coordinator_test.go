package coordinator

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdlbs/sessiond/internal/config"
	"github.com/kdlbs/sessiond/internal/logger"
	"github.com/kdlbs/sessiond/internal/prompts"
	"github.com/kdlbs/sessiond/internal/sessionlog"
	"github.com/kdlbs/sessiond/internal/spawner"
	"github.com/kdlbs/sessiond/pkg/claudecode"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingSink) Publish(sessionID string, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingSink) wait(t *testing.T, want EventType, timeout time.Duration) Event {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		for _, ev := range r.events {
			if ev.Type == want {
				r.mu.Unlock()
				return ev
			}
		}
		r.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s event", want)
	return Event{}
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "json", OutputPath: "stdout"})
	require.NoError(t, err)
	return log
}

func newTestCoordinator(t *testing.T, agentScript string) (*Coordinator, *recordingSink) {
	t.Helper()
	return newTestCoordinatorWithTTL(t, agentScript, time.Second)
}

func newTestCoordinatorWithTTL(t *testing.T, agentScript string, promptTTL time.Duration) (*Coordinator, *recordingSink) {
	t.Helper()
	cfg := &config.Config{
		WorkDir:                 t.TempDir(),
		AgentArgs:               []string{"sh", "-c", agentScript},
		OutputBufferSize:        100,
		HandshakeTimeout:        2 * time.Second,
		AbortGrace:              200 * time.Millisecond,
		SendCeiling:             2 * time.Second,
		PermissionPromptTTL:     promptTTL,
		RetryCompanionBudget:    time.Second,
		PendingApprovalHintTTL:  30 * time.Second,
		PollInterval:            50 * time.Millisecond,
		InactivityWindow:        10 * time.Second,
		OrphanRegistry:          filepath.Join(t.TempDir(), "children.jsonl"),
		SessionLogDir:           t.TempDir(),
	}

	sp, err := spawner.NewSpawner(cfg, testLogger(t))
	require.NoError(t, err)

	reader := sessionlog.NewReader(cfg.SessionLogDir)

	c := New(cfg, testLogger(t), sp, reader)
	sink := &recordingSink{}
	c.SetSink(sink)
	return c, sink
}

func TestSend_HappyPath_DeliversMessageAndCompletion(t *testing.T) {
	script := `echo '{"type":"system","session_id":"sess-1"}'
echo '{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"hi there"}]}}'
echo '{"type":"result"}'
sleep 0.3`
	c, sink := newTestCoordinator(t, script)

	err := c.Send(context.Background(), "sess-1", c.cfg.WorkDir, "hello", nil)
	require.NoError(t, err)

	msgEvent := sink.wait(t, EventMessage, 2*time.Second)
	require.NotNil(t, msgEvent.Message)
	assert.Equal(t, "hi there", msgEvent.Message.Content[0].Text)

	sink.wait(t, EventProcessingComplete, 2*time.Second)
}

func TestSend_ConcurrentSendRejected(t *testing.T) {
	script := `echo '{"type":"system","session_id":"sess-2"}'
sleep 1`
	c, _ := newTestCoordinator(t, script)

	err := c.Send(context.Background(), "sess-2", c.cfg.WorkDir, "hello", nil)
	require.NoError(t, err)

	err = c.Send(context.Background(), "sess-2", c.cfg.WorkDir, "again", nil)
	assert.ErrorIs(t, err, ErrConcurrentSend)
}

func TestAbort_UnknownSessionReturnsNotFound(t *testing.T) {
	c, _ := newTestCoordinator(t, "sleep 1")
	err := c.Abort("does-not-exist")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestPermission_SpawnedAllow_ResolvesAndSetsHint(t *testing.T) {
	script := `echo '{"type":"system","session_id":"sess-3"}'
sleep 1`
	c, sink := newTestCoordinator(t, script)

	err := c.Send(context.Background(), "sess-3", c.cfg.WorkDir, "hello", nil)
	require.NoError(t, err)

	c.handleChildPermissionRequest("sess-3", "req-1", &claudecode.ControlRequest{ToolName: "Bash"})

	open := c.OpenPrompts("sess-3")
	require.Len(t, open, 1)

	err = c.Permission("sess-3", "req-1", true, false, "", nil)
	require.NoError(t, err)

	ev := sink.wait(t, EventPermissionResolved, 2*time.Second)
	assert.Equal(t, "allow", ev.Behavior)

	decision := c.prompts.Observe(prompts.Prompt{SessionID: "sess-3", ToolName: "Bash", RequestID: "req-2", ToolUseID: "tu-2"})
	assert.Equal(t, prompts.DecisionAutoApproved, decision, "the approval hint set by the allow must auto-approve the next Bash prompt")
}

func TestPermission_AllowAll_SuppressesLaterPromptsForTheSameTool(t *testing.T) {
	script := `echo '{"type":"system","session_id":"sess-allowall"}'
sleep 1`
	c, _ := newTestCoordinator(t, script)

	err := c.Send(context.Background(), "sess-allowall", c.cfg.WorkDir, "hello", nil)
	require.NoError(t, err)

	c.handleChildPermissionRequest("sess-allowall", "req-1", &claudecode.ControlRequest{ToolName: "Bash"})
	require.Len(t, c.OpenPrompts("sess-allowall"), 1)

	err = c.Permission("sess-allowall", "req-1", true, true, "Bash", nil)
	require.NoError(t, err)

	decision := c.prompts.Observe(prompts.Prompt{
		SessionID: "sess-allowall",
		ToolName:  "Bash",
		RequestID: "req-2",
		ToolUseID: "tu-2",
	})
	assert.Equal(t, prompts.DecisionAutoApproved, decision, "allowAll must blanket-approve later prompts for the same tool with no fan-out")
}

func TestOnPromptTimeout_SpawnedSourceKillsChildAndReturnsToIdle(t *testing.T) {
	script := `echo '{"type":"system","session_id":"sess-timeout"}'
sleep 5`
	c, sink := newTestCoordinatorWithTTL(t, script, 50*time.Millisecond)

	err := c.Send(context.Background(), "sess-timeout", c.cfg.WorkDir, "hello", nil)
	require.NoError(t, err)

	c.handleChildPermissionRequest("sess-timeout", "req-1", &claudecode.ControlRequest{ToolName: "Bash"})

	sink.wait(t, EventPermissionTimeout, 2*time.Second)

	s, ok := c.get("sess-timeout")
	require.True(t, ok)

	done := make(chan bool, 1)
	s.post(func(s *Session) { done <- s.activeChild == nil && s.state == StateIdle })
	require.True(t, <-done, "a spawned prompt's expiry must kill the stuck child and return the session to Idle")
}
