package spawner

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdlbs/sessiond/internal/config"
	"github.com/kdlbs/sessiond/internal/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "json", OutputPath: "stdout"})
	require.NoError(t, err)
	return log
}

func testConfig(t *testing.T, agentCommand string) *config.Config {
	t.Helper()
	return &config.Config{
		WorkDir:             t.TempDir(),
		AgentArgs:           []string{"sh", "-c", agentCommand},
		AgentEnv:            nil,
		OutputBufferSize:    100,
		HandshakeTimeout:     2 * time.Second,
		AbortGrace:          200 * time.Millisecond,
		OrphanRegistry:      filepath.Join(t.TempDir(), "children.jsonl"),
	}
}

func TestSpawn_HandshakeDeliversSessionID(t *testing.T) {
	script := `echo '{"type":"system","session_id":"sess-abc","session_status":"active"}'; sleep 0.2`
	cfg := testConfig(t, script)

	s, err := NewSpawner(cfg, testLogger(t))
	require.NoError(t, err)

	var gotID string
	h, err := s.Spawn(context.Background(), SpawnOptions{
		OnSessionID: func(id string) { gotID = id },
	})
	require.NoError(t, err)
	defer h.Stop(time.Second)

	assert.Equal(t, "sess-abc", h.SessionID())
	assert.Equal(t, "sess-abc", gotID)
	assert.Equal(t, StatusRunning, h.Status())
}

func TestSpawn_ExitsBeforeHandshake_ReturnsErrSpawnFailed(t *testing.T) {
	cfg := testConfig(t, "exit 1")

	s, err := NewSpawner(cfg, testLogger(t))
	require.NoError(t, err)

	_, err = s.Spawn(context.Background(), SpawnOptions{})
	assert.ErrorIs(t, err, ErrSpawnFailed)
}

func TestSpawn_HandshakeTimeout_KillsChild(t *testing.T) {
	cfg := testConfig(t, "sleep 5")
	cfg.HandshakeTimeout = 100 * time.Millisecond

	s, err := NewSpawner(cfg, testLogger(t))
	require.NoError(t, err)

	_, err = s.Spawn(context.Background(), SpawnOptions{})
	assert.ErrorIs(t, err, ErrSpawnFailed)
}

func TestRegistry_RemovesRecordOnCleanExit(t *testing.T) {
	script := `echo '{"type":"system","session_id":"sess-exit"}'; exit 0`
	cfg := testConfig(t, script)

	s, err := NewSpawner(cfg, testLogger(t))
	require.NoError(t, err)

	h, err := s.Spawn(context.Background(), SpawnOptions{})
	require.NoError(t, err)

	exited := make(chan int, 1)
	h.OnExit(func(code int) { exited <- code })

	select {
	case <-exited:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for child exit")
	}

	assert.Empty(t, s.registry.snapshot(), "registry should drop the record once the child exits cleanly")
}

func TestBuildArgs_AppendsResumeAndMode(t *testing.T) {
	cfg := testConfig(t, "true")
	cfg.AgentArgs = []string{"claude", "--output-format", "stream-json"}

	s := &Spawner{cfg: cfg}
	args := s.buildArgs(SpawnOptions{ResumeSessionID: "sess-1", PermissionMode: "default", Model: "sonnet"})

	assert.Equal(t, []string{
		"claude", "--output-format", "stream-json",
		"--resume", "sess-1",
		"--permission-mode", "default",
		"--model", "sonnet",
	}, args)
}
