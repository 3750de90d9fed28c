package subscribers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdlbs/sessiond/internal/coordinator"
	"github.com/kdlbs/sessiond/internal/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "json", OutputPath: "stdout"})
	require.NoError(t, err)
	return log
}

func drain(t *testing.T, c *Client, n int, timeout time.Duration) []Frame {
	t.Helper()
	frames := make([]Frame, 0, n)
	deadline := time.After(timeout)
	for len(frames) < n {
		select {
		case f := <-c.Send():
			frames = append(frames, f)
		case <-deadline:
			t.Fatalf("timed out after %d/%d frames", len(frames), n)
		}
	}
	return frames
}

func TestSubscribe_RepliesConnectedThenHeartbeat(t *testing.T) {
	hub := NewHub(testLogger(t), time.Hour)
	c := hub.Subscribe("client-1", "sess-1")
	defer hub.Unsubscribe(c)

	frames := drain(t, c, 2, time.Second)
	assert.Equal(t, FrameConnected, frames[0].Type)
	assert.Equal(t, FrameHeartbeat, frames[1].Type)
}

func TestSubscribe_ReplaysOpenPrompts(t *testing.T) {
	hub := NewHub(testLogger(t), time.Hour)
	hub.SetOpenPromptsProvider(func(sessionID string) []coordinator.PromptView {
		if sessionID != "sess-2" {
			return nil
		}
		return []coordinator.PromptView{{RequestID: "req-1", ToolName: "Bash", Source: "spawned"}}
	})

	c := hub.Subscribe("client-1", "sess-2")
	defer hub.Unsubscribe(c)

	frames := drain(t, c, 3, time.Second)
	require.Equal(t, FrameEvent, frames[2].Type)
	require.NotNil(t, frames[2].Event.Prompt)
	assert.Equal(t, "req-1", frames[2].Event.Prompt.RequestID)
	assert.Equal(t, coordinator.EventPermissionRequest, frames[2].Event.Type)
}

func TestPublish_FansOutToEverySubscriberOnSession(t *testing.T) {
	hub := NewHub(testLogger(t), time.Hour)
	a := hub.Subscribe("client-a", "sess-3")
	b := hub.Subscribe("client-b", "sess-3")
	other := hub.Subscribe("client-c", "sess-other")
	defer hub.Unsubscribe(a)
	defer hub.Unsubscribe(b)
	defer hub.Unsubscribe(other)

	drain(t, a, 2, time.Second)
	drain(t, b, 2, time.Second)
	drain(t, other, 2, time.Second)

	hub.Publish("sess-3", coordinator.Event{Type: coordinator.EventSessionAborted, SessionID: "sess-3"})

	fa := drain(t, a, 1, time.Second)
	fb := drain(t, b, 1, time.Second)
	assert.Equal(t, coordinator.EventSessionAborted, fa[0].Event.Type)
	assert.Equal(t, coordinator.EventSessionAborted, fb[0].Event.Type)

	select {
	case f := <-other.Send():
		t.Fatalf("unexpected frame delivered to an unrelated session: %+v", f)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribe_IsIdempotentAndStopsHeartbeat(t *testing.T) {
	hub := NewHub(testLogger(t), 10*time.Millisecond)
	c := hub.Subscribe("client-1", "sess-4")
	drain(t, c, 2, time.Second)

	hub.Unsubscribe(c)
	hub.Unsubscribe(c) // must not panic on double-close

	assert.Equal(t, 0, hub.SubscriberCount("sess-4"))

	_, ok := <-c.Send()
	assert.False(t, ok, "client channel should be closed after unsubscribe")
}

func TestEnqueue_DropsFramesInsteadOfBlockingOnFullBuffer(t *testing.T) {
	hub := NewHub(testLogger(t), time.Hour)
	c := hub.Subscribe("client-1", "sess-5")
	defer hub.Unsubscribe(c)
	drain(t, c, 2, time.Second)

	for i := 0; i < clientBufferSize+10; i++ {
		hub.Publish("sess-5", coordinator.Event{Type: coordinator.EventMessage, SessionID: "sess-5"})
	}

	// The buffer is bounded: this must return promptly, never block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < clientBufferSize; i++ {
			<-c.Send()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publishing past the buffer size blocked instead of dropping")
	}
}

func TestSubscriberCount(t *testing.T) {
	hub := NewHub(testLogger(t), time.Hour)
	assert.Equal(t, 0, hub.SubscriberCount("sess-6"))

	a := hub.Subscribe("client-a", "sess-6")
	b := hub.Subscribe("client-b", "sess-6")
	assert.Equal(t, 2, hub.SubscriberCount("sess-6"))

	hub.Unsubscribe(a)
	assert.Equal(t, 1, hub.SubscriberCount("sess-6"))

	hub.Unsubscribe(b)
	assert.Equal(t, 0, hub.SubscriberCount("sess-6"))
}
