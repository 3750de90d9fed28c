// Package subscribers is the client subscription registry (C5): a
// clientID<->sessionID map that fans the coordinator's uniform event
// stream out over bounded per-client channels, replaying open prompts to
// a freshly (re)connected client before handing it live events. Adapted
// from the teacher's internal/orchestrator/streaming and
// internal/gateway/websocket hub patterns — register/unregister/broadcast
// over a mutex-guarded client map, generalized from websocket+task
// semantics to SSE+session semantics, with the gateway hub's
// HistoricalLogsProvider injection point as the direct precedent for
// replaying state on subscribe.
package subscribers

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kdlbs/sessiond/internal/coordinator"
	"github.com/kdlbs/sessiond/internal/logger"
)

// FrameType distinguishes transport-level SSE framing (connected,
// heartbeat) from the coordinator's six uniform event kinds.
type FrameType string

const (
	FrameConnected FrameType = "connected"
	FrameHeartbeat FrameType = "heartbeat"
	FrameEvent     FrameType = "event"
)

// Frame is one unit written down a client's SSE channel.
type Frame struct {
	Type  FrameType
	Event *coordinator.Event
}

const clientBufferSize = 128

// Client is one connected SSE subscriber.
type Client struct {
	ID        string
	SessionID string

	send chan Frame

	hub      *Hub
	stopOnce sync.Once
	stopCh   chan struct{}
}

// Send returns the channel to range over for frames to write to this
// client's response.
func (c *Client) Send() <-chan Frame {
	return c.send
}

func (c *Client) enqueue(f Frame) {
	select {
	case c.send <- f:
	default:
		// TransportDrop: recovered locally, never surfaced. A slow
		// subscriber loses a frame instead of blocking every other one.
		c.hub.logger.Debug("dropped frame for slow subscriber",
			zap.String("client_id", c.ID), zap.String("session_id", c.SessionID))
	}
}

// OpenPromptsProvider supplies the currently open prompts for a session,
// so a freshly subscribed client can be caught up before live events.
type OpenPromptsProvider func(sessionID string) []coordinator.PromptView

// Hub is the top-level registry of connected clients, grouped by the
// session they are watching.
type Hub struct {
	mu        sync.RWMutex
	bySession map[string]map[*Client]bool

	heartbeat   time.Duration
	openPrompts OpenPromptsProvider
	logger      *logger.Logger
}

// NewHub builds a Hub. Call SetOpenPromptsProvider before any client
// subscribes, so the very first subscriber gets a correct replay.
func NewHub(log *logger.Logger, heartbeat time.Duration) *Hub {
	return &Hub{
		bySession: make(map[string]map[*Client]bool),
		heartbeat: heartbeat,
		logger:    log.WithFields(zap.String("component", "subscribers_hub")),
	}
}

func (h *Hub) SetOpenPromptsProvider(fn OpenPromptsProvider) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.openPrompts = fn
}

// Subscribe registers a new client against sessionID and immediately
// enqueues connected, heartbeat, then a permission_request replay for
// every prompt still open on that session.
func (h *Hub) Subscribe(clientID, sessionID string) *Client {
	c := &Client{
		ID:        clientID,
		SessionID: sessionID,
		send:      make(chan Frame, clientBufferSize),
		hub:       h,
		stopCh:    make(chan struct{}),
	}

	h.mu.Lock()
	if h.bySession[sessionID] == nil {
		h.bySession[sessionID] = make(map[*Client]bool)
	}
	h.bySession[sessionID][c] = true
	provider := h.openPrompts
	h.mu.Unlock()

	c.enqueue(Frame{Type: FrameConnected})
	c.enqueue(Frame{Type: FrameHeartbeat})

	if provider != nil {
		now := time.Now()
		for _, p := range provider(sessionID) {
			pv := p
			c.enqueue(Frame{Type: FrameEvent, Event: &coordinator.Event{
				Type:      coordinator.EventPermissionRequest,
				SessionID: sessionID,
				Prompt:    &pv,
				Timestamp: now,
			}})
		}
	}

	go h.heartbeatLoop(c)

	h.logger.Debug("client subscribed", zap.String("client_id", clientID), zap.String("session_id", sessionID))
	return c
}

func (h *Hub) heartbeatLoop(c *Client) {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.enqueue(Frame{Type: FrameHeartbeat})
		}
	}
}

// Unsubscribe removes a client. Safe to call more than once.
func (h *Hub) Unsubscribe(c *Client) {
	c.stopOnce.Do(func() { close(c.stopCh) })

	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.bySession[c.SessionID]
	if !ok {
		return
	}
	if _, ok := clients[c]; ok {
		delete(clients, c)
		close(c.send)
	}
	if len(clients) == 0 {
		delete(h.bySession, c.SessionID)
	}
	h.logger.Debug("client unsubscribed", zap.String("client_id", c.ID), zap.String("session_id", c.SessionID))
}

// Publish implements coordinator.EventSink: fan ev out to every client
// watching sessionID.
func (h *Hub) Publish(sessionID string, ev coordinator.Event) {
	h.mu.RLock()
	clients := h.bySession[sessionID]
	h.mu.RUnlock()

	evCopy := ev
	for c := range clients {
		c.enqueue(Frame{Type: FrameEvent, Event: &evCopy})
	}
}

// SubscriberCount reports how many clients are watching sessionID.
func (h *Hub) SubscriberCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.bySession[sessionID])
}
