package coordinator

import (
	"time"

	"go.uber.org/zap"

	"github.com/kdlbs/sessiond/internal/logger"
	"github.com/kdlbs/sessiond/internal/spawner"
)

// Origin records how the daemon first learned about a session: by
// spawning its own child, or by observing it running in a terminal.
// Resuming a terminal session to answer a hook prompt does not change
// Origin — it only sets beingResumedForApproval for the companion's
// lifetime.
type Origin string

const (
	OriginSpawned  Origin = "spawned"
	OriginTerminal Origin = "terminal"
)

// State is the session's place in the Idle/Working/AwaitingUser/Closing
// state machine.
type State string

const (
	StateIdle          State = "idle"
	StateWorking       State = "working"
	StateAwaitingUser  State = "awaiting_user"
	StateClosing       State = "closing"
)

// Session is the per-session record described in the data model: one
// owning actor goroutine serializes every mutation through mailbox, so
// nothing outside that goroutine touches these fields directly.
type Session struct {
	ID          string
	ProjectPath string
	Origin      Origin

	state       State
	activeChild *spawner.Handle

	lastLogMessageCount int
	pendingPromptIDs    map[string]bool

	lastActivityAt          time.Time
	completionEmitted       bool
	beingResumedForApproval bool

	subscriberCount int

	coord  *Coordinator
	logger *logger.Logger

	mailbox chan func(*Session)
	stopped chan struct{}
}

func newSession(coord *Coordinator, id, projectPath string, origin Origin) *Session {
	s := &Session{
		ID:               id,
		ProjectPath:      projectPath,
		Origin:           origin,
		state:            StateIdle,
		pendingPromptIDs: make(map[string]bool),
		lastActivityAt:   time.Now(),
		coord:            coord,
		logger:           coord.logger.WithSessionID(id),
		mailbox:          make(chan func(*Session), 64),
		stopped:          make(chan struct{}),
	}
	go s.run()
	return s
}

// run is the actor loop: every mutation to s's fields happens here, on
// this one goroutine, so cross-goroutine access is limited to posting
// closures onto mailbox.
func (s *Session) run() {
	defer close(s.stopped)
	for fn := range s.mailbox {
		fn(s)
	}
}

// post enqueues fn to run on the session's actor goroutine. It never
// blocks past the mailbox's buffer; callers on the hot path (child
// stdout, the poller tick) are expected to keep fn cheap.
func (s *Session) post(fn func(*Session)) {
	select {
	case s.mailbox <- fn:
	case <-s.stopped:
	}
}

// closeMailbox stops the actor goroutine once Closing has fully settled.
func (s *Session) closeMailbox() {
	close(s.mailbox)
}

func (s *Session) transition(to State) {
	if s.state == to {
		return
	}
	s.logger.Debug("session state transition",
		zap.String("from", string(s.state)), zap.String("to", string(to)))
	s.state = to
}

func (s *Session) touch() {
	s.lastActivityAt = time.Now()
}

func (s *Session) publish(ev Event) {
	ev.SessionID = s.ID
	ev.Timestamp = time.Now()
	s.coord.sink.Publish(s.ID, ev)
}
