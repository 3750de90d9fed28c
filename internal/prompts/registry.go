package prompts

import (
	"sync"
	"time"
)

// Decision is the outcome of observing a newly surfaced prompt.
type Decision int

const (
	// DecisionAutoApproved means the caller should answer allow
	// immediately; the prompt was never registered or fanned out.
	DecisionAutoApproved Decision = iota
	// DecisionSuppressed means the prompt must be silently dropped: it
	// was previously denied or retried, or it is already open.
	DecisionSuppressed
	// DecisionRegistered means the prompt is now open and has been fanned
	// out via the registry's onFanout callback.
	DecisionRegistered
)

// Registry is the one logical view of outstanding prompts for every
// session, across the spawned, hook, and file observation sources. It
// applies the four ordered policies from the prompt-registration contract
// and owns the per-session suppression state (allowed tool names, the
// transient approval hint, and the denied/retried id sets) that those
// policies consult.
type Registry struct {
	ttl time.Duration

	mu      sync.Mutex
	open    map[promptKey]*Prompt
	order   map[string][]promptKey // sessionID -> ordered open prompt keys
	timers  map[promptKey]*time.Timer
	allowed map[string]map[string]bool // sessionID -> toolName -> true
	hints   map[string]ApprovalHint    // sessionID -> hint
	denied  map[string]map[string]bool // sessionID -> requestID -> true
	retried map[string]map[string]bool // sessionID -> requestID -> true

	onFanout func(Prompt)
	onTimeout func(Prompt)
}

// NewRegistry builds a Registry whose registered prompts expire after ttl
// if nobody answers them.
func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		ttl:     ttl,
		open:    make(map[promptKey]*Prompt),
		order:   make(map[string][]promptKey),
		timers:  make(map[promptKey]*time.Timer),
		allowed: make(map[string]map[string]bool),
		hints:   make(map[string]ApprovalHint),
		denied:  make(map[string]map[string]bool),
		retried: make(map[string]map[string]bool),
	}
}

// SetCallbacks wires the fan-out (permission_request) and expiry
// (permission_timeout) notifications. Must be called before Observe.
func (r *Registry) SetCallbacks(onFanout, onTimeout func(Prompt)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onFanout = onFanout
	r.onTimeout = onTimeout
}

// Observe applies the four ordered policies to a newly seen prompt:
// blanket tool allowance, a matching unexpired approval hint, membership
// in the denied/retried suppression sets, and finally registration with
// fan-out and a timeout.
func (r *Registry) Observe(p Prompt) Decision {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()

	if r.allowed[p.SessionID] != nil && r.allowed[p.SessionID][p.ToolName] {
		return DecisionAutoApproved
	}

	if hint, ok := r.hints[p.SessionID]; ok && !hint.expired(now) && hint.ToolName == p.ToolName {
		delete(r.hints, p.SessionID)
		return DecisionAutoApproved
	}

	if r.denied[p.SessionID] != nil && r.denied[p.SessionID][p.RequestID] {
		return DecisionSuppressed
	}
	if r.retried[p.SessionID] != nil && r.retried[p.SessionID][p.RequestID] {
		return DecisionSuppressed
	}

	key := p.key()
	if _, exists := r.open[key]; exists {
		return DecisionSuppressed
	}

	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.ExpiresAt.IsZero() {
		p.ExpiresAt = now.Add(r.ttl)
	}

	stored := p
	r.open[key] = &stored
	r.order[p.SessionID] = append(r.order[p.SessionID], key)
	r.startTimerLocked(key, stored.ExpiresAt.Sub(now))

	if r.onFanout != nil {
		r.onFanout(stored)
	}
	return DecisionRegistered
}

func (r *Registry) startTimerLocked(key promptKey, d time.Duration) {
	if d <= 0 {
		d = time.Millisecond
	}
	r.timers[key] = time.AfterFunc(d, func() {
		r.mu.Lock()
		p, ok := r.open[key]
		if !ok {
			r.mu.Unlock()
			return
		}
		delete(r.open, key)
		delete(r.timers, key)
		r.removeFromOrderLocked(key)
		cb := r.onTimeout
		prompt := *p
		r.mu.Unlock()
		if cb != nil {
			cb(prompt)
		}
	})
}

func (r *Registry) removeFromOrderLocked(key promptKey) {
	ids := r.order[key.sessionID]
	for i, k := range ids {
		if k == key {
			r.order[key.sessionID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
}

func (r *Registry) stopTimerLocked(key promptKey) {
	if t, ok := r.timers[key]; ok {
		t.Stop()
		delete(r.timers, key)
	}
}

// Peek returns an open prompt without removing it, so callers can inspect
// its Source before deciding how to answer it.
func (r *Registry) Peek(sessionID, requestID string) (Prompt, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.open[promptKey{sessionID: sessionID, requestID: requestID}]
	if !ok {
		return Prompt{}, false
	}
	return *p, true
}

// Resolve removes an open prompt (direct allow/deny over stdin, or a
// hook prompt answered via retry-via-resume) and returns it, or nil if no
// such prompt is open.
func (r *Registry) Resolve(sessionID, requestID string) *Prompt {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := promptKey{sessionID: sessionID, requestID: requestID}
	p, ok := r.open[key]
	if !ok {
		return nil
	}
	delete(r.open, key)
	r.stopTimerLocked(key)
	r.removeFromOrderLocked(key)
	out := *p
	return &out
}

// Deny resolves a prompt and records its request id in the session's
// denied set so a repeat observation (e.g. a slower poll tick) is
// suppressed rather than re-surfaced.
func (r *Registry) Deny(sessionID, requestID string) *Prompt {
	p := r.Resolve(sessionID, requestID)
	if p == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.denied[sessionID] == nil {
		r.denied[sessionID] = make(map[string]bool)
	}
	r.denied[sessionID][requestID] = true
	return p
}

// MarkRetried records a hook prompt's request id in the session's
// retried set, once a retry-via-resume companion has re-raised it and the
// approval of the re-raised prompt has been sent, so the original hook
// observation is not also surfaced.
func (r *Registry) MarkRetried(sessionID, requestID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.retried[sessionID] == nil {
		r.retried[sessionID] = make(map[string]bool)
	}
	r.retried[sessionID][requestID] = true
}

// AllowAlways blanket-approves a tool name for the rest of the session's
// lifetime (lost on daemon restart by design).
func (r *Registry) AllowAlways(sessionID, toolName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.allowed[sessionID] == nil {
		r.allowed[sessionID] = make(map[string]bool)
	}
	r.allowed[sessionID][toolName] = true
}

// SetHint records a short-lived blanket approval for the next prompt
// matching toolName, set after a direct allow.
func (r *Registry) SetHint(sessionID string, hint ApprovalHint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hints[sessionID] = hint
}

// Open returns the session's currently open prompts in registration order.
func (r *Registry) Open(sessionID string) []Prompt {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := r.order[sessionID]
	out := make([]Prompt, 0, len(keys))
	for _, k := range keys {
		if p, ok := r.open[k]; ok {
			out = append(out, *p)
		}
	}
	return out
}

// ClearSession drops all registry state for a session once its record is
// removed (zero subscribers, no active child, no open prompts).
func (r *Registry) ClearSession(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, key := range r.order[sessionID] {
		delete(r.open, key)
		r.stopTimerLocked(key)
	}
	delete(r.order, sessionID)
	delete(r.allowed, sessionID)
	delete(r.hints, sessionID)
	delete(r.denied, sessionID)
	delete(r.retried, sessionID)
}
