package spawner

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kdlbs/sessiond/internal/logger"
)

// registryRecord is one line of the orphan-sweep PID registry: a snapshot
// of what a previously-running daemon instance knew about one of its
// children at the moment the record was last written.
type registryRecord struct {
	PID                     int       `json:"pid"`
	SessionID               string    `json:"sessionId"`
	HasPermissionPromptFlag bool      `json:"hasPermissionPromptFlag"`
	StartedAt               time.Time `json:"startedAt"`
}

// registry is a small JSON file recording live children, so that the next
// daemon instance can tell "a child that belongs to a previous instance of
// me" apart from any other process on the machine. No suitable
// process-table library exists in the example pack (confirmed by grep over
// every go.mod for shirou/gopsutil, mitchellh/go-ps, and similar), so this
// is intentionally hand-rolled rather than left unimplemented.
//
// The file holds the current snapshot (one line per live child); it is
// rewritten on every change and the record for a pid is dropped once that
// child exits cleanly, so the registry never grows unbounded.
type registry struct {
	path string
	mu   sync.Mutex
	byPID map[int]registryRecord
}

func openRegistry(path string) (*registry, error) {
	if err := os.MkdirAll(dirOf(path), 0o755); err != nil {
		return nil, err
	}

	r := &registry{path: path, byPID: make(map[int]registryRecord)}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return r, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec registryRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		r.byPID[rec.PID] = rec
	}
	return r, scanner.Err()
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}

func (r *registry) record(rec registryRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byPID[rec.PID] = rec
	r.flushLocked()
}

func (r *registry) setSessionID(pid int, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byPID[pid]
	if !ok {
		return
	}
	rec.SessionID = sessionID
	r.byPID[pid] = rec
	r.flushLocked()
}

func (r *registry) markPrompting(pid int, prompting bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byPID[pid]
	if !ok {
		return
	}
	rec.HasPermissionPromptFlag = prompting
	r.byPID[pid] = rec
	r.flushLocked()
}

func (r *registry) remove(pid int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byPID, pid)
	r.flushLocked()
}

func (r *registry) snapshot() []registryRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]registryRecord, 0, len(r.byPID))
	for _, rec := range r.byPID {
		out = append(out, rec)
	}
	return out
}

// flushLocked rewrites the registry file from the in-memory snapshot.
// Callers must hold r.mu.
func (r *registry) flushLocked() {
	tmp := r.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return
	}
	enc := json.NewEncoder(f)
	for _, rec := range r.byPID {
		_ = enc.Encode(rec)
	}
	f.Close()
	_ = os.Rename(tmp, r.path)
}

// sweep sends SIGTERM, then SIGKILL after grace, to every record still
// alive and still flagged as blocked on a permission prompt.
func sweep(ctx context.Context, records []registryRecord, grace time.Duration, log *logger.Logger) error {
	var g errgroup.Group

	for _, rec := range records {
		rec := rec
		if !rec.HasPermissionPromptFlag {
			continue
		}
		if !processAlive(rec.PID) {
			continue
		}

		g.Go(func() error {
			log.Warn("terminating orphaned agent blocked on a permission prompt",
				zap.Int("pid", rec.PID),
				zap.String("session_id", rec.SessionID))

			process, err := os.FindProcess(rec.PID)
			if err != nil {
				return nil
			}
			_ = process.Signal(syscall.SIGTERM)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(grace):
			}

			if processAlive(rec.PID) {
				_ = process.Signal(syscall.SIGKILL)
			}
			return nil
		})
	}

	return g.Wait()
}

func processAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
