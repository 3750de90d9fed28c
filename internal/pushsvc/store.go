// Package pushsvc is the Web Push subscription subsystem (C6): durable
// storage of subscription endpoints plus VAPID key exposure, opaque to
// the coordinator core. Grounded on the teacher's internal/secrets sqlite
// store (sqlx writer/reader pools, db-tagged scan structs, PRAGMA-based
// schema evolution via internal/sqlite).
package pushsvc

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/kdlbs/sessiond/internal/sqlite"
)

// Subscription is one browser's Web Push registration.
type Subscription struct {
	Endpoint  string    `json:"endpoint" db:"endpoint"`
	P256dh    string    `json:"p256dh" db:"p256dh"`
	Auth      string    `json:"auth" db:"auth"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

type store struct {
	db *sqlx.DB
}

func openStore(path string) (*store, error) {
	if err := ensureParentDir(path); err != nil {
		return nil, fmt.Errorf("pushsvc: failed to prepare db path: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_mode=rwc", path)
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("pushsvc: failed to open db: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &store{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pushsvc: failed to init schema: %w", err)
	}
	return s, nil
}

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (s *store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS push_subscriptions (
		endpoint   TEXT PRIMARY KEY,
		p256dh     TEXT NOT NULL,
		auth       TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return sqlite.EnsureColumn(s.db.DB, "push_subscriptions", "created_at", "DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP")
}

func (s *store) close() error {
	return s.db.Close()
}

func (s *store) upsert(ctx context.Context, sub Subscription) error {
	sub.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO push_subscriptions (endpoint, p256dh, auth, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(endpoint) DO UPDATE SET p256dh = excluded.p256dh, auth = excluded.auth
	`, sub.Endpoint, sub.P256dh, sub.Auth, sub.CreatedAt)
	return err
}

func (s *store) remove(ctx context.Context, endpoint string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE endpoint = ?`, endpoint)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *store) list(ctx context.Context) ([]Subscription, error) {
	var subs []Subscription
	err := s.db.SelectContext(ctx, &subs, `SELECT endpoint, p256dh, auth, created_at FROM push_subscriptions`)
	return subs, err
}
