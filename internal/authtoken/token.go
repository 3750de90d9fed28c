// Package authtoken manages the daemon's own bearer token file: a
// generate-once secret the remote UI must present on every mutating
// request. Grounded on the teacher's config-loading style
// (internal/config's getEnv-style helpers) for the file path, using
// gopkg.in/yaml.v3 directly (rather than through viper) since this is a
// small, daemon-owned file rather than an operator-edited config.
package authtoken

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// record is the on-disk shape of the token file: the token itself plus a
// little metadata useful for diagnosing a stale or rotated token.
type record struct {
	Token     string    `yaml:"token"`
	CreatedAt time.Time `yaml:"createdAt"`
}

// EnsureToken loads the bearer token from path, generating and persisting
// a fresh one on first run.
func EnsureToken(path string) (string, error) {
	if data, err := os.ReadFile(path); err == nil {
		var rec record
		if err := yaml.Unmarshal(data, &rec); err == nil && rec.Token != "" {
			return rec.Token, nil
		}
	}

	rec := record{Token: uuid.NewString(), CreatedAt: time.Now().UTC()}
	data, err := yaml.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("authtoken: failed to encode token file: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("authtoken: failed to create state dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("authtoken: failed to write token file: %w", err)
	}
	return rec.Token, nil
}
