// Package config provides configuration for the session coordinator daemon.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the daemon configuration.
type Config struct {
	// Port is the HTTP server port.
	Port int

	// AgentCommand is the command used to launch a Claude Code CLI child
	// in streaming-JSON mode (e.g. "claude --output-format stream-json
	// --input-format stream-json").
	AgentCommand string
	AgentArgs    []string

	// WorkDir is the default working directory used when a spawn request
	// does not specify one.
	WorkDir string

	// AgentEnv is the environment passed through to spawned children.
	AgentEnv []string

	AutoApprovePermissions bool

	LogLevel  string
	LogFormat string

	// OutputBufferSize bounds the per-child stderr ring buffer, in lines.
	OutputBufferSize int

	// SessionLogDir is the root directory under which the agent writes
	// one subdirectory per project, each containing <sessionId>.jsonl logs.
	SessionLogDir string

	// StateDir holds the daemon's own persisted state: the bearer token
	// file, the orphan-sweep PID registry, and the push subscription db.
	StateDir string

	TokenFile      string
	PushDBPath     string
	OrphanRegistry string

	// Timeouts, all from §5 of the spec.
	SendCeiling            time.Duration
	HandshakeTimeout       time.Duration
	PermissionPromptTTL    time.Duration
	RetryCompanionBudget   time.Duration
	AbortGrace             time.Duration
	InactivityWindow       time.Duration
	PendingApprovalHintTTL time.Duration
	PollInterval           time.Duration
	HeartbeatInterval      time.Duration

	Push PushConfig
}

// PushConfig holds Web Push operational secrets. These are not per-process
// tuning knobs, so unlike the rest of Config they are loaded from an
// optional YAML file rather than the environment.
type PushConfig struct {
	VAPIDPublicKey  string `mapstructure:"vapid_public_key"`
	VAPIDPrivateKey string `mapstructure:"vapid_private_key"`
	ContactEmail    string `mapstructure:"contact_email"`
}

// Load loads configuration from environment variables (prefix SESSIOND_),
// then overlays an optional YAML file named by SESSIOND_CONFIG_FILE for the
// push subsystem's operational secrets.
func Load() (*Config, error) {
	workDir := getEnv("SESSIOND_WORKDIR", mustGetwd())
	defaultCmd := "claude --output-format stream-json --input-format stream-json --verbose"
	stateDir := getEnv("SESSIOND_STATE_DIR", defaultStateDir())

	cfg := &Config{
		Port:                   getEnvInt("SESSIOND_PORT", 8787),
		AgentCommand:           getEnv("SESSIOND_AGENT_COMMAND", defaultCmd),
		WorkDir:                workDir,
		AutoApprovePermissions: getEnvBool("SESSIOND_AUTO_APPROVE_PERMISSIONS", false),
		LogLevel:               getEnv("SESSIOND_LOG_LEVEL", "info"),
		LogFormat:              getEnv("SESSIOND_LOG_FORMAT", ""),
		OutputBufferSize:       getEnvInt("SESSIOND_OUTPUT_BUFFER_SIZE", 1000),
		SessionLogDir:          getEnv("SESSIOND_SESSION_LOG_DIR", defaultSessionLogDir()),
		StateDir:               stateDir,
		TokenFile:              getEnv("SESSIOND_TOKEN_FILE", stateDir+"/token"),
		PushDBPath:             getEnv("SESSIOND_PUSH_DB", stateDir+"/push.db"),
		OrphanRegistry:         getEnv("SESSIOND_ORPHAN_REGISTRY", stateDir+"/children.jsonl"),

		SendCeiling:            getEnvDuration("SESSIOND_SEND_CEILING", 5*time.Minute),
		HandshakeTimeout:       getEnvDuration("SESSIOND_HANDSHAKE_TIMEOUT", 10*time.Second),
		PermissionPromptTTL:    getEnvDuration("SESSIOND_PERMISSION_TTL", 60*time.Second),
		RetryCompanionBudget:   getEnvDuration("SESSIOND_RETRY_COMPANION_BUDGET", 30*time.Second),
		AbortGrace:             getEnvDuration("SESSIOND_ABORT_GRACE", 2*time.Second),
		InactivityWindow:       getEnvDuration("SESSIOND_INACTIVITY_WINDOW", 10*time.Second),
		PendingApprovalHintTTL: getEnvDuration("SESSIOND_PENDING_APPROVAL_HINT_TTL", 30*time.Second),
		PollInterval:           getEnvDuration("SESSIOND_POLL_INTERVAL", time.Second),
		HeartbeatInterval:      getEnvDuration("SESSIOND_HEARTBEAT_INTERVAL", 15*time.Second),
	}

	if cfg.LogFormat == "" {
		cfg.LogFormat = detectLogFormat()
	}

	cfg.AgentArgs = parseCommand(cfg.AgentCommand)
	cfg.AgentEnv = collectAgentEnv()

	if path := os.Getenv("SESSIOND_CONFIG_FILE"); path != "" {
		if err := loadPushConfigFile(path, &cfg.Push); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	return cfg, nil
}

func loadPushConfigFile(path string, push *PushConfig) error {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return err
	}
	var wrapper struct {
		Push PushConfig `mapstructure:"push"`
	}
	if err := v.Unmarshal(&wrapper); err != nil {
		return err
	}
	*push = wrapper.Push
	return nil
}

func mustGetwd() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sessiond"
	}
	return home + "/.sessiond"
}

func defaultSessionLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".claude/projects"
	}
	return home + "/.claude/projects"
}

// detectLogFormat mirrors the logger package's own environment-based
// heuristic so the daemon and any library code it drives agree on format
// even before a Logger value exists.
func detectLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("SESSIOND_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "console"
}

// parseCommand splits a command string into arguments.
func parseCommand(cmd string) []string {
	return strings.Fields(cmd)
}

// collectAgentEnv passes through all environment variables except the
// daemon's own SESSIOND_* configuration knobs.
func collectAgentEnv() []string {
	var env []string
	for _, e := range os.Environ() {
		if !strings.HasPrefix(e, "SESSIOND_") {
			env = append(env, e)
		}
	}
	return env
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
