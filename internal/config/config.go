package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Settings struct {
	HTTPPort     string `envconfig:"HTTP_PORT" default:"8080"`
	SandboxID    string `envconfig:"SANDBOX_ID" default:""`
	EchoMode     bool   `envconfig:"ECHO_MODE" default:"false"`
	StaticDir    string `envconfig:"STATIC_DIR" default:""`
	DatabasePath string `envconfig:"DATABASE_PATH" default:"moltshell.db"`
	LogPath      string `envconfig:"LOG_PATH" default:""`

	// Multiplexer settings
	TmuxBin            string        `envconfig:"TMUX_BIN" default:"tmux"`
	SessionPrefix      string        `envconfig:"SESSION_PREFIX" default:"molt-"`
	DefaultSession     string        `envconfig:"DEFAULT_SESSION" default:"default"`
	TmuxCommandTimeout time.Duration `envconfig:"TMUX_COMMAND_TIMEOUT" default:"5s"`

	// Mouse-mode enforcement timing. Empirically tuned around tmux server
	// startup races; see internal/tmux/warmup.go.
	ModeSetAttempts   int           `envconfig:"MODE_SET_ATTEMPTS" default:"3"`
	ModeSetRetryDelay time.Duration `envconfig:"MODE_SET_RETRY_DELAY" default:"200ms"`
	ModeApplyDelay    time.Duration `envconfig:"MODE_APPLY_DELAY" default:"200ms"`

	// Environment variables with these prefixes are stripped from spawned
	// shells (comma-separated).
	EnvStripPrefixes string `envconfig:"ENV_STRIP_PREFIXES" default:"MOLTSHELL_"`

	// Optional YAML file declaring sessions to pre-create at startup.
	SessionProfilesPath string `envconfig:"SESSION_PROFILES" default:""`

	// Control plane reporting
	ControlPlaneURL     string        `envconfig:"CONTROL_PLANE_URL" default:""`
	HeartbeatInterval   time.Duration `envconfig:"HEARTBEAT_INTERVAL" default:"30s"`
	UpdateCheckInterval time.Duration `envconfig:"UPDATE_CHECK_INTERVAL" default:"1h"`
	TunnelToken         string        `envconfig:"TUNNEL_TOKEN" default:""`
}

var Cfg Settings

func Load() {
	if err := envconfig.Process("moltshell", &Cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if Cfg.SandboxID == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "sandbox"
		}
		Cfg.SandboxID = host
	}
}

// Addr returns the listen address for the HTTP server.
func (s Settings) Addr() string {
	return ":" + s.HTTPPort
}

// StripPrefixes returns the parsed list of environment prefixes to drop
// from spawned shell environments.
func (s Settings) StripPrefixes() []string {
	var out []string
	for _, p := range strings.Split(s.EnvStripPrefixes, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
