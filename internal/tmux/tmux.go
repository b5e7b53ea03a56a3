// Package tmux wraps the tmux binary behind a small client used by the
// terminal gateway. Session persistence lives entirely in the tmux server;
// this package only issues control commands and derives session names.
package tmux

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/MoltShell/terminal-server/internal/config"
)

var (
	ErrNoServer        = errors.New("tmux server not running")
	ErrSessionExists   = errors.New("session already exists")
	ErrSessionNotFound = errors.New("session not found")
)

// Session identifiers become part of a tmux argv, so they are restricted to
// a safe charset. tmux itself rejects names containing ':' or '.', and a
// leading '-' would read as a flag.
var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_-]{0,63}$`)

// ValidateSessionID rejects identifiers that cannot safely name a tmux
// session.
func ValidateSessionID(id string) error {
	if !sessionIDPattern.MatchString(id) {
		return fmt.Errorf("invalid session identifier")
	}
	return nil
}

// Client issues tmux control commands through a Runner.
type Client struct {
	Bin     string
	Prefix  string
	Timeout time.Duration
	Runner  Runner
}

// New builds a Client from the loaded configuration.
func New() *Client {
	return &Client{
		Bin:     config.Cfg.TmuxBin,
		Prefix:  config.Cfg.SessionPrefix,
		Timeout: config.Cfg.TmuxCommandTimeout,
		Runner:  OSRunner{},
	}
}

// SessionName derives the tmux-side session name for an identifier.
func (c *Client) SessionName(id string) string {
	return c.Prefix + id
}

// run executes one tmux command with a per-call timeout and classifies
// common stderr messages into sentinel errors.
func (c *Client) run(ctx context.Context, args ...string) ([]byte, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := c.Runner.Run(runCtx, c.Bin, args...)
	if err != nil {
		return out, classifyError(err, string(out), args)
	}
	return out, nil
}

func classifyError(err error, output string, args []string) error {
	output = strings.TrimSpace(output)

	if strings.Contains(output, "no server running") ||
		strings.Contains(output, "error connecting to") ||
		strings.Contains(output, "server exited unexpectedly") {
		return ErrNoServer
	}
	if strings.Contains(output, "duplicate session") {
		return ErrSessionExists
	}
	if strings.Contains(output, "session not found") ||
		strings.Contains(output, "can't find session") {
		return ErrSessionNotFound
	}

	sub := "tmux"
	if len(args) > 0 {
		sub = "tmux " + args[0]
	}
	if output != "" {
		return fmt.Errorf("%s: %s", sub, output)
	}
	return fmt.Errorf("%s: %w", sub, err)
}

// SessionExists reports whether a session with the exact name exists. A
// missing session and an unreachable tmux server look the same to callers:
// false.
func (c *Client) SessionExists(ctx context.Context, name string) bool {
	_, err := c.run(ctx, "has-session", "-t", "="+name)
	return err == nil
}

// NewDetachedSession starts a detached session. Creating a name that already
// exists is a no-op, not an error.
func (c *Client) NewDetachedSession(ctx context.Context, name, dir string) error {
	if dir == "" {
		dir = homeDir()
	}
	_, err := c.run(ctx, "new-session", "-d", "-s", name, "-c", dir)
	if errors.Is(err, ErrSessionExists) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create session %s: %w", name, err)
	}
	return nil
}

// KillSession terminates a session. Absence of the session or of the whole
// server is success.
func (c *Client) KillSession(ctx context.Context, name string) error {
	_, err := c.run(ctx, "kill-session", "-t", "="+name)
	if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrNoServer) {
		return nil
	}
	return err
}

// ListSessions returns the identifiers of live sessions carrying the
// reserved prefix, prefix stripped, in tmux's listing order. No tmux server
// means no sessions, not an error.
func (c *Client) ListSessions(ctx context.Context) ([]string, error) {
	out, err := c.run(ctx, "list-sessions", "-F", "#{session_name}")
	if errors.Is(err, ErrNoServer) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}

	ids := []string{}
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, c.Prefix) {
			continue
		}
		ids = append(ids, strings.TrimPrefix(line, c.Prefix))
	}
	return ids, nil
}

// SetSessionOption sets a display option on one session.
func (c *Client) SetSessionOption(ctx context.Context, name, option, value string) error {
	_, err := c.run(ctx, "set-option", "-t", "="+name, option, value)
	return err
}

// SetSessionOptionQuiet sets an option that older tmux versions may not
// know, suppressing the unknown-option error.
func (c *Client) SetSessionOptionQuiet(ctx context.Context, name, option, value string) error {
	_, err := c.run(ctx, "set-option", "-q", "-t", "="+name, option, value)
	return err
}

// SetGlobalOption sets a global default, affecting sessions created after
// the call.
func (c *Client) SetGlobalOption(ctx context.Context, option, value string) error {
	_, err := c.run(ctx, "set-option", "-g", option, value)
	return err
}

// AttachOrCreateArgv decides once, per spawn, whether the bridge process
// attaches to an existing session or creates it. The exists check is racy
// against other processes on the host; a single gateway per host is assumed.
func (c *Client) AttachOrCreateArgv(ctx context.Context, id string) (string, []string) {
	name := c.SessionName(id)
	if c.SessionExists(ctx, name) {
		return name, []string{c.Bin, "attach-session", "-t", "=" + name}
	}
	return name, []string{c.Bin, "new-session", "-s", name, "-c", homeDir()}
}

func homeDir() string {
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return home
	}
	return "/"
}
