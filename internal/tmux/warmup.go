package tmux

import (
	"context"
	"log"
	"time"

	"github.com/MoltShell/terminal-server/internal/config"
	"github.com/MoltShell/terminal-server/internal/logutil"
)

// Warmup makes the well-known default session exist and mouse mode stick.
// Runs at startup and after restart-all.
func Warmup(ctx context.Context, c *Client) {
	name := c.SessionName(config.Cfg.DefaultSession)
	if !c.SessionExists(ctx, name) {
		if err := c.NewDetachedSession(ctx, name, ""); err != nil {
			log.Printf("[warmup] create default session: %v", err)
		} else {
			log.Printf("[warmup] created default session %s", name)
		}
	}

	profiles, err := config.LoadProfiles(config.Cfg.SessionProfilesPath)
	if err != nil {
		log.Printf("[warmup] session profiles: %v", err)
	}
	for _, p := range profiles {
		if err := ValidateSessionID(p.Name); err != nil {
			log.Printf("[warmup] skipping profile %q: %v", logutil.SanitizeForLog(p.Name), err)
			continue
		}
		pname := c.SessionName(p.Name)
		if c.SessionExists(ctx, pname) {
			continue
		}
		if err := c.NewDetachedSession(ctx, pname, p.Dir); err != nil {
			log.Printf("[warmup] create profile session %s: %v", logutil.SanitizeForLog(pname), err)
		}
	}

	EnforceMouseMode(ctx, c)
}

// EnforceMouseMode turns mouse reporting on despite tmux server startup
// races. The global default only affects sessions created after it is set,
// and the server may still be initializing right after the first
// new-session, hence the retry loop plus the per-session pass over sessions
// that already exist.
func EnforceMouseMode(ctx context.Context, c *Client) {
	attempts := config.Cfg.ModeSetAttempts
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		err := c.SetGlobalOption(ctx, "mouse", "on")
		if err == nil {
			break
		}
		log.Printf("[warmup] global mouse mode attempt %d/%d: %v", attempt, attempts, err)
		if attempt < attempts {
			select {
			case <-ctx.Done():
				return
			case <-time.After(config.Cfg.ModeSetRetryDelay):
			}
		}
	}

	ids, err := c.ListSessions(ctx)
	if err != nil {
		log.Printf("[warmup] list sessions: %v", err)
		return
	}
	for _, id := range ids {
		ApplySessionMode(ctx, c, c.SessionName(id))
	}
}

// ApplySessionMode enables mouse reporting on one existing session, plus a
// few quality-of-life options set quietly for older tmux versions. Failures
// are logged and swallowed; a session without mouse mode is degraded, not
// broken.
func ApplySessionMode(ctx context.Context, c *Client, name string) {
	if err := c.SetSessionOption(ctx, name, "mouse", "on"); err != nil {
		log.Printf("[warmup] mouse mode for %s: %v", logutil.SanitizeForLog(name), err)
	}
	_ = c.SetSessionOptionQuiet(ctx, name, "set-clipboard", "on")
	_ = c.SetSessionOptionQuiet(ctx, name, "allow-passthrough", "on")
}

// RestartAll kills every session under the reserved prefix and re-runs
// warmup. Sessions outside the prefix are untouched.
func RestartAll(ctx context.Context, c *Client) error {
	ids, err := c.ListSessions(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		name := c.SessionName(id)
		if err := c.KillSession(ctx, name); err != nil {
			log.Printf("[restart] kill %s: %v", logutil.SanitizeForLog(name), err)
		}
	}
	Warmup(ctx, c)
	return nil
}
