package terminal

import (
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/creack/pty"

	"github.com/MoltShell/terminal-server/internal/config"
)

// Default terminal geometry until the first resize arrives.
const (
	DefaultCols = 80
	DefaultRows = 24
)

// Bridge relays bytes between one connection and one terminal process.
// Writes after the process has exited return an error; Resize and Kill
// are safe to call at any time, including after exit.
type Bridge interface {
	Write(p []byte) error
	Resize(cols, rows uint16) error
	Kill()
}

// PtyBridge runs a command on a pseudo-terminal and streams its output to
// the onData callback until the process exits, then fires onExit exactly
// once. Each bridge owns exactly one process.
type PtyBridge struct {
	cmd      *exec.Cmd
	ptmx     *os.File
	onExit   func()
	exitOnce sync.Once
}

// StartPty spawns argv on a new PTY sized to the default geometry, with the
// working directory forced to the user's home and the environment stripped
// of server-internal variables. onData receives output chunks in order from
// a single goroutine. On spawn failure no process is left behind and the
// returned bridge is nil.
func StartPty(argv []string, onData func(p []byte), onExit func()) (*PtyBridge, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty command")
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = userHome()
	cmd.Env = sanitizeEnv(os.Environ(), config.Cfg.StripPrefixes())

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("start pty: %w", err)
	}

	if err := pty.Setsize(ptmx, &pty.Winsize{Cols: DefaultCols, Rows: DefaultRows}); err != nil {
		log.Printf("[terminal] initial resize failed: %v", err)
	}

	b := &PtyBridge{
		cmd:    cmd,
		ptmx:   ptmx,
		onExit: onExit,
	}
	go b.run(onData)
	return b, nil
}

// run pumps PTY output to onData, reaps the process once the PTY drains,
// and fires the exit callback. Runs on its own goroutine for the life of
// the bridge.
func (b *PtyBridge) run(onData func(p []byte)) {
	buf := make([]byte, 32*1024)
	for {
		n, err := b.ptmx.Read(buf)
		if n > 0 && onData != nil {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			onData(chunk)
		}
		if err != nil {
			// The master side errors once the child is gone.
			break
		}
	}

	if err := b.cmd.Wait(); err != nil {
		log.Printf("[terminal] process exited: %v", err)
	}
	b.ptmx.Close()
	b.fireExit()
}

// Write sends input bytes to the terminal process.
func (b *PtyBridge) Write(p []byte) error {
	_, err := b.ptmx.Write(p)
	return err
}

// Resize changes the PTY window size.
func (b *PtyBridge) Resize(cols, rows uint16) error {
	return pty.Setsize(b.ptmx, &pty.Winsize{Cols: cols, Rows: rows})
}

// Kill terminates the terminal process. Safe to call more than once and
// after the process has already exited.
func (b *PtyBridge) Kill() {
	if b.cmd.Process != nil {
		_ = b.cmd.Process.Kill()
	}
}

func (b *PtyBridge) fireExit() {
	b.exitOnce.Do(func() {
		if b.onExit != nil {
			b.onExit()
		}
	})
}

// sanitizeEnv returns environ without any variable whose name starts with
// one of the given prefixes.
func sanitizeEnv(environ, prefixes []string) []string {
	out := make([]string, 0, len(environ))
	for _, kv := range environ {
		name, _, _ := strings.Cut(kv, "=")
		drop := false
		for _, p := range prefixes {
			if p != "" && strings.HasPrefix(name, p) {
				drop = true
				break
			}
		}
		if !drop {
			out = append(out, kv)
		}
	}
	return out
}

func userHome() string {
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return home
	}
	return "/"
}
