package terminal

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

const echoPrompt = "$ "

// EchoBridge is a deterministic in-memory stand-in for a real terminal,
// used in tests and demo deployments where spawning processes is not
// wanted. It echoes keystrokes, supports backspace editing, and answers a
// tiny set of commands: "echo ..." prints its arguments and "size" prints
// the current geometry.
type EchoBridge struct {
	mu       sync.Mutex
	onData   func(p []byte)
	onExit   func()
	cols     uint16
	rows     uint16
	line     []byte
	lastCR   bool
	closed   bool
	exitOnce sync.Once
}

// NewEchoBridge returns an echo bridge at the default geometry and emits
// the initial prompt through onData before returning.
func NewEchoBridge(onData func(p []byte), onExit func()) *EchoBridge {
	b := &EchoBridge{
		onData: onData,
		onExit: onExit,
		cols:   DefaultCols,
		rows:   DefaultRows,
	}
	b.emit([]byte(echoPrompt))
	return b
}

// Write interprets input bytes as keystrokes and emits the resulting
// terminal output.
func (b *EchoBridge) Write(p []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.New("bridge closed")
	}

	var out []byte
	for _, ch := range p {
		if ch == '\n' && b.lastCR {
			// Second half of a CRLF pair, already handled.
			b.lastCR = false
			continue
		}
		b.lastCR = ch == '\r'

		switch ch {
		case '\r', '\n':
			out = append(out, '\r', '\n')
			if result := b.execute(string(b.line)); result != "" {
				out = append(out, result...)
				out = append(out, '\r', '\n')
			}
			out = append(out, echoPrompt...)
			b.line = b.line[:0]
		case 0x7f, 0x08:
			if len(b.line) > 0 {
				b.line = b.line[:len(b.line)-1]
				out = append(out, '\b', ' ', '\b')
			}
		default:
			b.line = append(b.line, ch)
			out = append(out, ch)
		}
	}

	if len(out) > 0 {
		b.emitLocked(out)
	}
	return nil
}

// execute runs one entered line and returns its output, without a trailing
// newline. Called with the mutex held.
func (b *EchoBridge) execute(line string) string {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return ""
	case line == "echo":
		return ""
	case strings.HasPrefix(line, "echo "):
		return strings.TrimPrefix(line, "echo ")
	case line == "size":
		return fmt.Sprintf("%dx%d", b.cols, b.rows)
	default:
		name := line
		if i := strings.IndexByte(line, ' '); i > 0 {
			name = line[:i]
		}
		return name + ": command not found"
	}
}

// Resize updates the geometry reported by the "size" command.
func (b *EchoBridge) Resize(cols, rows uint16) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.New("bridge closed")
	}
	b.cols = cols
	b.rows = rows
	return nil
}

// Kill stops the interpreter and fires the exit callback exactly once.
func (b *EchoBridge) Kill() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	b.exitOnce.Do(func() {
		if b.onExit != nil {
			b.onExit()
		}
	})
}

func (b *EchoBridge) emit(p []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.emitLocked(p)
}

func (b *EchoBridge) emitLocked(p []byte) {
	if b.onData != nil {
		b.onData(p)
	}
}
