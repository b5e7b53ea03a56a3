package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/MoltShell/terminal-server/internal/config"
	"github.com/MoltShell/terminal-server/internal/logutil"
	"github.com/MoltShell/terminal-server/internal/terminal"
	"github.com/MoltShell/terminal-server/internal/tmux"
)

// Tmux and Conns are set from main.go during startup.
var (
	Tmux  *tmux.Client
	Conns *terminal.Registry
)

// closeSpawnFailed is sent when no terminal process could be started for
// the connection.
const closeSpawnFailed = 4500

// Client to server message types.
const (
	msgInput        = "input"
	msgResize       = "resize"
	msgCloseSession = "close-session"
)

// Server to client message types.
const (
	msgOutput = "output"
	msgError  = "error"
)

// clientMessage is the envelope for everything a client may send. The type
// tag decides which fields are meaningful; unknown tags are dropped.
type clientMessage struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
	Cols uint16 `json:"cols,omitempty"`
	Rows uint16 `json:"rows,omitempty"`
}

// serverMessage is the envelope for everything sent to a client.
type serverMessage struct {
	Type    string `json:"type"`
	Data    string `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// TerminalWS handles WebSocket connections for interactive terminal access.
//
// Query parameters:
//   - session: (optional) identifier of the session to attach. Defaults to
//     the configured default session. Several connections may attach the
//     same session at once; each gets its own bridge.
//
// The session survives the connection: closing the tab leaves the session
// running for the next attach. Only an explicit close-session message
// terminates it.
func TerminalWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		sessionID = config.Cfg.DefaultSession
	}
	if err := tmux.ValidateSessionID(sessionID); err != nil {
		http.Error(w, "Invalid session name", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("[terminal] websocket accept failed: %v", err)
		return
	}
	defer conn.CloseNow()

	serveTerminal(r.Context(), conn, sessionID, r.RemoteAddr)
}

func serveTerminal(ctx context.Context, conn *websocket.Conn, sessionID, remoteAddr string) {
	conn.SetReadLimit(1024 * 1024)

	relayCtx, relayCancel := context.WithCancel(ctx)
	defer relayCancel()

	connID := uuid.NewString()

	onData := func(p []byte) {
		data, _ := json.Marshal(serverMessage{Type: msgOutput, Data: string(p)})
		if err := conn.Write(relayCtx, websocket.MessageText, data); err != nil {
			relayCancel()
		}
	}
	onExit := func() {
		// The process ending is a normal end of the connection, not an
		// error the client needs to display.
		conn.Close(websocket.StatusNormalClosure, "")
		relayCancel()
	}

	bridge, tmuxName, err := startBridge(relayCtx, sessionID, onData, onExit)
	if err != nil {
		log.Printf("[terminal] no bridge for session %s: %v", logutil.SanitizeForLog(sessionID), err)
		sendServerMessage(relayCtx, conn, serverMessage{Type: msgError, Message: "failed to start terminal"})
		conn.Close(closeSpawnFailed, "Failed to start terminal")
		return
	}

	Conns.Register(connID, sessionID, remoteAddr, bridge)
	log.Printf("[terminal] connected: conn=%s session=%s", connID, logutil.SanitizeForLog(sessionID))
	defer func() {
		Conns.Remove(connID)
		bridge.Kill()
		log.Printf("[terminal] disconnected: conn=%s session=%s", connID, logutil.SanitizeForLog(sessionID))
	}()

	// Attaching can reset session options; re-apply mouse reporting once
	// the attach has settled.
	if !config.Cfg.EchoMode {
		timer := time.AfterFunc(config.Cfg.ModeApplyDelay, func() {
			applyCtx, cancel := context.WithTimeout(context.Background(), config.Cfg.TmuxCommandTimeout)
			defer cancel()
			tmux.ApplySessionMode(applyCtx, Tmux, tmuxName)
		})
		defer timer.Stop()
	}

	for {
		_, data, err := conn.Read(relayCtx)
		if err != nil {
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("[terminal] dropping malformed message: conn=%s err=%v", connID, err)
			continue
		}

		switch msg.Type {
		case msgInput:
			if err := bridge.Write([]byte(msg.Data)); err != nil {
				log.Printf("[terminal] write to bridge failed: conn=%s err=%v", connID, err)
			}
		case msgResize:
			if msg.Cols > 0 && msg.Rows > 0 {
				if err := bridge.Resize(msg.Cols, msg.Rows); err != nil {
					log.Printf("[terminal] resize failed: conn=%s err=%v", connID, err)
				}
			}
		case msgCloseSession:
			closeSession(conn, bridge, sessionID, tmuxName, connID)
			return
		default:
			log.Printf("[terminal] dropping unknown message type %q: conn=%s", logutil.SanitizeForLog(msg.Type), connID)
		}
	}
}

// startPty spawns the attach process for a connection. Tests override it to
// substitute a bridge without a real process.
var startPty = func(argv []string, onData func(p []byte), onExit func()) (terminal.Bridge, error) {
	b, err := terminal.StartPty(argv, onData, onExit)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// startBridge spawns the process side of a connection. In echo mode no
// process exists and a deterministic interpreter stands in. The returned
// name is the multiplexer-side session name, empty in echo mode.
func startBridge(ctx context.Context, sessionID string, onData func(p []byte), onExit func()) (terminal.Bridge, string, error) {
	if config.Cfg.EchoMode {
		return terminal.NewEchoBridge(onData, onExit), "", nil
	}

	argvCtx, cancel := context.WithTimeout(ctx, config.Cfg.TmuxCommandTimeout)
	defer cancel()
	name, argv := Tmux.AttachOrCreateArgv(argvCtx, sessionID)

	b, err := startPty(argv, onData, onExit)
	if err != nil {
		return nil, name, err
	}
	return b, name, nil
}

// closeSession kills the bridge, then the underlying session, then ends the
// connection. The session kill is best-effort: the client hears about a
// failure but the connection closes either way.
func closeSession(conn *websocket.Conn, bridge terminal.Bridge, sessionID, tmuxName, connID string) {
	bridge.Kill()

	if !config.Cfg.EchoMode {
		killCtx, cancel := context.WithTimeout(context.Background(), config.Cfg.TmuxCommandTimeout)
		defer cancel()
		if err := Tmux.KillSession(killCtx, tmuxName); err != nil {
			log.Printf("[terminal] close-session kill failed: session=%s err=%v", logutil.SanitizeForLog(sessionID), err)
			sendServerMessage(killCtx, conn, serverMessage{Type: msgError, Message: "failed to terminate session"})
		}
	}
	conn.Close(websocket.StatusNormalClosure, "")
	log.Printf("[terminal] session closed by client: conn=%s session=%s", connID, logutil.SanitizeForLog(sessionID))
}

func sendServerMessage(ctx context.Context, conn *websocket.Conn, msg serverMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	_ = conn.Write(ctx, websocket.MessageText, data)
}
