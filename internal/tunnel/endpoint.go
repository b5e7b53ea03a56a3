package tunnel

import (
	"context"
	"crypto/subtle"
	"log"
	"net"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/hashicorp/yamux"

	"github.com/MoltShell/terminal-server/internal/config"
)

var (
	sessionMu sync.Mutex
	sessions  = make(map[string]*yamux.Session)
)

// StreamHandler is called for each accepted yamux stream. The default
// reads a channel header and routes to the registered ChannelHandler.
// Override in tests to install custom behavior.
var StreamHandler func(stream *yamux.Stream) = routeStream

// ActiveSessions returns how many reverse tunnels are currently up.
func ActiveSessions() int {
	sessionMu.Lock()
	defer sessionMu.Unlock()
	return len(sessions)
}

// Endpoint accepts an inbound WebSocket from a control plane and wraps it
// in a yamux session for multiplexed streaming. When a tunnel token is
// configured the peer must present it in X-Tunnel-Token; with no token
// configured the endpoint is open, matching the rest of the API.
func Endpoint(w http.ResponseWriter, r *http.Request) {
	if token := config.Cfg.TunnelToken; token != "" {
		got := r.Header.Get("X-Tunnel-Token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
	}

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("[tunnel] websocket accept error: %v", err)
		return
	}

	remoteAddr := r.RemoteAddr
	log.Printf("[tunnel] connection accepted from %s", remoteAddr)

	// Wrap the WebSocket as a net.Conn for yamux.
	netConn := websocket.NetConn(context.Background(), wsConn, websocket.MessageBinary)

	session, err := yamux.Server(netConn, nil)
	if err != nil {
		log.Printf("[tunnel] yamux server error: %v", err)
		wsConn.CloseNow()
		return
	}

	sessionMu.Lock()
	sessions[remoteAddr] = session
	sessionMu.Unlock()
	defer func() {
		sessionMu.Lock()
		delete(sessions, remoteAddr)
		sessionMu.Unlock()
		session.Close()
		log.Printf("[tunnel] session with %s closed", remoteAddr)
	}()

	log.Printf("[tunnel] yamux session established with %s", remoteAddr)

	for {
		stream, err := session.AcceptStream()
		if err != nil {
			if !isSessionClosed(err) {
				log.Printf("[tunnel] accept stream error from %s: %v", remoteAddr, err)
			}
			return
		}
		go StreamHandler(stream)
	}
}

func isSessionClosed(err error) bool {
	return err == yamux.ErrSessionShutdown || isNetClosedErr(err)
}

func isNetClosedErr(err error) bool {
	if opErr, ok := err.(*net.OpError); ok {
		return opErr.Err.Error() == "use of closed network connection"
	}
	return false
}
