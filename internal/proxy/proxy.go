// Package proxy forwards HTTP and WebSocket traffic to services listening
// on local ports inside the sandbox, so a dev server started in a terminal
// session is reachable through the same origin as the terminal itself.
package proxy

import (
	"context"
	"log"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
)

// ProxyPort reverse-proxies requests under /proxy/{port}/ to the local
// service on that port. The Host header is rewritten to "localhost" so
// upstreams with host checks accept the request.
func ProxyPort(w http.ResponseWriter, r *http.Request) {
	portStr := chi.URLParam(r, "port")
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		http.Error(w, "Invalid port", http.StatusBadRequest)
		return
	}
	addr := net.JoinHostPort("127.0.0.1", portStr)

	// Upstream sees the path after the /proxy/{port} prefix.
	path := strings.TrimPrefix(r.URL.Path, "/proxy/"+portStr)
	if path == "" {
		path = "/"
	}

	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		proxyWebSocket(w, r, addr, path)
		return
	}

	target := &url.URL{
		Scheme: "http",
		Host:   addr,
	}
	rp := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.Out.URL.Path = path
			pr.Out.URL.RawPath = ""
			pr.Out.Host = "localhost"
			pr.Out.Header.Set("X-Real-IP", "127.0.0.1")
			pr.Out.Header.Set("X-Forwarded-For", "127.0.0.1")
		},
	}
	rp.ServeHTTP(w, r)
}

func proxyWebSocket(w http.ResponseWriter, r *http.Request, addr, path string) {
	// Negotiate subprotocols from the client request.
	requestedProtocol := r.Header.Get("Sec-WebSocket-Protocol")
	var subprotocols []string
	if requestedProtocol != "" {
		subprotocols = strings.Split(requestedProtocol, ", ")
	}

	clientConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       subprotocols,
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("[proxy] ws accept error: %v", err)
		return
	}
	defer clientConn.CloseNow()

	wsURL := "ws://" + addr + path
	if r.URL.RawQuery != "" {
		wsURL += "?" + r.URL.RawQuery
	}

	dialCtx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	upstreamConn, _, err := websocket.Dial(dialCtx, wsURL, &websocket.DialOptions{
		Subprotocols: subprotocols,
		HTTPHeader: http.Header{
			"Host":            []string{"localhost"},
			"X-Real-IP":       []string{"127.0.0.1"},
			"X-Forwarded-For": []string{"127.0.0.1"},
		},
	})
	if err != nil {
		log.Printf("[proxy] ws upstream dial error for %s: %v", wsURL, err)
		clientConn.Close(websocket.StatusBadGateway, "cannot connect to upstream")
		return
	}
	defer upstreamConn.CloseNow()

	clientConn.SetReadLimit(4 * 1024 * 1024)
	upstreamConn.SetReadLimit(4 * 1024 * 1024)

	relayCtx, relayCancel := context.WithCancel(r.Context())
	defer relayCancel()

	// Client -> Upstream
	go func() {
		defer relayCancel()
		for {
			msgType, data, err := clientConn.Read(relayCtx)
			if err != nil {
				return
			}
			if err := upstreamConn.Write(relayCtx, msgType, data); err != nil {
				return
			}
		}
	}()

	// Upstream -> Client
	func() {
		defer relayCancel()
		for {
			msgType, data, err := upstreamConn.Read(relayCtx)
			if err != nil {
				return
			}
			if err := clientConn.Write(relayCtx, msgType, data); err != nil {
				return
			}
		}
	}()

	clientConn.Close(websocket.StatusNormalClosure, "")
	upstreamConn.Close(websocket.StatusNormalClosure, "")
}
