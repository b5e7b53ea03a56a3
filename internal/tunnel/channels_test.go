package tunnel

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/yamux"
)

// resetHandlers clears registered channel handlers between tests.
func resetHandlers() {
	channelMu.Lock()
	channelHandlers = make(map[string]ChannelHandler)
	channelMu.Unlock()
}

func TestReadChannelHeader(t *testing.T) {
	for _, name := range []string{ChannelPing, ChannelHTTP} {
		ch, err := readChannelHeader(strings.NewReader(name + "\nrest"))
		if err != nil {
			t.Errorf("channel %q: unexpected error: %v", name, err)
		}
		if ch != name {
			t.Errorf("got %q, want %q", ch, name)
		}
	}
}

func TestReadChannelHeaderTooLong(t *testing.T) {
	long := strings.Repeat("x", 65) + "\n"
	_, err := readChannelHeader(strings.NewReader(long))
	if err == nil {
		t.Fatal("expected error for header > 64 bytes")
	}
	if !strings.Contains(err.Error(), "exceeds 64 bytes") {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestReadChannelHeaderEOF(t *testing.T) {
	if _, err := readChannelHeader(strings.NewReader("ping")); err == nil {
		t.Fatal("expected error on EOF before newline")
	}
}

func TestReadChannelHeaderEmpty(t *testing.T) {
	ch, err := readChannelHeader(strings.NewReader("\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ch != "" {
		t.Errorf("expected empty channel name, got %q", ch)
	}
}

// yamuxPair returns connected client and server sessions.
func yamuxPair(t *testing.T) (*yamux.Session, *yamux.Session) {
	t.Helper()
	clientConn, serverConn := net.Pipe()

	server, err := yamux.Server(serverConn, nil)
	if err != nil {
		t.Fatalf("yamux server: %v", err)
	}
	client, err := yamux.Client(clientConn, nil)
	if err != nil {
		t.Fatalf("yamux client: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}

func TestRouteStreamRegisteredChannel(t *testing.T) {
	resetHandlers()
	defer resetHandlers()

	received := make(chan string, 1)
	RegisterChannel("test-ch", func(conn net.Conn) {
		defer conn.Close()
		buf := make([]byte, 32)
		n, _ := conn.Read(buf)
		received <- string(buf[:n])
	})

	client, server := yamuxPair(t)

	clientStream, err := client.Open()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := clientStream.Write([]byte("test-ch\nhello")); err != nil {
		t.Fatal(err)
	}

	serverStream, err := server.AcceptStream()
	if err != nil {
		t.Fatal(err)
	}
	go routeStream(serverStream)

	select {
	case msg := <-received:
		if msg != "hello" {
			t.Errorf("got %q, want %q", msg, "hello")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for handler to receive data")
	}
}

func TestRouteStreamUnknownChannel(t *testing.T) {
	resetHandlers()
	defer resetHandlers()

	client, server := yamuxPair(t)

	clientStream, err := client.Open()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := clientStream.Write([]byte("unknown-channel\n")); err != nil {
		t.Fatal(err)
	}

	serverStream, err := server.AcceptStream()
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		routeStream(serverStream)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("timeout: routeStream did not return for unknown channel")
	}

	buf := make([]byte, 1)
	if _, err := clientStream.Read(buf); err == nil {
		t.Error("expected error reading from closed stream")
	}
}

func TestPingHandlerRespondsPong(t *testing.T) {
	resetHandlers()
	defer resetHandlers()
	RegisterChannel(ChannelPing, PingHandler())

	client, server := yamuxPair(t)

	clientStream, err := client.Open()
	if err != nil {
		t.Fatal(err)
	}
	defer clientStream.Close()
	if _, err := clientStream.Write([]byte("ping\n")); err != nil {
		t.Fatal(err)
	}

	serverStream, err := server.AcceptStream()
	if err != nil {
		t.Fatal(err)
	}
	go routeStream(serverStream)

	clientStream.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 5)
	if _, err := io.ReadFull(clientStream, buf); err != nil {
		t.Fatalf("read pong: %v", err)
	}
	if string(buf) != "pong\n" {
		t.Errorf("got %q, want %q", string(buf), "pong\n")
	}
}

func TestHTTPChannelHandlerServesRequest(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprintf(w, "path=%s", r.URL.Path)
	})
	ch := HTTPChannelHandler(handler)

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ch(serverConn)
	}()

	req := "GET /health HTTP/1.1\r\nHost: localhost\r\nConnection: close\r\n\r\n"
	if _, err := clientConn.Write([]byte(req)); err != nil {
		t.Fatal(err)
	}

	clientConn.SetReadDeadline(time.Now().Add(3 * time.Second))
	resp, err := io.ReadAll(clientConn)
	if err != nil {
		t.Fatal(err)
	}

	respStr := string(resp)
	if !strings.Contains(respStr, "200 OK") {
		t.Errorf("expected 200 OK in response, got:\n%s", respStr)
	}
	if !strings.Contains(respStr, "path=/health") {
		t.Errorf("expected path=/health in body, got:\n%s", respStr)
	}

	wg.Wait()
}

func TestSingleConnListenerAcceptOnce(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	ln := newSingleConnListener(server)

	conn, err := ln.Accept()
	if err != nil {
		t.Fatalf("first Accept failed: %v", err)
	}
	conn.Close()

	if _, err := ln.Accept(); err == nil {
		t.Fatal("expected error on second Accept")
	}
}

func TestSingleConnListenerCloseUnblocks(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	ln := newSingleConnListener(server)
	conn, _ := ln.Accept()

	done := make(chan struct{})
	go func() {
		ln.Accept()
		close(done)
	}()

	conn.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("second Accept did not unblock after Close")
	}
}
