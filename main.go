package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MoltShell/terminal-server/internal/config"
	"github.com/MoltShell/terminal-server/internal/database"
	"github.com/MoltShell/terminal-server/internal/handlers"
	"github.com/MoltShell/terminal-server/internal/heartbeat"
	"github.com/MoltShell/terminal-server/internal/logging"
	"github.com/MoltShell/terminal-server/internal/middleware"
	"github.com/MoltShell/terminal-server/internal/proxy"
	"github.com/MoltShell/terminal-server/internal/terminal"
	"github.com/MoltShell/terminal-server/internal/tmux"
	"github.com/MoltShell/terminal-server/internal/tunnel"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

func main() {
	config.Load()
	logging.Init()

	log.Printf("moltshell terminal-server %s", heartbeat.Version)
	log.Printf("Config: SandboxID=%s, EchoMode=%v, SessionPrefix=%s",
		config.Cfg.SandboxID, config.Cfg.EchoMode, config.Cfg.SessionPrefix)

	if err := database.Init(); err != nil {
		log.Fatalf("Database init: %v", err)
	}
	defer database.Close()

	tmuxClient := tmux.New()
	conns := terminal.NewRegistry()
	handlers.Tmux = tmuxClient
	handlers.Conns = conns

	// Make the default session exist before the first client attaches.
	if !config.Cfg.EchoMode {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			tmux.Warmup(ctx, tmuxClient)
		}()
	}

	hbCtx, hbCancel := context.WithCancel(context.Background())
	defer hbCancel()
	reporter := &heartbeat.Reporter{
		State: heartbeat.NewState(),
		Tmux:  tmuxClient,
		Conns: conns,
	}
	go reporter.Run(hbCtx)

	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.Get("/health", handlers.HealthCheck)
	r.Get("/terminal", handlers.TerminalWS)
	r.Get("/tunnel", tunnel.Endpoint)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", handlers.Status)
		r.Get("/sessions", handlers.ListSessions)
		r.Post("/sessions/restart", handlers.RestartSessions)
		r.Delete("/sessions/{id}", handlers.DeleteSession)

		r.Get("/layout", handlers.GetLayout)
		r.Put("/layout", handlers.PutLayout)

		r.Get("/logs/server", handlers.GetServerLogs)
		r.Delete("/logs/server", handlers.ClearServerLogs)
	})

	// Local port forwarding for dev servers running inside sessions.
	r.HandleFunc("/proxy/{port}", proxy.ProxyPort)
	r.HandleFunc("/proxy/{port}/*", proxy.ProxyPort)

	// Streams arriving over the reverse tunnel route back into the same
	// handler tree.
	tunnel.RegisterChannel(tunnel.ChannelPing, tunnel.PingHandler())
	tunnel.RegisterChannel(tunnel.ChannelHTTP, tunnel.HTTPChannelHandler(r))

	// SPA static files (on disk, optional)
	if config.Cfg.StaticDir != "" {
		spa := middleware.NewSPAHandler(os.DirFS(config.Cfg.StaticDir))
		r.NotFound(spa.ServeHTTP)
	}

	srv := &http.Server{
		Addr:    config.Cfg.Addr(),
		Handler: r,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Server starting on %s", config.Cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-sigCtx.Done()
	log.Println("Shutting down...")

	hbCancel()
	conns.KillAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Shutdown error: %v", err)
	}
	log.Println("Server stopped")
}
