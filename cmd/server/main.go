package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"edulink/internal/auth"
	"edulink/internal/config"
	"edulink/internal/database"
	"edulink/internal/handlers"
	"edulink/internal/hierarchy"
	"edulink/internal/presence"
	"edulink/internal/relay"
	"edulink/internal/signaling"
	"edulink/pkg/logger"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.NewPostgresDB(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Initialize services
	clk := clock.New()
	authService := auth.NewService(db, cfg)
	tracker := presence.NewTracker(clk, cfg.Presence.GracePeriod)
	resolver := hierarchy.NewResolver(db)

	hub := relay.NewHub(tracker)
	calls := signaling.NewCoordinator(hub)
	gateway := relay.NewGateway(db, resolver, tracker, hub, clk, cfg.Relay.EditWindow)

	// Initialize handlers
	wsHandlers := handlers.NewWebSocketHandlers(authService, hub, gateway, calls, cfg)

	// Setup routes
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandlers.HandleWebSocket)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// Create server
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      corsMiddleware(mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info("🚀 Relay started on http://localhost%s", cfg.Server.Port)
	logger.Info("📡 WebSocket endpoint: ws://localhost%s/ws", cfg.Server.Port)

	// Graceful shutdown on interrupt
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Relay shutting down...")
		return server.Shutdown(context.Background())
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("Server error: %v", err)
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
