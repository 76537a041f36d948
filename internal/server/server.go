// Package server provides HTTP server initialization and lifecycle
// management for the ProcSight REST API and status WebSocket.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/procsight/procsight/internal/config"
	"github.com/procsight/procsight/internal/embedding"
	"github.com/procsight/procsight/internal/ingest"
	"github.com/procsight/procsight/internal/storage"
)

// Start initializes and starts the HTTP server. Returns the actual address
// being listened on (useful for testing with port 0) and the StatusHub for
// wiring ingestion status broadcasts. The server shuts down gracefully when
// ctx is cancelled.
func Start(ctx context.Context, cfg *config.Config, store storage.Store, coordinator *ingest.Coordinator, gateway *embedding.Gateway) (string, *StatusHub, error) {
	mux := http.NewServeMux()

	hostPort := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	hub := NewStatusHub(
		fmt.Sprintf("localhost:%d", cfg.Server.Port),
		fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port),
	)
	go hub.Run()

	rateLimiter := NewRateLimiter(cfg.Server.RateLimitPerSec, cfg.Server.RateLimitBurst)

	maxUpload := int64(cfg.Ingest.MaxUploadMB) * 1024 * 1024
	api := NewAPIHandlers(store, coordinator, gateway, hub, maxUpload)

	mux.HandleFunc("/api/projects", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			api.ListProjects(w, r)
		case http.MethodPost:
			api.CreateProject(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/projects/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			api.GetProject(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/projects/{id}/upload", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			api.Upload(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/search", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			api.Search(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// Health endpoint used by monitoring; no rate-limit exemption needed at
	// the configured rates.
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			api.Health(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// WebSocket endpoint; origin validation handles security.
	mux.Handle("/ws/status", hub)

	handler := RateLimitMiddleware(mux, rateLimiter)
	handler = securityHeadersMiddleware(handler)

	server := &http.Server{
		Addr:         hostPort,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // uploads are processed synchronously
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", hostPort)
	if err != nil {
		return "", nil, fmt.Errorf("server: failed to listen on %s: %w", hostPort, err)
	}

	actualAddr := listener.Addr().String()
	log.Printf("server: listening on %s", actualAddr)

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("server: serve error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("server: shutdown error: %v", err)
		}
		hub.Stop()
	}()

	return actualAddr, hub, nil
}
