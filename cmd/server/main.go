package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brunobiangulo/kgsynth"
	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (JSON)")
	addr := flag.String("addr", ":8080", "Listen address")
	flag.Parse()

	// Structured JSON logging.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("loading .env", "error", err)
	}

	cfg, err := kgsynth.LoadConfig(*configPath)
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	pipeline, err := kgsynth.New(cfg)
	if err != nil {
		slog.Error("creating pipeline", "error", err)
		os.Exit(1)
	}
	defer pipeline.Close()

	srv := &http.Server{
		Addr:         *addr,
		Handler:      newServer(pipeline, os.Getenv("KGSYNTH_API_KEY"), os.Getenv("KGSYNTH_CORS_ORIGINS")),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // batch runs hold the connection for their whole duration
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", *addr, "retrieval", cfg.Retrieval.Mode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("server stopped")
}

// newServer routes the pipeline endpoints behind the middleware chain
// recovery -> cors -> auth -> logging -> mux.
func newServer(p kgsynth.Pipeline, apiKey, corsOrigins string) http.Handler {
	h := newHandler(p)
	mux := http.NewServeMux()

	mux.HandleFunc("POST /generate", h.handleGenerate)
	mux.HandleFunc("POST /runs", h.handleRun)
	mux.HandleFunc("POST /ingest", h.handleIngest)
	mux.HandleFunc("GET /documents", h.handleDocuments)
	mux.HandleFunc("GET /documents/{id}/chunks", h.handleChunks)
	mux.HandleFunc("GET /health", h.handleHealth)

	var handler http.Handler = mux
	handler = logMiddleware(handler)
	handler = authMiddleware(apiKey, handler)
	handler = corsMiddleware(corsOrigins, handler)
	handler = recoveryMiddleware(handler)
	return handler
}
