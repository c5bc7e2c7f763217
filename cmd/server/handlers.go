package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/brunobiangulo/kgsynth"
	"github.com/brunobiangulo/kgsynth/store"
)

// maxContextBytes bounds the context text accepted by /generate.
const maxContextBytes = 1 << 20

type handler struct {
	pipeline kgsynth.Pipeline
}

func newHandler(p kgsynth.Pipeline) *handler {
	return &handler{pipeline: p}
}

// POST /generate
// Runs one context through the pipeline and returns its triples and records.
func (h *handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Minute)
	defer cancel()

	var req struct {
		Context string `json:"context"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxContextBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Context = strings.TrimSpace(req.Context)
	if req.Context == "" {
		writeError(w, http.StatusBadRequest, "context is required")
		return
	}

	gen, err := h.pipeline.Generate(ctx, req.Context)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, kgsynth.ErrOutputUnavailable) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, "generation failed")
		slog.Error("generate error", "error", err)
		return
	}

	writeJSON(w, http.StatusOK, gen)
}

// POST /runs
// Runs the workbook at path, or the configured input when path is empty.
func (h *handler) handleRun(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 6*time.Hour)
	defer cancel()

	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if req.Path != "" {
		absPath, err := filepath.Abs(req.Path)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid path")
			return
		}
		info, err := os.Stat(absPath)
		if err != nil || info.IsDir() {
			writeError(w, http.StatusBadRequest, "path must be an existing file")
			return
		}
		req.Path = absPath
	}

	sum, err := h.pipeline.RunFile(ctx, req.Path)
	if err != nil {
		switch {
		case errors.Is(err, kgsynth.ErrInvalidConfig):
			writeError(w, http.StatusBadRequest, err.Error())
		case sum != nil:
			slog.Error("run error", "path", req.Path, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error":   "run aborted",
				"summary": sum,
			})
		default:
			slog.Error("run error", "path", req.Path, "error", err)
			writeError(w, http.StatusInternalServerError, "run failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, sum)
}

// POST /ingest
// Indexes a document directory for corpus retrieval.
func (h *handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Minute)
	defer cancel()

	var req struct {
		Root string `json:"root"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	stats, err := h.pipeline.Ingest(ctx, req.Root)
	if err != nil {
		if errors.Is(err, kgsynth.ErrInvalidConfig) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "ingestion failed")
		slog.Error("ingest error", "root", req.Root, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// GET /documents
func (h *handler) handleDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.pipeline.Documents(r.Context())
	if err != nil {
		writeCorpusError(w, err)
		return
	}
	if docs == nil {
		docs = []store.Document{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs, "count": len(docs)})
}

// GET /documents/{id}/chunks
func (h *handler) handleChunks(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid document id")
		return
	}
	chunks, err := h.pipeline.Chunks(r.Context(), id)
	if err != nil {
		writeCorpusError(w, err)
		return
	}
	if len(chunks) == 0 {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document_id": id, "chunks": chunks})
}

func writeCorpusError(w http.ResponseWriter, err error) {
	if errors.Is(err, kgsynth.ErrInvalidConfig) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	slog.Error("corpus error", "error", err)
	writeError(w, http.StatusInternalServerError, "corpus unavailable")
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	cfg := h.pipeline.Config()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"retrieval":    cfg.Retrieval.Mode,
		"max_attempts": cfg.Loop.MaxAttempts,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
