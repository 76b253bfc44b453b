// Package api exposes the engine over HTTP for the browser extension.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/neoromantics/focus/internal/api/middleware"
	"github.com/neoromantics/focus/internal/dispatch"
)

// DefaultMaxBodyBytes bounds a message body. Page HTML dominates its size.
const DefaultMaxBodyBytes = 8 << 20

// Dispatcher runs one extension message.
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) (any, error)
}

// Options configures the router. MCP and Gatherer are optional.
type Options struct {
	Dispatcher   Dispatcher
	Tokens       middleware.TokenSource
	RateLimit    middleware.RateLimitConfig
	MCP          http.Handler
	Gatherer     prometheus.Gatherer
	Version      string
	MaxBodyBytes int64
}

// NewRouter builds the HTTP surface.
func NewRouter(opts Options) http.Handler {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}

	r := chi.NewRouter()
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.ExtensionCORS)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": opts.Version})
	})

	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(opts.RateLimit))
		r.Use(middleware.BearerAuth(opts.Tokens))
		r.Post("/api/messages", handleMessage(opts.Dispatcher, opts.MaxBodyBytes))
		if opts.MCP != nil {
			r.Handle("/mcp", opts.MCP)
		}
	})

	return r
}

func handleMessage(d Dispatcher, maxBody int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req dispatch.Request
		body := http.MaxBytesReader(w, r.Body, maxBody)
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, "message too large")
				return
			}
			writeError(w, http.StatusBadRequest, "malformed message: "+err.Error())
			return
		}

		reply, err := d.Dispatch(r.Context(), req)
		switch {
		case errors.Is(err, dispatch.ErrUnknownAction), errors.Is(err, dispatch.ErrInvalidRequest):
			writeError(w, http.StatusBadRequest, err.Error())
			return
		case err != nil:
			slog.Error("dispatch failed", "action", string(req.Action), "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, reply)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("writing response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, dispatch.Failure{Error: msg})
}
