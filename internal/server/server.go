// Package server wires the HTTP surface together: routing, middleware
// ordering, and graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/stashkv/stash/internal/api"
	"github.com/stashkv/stash/internal/auth"
	"github.com/stashkv/stash/internal/config"
	"github.com/stashkv/stash/internal/directory"
	"github.com/stashkv/stash/internal/ratelimit"
	"github.com/stashkv/stash/internal/service"
	"github.com/stashkv/stash/internal/storage"
)

// Version is the reported service version.
const Version = "0.1.0"

// Deps carries the backends the server is built on. Limiter may be nil to
// disable rate limiting.
type Deps struct {
	Store    storage.RecordStore
	Dir      directory.Directory
	Resolver auth.Resolver
	Limiter  *ratelimit.Limiter
	Logger   *slog.Logger
}

// Start starts the HTTP server and returns the address it is listening on,
// useful for testing with port 0, plus a channel that closes once graceful
// shutdown has finished. The server shuts down when ctx is cancelled;
// callers should wait on the channel before exiting so in-flight requests
// drain.
func Start(ctx context.Context, cfg *config.Config, deps Deps) (string, <-chan struct{}, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	svc := service.New(deps.Store, deps.Logger)
	h := api.NewHandlers(svc, deps.Store, deps.Dir, cfg.Limits.MaxRequestTTL, Version, cfg.Mode, deps.Logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", h.Root)
	mux.HandleFunc("GET /health", h.Health)

	authed := http.NewServeMux()
	authed.HandleFunc("POST /stash", h.Stash)
	authed.HandleFunc("DELETE /stash/{memory_id}", h.Forget)
	authed.HandleFunc("GET /recall/{memory_id}", h.Recall)
	authed.HandleFunc("PATCH /update/{memory_id}", h.Update)

	// Method-less fallbacks keep the JSON error contract for wrong verbs
	// and unmatched paths; the method-specific patterns above win when the
	// verb matches.
	authed.HandleFunc("/stash", h.MethodNotAllowed)
	authed.HandleFunc("/stash/{memory_id}", h.MethodNotAllowed)
	authed.HandleFunc("/recall/{memory_id}", h.MethodNotAllowed)
	authed.HandleFunc("/update/{memory_id}", h.MethodNotAllowed)
	authed.HandleFunc("/", h.NotFound)

	protected := api.AuthMiddleware(api.RateLimitMiddleware(authed, deps.Limiter), deps.Resolver, deps.Logger)
	mux.Handle("/stash", protected)
	mux.Handle("/stash/", protected)
	mux.Handle("/recall/", protected)
	mux.Handle("/update/", protected)

	handler := api.MaxBodyMiddleware(mux, cfg.Limits.MaxBodyBytes)
	handler = api.SecurityHeadersMiddleware(handler)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, fmt.Errorf("server: failed to listen on %s: %w", addr, err)
	}
	actualAddr := listener.Addr().String()

	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			deps.Logger.Error("server error", "error", err)
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			deps.Logger.Error("server shutdown error", "error", err)
		}
	}()

	deps.Logger.Info("server listening", "addr", actualAddr, "mode", cfg.Mode)
	return actualAddr, done, nil
}
