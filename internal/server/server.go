// Package server provides graceful HTTP serving and ordered shutdown of
// the broker's resources.
package server

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

type hook struct {
	name string
	fn   func(context.Context) error
}

// Hooks runs registered cleanup functions in registration order during
// shutdown. A failing hook is logged and does not stop the remaining
// hooks.
type Hooks struct {
	hooks []hook
}

// Add registers a shutdown hook. Nil hooks are ignored with a warning.
func (h *Hooks) Add(name string, fn func(context.Context) error) {
	if fn == nil {
		log.Warn().Str("hook", name).Msg("ignoring nil shutdown hook")
		return
	}
	h.hooks = append(h.hooks, hook{name: name, fn: fn})
}

// AddCloser registers a shutdown hook for a resource with a Close method.
func (h *Hooks) AddCloser(name string, closer interface{ Close() error }) {
	if closer == nil {
		log.Warn().Str("hook", name).Msg("ignoring nil shutdown hook")
		return
	}
	h.Add(name, func(context.Context) error { return closer.Close() })
}

// Run executes the hooks in order, logging each outcome.
func (h *Hooks) Run(ctx context.Context) {
	for _, hook := range h.hooks {
		l := log.With().Str("hook", hook.name).Logger()
		if err := hook.fn(ctx); err != nil {
			l.Warn().Err(err).Msg("shutdown hook failed")
		} else {
			l.Info().Msg("shutdown hook complete")
		}
	}
}

// Serve runs the server until SIGINT/SIGTERM, then drains in-flight
// requests for at most shutdownTimeout before running the hooks.
func Serve(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration, hooks *Hooks) error {
	notifyCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server listening")
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		// startup failure: the listener never ran
		return err

	case <-notifyCtx.Done():
		log.Info().Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	if errors.Is(err, context.DeadlineExceeded) {
		log.Warn().Msg("graceful shutdown timed out; closing connections")
		err = srv.Close()
	}

	hooks.Run(shutdownCtx)

	return err
}
