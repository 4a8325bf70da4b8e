// Package logging builds the process logger for a deployment environment.
package logging

import (
	"io"
	"log/slog"

	"stockpile/internal/config"
)

// New returns a logger for env writing to w: a colored debug handler for
// local runs, JSON at debug for dev and JSON at info for prod. Unknown
// environments fall back to prod.
func New(env string, w io.Writer) *slog.Logger {
	switch env {
	case config.EnvLocal:
		opts := PrettyHandlerOptions{SlogOpts: &slog.HandlerOptions{Level: slog.LevelDebug}}
		return slog.New(opts.NewPrettyHandler(w))
	case config.EnvDev:
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	default:
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
}
