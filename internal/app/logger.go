package app

import (
	"log/slog"
	"os"
)

// NewLogger builds the process-wide logger. JSON output is for aggregated
// deployments, text for local work; both carry source locations because the
// tenancy pipeline logs decisions that need to be traceable to a call site.
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true}
	if cfg != nil && cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
