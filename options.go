package nexus

import (
	"log/slog"

	"github.com/mcp-tool-shop/nexus-router/dispatch"
	"github.com/mcp-tool-shop/nexus-router/internal/redact"
	"github.com/mcp-tool-shop/nexus-router/internal/telemetry"
)

// Option configures an Engine.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	storePath   string
	registry    *dispatch.Registry
	adapter     dispatch.Adapter
	logger      *slog.Logger
	redactor    *redact.Redactor
	instruments *telemetry.Instruments
}

// WithStorePath sets the SQLite database path. The default ":memory:" is
// ephemeral; pass a file path to persist runs.
func WithStorePath(path string) Option {
	return func(o *resolvedOptions) { o.storePath = path }
}

// WithRegistry hands the Engine an adapter registry. Mutually exclusive
// with WithAdapter.
func WithRegistry(r *dispatch.Registry) Option {
	return func(o *resolvedOptions) { o.registry = r }
}

// WithAdapter is the legacy single-adapter path: the adapter is wrapped
// into a private registry with itself as default. Deprecated in favor of
// WithRegistry; mixing the two fails New.
func WithAdapter(a dispatch.Adapter) Option {
	return func(o *resolvedOptions) { o.adapter = a }
}

// WithLogger sets the structured logger for the Engine.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithRedactor overrides the default redactor applied to adapter args and
// output before they reach the event log or error details.
func WithRedactor(r *redact.Redactor) Option {
	return func(o *resolvedOptions) { o.redactor = r }
}

// WithInstruments attaches OTel instruments recorded by the router and the
// event store.
func WithInstruments(instr *telemetry.Instruments) Option {
	return func(o *resolvedOptions) { o.instruments = instr }
}
