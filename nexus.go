// Package nexus is the public API for embedding the nexus-router core: an
// event-sourced tool-execution router that drives declarative plans through
// pluggable dispatch adapters under capability and policy governance.
//
// Hosts construct an Engine, hand it an adapter registry, and execute runs:
//
//	reg := dispatch.NewRegistry("null")
//	reg.Register(dispatch.NewNullAdapter(""))
//	eng, err := nexus.New(
//	    nexus.WithStorePath("nexus.db"),
//	    nexus.WithRegistry(reg),
//	    nexus.WithLogger(logger),
//	)
//	if err != nil { ... }
//	defer eng.Close()
//	resp, err := eng.Run(ctx, nexus.Request{Goal: "demo", Mode: nexus.ModeDryRun})
//
// The import graph enforces a strict no-cycle rule: nexus (root) imports
// internal/*, but internal/* never imports nexus (root). Pass-through types
// (Request, Response, Bundle, ...) are exposed as aliases so that bundles
// survive export/import byte for byte.
package nexus

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/mcp-tool-shop/nexus-router/dispatch"
	"github.com/mcp-tool-shop/nexus-router/internal/export"
	"github.com/mcp-tool-shop/nexus-router/internal/model"
	"github.com/mcp-tool-shop/nexus-router/internal/replay"
	"github.com/mcp-tool-shop/nexus-router/internal/router"
	"github.com/mcp-tool-shop/nexus-router/internal/store"
)

// Engine owns one event store and one adapter registry and executes runs
// against them. Engines are safe for concurrent use across distinct runs;
// each Run call drives its own router instance.
type Engine struct {
	store    *store.Store
	registry *dispatch.Registry
	logger   *slog.Logger
	opts     resolvedOptions
}

// New constructs an Engine. Supplying both WithAdapter and WithRegistry is
// a configuration error; with neither, the Engine registers the built-in
// null adapter as default.
func New(opts ...Option) (*Engine, error) {
	o := resolvedOptions{storePath: store.MemoryPath}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	if o.adapter != nil && o.registry != nil {
		return nil, fmt.Errorf("nexus: WithAdapter and WithRegistry are mutually exclusive; register the adapter into the registry instead")
	}

	registry := o.registry
	switch {
	case registry != nil:
		// Host-provided registry is used as-is.
	case o.adapter != nil:
		// Legacy single-adapter path: wrap into a private registry.
		registry = dispatch.NewRegistry(o.adapter.AdapterID())
		if err := registry.Register(o.adapter); err != nil {
			return nil, fmt.Errorf("nexus: wrap single adapter: %w", err)
		}
	default:
		registry = dispatch.NewRegistry("null")
		if err := registry.Register(dispatch.NewNullAdapter("")); err != nil {
			return nil, fmt.Errorf("nexus: register null adapter: %w", err)
		}
	}

	s, err := store.Open(o.storePath, logger, o.instruments)
	if err != nil {
		return nil, err
	}

	return &Engine{
		store:    s,
		registry: registry,
		logger:   logger,
		opts:     o,
	}, nil
}

// Close releases the event store.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Registry returns the adapter registry the Engine dispatches through.
func (e *Engine) Registry() *dispatch.Registry { return e.registry }

// Run executes one request to a terminal event. Operational terminal
// failures are reported in Response.Error with a nil error; operational step
// failures are counted in the summary and leave Response.Error nil.
// Bug-class failures are recorded and returned as a non-nil error, as is
// RUN_EXISTS when the request's run_id is already taken.
func (e *Engine) Run(ctx context.Context, req Request) (Response, error) {
	rt := router.New(e.store, e.registry, e.logger, e.opts.redactor, e.opts.instruments)
	return rt.Run(ctx, req)
}

// RunMany executes independent requests concurrently, one router per run.
// Runs never share mutable state, so parallelism across run_ids is safe.
// The first bug-class failure cancels the remaining runs.
func (e *Engine) RunMany(ctx context.Context, reqs []Request) ([]Response, error) {
	responses := make([]Response, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	for i, req := range reqs {
		g.Go(func() error {
			resp, err := e.Run(gctx, req)
			if err != nil {
				return err
			}
			responses[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return responses, nil
}

// Replay reconstructs a run view from its events and validates the
// ordering invariants. With strict unset, violations are reported but the
// view stays OK.
func (e *Engine) Replay(ctx context.Context, runID string, strict bool) (ReplayView, error) {
	return replay.FromStore(ctx, e.store, runID, strict)
}

// Export produces a portable bundle for a run.
func (e *Engine) Export(ctx context.Context, runID string, includeProvenance bool) (Bundle, error) {
	return export.Run(ctx, e.store, runID, includeProvenance)
}

// Import loads a bundle into the Engine's store. The write is a single
// transaction; verification failures leave the store unchanged.
func (e *Engine) Import(ctx context.Context, bundle Bundle, opts ImportOptions) (ImportResult, error) {
	return export.Import(ctx, e.store, bundle, opts)
}

// Inspect returns run summaries, or one run with its full event log when
// query.RunID is set.
func (e *Engine) Inspect(ctx context.Context, query InspectQuery) (InspectResult, error) {
	if query.RunID != "" {
		run, err := e.store.GetRun(ctx, query.RunID)
		if err != nil {
			return InspectResult{}, err
		}
		if run == nil {
			return InspectResult{}, nil
		}
		events, err := e.store.Events(ctx, query.RunID)
		if err != nil {
			return InspectResult{}, err
		}
		return InspectResult{Run: run, Events: events}, nil
	}

	runs, counts, err := e.store.ListRuns(ctx, model.RunFilter{
		Status: query.Status,
		Since:  query.Since,
		Limit:  query.Limit,
		Offset: query.Offset,
	})
	if err != nil {
		return InspectResult{}, err
	}
	return InspectResult{Runs: runs, Counts: counts}, nil
}

// ListAdapters returns the registered adapters, optionally filtered by
// capability, plus the default adapter id.
func (e *Engine) ListAdapters(capability string) AdapterListing {
	var infos []dispatch.AdapterInfo
	if capability == "" {
		infos = e.registry.ListAdapters()
	} else {
		for _, id := range e.registry.FindByCapability(dispatch.Capability(capability)) {
			if a, err := e.registry.Get(id); err == nil {
				infos = append(infos, dispatch.AdapterInfo{
					AdapterID:    a.AdapterID(),
					AdapterKind:  a.AdapterKind(),
					Capabilities: a.Capabilities().Sorted(),
				})
			}
		}
	}
	return AdapterListing{
		Adapters:         infos,
		DefaultAdapterID: e.registry.DefaultAdapterID(),
		Total:            len(infos),
	}
}
