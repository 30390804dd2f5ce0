package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/mcp-tool-shop/nexus-router/dispatch"
	"github.com/mcp-tool-shop/nexus-router/internal/export"
	"github.com/mcp-tool-shop/nexus-router/internal/model"
	"github.com/mcp-tool-shop/nexus-router/internal/replay"
	"github.com/mcp-tool-shop/nexus-router/internal/router"
)

func (s *Server) registerTools() {
	// nexus_run — execute a declarative plan.
	s.mcpServer.AddTool(
		mcplib.NewTool("nexus_run",
			mcplib.WithDescription(`Execute a declarative plan of tool calls through the router.

The request is a JSON object: {goal, mode, policy?, dispatch?, plan_override}.
mode "dry_run" simulates every step without touching the adapter; "apply"
dispatches for real and requires policy.allow_apply=true plus an adapter
with the "apply" capability. Every state transition is recorded into the
append-only event log and the response carries the run summary, per-step
results, and, for completed runs, the content digest.`),
			mcplib.WithDestructiveHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithString("request_json",
				mcplib.Description("The run request as a JSON object string"),
				mcplib.Required(),
			),
		),
		s.handleRun,
	)

	// nexus_inspect — run summaries or one run's event log.
	s.mcpServer.AddTool(
		mcplib.NewTool("nexus_inspect",
			mcplib.WithDescription(`Inspect the event store. With run_id, returns that run and its full ordered event log. Without, returns run summaries with status counts.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithString("run_id", mcplib.Description("Inspect a single run")),
			mcplib.WithString("status", mcplib.Description("Filter listing by status: running, completed, failed")),
			mcplib.WithString("since", mcplib.Description("Only runs created at or after this RFC 3339 timestamp")),
			mcplib.WithNumber("limit", mcplib.Description("Page size for listings"), mcplib.DefaultNumber(50)),
			mcplib.WithNumber("offset", mcplib.Description("Listing offset"), mcplib.DefaultNumber(0)),
		),
		s.handleInspect,
	)

	// nexus_replay — reconstruct and validate a run.
	s.mcpServer.AddTool(
		mcplib.NewTool("nexus_replay",
			mcplib.WithDescription(`Replay a run from its events: reconstructs the step timeline and checks the ordering invariants (gap-free sequence, single terminal event, step bracketing, capability snapshots). With strict=true, any violation makes ok=false.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithString("run_id", mcplib.Description("The run to replay"), mcplib.Required()),
			mcplib.WithBoolean("strict", mcplib.Description("Fail on violations"), mcplib.DefaultBool(true)),
		),
		s.handleReplay,
	)

	// nexus_export — portable bundle.
	s.mcpServer.AddTool(
		mcplib.NewTool("nexus_export",
			mcplib.WithDescription(`Export a run as a self-contained, content-addressed bundle {schema_version, run, events, provenance}. Repeated exports of the same run are byte-identical.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithString("run_id", mcplib.Description("The run to export"), mcplib.Required()),
			mcplib.WithBoolean("include_provenance", mcplib.Description("Include the digest record"), mcplib.DefaultBool(true)),
		),
		s.handleExport,
	)

	// nexus_import — load a bundle.
	s.mcpServer.AddTool(
		mcplib.NewTool("nexus_import",
			mcplib.WithDescription(`Import a bundle into the event store. Conflict modes: reject_on_conflict (default), new_run_id (remaps run_id and event ids), overwrite (atomic replace). The bundle digest and replay invariants are verified before anything is written; the write is a single transaction.`),
			mcplib.WithDestructiveHintAnnotation(true),
			mcplib.WithString("bundle_json",
				mcplib.Description("The bundle as a JSON object string"),
				mcplib.Required(),
			),
			mcplib.WithString("mode",
				mcplib.Description("Conflict mode: reject_on_conflict, new_run_id, overwrite"),
			),
			mcplib.WithString("new_run_id", mcplib.Description("Target run_id for new_run_id mode")),
			mcplib.WithBoolean("verify_digest", mcplib.Description("Verify the bundle digest"), mcplib.DefaultBool(true)),
			mcplib.WithBoolean("verify_replay", mcplib.Description("Verify replay invariants"), mcplib.DefaultBool(true)),
		),
		s.handleImport,
	)

	// nexus_adapters — registry listing.
	s.mcpServer.AddTool(
		mcplib.NewTool("nexus_adapters",
			mcplib.WithDescription(`List registered dispatch adapters with their kinds and capability sets, and the default adapter id. Optionally filter by capability.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithString("capability",
				mcplib.Description("Only adapters declaring this capability: dry_run, apply, timeout, external"),
			),
		),
		s.handleAdapters,
	)
}

func (s *Server) handleRun(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	requestJSON := request.GetString("request_json", "")
	if requestJSON == "" {
		return errorResult("request_json is required"), nil
	}

	var req model.Request
	if err := json.Unmarshal([]byte(requestJSON), &req); err != nil {
		return errorResult(fmt.Sprintf("invalid request_json: %v", err)), nil
	}

	rt := router.New(s.store, s.registry, s.logger, s.redactor, s.instr)
	resp, err := rt.Run(ctx, req)
	if err != nil {
		// Bug-class failures re-surface to the MCP caller as tool errors.
		return errorResult(fmt.Sprintf("run failed: %v", err)), nil
	}

	data, _ := json.MarshalIndent(resp, "", "  ")
	return textResult(data), nil
}

func (s *Server) handleInspect(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	runID := request.GetString("run_id", "")
	if runID != "" {
		run, err := s.store.GetRun(ctx, runID)
		if err != nil {
			return errorResult(fmt.Sprintf("inspect failed: %v", err)), nil
		}
		if run == nil {
			return errorResult(fmt.Sprintf("run %q not found", runID)), nil
		}
		events, err := s.store.Events(ctx, runID)
		if err != nil {
			return errorResult(fmt.Sprintf("inspect failed: %v", err)), nil
		}
		data, _ := json.MarshalIndent(map[string]any{
			"run":    run,
			"events": events,
		}, "", "  ")
		return textResult(data), nil
	}

	runs, counts, err := s.store.ListRuns(ctx, model.RunFilter{
		Status: request.GetString("status", ""),
		Since:  request.GetString("since", ""),
		Limit:  request.GetInt("limit", 50),
		Offset: request.GetInt("offset", 0),
	})
	if err != nil {
		return errorResult(fmt.Sprintf("inspect failed: %v", err)), nil
	}
	data, _ := json.MarshalIndent(map[string]any{
		"runs":   runs,
		"counts": counts,
	}, "", "  ")
	return textResult(data), nil
}

func (s *Server) handleReplay(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	runID := request.GetString("run_id", "")
	if runID == "" {
		return errorResult("run_id is required"), nil
	}
	strict := request.GetBool("strict", true)

	view, err := replay.FromStore(ctx, s.store, runID, strict)
	if err != nil {
		return errorResult(fmt.Sprintf("replay failed: %v", err)), nil
	}
	data, _ := json.MarshalIndent(view, "", "  ")
	return textResult(data), nil
}

func (s *Server) handleExport(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	runID := request.GetString("run_id", "")
	if runID == "" {
		return errorResult("run_id is required"), nil
	}
	includeProvenance := request.GetBool("include_provenance", true)

	bundle, err := export.Run(ctx, s.store, runID, includeProvenance)
	if err != nil {
		return errorResult(fmt.Sprintf("export failed: %v", err)), nil
	}
	data, err := export.Marshal(bundle)
	if err != nil {
		return errorResult(fmt.Sprintf("export failed: %v", err)), nil
	}
	return textResult(data), nil
}

func (s *Server) handleImport(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	bundleJSON := request.GetString("bundle_json", "")
	if bundleJSON == "" {
		return errorResult("bundle_json is required"), nil
	}
	var bundle model.Bundle
	if err := json.Unmarshal([]byte(bundleJSON), &bundle); err != nil {
		return errorResult(fmt.Sprintf("invalid bundle_json: %v", err)), nil
	}

	opts := export.DefaultImportOptions()
	if mode := request.GetString("mode", ""); mode != "" {
		opts.Mode = export.ImportMode(mode)
	}
	opts.NewRunID = request.GetString("new_run_id", "")
	opts.VerifyDigest = request.GetBool("verify_digest", true)
	opts.VerifyReplay = request.GetBool("verify_replay", true)

	result, err := export.Import(ctx, s.store, bundle, opts)
	if err != nil {
		return errorResult(fmt.Sprintf("import failed: %v", err)), nil
	}
	data, _ := json.MarshalIndent(result, "", "  ")
	return textResult(data), nil
}

func (s *Server) handleAdapters(_ context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	capability := request.GetString("capability", "")

	var infos []dispatch.AdapterInfo
	if capability == "" {
		infos = s.registry.ListAdapters()
	} else {
		for _, id := range s.registry.FindByCapability(dispatch.Capability(capability)) {
			if a, err := s.registry.Get(id); err == nil {
				infos = append(infos, dispatch.AdapterInfo{
					AdapterID:    a.AdapterID(),
					AdapterKind:  a.AdapterKind(),
					Capabilities: a.Capabilities().Sorted(),
				})
			}
		}
	}

	data, _ := json.MarshalIndent(map[string]any{
		"adapters":           infos,
		"default_adapter_id": s.registry.DefaultAdapterID(),
		"total":              len(infos),
	}, "", "  ")
	return textResult(data), nil
}
