package nexus_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nexus "github.com/mcp-tool-shop/nexus-router"
	"github.com/mcp-tool-shop/nexus-router/dispatch"
	"github.com/mcp-tool-shop/nexus-router/fault"
)

func newEngine(t *testing.T, opts ...nexus.Option) *nexus.Engine {
	t.Helper()
	eng, err := nexus.New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := eng.Close(); err != nil {
			t.Errorf("close engine: %v", err)
		}
	})
	return eng
}

func TestNewDefaultsToNullRegistry(t *testing.T) {
	eng := newEngine(t)

	listing := eng.ListAdapters("")
	assert.Equal(t, "null", listing.DefaultAdapterID)
	require.Equal(t, 1, listing.Total)
	assert.Equal(t, "null", listing.Adapters[0].AdapterID)
}

func TestNewRejectsAdapterPlusRegistry(t *testing.T) {
	reg := dispatch.NewRegistry("fake")
	require.NoError(t, reg.Register(dispatch.NewFakeAdapter("fake")))

	_, err := nexus.New(
		nexus.WithRegistry(reg),
		nexus.WithAdapter(dispatch.NewNullAdapter("")),
	)
	require.Error(t, err, "mixing the legacy single-adapter path with a registry is a hard configuration failure")
}

func TestLegacySingleAdapterPath(t *testing.T) {
	fake := dispatch.NewFakeAdapter("solo")
	eng := newEngine(t, nexus.WithAdapter(fake))

	resp, err := eng.Run(context.Background(), nexus.Request{
		Goal: "legacy",
		Mode: nexus.ModeDryRun,
	})
	require.NoError(t, err)
	assert.Equal(t, "solo", resp.Dispatch.AdapterID)
	assert.Equal(t, "default", resp.Dispatch.SelectionSource)
}

func TestEngineRunAndInspect(t *testing.T) {
	eng := newEngine(t)
	ctx := context.Background()

	resp, err := eng.Run(ctx, nexus.Request{
		Goal: "inspect me",
		Mode: nexus.ModeDryRun,
		PlanOverride: []nexus.Step{
			{StepID: "s1", Call: nexus.Call{Tool: "t", Method: "m", Args: map[string]any{}}},
		},
	})
	require.NoError(t, err)

	single, err := eng.Inspect(ctx, nexus.InspectQuery{RunID: resp.Run.RunID})
	require.NoError(t, err)
	require.NotNil(t, single.Run)
	assert.Equal(t, "inspect me", single.Run.Goal)
	assert.NotEmpty(t, single.Events)

	listing, err := eng.Inspect(ctx, nexus.InspectQuery{})
	require.NoError(t, err)
	assert.Len(t, listing.Runs, 1)
	assert.Equal(t, 1, listing.Counts.Completed)
}

func TestEngineInspectMissingRun(t *testing.T) {
	eng := newEngine(t)
	res, err := eng.Inspect(context.Background(), nexus.InspectQuery{RunID: "ghost"})
	require.NoError(t, err)
	assert.Nil(t, res.Run)
}

func TestEngineReplay(t *testing.T) {
	eng := newEngine(t)
	ctx := context.Background()

	resp, err := eng.Run(ctx, nexus.Request{Goal: "replayable", Mode: nexus.ModeDryRun})
	require.NoError(t, err)

	view, err := eng.Replay(ctx, resp.Run.RunID, true)
	require.NoError(t, err)
	assert.True(t, view.OK)
	assert.Empty(t, view.Violations)
	assert.Equal(t, "RUN_COMPLETED", view.Terminal)
}

func TestEngineExportImportRoundTrip(t *testing.T) {
	src := newEngine(t)
	dst := newEngine(t)
	ctx := context.Background()

	resp, err := src.Run(ctx, nexus.Request{
		Goal: "portable",
		Mode: nexus.ModeDryRun,
		PlanOverride: []nexus.Step{
			{StepID: "s1", Call: nexus.Call{Tool: "t", Method: "m", Args: map[string]any{}}},
		},
	})
	require.NoError(t, err)

	bundle, err := src.Export(ctx, resp.Run.RunID, true)
	require.NoError(t, err)
	require.NotNil(t, bundle.Provenance)

	result, err := dst.Import(ctx, bundle, nexus.DefaultImportOptions())
	require.NoError(t, err)
	assert.True(t, result.ReplayOK)

	reExported, err := dst.Export(ctx, result.ImportedRunID, true)
	require.NoError(t, err)
	assert.Equal(t, bundle.Provenance.Digest, reExported.Provenance.Digest,
		"import(export(R)) preserves the content digest")

	view, err := dst.Replay(ctx, result.ImportedRunID, true)
	require.NoError(t, err)
	assert.True(t, view.OK)
}

func TestEngineRunDigestMatchesExport(t *testing.T) {
	eng := newEngine(t)
	ctx := context.Background()

	resp, err := eng.Run(ctx, nexus.Request{Goal: "digest", Mode: nexus.ModeDryRun})
	require.NoError(t, err)
	require.NotNil(t, resp.Provenance)

	bundle, err := eng.Export(ctx, resp.Run.RunID, true)
	require.NoError(t, err)
	assert.Equal(t, resp.Provenance.Digest, bundle.Provenance.Digest)
}

func TestEngineRunMany(t *testing.T) {
	eng := newEngine(t)
	ctx := context.Background()

	reqs := make([]nexus.Request, 8)
	for i := range reqs {
		reqs[i] = nexus.Request{
			Goal: fmt.Sprintf("parallel-%d", i),
			Mode: nexus.ModeDryRun,
			PlanOverride: []nexus.Step{
				{StepID: "s1", Call: nexus.Call{Tool: "t", Method: "m", Args: map[string]any{}}},
			},
		}
	}

	responses, err := eng.RunMany(ctx, reqs)
	require.NoError(t, err)
	require.Len(t, responses, len(reqs))

	seen := map[string]struct{}{}
	for _, resp := range responses {
		assert.Equal(t, nexus.RunStatusCompleted, resp.Run.Status)
		seen[resp.Run.RunID] = struct{}{}

		view, err := eng.Replay(ctx, resp.Run.RunID, true)
		require.NoError(t, err)
		assert.True(t, view.OK, "violations: %v", view.Violations)
	}
	assert.Len(t, seen, len(reqs), "every run gets its own run_id")
}

func TestEngineOperationalErrorSurfacesInResponse(t *testing.T) {
	eng := newEngine(t, nexus.WithAdapter(dispatch.NewFakeAdapter("")))

	resp, err := eng.Run(context.Background(), nexus.Request{
		Goal:   "denied",
		Mode:   nexus.ModeApply,
		Policy: &nexus.Policy{AllowApply: false},
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, fault.CodePolicyDenied, resp.Error.ErrorCode)
}

func TestEngineListAdaptersByCapability(t *testing.T) {
	reg := dispatch.NewRegistry("null")
	require.NoError(t, reg.Register(dispatch.NewNullAdapter("")))
	require.NoError(t, reg.Register(dispatch.NewFakeAdapter("fake")))
	eng := newEngine(t, nexus.WithRegistry(reg))

	applyOnly := eng.ListAdapters("apply")
	require.Equal(t, 1, applyOnly.Total)
	assert.Equal(t, "fake", applyOnly.Adapters[0].AdapterID)
}

func TestEngineFileBackedStore(t *testing.T) {
	path := t.TempDir() + "/nexus.db"
	ctx := context.Background()

	eng, err := nexus.New(nexus.WithStorePath(path))
	require.NoError(t, err)
	resp, err := eng.Run(ctx, nexus.Request{Goal: "persist", Mode: nexus.ModeDryRun})
	require.NoError(t, err)
	require.NoError(t, eng.Close())

	// Reopen and find the run still there.
	reopened := newEngine(t, nexus.WithStorePath(path))
	res, err := reopened.Inspect(ctx, nexus.InspectQuery{RunID: resp.Run.RunID})
	require.NoError(t, err)
	require.NotNil(t, res.Run)
	assert.Equal(t, "persist", res.Run.Goal)
}
