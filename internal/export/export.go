// Package export produces portable run bundles and imports them into other
// stores, verified by digest and replay.
package export

import (
	"context"

	"github.com/mcp-tool-shop/nexus-router/fault"
	"github.com/mcp-tool-shop/nexus-router/internal/canonical"
	"github.com/mcp-tool-shop/nexus-router/internal/model"
	"github.com/mcp-tool-shop/nexus-router/internal/store"
)

// Run exports a run as a self-contained bundle. Repeated exports of the
// same run produce identical bundles: nothing time- or host-dependent is
// included.
func Run(ctx context.Context, s *store.Store, runID string, includeProvenance bool) (model.Bundle, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return model.Bundle{}, err
	}
	if run == nil {
		return model.Bundle{}, fault.NewOperational(fault.CodeRunNotFound,
			"run %q not found", runID)
	}

	events, err := s.Events(ctx, runID)
	if err != nil {
		return model.Bundle{}, err
	}
	if events == nil {
		events = []model.Event{}
	}

	bundle := model.Bundle{
		SchemaVersion: model.BundleSchemaVersion,
		Run:           *run,
		Events:        events,
	}
	if includeProvenance {
		prov, err := canonical.Provenance(*run, events)
		if err != nil {
			return model.Bundle{}, err
		}
		bundle.Provenance = &prov
	}
	return bundle, nil
}

// Marshal serializes a bundle in canonical form, the on-disk and on-wire
// representation.
func Marshal(bundle model.Bundle) ([]byte, error) {
	return canonical.Marshal(bundle)
}
