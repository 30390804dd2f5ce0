package dispatch

import (
	"fmt"
	"reflect"

	"github.com/mcp-tool-shop/nexus-router/fault"
)

// Factory constructs an adapter from a configuration map. Factories are the
// extension point for adapter packages: the host resolves a factory by name
// and registers the result into its Registry. Factories must have no side
// effects beyond constructing the adapter.
type Factory func(config map[string]any) (Adapter, error)

// LoadAdapter invokes a factory and verifies the result satisfies the
// adapter protocol. Every failure is a single well-typed operational error
// with code ADAPTER_LOAD_FAILED carrying the factory reference.
func LoadAdapter(factoryRef string, factory Factory, config map[string]any) (Adapter, error) {
	if factory == nil {
		return nil, loadError(factoryRef, "factory is nil", nil)
	}
	a, err := factory(config)
	if err != nil {
		return nil, loadError(factoryRef, fmt.Sprintf("factory failed: %v", err), err)
	}
	if a == nil {
		return nil, loadError(factoryRef, "factory returned nil adapter", nil)
	}
	if res := ValidateAdapter(a, true); !res.OK {
		return nil, loadError(factoryRef, res.firstFailure(), nil)
	}
	return a, nil
}

func loadError(factoryRef, message string, cause error) error {
	return fault.NewOperational(fault.CodeAdapterLoadFailed,
		"load adapter %q: %s", factoryRef, message).
		WithDetails(map[string]any{"factory_ref": factoryRef}).
		WithCause(cause)
}

// Check is one validation check outcome.
type Check struct {
	ID      string `json:"id"`
	Status  string `json:"status"` // "pass" or "fail"
	Message string `json:"message,omitempty"`
}

// ValidationResult is the outcome of ValidateAdapter.
type ValidationResult struct {
	OK       bool         `json:"ok"`
	Metadata *AdapterInfo `json:"metadata,omitempty"`
	Checks   []Check      `json:"checks"`
}

func (r ValidationResult) firstFailure() string {
	for _, c := range r.Checks {
		if c.Status == "fail" {
			return fmt.Sprintf("%s: %s", c.ID, c.Message)
		}
	}
	return "validation failed"
}

// ValidateAdapter lints an adapter against the protocol without dispatching
// any call. In strict mode, capabilities outside the core-governed set fail
// the CAPABILITIES_VALID check; otherwise they only produce a failing check
// message while the result stays OK.
func ValidateAdapter(a Adapter, strict bool) ValidationResult {
	res := ValidationResult{OK: true}
	check := func(id string, pass bool, failMsg string) {
		c := Check{ID: id, Status: "pass"}
		if !pass {
			c.Status = "fail"
			c.Message = failMsg
		}
		res.Checks = append(res.Checks, c)
	}

	// The protocol members exist on anything satisfying the interface; what
	// can still go wrong in Go is a nil (or typed-nil) value behind it,
	// whose methods would panic on first use.
	if !protocolFieldsUsable(a) {
		check("PROTOCOL_FIELDS", false, "adapter value is nil")
		res.OK = false
		return res
	}
	check("PROTOCOL_FIELDS", true, "")

	id := a.AdapterID()
	check("ADAPTER_ID_FORMAT", id != "", "adapter_id must be a non-empty string")

	kind := a.AdapterKind()
	check("ADAPTER_KIND_FORMAT", kind != "", "adapter_kind must be a non-empty string")

	caps := a.Capabilities()
	var nonstandard []string
	for c := range caps {
		if !StandardCapability(c) {
			nonstandard = append(nonstandard, string(c))
		}
	}
	capsOK := len(nonstandard) == 0
	check("CAPABILITIES_VALID", capsOK,
		fmt.Sprintf("nonstandard capabilities declared: %v", nonstandard))

	for _, c := range res.Checks {
		if c.Status != "fail" {
			continue
		}
		if c.ID == "CAPABILITIES_VALID" && !strict {
			continue
		}
		res.OK = false
	}

	if res.OK {
		res.Metadata = &AdapterInfo{
			AdapterID:    id,
			AdapterKind:  kind,
			Capabilities: caps.Sorted(),
		}
	}
	return res
}

func protocolFieldsUsable(a Adapter) bool {
	if a == nil {
		return false
	}
	v := reflect.ValueOf(a)
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Func:
		return !v.IsNil()
	}
	return true
}
