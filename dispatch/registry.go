package dispatch

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mcp-tool-shop/nexus-router/fault"
)

// AdapterInfo is the listing view of a registered adapter.
type AdapterInfo struct {
	AdapterID    string   `json:"adapter_id"`
	AdapterKind  string   `json:"adapter_kind"`
	Capabilities []string `json:"capabilities"`
}

// Registry maps adapter ids to adapters and designates one as the default.
// There is no process-wide registry: each host constructs its own and hands
// it to the router.
type Registry struct {
	mu        sync.RWMutex
	adapters  map[string]Adapter
	defaultID string
}

// NewRegistry creates an empty registry with the given default adapter id.
// The default must be registered before GetDefault can resolve it.
func NewRegistry(defaultAdapterID string) *Registry {
	return &Registry{
		adapters:  make(map[string]Adapter),
		defaultID: defaultAdapterID,
	}
}

// Register adds an adapter under its AdapterID. Re-registering the same
// instance is a no-op; registering a different instance under an existing
// id fails.
func (r *Registry) Register(a Adapter) error {
	if a == nil {
		return fmt.Errorf("dispatch: register nil adapter")
	}
	id := a.AdapterID()
	if id == "" {
		return fmt.Errorf("dispatch: adapter has empty adapter_id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.adapters[id]; ok {
		if existing == a {
			return nil
		}
		return fmt.Errorf("dispatch: adapter %q already registered with a different instance", id)
	}
	r.adapters[id] = a
	return nil
}

// Get resolves an adapter by id, failing with UNKNOWN_ADAPTER if absent.
func (r *Registry) Get(adapterID string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[adapterID]
	if !ok {
		return nil, fault.NewOperational(fault.CodeUnknownAdapter,
			"adapter %q is not registered", adapterID).
			WithDetails(map[string]any{
				"adapter_id":    adapterID,
				"available_ids": r.listIDsLocked(),
			})
	}
	return a, nil
}

// GetDefault resolves the default adapter, failing if the default id was
// never registered.
func (r *Registry) GetDefault() (Adapter, error) {
	return r.Get(r.defaultID)
}

// DefaultAdapterID returns the configured default id.
func (r *Registry) DefaultAdapterID() string {
	return r.defaultID
}

// ListIDs returns the registered ids in sorted order.
func (r *Registry) ListIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listIDsLocked()
}

func (r *Registry) listIDsLocked() []string {
	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ListAdapters returns id, kind and capabilities for every registered
// adapter, sorted by id.
func (r *Registry) ListAdapters() []AdapterInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]AdapterInfo, 0, len(r.adapters))
	for _, id := range r.listIDsLocked() {
		a := r.adapters[id]
		infos = append(infos, AdapterInfo{
			AdapterID:    a.AdapterID(),
			AdapterKind:  a.AdapterKind(),
			Capabilities: a.Capabilities().Sorted(),
		})
	}
	return infos
}

// FindByCapability returns the sorted ids of adapters declaring cap.
func (r *Registry) FindByCapability(cap Capability) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for id, a := range r.adapters {
		if a.Capabilities().Has(cap) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// HasCapability reports whether the adapter with the given id declares cap.
// Unknown ids report false.
func (r *Registry) HasCapability(adapterID string, cap Capability) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[adapterID]
	return ok && a.Capabilities().Has(cap)
}

// RequireCapability fails with CAPABILITY_MISSING when the adapter does not
// declare cap, and with UNKNOWN_ADAPTER when the id is unregistered.
func (r *Registry) RequireCapability(adapterID string, cap Capability) error {
	a, err := r.Get(adapterID)
	if err != nil {
		return err
	}
	caps := a.Capabilities()
	if !caps.Has(cap) {
		return fault.NewOperational(fault.CodeCapabilityMissing,
			"adapter %q lacks required capability %q", adapterID, cap).
			WithDetails(map[string]any{
				"adapter_id":           adapterID,
				"required_capability":  string(cap),
				"adapter_capabilities": caps.Sorted(),
			})
	}
	return nil
}
