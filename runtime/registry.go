package runtime

import (
	"gamechain/types"
)

// Module is the contract every registered module satisfies. Registration
// order fixes on_initialize order; on_finalize runs in reverse, per the
// Runtime's block-lifecycle contract.
type Module interface {
	// Name is the module's tag, used for key namespacing and call routing.
	Name() string
	// OnInitialize runs at the start of block n. Modules may stage writes.
	OnInitialize(height uint64) ([]types.Event, error)
	// OnFinalize runs at the end of block n, in reverse registration order.
	OnFinalize(height uint64) ([]types.Event, error)
	// Execute decodes call.Payload per the module's tagged-sum call type
	// and applies it, returning any events it emitted.
	Execute(call types.Call) ([]types.Event, error)
}

// Registry is the catalog of modules a Runtime drives. It owns no storage
// itself: each module owns its own key namespace within the shared Store.
type Registry struct {
	order   []string
	modules map[string]Module
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]Module)}
}

// Register adds a module, appending it to the initialization order. It is
// an error to register the same module name twice.
func (r *Registry) Register(m Module) error {
	name := m.Name()
	if _, exists := r.modules[name]; exists {
		return ErrDuplicateModule(name)
	}
	r.modules[name] = m
	r.order = append(r.order, name)
	return nil
}

// Lookup returns the module registered under name, if any.
func (r *Registry) Lookup(name string) (Module, bool) {
	m, ok := r.modules[name]
	return m, ok
}

// InOrder returns modules in registration order.
func (r *Registry) InOrder() []Module {
	out := make([]Module, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.modules[name])
	}
	return out
}

// InReverseOrder returns modules in reverse registration order, used for
// on_finalize.
func (r *Registry) InReverseOrder() []Module {
	out := make([]Module, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		out = append(out, r.modules[r.order[i]])
	}
	return out
}

// ErrDuplicateModule reports an attempt to register a module name twice.
type ErrDuplicateModule string

func (e ErrDuplicateModule) Error() string { return "module already registered: " + string(e) }
