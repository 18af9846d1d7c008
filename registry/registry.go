package registry

import (
	"sort"
	"sync"

	"github.com/hupe1980/flowmesh/core"
	"github.com/hupe1980/flowmesh/logging"
)

// Factory creates node instances for one registered type.
type Factory struct {
	// New constructs a node instance with a caller-assigned id and config
	// payload. Required.
	New func(id string, data map[string]any) (core.Node, error)
	// Metadata is the type-level metadata shared by all instances. Its
	// Category decides which registration call accepts the factory.
	Metadata core.NodeMetadata
	// Version is the semantic version registered for the type. Empty
	// defaults to "1.0.0".
	Version string
}

// Options holds configuration overrides passed to New().
type Options struct {
	// Logging services.
	Logger logging.Logger
}

// Registry maps node type names to factories. It is an explicit value owned
// by the application's composition root rather than process-global state;
// construct one, register types during startup and pass it by reference.
// Public methods are safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	core   map[string]Factory
	custom map[string]Factory
	logger logging.Logger
}

// New constructs an empty Registry with optional overrides.
func New(optFns ...func(o *Options)) *Registry {
	opts := Options{
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Registry{
		core:   make(map[string]Factory),
		custom: make(map[string]Factory),
		logger: opts.Logger,
	}
}

// Register adds a core-category node type. A factory whose metadata category
// is not core fails with a RegistrationError, as does a duplicate type name
// in either category.
func (r *Registry) Register(nodeType string, factory Factory) error {
	return r.register(nodeType, factory, core.CategoryCore)
}

// RegisterCustom adds a custom-category node type. The mirror-image category
// check of Register applies.
func (r *Registry) RegisterCustom(nodeType string, factory Factory) error {
	return r.register(nodeType, factory, core.CategoryCustom)
}

func (r *Registry) register(nodeType string, factory Factory, want core.Category) error {
	if nodeType == "" {
		return &core.RegistrationError{NodeType: nodeType, Reason: "empty node type"}
	}
	if factory.New == nil {
		return &core.RegistrationError{NodeType: nodeType, Reason: "factory has no constructor"}
	}
	if factory.Metadata.Category != want {
		return &core.RegistrationError{
			NodeType: nodeType,
			Reason:   "category " + string(factory.Metadata.Category) + " cannot be registered as " + string(want),
		}
	}
	if factory.Version == "" {
		factory.Version = "1.0.0"
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.core[nodeType]; ok {
		return &core.RegistrationError{NodeType: nodeType, Reason: "already registered"}
	}
	if _, ok := r.custom[nodeType]; ok {
		return &core.RegistrationError{NodeType: nodeType, Reason: "already registered"}
	}

	if want == core.CategoryCore {
		r.core[nodeType] = factory
	} else {
		r.custom[nodeType] = factory
	}

	r.logger.Debug("node type registered type=%s category=%s version=%s", nodeType, want, factory.Version)

	return nil
}

// Get returns the factory for a node type, checking core types before custom
// ones.
func (r *Registry) Get(nodeType string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if f, ok := r.core[nodeType]; ok {
		return f, true
	}
	f, ok := r.custom[nodeType]
	return f, ok
}

// Has reports whether a node type is registered in either category.
func (r *Registry) Has(nodeType string) bool {
	_, ok := r.Get(nodeType)
	return ok
}

// All returns a snapshot of every registered factory keyed by type name.
func (r *Registry) All() map[string]Factory {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Factory, len(r.core)+len(r.custom))
	for t, f := range r.core {
		out[t] = f
	}
	for t, f := range r.custom {
		out[t] = f
	}
	return out
}

// Types returns the registered type names in lexical order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.core)+len(r.custom))
	for t := range r.core {
		types = append(types, t)
	}
	for t := range r.custom {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Metadata returns an immutable snapshot of every registered type's metadata
// for introspection and UI use. The returned copies are deep; mutating them
// does not affect the registry.
func (r *Registry) Metadata() map[string]core.NodeMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]core.NodeMetadata, len(r.core)+len(r.custom))
	for t, f := range r.core {
		out[t] = f.Metadata.Clone()
	}
	for t, f := range r.custom {
		out[t] = f.Metadata.Clone()
	}
	return out
}
