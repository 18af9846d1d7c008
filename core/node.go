package core

import "context"

// Category classifies a node type as built-in or user-provided. A node type is
// registered in exactly one category; registering it through the wrong
// registry call is a configuration error caught at registration time.
type Category string

const (
	// CategoryCore marks node types shipped with the framework.
	CategoryCore Category = "core"
	// CategoryCustom marks node types provided by applications.
	CategoryCustom Category = "custom"
)

// NodeMetadata describes a node type: its category, human readable labeling
// and typed input/output ports. Metadata is computed once at node construction
// and frozen for the node's lifetime; accessors hand out deep copies so callers
// cannot mutate the original.
type NodeMetadata struct {
	Category    Category `json:"category"`
	Label       string   `json:"label"`
	Description string   `json:"description,omitempty"`
	Inputs      []Port   `json:"inputs"`
	Outputs     []Port   `json:"outputs"`
}

// Clone returns a deep copy of the metadata.
func (m NodeMetadata) Clone() NodeMetadata {
	c := m
	c.Inputs = ClonePorts(m.Inputs)
	c.Outputs = ClonePorts(m.Outputs)
	return c
}

// Input returns the input port with the given id, or false if absent.
func (m NodeMetadata) Input(id string) (Port, bool) {
	for _, p := range m.Inputs {
		if p.ID == id {
			return p.Clone(), true
		}
	}
	return Port{}, false
}

// Output returns the output port with the given id, or false if absent.
func (m NodeMetadata) Output(id string) (Port, bool) {
	for _, p := range m.Outputs {
		if p.ID == id {
			return p.Clone(), true
		}
	}
	return Port{}, false
}

// Node defines the core interface that all executable units in FlowMesh
// implement.
//
// Nodes are the primary processing units of the framework. They are created
// when a flow is deserialized (or explicitly constructed), communicate with
// peers through the Bus, and are driven by an agent runtime that enforces
// timeout, retry and lifecycle discipline.
//
// Implementations must:
//   - Respect context cancellation so timeouts can abort in-flight work
//   - Treat Metadata as frozen after construction
//   - Never mutate the config map in place; updates replace it wholesale
type Node interface {
	// ID returns the caller-assigned instance identifier.
	ID() string
	// Type returns the registered type name shared by all instances.
	Type() string
	// Metadata returns a copy of the frozen node metadata.
	Metadata() NodeMetadata
	// Config returns a copy of the node's configuration payload.
	Config() map[string]any
	// Execute runs the node's work for one input and returns its output.
	Execute(ctx context.Context, input any) (any, error)
}

// Initializer is implemented by nodes that need asynchronous setup before
// their first execution. There is no matching teardown hook; nodes are
// destroyed by being dropped.
type Initializer interface {
	Init(ctx context.Context) error
}

// HandleProvider is implemented by nodes whose exposed ports are a function
// of mutable state rather than frozen metadata, such as a group node
// projecting the handles of its internal flow. Connection validation prefers
// Handles over Metadata when a node implements it.
type HandleProvider interface {
	Handles() Handles
}

// InputValidator is implemented by nodes that check their input before
// Execute runs. A non-nil error aborts the execution attempt with a
// ValidationError.
type InputValidator interface {
	ValidateInput(input any) error
}

// OutputValidator is implemented by nodes that check their output after
// Execute returns.
type OutputValidator interface {
	ValidateOutput(output any) error
}

// BusAttacher is implemented by nodes that register message handlers on a
// Bus. The runtime calls Attach once when the node is registered with an
// agent that carries a bus.
type BusAttacher interface {
	Attach(bus Bus) error
}
