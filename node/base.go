package node

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/flowmesh/core"
)

// BaseNode bundles the shared state every node carries: a caller-assigned id,
// the registered type name, metadata frozen at construction, a config payload
// that is only ever replaced wholesale, and the node's message handler wiring.
// Embed it in concrete node implementations and supply an Execute method to
// satisfy the core.Node interface. All exported methods are goroutine-safe
// unless otherwise documented.
type BaseNode struct {
	id       string
	nodeType string
	metadata core.NodeMetadata

	mu       sync.RWMutex
	config   map[string]any
	bus      core.Bus
	handlers map[string]core.Handler
	unsubs   []core.UnsubscribeFunc
}

// NewBaseNode constructs a BaseNode, deep-copying config and metadata so the
// node's view of both is insulated from later caller mutation.
func NewBaseNode(id, nodeType string, config map[string]any, metadata core.NodeMetadata) BaseNode {
	return BaseNode{
		id:       id,
		nodeType: nodeType,
		metadata: metadata.Clone(),
		config:   cloneConfig(config),
		handlers: make(map[string]core.Handler),
	}
}

// Spec declares a node type: its registered name, labeling and ports. Static
// ports list what every instance exposes; DynamicPorts, when set, derives
// additional ports from an instance's config. The resulting metadata is
// computed once per instance and frozen.
type Spec struct {
	Type        string
	Category    core.Category
	Label       string
	Description string
	Inputs      []core.Port
	Outputs     []core.Port
	// DynamicPorts returns extra input and output ports for a config. Ports
	// whose ids collide with static ones are ignored.
	DynamicPorts func(config map[string]any) (inputs, outputs []core.Port)
}

// Metadata computes the frozen metadata a node built from this spec and
// config carries.
func (s Spec) Metadata(config map[string]any) core.NodeMetadata {
	meta := core.NodeMetadata{
		Category:    s.Category,
		Label:       s.Label,
		Description: s.Description,
		Inputs:      core.ClonePorts(s.Inputs),
		Outputs:     core.ClonePorts(s.Outputs),
	}

	if s.DynamicPorts != nil {
		ins, outs := s.DynamicPorts(config)
		meta.Inputs = appendPorts(meta.Inputs, ins)
		meta.Outputs = appendPorts(meta.Outputs, outs)
	}
	return meta
}

// NewNode constructs a BaseNode for this spec, computing its metadata from
// the given config.
func (s Spec) NewNode(id string, config map[string]any) BaseNode {
	return NewBaseNode(id, s.Type, config, s.Metadata(config))
}

func appendPorts(static, extra []core.Port) []core.Port {
	for _, p := range extra {
		duplicate := false
		for _, existing := range static {
			if existing.ID == p.ID {
				duplicate = true
				break
			}
		}
		if !duplicate {
			static = append(static, p.Clone())
		}
	}
	return static
}

// ID returns the caller-assigned instance identifier.
func (b *BaseNode) ID() string { return b.id }

// Type returns the registered type name shared by all instances.
func (b *BaseNode) Type() string { return b.nodeType }

// Metadata returns a copy of the frozen node metadata.
func (b *BaseNode) Metadata() core.NodeMetadata { return b.metadata.Clone() }

// Config returns a copy of the node's configuration payload.
func (b *BaseNode) Config() map[string]any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return cloneConfig(b.config)
}

// SetConfig replaces the configuration payload wholesale. The previous map is
// never mutated in place, so captured references stay valid.
func (b *BaseNode) SetConfig(config map[string]any) {
	clone := cloneConfig(config)
	b.mu.Lock()
	b.config = clone
	b.mu.Unlock()
}

// Handles returns the input and output ports this node exposes. For BaseNode
// these mirror the frozen metadata; nodes with computed ports override this.
func (b *BaseNode) Handles() core.Handles {
	return core.Handles{
		Inputs:  core.ClonePorts(b.metadata.Inputs),
		Outputs: core.ClonePorts(b.metadata.Outputs),
	}
}

// Inputs returns a copy of the node's input ports.
func (b *BaseNode) Inputs() []core.Port { return core.ClonePorts(b.metadata.Inputs) }

// Outputs returns a copy of the node's output ports.
func (b *BaseNode) Outputs() []core.Port { return core.ClonePorts(b.metadata.Outputs) }

// OnMessage records a handler for a message type. When the node is already
// attached to a bus the handler is subscribed immediately; otherwise Attach
// subscribes every recorded handler at once.
func (b *BaseNode) OnMessage(messageType string, handler core.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[messageType] = handler
	if b.bus != nil {
		b.unsubs = append(b.unsubs, b.bus.Subscribe(messageType, handler))
	}
}

// Attach connects the node to a bus and subscribes its recorded message
// handlers. Attaching twice is an error; Detach first.
func (b *BaseNode) Attach(bus core.Bus) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bus != nil {
		return fmt.Errorf("node %q is already attached to a bus", b.id)
	}
	b.bus = bus
	for messageType, handler := range b.handlers {
		b.unsubs = append(b.unsubs, bus.Subscribe(messageType, handler))
	}
	return nil
}

// Detach unsubscribes every handler and disconnects the node from its bus.
// Detaching an unattached node is a no-op.
func (b *BaseNode) Detach() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, unsubscribe := range b.unsubs {
		unsubscribe()
	}
	b.unsubs = nil
	b.bus = nil
}

// Send publishes a message from this node to a target node through the
// attached bus and returns the minted message id.
func (b *BaseNode) Send(ctx context.Context, targetID, messageType string, payload any) (string, error) {
	b.mu.RLock()
	bus := b.bus
	b.mu.RUnlock()

	if bus == nil {
		return "", fmt.Errorf("node %q is not attached to a bus", b.id)
	}
	return bus.Send(ctx, core.NewMessage(messageType, b.id, targetID, payload))
}

// Bus returns the attached bus, or nil when the node is detached.
func (b *BaseNode) Bus() core.Bus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bus
}

func cloneConfig(config map[string]any) map[string]any {
	out := make(map[string]any, len(config))
	for k, v := range config {
		out[k] = v
	}
	return out
}
