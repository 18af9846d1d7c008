package graph

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/hupe1980/flowmesh/core"
	"github.com/hupe1980/flowmesh/internal/util"
	"github.com/hupe1980/flowmesh/logging"
	"github.com/hupe1980/flowmesh/node"
	"github.com/hupe1980/flowmesh/registry"
)

// Options holds configuration overrides passed to NewManager().
type Options struct {
	// Registry resolves node types during validation and instantiation.
	Registry *registry.VersionedRegistry
	// Logging services.
	Logger logging.Logger
}

// Manager converts between live node instances and the persistable flow
// form. All methods are safe for concurrent use.
type Manager struct {
	registry *registry.VersionedRegistry
	logger   logging.Logger
}

// NewManager constructs a Manager with optional overrides.
func NewManager(optFns ...func(o *Options)) *Manager {
	opts := Options{
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Registry == nil {
		opts.Registry = registry.NewVersioned()
	}

	return &Manager{
		registry: opts.Registry,
		logger:   opts.Logger,
	}
}

// FlowInfo carries the identifying fields of a flow being serialized.
type FlowInfo struct {
	ID          string
	Name        string
	Description string
	Version     string
}

// Serialize converts live node instances and their edges into a persistable
// flow. Each node's current handles are snapshotted so types with computed
// ports validate correctly on the way back in; visual layout is the caller's
// concern and is not serialized. Node ids must be unique.
func (m *Manager) Serialize(info FlowInfo, nodes []core.Node, edges []core.Edge) (*core.Flow, error) {
	if info.ID == "" {
		info.ID = util.NewID()
	}
	if info.Version == "" {
		info.Version = "1.0.0"
	}

	now := time.Now().UTC()
	flow := &core.Flow{
		ID:          info.ID,
		Name:        info.Name,
		Description: info.Description,
		Version:     info.Version,
		Nodes:       make([]core.FlowNode, 0, len(nodes)),
		Edges:       make([]core.Edge, 0, len(edges)),
		Meta:        core.FlowMeta{Created: now, Modified: now},
	}

	seen := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		if n == nil {
			return nil, &core.ValidationError{Kind: "node", Reason: "nil node instance"}
		}
		if seen[n.ID()] {
			return nil, &core.ValidationError{Kind: "node", ID: n.ID(), Reason: "duplicate node id"}
		}
		seen[n.ID()] = true

		handles := node.HandlesOf(n).Clone()
		fn := core.FlowNode{
			ID:      n.ID(),
			Type:    n.Type(),
			Data:    n.Config(),
			Handles: &handles,
		}
		if version, ok := m.registry.VersionOf(n.Type()); ok {
			fn.Version = version
		}
		flow.Nodes = append(flow.Nodes, fn)
	}

	for _, e := range edges {
		flow.Edges = append(flow.Edges, e.Clone())
	}

	m.logger.Debug("flow serialized flow_id=%s nodes=%d edges=%d", flow.ID, len(flow.Nodes), len(flow.Edges))
	return flow, nil
}

// Validate checks the complete flow without instantiating anything: flow
// identity, node shape and types, registry version compatibility, edge
// endpoints, handle existence and dataType matches, and per-handle
// connection rules including connection limits. The first violation is
// returned as a ValidationError naming the offending node or edge.
func (m *Manager) Validate(flow *core.Flow) error {
	if flow == nil {
		return &core.ValidationError{Kind: "flow", Reason: "flow is nil"}
	}
	if flow.ID == "" {
		return &core.ValidationError{Kind: "flow", Reason: "missing flow id"}
	}
	if flow.Version == "" {
		return &core.ValidationError{Kind: "flow", ID: flow.ID, Reason: "missing flow version"}
	}

	nodeIDs := make(map[string]bool, len(flow.Nodes))
	for i := range flow.Nodes {
		fn := &flow.Nodes[i]
		if fn.ID == "" {
			return &core.ValidationError{Kind: "node", Reason: "missing node id"}
		}
		if nodeIDs[fn.ID] {
			return &core.ValidationError{Kind: "node", ID: fn.ID, Reason: "duplicate node id"}
		}
		nodeIDs[fn.ID] = true

		if fn.Type == "" {
			return &core.ValidationError{Kind: "node", ID: fn.ID, Reason: "missing node type"}
		}
		if !m.registry.Has(fn.Type) {
			return &core.ValidationError{Kind: "node", ID: fn.ID, Reason: fmt.Sprintf("unknown node type %q", fn.Type)}
		}
		if fn.Version != "" {
			registered, _ := m.registry.VersionOf(fn.Type)
			if !m.registry.Compatible(registered, fn.Version) {
				return &core.ValidationError{
					Kind:   "node",
					ID:     fn.ID,
					Reason: fmt.Sprintf("type %q version %s is incompatible with requested %s", fn.Type, registered, fn.Version),
				}
			}
		}
	}

	edgeIDs := make(map[string]bool, len(flow.Edges))
	connections := make(map[string]int)
	for i := range flow.Edges {
		e := &flow.Edges[i]
		if e.ID == "" {
			return &core.ValidationError{Kind: "edge", Reason: "missing edge id"}
		}
		if edgeIDs[e.ID] {
			return &core.ValidationError{Kind: "edge", ID: e.ID, Reason: "duplicate edge id"}
		}
		edgeIDs[e.ID] = true

		source, ok := flow.Node(e.Source)
		if !ok {
			return &core.ValidationError{Kind: "edge", ID: e.ID, Reason: fmt.Sprintf("source node %q does not exist", e.Source)}
		}
		target, ok := flow.Node(e.Target)
		if !ok {
			return &core.ValidationError{Kind: "edge", ID: e.ID, Reason: fmt.Sprintf("target node %q does not exist", e.Target)}
		}

		if err := node.ValidateEdgeHandles(*e, m.handlesFor(source).Outputs, m.handlesFor(target).Inputs, source.Type, target.Type); err != nil {
			return err
		}

		connections[e.Source+"\x00"+e.SourceHandle+"\x00out"]++
		connections[e.Target+"\x00"+e.TargetHandle+"\x00in"]++
	}

	for i := range flow.Nodes {
		fn := &flow.Nodes[i]
		handles := m.handlesFor(fn)
		if err := checkConnectionLimits(fn.ID, handles.Outputs, "out", connections); err != nil {
			return err
		}
		if err := checkConnectionLimits(fn.ID, handles.Inputs, "in", connections); err != nil {
			return err
		}
	}

	return nil
}

// handlesFor resolves the ports a flow node exposes: the serialized snapshot
// when present, the registry's type-level metadata otherwise.
func (m *Manager) handlesFor(fn *core.FlowNode) core.Handles {
	if fn.Handles != nil {
		return *fn.Handles
	}
	if f, ok := m.registry.Get(fn.Type); ok {
		return core.Handles{Inputs: f.Metadata.Inputs, Outputs: f.Metadata.Outputs}
	}
	return core.Handles{}
}

func checkConnectionLimits(nodeID string, ports []core.Port, side string, connections map[string]int) error {
	for _, p := range ports {
		if p.Rules == nil || p.Rules.MaxConnections <= 0 {
			continue
		}
		count := connections[nodeID+"\x00"+p.ID+"\x00"+side]
		if count > p.Rules.MaxConnections {
			return &core.ValidationError{
				Kind:   "handle",
				ID:     nodeID + "." + p.ID,
				Reason: fmt.Sprintf("%d connections exceed the handle limit of %d", count, p.Rules.MaxConnections),
			}
		}
	}
	return nil
}

// Deserialize validates the complete flow and only then instantiates its
// nodes through the versioned registry, so a failing flow has no partial
// side effects. The result maps node ids to live instances.
func (m *Manager) Deserialize(flow *core.Flow) (map[string]core.Node, error) {
	if err := m.Validate(flow); err != nil {
		return nil, err
	}

	nodes := make(map[string]core.Node, len(flow.Nodes))
	for i := range flow.Nodes {
		fn := &flow.Nodes[i]

		var (
			instance core.Node
			err      error
		)
		if fn.Version != "" {
			instance, err = m.registry.CreateWithVersion(fn.Type, fn.ID, fn.Data, fn.Version)
		} else {
			instance, err = m.registry.Create(fn.Type, fn.ID, fn.Data)
		}
		if err != nil {
			return nil, fmt.Errorf("instantiate node %s: %w", fn.ID, err)
		}
		nodes[fn.ID] = instance
	}

	m.logger.Info("flow deserialized flow_id=%s nodes=%d edges=%d", flow.ID, len(nodes), len(flow.Edges))
	return nodes, nil
}

// SaveJSON marshals a flow into its wire form.
func (m *Manager) SaveJSON(flow *core.Flow) ([]byte, error) {
	if flow == nil {
		return nil, &core.ValidationError{Kind: "flow", Reason: "flow is nil"}
	}
	b, err := json.Marshal(flow)
	if err != nil {
		return nil, fmt.Errorf("marshal flow %s: %w", flow.ID, err)
	}
	return b, nil
}

// LoadJSON parses a flow from its wire form. Parsing is codec-only; run
// Validate or Deserialize to check the content.
func (m *Manager) LoadJSON(data []byte) (*core.Flow, error) {
	var flow core.Flow
	if err := json.Unmarshal(data, &flow); err != nil {
		return nil, fmt.Errorf("parse flow JSON: %w", err)
	}
	return &flow, nil
}

// SaveFile writes a flow to path as indented JSON.
func (m *Manager) SaveFile(flow *core.Flow, path string) error {
	if flow == nil {
		return &core.ValidationError{Kind: "flow", Reason: "flow is nil"}
	}
	b, err := json.MarshalIndent(flow, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal flow %s: %w", flow.ID, err)
	}
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("write flow file: %w", err)
	}
	return nil
}

// LoadFile reads a flow from a JSON file.
func (m *Manager) LoadFile(path string) (*core.Flow, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read flow file: %w", err)
	}
	return m.LoadJSON(b)
}
