package node

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/flowmesh/core"
)

// TypeGroup is the registered type name of GroupNode.
const TypeGroup = "group"

// HandleRef points an externally exposed handle at an internal node's handle.
type HandleRef struct {
	NodeID string `json:"nodeId"`
	Handle string `json:"handle"`
}

// HandleMapping projects a subset of a group's internal handles to the
// outside. Keys are the external handle ids; every reference must resolve to
// an existing internal node and handle at all times.
type HandleMapping struct {
	Inputs  map[string]HandleRef `json:"inputs,omitempty"`
	Outputs map[string]HandleRef `json:"outputs,omitempty"`
}

// Clone returns a deep copy of the mapping.
func (m HandleMapping) Clone() HandleMapping {
	c := HandleMapping{}
	if m.Inputs != nil {
		c.Inputs = make(map[string]HandleRef, len(m.Inputs))
		for k, v := range m.Inputs {
			c.Inputs[k] = v
		}
	}
	if m.Outputs != nil {
		c.Outputs = make(map[string]HandleRef, len(m.Outputs))
		for k, v := range m.Outputs {
			c.Outputs[k] = v
		}
	}
	return c
}

// GroupNode is a node whose behavior is defined by an internal sub-flow. It
// exposes a projection of the sub-flow's handles through an explicit handle
// mapping; every mutation of the internal flow or the mapping re-validates
// that each mapped external handle still resolves to a real internal
// node+handle pair and fails without applying the change otherwise.
type GroupNode struct {
	BaseNode

	gmu     sync.RWMutex
	flow    *core.Flow
	nodes   map[string]core.Node
	mapping HandleMapping
}

var (
	_ core.Node           = (*GroupNode)(nil)
	_ core.HandleProvider = (*GroupNode)(nil)
	_ core.Initializer    = (*GroupNode)(nil)
	_ core.BusAttacher    = (*GroupNode)(nil)
)

// GroupMetadata is the frozen type-level metadata of group nodes. The port
// lists stay empty; a group's live ports come from its handle mapping.
func GroupMetadata() core.NodeMetadata {
	return core.NodeMetadata{
		Category:    core.CategoryCore,
		Label:       "Group",
		Description: "Composes an internal sub-flow behind mapped handles",
	}
}

// NewGroupNode constructs a group over the given sub-flow. The nodes map
// holds the live instances backing the flow's node entries; the mapping is
// validated against them before the group is returned.
func NewGroupNode(id string, flow *core.Flow, nodes map[string]core.Node, mapping HandleMapping) (*GroupNode, error) {
	if flow == nil {
		flow = &core.Flow{ID: id + "-flow"}
	}

	instances := make(map[string]core.Node, len(nodes))
	for nodeID, instance := range nodes {
		instances[nodeID] = instance
	}

	if err := validateMapping(flow, instances, mapping); err != nil {
		return nil, err
	}

	return &GroupNode{
		BaseNode: NewBaseNode(id, TypeGroup, nil, GroupMetadata()),
		flow:     flow.Clone(),
		nodes:    instances,
		mapping:  mapping.Clone(),
	}, nil
}

// Handles computes the group's exposed ports from its mapping: each external
// handle is the referenced internal port, re-labelled with the external id.
func (g *GroupNode) Handles() core.Handles {
	g.gmu.RLock()
	defer g.gmu.RUnlock()

	var h core.Handles
	for _, externalID := range sortedKeys(g.mapping.Inputs) {
		ref := g.mapping.Inputs[externalID]
		if port, ok := g.resolve(ref, core.PortTypeInput); ok {
			port.ID = externalID
			h.Inputs = append(h.Inputs, port)
		}
	}
	for _, externalID := range sortedKeys(g.mapping.Outputs) {
		ref := g.mapping.Outputs[externalID]
		if port, ok := g.resolve(ref, core.PortTypeOutput); ok {
			port.ID = externalID
			h.Outputs = append(h.Outputs, port)
		}
	}
	return h
}

// Mapping returns a copy of the current handle mapping.
func (g *GroupNode) Mapping() HandleMapping {
	g.gmu.RLock()
	defer g.gmu.RUnlock()
	return g.mapping.Clone()
}

// Flow returns a copy of the internal sub-flow.
func (g *GroupNode) Flow() *core.Flow {
	g.gmu.RLock()
	defer g.gmu.RUnlock()
	return g.flow.Clone()
}

// SetMapping replaces the handle mapping after validating that every
// reference resolves against the current internal flow.
func (g *GroupNode) SetMapping(mapping HandleMapping) error {
	g.gmu.Lock()
	defer g.gmu.Unlock()

	if err := validateMapping(g.flow, g.nodes, mapping); err != nil {
		return err
	}
	g.mapping = mapping.Clone()
	return nil
}

// MapHandle binds one external handle to an internal node handle. The
// binding is validated against the current internal flow before it applies.
func (g *GroupNode) MapHandle(externalID string, ref HandleRef, portType core.PortType) error {
	g.gmu.Lock()
	defer g.gmu.Unlock()

	candidate := g.mapping.Clone()
	switch portType {
	case core.PortTypeInput:
		if candidate.Inputs == nil {
			candidate.Inputs = make(map[string]HandleRef)
		}
		candidate.Inputs[externalID] = ref
	case core.PortTypeOutput:
		if candidate.Outputs == nil {
			candidate.Outputs = make(map[string]HandleRef)
		}
		candidate.Outputs[externalID] = ref
	default:
		return &core.ValidationError{Kind: "mapping", ID: externalID, Reason: fmt.Sprintf("unknown port type %q", portType)}
	}

	if err := validateMapping(g.flow, g.nodes, candidate); err != nil {
		return err
	}
	g.mapping = candidate
	return nil
}

// UnmapHandle removes an external handle binding.
func (g *GroupNode) UnmapHandle(externalID string, portType core.PortType) error {
	g.gmu.Lock()
	defer g.gmu.Unlock()

	switch portType {
	case core.PortTypeInput:
		if _, ok := g.mapping.Inputs[externalID]; !ok {
			return &core.ValidationError{Kind: "mapping", ID: externalID, Reason: "input handle is not mapped"}
		}
		delete(g.mapping.Inputs, externalID)
	case core.PortTypeOutput:
		if _, ok := g.mapping.Outputs[externalID]; !ok {
			return &core.ValidationError{Kind: "mapping", ID: externalID, Reason: "output handle is not mapped"}
		}
		delete(g.mapping.Outputs, externalID)
	default:
		return &core.ValidationError{Kind: "mapping", ID: externalID, Reason: fmt.Sprintf("unknown port type %q", portType)}
	}
	return nil
}

// SetFlow replaces the internal sub-flow and its node instances. The change
// is rejected when any existing mapping entry would dangle.
func (g *GroupNode) SetFlow(flow *core.Flow, nodes map[string]core.Node) error {
	g.gmu.Lock()
	defer g.gmu.Unlock()

	instances := make(map[string]core.Node, len(nodes))
	for nodeID, instance := range nodes {
		instances[nodeID] = instance
	}
	if err := validateMapping(flow, instances, g.mapping); err != nil {
		return err
	}
	g.flow = flow.Clone()
	g.nodes = instances
	return nil
}

// AddNode adds a node to the internal flow together with its live instance.
func (g *GroupNode) AddNode(fn core.FlowNode, instance core.Node) error {
	if instance == nil {
		return &core.ValidationError{Kind: "node", ID: fn.ID, Reason: "nil node instance"}
	}
	if fn.ID != instance.ID() {
		return &core.ValidationError{Kind: "node", ID: fn.ID, Reason: fmt.Sprintf("instance id %q does not match", instance.ID())}
	}

	g.gmu.Lock()
	defer g.gmu.Unlock()

	if _, ok := g.nodes[fn.ID]; ok {
		return &core.ValidationError{Kind: "node", ID: fn.ID, Reason: "node already exists in group"}
	}
	g.flow.Nodes = append(g.flow.Nodes, fn.Clone())
	g.flow.Meta.Modified = time.Now().UTC()
	g.nodes[fn.ID] = instance
	return nil
}

// RemoveNode drops a node and its edges from the internal flow. The removal
// is rejected when a mapping entry still references the node.
func (g *GroupNode) RemoveNode(nodeID string) error {
	g.gmu.Lock()
	defer g.gmu.Unlock()

	if _, ok := g.nodes[nodeID]; !ok {
		return &core.ValidationError{Kind: "node", ID: nodeID, Reason: "node does not exist in group"}
	}

	candidate := g.flow.Clone()
	kept := candidate.Nodes[:0]
	for _, fn := range candidate.Nodes {
		if fn.ID != nodeID {
			kept = append(kept, fn)
		}
	}
	candidate.Nodes = kept
	keptEdges := candidate.Edges[:0]
	for _, edge := range candidate.Edges {
		if edge.Source != nodeID && edge.Target != nodeID {
			keptEdges = append(keptEdges, edge)
		}
	}
	candidate.Edges = keptEdges

	instances := make(map[string]core.Node, len(g.nodes))
	for id, instance := range g.nodes {
		if id != nodeID {
			instances[id] = instance
		}
	}

	if err := validateMapping(candidate, instances, g.mapping); err != nil {
		return err
	}

	candidate.Meta.Modified = time.Now().UTC()
	g.flow = candidate
	g.nodes = instances
	return nil
}

// AddEdge connects two internal nodes after validating the connection
// against their live handles.
func (g *GroupNode) AddEdge(edge core.Edge) error {
	g.gmu.Lock()
	defer g.gmu.Unlock()

	source, ok := g.nodes[edge.Source]
	if !ok {
		return &core.ValidationError{Kind: "edge", ID: edge.ID, Reason: fmt.Sprintf("unknown source node %q", edge.Source)}
	}
	target, ok := g.nodes[edge.Target]
	if !ok {
		return &core.ValidationError{Kind: "edge", ID: edge.ID, Reason: fmt.Sprintf("unknown target node %q", edge.Target)}
	}
	if err := ValidateConnection(edge, source, target); err != nil {
		return err
	}

	g.flow.Edges = append(g.flow.Edges, edge.Clone())
	g.flow.Meta.Modified = time.Now().UTC()
	return nil
}

// RemoveEdge drops an edge from the internal flow.
func (g *GroupNode) RemoveEdge(edgeID string) error {
	g.gmu.Lock()
	defer g.gmu.Unlock()

	for i, edge := range g.flow.Edges {
		if edge.ID == edgeID {
			g.flow.Edges = append(g.flow.Edges[:i], g.flow.Edges[i+1:]...)
			g.flow.Meta.Modified = time.Now().UTC()
			return nil
		}
	}
	return &core.ValidationError{Kind: "edge", ID: edgeID, Reason: "edge does not exist in group"}
}

// Init initializes every internal node that implements core.Initializer.
func (g *GroupNode) Init(ctx context.Context) error {
	g.gmu.RLock()
	defer g.gmu.RUnlock()

	for _, nodeID := range sortedNodeIDs(g.nodes) {
		if init, ok := g.nodes[nodeID].(core.Initializer); ok {
			if err := init.Init(ctx); err != nil {
				return fmt.Errorf("init node %s: %w", nodeID, err)
			}
		}
	}
	return nil
}

// Attach connects the group and every bus-aware internal node to the bus.
func (g *GroupNode) Attach(bus core.Bus) error {
	if err := g.BaseNode.Attach(bus); err != nil {
		return err
	}

	g.gmu.RLock()
	defer g.gmu.RUnlock()

	for _, nodeID := range sortedNodeIDs(g.nodes) {
		if attacher, ok := g.nodes[nodeID].(core.BusAttacher); ok {
			if err := attacher.Attach(bus); err != nil {
				return fmt.Errorf("attach node %s: %w", nodeID, err)
			}
		}
	}
	return nil
}

// Execute runs the internal flow: the input is routed to the mapped input
// nodes, internal nodes execute in topological order with each node receiving
// its upstream results, and the mapped outputs are collected. A single
// external output returns its bare value; several come back as a map keyed by
// external handle id.
func (g *GroupNode) Execute(ctx context.Context, input any) (any, error) {
	g.gmu.RLock()
	flow := g.flow.Clone()
	mapping := g.mapping.Clone()
	instances := make(map[string]core.Node, len(g.nodes))
	for id, instance := range g.nodes {
		instances[id] = instance
	}
	g.gmu.RUnlock()

	order, err := topoOrder(flow)
	if err != nil {
		return nil, err
	}

	// Route the external input onto the mapped entry nodes.
	entries := make(map[string]map[string]any)
	byExternal, _ := input.(map[string]any)
	for externalID, ref := range mapping.Inputs {
		value := input
		if byExternal != nil {
			if v, ok := byExternal[externalID]; ok {
				value = v
			}
		}
		if entries[ref.NodeID] == nil {
			entries[ref.NodeID] = make(map[string]any)
		}
		entries[ref.NodeID][ref.Handle] = value
	}

	results := make(map[string]any, len(order))
	for _, nodeID := range order {
		instance := instances[nodeID]

		merged := make(map[string]any)
		for handle, value := range entries[nodeID] {
			merged[handle] = value
		}
		for _, edge := range flow.Edges {
			if edge.Target != nodeID {
				continue
			}
			merged[edge.TargetHandle] = projectResult(results[edge.Source], edge.SourceHandle)
		}

		var nodeInput any
		switch len(merged) {
		case 0:
			nodeInput = nil
		case 1:
			for _, value := range merged {
				nodeInput = value
			}
		default:
			nodeInput = merged
		}

		output, err := instance.Execute(ctx, nodeInput)
		if err != nil {
			return nil, fmt.Errorf("group %s: node %s: %w", g.ID(), nodeID, err)
		}
		results[nodeID] = output
	}

	outputs := make(map[string]any, len(mapping.Outputs))
	for externalID, ref := range mapping.Outputs {
		outputs[externalID] = projectResult(results[ref.NodeID], ref.Handle)
	}
	if len(outputs) == 1 {
		for _, value := range outputs {
			return value, nil
		}
	}
	return outputs, nil
}

// resolve returns the internal port a reference points at, or false when the
// node or handle is gone. Callers hold g.gmu.
func (g *GroupNode) resolve(ref HandleRef, portType core.PortType) (core.Port, bool) {
	instance, ok := g.nodes[ref.NodeID]
	if !ok {
		return core.Port{}, false
	}
	if _, ok := g.flow.Node(ref.NodeID); !ok {
		return core.Port{}, false
	}

	handles := HandlesOf(instance)
	ports := handles.Inputs
	if portType == core.PortTypeOutput {
		ports = handles.Outputs
	}
	return findPort(ports, ref.Handle)
}

func validateMapping(flow *core.Flow, nodes map[string]core.Node, mapping HandleMapping) error {
	check := func(refs map[string]HandleRef, portType core.PortType, side string) error {
		for _, externalID := range sortedKeys(refs) {
			ref := refs[externalID]

			instance, ok := nodes[ref.NodeID]
			if !ok {
				return &core.ValidationError{
					Kind:   "mapping",
					ID:     externalID,
					Reason: fmt.Sprintf("%s handle references unknown internal node %q", side, ref.NodeID),
				}
			}
			if _, ok := flow.Node(ref.NodeID); !ok {
				return &core.ValidationError{
					Kind:   "mapping",
					ID:     externalID,
					Reason: fmt.Sprintf("internal node %q is not part of the group flow", ref.NodeID),
				}
			}

			handles := HandlesOf(instance)
			ports := handles.Inputs
			if portType == core.PortTypeOutput {
				ports = handles.Outputs
			}
			if _, ok := findPort(ports, ref.Handle); !ok {
				return &core.ValidationError{
					Kind:   "mapping",
					ID:     externalID,
					Reason: fmt.Sprintf("internal node %q has no %s handle %q", ref.NodeID, portType, ref.Handle),
				}
			}
		}
		return nil
	}

	if err := check(mapping.Inputs, core.PortTypeInput, "input"); err != nil {
		return err
	}
	return check(mapping.Outputs, core.PortTypeOutput, "output")
}

// topoOrder returns the flow's node ids in dependency order via Kahn's
// algorithm, breaking ties by declaration order.
func topoOrder(flow *core.Flow) ([]string, error) {
	indegree := make(map[string]int, len(flow.Nodes))
	for _, fn := range flow.Nodes {
		indegree[fn.ID] = 0
	}
	for _, edge := range flow.Edges {
		if _, ok := indegree[edge.Target]; ok {
			indegree[edge.Target]++
		}
	}

	var queue []string
	for _, fn := range flow.Nodes {
		if indegree[fn.ID] == 0 {
			queue = append(queue, fn.ID)
		}
	}

	order := make([]string, 0, len(flow.Nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		for _, edge := range flow.Edges {
			if edge.Source != id {
				continue
			}
			if _, ok := indegree[edge.Target]; !ok {
				continue
			}
			indegree[edge.Target]--
			if indegree[edge.Target] == 0 {
				queue = append(queue, edge.Target)
			}
		}
	}

	if len(order) != len(flow.Nodes) {
		return nil, &core.ValidationError{Kind: "flow", ID: flow.ID, Reason: "cycle detected in group flow"}
	}
	return order, nil
}

// projectResult picks the named handle's value out of a node result when the
// result is keyed by output handle, and falls back to the raw result.
func projectResult(result any, handle string) any {
	if m, ok := result.(map[string]any); ok {
		if v, ok := m[handle]; ok {
			return v
		}
	}
	return result
}

func sortedKeys(m map[string]HandleRef) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedNodeIDs(m map[string]core.Node) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
