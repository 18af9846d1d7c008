package core

import "time"

// FlowMeta carries the creation and modification timestamps of a flow.
type FlowMeta struct {
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
}

// Flow is a persistable graph of nodes and edges representing a composition.
// Its JSON form is the only durable wire format the orchestration core
// defines and must round-trip exactly through the serialization manager.
type Flow struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Version     string     `json:"version"`
	Nodes       []FlowNode `json:"nodes"`
	Edges       []Edge     `json:"edges"`
	Meta        FlowMeta   `json:"meta"`
}

// FlowNode is the persisted form of a node instance: its id, registered type,
// config payload and version. Meta holds caller-owned extras (visual layout is
// deliberately not serialized by the core). Handles, when present, snapshot
// the ports the node exposed at serialization time; absent, validation falls
// back to the registry's per-type metadata.
type FlowNode struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	Data    map[string]any `json:"data"`
	Version string         `json:"version,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
	Handles *Handles       `json:"handles,omitempty"`
}

// Edge is a directed connection from a source node's output handle to a
// target node's input handle. Meta holds optional label/animation extras.
type Edge struct {
	ID           string         `json:"id"`
	Source       string         `json:"source"`
	SourceHandle string         `json:"sourceHandle"`
	Target       string         `json:"target"`
	TargetHandle string         `json:"targetHandle"`
	Meta         map[string]any `json:"meta,omitempty"`
}

// Node returns the flow node with the given id, or false if absent.
func (f *Flow) Node(id string) (*FlowNode, bool) {
	for i := range f.Nodes {
		if f.Nodes[i].ID == id {
			return &f.Nodes[i], true
		}
	}
	return nil, false
}

// Edge returns the edge with the given id, or false if absent.
func (f *Flow) Edge(id string) (*Edge, bool) {
	for i := range f.Edges {
		if f.Edges[i].ID == id {
			return &f.Edges[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy of the flow.
func (f *Flow) Clone() *Flow {
	c := *f
	if f.Nodes != nil {
		c.Nodes = make([]FlowNode, len(f.Nodes))
		for i, n := range f.Nodes {
			c.Nodes[i] = n.Clone()
		}
	}
	if f.Edges != nil {
		c.Edges = make([]Edge, len(f.Edges))
		for i, e := range f.Edges {
			c.Edges[i] = e.Clone()
		}
	}
	return &c
}

// Clone returns a deep copy of the flow node.
func (n FlowNode) Clone() FlowNode {
	c := n
	if n.Data != nil {
		c.Data = cloneMap(n.Data)
	}
	if n.Meta != nil {
		c.Meta = cloneMap(n.Meta)
	}
	if n.Handles != nil {
		h := n.Handles.Clone()
		c.Handles = &h
	}
	return c
}

// Clone returns a deep copy of the edge.
func (e Edge) Clone() Edge {
	c := e
	if e.Meta != nil {
		c.Meta = cloneMap(e.Meta)
	}
	return c
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
