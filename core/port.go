package core

// PortType distinguishes input from output ports.
type PortType string

const (
	// PortTypeInput marks a port that receives data.
	PortTypeInput PortType = "input"
	// PortTypeOutput marks a port that emits data.
	PortTypeOutput PortType = "output"
)

// Port (also called a handle) is a typed connection point on a node. Ports
// carry a semantic DataType; edges may only connect ports whose DataType
// matches. The optional Schema is a JSON Schema document validated against
// payloads passing through the port.
type Port struct {
	ID       string         `json:"id"`
	Type     PortType       `json:"type"`
	DataType string         `json:"dataType"`
	Label    string         `json:"label,omitempty"`
	Schema   map[string]any `json:"schema,omitempty"`
	Required bool           `json:"required,omitempty"`
	Default  any            `json:"default,omitempty"`
	Rules    *PortRules     `json:"rules,omitempty"`
}

// PortRules constrains how a port may be connected. MaxConnections of zero
// means unlimited. AllowedTypes, when non-empty, restricts the node types on
// the far end of an edge. Validate is an optional predicate receiving the
// candidate edge; it does not serialize and is dropped on round-trips.
type PortRules struct {
	MaxConnections int              `json:"maxConnections,omitempty"`
	AllowedTypes   []string         `json:"allowedTypes,omitempty"`
	Validate       func(Edge) error `json:"-"`
}

// Clone returns a deep copy of the port.
func (p Port) Clone() Port {
	c := p
	if p.Schema != nil {
		c.Schema = make(map[string]any, len(p.Schema))
		for k, v := range p.Schema {
			c.Schema[k] = v
		}
	}
	if p.Rules != nil {
		r := *p.Rules
		if p.Rules.AllowedTypes != nil {
			r.AllowedTypes = append([]string(nil), p.Rules.AllowedTypes...)
		}
		c.Rules = &r
	}
	return c
}

// ClonePorts returns a deep copy of a port slice.
func ClonePorts(ports []Port) []Port {
	if ports == nil {
		return nil
	}
	out := make([]Port, len(ports))
	for i, p := range ports {
		out[i] = p.Clone()
	}
	return out
}

// Handles groups the input and output ports a node exposes. It appears in the
// flow wire format as the optional per-node "handles" object.
type Handles struct {
	Inputs  []Port `json:"inputs,omitempty"`
	Outputs []Port `json:"outputs,omitempty"`
}

// Clone returns a deep copy of the handle set.
func (h Handles) Clone() Handles {
	return Handles{Inputs: ClonePorts(h.Inputs), Outputs: ClonePorts(h.Outputs)}
}
