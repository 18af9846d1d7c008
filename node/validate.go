package node

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/hupe1980/flowmesh/core"
)

// HandlesOf returns the ports a node exposes, preferring the HandleProvider
// capability over frozen metadata so nodes with computed ports (group nodes)
// report their live projection.
func HandlesOf(n core.Node) core.Handles {
	if hp, ok := n.(core.HandleProvider); ok {
		return hp.Handles()
	}
	md := n.Metadata()
	return core.Handles{Inputs: md.Inputs, Outputs: md.Outputs}
}

// ValidateConnection checks that an edge may connect the source node's output
// handle to the target node's input handle: both handles must exist, their
// DataType must match, and any handle rules (allowed peer types, custom
// predicate) must hold on both ends. Violations come back as ValidationErrors
// naming the edge id.
func ValidateConnection(edge core.Edge, source, target core.Node) error {
	return ValidateEdgeHandles(edge, HandlesOf(source).Outputs, HandlesOf(target).Inputs, source.Type(), target.Type())
}

// ValidateEdgeHandles is ValidateConnection over explicit port sets. The
// serialization manager uses it with ports resolved from flow snapshots or
// registry metadata, where no live node instances exist yet.
func ValidateEdgeHandles(edge core.Edge, sourceOutputs, targetInputs []core.Port, sourceType, targetType string) error {
	out, ok := findPort(sourceOutputs, edge.SourceHandle)
	if !ok {
		return &core.ValidationError{
			Kind:   "edge",
			ID:     edge.ID,
			Reason: fmt.Sprintf("source node %q has no output handle %q", edge.Source, edge.SourceHandle),
		}
	}

	in, ok := findPort(targetInputs, edge.TargetHandle)
	if !ok {
		return &core.ValidationError{
			Kind:   "edge",
			ID:     edge.ID,
			Reason: fmt.Sprintf("target node %q has no input handle %q", edge.Target, edge.TargetHandle),
		}
	}

	if out.DataType != in.DataType {
		return &core.ValidationError{
			Kind:   "edge",
			ID:     edge.ID,
			Reason: fmt.Sprintf("dataType mismatch: output %q emits %q, input %q expects %q", out.ID, out.DataType, in.ID, in.DataType),
		}
	}

	if err := checkRules(edge, out, targetType); err != nil {
		return err
	}
	if err := checkRules(edge, in, sourceType); err != nil {
		return err
	}

	return nil
}

func findPort(ports []core.Port, id string) (core.Port, bool) {
	for _, p := range ports {
		if p.ID == id {
			return p, true
		}
	}
	return core.Port{}, false
}

func checkRules(edge core.Edge, port core.Port, peerType string) error {
	if port.Rules == nil {
		return nil
	}

	if len(port.Rules.AllowedTypes) > 0 {
		allowed := false
		for _, t := range port.Rules.AllowedTypes {
			if t == peerType {
				allowed = true
				break
			}
		}
		if !allowed {
			return &core.ValidationError{
				Kind:   "edge",
				ID:     edge.ID,
				Reason: fmt.Sprintf("handle %q does not accept connections to node type %q", port.ID, peerType),
			}
		}
	}

	if port.Rules.Validate != nil {
		if err := port.Rules.Validate(edge); err != nil {
			return &core.ValidationError{
				Kind:   "edge",
				ID:     edge.ID,
				Reason: fmt.Sprintf("handle %q rejected the connection: %v", port.ID, err),
			}
		}
	}

	return nil
}

// schemaCache holds compiled schemas keyed by their marshaled form. Port
// schemas repeat across node instances, and compilation dominates validation
// cost.
var schemaCache sync.Map

// CompileSchema compiles a JSON Schema document given as a generic map,
// caching the compiled form. A nil schema compiles to the permissive empty
// object schema.
func CompileSchema(schema map[string]any) (*jsonschema.Schema, error) {
	if schema == nil {
		schema = map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		}
	}
	b, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}

	if cached, ok := schemaCache.Load(string(b)); ok {
		return cached.(*jsonschema.Schema), nil
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", strings.NewReader(string(b))); err != nil {
		return nil, err
	}
	compiled, err := c.Compile("schema.json")
	if err != nil {
		return nil, err
	}
	schemaCache.Store(string(b), compiled)
	return compiled, nil
}

// ValidatePayload checks a value against one port: required ports reject nil,
// and the port's JSON Schema is enforced when present. The value is
// normalized through JSON so structs and typed numbers validate the same way
// their wire form would.
func ValidatePayload(port core.Port, payload any) error {
	kind := "input"
	if port.Type == core.PortTypeOutput {
		kind = "output"
	}

	if payload == nil {
		if port.Required {
			return &core.ValidationError{Kind: kind, ID: port.ID, Reason: "required value is missing"}
		}
		return nil
	}

	if port.Schema == nil {
		return nil
	}

	schema, err := CompileSchema(port.Schema)
	if err != nil {
		return &core.ValidationError{Kind: kind, ID: port.ID, Reason: fmt.Sprintf("invalid schema: %v", err)}
	}

	normalized, err := normalizeJSON(payload)
	if err != nil {
		return &core.ValidationError{Kind: kind, ID: port.ID, Reason: fmt.Sprintf("value is not JSON-serializable: %v", err)}
	}

	if err := schema.Validate(normalized); err != nil {
		return &core.ValidationError{Kind: kind, ID: port.ID, Reason: err.Error()}
	}
	return nil
}

func normalizeJSON(value any) (any, error) {
	b, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func validatePorts(ports []core.Port, value any, kind string) error {
	switch len(ports) {
	case 0:
		return nil
	case 1:
		return ValidatePayload(ports[0], value)
	}

	values, ok := value.(map[string]any)
	if !ok {
		return &core.ValidationError{
			Kind:   kind,
			Reason: fmt.Sprintf("nodes with multiple %s ports take a map keyed by port id, got %T", kind, value),
		}
	}
	for _, port := range ports {
		v, present := values[port.ID]
		if !present {
			if port.Required {
				return &core.ValidationError{Kind: kind, ID: port.ID, Reason: "required value is missing"}
			}
			continue
		}
		if err := ValidatePayload(port, v); err != nil {
			return err
		}
	}
	return nil
}

// ValidateInput checks the input against the node's input ports. A node with
// a single input port validates the value directly; with several, the input
// must be a map keyed by port id.
func (b *BaseNode) ValidateInput(input any) error {
	return validatePorts(b.Handles().Inputs, input, "input")
}

// ValidateOutput checks the output against the node's output ports, with the
// same shape conventions as ValidateInput.
func (b *BaseNode) ValidateOutput(output any) error {
	return validatePorts(b.Handles().Outputs, output, "output")
}
