package node

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/flowmesh/core"
	"github.com/hupe1980/flowmesh/internal/util"
	"github.com/hupe1980/flowmesh/registry"
)

// Registered type names of the built-in nodes.
const (
	TypeEcho      = "echo"
	TypeTransform = "transform"
	TypeDelay     = "delay"
)

func textIn() []core.Port {
	return []core.Port{{ID: "in", Type: core.PortTypeInput, DataType: "text", Label: "Input", Required: true}}
}

func textOut() []core.Port {
	return []core.Port{{ID: "out", Type: core.PortTypeOutput, DataType: "text", Label: "Output"}}
}

// EchoNode passes its input through unchanged. It is the smallest useful
// node and the conventional starting point for wiring up a flow.
type EchoNode struct {
	BaseNode
}

var _ core.Node = (*EchoNode)(nil)

var echoSpec = Spec{
	Type:        TypeEcho,
	Category:    core.CategoryCore,
	Label:       "Echo",
	Description: "Returns its input unchanged",
	Inputs:      textIn(),
	Outputs:     textOut(),
}

// EchoMetadata is the frozen type-level metadata of echo nodes.
func EchoMetadata() core.NodeMetadata {
	return echoSpec.Metadata(nil)
}

// NewEchoNode constructs an echo node.
func NewEchoNode(id string, config map[string]any) (core.Node, error) {
	return &EchoNode{BaseNode: echoSpec.NewNode(id, config)}, nil
}

// Execute returns the input unchanged.
func (n *EchoNode) Execute(_ context.Context, input any) (any, error) {
	return input, nil
}

// TransformNode renders its configured template against the input. String
// inputs are exposed to the template as {{.input}}; map inputs are the
// template's data directly. An optional "inputs" config list replaces the
// default input port with one named port per entry, so a transform can merge
// several upstream edges.
type TransformNode struct {
	BaseNode

	template string
}

var _ core.Node = (*TransformNode)(nil)

var transformSpec = Spec{
	Type:        TypeTransform,
	Category:    core.CategoryCore,
	Label:       "Transform",
	Description: "Renders a template against the input",
	Outputs:     textOut(),
	DynamicPorts: func(config map[string]any) ([]core.Port, []core.Port) {
		names := stringList(config["inputs"])
		if len(names) == 0 {
			return textIn(), nil
		}
		ports := make([]core.Port, 0, len(names))
		for _, name := range names {
			ports = append(ports, core.Port{ID: name, Type: core.PortTypeInput, DataType: "text", Label: name, Required: true})
		}
		return ports, nil
	},
}

// TransformMetadata is the frozen type-level metadata of transform nodes.
func TransformMetadata() core.NodeMetadata {
	return transformSpec.Metadata(nil)
}

// NewTransformNode constructs a transform node. The config must carry a
// "template" string.
func NewTransformNode(id string, config map[string]any) (core.Node, error) {
	template, ok := config["template"].(string)
	if !ok || template == "" {
		return nil, &core.ValidationError{Kind: "config", ID: id, Reason: `transform requires a "template" string`}
	}

	return &TransformNode{
		BaseNode: transformSpec.NewNode(id, config),
		template: template,
	}, nil
}

// stringList coerces a config value into a string slice. JSON decoding hands
// lists over as []any.
func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Execute renders the template and returns the result.
func (n *TransformNode) Execute(_ context.Context, input any) (any, error) {
	var state map[string]any
	switch v := input.(type) {
	case map[string]any:
		state = v
	default:
		state = map[string]any{"input": v}
	}

	out, err := util.RenderTemplate(n.template, state)
	if err != nil {
		return nil, fmt.Errorf("transform %s: %w", n.ID(), err)
	}
	return out, nil
}

// DelayNode holds its input for a configured duration before passing it
// through. The wait respects context cancellation, so runtime timeouts abort
// it immediately.
type DelayNode struct {
	BaseNode

	delay time.Duration
}

var _ core.Node = (*DelayNode)(nil)

var delaySpec = Spec{
	Type:        TypeDelay,
	Category:    core.CategoryCore,
	Label:       "Delay",
	Description: "Passes its input through after a configured pause",
	Inputs:      textIn(),
	Outputs:     textOut(),
}

// DelayMetadata is the frozen type-level metadata of delay nodes.
func DelayMetadata() core.NodeMetadata {
	return delaySpec.Metadata(nil)
}

// NewDelayNode constructs a delay node. The config must carry a "duration"
// string in time.ParseDuration format.
func NewDelayNode(id string, config map[string]any) (core.Node, error) {
	raw, ok := config["duration"].(string)
	if !ok || raw == "" {
		return nil, &core.ValidationError{Kind: "config", ID: id, Reason: `delay requires a "duration" string`}
	}
	delay, err := time.ParseDuration(raw)
	if err != nil {
		return nil, &core.ValidationError{Kind: "config", ID: id, Reason: fmt.Sprintf("invalid duration %q: %v", raw, err)}
	}
	if delay < 0 {
		return nil, &core.ValidationError{Kind: "config", ID: id, Reason: "duration must not be negative"}
	}

	return &DelayNode{
		BaseNode: delaySpec.NewNode(id, config),
		delay:    delay,
	}, nil
}

// Execute waits for the configured delay, then returns the input.
func (n *DelayNode) Execute(ctx context.Context, input any) (any, error) {
	select {
	case <-time.After(n.delay):
		return input, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RegisterBuiltins registers the built-in node types (echo, transform, delay
// and group) with the registry. Group nodes register a factory producing an
// empty group; callers compose the sub-flow afterwards.
func RegisterBuiltins(r *registry.Registry) error {
	builtins := []struct {
		nodeType string
		factory  registry.Factory
	}{
		{TypeEcho, registry.Factory{New: NewEchoNode, Metadata: EchoMetadata(), Version: "1.0.0"}},
		{TypeTransform, registry.Factory{New: NewTransformNode, Metadata: TransformMetadata(), Version: "1.0.0"}},
		{TypeDelay, registry.Factory{New: NewDelayNode, Metadata: DelayMetadata(), Version: "1.0.0"}},
		{TypeGroup, registry.Factory{
			New: func(id string, _ map[string]any) (core.Node, error) {
				return NewGroupNode(id, nil, nil, HandleMapping{})
			},
			Metadata: GroupMetadata(),
			Version:  "1.0.0",
		}},
	}

	for _, b := range builtins {
		if err := r.Register(b.nodeType, b.factory); err != nil {
			return err
		}
	}
	return nil
}
