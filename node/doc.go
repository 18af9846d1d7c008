// Package node provides the base building blocks for FlowMesh nodes: an
// embeddable BaseNode carrying frozen identity, config and metadata plus bus
// handler wiring, connection and payload validation against typed ports, a
// GroupNode composing an internal sub-flow behind mapped handles, and a small
// set of built-in node types (echo, transform, delay).
//
// Concrete node types embed BaseNode and supply an Execute method to satisfy
// the core.Node interface:
//
//	type UpperNode struct {
//		node.BaseNode
//	}
//
//	func NewUpperNode(id string, config map[string]any) (core.Node, error) {
//		return &UpperNode{
//			BaseNode: node.NewBaseNode(id, "upper", config, upperMetadata),
//		}, nil
//	}
//
//	func (n *UpperNode) Execute(ctx context.Context, input any) (any, error) {
//		s, ok := input.(string)
//		if !ok {
//			return nil, fmt.Errorf("expected string input, got %T", input)
//		}
//		return strings.ToUpper(s), nil
//	}
package node
