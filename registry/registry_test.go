package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/flowmesh/core"
)

// stubNode is a minimal core.Node for registry tests.
type stubNode struct {
	id       string
	nodeType string
	meta     core.NodeMetadata
	data     map[string]any
}

func (n *stubNode) ID() string                  { return n.id }
func (n *stubNode) Type() string                { return n.nodeType }
func (n *stubNode) Metadata() core.NodeMetadata { return n.meta.Clone() }
func (n *stubNode) Config() map[string]any      { return n.data }
func (n *stubNode) Execute(_ context.Context, input any) (any, error) {
	return input, nil
}

var _ core.Node = (*stubNode)(nil)

func stubFactory(category core.Category, version string) Factory {
	meta := core.NodeMetadata{
		Category: category,
		Label:    "Stub",
		Inputs:   []core.Port{{ID: "in", Type: core.PortTypeInput, DataType: "text"}},
		Outputs:  []core.Port{{ID: "out", Type: core.PortTypeOutput, DataType: "text"}},
	}
	return Factory{
		New: func(id string, data map[string]any) (core.Node, error) {
			return &stubNode{id: id, nodeType: "stub", meta: meta, data: data}, nil
		},
		Metadata: meta,
		Version:  version,
	}
}

func TestRegistry_RegisterCategoryEnforcement(t *testing.T) {
	r := New()

	// A custom-category factory must not pass the core-only call.
	err := r.Register("custom-thing", stubFactory(core.CategoryCustom, "1.0.0"))
	require.Error(t, err)
	var regErr *core.RegistrationError
	require.True(t, errors.As(err, &regErr))
	assert.Equal(t, "custom-thing", regErr.NodeType)

	// And vice versa.
	err = r.RegisterCustom("core-thing", stubFactory(core.CategoryCore, "1.0.0"))
	require.Error(t, err)
	assert.True(t, errors.As(err, &regErr))

	// Matching categories succeed.
	assert.NoError(t, r.Register("core-thing", stubFactory(core.CategoryCore, "1.0.0")))
	assert.NoError(t, r.RegisterCustom("custom-thing", stubFactory(core.CategoryCustom, "1.0.0")))
}

func TestRegistry_DuplicateAcrossCategories(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("echo", stubFactory(core.CategoryCore, "1.0.0")))

	// The same type name cannot be taken in the other category either.
	err := r.RegisterCustom("echo", stubFactory(core.CategoryCustom, "1.0.0"))
	require.Error(t, err)

	err = r.Register("echo", stubFactory(core.CategoryCore, "1.0.0"))
	require.Error(t, err)
}

func TestRegistry_GetPrefersCore(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("echo", stubFactory(core.CategoryCore, "2.0.0")))
	require.NoError(t, r.RegisterCustom("mine", stubFactory(core.CategoryCustom, "1.0.0")))

	f, ok := r.Get("echo")
	require.True(t, ok)
	assert.Equal(t, core.CategoryCore, f.Metadata.Category)

	f, ok = r.Get("mine")
	require.True(t, ok)
	assert.Equal(t, core.CategoryCustom, f.Metadata.Category)

	_, ok = r.Get("unknown")
	assert.False(t, ok)
}

func TestRegistry_InvalidFactories(t *testing.T) {
	r := New()
	assert.Error(t, r.Register("", stubFactory(core.CategoryCore, "1.0.0")))
	assert.Error(t, r.Register("no-ctor", Factory{Metadata: core.NodeMetadata{Category: core.CategoryCore}}))
}

func TestRegistry_MetadataSnapshotIsolation(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("echo", stubFactory(core.CategoryCore, "1.0.0")))

	snap := r.Metadata()
	require.Contains(t, snap, "echo")
	snap["echo"].Inputs[0].DataType = "number"

	again := r.Metadata()
	assert.Equal(t, "text", again["echo"].Inputs[0].DataType)
}

func TestRegistry_TypesSorted(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("zeta", stubFactory(core.CategoryCore, "1.0.0")))
	require.NoError(t, r.RegisterCustom("alpha", stubFactory(core.CategoryCustom, "1.0.0")))

	assert.Equal(t, []string{"alpha", "zeta"}, r.Types())
	assert.Len(t, r.All(), 2)
	assert.True(t, r.Has("alpha"))
	assert.False(t, r.Has("beta"))
}
