package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/flowmesh/core"
)

func TestVersionedRegistry_CompatibilityRule(t *testing.T) {
	r := NewVersioned()

	// Same major: compatible regardless of minor/patch.
	assert.True(t, r.Compatible("1.2.0", "1.9.3"))
	assert.True(t, r.Compatible("1.9.3", "1.2.0"))
	assert.True(t, r.Compatible("1.0.0", "1.0.0"))

	// Differing majors: incompatible.
	assert.False(t, r.Compatible("1.4.0", "2.0.0"))
	assert.False(t, r.Compatible("2.0.0", "1.4.0"))

	// Shorthand versions resolve by padding.
	assert.True(t, r.Compatible("1", "1.2"))

	// Garbage reports incompatible instead of guessing.
	assert.False(t, r.Compatible("not-a-version", "1.0.0"))
}

func TestVersionedRegistry_StrictMinor(t *testing.T) {
	strict := NewVersioned(func(o *VersionedOptions) { o.StrictMinor = true })

	// Registered minor must cover the requested one.
	assert.False(t, strict.Compatible("1.2.0", "1.4.0"))
	assert.True(t, strict.Compatible("1.4.0", "1.2.0"))
	assert.True(t, strict.Compatible("1.4.0", "1.4.9"))

	// Default mode accepts what strict rejects.
	loose := NewVersioned()
	assert.True(t, loose.Compatible("1.2.0", "1.4.0"))
}

func TestVersionedRegistry_Create(t *testing.T) {
	r := NewVersioned()
	require.NoError(t, r.Register("echo", stubFactory(core.CategoryCore, "1.4.1")))

	node, err := r.Create("echo", "node-1", map[string]any{"k": "v"})
	require.NoError(t, err)
	assert.Equal(t, "node-1", node.ID())

	_, err = r.Create("unknown", "node-2", nil)
	require.Error(t, err)
	var regErr *core.RegistrationError
	assert.True(t, errors.As(err, &regErr))
}

func TestVersionedRegistry_CreateWithVersion(t *testing.T) {
	r := NewVersioned()
	require.NoError(t, r.Register("echo", stubFactory(core.CategoryCore, "1.4.1")))

	// Compatible request succeeds.
	node, err := r.CreateWithVersion("echo", "node-1", nil, "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "node-1", node.ID())

	// Major mismatch surfaces a VersionIncompatibilityError.
	_, err = r.CreateWithVersion("echo", "node-2", nil, "2.0.0")
	require.Error(t, err)
	var verErr *core.VersionIncompatibilityError
	require.True(t, errors.As(err, &verErr))
	assert.Equal(t, "echo", verErr.NodeType)
	assert.Equal(t, "2.0.0", verErr.Requested)
	assert.Equal(t, "1.4.1", verErr.Registered)

	// Malformed requested version is a validation error, not a guess.
	_, err = r.CreateWithVersion("echo", "node-3", nil, "nope")
	require.Error(t, err)
	var valErr *core.ValidationError
	assert.True(t, errors.As(err, &valErr))
}

func TestVersionedRegistry_VersionOfAndDefault(t *testing.T) {
	r := NewVersioned()
	require.NoError(t, r.Register("echo", stubFactory(core.CategoryCore, "")))

	v, ok := r.VersionOf("echo")
	require.True(t, ok)
	assert.Equal(t, "1.0.0", v)

	_, ok = r.VersionOf("unknown")
	assert.False(t, ok)
}
