package graph

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/flowmesh/core"
	"github.com/hupe1980/flowmesh/storage"
)

func TestStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	store := NewStore(storage.NewInMemoryProvider())

	flow := echoFlow()
	require.NoError(t, store.Save(ctx, flow))

	back, err := store.Load(ctx, "f1")
	require.NoError(t, err)

	if diff := cmp.Diff(flow, back); diff != "" {
		t.Fatalf("flow changed across the store round trip (-want +got):\n%s", diff)
	}
}

func TestStore_LoadMissing(t *testing.T) {
	store := NewStore(storage.NewInMemoryProvider())

	_, err := store.Load(context.Background(), "ghost")
	assert.ErrorIs(t, err, core.ErrKeyNotFound)
}

func TestStore_IntegrityCheck(t *testing.T) {
	ctx := context.Background()
	provider := storage.NewInMemoryProvider()
	store := NewStore(provider)

	require.NoError(t, store.Save(ctx, echoFlow()))

	// Corrupt the stored record behind the store's back.
	raw, err := provider.Get(ctx, "flow:f1")
	require.NoError(t, err)
	var record map[string]any
	require.NoError(t, json.Unmarshal(raw, &record))
	record["fingerprint"] = "deadbeef"
	tampered, err := json.Marshal(record)
	require.NoError(t, err)
	require.NoError(t, provider.Set(ctx, "flow:f1", tampered))

	_, err = store.Load(ctx, "f1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "integrity")
}

func TestStore_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	store := NewStore(storage.NewInMemoryProvider())

	for _, id := range []string{"beta", "alpha"} {
		flow := echoFlow()
		flow.ID = id
		require.NoError(t, store.Save(ctx, flow))
	}

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, ids)

	require.NoError(t, store.Delete(ctx, "alpha"))

	_, err = store.Load(ctx, "alpha")
	assert.ErrorIs(t, err, core.ErrKeyNotFound)

	ids, err = store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"beta"}, ids)
}

func TestStore_SaveRejectsBadFlow(t *testing.T) {
	store := NewStore(storage.NewInMemoryProvider())

	var vErr *core.ValidationError
	require.ErrorAs(t, store.Save(context.Background(), nil), &vErr)

	flow := echoFlow()
	flow.ID = ""
	require.ErrorAs(t, store.Save(context.Background(), flow), &vErr)
	assert.Contains(t, vErr.Reason, "missing flow id")
}
