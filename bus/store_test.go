package bus

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/flowmesh/core"
	"github.com/hupe1980/flowmesh/internal/testutil"
)

func storedMessage(id string) *core.Message {
	msg := testutil.NewMessageBuilder().Payload("payload").Build()
	msg.ID = id
	msg.UpdatedAt = time.Now().UTC()
	return msg
}

func TestInMemoryStoreRoundTrip(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, storedMessage("m1")))

	got, err := s.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "m1", got.ID)
	assert.Equal(t, "payload", got.Payload)

	// Mutating the returned clone leaves the stored record untouched.
	got.Payload = "mutated"
	again, err := s.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "payload", again.Payload)

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestInMemoryStoreGetUnknown(t *testing.T) {
	s := NewInMemoryStore()

	_, err := s.Get(context.Background(), "nope")
	require.ErrorIs(t, err, core.ErrMessageNotFound)
}

func TestInMemoryStoreUpdate(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, storedMessage("m1")))

	updated, err := s.Update(ctx, "m1", func(m *core.Message) {
		m.Status = core.StatusCompleted
	})
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, updated.Status)

	got, err := s.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, got.Status)

	_, err = s.Update(ctx, "missing", func(m *core.Message) {})
	require.ErrorIs(t, err, core.ErrMessageNotFound)
}

func TestInMemoryStoreDelete(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, storedMessage("m1")))
	require.NoError(t, s.Delete(ctx, "m1"))
	require.NoError(t, s.Delete(ctx, "m1"), "deleting an unknown id is not an error")

	_, err := s.Get(ctx, "m1")
	require.ErrorIs(t, err, core.ErrMessageNotFound)
}

func TestInMemoryStoreCapacityEviction(t *testing.T) {
	s := NewInMemoryStore(func(o *StoreOptions) {
		o.Capacity = 2
	})
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		require.NoError(t, s.Put(ctx, storedMessage(fmt.Sprintf("m%d", i))))
	}

	_, err := s.Get(ctx, "m1")
	require.ErrorIs(t, err, core.ErrMessageNotFound, "oldest record is evicted first")

	for _, id := range []string{"m2", "m3"} {
		_, err := s.Get(ctx, id)
		require.NoError(t, err)
	}

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestInMemoryStoreTTL(t *testing.T) {
	s := NewInMemoryStore(func(o *StoreOptions) {
		o.TTL = 20 * time.Millisecond
	})
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, storedMessage("m1")))

	_, err := s.Get(ctx, "m1")
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)

	_, err = s.Get(ctx, "m1")
	require.ErrorIs(t, err, core.ErrMessageNotFound)

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestDelayFor(t *testing.T) {
	rs := core.RetryStrategy{
		MaxRetries:  5,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    500 * time.Millisecond,
		Exponential: true,
	}

	assert.Equal(t, time.Duration(0), delayFor(rs, 0))
	assert.Equal(t, 100*time.Millisecond, delayFor(rs, 1))
	assert.Equal(t, 200*time.Millisecond, delayFor(rs, 2))
	assert.Equal(t, 400*time.Millisecond, delayFor(rs, 3))
	assert.Equal(t, 500*time.Millisecond, delayFor(rs, 4), "doubling is capped at MaxDelay")
	assert.Equal(t, 500*time.Millisecond, delayFor(rs, 5))

	flat := core.RetryStrategy{BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second}
	assert.Equal(t, 50*time.Millisecond, delayFor(flat, 1))
	assert.Equal(t, 50*time.Millisecond, delayFor(flat, 4))
}
