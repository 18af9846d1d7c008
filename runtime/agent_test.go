package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/flowmesh/bus"
	"github.com/hupe1980/flowmesh/core"
)

// testNode is a function-backed core.Node for runtime tests.
type testNode struct {
	id       string
	nodeType string
	fn       func(ctx context.Context, input any) (any, error)
	inits    atomic.Int32
	calls    atomic.Int32
}

func newTestNode(id string, fn func(ctx context.Context, input any) (any, error)) *testNode {
	if fn == nil {
		fn = func(_ context.Context, input any) (any, error) { return input, nil }
	}
	return &testNode{id: id, nodeType: "test", fn: fn}
}

func (n *testNode) ID() string                  { return n.id }
func (n *testNode) Type() string                { return n.nodeType }
func (n *testNode) Metadata() core.NodeMetadata { return core.NodeMetadata{Label: n.id} }
func (n *testNode) Config() map[string]any      { return nil }

func (n *testNode) Init(context.Context) error {
	n.inits.Add(1)
	return nil
}

func (n *testNode) Execute(ctx context.Context, input any) (any, error) {
	n.calls.Add(1)
	return n.fn(ctx, input)
}

var (
	_ core.Node        = (*testNode)(nil)
	_ core.Initializer = (*testNode)(nil)
)

// MockNode is a bus-attachable node driven by testify expectations.
type MockNode struct {
	mock.Mock
	id string
}

func NewMockNode(id string) *MockNode { return &MockNode{id: id} }

func (m *MockNode) ID() string                  { return m.id }
func (m *MockNode) Type() string                { return "mock" }
func (m *MockNode) Metadata() core.NodeMetadata { return core.NodeMetadata{Label: m.id} }
func (m *MockNode) Config() map[string]any      { return nil }

func (m *MockNode) Execute(ctx context.Context, input any) (any, error) {
	args := m.Called(ctx, input)
	return args.Get(0), args.Error(1)
}

func (m *MockNode) Attach(b core.Bus) error {
	args := m.Called(b)
	return args.Error(0)
}

var (
	_ core.Node        = (*MockNode)(nil)
	_ core.BusAttacher = (*MockNode)(nil)
)

// recordingHooks captures hook invocations and can fail one of them.
type recordingHooks struct {
	mu     sync.Mutex
	events []string
	failOn string
}

func (h *recordingHooks) record(name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, name)
	if h.failOn == name {
		return fmt.Errorf("%s hook failed", name)
	}
	return nil
}

func (h *recordingHooks) Events() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.events...)
}

func (h *recordingHooks) OnInitialize(context.Context) error { return h.record("initialize") }
func (h *recordingHooks) OnStart(context.Context) error      { return h.record("start") }
func (h *recordingHooks) OnPause(context.Context) error      { return h.record("pause") }
func (h *recordingHooks) OnResume(context.Context) error     { return h.record("resume") }
func (h *recordingHooks) OnStop(context.Context) error       { return h.record("stop") }

func TestAgent_LifecycleSequence(t *testing.T) {
	ctx := context.Background()
	hooks := &recordingHooks{}
	a := New("agent-1", func(o *Options) {
		o.Hooks = hooks
	})

	require.Equal(t, core.AgentIdle, a.State())

	require.NoError(t, a.Initialize(ctx))
	assert.Equal(t, core.AgentRunning, a.State())

	require.NoError(t, a.Pause(ctx))
	assert.Equal(t, core.AgentPaused, a.State())

	require.NoError(t, a.Resume(ctx))
	assert.Equal(t, core.AgentRunning, a.State())

	require.NoError(t, a.Stop(ctx))
	assert.Equal(t, core.AgentIdle, a.State())

	assert.Equal(t, []string{"initialize", "start", "pause", "resume", "stop"}, hooks.Events())
	assert.Zero(t, a.ExecutionCount())
	assert.NoError(t, a.LastError())
}

func TestAgent_IllegalTransitions(t *testing.T) {
	ctx := context.Background()
	a := New("agent-1")

	var stateErr *core.AgentStateError

	err := a.Pause(ctx)
	require.Error(t, err)
	require.True(t, errors.As(err, &stateErr))
	assert.Equal(t, "pause", stateErr.Op)
	assert.Equal(t, core.AgentIdle, stateErr.State)
	assert.Equal(t, core.AgentIdle, a.State())

	err = a.Resume(ctx)
	require.True(t, errors.As(err, &stateErr))
	assert.Equal(t, core.AgentIdle, a.State())

	require.NoError(t, a.Initialize(ctx))
	defer a.Stop(ctx)

	err = a.Initialize(ctx)
	require.True(t, errors.As(err, &stateErr))
	assert.Equal(t, core.AgentRunning, stateErr.State)

	err = a.Resume(ctx)
	require.True(t, errors.As(err, &stateErr))
	assert.Equal(t, core.AgentRunning, a.State())
}

func TestAgent_StopWhileIdleIsNoOp(t *testing.T) {
	a := New("agent-1")
	require.NoError(t, a.Stop(context.Background()))
	assert.Equal(t, core.AgentIdle, a.State())
}

func TestAgent_RegisterNodeOnlyWhileIdle(t *testing.T) {
	ctx := context.Background()
	a := New("agent-1")

	require.NoError(t, a.RegisterNode(newTestNode("n1", nil)))

	err := a.RegisterNode(newTestNode("n1", nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")

	require.NoError(t, a.Initialize(ctx))
	defer a.Stop(ctx)

	var stateErr *core.AgentStateError
	err = a.RegisterNode(newTestNode("n2", nil))
	require.True(t, errors.As(err, &stateErr))
	assert.Equal(t, "register node", stateErr.Op)

	_, ok := a.Node("n2")
	assert.False(t, ok)
}

func TestAgent_RegisterNodeAttachesBus(t *testing.T) {
	b := bus.New()
	a := New("agent-1", func(o *Options) { o.Bus = b })

	n := NewMockNode("n1")
	n.On("Attach", b).Return(nil).Once()

	require.NoError(t, a.RegisterNode(n))
	n.AssertExpectations(t)

	failing := NewMockNode("n2")
	failing.On("Attach", b).Return(errors.New("subscribe failed")).Once()

	err := a.RegisterNode(failing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "attach node n2")

	// A failed attach keeps the node out of the agent.
	_, ok := a.Node("n2")
	assert.False(t, ok)
	failing.AssertExpectations(t)
}

func TestAgent_RegisterNodeSkipsAttachWithoutBus(t *testing.T) {
	a := New("agent-1")

	n := NewMockNode("n1")
	require.NoError(t, a.RegisterNode(n))
	n.AssertNotCalled(t, "Attach", mock.Anything)
}

func TestAgent_InitializeRunsNodeInit(t *testing.T) {
	ctx := context.Background()
	n1 := newTestNode("n1", nil)
	n2 := newTestNode("n2", nil)

	a := New("agent-1")
	require.NoError(t, a.RegisterNode(n1))
	require.NoError(t, a.RegisterNode(n2))

	require.NoError(t, a.Initialize(ctx))
	defer a.Stop(ctx)

	assert.Equal(t, int32(1), n1.inits.Load())
	assert.Equal(t, int32(1), n2.inits.Load())
}

func TestAgent_HookErrorAbortsTransition(t *testing.T) {
	ctx := context.Background()

	t.Run("initialize", func(t *testing.T) {
		a := New("agent-1", func(o *Options) {
			o.Hooks = &recordingHooks{failOn: "initialize"}
		})
		require.Error(t, a.Initialize(ctx))
		assert.Equal(t, core.AgentIdle, a.State())
	})

	t.Run("pause", func(t *testing.T) {
		a := New("agent-1", func(o *Options) {
			o.Hooks = &recordingHooks{failOn: "pause"}
		})
		require.NoError(t, a.Initialize(ctx))
		defer a.Stop(ctx)

		require.Error(t, a.Pause(ctx))
		assert.Equal(t, core.AgentRunning, a.State())

		// The executing slot must have been released again.
		n := newTestNode("n1", nil)
		require.NoError(t, a.Stop(ctx))
		require.NoError(t, a.RegisterNode(n))
		require.NoError(t, a.Initialize(ctx))
		res, err := a.ExecuteNode(ctx, "n1", "ping")
		require.NoError(t, err)
		assert.True(t, res.Success)
	})

	t.Run("resume", func(t *testing.T) {
		a := New("agent-1", func(o *Options) {
			o.Hooks = &recordingHooks{failOn: "resume"}
		})
		require.NoError(t, a.Initialize(ctx))
		require.NoError(t, a.Pause(ctx))

		require.Error(t, a.Resume(ctx))
		assert.Equal(t, core.AgentPaused, a.State())
	})

	t.Run("stop", func(t *testing.T) {
		a := New("agent-1", func(o *Options) {
			o.Hooks = &recordingHooks{failOn: "stop"}
		})
		require.NoError(t, a.Initialize(ctx))

		require.Error(t, a.Stop(ctx))
		assert.Equal(t, core.AgentRunning, a.State())
	})
}

func TestAgent_ReinitializeAfterStop(t *testing.T) {
	ctx := context.Background()
	n := newTestNode("n1", nil)

	a := New("agent-1")
	require.NoError(t, a.RegisterNode(n))

	require.NoError(t, a.Initialize(ctx))
	require.NoError(t, a.Stop(ctx))
	require.NoError(t, a.Initialize(ctx))
	defer a.Stop(ctx)

	res, err := a.ExecuteNode(ctx, "n1", "again")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "again", res.Output)
	assert.Equal(t, int32(2), n.inits.Load())
}

func TestAgent_PauseDrainsInflightAndHoldsQueue(t *testing.T) {
	ctx := context.Background()

	gate := make(chan struct{})
	slow := newTestNode("slow", func(ctx context.Context, input any) (any, error) {
		<-gate
		return input, nil
	})
	follower := newTestNode("follower", nil)

	a := New("agent-1")
	require.NoError(t, a.RegisterNode(slow))
	require.NoError(t, a.RegisterNode(follower))
	require.NoError(t, a.Initialize(ctx))
	defer a.Stop(ctx)

	results := make(chan *Result, 2)
	go func() {
		res, _ := a.ExecuteNode(ctx, "slow", 1)
		results <- res
	}()

	// Wait until the slow execution is in flight, then queue another.
	require.Eventually(t, func() bool { return slow.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	go func() {
		res, _ := a.ExecuteNode(ctx, "follower", 2)
		results <- res
	}()
	require.Eventually(t, func() bool { return len(a.queue) == 1 }, time.Second, 5*time.Millisecond)

	paused := make(chan error, 1)
	go func() { paused <- a.Pause(ctx) }()

	// Pause must block on the in-flight execution.
	select {
	case err := <-paused:
		t.Fatalf("pause returned before in-flight execution drained: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(gate)
	require.NoError(t, <-paused)
	assert.Equal(t, core.AgentPaused, a.State())

	first := <-results
	require.NotNil(t, first)
	assert.True(t, first.Success)

	// The queued execution is held while paused.
	assert.Equal(t, int32(0), follower.calls.Load())

	require.NoError(t, a.Resume(ctx))

	second := <-results
	require.NotNil(t, second)
	assert.True(t, second.Success)
	assert.Equal(t, int32(1), follower.calls.Load())
}

func TestAgent_StopFailsPendingExecutions(t *testing.T) {
	ctx := context.Background()

	gate := make(chan struct{})
	slow := newTestNode("slow", func(ctx context.Context, input any) (any, error) {
		<-gate
		return input, nil
	})
	pending := newTestNode("pending", nil)

	a := New("agent-1")
	require.NoError(t, a.RegisterNode(slow))
	require.NoError(t, a.RegisterNode(pending))
	require.NoError(t, a.Initialize(ctx))

	slowRes := make(chan *Result, 1)
	go func() {
		res, _ := a.ExecuteNode(ctx, "slow", 1)
		slowRes <- res
	}()
	require.Eventually(t, func() bool { return slow.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	pendingRes := make(chan *Result, 1)
	go func() {
		res, _ := a.ExecuteNode(ctx, "pending", 2)
		pendingRes <- res
	}()
	require.Eventually(t, func() bool { return len(a.queue) == 1 }, time.Second, 5*time.Millisecond)

	a.mu.RLock()
	stopCtx := a.stopCtx
	a.mu.RUnlock()

	stopped := make(chan error, 1)
	go func() { stopped <- a.Stop(ctx) }()

	// Stop waits for the in-flight execution; release it once the shutdown
	// signal is out so the pending entry cannot start.
	require.Eventually(t, func() bool { return stopCtx.Err() != nil }, time.Second, 5*time.Millisecond)
	close(gate)
	require.NoError(t, <-stopped)
	assert.Equal(t, core.AgentIdle, a.State())

	res := <-slowRes
	require.NotNil(t, res)
	assert.True(t, res.Success)

	res = <-pendingRes
	require.NotNil(t, res)
	assert.False(t, res.Success)
	var stateErr *core.AgentStateError
	assert.True(t, errors.As(res.Err, &stateErr))
	assert.Equal(t, int32(0), pending.calls.Load())
}

func TestAgent_StopWhilePaused(t *testing.T) {
	ctx := context.Background()
	n := newTestNode("n1", nil)

	a := New("agent-1")
	require.NoError(t, a.RegisterNode(n))
	require.NoError(t, a.Initialize(ctx))
	require.NoError(t, a.Pause(ctx))

	require.NoError(t, a.Stop(ctx))
	assert.Equal(t, core.AgentIdle, a.State())

	// The slot is free again for the next lifecycle.
	require.NoError(t, a.Initialize(ctx))
	defer a.Stop(ctx)
	res, err := a.ExecuteNode(ctx, "n1", "ok")
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestAgent_MemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	a := New("agent-1")

	require.NoError(t, a.Memory().Set(ctx, "cursor", 42))

	var got int
	require.NoError(t, a.Memory().Get(ctx, "cursor", &got))
	assert.Equal(t, 42, got)
}

func TestAgent_NodesSorted(t *testing.T) {
	a := New("agent-1")
	require.NoError(t, a.RegisterNode(newTestNode("c", nil)))
	require.NoError(t, a.RegisterNode(newTestNode("a", nil)))
	require.NoError(t, a.RegisterNode(newTestNode("b", nil)))

	nodes := a.Nodes()
	require.Len(t, nodes, 3)
	assert.Equal(t, "a", nodes[0].ID())
	assert.Equal(t, "b", nodes[1].ID())
	assert.Equal(t, "c", nodes[2].ID())

	info := a.Info()
	assert.Equal(t, "agent-1", info.ID)
	assert.Equal(t, "agent-1", info.Name)
}
