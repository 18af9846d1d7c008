package runtime

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/flowmesh/core"
	"github.com/hupe1980/flowmesh/logging"
	"github.com/hupe1980/flowmesh/metrics"
	"github.com/hupe1980/flowmesh/storage"
)

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// Name is the agent's human readable label. Defaults to the id.
	Name string
	// QueueSize bounds the number of pending executions.
	QueueSize int
	// ExecutionTimeout is the default deadline for one execution attempt.
	ExecutionTimeout time.Duration
	// MaxRetries is the default number of additional attempts after a
	// failed execution.
	MaxRetries int
	// Backoff is the base wait between attempts; the wait grows linearly
	// with the attempt number.
	Backoff time.Duration
	// Bus connects registered nodes for peer messaging.
	Bus core.Bus
	// Provider backs the agent's working memory.
	Provider core.StorageProvider
	// Hooks observe lifecycle transitions.
	Hooks LifecycleHooks
	// Logging services.
	Logger logging.Logger
	// Metrics collection; nil disables instrumentation.
	Metrics *metrics.Collector
}

// Agent owns a set of registered nodes and the state machine driving their
// execution. Executions run strictly one at a time in submission order.
// Public methods are safe for concurrent use.
type Agent struct {
	id   string
	name string

	executionTimeout time.Duration
	maxRetries       int
	backoff          time.Duration

	bus     core.Bus
	memory  *core.Memory
	hooks   LifecycleHooks
	logger  logging.Logger
	metrics *metrics.Collector

	mu             sync.RWMutex
	state          core.AgentState
	nodes          map[string]core.Node
	executionCount int
	lastError      error
	stopCtx        context.Context
	stopCancel     context.CancelFunc
	pauseHeld      bool

	queue chan *execution
	// execSlot is the capacity-1 executing set: the worker holds the token
	// for the duration of a run, and Pause holds it for the duration of the
	// paused period.
	execSlot chan struct{}
	wg       sync.WaitGroup
}

// New constructs an idle Agent with optional overrides. The execution worker
// starts with Initialize.
func New(id string, optFns ...func(o *Options)) *Agent {
	opts := Options{
		Name:             id,
		QueueSize:        100,
		ExecutionTimeout: 30 * time.Second,
		MaxRetries:       1,
		Backoff:          100 * time.Millisecond,
		Provider:         storage.NewInMemoryProvider(),
		Hooks:            NoOpHooks{},
		Logger:           logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Agent{
		id:               id,
		name:             opts.Name,
		executionTimeout: opts.ExecutionTimeout,
		maxRetries:       opts.MaxRetries,
		backoff:          opts.Backoff,
		bus:              opts.Bus,
		memory:           core.NewMemory(opts.Provider, id, opts.Logger),
		hooks:            opts.Hooks,
		logger:           opts.Logger,
		metrics:          opts.Metrics,
		state:            core.AgentIdle,
		nodes:            make(map[string]core.Node),
		queue:            make(chan *execution, opts.QueueSize),
		execSlot:         make(chan struct{}, 1),
	}
}

// ID returns the agent's identifier.
func (a *Agent) ID() string { return a.id }

// Name returns the agent's human readable label.
func (a *Agent) Name() string { return a.name }

// Info returns the agent's identifying details.
func (a *Agent) Info() core.AgentInfo { return core.AgentInfo{ID: a.id, Name: a.name} }

// State returns the agent's current lifecycle state.
func (a *Agent) State() core.AgentState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Memory returns the agent's working key-value memory.
func (a *Agent) Memory() *core.Memory { return a.memory }

// ExecutionCount returns the number of executions the agent has finished,
// successful or not.
func (a *Agent) ExecutionCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.executionCount
}

// LastError returns the most recent execution failure, or nil.
func (a *Agent) LastError() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastError
}

// RegisterNode adds a node to the agent. Registration is only legal while
// the agent is idle; when the agent carries a bus, bus-aware nodes are
// attached immediately.
func (a *Agent) RegisterNode(n core.Node) error {
	if n == nil {
		return fmt.Errorf("cannot register nil node")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != core.AgentIdle {
		return &core.AgentStateError{Op: "register node", State: a.state}
	}
	if _, ok := a.nodes[n.ID()]; ok {
		return fmt.Errorf("node %q is already registered", n.ID())
	}

	if a.bus != nil {
		if attacher, ok := n.(core.BusAttacher); ok {
			if err := attacher.Attach(a.bus); err != nil {
				return fmt.Errorf("attach node %s: %w", n.ID(), err)
			}
		}
	}

	a.nodes[n.ID()] = n
	a.logger.Debug("node registered agent_id=%s node_id=%s node_type=%s", a.id, n.ID(), n.Type())
	return nil
}

// Node returns the registered node with the given id.
func (a *Agent) Node(id string) (core.Node, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	n, ok := a.nodes[id]
	return n, ok
}

// Nodes returns the registered nodes sorted by id.
func (a *Agent) Nodes() []core.Node {
	a.mu.RLock()
	defer a.mu.RUnlock()

	ids := make([]string, 0, len(a.nodes))
	for id := range a.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]core.Node, 0, len(ids))
	for _, id := range ids {
		out = append(out, a.nodes[id])
	}
	return out
}

// Initialize moves an idle agent to running: the initialize hook fires,
// nodes implementing core.Initializer are set up, the start hook fires and
// the execution worker starts. Any hook or node setup error aborts the
// transition and leaves the agent idle.
func (a *Agent) Initialize(ctx context.Context) error {
	a.mu.Lock()
	if a.state != core.AgentIdle {
		state := a.state
		a.mu.Unlock()
		return &core.AgentStateError{Op: "initialize", State: state}
	}
	nodes := make([]core.Node, 0, len(a.nodes))
	for _, n := range a.nodes {
		nodes = append(nodes, n)
	}
	a.mu.Unlock()

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID() < nodes[j].ID() })

	if err := a.hooks.OnInitialize(ctx); err != nil {
		return fmt.Errorf("initialize hook: %w", err)
	}

	for _, n := range nodes {
		if init, ok := n.(core.Initializer); ok {
			if err := init.Init(ctx); err != nil {
				return fmt.Errorf("init node %s: %w", n.ID(), err)
			}
		}
	}

	if err := a.hooks.OnStart(ctx); err != nil {
		return fmt.Errorf("start hook: %w", err)
	}

	a.mu.Lock()
	if a.state != core.AgentIdle {
		state := a.state
		a.mu.Unlock()
		return &core.AgentStateError{Op: "initialize", State: state}
	}
	stopCtx, cancel := context.WithCancel(context.Background())
	a.stopCtx = stopCtx
	a.stopCancel = cancel
	a.state = core.AgentRunning
	a.mu.Unlock()

	a.wg.Add(1)
	go a.worker(stopCtx)

	a.logger.Info("agent initialized agent_id=%s nodes=%d", a.id, len(nodes))
	return nil
}

// Pause moves a running agent to paused. It blocks until the in-flight
// execution drains; queued executions are held, not dropped. Pausing an
// agent that is not running returns an AgentStateError.
func (a *Agent) Pause(ctx context.Context) error {
	a.mu.RLock()
	if a.state != core.AgentRunning {
		state := a.state
		a.mu.RUnlock()
		return &core.AgentStateError{Op: "pause", State: state}
	}
	a.mu.RUnlock()

	// Take the executing slot: this waits for the current run to finish and
	// keeps the worker from starting another until Resume releases it.
	select {
	case a.execSlot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := a.hooks.OnPause(ctx); err != nil {
		<-a.execSlot
		return fmt.Errorf("pause hook: %w", err)
	}

	a.mu.Lock()
	if a.state != core.AgentRunning {
		state := a.state
		a.mu.Unlock()
		<-a.execSlot
		return &core.AgentStateError{Op: "pause", State: state}
	}
	a.state = core.AgentPaused
	a.pauseHeld = true
	a.mu.Unlock()

	a.logger.Info("agent paused agent_id=%s", a.id)
	return nil
}

// Resume moves a paused agent back to running and lets the worker continue
// draining the queue.
func (a *Agent) Resume(ctx context.Context) error {
	a.mu.RLock()
	if a.state != core.AgentPaused {
		state := a.state
		a.mu.RUnlock()
		return &core.AgentStateError{Op: "resume", State: state}
	}
	a.mu.RUnlock()

	if err := a.hooks.OnResume(ctx); err != nil {
		return fmt.Errorf("resume hook: %w", err)
	}

	a.mu.Lock()
	if a.state != core.AgentPaused {
		state := a.state
		a.mu.Unlock()
		return &core.AgentStateError{Op: "resume", State: state}
	}
	a.state = core.AgentRunning
	a.pauseHeld = false
	a.mu.Unlock()

	<-a.execSlot

	a.logger.Info("agent resumed agent_id=%s", a.id)
	return nil
}

// Stop moves the agent back to idle, a no-op when already idle. The
// in-flight execution finishes; pending queue entries fail with an
// AgentStateError result. The agent can be initialized again afterwards.
func (a *Agent) Stop(ctx context.Context) error {
	a.mu.RLock()
	if a.state == core.AgentIdle {
		a.mu.RUnlock()
		return nil
	}
	a.mu.RUnlock()

	if err := a.hooks.OnStop(ctx); err != nil {
		return fmt.Errorf("stop hook: %w", err)
	}

	a.mu.Lock()
	if a.state == core.AgentIdle {
		a.mu.Unlock()
		return nil
	}
	cancel := a.stopCancel
	paused := a.pauseHeld
	a.stopCancel = nil
	a.pauseHeld = false
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if paused {
		<-a.execSlot
	}
	a.wg.Wait()

	// Holding the write lock across the final sweep pairs with the lock
	// held by ExecuteNode's enqueue: anything enqueued before this point is
	// swept, anything after sees the idle state and is rejected.
	a.mu.Lock()
	a.drainQueue()
	a.state = core.AgentIdle
	a.mu.Unlock()

	a.logger.Info("agent stopped agent_id=%s", a.id)
	return nil
}

// worker serializes execution: it owns the dequeue loop and takes the
// executing slot around every run.
func (a *Agent) worker(ctx context.Context) {
	defer a.wg.Done()

	for {
		select {
		case <-ctx.Done():
			a.drainQueue()
			return
		case exec := <-a.queue:
			if ctx.Err() != nil {
				exec.deliver(Result{Err: &core.AgentStateError{Op: "execute", State: core.AgentIdle}})
				a.drainQueue()
				return
			}
			select {
			case a.execSlot <- struct{}{}:
			case <-ctx.Done():
				exec.deliver(Result{Err: &core.AgentStateError{Op: "execute", State: core.AgentIdle}})
				a.drainQueue()
				return
			}
			a.runExecution(exec)
			<-a.execSlot
		}
	}
}

// drainQueue fails every pending execution without running it.
func (a *Agent) drainQueue() {
	for {
		select {
		case exec := <-a.queue:
			exec.deliver(Result{Err: &core.AgentStateError{Op: "execute", State: core.AgentIdle}})
		default:
			return
		}
	}
}
