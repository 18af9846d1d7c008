// Package flowmesh provides a high-level façade over the node registry,
// message bus, agent runtime and flow tooling. Most applications interact
// with this package by:
//  1. Creating a Mesh via New() (optionally overriding the in-memory defaults)
//  2. Creating one or more agents and registering nodes on them
//  3. Deploying serialized flows and executing nodes through the agents
//
// The façade only wires the underlying packages together; each of them is
// usable on its own. All defaults are safe for local development and testing;
// production deployments typically supply a durable storage provider and a
// structured logger.
package flowmesh

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/flowmesh/bus"
	"github.com/hupe1980/flowmesh/config"
	"github.com/hupe1980/flowmesh/core"
	"github.com/hupe1980/flowmesh/graph"
	"github.com/hupe1980/flowmesh/logging"
	"github.com/hupe1980/flowmesh/metrics"
	"github.com/hupe1980/flowmesh/node"
	"github.com/hupe1980/flowmesh/registry"
	"github.com/hupe1980/flowmesh/runtime"
	"github.com/hupe1980/flowmesh/storage"
)

// Options configures the Mesh instance.
type Options struct {
	// Registry supplies the node types available for flow instantiation.
	// Defaults to a fresh versioned registry with the builtin nodes.
	Registry *registry.VersionedRegistry

	// Provider backs agent memory and the flow store. Defaults to the
	// in-memory provider.
	Provider core.StorageProvider

	// RetryStrategy is the bus delivery retry policy.
	RetryStrategy core.RetryStrategy

	// BusStore overrides the bus message history store.
	BusStore bus.Store

	// OnComplete is invoked once per message on terminal status.
	OnComplete bus.CompletionCallback

	// QueueSize bounds each agent's pending execution queue.
	QueueSize int

	// ExecutionTimeout is the default deadline for one execution attempt.
	ExecutionTimeout time.Duration

	// MaxRetries is the default number of execution attempts per node run.
	MaxRetries int

	// Backoff is the base wait between execution attempts.
	Backoff time.Duration

	// Logging services.
	Logger logging.Logger

	// Metrics collection; nil disables instrumentation.
	Metrics *metrics.Collector
}

// Mesh is the high-level façade aggregating registry, bus, runtime and flow
// tooling behind one wired instance.
type Mesh struct {
	opts     Options
	registry *registry.VersionedRegistry
	bus      *bus.MessageBus
	manager  *graph.Manager
	flows    *graph.Store
	provider core.StorageProvider

	mu     sync.RWMutex
	agents map[string]*runtime.Agent
}

// New creates a new Mesh instance with optional overrides. Any unset
// dependency is initialized with an in-memory implementation.
func New(optFns ...func(o *Options)) *Mesh {
	opts := Options{
		Provider:         storage.NewInMemoryProvider(),
		RetryStrategy:    core.DefaultRetryStrategy(),
		QueueSize:        100,
		ExecutionTimeout: 30 * time.Second,
		MaxRetries:       1,
		Backoff:          100 * time.Millisecond,
		Logger:           logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	reg := opts.Registry
	if reg == nil {
		reg = registry.NewVersioned(func(o *registry.VersionedOptions) {
			o.Logger = opts.Logger
		})
		// A fresh registry holds no types the builtins could collide with.
		_ = node.RegisterBuiltins(reg.Registry)
	}

	b := bus.New(func(o *bus.Options) {
		o.RetryStrategy = opts.RetryStrategy
		o.Logger = opts.Logger
		o.Metrics = opts.Metrics
		o.OnComplete = opts.OnComplete

		if opts.BusStore != nil {
			o.Store = opts.BusStore
		}
	})

	manager := graph.NewManager(func(o *graph.Options) {
		o.Registry = reg
		o.Logger = opts.Logger
	})

	flows := graph.NewStore(opts.Provider, func(o *graph.StoreOptions) {
		o.Logger = opts.Logger
	})

	return &Mesh{
		opts:     opts,
		registry: reg,
		bus:      b,
		manager:  manager,
		flows:    flows,
		provider: opts.Provider,
		agents:   make(map[string]*runtime.Agent),
	}
}

// FromConfig creates a Mesh from a loaded configuration, constructing the
// configured storage backend and logger. Explicit options are applied after
// the configuration and override it.
func FromConfig(cfg *config.Config, optFns ...func(o *Options)) (*Mesh, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	provider, err := newProvider(cfg.Storage)
	if err != nil {
		return nil, err
	}

	configured := func(o *Options) {
		o.Provider = provider
		o.RetryStrategy = cfg.Bus.RetryStrategy()
		o.QueueSize = cfg.Runtime.QueueSize
		o.ExecutionTimeout = cfg.Runtime.ExecutionTimeout
		o.MaxRetries = cfg.Runtime.MaxRetries
		o.Backoff = cfg.Runtime.Backoff
		o.Logger = logging.NewLogger(cfg.Logging.LoggerConfig())

		if cfg.Bus.StoreCapacity > 0 || cfg.Bus.StoreTTL > 0 {
			o.BusStore = bus.NewInMemoryStore(func(so *bus.StoreOptions) {
				so.Capacity = cfg.Bus.StoreCapacity
				so.TTL = cfg.Bus.StoreTTL
			})
		}
	}

	return New(append([]func(o *Options){configured}, optFns...)...), nil
}

// newProvider translates the storage section into a concrete provider.
func newProvider(cfg config.StorageConfig) (core.StorageProvider, error) {
	switch cfg.Backend {
	case "", "memory":
		return storage.NewInMemoryProvider(), nil
	case "redis":
		return storage.NewRedisProvider(cfg.Redis.Addr, func(o *storage.RedisOptions) {
			o.Password = cfg.Redis.Password
			o.DB = cfg.Redis.DB
			o.TTL = cfg.Redis.TTL
		})
	case "sqlite":
		return storage.NewSQLiteProvider(cfg.SQLite.Path)
	case "etcd":
		return storage.NewEtcdProvider(cfg.Etcd.Endpoints, func(o *storage.EtcdOptions) {
			o.Namespace = cfg.Etcd.Namespace
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// Registry returns the node registry backing flow instantiation.
func (m *Mesh) Registry() *registry.VersionedRegistry { return m.registry }

// Bus returns the message bus shared by all agents.
func (m *Mesh) Bus() *bus.MessageBus { return m.bus }

// Manager returns the flow serialization manager.
func (m *Mesh) Manager() *graph.Manager { return m.manager }

// Flows returns the persistent flow store.
func (m *Mesh) Flows() *graph.Store { return m.flows }

// Provider returns the storage provider backing agent memory and flows.
func (m *Mesh) Provider() core.StorageProvider { return m.provider }

// NewAgent creates an agent wired to the mesh's bus, storage provider,
// logger and execution defaults. The id must be unique within the mesh.
// Additional options are applied after the mesh wiring and override it.
func (m *Mesh) NewAgent(id string, optFns ...func(o *runtime.Options)) (*runtime.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.agents[id]; exists {
		return nil, fmt.Errorf("agent %q already exists", id)
	}

	wired := func(o *runtime.Options) {
		o.Bus = m.bus
		o.Provider = m.provider
		o.QueueSize = m.opts.QueueSize
		o.ExecutionTimeout = m.opts.ExecutionTimeout
		o.MaxRetries = m.opts.MaxRetries
		o.Backoff = m.opts.Backoff
		o.Logger = m.opts.Logger
		o.Metrics = m.opts.Metrics
	}

	a := runtime.New(id, append([]func(o *runtime.Options){wired}, optFns...)...)
	m.agents[id] = a

	return a, nil
}

// Agent returns the agent with the given id.
func (m *Mesh) Agent(id string) (*runtime.Agent, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.agents[id]

	return a, ok
}

// Agents returns the ids of all agents in the mesh, sorted.
func (m *Mesh) Agents() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.agents))
	for id := range m.agents {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

// DeployFlow validates and instantiates the flow through the registry and
// registers the resulting nodes on the agent. The agent must be idle. A
// validation or instantiation failure leaves the agent unchanged.
func (m *Mesh) DeployFlow(agentID string, flow *core.Flow) error {
	a, ok := m.Agent(agentID)
	if !ok {
		return fmt.Errorf("agent %q does not exist", agentID)
	}

	nodes, err := m.manager.Deserialize(flow)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	for _, id := range ids {
		if err := a.RegisterNode(nodes[id]); err != nil {
			return fmt.Errorf("register node %s: %w", id, err)
		}
	}

	return nil
}

// Shutdown stops every agent in the mesh. All agents are stopped even when
// one of them fails; the first error is returned.
func (m *Mesh) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	agents := make([]*runtime.Agent, 0, len(m.agents))

	for _, a := range m.agents {
		agents = append(agents, a)
	}
	m.mu.RUnlock()

	var firstErr error

	for _, a := range agents {
		if err := a.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}
