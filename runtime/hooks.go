package runtime

import "context"

// LifecycleHooks observes agent lifecycle transitions. Each hook runs before
// its transition is committed; a hook error aborts the transition and leaves
// the agent's state unchanged.
type LifecycleHooks interface {
	// OnInitialize runs once when an idle agent begins initialization,
	// before its nodes are set up.
	OnInitialize(ctx context.Context) error
	// OnStart runs after node setup, immediately before the agent starts
	// accepting executions.
	OnStart(ctx context.Context) error
	// OnPause runs after the in-flight execution drained, before the agent
	// is marked paused.
	OnPause(ctx context.Context) error
	// OnResume runs before a paused agent starts draining its queue again.
	OnResume(ctx context.Context) error
	// OnStop runs before the agent shuts its worker down.
	OnStop(ctx context.Context) error
}

// NoOpHooks implements LifecycleHooks with no behavior. Embed it to override
// selected hooks only.
type NoOpHooks struct{}

var _ LifecycleHooks = NoOpHooks{}

// OnInitialize implements LifecycleHooks.
func (NoOpHooks) OnInitialize(context.Context) error { return nil }

// OnStart implements LifecycleHooks.
func (NoOpHooks) OnStart(context.Context) error { return nil }

// OnPause implements LifecycleHooks.
func (NoOpHooks) OnPause(context.Context) error { return nil }

// OnResume implements LifecycleHooks.
func (NoOpHooks) OnResume(context.Context) error { return nil }

// OnStop implements LifecycleHooks.
func (NoOpHooks) OnStop(context.Context) error { return nil }
