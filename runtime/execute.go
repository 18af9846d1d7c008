package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/flowmesh/core"
)

// ExecOptions override the agent's execution defaults for a single call.
type ExecOptions struct {
	// Timeout is the deadline for one execution attempt; zero disables it.
	Timeout time.Duration
	// MaxRetries is the number of additional attempts after a failure.
	MaxRetries int
}

// Result reports the outcome of one node execution. Execution failures are
// carried here rather than as an ExecuteNode error: a node that ran and
// failed still produces a Result.
type Result struct {
	// Success is true when an attempt returned without error.
	Success bool
	// Output is the node's return value on success.
	Output any
	// Err holds the failure when Success is false. After exhausted retries
	// it is a RetryExhaustedError wrapping the last attempt's error.
	Err error
	// Attempts counts the execution attempts made, including the successful
	// one.
	Attempts int
	// Duration is the total wall time spent, retries and waits included.
	Duration time.Duration
}

type execution struct {
	node   core.Node
	input  any
	opts   ExecOptions
	ctx    context.Context
	result chan Result
}

// deliver hands the result to the waiting caller without blocking.
func (e *execution) deliver(res Result) {
	select {
	case e.result <- res:
	default:
	}
}

// ExecuteNode queues an execution of the referenced node and waits for its
// Result. nodeRef is a node id, or a node type when exactly one registered
// node has that type. Executions run one at a time in submission order.
//
// The returned error covers queueing problems only: the agent not running,
// an unknown or ambiguous node reference, a full queue or a cancelled wait.
// Node failures, timeouts and exhausted retries are reported in the Result.
func (a *Agent) ExecuteNode(ctx context.Context, nodeRef string, input any, optFns ...func(o *ExecOptions)) (*Result, error) {
	opts := ExecOptions{
		Timeout:    a.executionTimeout,
		MaxRetries: a.maxRetries,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	exec := &execution{
		input:  input,
		opts:   opts,
		ctx:    ctx,
		result: make(chan Result, 1),
	}

	// The state check and the enqueue share one critical section so Stop's
	// final sweep cannot strand an entry between them.
	a.mu.RLock()
	if a.state != core.AgentRunning {
		state := a.state
		a.mu.RUnlock()
		return nil, &core.AgentStateError{Op: "execute", State: state}
	}

	node, err := a.resolveNode(nodeRef)
	if err != nil {
		a.mu.RUnlock()
		return nil, err
	}
	exec.node = node

	select {
	case a.queue <- exec:
	default:
		a.mu.RUnlock()
		return nil, fmt.Errorf("execution queue is full (capacity %d)", cap(a.queue))
	}
	a.mu.RUnlock()

	a.metrics.SetQueueDepth(a.id, len(a.queue))
	a.logger.Debug("execution queued agent_id=%s node_id=%s", a.id, node.ID())

	select {
	case res := <-exec.result:
		return &res, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// resolveNode maps a node reference to a registered instance. Ids win over
// types; a type reference matching several instances is ambiguous. Callers
// hold a.mu.
func (a *Agent) resolveNode(nodeRef string) (core.Node, error) {
	if n, ok := a.nodes[nodeRef]; ok {
		return n, nil
	}

	var match core.Node
	for _, n := range a.nodes {
		if n.Type() != nodeRef {
			continue
		}
		if match != nil {
			return nil, fmt.Errorf("node reference %q is ambiguous: multiple nodes of that type are registered", nodeRef)
		}
		match = n
	}
	if match == nil {
		return nil, fmt.Errorf("no node registered for reference %q", nodeRef)
	}
	return match, nil
}

// runExecution drives one queued execution to a Result and records the
// outcome. The worker holds the executing slot while this runs.
func (a *Agent) runExecution(exec *execution) {
	start := time.Now()
	res := a.executeWithRetry(exec)
	res.Duration = time.Since(start)

	status := "failure"
	if res.Success {
		status = "success"
	}

	a.mu.Lock()
	a.executionCount++
	if !res.Success {
		a.lastError = res.Err
	}
	a.mu.Unlock()

	a.metrics.RecordExecution(exec.node.Type(), status, res.Duration)
	a.metrics.SetQueueDepth(a.id, len(a.queue))

	if res.Success {
		a.logger.Info("execution finished agent_id=%s node_id=%s attempts=%d duration=%s", a.id, exec.node.ID(), res.Attempts, res.Duration)
	} else {
		a.logger.Error("execution failed agent_id=%s node_id=%s attempts=%d err=%v", a.id, exec.node.ID(), res.Attempts, res.Err)
	}

	exec.deliver(res)
}

// executeWithRetry attempts the execution up to MaxRetries+1 times. The wait
// between attempts grows linearly with the attempt number.
func (a *Agent) executeWithRetry(exec *execution) Result {
	maxAttempts := exec.opts.MaxRetries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		out, err := a.runOnce(exec)
		if err == nil {
			return Result{Success: true, Output: out, Attempts: attempt}
		}
		lastErr = err

		a.logger.Warn("execution attempt failed agent_id=%s node_id=%s attempt=%d err=%v", a.id, exec.node.ID(), attempt, err)

		// Validation failures are deterministic; retrying cannot change the
		// outcome.
		var vErr *core.ValidationError
		if errors.As(err, &vErr) {
			return Result{Err: err, Attempts: attempt}
		}

		if attempt == maxAttempts {
			break
		}

		select {
		case <-time.After(a.backoff * time.Duration(attempt)):
		case <-exec.ctx.Done():
			return Result{Err: exec.ctx.Err(), Attempts: attempt}
		}
	}

	if maxAttempts > 1 {
		lastErr = &core.RetryExhaustedError{Attempts: maxAttempts, Err: lastErr}
	}
	return Result{Err: lastErr, Attempts: maxAttempts}
}

// runOnce performs a single execution attempt under the configured timeout.
func (a *Agent) runOnce(exec *execution) (any, error) {
	if v, ok := exec.node.(core.InputValidator); ok {
		if err := v.ValidateInput(exec.input); err != nil {
			return nil, err
		}
	}

	ctx := exec.ctx
	if exec.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, exec.opts.Timeout)
		defer cancel()
	}

	type outcome struct {
		out any
		err error
	}

	done := make(chan outcome, 1)
	go func() {
		out, err := exec.node.Execute(ctx, exec.input)
		done <- outcome{out: out, err: err}
	}()

	var out any
	select {
	case o := <-done:
		if o.err != nil {
			// A cooperative node returns the deadline error itself; report it
			// the same way as an unresponsive one.
			if errors.Is(o.err, context.DeadlineExceeded) && exec.ctx.Err() == nil {
				return nil, &core.ExecutionTimeoutError{NodeID: exec.node.ID(), Timeout: exec.opts.Timeout}
			}
			return nil, o.err
		}
		out = o.out
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && exec.ctx.Err() == nil {
			return nil, &core.ExecutionTimeoutError{NodeID: exec.node.ID(), Timeout: exec.opts.Timeout}
		}
		return nil, ctx.Err()
	}

	if v, ok := exec.node.(core.OutputValidator); ok {
		if err := v.ValidateOutput(out); err != nil {
			return nil, err
		}
	}

	return out, nil
}
