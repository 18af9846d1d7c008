// Package runtime drives node executions on behalf of one agent. Every agent
// owns a FIFO execution queue drained by a single worker: executions are
// strictly serialized regardless of node type, preserving submission order.
// Each execution validates input, runs the node under a deadline, validates
// output and retries failures with linear backoff; the caller always receives
// a Result for node-level failures, while programmer errors (unknown node,
// wrong lifecycle state) are returned as plain errors.
//
// The agent lifecycle is a small state machine: idle → running via
// Initialize, running ↔ paused via Pause/Resume, any state → idle via Stop.
// Pause blocks until the in-flight execution drains. Lifecycle hooks let
// applications observe each transition.
package runtime
