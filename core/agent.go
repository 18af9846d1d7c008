package core

// AgentState is one of the fixed lifecycle states an agent moves through
// under its runtime's control.
//
// Legal transitions: idle → running (initialize), running ↔ paused
// (pause/resume), any → idle (stop). Everything else is an AgentStateError.
type AgentState string

const (
	// AgentIdle is the initial state. Node registration is only legal here.
	AgentIdle AgentState = "idle"
	// AgentRunning accepts and drains node executions.
	AgentRunning AgentState = "running"
	// AgentPaused holds queued executions without draining them.
	AgentPaused AgentState = "paused"
)

// AgentInfo carries identifying details about an agent used in logs and
// metrics. ID is the external identifier; Name is the human readable label.
type AgentInfo struct{ ID, Name string }
