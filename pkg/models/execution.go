package models

import "time"

// ExecutionStatus is the lifecycle state of one workflow run.
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// LogEntry is one line of the per-run node log.
type LogEntry struct {
	NodeID   string      `json:"node_id"`
	NodeType string      `json:"node_type"`
	Result   *NodeResult `json:"result"`
}

// Execution is the record handed back to the caller when a run terminates:
// final status, the ordered node log, and the final variable snapshot.
type Execution struct {
	ID           string          `json:"id"`
	WorkflowID   string          `json:"workflow_id"`
	Status       ExecutionStatus `json:"status"`
	StartedAt    time.Time       `json:"started_at"`
	CompletedAt  time.Time       `json:"completed_at,omitempty"`
	Log          []LogEntry      `json:"log"`
	Variables    map[string]any  `json:"variables,omitempty"`
	FailedNodeID string          `json:"failed_node_id,omitempty"`
	Error        string          `json:"error,omitempty"`
}
