// Package events defines run lifecycle event payloads published on the
// event bus for the editor/storage layer to consume.
package events

import (
	"time"

	"github.com/jedilord/openalgo-flow/pkg/models"
)

type EventType string

const Topic = "openalgoflow.executions"

const (
	WorkflowExecutionStartedEvent   EventType = "workflow.execution.started"
	WorkflowExecutionCompletedEvent EventType = "workflow.execution.completed"
	WorkflowExecutionFailedEvent    EventType = "workflow.execution.failed"
	NodeCompletionEvent             EventType = "node.completion"
)

type BaseEvent struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	WorkflowID  string    `json:"workflow_id"`
	ExecutionID string    `json:"execution_id"`
}

type WorkflowExecutionStarted struct {
	BaseEvent

	TriggerType string         `json:"trigger_type,omitempty"`
	TriggerData map[string]any `json:"trigger_data,omitempty"`
}

func (e WorkflowExecutionStarted) GetType() EventType {
	return WorkflowExecutionStartedEvent
}

type WorkflowExecutionCompleted struct {
	BaseEvent

	Duration time.Duration `json:"duration"`
	Nodes    int           `json:"nodes"`
}

func (e WorkflowExecutionCompleted) GetType() EventType {
	return WorkflowExecutionCompletedEvent
}

type WorkflowExecutionFailed struct {
	BaseEvent

	FailedNodeID string        `json:"failed_node_id"`
	Error        string        `json:"error"`
	Duration     time.Duration `json:"duration"`
}

func (e WorkflowExecutionFailed) GetType() EventType {
	return WorkflowExecutionFailedEvent
}

type NodeCompletion struct {
	BaseEvent

	NodeID     string            `json:"node_id"`
	NodeType   string            `json:"node_type"`
	Status     models.NodeStatus `json:"status"`
	ErrorKind  models.ErrorKind  `json:"error_kind,omitempty"`
	DurationMs int64             `json:"duration_ms"`
}

func (e NodeCompletion) GetType() EventType {
	return NodeCompletionEvent
}
