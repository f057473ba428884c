// Package models defines the core domain models for node-based trading workflows.
package models

import "time"

// Node types understood by the execution engine. The set is closed: adding a
// type means adding an executor and releasing both together.
const (
	NodeTypeTrigger        = "trigger"
	NodeTypeCondition      = "condition"
	NodeTypePriceCondition = "priceCondition"
	NodeTypeTimeWindow     = "timeWindow"
	NodeTypePlaceOrder     = "placeOrder"
	NodeTypeSmartOrder     = "smartOrder"
	NodeTypeBasketOrder    = "basketOrder"
	NodeTypeSplitOrder     = "splitOrder"
	NodeTypeOptionsOrder   = "optionsOrder"
	NodeTypeClosePosition  = "closePosition"
	NodeTypeFetchQuote     = "fetchQuote"
	NodeTypeVariable       = "variable"
	NodeTypeLog            = "log"
	NodeTypeDelay          = "delay"
)

// Branch labels used on outgoing edges of branching nodes.
const (
	BranchTrue  = "true"
	BranchFalse = "false"
)

// BranchingNodeTypes lists node types that must have exactly two outgoing
// edges labeled true/false.
var BranchingNodeTypes = map[string]bool{
	NodeTypeCondition:      true,
	NodeTypePriceCondition: true,
	NodeTypeTimeWindow:     true,
}

// Node is a single node instance in a workflow graph. Config is an open
// mapping validated per node type before execution.
type Node struct {
	ID     string         `json:"id"     validate:"required"`
	Type   string         `json:"type"   validate:"required"`
	Name   string         `json:"name,omitempty"`
	Config map[string]any `json:"config"`
}

// OutputVariable returns the context variable name this node's output should
// be stored under, or "" when the node does not declare one.
func (n *Node) OutputVariable() string {
	if n.Config == nil {
		return ""
	}

	name, _ := n.Config["outputVariable"].(string)

	return name
}

// IsBranching reports whether the node routes execution by branch label.
func (n *Node) IsBranching() bool {
	return BranchingNodeTypes[n.Type]
}

// NodeStatus is the outcome of one node visit.
type NodeStatus string

const (
	NodeStatusSuccess NodeStatus = "success"
	NodeStatusFailure NodeStatus = "failure"
)

// ErrorKind classifies node and order failures for the run log.
type ErrorKind string

const (
	ErrorKindNone               ErrorKind = ""
	ErrorKindResolution         ErrorKind = "resolution_error"
	ErrorKindInvalidPosition    ErrorKind = "invalid_position_state"
	ErrorKindOrderRejected      ErrorKind = "order_rejected"
	ErrorKindTimeout            ErrorKind = "timeout"
	ErrorKindTemplateUnresolved ErrorKind = "template_unresolved"
)

// NodeResult is produced exactly once per node visit.
type NodeResult struct {
	NodeID    string     `json:"node_id"`
	Status    NodeStatus `json:"status"`
	Output    any        `json:"output,omitempty"`
	Branch    string     `json:"branch,omitempty"`
	ErrorKind ErrorKind  `json:"error_kind,omitempty"`
	Error     string     `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// Succeeded reports whether the visit completed without failure.
func (r *NodeResult) Succeeded() bool {
	return r.Status == NodeStatusSuccess
}
