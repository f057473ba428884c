package models

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// Edge is a directed connection between two nodes. Label is set only on
// edges leaving branching nodes ("true"/"false").
type Edge struct {
	ID    string `json:"id,omitempty"`
	From  string `json:"from"  validate:"required"`
	To    string `json:"to"    validate:"required"`
	Label string `json:"label,omitempty"`
}

// Workflow is a stored workflow definition: the graph plus webhook and
// activation state. The graph is read-only during execution.
type Workflow struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"        validate:"required,min=3"`
	Description    string    `json:"description,omitempty"`
	Nodes          []*Node   `json:"nodes"`
	Edges          []*Edge   `json:"edges"`
	IsActive       bool      `json:"is_active"`
	WebhookToken   string    `json:"webhook_token,omitempty"`
	WebhookSecret  string    `json:"webhook_secret,omitempty"`
	WebhookEnabled bool      `json:"webhook_enabled"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NodeByID returns the node with the given ID.
func (w *Workflow) NodeByID(id string) (*Node, bool) {
	for _, n := range w.Nodes {
		if n.ID == id {
			return n, true
		}
	}

	return nil, false
}

// TriggerNode returns the workflow's single trigger node.
func (w *Workflow) TriggerNode() (*Node, bool) {
	for _, n := range w.Nodes {
		if n.Type == NodeTypeTrigger {
			return n, true
		}
	}

	return nil, false
}

// OutgoingEdges returns the edges leaving the given node, in definition order.
func (w *Workflow) OutgoingEdges(nodeID string) []*Edge {
	var out []*Edge

	for _, e := range w.Edges {
		if e.From == nodeID {
			out = append(out, e)
		}
	}

	return out
}

// ValidateGraph checks the structural invariants the engine relies on:
// exactly one trigger node, every non-trigger node reachable through at least
// one incoming edge, branching nodes with exactly two labeled outgoing edges,
// and all other nodes with at most one outgoing edge.
func (w *Workflow) ValidateGraph() error {
	triggers := 0

	incoming := make(map[string]int)
	for _, e := range w.Edges {
		if _, ok := w.NodeByID(e.From); !ok {
			return fmt.Errorf("edge %s -> %s: unknown source node", e.From, e.To)
		}

		if _, ok := w.NodeByID(e.To); !ok {
			return fmt.Errorf("edge %s -> %s: unknown target node", e.From, e.To)
		}

		incoming[e.To]++
	}

	for _, n := range w.Nodes {
		if n.Type == NodeTypeTrigger {
			triggers++

			continue
		}

		if incoming[n.ID] == 0 {
			return fmt.Errorf("node %s (%s) has no incoming edge", n.ID, n.Type)
		}
	}

	if triggers != 1 {
		return fmt.Errorf("workflow must have exactly one trigger node, found %d", triggers)
	}

	for _, n := range w.Nodes {
		out := w.OutgoingEdges(n.ID)

		if n.IsBranching() {
			if err := validateBranchEdges(n, out); err != nil {
				return err
			}

			continue
		}

		if len(out) > 1 {
			return fmt.Errorf("node %s (%s) has %d outgoing edges, at most one allowed", n.ID, n.Type, len(out))
		}
	}

	return nil
}

func validateBranchEdges(n *Node, out []*Edge) error {
	if len(out) != 2 {
		return fmt.Errorf("branching node %s (%s) must have exactly two outgoing edges, found %d", n.ID, n.Type, len(out))
	}

	labels := map[string]bool{}
	for _, e := range out {
		labels[e.Label] = true
	}

	if !labels[BranchTrue] || !labels[BranchFalse] {
		return fmt.Errorf("branching node %s (%s) edges must be labeled %q and %q", n.ID, n.Type, BranchTrue, BranchFalse)
	}

	return nil
}

// ErrNoTriggerNode is returned when a run is requested for a workflow whose
// graph has no trigger node.
var ErrNoTriggerNode = errors.New("workflow has no trigger node")

// GenerateWebhookToken returns a URL-safe token identifying a workflow's
// webhook endpoint.
func GenerateWebhookToken() string {
	buf := make([]byte, 32)
	_, _ = rand.Read(buf)

	return base64.RawURLEncoding.EncodeToString(buf)
}

// GenerateWebhookSecret returns a shared secret expected in webhook payloads.
func GenerateWebhookSecret() string {
	buf := make([]byte, 32)
	_, _ = rand.Read(buf)

	return hex.EncodeToString(buf)
}
