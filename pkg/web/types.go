// Package web provides the HTTP surface: workflow management, run records,
// and the inbound webhook routes.
package web

import "github.com/jedilord/openalgo-flow/pkg/models"

// CreateWorkflowRequest is the request body for creating a new workflow.
type CreateWorkflowRequest struct {
	Name           string         `json:"name"            validate:"required,min=3"`
	Description    string         `json:"description"`
	Nodes          []*models.Node `json:"nodes"           validate:"required,min=1"`
	Edges          []*models.Edge `json:"edges"`
	IsActive       bool           `json:"is_active"`
	WebhookEnabled bool           `json:"webhook_enabled"`
}

// UpdateWorkflowRequest is the request body for updating an existing
// workflow. All fields are optional to support partial updates.
type UpdateWorkflowRequest struct {
	Name           *string        `json:"name,omitempty"            validate:"omitempty,min=3"`
	Description    *string        `json:"description,omitempty"`
	Nodes          []*models.Node `json:"nodes,omitempty"`
	Edges          []*models.Edge `json:"edges,omitempty"`
	IsActive       *bool          `json:"is_active,omitempty"`
	WebhookEnabled *bool          `json:"webhook_enabled,omitempty"`
}

// ExecuteWorkflowRequest seeds a manual run.
type ExecuteWorkflowRequest struct {
	Variables map[string]any `json:"variables,omitempty"`
}
