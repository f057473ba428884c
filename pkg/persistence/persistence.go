package persistence

import (
	"context"

	"github.com/jedilord/openalgo-flow/pkg/models"
)

// ListWorkflowsOptions controls filtering, sorting and pagination for
// workflow listings.
type ListWorkflowsOptions struct {
	Active    *bool
	Limit     int
	Offset    int
	SortBy    string // created_at, updated_at, name
	SortOrder string // asc, desc
}

// WorkflowListResult carries one page of workflows.
type WorkflowListResult struct {
	Workflows   []*models.Workflow
	TotalCount  int64
	HasNextPage bool
}

// Repository is the storage contract for workflows and run records.
type Repository interface {
	ListWorkflows(ctx context.Context, opts ListWorkflowsOptions) (*WorkflowListResult, error)
	WorkflowByID(ctx context.Context, id string) (*models.Workflow, error)
	WorkflowByWebhookToken(ctx context.Context, token string) (*models.Workflow, error)
	SaveWorkflow(ctx context.Context, workflow *models.Workflow) error
	DeleteWorkflow(ctx context.Context, id string) error

	SaveExecution(ctx context.Context, execution *models.Execution) error
	ExecutionByID(ctx context.Context, id string) (*models.Execution, error)
	ListExecutions(ctx context.Context, workflowID string) ([]*models.Execution, error)

	Close(ctx context.Context) error
}
