package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/jedilord/openalgo-flow/pkg/models"
	"github.com/jedilord/openalgo-flow/pkg/nodes"
	"github.com/jedilord/openalgo-flow/pkg/persistence"
	"github.com/jedilord/openalgo-flow/pkg/triggers/webhook"
)

// Dispatcher starts a workflow run. The engine's Runner satisfies this.
type Dispatcher interface {
	ExecuteWorkflow(ctx context.Context, workflowID string, seed map[string]any) (*models.Execution, error)
}

// Armer reacts to workflow lifecycle changes by arming or disarming the
// workflow's schedule and price-alert triggers. The trigger manager
// satisfies this.
type Armer interface {
	Arm(ctx context.Context, workflow *models.Workflow) error
	Disarm(ctx context.Context, workflowID string)
}

type APIHandlers struct {
	repo       persistence.Repository
	dispatcher Dispatcher
	receiver   *webhook.Receiver
	registry   *nodes.Registry
	armer      Armer
	validator  *validator.Validate
	logger     *slog.Logger
}

func NewAPIHandlers(
	repo persistence.Repository,
	dispatcher Dispatcher,
	receiver *webhook.Receiver,
	registry *nodes.Registry,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		repo:       repo,
		dispatcher: dispatcher,
		receiver:   receiver,
		registry:   registry,
		validator:  validator.New(validator.WithRequiredStructEnabled()),
		logger:     logger.With("module", "web"),
	}
}

// WithArmer enables trigger re-arming on workflow changes.
func (h *APIHandlers) WithArmer(armer Armer) *APIHandlers {
	h.armer = armer

	return h
}

// rearm brings a workflow's armed triggers in line with its stored state.
func (h *APIHandlers) rearm(ctx context.Context, workflow *models.Workflow) {
	if h.armer == nil {
		return
	}

	h.armer.Disarm(ctx, workflow.ID)

	if !workflow.IsActive {
		return
	}

	if err := h.armer.Arm(ctx, workflow); err != nil {
		h.logger.Error("Failed to arm workflow triggers",
			"workflow_id", workflow.ID, "error", err)
	}
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	opts, err := h.parseListWorkflowsOptions(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	result, err := h.repo.ListWorkflows(c.Context(), *opts)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(fiber.Map{
		"workflows":     result.Workflows,
		"total_count":   result.TotalCount,
		"has_next_page": result.HasNextPage,
		"pagination": fiber.Map{
			"limit":  opts.Limit,
			"offset": opts.Offset,
		},
	})
}

func (h *APIHandlers) parseListWorkflowsOptions(c fiber.Ctx) (*persistence.ListWorkflowsOptions, error) {
	opts := &persistence.ListWorkflowsOptions{
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, err
		}

		opts.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return nil, err
		}

		opts.Offset = offset
	}

	if activeStr := c.Query("active"); activeStr != "" {
		active, err := strconv.ParseBool(activeStr)
		if err != nil {
			return nil, err
		}

		opts.Active = &active
	}

	return opts, nil
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, err := h.repo.WorkflowByID(c.Context(), id)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	workflow := &models.Workflow{
		ID:             "wf-" + uuid.New().String()[:8],
		Name:           req.Name,
		Description:    req.Description,
		Nodes:          req.Nodes,
		Edges:          req.Edges,
		IsActive:       req.IsActive,
		WebhookEnabled: req.WebhookEnabled,
	}

	if err := h.validateWorkflow(workflow); err != nil {
		return badRequest(c, err.Error())
	}

	if req.WebhookEnabled {
		workflow.WebhookToken = models.GenerateWebhookToken()
		workflow.WebhookSecret = models.GenerateWebhookSecret()
	}

	if err := h.repo.SaveWorkflow(c.Context(), workflow); err != nil {
		return handleStoreError(c, err)
	}

	h.rearm(c.Context(), workflow)

	return c.Status(fiber.StatusCreated).JSON(workflow)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req UpdateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	existing, err := h.repo.WorkflowByID(c.Context(), id)
	if err != nil {
		return handleStoreError(c, err)
	}

	if req.Name != nil {
		existing.Name = *req.Name
	}

	if req.Description != nil {
		existing.Description = *req.Description
	}

	if req.Nodes != nil {
		existing.Nodes = req.Nodes
	}

	if req.Edges != nil {
		existing.Edges = req.Edges
	}

	if req.IsActive != nil {
		existing.IsActive = *req.IsActive
	}

	if req.WebhookEnabled != nil {
		existing.WebhookEnabled = *req.WebhookEnabled

		// First enable mints credentials; re-enabling keeps them.
		if *req.WebhookEnabled && existing.WebhookToken == "" {
			existing.WebhookToken = models.GenerateWebhookToken()
			existing.WebhookSecret = models.GenerateWebhookSecret()
		}
	}

	if err := h.validateWorkflow(existing); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.repo.SaveWorkflow(c.Context(), existing); err != nil {
		return handleStoreError(c, err)
	}

	h.rearm(c.Context(), existing)

	return c.JSON(existing)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	if _, err := h.repo.WorkflowByID(c.Context(), id); err != nil {
		return handleStoreError(c, err)
	}

	if err := h.repo.DeleteWorkflow(c.Context(), id); err != nil {
		return handleStoreError(c, err)
	}

	if h.armer != nil {
		h.armer.Disarm(c.Context(), id)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// RegenerateWebhook mints a fresh token and secret for a workflow, invalidating
// the previous pair.
func (h *APIHandlers) RegenerateWebhook(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, err := h.repo.WorkflowByID(c.Context(), id)
	if err != nil {
		return handleStoreError(c, err)
	}

	workflow.WebhookToken = models.GenerateWebhookToken()
	workflow.WebhookSecret = models.GenerateWebhookSecret()
	workflow.WebhookEnabled = true

	if err := h.repo.SaveWorkflow(c.Context(), workflow); err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(fiber.Map{
		"webhook_token":  workflow.WebhookToken,
		"webhook_secret": workflow.WebhookSecret,
	})
}

// ExecuteWorkflow starts a manual run and returns the finished record.
func (h *APIHandlers) ExecuteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req ExecuteWorkflowRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	seed := req.Variables
	if seed == nil {
		seed = map[string]any{}
	}

	seed["trigger_type"] = "manual"

	execution, err := h.dispatcher.ExecuteWorkflow(c.Context(), id, seed)
	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			return notFound(c, "Workflow not found")
		}

		if errors.Is(err, models.ErrNoTriggerNode) {
			return badRequest(c, err.Error())
		}

		return internalError(c, err)
	}

	if err := h.repo.SaveExecution(c.Context(), execution); err != nil {
		h.logger.Error("Failed to persist execution", "execution_id", execution.ID, "error", err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) GetExecutions(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	executions, err := h.repo.ListExecutions(c.Context(), id)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(fiber.Map{"executions": executions})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	execution, err := h.repo.ExecutionByID(c.Context(), id)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(execution)
}

// validateWorkflow checks graph shape and each node's config schema.
func (h *APIHandlers) validateWorkflow(workflow *models.Workflow) error {
	if err := workflow.ValidateGraph(); err != nil {
		return err
	}

	for _, node := range workflow.Nodes {
		if err := h.registry.ValidateConfig(node.Type, node.Config); err != nil {
			return fmt.Errorf("node %s: %w", node.ID, err)
		}
	}

	return nil
}
