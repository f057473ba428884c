// Package manager arms and disarms trigger adapters for workflows. It owns
// the mapping from a workflow's trigger node config to the schedule or
// price-alert adapter watching it.
package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/spf13/cast"

	"github.com/jedilord/openalgo-flow/pkg/models"
	"github.com/jedilord/openalgo-flow/pkg/persistence"
	"github.com/jedilord/openalgo-flow/pkg/triggers"
	"github.com/jedilord/openalgo-flow/pkg/triggers/pricealert"
	"github.com/jedilord/openalgo-flow/pkg/triggers/schedule"
)

// Manager arms schedule and price-alert triggers for every active workflow.
// Webhook delivery goes through the HTTP layer and needs no arming here.
type Manager struct {
	repo     persistence.Repository
	monitor  *pricealert.Monitor
	callback triggers.Callback
	logger   *slog.Logger

	mu        sync.Mutex
	schedules map[string]*schedule.Trigger // keyed by workflow ID
}

func New(repo persistence.Repository, monitor *pricealert.Monitor, logger *slog.Logger) *Manager {
	return &Manager{
		repo:      repo,
		monitor:   monitor,
		logger:    logger.With("module", "trigger_manager"),
		schedules: make(map[string]*schedule.Trigger),
	}
}

// Start arms triggers for all active workflows in the store, paging through
// the full list.
func (m *Manager) Start(ctx context.Context, callback triggers.Callback) error {
	m.callback = callback

	if err := m.monitor.Start(ctx, callback); err != nil {
		return err
	}

	opts := persistence.ListWorkflowsOptions{
		Active: boolPtr(true),
		Limit:  100,
	}

	for {
		result, err := m.repo.ListWorkflows(ctx, opts)
		if err != nil {
			return fmt.Errorf("failed to list workflows: %w", err)
		}

		for _, workflow := range result.Workflows {
			if err := m.Arm(ctx, workflow); err != nil {
				m.logger.Error("Failed to arm workflow triggers",
					"workflow_id", workflow.ID, "error", err)
			}
		}

		if !result.HasNextPage {
			return nil
		}

		opts.Offset += len(result.Workflows)
	}
}

// Arm inspects a workflow's trigger node and arms the matching adapter.
// Workflows triggered by webhook or manually need nothing armed.
func (m *Manager) Arm(ctx context.Context, workflow *models.Workflow) error {
	trigger, ok := workflow.TriggerNode()
	if !ok {
		return models.ErrNoTriggerNode
	}

	switch cast.ToString(trigger.Config["triggerType"]) {
	case "schedule":
		return m.armSchedule(ctx, workflow, trigger)
	case "priceAlert":
		return m.armPriceAlert(ctx, workflow, trigger)
	default:
		return nil
	}
}

// Disarm tears down whatever Arm set up for a workflow.
func (m *Manager) Disarm(ctx context.Context, workflowID string) {
	m.mu.Lock()
	trigger, ok := m.schedules[workflowID]
	delete(m.schedules, workflowID)
	m.mu.Unlock()

	if ok {
		if err := trigger.Stop(ctx); err != nil {
			m.logger.Warn("Failed to stop schedule trigger",
				"workflow_id", workflowID, "error", err)
		}
	}

	m.monitor.RemoveAlerts(ctx, workflowID)
}

func (m *Manager) armSchedule(ctx context.Context, workflow *models.Workflow, node *models.Node) error {
	cronExpr := cast.ToString(node.Config["cron"])

	trigger, err := schedule.NewTrigger(workflow.ID, cronExpr, m.logger)
	if err != nil {
		return err
	}

	if err := trigger.Start(ctx, m.callback); err != nil {
		return err
	}

	m.mu.Lock()
	m.schedules[workflow.ID] = trigger
	m.mu.Unlock()

	return nil
}

func (m *Manager) armPriceAlert(ctx context.Context, workflow *models.Workflow, node *models.Node) error {
	return m.monitor.AddAlert(ctx, &pricealert.Alert{
		WorkflowID: workflow.ID,
		Symbol:     cast.ToString(node.Config["symbol"]),
		Exchange:   cast.ToString(node.Config["exchange"]),
		Condition:  cast.ToString(node.Config["condition"]),
		Price:      cast.ToFloat64(node.Config["price"]),
		Price2:     cast.ToFloat64(node.Config["price2"]),
	})
}

// Stop tears down every armed trigger.
func (m *Manager) Stop(ctx context.Context) {
	m.mu.Lock()
	armed := make([]*schedule.Trigger, 0, len(m.schedules))

	for id, trigger := range m.schedules {
		armed = append(armed, trigger)

		delete(m.schedules, id)
	}
	m.mu.Unlock()

	for _, trigger := range armed {
		if err := trigger.Stop(ctx); err != nil {
			m.logger.Warn("Failed to stop schedule trigger", "error", err)
		}
	}
}

func boolPtr(b bool) *bool {
	return &b
}
