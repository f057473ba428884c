// Package schedule fires workflow runs on a cron expression. Recurrence
// semantics belong to the cron library; this adapter only seeds the run.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jedilord/openalgo-flow/pkg/triggers"
)

type Trigger struct {
	WorkflowID string
	CronExpr   string

	cron     *cron.Cron
	callback triggers.Callback
	logger   *slog.Logger
}

// NewTrigger creates a schedule trigger for one workflow.
func NewTrigger(workflowID, cronExpr string, logger *slog.Logger) (*Trigger, error) {
	trigger := &Trigger{
		WorkflowID: workflowID,
		CronExpr:   cronExpr,
		logger: logger.With(
			"module", "schedule_trigger",
			"workflow_id", workflowID,
			"cron", cronExpr,
		),
	}

	if err := trigger.Validate(); err != nil {
		return nil, err
	}

	return trigger, nil
}

func (t *Trigger) Validate() error {
	if t.WorkflowID == "" {
		return errors.New("schedule trigger workflow ID is required")
	}

	if t.CronExpr == "" {
		return errors.New("schedule trigger cron expression is required")
	}

	if _, err := cron.ParseStandard(t.CronExpr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	return nil
}

// Start registers the cron job. The run is seeded with system-style fields
// only; everything else the workflow needs comes from its own nodes.
func (t *Trigger) Start(_ context.Context, callback triggers.Callback) error {
	t.logger.Info("Starting schedule trigger")
	t.callback = callback

	t.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	if _, err := t.cron.AddFunc(t.CronExpr, t.run); err != nil {
		return fmt.Errorf("failed to add cron job for workflow %s: %w", t.WorkflowID, err)
	}

	t.cron.Start()

	return nil
}

func (t *Trigger) run() {
	t.logger.Info("Cron fired")

	seed := map[string]any{
		"trigger_type": "schedule",
		"triggered_at": time.Now().UTC().Format(time.RFC3339),
	}

	go func() {
		if err := t.callback(context.Background(), t.WorkflowID, seed); err != nil {
			t.logger.Error("Scheduled run failed", "error", err)
		}
	}()
}

// Stop halts the cron job; an in-flight run finishes on its own.
func (t *Trigger) Stop(_ context.Context) error {
	t.logger.Info("Stopping schedule trigger")

	if t.cron != nil {
		t.cron.Stop()
	}

	return nil
}
