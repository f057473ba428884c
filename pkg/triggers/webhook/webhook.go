// Package webhook turns inbound HTTP payloads into workflow run seeds. The
// HTTP surface itself lives in pkg/web; this package owns token lookup,
// secret checking, and the shape of the seed a webhook-triggered run starts
// with.
package webhook

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"

	"github.com/jedilord/openalgo-flow/pkg/models"
	"github.com/jedilord/openalgo-flow/pkg/triggers"
)

var (
	ErrUnknownToken    = errors.New("unknown webhook token")
	ErrWebhookDisabled = errors.New("webhook is disabled for this workflow")
	ErrInvalidSecret   = errors.New("missing or invalid webhook secret")
)

// WorkflowLookup resolves a webhook token to its workflow.
type WorkflowLookup interface {
	WorkflowByWebhookToken(ctx context.Context, token string) (*models.Workflow, error)
}

// Receiver validates inbound webhook calls and dispatches runs.
type Receiver struct {
	lookup   WorkflowLookup
	callback triggers.Callback
	logger   *slog.Logger
}

func NewReceiver(lookup WorkflowLookup, logger *slog.Logger) *Receiver {
	return &Receiver{
		lookup: lookup,
		logger: logger.With("module", "webhook_trigger"),
	}
}

func (r *Receiver) Start(_ context.Context, callback triggers.Callback) error {
	r.callback = callback

	return nil
}

// Inspect looks up the workflow behind a token without enforcing the
// secret. Used by the test route so a user can check their URL before
// wiring a sender up to it.
func (r *Receiver) Inspect(ctx context.Context, token string) (*models.Workflow, error) {
	workflow, err := r.lookup.WorkflowByWebhookToken(ctx, token)
	if err != nil {
		return nil, ErrUnknownToken
	}

	return workflow, nil
}

// Resolve looks up the workflow behind a token and enforces webhook state
// and secret. The secret is read from the payload's top-level "secret" key
// and removed so it never reaches the run's variables.
func (r *Receiver) Resolve(ctx context.Context, token string, payload map[string]any) (*models.Workflow, error) {
	workflow, err := r.lookup.WorkflowByWebhookToken(ctx, token)
	if err != nil {
		return nil, ErrUnknownToken
	}

	if !workflow.WebhookEnabled || !workflow.IsActive {
		return nil, ErrWebhookDisabled
	}

	if workflow.WebhookSecret != "" {
		got, _ := payload["secret"].(string)
		delete(payload, "secret")

		if subtle.ConstantTimeCompare([]byte(got), []byte(workflow.WebhookSecret)) != 1 {
			return nil, ErrInvalidSecret
		}
	}

	return workflow, nil
}

// Trigger seeds and starts a run for the resolved workflow. The payload is
// namespaced under "webhook" so workflow nodes address fields as
// {{webhook.field}}. When the route carried a symbol segment it wins over
// any symbol in the payload body.
func (r *Receiver) Trigger(ctx context.Context, workflow *models.Workflow, payload map[string]any, symbol string) error {
	if payload == nil {
		payload = map[string]any{}
	}

	if symbol != "" {
		payload["symbol"] = symbol
	}

	seed := map[string]any{
		"trigger_type": "webhook",
		"webhook":      payload,
	}

	r.logger.Info("Webhook received", "workflow_id", workflow.ID)

	return r.callback(ctx, workflow.ID, seed)
}
