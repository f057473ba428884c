package web

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/jedilord/openalgo-flow/pkg/triggers/webhook"
)

const webhookRunTimeout = 2 * time.Minute

// HandleWebhook receives an inbound webhook and starts the workflow behind
// the token. The run happens off the request; the sender only learns that
// the payload was accepted.
func (h *APIHandlers) HandleWebhook(c fiber.Ctx) error {
	return h.handleWebhook(c, "")
}

// HandleWebhookWithSymbol is the symbol-in-URL variant: the path segment
// overrides any symbol in the payload body.
func (h *APIHandlers) HandleWebhookWithSymbol(c fiber.Ctx) error {
	return h.handleWebhook(c, c.Params("symbol"))
}

func (h *APIHandlers) handleWebhook(c fiber.Ctx, symbol string) error {
	token := c.Params("token")
	if token == "" {
		return badRequest(c, "Webhook token is required")
	}

	payload := map[string]any{}
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&payload); err != nil {
			return badRequest(c, "Invalid JSON in request body")
		}
	}

	workflow, err := h.receiver.Resolve(c.Context(), token, payload)
	if err != nil {
		switch {
		case errors.Is(err, webhook.ErrUnknownToken):
			return notFound(c, "Invalid webhook token")
		case errors.Is(err, webhook.ErrWebhookDisabled):
			return forbidden(c, "Webhook is not enabled for this workflow")
		case errors.Is(err, webhook.ErrInvalidSecret):
			return unauthorized(c, "Invalid webhook secret")
		default:
			return internalError(c, err)
		}
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), webhookRunTimeout)
		defer cancel()

		if err := h.receiver.Trigger(ctx, workflow, payload, symbol); err != nil {
			h.logger.Error("Webhook-triggered run failed",
				"workflow_id", workflow.ID, "error", err)
		}
	}()

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status":      "success",
		"message":     "Webhook received",
		"workflow_id": workflow.ID,
	})
}

// HandleWebhookTest lets a user verify their webhook URL without firing a
// run. The secret is not checked here since GET carries no body.
func (h *APIHandlers) HandleWebhookTest(c fiber.Ctx) error {
	token := c.Params("token")
	if token == "" {
		return badRequest(c, "Webhook token is required")
	}

	workflow, err := h.receiver.Inspect(c.Context(), token)
	if err != nil {
		return notFound(c, "Webhook not found")
	}

	return c.JSON(fiber.Map{
		"status":          "ok",
		"workflow_id":     workflow.ID,
		"workflow_name":   workflow.Name,
		"webhook_enabled": workflow.WebhookEnabled,
		"is_active":       workflow.IsActive,
		"secret_required": workflow.WebhookSecret != "",
	})
}
