package webhook

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jedilord/openalgo-flow/pkg/models"
	"github.com/jedilord/openalgo-flow/pkg/persistence"
)

type lookupStub struct {
	workflows map[string]*models.Workflow
}

func (s *lookupStub) WorkflowByWebhookToken(_ context.Context, token string) (*models.Workflow, error) {
	if wf, ok := s.workflows[token]; ok {
		return wf, nil
	}

	return nil, persistence.ErrWebhookTokenNotFound
}

func testReceiver(t *testing.T, workflows ...*models.Workflow) *Receiver {
	t.Helper()

	lookup := &lookupStub{workflows: make(map[string]*models.Workflow)}
	for _, wf := range workflows {
		lookup.workflows[wf.WebhookToken] = wf
	}

	return NewReceiver(lookup, slog.Default())
}

func enabledWorkflow(secret string) *models.Workflow {
	return &models.Workflow{
		ID:             "wf-hook01",
		Name:           "Webhook entry",
		IsActive:       true,
		WebhookEnabled: true,
		WebhookToken:   "tok-abc",
		WebhookSecret:  secret,
	}
}

func TestResolve_ValidSecret(t *testing.T) {
	receiver := testReceiver(t, enabledWorkflow("s3cret"))

	payload := map[string]any{"secret": "s3cret", "symbol": "NIFTY"}

	workflow, err := receiver.Resolve(t.Context(), "tok-abc", payload)
	require.NoError(t, err)
	assert.Equal(t, "wf-hook01", workflow.ID)

	// The secret never reaches the run's variables.
	_, present := payload["secret"]
	assert.False(t, present)
	assert.Equal(t, "NIFTY", payload["symbol"])
}

func TestResolve_InvalidSecret(t *testing.T) {
	receiver := testReceiver(t, enabledWorkflow("s3cret"))

	_, err := receiver.Resolve(t.Context(), "tok-abc", map[string]any{"secret": "wrong"})
	assert.ErrorIs(t, err, ErrInvalidSecret)

	_, err = receiver.Resolve(t.Context(), "tok-abc", map[string]any{})
	assert.ErrorIs(t, err, ErrInvalidSecret)
}

func TestResolve_NoSecretConfigured(t *testing.T) {
	receiver := testReceiver(t, enabledWorkflow(""))

	_, err := receiver.Resolve(t.Context(), "tok-abc", map[string]any{"symbol": "NIFTY"})
	assert.NoError(t, err)
}

func TestResolve_UnknownToken(t *testing.T) {
	receiver := testReceiver(t)

	_, err := receiver.Resolve(t.Context(), "tok-missing", map[string]any{})
	assert.ErrorIs(t, err, ErrUnknownToken)
}

func TestResolve_DisabledOrInactive(t *testing.T) {
	disabled := enabledWorkflow("")
	disabled.WebhookEnabled = false

	inactive := enabledWorkflow("")
	inactive.WebhookToken = "tok-inactive"
	inactive.IsActive = false

	receiver := testReceiver(t, disabled, inactive)

	_, err := receiver.Resolve(t.Context(), "tok-abc", map[string]any{})
	assert.ErrorIs(t, err, ErrWebhookDisabled)

	_, err = receiver.Resolve(t.Context(), "tok-inactive", map[string]any{})
	assert.ErrorIs(t, err, ErrWebhookDisabled)
}

func TestInspect_SkipsSecretCheck(t *testing.T) {
	receiver := testReceiver(t, enabledWorkflow("s3cret"))

	workflow, err := receiver.Inspect(t.Context(), "tok-abc")
	require.NoError(t, err)
	assert.Equal(t, "wf-hook01", workflow.ID)

	_, err = receiver.Inspect(t.Context(), "tok-missing")
	assert.ErrorIs(t, err, ErrUnknownToken)
}

func TestTrigger_SeedShape(t *testing.T) {
	receiver := testReceiver(t)

	var (
		gotWorkflowID string
		gotSeed       map[string]any
	)

	require.NoError(t, receiver.Start(t.Context(), func(_ context.Context, workflowID string, seed map[string]any) error {
		gotWorkflowID = workflowID
		gotSeed = seed

		return nil
	}))

	workflow := enabledWorkflow("")
	payload := map[string]any{"symbol": "NIFTY", "action": "BUY"}

	require.NoError(t, receiver.Trigger(t.Context(), workflow, payload, ""))

	assert.Equal(t, "wf-hook01", gotWorkflowID)
	assert.Equal(t, "webhook", gotSeed["trigger_type"])

	body, ok := gotSeed["webhook"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "BUY", body["action"])
	assert.Equal(t, "NIFTY", body["symbol"])
}

func TestTrigger_URLSymbolOverridesBody(t *testing.T) {
	receiver := testReceiver(t)

	var gotSeed map[string]any

	require.NoError(t, receiver.Start(t.Context(), func(_ context.Context, _ string, seed map[string]any) error {
		gotSeed = seed

		return nil
	}))

	payload := map[string]any{"symbol": "RELIANCE"}
	require.NoError(t, receiver.Trigger(t.Context(), enabledWorkflow(""), payload, "BANKNIFTY"))

	body := gotSeed["webhook"].(map[string]any)
	assert.Equal(t, "BANKNIFTY", body["symbol"])
}

func TestTrigger_NilPayload(t *testing.T) {
	receiver := testReceiver(t)

	var gotSeed map[string]any

	require.NoError(t, receiver.Start(t.Context(), func(_ context.Context, _ string, seed map[string]any) error {
		gotSeed = seed

		return nil
	}))

	require.NoError(t, receiver.Trigger(t.Context(), enabledWorkflow(""), nil, "NIFTY"))

	body := gotSeed["webhook"].(map[string]any)
	assert.Equal(t, "NIFTY", body["symbol"])
}
