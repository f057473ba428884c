// Package triggers defines the contract shared by all trigger adapters:
// each adapter only builds the initial variable seed for a run and invokes
// the callback; transports (timers, feeds, HTTP) live with their owners.
package triggers

import "context"

// Callback starts one workflow run with the given seed variables.
type Callback func(ctx context.Context, workflowID string, seed map[string]any) error
