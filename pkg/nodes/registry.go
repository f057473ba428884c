// Package nodes implements the execution strategies for every node type the
// engine understands. The type set is closed, so dispatch is a fixed map
// built at startup rather than an open plugin registry.
package nodes

import (
	"fmt"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/jedilord/openalgo-flow/pkg/broker"
	"github.com/jedilord/openalgo-flow/pkg/execution"
	"github.com/jedilord/openalgo-flow/pkg/models"
	"github.com/jedilord/openalgo-flow/pkg/orders"
)

// Deps are the collaborators executors draw on.
type Deps struct {
	Client       broker.Client
	Orchestrator *orders.Orchestrator
	Clock        func() time.Time
}

// Registry holds one executor per node type.
type Registry struct {
	executors map[string]execution.Executor
}

// NewRegistry builds the full executor set.
func NewRegistry(deps Deps) *Registry {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	return &Registry{
		executors: map[string]execution.Executor{
			models.NodeTypeTrigger:        &TriggerExecutor{},
			models.NodeTypeCondition:      &ConditionExecutor{},
			models.NodeTypePriceCondition: &PriceConditionExecutor{Client: deps.Client},
			models.NodeTypeTimeWindow:     &TimeWindowExecutor{Clock: deps.Clock},
			models.NodeTypePlaceOrder:     &PlaceOrderExecutor{Orchestrator: deps.Orchestrator},
			models.NodeTypeSmartOrder:     &SmartOrderExecutor{Orchestrator: deps.Orchestrator},
			models.NodeTypeBasketOrder:    &BasketOrderExecutor{Orchestrator: deps.Orchestrator},
			models.NodeTypeSplitOrder:     &SplitOrderExecutor{Orchestrator: deps.Orchestrator},
			models.NodeTypeOptionsOrder:   &OptionsOrderExecutor{Orchestrator: deps.Orchestrator},
			models.NodeTypeClosePosition:  &ClosePositionExecutor{Client: deps.Client, Orchestrator: deps.Orchestrator},
			models.NodeTypeFetchQuote:     &FetchQuoteExecutor{Client: deps.Client},
			models.NodeTypeVariable:       &VariableExecutor{},
			models.NodeTypeLog:            &LogExecutor{},
			models.NodeTypeDelay:          &DelayExecutor{},
		},
	}
}

// Resolve returns the executor for a node type.
func (r *Registry) Resolve(nodeType string) (execution.Executor, error) {
	executor, ok := r.executors[nodeType]
	if !ok {
		return nil, fmt.Errorf("node type %q not registered", nodeType)
	}

	return executor, nil
}

// ValidateConfig checks a node's config payload against its type's JSON
// schema. Called when a workflow is stored or imported, not per run.
func (r *Registry) ValidateConfig(nodeType string, config map[string]any) error {
	schema, ok := configSchemas[nodeType]
	if !ok {
		return fmt.Errorf("node type %q not registered", nodeType)
	}

	if config == nil {
		config = map[string]any{}
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(config))
	if err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", nodeType, err)
	}

	if !result.Valid() {
		return fmt.Errorf("invalid %s config: %s", nodeType, result.Errors()[0].String())
	}

	return nil
}
