package execution

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jedilord/openalgo-flow/pkg/broker"
	"github.com/jedilord/openalgo-flow/pkg/eventbus"
	"github.com/jedilord/openalgo-flow/pkg/events"
	"github.com/jedilord/openalgo-flow/pkg/models"
	"github.com/jedilord/openalgo-flow/pkg/otelhelper"
)

// Executor is one node type's execution strategy. Executors receive the run
// context and the node with its config already interpolated; they return
// exactly one NodeResult per visit. Returning an error is reserved for
// failures the executor could not express as a result itself.
type Executor interface {
	Execute(ctx context.Context, run *Context, node *models.Node) (*models.NodeResult, error)
}

// Registry resolves a node type to its executor. The node type set is closed,
// so an unknown type is a definition error, not an extension point.
type Registry interface {
	Resolve(nodeType string) (Executor, error)
}

// Engine walks a workflow graph from its trigger node, one current node at a
// time. The domain guarantees a single active path per run: branch nodes fan
// out in the graph but only one labeled edge is ever followed, so no visited
// set or cycle detection is needed.
type Engine struct {
	registry Registry
	bus      eventbus.EventBus
	tracer   trace.Tracer
	logger   *slog.Logger
	now      func() time.Time
}

// NewEngine creates an engine over the given executor registry.
func NewEngine(registry Registry, logger *slog.Logger) *Engine {
	return &Engine{
		registry: registry,
		logger:   logger.With("module", "execution_engine"),
		now:      time.Now,
	}
}

// WithEventBus makes the engine publish run lifecycle events.
func (e *Engine) WithEventBus(bus eventbus.EventBus) *Engine {
	e.bus = bus

	return e
}

// WithTracer makes the engine open a span per run and per node visit.
func (e *Engine) WithTracer(tracer trace.Tracer) *Engine {
	e.tracer = tracer

	return e
}

// Run executes one workflow to termination. It always returns an Execution
// record; a failed run is an outcome, not an error. The only error case is a
// workflow whose graph has no trigger node.
func (e *Engine) Run(ctx context.Context, workflow *models.Workflow, seed map[string]any) (*models.Execution, error) {
	trigger, ok := workflow.TriggerNode()
	if !ok {
		return nil, models.ErrNoTriggerNode
	}

	executionID := "exec-" + uuid.New().String()[:8]
	run := NewContext(executionID, workflow.ID, e.logger)

	for name, value := range seed {
		run.Set(name, value)
	}

	execution := &models.Execution{
		ID:         executionID,
		WorkflowID: workflow.ID,
		Status:     models.ExecutionStatusRunning,
		StartedAt:  e.now(),
	}

	logger := run.Logger()
	logger.Info("Starting workflow execution", "workflow_name", workflow.Name)

	if e.tracer != nil {
		attrs := []attribute.KeyValue{
			attribute.String(otelhelper.WorkflowIDKey, workflow.ID),
			attribute.String(otelhelper.ExecutionIDKey, executionID),
		}
		if triggerType, ok := seed["trigger_type"].(string); ok {
			attrs = append(attrs, attribute.String(otelhelper.TriggerTypeKey, triggerType))
		}

		var span trace.Span

		ctx, span = otelhelper.StartSpan(ctx, e.tracer, "workflow.execute", attrs...)
		defer span.End()
	}

	e.publishStarted(ctx, execution, seed)

	current := trigger
	for current != nil {
		result := e.visit(ctx, run, current)

		run.AppendLog(models.LogEntry{NodeID: current.ID, NodeType: current.Type, Result: result})
		e.publishNodeCompletion(ctx, execution, current, result)

		if name := current.OutputVariable(); name != "" {
			run.Set(name, result.Output)
		}

		if !result.Succeeded() {
			execution.Status = models.ExecutionStatusFailed
			execution.FailedNodeID = current.ID
			execution.Error = result.Error

			logger.Error("Node failed, halting path", "node_id", current.ID, "node_type", current.Type, "error", result.Error)

			break
		}

		current = e.nextNode(workflow, current, result)
	}

	if execution.Status != models.ExecutionStatusFailed {
		execution.Status = models.ExecutionStatusCompleted
	}

	execution.CompletedAt = e.now()
	execution.Log = run.Log()
	execution.Variables = run.Snapshot()

	e.publishFinished(ctx, execution)
	logger.Info("Workflow execution finished", "status", execution.Status, "nodes", len(execution.Log))

	return execution, nil
}

// visit interpolates the node's config, dispatches to its executor, and
// normalizes the outcome into a NodeResult.
func (e *Engine) visit(ctx context.Context, run *Context, node *models.Node) *models.NodeResult {
	var span trace.Span

	if e.tracer != nil {
		ctx, span = otelhelper.StartSpan(ctx, e.tracer, "node.execute",
			attribute.String(otelhelper.NodeIDKey, node.ID),
			attribute.String(otelhelper.NodeTypeKey, node.Type),
		)
		defer span.End()
	}

	config, unresolved := e.resolveConfig(run, node)

	resolved := &models.Node{
		ID:     node.ID,
		Type:   node.Type,
		Name:   node.Name,
		Config: config,
	}

	executor, err := e.registry.Resolve(node.Type)
	if err != nil {
		return failureResult(node.ID, models.ErrorKindNone, err, e.now())
	}

	result, err := executor.Execute(ctx, run, resolved)
	if err != nil {
		kind := broker.KindOf(err)
		if span != nil {
			otelhelper.MarkFailed(span, err, string(kind))
		}

		return failureResult(node.ID, kind, err, e.now())
	}

	result.NodeID = node.ID

	if result.Timestamp.IsZero() {
		result.Timestamp = e.now()
	}

	// Unresolved placeholders are not fatal; the run log still marks the
	// node so authors can see the template never filled in.
	if unresolved && result.ErrorKind == models.ErrorKindNone {
		result.ErrorKind = models.ErrorKindTemplateUnresolved
	}

	return result
}

// resolveConfig interpolates every templated string in the node's config,
// recursively through nested mappings and lists. Unresolved placeholders
// pass through verbatim and are only logged.
func (e *Engine) resolveConfig(run *Context, node *models.Node) (map[string]any, bool) {
	resolved, _ := resolveValue(run, node.Config)

	mapping, ok := resolved.(map[string]any)
	if !ok {
		return node.Config, false
	}

	var unresolved bool

	scanUnresolved(run, node.Config, func(template string) {
		unresolved = true

		run.Logger().Warn("Template placeholders left unresolved", "node_id", node.ID, "template", template)
	})

	return mapping, unresolved
}

// scanUnresolved walks a config value the same way resolveValue does and
// reports every string whose placeholders cannot be filled from the run
// context, however deeply nested.
func scanUnresolved(run *Context, value any, report func(template string)) {
	switch v := value.(type) {
	case string:
		if run.HasUnresolved(v) {
			report(v)
		}
	case map[string]any:
		for _, nested := range v {
			scanUnresolved(run, nested, report)
		}
	case []any:
		for _, nested := range v {
			scanUnresolved(run, nested, report)
		}
	}
}

func resolveValue(run *Context, value any) (any, bool) {
	switch v := value.(type) {
	case string:
		if !strings.Contains(v, "{{") {
			return v, false
		}

		return run.Interpolate(v), true
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, nested := range v {
			out[k], _ = resolveValue(run, nested)
		}

		return out, true
	case []any:
		out := make([]any, len(v))
		for i, nested := range v {
			out[i], _ = resolveValue(run, nested)
		}

		return out, true
	default:
		return v, false
	}
}

// nextNode picks the edge to follow: the matching labeled edge for branching
// nodes, the single outgoing edge otherwise. No edge means the path ended
// normally.
func (e *Engine) nextNode(workflow *models.Workflow, node *models.Node, result *models.NodeResult) *models.Node {
	edges := workflow.OutgoingEdges(node.ID)

	if node.IsBranching() {
		for _, edge := range edges {
			if edge.Label == result.Branch {
				next, _ := workflow.NodeByID(edge.To)

				return next
			}
		}

		return nil
	}

	if len(edges) == 0 {
		return nil
	}

	next, _ := workflow.NodeByID(edges[0].To)

	return next
}

func failureResult(nodeID string, kind models.ErrorKind, err error, at time.Time) *models.NodeResult {
	return &models.NodeResult{
		NodeID:    nodeID,
		Status:    models.NodeStatusFailure,
		ErrorKind: kind,
		Error:     err.Error(),
		Timestamp: at,
	}
}

func (e *Engine) publishStarted(ctx context.Context, execution *models.Execution, seed map[string]any) {
	if e.bus == nil {
		return
	}

	triggerType, _ := seed["trigger_type"].(string)

	event := events.WorkflowExecutionStarted{
		BaseEvent:   e.baseEvent(events.WorkflowExecutionStartedEvent, execution),
		TriggerType: triggerType,
		TriggerData: seed,
	}
	if err := e.bus.Publish(ctx, event); err != nil {
		e.logger.Error("Failed to publish execution started event", "error", err)
	}
}

func (e *Engine) publishNodeCompletion(ctx context.Context, execution *models.Execution, node *models.Node, result *models.NodeResult) {
	if e.bus == nil {
		return
	}

	event := events.NodeCompletion{
		BaseEvent: e.baseEvent(events.NodeCompletionEvent, execution),
		NodeID:    node.ID,
		NodeType:  node.Type,
		Status:    result.Status,
		ErrorKind: result.ErrorKind,
	}
	if err := e.bus.Publish(ctx, event); err != nil {
		e.logger.Error("Failed to publish node completion event", "error", err)
	}
}

func (e *Engine) publishFinished(ctx context.Context, execution *models.Execution) {
	if e.bus == nil {
		return
	}

	duration := execution.CompletedAt.Sub(execution.StartedAt)

	var event eventbus.Event
	if execution.Status == models.ExecutionStatusFailed {
		event = events.WorkflowExecutionFailed{
			BaseEvent:    e.baseEvent(events.WorkflowExecutionFailedEvent, execution),
			FailedNodeID: execution.FailedNodeID,
			Error:        execution.Error,
			Duration:     duration,
		}
	} else {
		event = events.WorkflowExecutionCompleted{
			BaseEvent: e.baseEvent(events.WorkflowExecutionCompletedEvent, execution),
			Duration:  duration,
			Nodes:     len(execution.Log),
		}
	}

	if err := e.bus.Publish(ctx, event); err != nil {
		e.logger.Error("Failed to publish execution finished event", "error", err)
	}
}

func (e *Engine) baseEvent(eventType events.EventType, execution *models.Execution) events.BaseEvent {
	return events.BaseEvent{
		ID:          uuid.New().String(),
		Type:        eventType,
		Timestamp:   e.now(),
		WorkflowID:  execution.WorkflowID,
		ExecutionID: execution.ID,
	}
}

// WorkflowStore is the slice of persistence the runner needs.
type WorkflowStore interface {
	WorkflowByID(ctx context.Context, id string) (*models.Workflow, error)
}

// Runner executes stored workflows by ID. Trigger adapters hold a Runner and
// nothing else of the engine's wiring.
type Runner struct {
	store  WorkflowStore
	engine *Engine
}

// NewRunner creates a runner over a workflow store.
func NewRunner(store WorkflowStore, engine *Engine) *Runner {
	return &Runner{store: store, engine: engine}
}

// ExecuteWorkflow loads a workflow and runs it with the given seed variables.
func (r *Runner) ExecuteWorkflow(ctx context.Context, workflowID string, seed map[string]any) (*models.Execution, error) {
	workflow, err := r.store.WorkflowByID(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch workflow %s: %w", workflowID, err)
	}

	return r.engine.Run(ctx, workflow, seed)
}
