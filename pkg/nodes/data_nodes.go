package nodes

import (
	"context"
	"fmt"

	"github.com/spf13/cast"

	"github.com/jedilord/openalgo-flow/pkg/broker"
	"github.com/jedilord/openalgo-flow/pkg/execution"
	"github.com/jedilord/openalgo-flow/pkg/models"
)

// FetchQuoteExecutor pulls a live quote into the run context.
type FetchQuoteExecutor struct {
	Client broker.Client
}

func (e *FetchQuoteExecutor) Execute(ctx context.Context, _ *execution.Context, node *models.Node) (*models.NodeResult, error) {
	symbol, err := requiredString(node.Config, "symbol")
	if err != nil {
		return failure(node.ID, models.ErrorKindNone, err), nil
	}

	exchange, err := requiredString(node.Config, "exchange")
	if err != nil {
		return failure(node.ID, models.ErrorKindNone, err), nil
	}

	quote, err := e.Client.Quote(ctx, symbol, exchange)
	if err != nil {
		return failure(node.ID, broker.KindOf(err), err), nil
	}

	return successResult(node.ID, map[string]any{
		"symbol":   quote.Symbol,
		"exchange": quote.Exchange,
		"ltp":      quote.LTP,
		"open":     quote.Open,
		"high":     quote.High,
		"low":      quote.Low,
		"close":    quote.Close,
		"volume":   quote.Volume,
	}), nil
}

// VariableExecutor mutates one context variable: set, arithmetic, or append.
type VariableExecutor struct{}

func (e *VariableExecutor) Execute(_ context.Context, run *execution.Context, node *models.Node) (*models.NodeResult, error) {
	name, err := requiredString(node.Config, "name")
	if err != nil {
		return failure(node.ID, models.ErrorKindNone, err), nil
	}

	operation, err := requiredString(node.Config, "operation")
	if err != nil {
		return failure(node.ID, models.ErrorKindNone, err), nil
	}

	value := node.Config["value"]

	switch operation {
	case "set":
		run.Set(name, value)
	case "add":
		run.Add(name, cast.ToFloat64(value))
	case "subtract":
		run.Subtract(name, cast.ToFloat64(value))
	case "multiply":
		run.Multiply(name, cast.ToFloat64(value))
	case "divide":
		run.Divide(name, cast.ToFloat64(value))
	case "increment":
		run.Increment(name)
	case "decrement":
		run.Decrement(name)
	case "append":
		run.Append(name, cast.ToString(value))
	default:
		return failure(node.ID, models.ErrorKindNone, fmt.Errorf("unsupported operation %q", operation)), nil
	}

	current, _ := run.Get(name)

	return successResult(node.ID, map[string]any{
		"name":      name,
		"operation": operation,
		"value":     current,
	}), nil
}

// LogExecutor writes an already-interpolated message to the run's logger.
type LogExecutor struct{}

func (e *LogExecutor) Execute(_ context.Context, run *execution.Context, node *models.Node) (*models.NodeResult, error) {
	message, err := requiredString(node.Config, "message")
	if err != nil {
		return failure(node.ID, models.ErrorKindNone, err), nil
	}

	level := optionalString(node.Config, "level", "info")
	logger := run.Logger().With("node_id", node.ID)

	switch level {
	case "debug":
		logger.Debug(message)
	case "warn":
		logger.Warn(message)
	case "error":
		logger.Error(message)
	default:
		logger.Info(message)
	}

	return successResult(node.ID, map[string]any{"message": message, "level": level}), nil
}
