package nodes

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/jedilord/openalgo-flow/pkg/broker"
	"github.com/jedilord/openalgo-flow/pkg/execution"
	"github.com/jedilord/openalgo-flow/pkg/models"
)

// TriggerExecutor is the entry node. The trigger adapter has already seeded
// the run context, so executing the node just hands the seed forward.
type TriggerExecutor struct{}

func (e *TriggerExecutor) Execute(_ context.Context, run *execution.Context, node *models.Node) (*models.NodeResult, error) {
	output := map[string]any{"triggered": true}

	if triggerType, ok := run.Get("trigger_type"); ok {
		output["trigger_type"] = triggerType
	}

	return successResult(node.ID, output), nil
}

// ConditionExecutor compares two already-interpolated values and routes to
// the true or false edge. Both sides numeric compares numerically, otherwise
// as strings.
type ConditionExecutor struct{}

func (e *ConditionExecutor) Execute(_ context.Context, _ *execution.Context, node *models.Node) (*models.NodeResult, error) {
	left, err := requiredString(node.Config, "left")
	if err != nil {
		return failure(node.ID, models.ErrorKindNone, err), nil
	}

	operator, err := requiredString(node.Config, "operator")
	if err != nil {
		return failure(node.ID, models.ErrorKindNone, err), nil
	}

	right, err := requiredString(node.Config, "right")
	if err != nil {
		return failure(node.ID, models.ErrorKindNone, err), nil
	}

	matched, err := compare(left, operator, right)
	if err != nil {
		return failure(node.ID, models.ErrorKindNone, err), nil
	}

	return branchResult(node.ID, matched, map[string]any{
		"left":  left,
		"right": right,
		"match": matched,
	}), nil
}

func compare(left, operator, right string) (bool, error) {
	leftNum, leftErr := cast.ToFloat64E(left)
	rightNum, rightErr := cast.ToFloat64E(right)
	numeric := leftErr == nil && rightErr == nil

	switch operator {
	case "==":
		if numeric {
			return leftNum == rightNum, nil
		}

		return left == right, nil
	case "!=":
		if numeric {
			return leftNum != rightNum, nil
		}

		return left != right, nil
	case ">":
		if numeric {
			return leftNum > rightNum, nil
		}

		return left > right, nil
	case ">=":
		if numeric {
			return leftNum >= rightNum, nil
		}

		return left >= right, nil
	case "<":
		if numeric {
			return leftNum < rightNum, nil
		}

		return left < right, nil
	case "<=":
		if numeric {
			return leftNum <= rightNum, nil
		}

		return left <= right, nil
	case "contains":
		return strings.Contains(left, right), nil
	default:
		return false, fmt.Errorf("unsupported operator %q", operator)
	}
}

// PriceConditionExecutor fetches the live quote for an instrument and
// branches on a price comparison.
type PriceConditionExecutor struct {
	Client broker.Client
}

func (e *PriceConditionExecutor) Execute(ctx context.Context, _ *execution.Context, node *models.Node) (*models.NodeResult, error) {
	symbol, err := requiredString(node.Config, "symbol")
	if err != nil {
		return failure(node.ID, models.ErrorKindNone, err), nil
	}

	exchange, err := requiredString(node.Config, "exchange")
	if err != nil {
		return failure(node.ID, models.ErrorKindNone, err), nil
	}

	operator, err := requiredString(node.Config, "operator")
	if err != nil {
		return failure(node.ID, models.ErrorKindNone, err), nil
	}

	target, err := requiredFloat(node.Config, "price")
	if err != nil {
		return failure(node.ID, models.ErrorKindNone, err), nil
	}

	quote, err := e.Client.Quote(ctx, symbol, exchange)
	if err != nil {
		return failure(node.ID, broker.KindOf(err), err), nil
	}

	matched, err := compare(
		cast.ToString(quote.LTP),
		operator,
		cast.ToString(target),
	)
	if err != nil {
		return failure(node.ID, models.ErrorKindNone, err), nil
	}

	return branchResult(node.ID, matched, map[string]any{
		"symbol": symbol,
		"ltp":    quote.LTP,
		"target": target,
		"match":  matched,
	}), nil
}

// TimeWindowExecutor branches on whether the current wall-clock time falls
// inside [start, end). Windows crossing midnight are allowed.
type TimeWindowExecutor struct {
	Clock func() time.Time
}

func (e *TimeWindowExecutor) Execute(_ context.Context, _ *execution.Context, node *models.Node) (*models.NodeResult, error) {
	start, err := requiredString(node.Config, "start")
	if err != nil {
		return failure(node.ID, models.ErrorKindNone, err), nil
	}

	end, err := requiredString(node.Config, "end")
	if err != nil {
		return failure(node.ID, models.ErrorKindNone, err), nil
	}

	startMinutes, err := parseClock(start)
	if err != nil {
		return failure(node.ID, models.ErrorKindNone, err), nil
	}

	endMinutes, err := parseClock(end)
	if err != nil {
		return failure(node.ID, models.ErrorKindNone, err), nil
	}

	now := e.Clock()
	nowMinutes := now.Hour()*60 + now.Minute()

	var inside bool
	if startMinutes <= endMinutes {
		inside = nowMinutes >= startMinutes && nowMinutes < endMinutes
	} else {
		inside = nowMinutes >= startMinutes || nowMinutes < endMinutes
	}

	return branchResult(node.ID, inside, map[string]any{
		"now":    now.Format("15:04"),
		"start":  start,
		"end":    end,
		"inside": inside,
	}), nil
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}

	return t.Hour()*60 + t.Minute(), nil
}

// DelayExecutor pauses the path for a configured number of seconds,
// honouring run cancellation.
type DelayExecutor struct{}

func (e *DelayExecutor) Execute(ctx context.Context, _ *execution.Context, node *models.Node) (*models.NodeResult, error) {
	seconds, err := requiredFloat(node.Config, "seconds")
	if err != nil {
		return failure(node.ID, models.ErrorKindNone, err), nil
	}

	if seconds < 0 {
		return failure(node.ID, models.ErrorKindNone, fmt.Errorf("delay must not be negative, got %v", seconds)), nil
	}

	select {
	case <-time.After(time.Duration(seconds * float64(time.Second))):
		return successResult(node.ID, map[string]any{"delayed_seconds": seconds}), nil
	case <-ctx.Done():
		return failure(node.ID, models.ErrorKindTimeout, ctx.Err()), nil
	}
}
