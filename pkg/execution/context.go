// Package execution implements the per-run variable context and the workflow
// execution engine.
package execution

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/jedilord/openalgo-flow/pkg/models"
)

// System variables are computed on read and never stored, so they resolve
// regardless of run state.
const (
	SysVarTimestamp = "timestamp"
	SysVarDate      = "date"
	SysVarTime      = "time"
	SysVarDatetime  = "datetime"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// Context is the variable store for a single run. It is owned by exactly one
// run and passed through the engine and every executor; it is not safe for
// concurrent use and never needs to be, since traversal is sequential.
type Context struct {
	ID         string
	WorkflowID string

	vars   map[string]any
	log    []models.LogEntry
	logger *slog.Logger
	now    func() time.Time
}

// NewContext creates the variable context for one run.
func NewContext(id, workflowID string, logger *slog.Logger) *Context {
	return &Context{
		ID:         id,
		WorkflowID: workflowID,
		vars:       make(map[string]any),
		logger:     logger.With("execution_id", id, "workflow_id", workflowID),
		now:        time.Now,
	}
}

// WithClock overrides the time source. Used by the timeWindow executor tests.
func (c *Context) WithClock(now func() time.Time) *Context {
	c.now = now

	return c
}

// Set stores a variable, last-write-wins.
func (c *Context) Set(name string, value any) {
	c.vars[name] = value
}

// Get returns a flat variable or a system variable.
func (c *Context) Get(name string) (any, bool) {
	if v, ok := c.systemVariable(name); ok {
		return v, true
	}

	v, ok := c.vars[name]

	return v, ok
}

// GetByPath resolves a dotted path: the first segment names a variable, the
// rest walk nested mappings. The found flag distinguishes an absent path from
// a stored nil.
func (c *Context) GetByPath(path string) (any, bool) {
	segments := strings.Split(path, ".")

	current, ok := c.Get(segments[0])
	if !ok {
		return nil, false
	}

	for _, seg := range segments[1:] {
		mapping, ok := asMapping(current)
		if !ok {
			return nil, false
		}

		current, ok = mapping[seg]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

// Interpolate replaces every resolvable {{path}} occurrence in template.
// Unresolved placeholders stay verbatim so partially built templates render
// without failing the run.
func (c *Context) Interpolate(template string) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(match string) string {
		path := strings.TrimSpace(match[2 : len(match)-2])

		value, ok := c.GetByPath(path)
		if !ok {
			return match
		}

		return stringify(value)
	})
}

// HasUnresolved reports whether template still contains placeholders that do
// not resolve against the current variables.
func (c *Context) HasUnresolved(template string) bool {
	for _, m := range placeholderRe.FindAllStringSubmatch(template, -1) {
		if _, ok := c.GetByPath(strings.TrimSpace(m[1])); !ok {
			return true
		}
	}

	return false
}

// Numeric mutators coerce the current value to a number before applying the
// operation; anything non-numeric counts as 0.

func (c *Context) Add(name string, delta float64)      { c.vars[name] = c.numeric(name) + delta }
func (c *Context) Subtract(name string, delta float64) { c.vars[name] = c.numeric(name) - delta }
func (c *Context) Multiply(name string, factor float64) {
	c.vars[name] = c.numeric(name) * factor
}

// Divide divides the variable in place. Division by zero must never crash a
// run: it is logged and the prior value is left untouched.
func (c *Context) Divide(name string, divisor float64) {
	if divisor == 0 {
		c.logger.Warn("Ignoring division by zero", "variable", name)

		return
	}

	c.vars[name] = c.numeric(name) / divisor
}

func (c *Context) Increment(name string) { c.Add(name, 1) }
func (c *Context) Decrement(name string) { c.Subtract(name, 1) }

// Append coerces the current value to text and concatenates.
func (c *Context) Append(name string, text string) {
	current := ""
	if v, ok := c.vars[name]; ok {
		current = stringify(v)
	}

	c.vars[name] = current + text
}

// AppendLog records one node outcome in the run log.
func (c *Context) AppendLog(entry models.LogEntry) {
	c.log = append(c.log, entry)
}

// Log returns the ordered per-node outcomes recorded so far.
func (c *Context) Log() []models.LogEntry {
	return c.log
}

// Snapshot returns a copy of the current variables for the run record.
func (c *Context) Snapshot() map[string]any {
	out := make(map[string]any, len(c.vars))
	for k, v := range c.vars {
		out[k] = v
	}

	return out
}

// Logger returns the run-scoped logger.
func (c *Context) Logger() *slog.Logger {
	return c.logger
}

func (c *Context) numeric(name string) float64 {
	v, ok := c.vars[name]
	if !ok {
		return 0
	}

	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0
	}

	return f
}

func (c *Context) systemVariable(name string) (any, bool) {
	now := c.now()

	switch name {
	case SysVarTimestamp:
		return now.Unix(), true
	case SysVarDate:
		return now.Format("2006-01-02"), true
	case SysVarTime:
		return now.Format("15:04:05"), true
	case SysVarDatetime:
		return now.Format("2006-01-02 15:04:05"), true
	default:
		return nil, false
	}
}

func asMapping(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	default:
		return nil, false
	}
}

// stringify renders a variable for substitution: mappings and lists as their
// canonical JSON text, numbers without a trailing ".0", everything else via
// cast.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return cast.ToString(t)
		}

		return string(b)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	default:
		return cast.ToString(t)
	}
}
