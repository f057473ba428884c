package nodes

import "github.com/jedilord/openalgo-flow/pkg/models"

// configSchemas holds the JSON schema each node type's config is validated
// against when a workflow is stored. Templated strings are allowed anywhere
// a scalar is, so numeric fields accept strings too.
var configSchemas = map[string]map[string]any{
	models.NodeTypeTrigger: {
		"type": "object",
		"properties": map[string]any{
			"triggerType": map[string]any{
				"type": "string",
				"enum": []string{"schedule", "priceAlert", "webhook", "manual"},
			},
		},
	},
	models.NodeTypeCondition: {
		"type": "object",
		"properties": map[string]any{
			"left":     map[string]any{"type": "string"},
			"operator": map[string]any{"type": "string", "enum": []string{"==", "!=", ">", ">=", "<", "<=", "contains"}},
			"right":    map[string]any{"type": "string"},
		},
		"required": []string{"left", "operator", "right"},
	},
	models.NodeTypePriceCondition: {
		"type": "object",
		"properties": map[string]any{
			"symbol":   map[string]any{"type": "string"},
			"exchange": map[string]any{"type": "string"},
			"operator": map[string]any{"type": "string", "enum": []string{">", ">=", "<", "<=", "==", "!="}},
			"price":    map[string]any{"type": []string{"number", "string"}},
		},
		"required": []string{"symbol", "exchange", "operator", "price"},
	},
	models.NodeTypeTimeWindow: {
		"type": "object",
		"properties": map[string]any{
			"start": map[string]any{"type": "string", "pattern": `^\d{2}:\d{2}$`},
			"end":   map[string]any{"type": "string", "pattern": `^\d{2}:\d{2}$`},
		},
		"required": []string{"start", "end"},
	},
	models.NodeTypePlaceOrder: {
		"type": "object",
		"properties": map[string]any{
			"symbol":    map[string]any{"type": "string"},
			"exchange":  map[string]any{"type": "string"},
			"action":    map[string]any{"type": "string"},
			"quantity":  map[string]any{"type": []string{"integer", "string"}},
			"pricetype": map[string]any{"type": "string"},
			"product":   map[string]any{"type": "string"},
			"price":     map[string]any{"type": []string{"number", "string"}},
		},
		"required": []string{"symbol", "exchange", "action", "quantity"},
	},
	models.NodeTypeSmartOrder: {
		"type": "object",
		"properties": map[string]any{
			"symbol":   map[string]any{"type": "string"},
			"exchange": map[string]any{"type": "string"},
			"target":   map[string]any{"type": []string{"integer", "string"}},
			"product":  map[string]any{"type": "string"},
		},
		"required": []string{"symbol", "exchange", "target"},
	},
	models.NodeTypeBasketOrder: {
		"type": "object",
		"properties": map[string]any{
			"orders": map[string]any{
				"type":     "array",
				"minItems": 1,
				"items":    map[string]any{"type": "object"},
			},
		},
		"required": []string{"orders"},
	},
	models.NodeTypeSplitOrder: {
		"type": "object",
		"properties": map[string]any{
			"symbol":    map[string]any{"type": "string"},
			"exchange":  map[string]any{"type": "string"},
			"action":    map[string]any{"type": "string"},
			"quantity":  map[string]any{"type": []string{"integer", "string"}},
			"splitSize": map[string]any{"type": []string{"integer", "string"}},
		},
		"required": []string{"symbol", "exchange", "action", "quantity", "splitSize"},
	},
	models.NodeTypeOptionsOrder: {
		"type": "object",
		"properties": map[string]any{
			"underlying": map[string]any{"type": "string"},
			"exchange":   map[string]any{"type": "string"},
			"expiry":     map[string]any{"type": "string"},
			"product":    map[string]any{"type": "string"},
			"legs": map[string]any{
				"type":     "array",
				"minItems": 1,
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"offset":     map[string]any{"type": "string"},
						"optionType": map[string]any{"type": "string", "enum": []string{"CE", "PE"}},
						"action":     map[string]any{"type": "string"},
						"quantity":   map[string]any{"type": []string{"integer", "string"}},
						"expiry":     map[string]any{"type": "string"},
					},
					"required": []string{"offset", "optionType", "action", "quantity"},
				},
			},
		},
		"required": []string{"underlying", "exchange", "legs"},
	},
	models.NodeTypeClosePosition: {
		"type": "object",
		"properties": map[string]any{
			"symbol":   map[string]any{"type": "string"},
			"exchange": map[string]any{"type": "string"},
			"product":  map[string]any{"type": "string"},
		},
		"required": []string{"symbol", "exchange"},
	},
	models.NodeTypeFetchQuote: {
		"type": "object",
		"properties": map[string]any{
			"symbol":   map[string]any{"type": "string"},
			"exchange": map[string]any{"type": "string"},
		},
		"required": []string{"symbol", "exchange"},
	},
	models.NodeTypeVariable: {
		"type": "object",
		"properties": map[string]any{
			"name": map[string]any{"type": "string"},
			"operation": map[string]any{
				"type": "string",
				"enum": []string{"set", "add", "subtract", "multiply", "divide", "increment", "decrement", "append"},
			},
			"value": map[string]any{},
		},
		"required": []string{"name", "operation"},
	},
	models.NodeTypeLog: {
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{"type": "string"},
			"level":   map[string]any{"type": "string", "enum": []string{"debug", "info", "warn", "error"}},
		},
		"required": []string{"message"},
	},
	models.NodeTypeDelay: {
		"type": "object",
		"properties": map[string]any{
			"seconds": map[string]any{"type": []string{"number", "string"}},
		},
		"required": []string{"seconds"},
	},
}
