package nodes

import (
	"fmt"
	"time"

	"github.com/spf13/cast"

	"github.com/jedilord/openalgo-flow/pkg/models"
)

func successResult(nodeID string, output any) *models.NodeResult {
	return &models.NodeResult{
		NodeID:    nodeID,
		Status:    models.NodeStatusSuccess,
		Output:    output,
		Timestamp: time.Now(),
	}
}

func branchResult(nodeID string, matched bool, output any) *models.NodeResult {
	branch := models.BranchFalse
	if matched {
		branch = models.BranchTrue
	}

	return &models.NodeResult{
		NodeID:    nodeID,
		Status:    models.NodeStatusSuccess,
		Output:    output,
		Branch:    branch,
		Timestamp: time.Now(),
	}
}

func failure(nodeID string, kind models.ErrorKind, err error) *models.NodeResult {
	return &models.NodeResult{
		NodeID:    nodeID,
		Status:    models.NodeStatusFailure,
		ErrorKind: kind,
		Error:     err.Error(),
		Timestamp: time.Now(),
	}
}

func requiredString(config map[string]any, key string) (string, error) {
	raw, ok := config[key]
	if !ok {
		return "", fmt.Errorf("missing required field %q", key)
	}

	s, err := cast.ToStringE(raw)
	if err != nil || s == "" {
		return "", fmt.Errorf("field %q must be a non-empty string", key)
	}

	return s, nil
}

func optionalString(config map[string]any, key, fallback string) string {
	if raw, ok := config[key]; ok {
		if s, err := cast.ToStringE(raw); err == nil && s != "" {
			return s
		}
	}

	return fallback
}

func requiredInt(config map[string]any, key string) (int, error) {
	raw, ok := config[key]
	if !ok {
		return 0, fmt.Errorf("missing required field %q", key)
	}

	n, err := cast.ToIntE(raw)
	if err != nil {
		return 0, fmt.Errorf("field %q must be an integer", key)
	}

	return n, nil
}

func requiredFloat(config map[string]any, key string) (float64, error) {
	raw, ok := config[key]
	if !ok {
		return 0, fmt.Errorf("missing required field %q", key)
	}

	f, err := cast.ToFloat64E(raw)
	if err != nil {
		return 0, fmt.Errorf("field %q must be a number", key)
	}

	return f, nil
}
