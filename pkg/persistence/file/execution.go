package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/jedilord/openalgo-flow/pkg/models"
	"github.com/jedilord/openalgo-flow/pkg/persistence"
)

// SaveExecution writes a run record to the file system.
func (r *Repository) SaveExecution(_ context.Context, execution *models.Execution) error {
	err := os.MkdirAll(r.root+"/executions", 0750)
	if err != nil {
		return fmt.Errorf("failed to create executions directory: %w", err)
	}

	data, err := json.MarshalIndent(execution, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal execution %s: %w", execution.ID, err)
	}

	filePath := path.Join(r.root+"/executions", execution.ID+".json")

	return os.WriteFile(filePath, data, 0600)
}

// ExecutionByID retrieves a run record by its ID.
func (r *Repository) ExecutionByID(_ context.Context, id string) (*models.Execution, error) {
	filePath := filepath.Clean(path.Join(r.root, "executions", id+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.ErrExecutionNotFound
		}

		return nil, fmt.Errorf("failed to fetch execution %s: %w", id, err)
	}

	var execution models.Execution

	err = json.Unmarshal(body, &execution)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution %s: %w", id, err)
	}

	return &execution, nil
}

// ListExecutions returns every run record for a workflow, most recent first.
func (r *Repository) ListExecutions(ctx context.Context, workflowID string) ([]*models.Execution, error) {
	root := os.DirFS(r.root + "/executions")

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list execution files: %w", err)
	}

	executions := make([]*models.Execution, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		execution, err := r.ExecutionByID(ctx, file[:len(file)-5])
		if err != nil {
			if persistence.IsExecutionNotFound(err) {
				continue
			}

			return nil, err
		}

		if workflowID == "" || execution.WorkflowID == workflowID {
			executions = append(executions, execution)
		}
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].StartedAt.After(executions[j].StartedAt)
	})

	return executions, nil
}
