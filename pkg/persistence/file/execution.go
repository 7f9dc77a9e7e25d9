package file

import (
	"context"
	"fmt"
	"sort"

	"github.com/leadflow/leadflow/pkg/models"
	"github.com/leadflow/leadflow/pkg/persistence"
)

func (fp *Persistence) SaveExecution(_ context.Context, execution models.WorkflowExecution) error {
	if err := fp.write(executionsDir, execution.ID, execution); err != nil {
		return persistence.NewExecutionError("SaveExecution", execution.ID, err)
	}

	return nil
}

func (fp *Persistence) ExecutionByID(_ context.Context, id string) (*models.WorkflowExecution, error) {
	var execution models.WorkflowExecution

	if err := fp.read(executionsDir, id, &execution); err != nil {
		if notExist(err) {
			return nil, persistence.NewExecutionError("ExecutionByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewExecutionError("ExecutionByID", id, err)
	}

	return &execution, nil
}

// ExecutionsByLead scans every execution document; file persistence is meant
// for single-node development setups.
func (fp *Persistence) ExecutionsByLead(ctx context.Context, workflowID, leadID string) ([]models.WorkflowExecution, error) {
	ids, err := fp.ids(executionsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list execution files: %w", err)
	}

	executions := make([]models.WorkflowExecution, 0)

	for _, id := range ids {
		execution, err := fp.ExecutionByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if execution.WorkflowID == workflowID && execution.LeadID == leadID {
			executions = append(executions, *execution)
		}
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].StartedAt.Before(executions[j].StartedAt)
	})

	return executions, nil
}
