package file

import (
	"context"
	"fmt"
	"time"

	"github.com/leadflow/leadflow/pkg/models"
	"github.com/leadflow/leadflow/pkg/persistence"
)

func (fp *Persistence) SaveWorkflow(_ context.Context, workflow *models.WorkflowDefinition) error {
	now := time.Now().UTC()

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	if err := fp.write(workflowsDir, workflow.ID, workflow); err != nil {
		return persistence.NewWorkflowError("SaveWorkflow", workflow.ID, err)
	}

	return nil
}

func (fp *Persistence) WorkflowByID(_ context.Context, id string) (*models.WorkflowDefinition, error) {
	var workflow models.WorkflowDefinition

	if err := fp.read(workflowsDir, id, &workflow); err != nil {
		if notExist(err) {
			return nil, persistence.NewWorkflowError("WorkflowByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, persistence.NewWorkflowError("WorkflowByID", id, err)
	}

	return &workflow, nil
}

func (fp *Persistence) Workflows(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	ids, err := fp.ids(workflowsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow files: %w", err)
	}

	workflows := make([]*models.WorkflowDefinition, 0, len(ids))

	for _, id := range ids {
		workflow, err := fp.WorkflowByID(ctx, id)
		if err != nil {
			return nil, err
		}

		workflows = append(workflows, workflow)
	}

	return workflows, nil
}

func (fp *Persistence) DeleteWorkflow(_ context.Context, id string) error {
	if err := fp.remove(workflowsDir, id); err != nil {
		if notExist(err) {
			return persistence.NewWorkflowError("DeleteWorkflow", id, persistence.ErrWorkflowNotFound)
		}

		return persistence.NewWorkflowError("DeleteWorkflow", id, err)
	}

	return nil
}
