// Package persistence mirrors workflow definitions, execution records and
// activities to durable storage.
package persistence

import (
	"context"

	"github.com/leadflow/leadflow/pkg/models"
)

type WorkflowRepository interface {
	SaveWorkflow(ctx context.Context, workflow *models.WorkflowDefinition) error
	Workflows(ctx context.Context) ([]*models.WorkflowDefinition, error)
	WorkflowByID(ctx context.Context, id string) (*models.WorkflowDefinition, error)
	DeleteWorkflow(ctx context.Context, id string) error
}

type ExecutionRepository interface {
	SaveExecution(ctx context.Context, execution models.WorkflowExecution) error
	ExecutionByID(ctx context.Context, id string) (*models.WorkflowExecution, error)
	ExecutionsByLead(ctx context.Context, workflowID, leadID string) ([]models.WorkflowExecution, error)
}

// ActivityRepository is the activity collaborator: behaviors and created tasks
// are recorded through it.
type ActivityRepository interface {
	RecordActivity(ctx context.Context, activity models.Activity) error
	Activities(ctx context.Context, targetID string) ([]models.Activity, error)
}

type Persistence interface {
	WorkflowRepository
	ExecutionRepository
	ActivityRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
