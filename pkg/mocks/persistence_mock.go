package mocks

import (
	"context"

	"github.com/leadflow/leadflow/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock
}

func (m *MockPersistence) SaveWorkflow(ctx context.Context, workflow *models.WorkflowDefinition) error {
	args := m.Called(ctx, workflow)

	return args.Error(0)
}

func (m *MockPersistence) Workflows(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	args := m.Called(ctx)

	workflows, _ := args.Get(0).([]*models.WorkflowDefinition)

	return workflows, args.Error(1)
}

func (m *MockPersistence) WorkflowByID(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	args := m.Called(ctx, id)

	workflow, _ := args.Get(0).(*models.WorkflowDefinition)

	return workflow, args.Error(1)
}

func (m *MockPersistence) DeleteWorkflow(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

func (m *MockPersistence) SaveExecution(ctx context.Context, execution models.WorkflowExecution) error {
	args := m.Called(ctx, execution)

	return args.Error(0)
}

func (m *MockPersistence) ExecutionByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	args := m.Called(ctx, id)

	execution, _ := args.Get(0).(*models.WorkflowExecution)

	return execution, args.Error(1)
}

func (m *MockPersistence) ExecutionsByLead(ctx context.Context, workflowID, leadID string) ([]models.WorkflowExecution, error) {
	args := m.Called(ctx, workflowID, leadID)

	executions, _ := args.Get(0).([]models.WorkflowExecution)

	return executions, args.Error(1)
}

func (m *MockPersistence) RecordActivity(ctx context.Context, activity models.Activity) error {
	args := m.Called(ctx, activity)

	return args.Error(0)
}

func (m *MockPersistence) Activities(ctx context.Context, targetID string) ([]models.Activity, error) {
	args := m.Called(ctx, targetID)

	activities, _ := args.Get(0).([]models.Activity)

	return activities, args.Error(1)
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
