package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/leadflow/leadflow/pkg/mocks"
	"github.com/leadflow/leadflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRestoreWorkflows_SkipsInvalidDefinitions(t *testing.T) {
	repo := &mocks.MockPersistence{}
	repo.On("Workflows", mock.Anything).Return([]*models.WorkflowDefinition{
		testWorkflow("good", tagAction("a1")),
		{ID: "bad", Name: "Bad", Status: models.WorkflowStatusActive},
	}, nil)

	engine := newTestEngine(t, &stubExecutor{}, newLeadStore(t), WithWorkflowRepository(repo))

	restored, err := engine.RestoreWorkflows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, restored)

	_, ok := engine.Workflow("good")
	assert.True(t, ok)

	_, ok = engine.Workflow("bad")
	assert.False(t, ok)

	repo.AssertNotCalled(t, "SaveWorkflow", mock.Anything, mock.Anything)
}

func TestRestoreWorkflows_RepositoryError(t *testing.T) {
	repo := &mocks.MockPersistence{}
	repo.On("Workflows", mock.Anything).Return(nil, errors.New("disk gone"))

	engine := newTestEngine(t, &stubExecutor{}, newLeadStore(t), WithWorkflowRepository(repo))

	_, err := engine.RestoreWorkflows(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk gone")
}

func TestRegisterWorkflow_MirrorFailureIsNotFatal(t *testing.T) {
	repo := &mocks.MockPersistence{}
	repo.On("SaveWorkflow", mock.Anything, mock.MatchedBy(func(def *models.WorkflowDefinition) bool {
		return def.ID == "wf1" && !def.CreatedAt.IsZero()
	})).Return(errors.New("read-only")).Once()

	engine := newTestEngine(t, &stubExecutor{}, newLeadStore(t), WithWorkflowRepository(repo))

	require.NoError(t, engine.RegisterWorkflow(context.Background(), testWorkflow("wf1", tagAction("a1"))))

	_, ok := engine.Workflow("wf1")
	assert.True(t, ok)
	repo.AssertExpectations(t)
}

func TestRun_PublishFailureDoesNotFailExecution(t *testing.T) {
	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, "L1", mock.Anything).Return(errors.New("broker down"))

	repo := &mocks.MockPersistence{}
	repo.On("SaveWorkflow", mock.Anything, mock.Anything).Return(nil)
	repo.On("SaveExecution", mock.Anything, mock.Anything).Return(nil)

	engine := newTestEngine(t, &stubExecutor{}, newLeadStore(t),
		WithEventPublisher(bus),
		WithWorkflowRepository(repo),
		WithExecutionRepository(repo),
	)
	require.NoError(t, engine.RegisterWorkflow(context.Background(), testWorkflow("wf1", tagAction("a1"))))

	execution, err := engine.TriggerWorkflow(context.Background(), "wf1", "L1", nil)
	require.NoError(t, err)

	snapshot := waitDone(t, execution)
	assert.Equal(t, models.ExecutionStatusCompleted, snapshot.Status)

	bus.AssertCalled(t, "Publish", mock.Anything, "L1", mock.Anything)
	repo.AssertCalled(t, "SaveExecution", mock.Anything, mock.Anything)
}
