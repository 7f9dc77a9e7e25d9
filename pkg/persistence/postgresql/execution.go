package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/leadflow/leadflow/pkg/models"
	"github.com/leadflow/leadflow/pkg/persistence"
)

const executionColumns = `id, workflow_id, lead_id, status, current_step, total_steps, started_at, completed_at, error, context`

func (p *Persistence) SaveExecution(ctx context.Context, execution models.WorkflowExecution) error {
	contextJSON, err := json.Marshal(execution.Context)
	if err != nil {
		return persistence.NewExecutionError("SaveExecution", execution.ID, err)
	}

	query := `
		INSERT INTO workflow_executions (` + executionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			current_step = EXCLUDED.current_step,
			completed_at = EXCLUDED.completed_at,
			error = EXCLUDED.error,
			context = EXCLUDED.context
	`

	_, err = p.db.ExecContext(ctx, query,
		execution.ID,
		execution.WorkflowID,
		execution.LeadID,
		execution.Status,
		execution.CurrentStep,
		execution.TotalSteps,
		execution.StartedAt,
		execution.CompletedAt,
		sql.NullString{String: execution.Error, Valid: execution.Error != ""},
		contextJSON,
	)
	if err != nil {
		return persistence.NewExecutionError("SaveExecution", execution.ID, err)
	}

	return nil
}

func (p *Persistence) ExecutionByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+executionColumns+` FROM workflow_executions WHERE id = $1`, id)

	execution, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("ExecutionByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewExecutionError("ExecutionByID", id, err)
	}

	return execution, nil
}

func (p *Persistence) ExecutionsByLead(ctx context.Context, workflowID, leadID string) ([]models.WorkflowExecution, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+executionColumns+` FROM workflow_executions WHERE workflow_id = $1 AND lead_id = $2 ORDER BY started_at`,
		workflowID, leadID)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer p.closeRows(ctx, rows)

	executions := make([]models.WorkflowExecution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, *execution)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

func scanExecution(row scanner) (*models.WorkflowExecution, error) {
	var (
		execution   models.WorkflowExecution
		completedAt sql.NullTime
		errText     sql.NullString
		contextJSON []byte
	)

	err := row.Scan(
		&execution.ID,
		&execution.WorkflowID,
		&execution.LeadID,
		&execution.Status,
		&execution.CurrentStep,
		&execution.TotalSteps,
		&execution.StartedAt,
		&completedAt,
		&errText,
		&contextJSON,
	)
	if err != nil {
		return nil, err
	}

	if completedAt.Valid {
		t := completedAt.Time
		execution.CompletedAt = &t
	}

	execution.Error = errText.String

	if len(contextJSON) > 0 {
		if err := json.Unmarshal(contextJSON, &execution.Context); err != nil {
			return nil, fmt.Errorf("failed to decode execution context: %w", err)
		}
	}

	return &execution, nil
}
