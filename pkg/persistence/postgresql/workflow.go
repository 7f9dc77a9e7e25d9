package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/leadflow/leadflow/pkg/models"
	"github.com/leadflow/leadflow/pkg/persistence"
)

// SaveWorkflow upserts the definition. The full document is kept in the
// definition column; status and trigger type are denormalized for filtering.
func (p *Persistence) SaveWorkflow(ctx context.Context, workflow *models.WorkflowDefinition) error {
	now := time.Now().UTC()

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	definition, err := json.Marshal(workflow)
	if err != nil {
		return persistence.NewWorkflowError("SaveWorkflow", workflow.ID, err)
	}

	query := `
		INSERT INTO workflows (id, name, status, trigger_type, definition, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			trigger_type = EXCLUDED.trigger_type,
			definition = EXCLUDED.definition,
			updated_at = EXCLUDED.updated_at
	`

	_, err = p.db.ExecContext(ctx, query,
		workflow.ID,
		workflow.Name,
		workflow.Status,
		workflow.Trigger.Type,
		definition,
		workflow.CreatedAt,
		workflow.UpdatedAt,
	)
	if err != nil {
		return persistence.NewWorkflowError("SaveWorkflow", workflow.ID, err)
	}

	return nil
}

func (p *Persistence) WorkflowByID(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	row := p.db.QueryRowContext(ctx, `SELECT definition FROM workflows WHERE id = $1`, id)

	workflow, err := scanWorkflow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowError("WorkflowByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, persistence.NewWorkflowError("WorkflowByID", id, err)
	}

	return workflow, nil
}

func (p *Persistence) Workflows(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT definition FROM workflows ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}
	defer p.closeRows(ctx, rows)

	workflows := make([]*models.WorkflowDefinition, 0)

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return workflows, nil
}

func (p *Persistence) DeleteWorkflow(ctx context.Context, id string) error {
	result, err := p.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return persistence.NewWorkflowError("DeleteWorkflow", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewWorkflowError("DeleteWorkflow", id, err)
	}

	if affected == 0 {
		return persistence.NewWorkflowError("DeleteWorkflow", id, persistence.ErrWorkflowNotFound)
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row scanner) (*models.WorkflowDefinition, error) {
	var definition []byte

	if err := row.Scan(&definition); err != nil {
		return nil, err
	}

	var workflow models.WorkflowDefinition
	if err := json.Unmarshal(definition, &workflow); err != nil {
		return nil, fmt.Errorf("failed to decode workflow definition: %w", err)
	}

	return &workflow, nil
}
