package postgresql

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/leadflow/leadflow/pkg/models"
)

func (p *Persistence) RecordActivity(ctx context.Context, activity models.Activity) error {
	if activity.ID == "" {
		activity.ID = uuid.NewString()
	}

	_, err := p.db.ExecContext(ctx, `
		INSERT INTO activities (id, user_id, action_type, target_type, target_id, description, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		activity.ID,
		activity.UserID,
		activity.ActionType,
		activity.TargetType,
		activity.TargetID,
		activity.Description,
		activity.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to record activity %s: %w", activity.ID, err)
	}

	return nil
}

func (p *Persistence) Activities(ctx context.Context, targetID string) ([]models.Activity, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, action_type, target_type, target_id, description, occurred_at
		FROM activities
		WHERE target_id = $1
		ORDER BY occurred_at
	`, targetID)
	if err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}
	defer p.closeRows(ctx, rows)

	activities := make([]models.Activity, 0)

	for rows.Next() {
		var activity models.Activity

		err := rows.Scan(
			&activity.ID,
			&activity.UserID,
			&activity.ActionType,
			&activity.TargetType,
			&activity.TargetID,
			&activity.Description,
			&activity.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}

		activities = append(activities, activity)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activities: %w", err)
	}

	return activities, nil
}
