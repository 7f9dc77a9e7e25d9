package file

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/leadflow/leadflow/pkg/models"
)

func (fp *Persistence) RecordActivity(_ context.Context, activity models.Activity) error {
	if activity.ID == "" {
		activity.ID = uuid.NewString()
	}

	if err := fp.write(activitiesDir, activity.ID, activity); err != nil {
		return fmt.Errorf("failed to record activity %s: %w", activity.ID, err)
	}

	return nil
}

// Activities returns the activities targeting targetID, oldest first.
func (fp *Persistence) Activities(_ context.Context, targetID string) ([]models.Activity, error) {
	ids, err := fp.ids(activitiesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity files: %w", err)
	}

	activities := make([]models.Activity, 0)

	for _, id := range ids {
		var activity models.Activity
		if err := fp.read(activitiesDir, id, &activity); err != nil {
			return nil, fmt.Errorf("failed to read activity %s: %w", id, err)
		}

		if activity.TargetID == targetID {
			activities = append(activities, activity)
		}
	}

	sort.SliceStable(activities, func(i, j int) bool {
		return activities[i].Timestamp.Before(activities[j].Timestamp)
	})

	return activities, nil
}
