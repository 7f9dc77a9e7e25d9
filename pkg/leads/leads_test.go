package leads

import (
	"context"
	"sync"
	"testing"

	"github.com/leadflow/leadflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SaveAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &models.Lead{ID: "L1", Email: "l1@example.com", Fields: map[string]any{"plan": "pro"}}))

	lead, err := store.GetLead(ctx, "L1")
	require.NoError(t, err)
	assert.Equal(t, "l1@example.com", lead.Email)
	assert.False(t, lead.CreatedAt.IsZero())

	// returned leads are copies
	lead.Fields["plan"] = "free"

	again, err := store.GetLead(ctx, "L1")
	require.NoError(t, err)
	assert.Equal(t, "pro", again.Fields["plan"])

	_, err = store.GetLead(ctx, "missing")
	assert.ErrorIs(t, err, ErrLeadNotFound)

	assert.Error(t, store.Save(ctx, &models.Lead{}))
}

func TestMemoryStore_UpdateLead(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &models.Lead{ID: "L1", Status: "new"}))

	lead, err := store.UpdateLead(ctx, "L1", map[string]any{"status": "contacted", "score": 42, "source": "ads"})
	require.NoError(t, err)
	assert.Equal(t, "contacted", lead.Status)
	assert.InDelta(t, 42.0, lead.Score, 0.001)
	assert.Equal(t, "ads", lead.Fields["source"])

	_, err = store.UpdateLead(ctx, "missing", map[string]any{"status": "x"})
	assert.ErrorIs(t, err, ErrLeadNotFound)
}

func TestMemoryStore_ConcurrentUpdates(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &models.Lead{ID: "L1"}))

	var wg sync.WaitGroup

	for i := range 20 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := store.UpdateLead(ctx, "L1", map[string]any{"visits": i})
			assert.NoError(t, err)
		}()
	}

	wg.Wait()

	lead, err := store.GetLead(ctx, "L1")
	require.NoError(t, err)
	assert.Contains(t, lead.Fields, "visits")
}

func TestMemoryStore_FindByPhoneAndList(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &models.Lead{ID: "L2", Phone: "+55 (11) 99999-0000"}))
	require.NoError(t, store.Save(ctx, &models.Lead{ID: "L1", Phone: "+1 555 0100"}))

	lead, err := store.FindByPhone(ctx, "5511999990000")
	require.NoError(t, err)
	assert.Equal(t, "L2", lead.ID)

	_, err = store.FindByPhone(ctx, "")
	assert.ErrorIs(t, err, ErrLeadNotFound)

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "L1", all[0].ID)
}
