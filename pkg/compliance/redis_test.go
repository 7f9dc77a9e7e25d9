package compliance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedis(t *testing.T) *RedisStore {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	store, err := NewRedisStore(ctx, endpoint, "", 0)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}

func TestRedisStore_RoundTrip(t *testing.T) {
	store := setupRedis(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "5511999")
	require.ErrorIs(t, err, ErrConsentNotFound)

	at := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.SetConsent(ctx, "5511999", true, "web_form", at))
	require.NoError(t, store.SetLastInbound(ctx, "5511999", at.Add(time.Hour)))

	record, err := store.Get(ctx, "5511999")
	require.NoError(t, err)
	assert.True(t, record.OptedIn)
	assert.False(t, record.OptedOut)
	assert.Equal(t, "web_form", record.Method)
	assert.True(t, at.Equal(record.UpdatedAt))
	require.NotNil(t, record.LastInboundAt)
	assert.True(t, at.Add(time.Hour).Equal(*record.LastInboundAt))

	require.NoError(t, store.SetConsent(ctx, "5511999", false, "keyword", at.Add(2*time.Hour)))

	record, err = store.Get(ctx, "5511999")
	require.NoError(t, err)
	assert.True(t, record.OptedOut)
	assert.NotNil(t, record.LastInboundAt)
}

func TestRedisStore_BacksGate(t *testing.T) {
	store := setupRedis(t)
	ctx := context.Background()

	gate, err := NewGate(store, Config{Timezone: "UTC"}, WithClock(func() time.Time { return noon }))
	require.NoError(t, err)

	require.NoError(t, gate.RecordOptIn(ctx, "+55 11 999", "web_form"))

	decision, err := gate.CanContact(ctx, "5511999")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}
