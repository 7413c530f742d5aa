package query

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"ledger-aggregates/internal/domain"
)

// setupRedis starts a Redis container and returns a cache backed by it.
func setupRedis(t *testing.T) *RedisCache {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client, err := NewRedisClient(ctx, fmt.Sprintf("%s:%s", host, port.Port()), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisCache(client)
}

func TestRedisCache(t *testing.T) {
	cache := setupRedis(t)
	ctx := context.Background()

	version := uint32(3)
	summary := &domain.WindowSummary{
		EntityKey:          poolSupply.EntityKey,
		MetricKind:         poolSupply.MetricKind,
		ReferenceTimestamp: 1_000,
		AllTimeTotal:       decimal.RequireFromString("170141183460469231731687303715884105727"),
		AllTimePeak:        decimal.RequireFromString("170141183460469231731687303715884105727"),
		AllTimeVolume:      decimal.NewFromInt(42),
		Count24h:           2,
		SnapshotCount:      4,
		LastVersion:        &version,
		Series:             []domain.SeriesPoint{{Ledger: 9, Timestamp: 900, Value: decimal.NewFromInt(-5)}},
	}

	_, ok, err := cache.Get(ctx, poolSupply, 1_000)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Put(ctx, summary, time.Minute))
	other := *summary
	other.ReferenceTimestamp = 2_000
	require.NoError(t, cache.Put(ctx, &other, time.Minute))

	got, ok, err := cache.Get(ctx, poolSupply, 1_000)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, summary.AllTimeTotal.Equal(got.AllTimeTotal))
	assert.Equal(t, 2, got.Count24h)
	require.NotNil(t, got.LastVersion)
	assert.Equal(t, version, *got.LastVersion)
	require.Len(t, got.Series, 1)
	assert.Equal(t, "-5", got.Series[0].Value.String())

	require.NoError(t, cache.Invalidate(ctx, poolSupply))
	for _, ref := range []uint64{1_000, 2_000} {
		_, ok, err := cache.Get(ctx, poolSupply, ref)
		require.NoError(t, err)
		assert.False(t, ok, "ref %d still cached", ref)
	}

	// Invalidating a key with nothing cached is a no-op.
	require.NoError(t, cache.Invalidate(ctx, domain.SeriesKey{EntityKey: "none", MetricKind: domain.MetricBalance}))
}
