package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"offermart/internal/config"
	"offermart/internal/constants"
	"offermart/internal/dedup"
)

func TestReplayGuardRepository_SetNX(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)

	ctx := context.Background()
	repo := dedup.NewRepository(infra.RedisClient)

	key := "test:replay:key1"
	value := time.Now().Unix()
	ttl := 5 * time.Second

	success, err := repo.SetNX(ctx, key, value, ttl)
	require.NoError(t, err)
	assert.True(t, success)

	success, err = repo.SetNX(ctx, key, value+1, ttl)
	require.NoError(t, err)
	assert.False(t, success)
}

func TestReplayGuardRepository_Exists(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)

	ctx := context.Background()
	repo := dedup.NewRepository(infra.RedisClient)

	key := "test:replay:exists"

	exists, err := repo.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists, "reading must not create the key")

	_, err = repo.SetNX(ctx, key, time.Now().Unix(), 5*time.Second)
	require.NoError(t, err)

	exists, err = repo.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestReplayGuardRepository_SetNX_TTL(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)

	ctx := context.Background()
	repo := dedup.NewRepository(infra.RedisClient)

	key := "test:replay:key2"
	ttl := 1 * time.Second

	success, err := repo.SetNX(ctx, key, time.Now().Unix(), ttl)
	require.NoError(t, err)
	assert.True(t, success)

	time.Sleep(2 * time.Second)

	// The key expired, so the row is fresh again.
	success, err = repo.SetNX(ctx, key, time.Now().Unix(), ttl)
	require.NoError(t, err)
	assert.True(t, success)
}

func TestReplayGuard_SeenOnlyAfterMark(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)

	ctx := context.Background()
	guard := dedup.NewReplayGuard(dedup.NewRepository(infra.RedisClient), createTestReplayGuardConfig(), createTestLogger())

	// Checking alone leaves the row unseen, so a failed session can be
	// retried without the guard swallowing the redelivery.
	seen, err := guard.Seen(ctx, "offermart", "rec-001")
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = guard.Seen(ctx, "offermart", "rec-001")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, guard.Mark(ctx, "offermart", "rec-001"))

	seen, err = guard.Seen(ctx, "offermart", "rec-001")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = guard.Seen(ctx, "offermart", "rec-002")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestReplayGuard_FallbackAllowOnClosedClient(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)

	guard := dedup.NewReplayGuard(dedup.NewRepository(infra.RedisClient), createTestReplayGuardConfig(), createTestLogger())

	require.NoError(t, infra.RedisClient.Close())

	seen, err := guard.Seen(context.Background(), "offermart", "rec-after-close")
	require.NoError(t, err)
	assert.False(t, seen, "allow fallback lets the row through when redis is gone")
}

func TestReplayGuard_FallbackDenyOnClosedClient(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)

	cfg := createTestReplayGuardConfig()
	cfg.OnRedisError = constants.FallbackDeny
	guard := dedup.NewReplayGuard(dedup.NewRepository(infra.RedisClient), cfg, createTestLogger())

	require.NoError(t, infra.RedisClient.Close())

	seen, err := guard.Seen(context.Background(), "offermart", "rec-after-close")
	require.Error(t, err)
	assert.False(t, seen)
}

func TestReplayGuard_Disabled(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)

	cfg := config.ReplayGuardConfig{Enabled: false}
	guard := dedup.NewReplayGuard(dedup.NewRepository(infra.RedisClient), cfg, createTestLogger())

	// Disabled guard never consults redis: every row reads unseen.
	for i := 0; i < 3; i++ {
		require.NoError(t, guard.Mark(context.Background(), "offermart", "rec-same"))
		seen, err := guard.Seen(context.Background(), "offermart", "rec-same")
		require.NoError(t, err)
		assert.False(t, seen)
	}
}
