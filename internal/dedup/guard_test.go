package dedup

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"offermart/internal/config"
	"offermart/internal/constants"
	"offermart/internal/logger"
)

type fakeReplayRepo struct {
	seen map[string]bool
	err  error
}

func newFakeReplayRepo() *fakeReplayRepo {
	return &fakeReplayRepo{seen: make(map[string]bool)}
}

func (r *fakeReplayRepo) Exists(_ context.Context, key string) (bool, error) {
	if r.err != nil {
		return false, r.err
	}
	return r.seen[key], nil
}

func (r *fakeReplayRepo) SetNX(_ context.Context, key string, _ interface{}, _ time.Duration) (bool, error) {
	if r.err != nil {
		return false, r.err
	}
	if r.seen[key] {
		return false, nil
	}
	r.seen[key] = true
	return true, nil
}

func (r *fakeReplayRepo) GetCacheSize(_ context.Context, _ string) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	return len(r.seen), nil
}

func newTestGuard(repo Repository) *ReplayGuard {
	return NewReplayGuard(repo, config.ReplayGuardConfig{
		Enabled:    true,
		TTLSeconds: 60,
	}, logger.NopLogger())
}

func TestReplayGuard_SeenOnlyAfterMark(t *testing.T) {
	guard := newTestGuard(newFakeReplayRepo())
	ctx := context.Background()

	// Checking does not mark: a row stays unseen until Mark is called,
	// so a session that fails mid-way can be retried.
	for i := 0; i < 2; i++ {
		seen, err := guard.Seen(ctx, "offermart", "r1")
		require.NoError(t, err)
		assert.False(t, seen)
	}

	require.NoError(t, guard.Mark(ctx, "offermart", "r1"))

	seen, err := guard.Seen(ctx, "offermart", "r1")
	require.NoError(t, err)
	assert.True(t, seen)

	// Other rows and other source systems are unaffected.
	seen, err = guard.Seen(ctx, "offermart", "r2")
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = guard.Seen(ctx, "livebook", "r1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestReplayGuard_Disabled(t *testing.T) {
	repo := newFakeReplayRepo()
	repo.err = fmt.Errorf("should never be called")
	guard := NewReplayGuard(repo, config.ReplayGuardConfig{Enabled: false}, logger.NopLogger())

	seen, err := guard.Seen(context.Background(), "offermart", "r1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, guard.Mark(context.Background(), "offermart", "r1"))
}

func TestReplayGuard_FallbackAllow(t *testing.T) {
	repo := newFakeReplayRepo()
	repo.err = fmt.Errorf("redis down")
	guard := NewReplayGuard(repo, config.ReplayGuardConfig{
		Enabled:      true,
		OnRedisError: constants.FallbackAllow,
	}, logger.NopLogger())

	seen, err := guard.Seen(context.Background(), "offermart", "r1")
	require.NoError(t, err)
	assert.False(t, seen, "allow fallback treats the row as unseen")
}

func TestReplayGuard_FallbackDeny(t *testing.T) {
	repo := newFakeReplayRepo()
	repo.err = fmt.Errorf("redis down")
	guard := NewReplayGuard(repo, config.ReplayGuardConfig{
		Enabled:      true,
		OnRedisError: constants.FallbackDeny,
	}, logger.NopLogger())

	seen, err := guard.Seen(context.Background(), "offermart", "r1")
	require.Error(t, err)
	assert.False(t, seen)
	assert.Contains(t, err.Error(), "redis error")
}

func TestReplayGuard_MarkErrorIsReturned(t *testing.T) {
	repo := newFakeReplayRepo()
	repo.err = fmt.Errorf("redis down")
	guard := newTestGuard(repo)

	err := guard.Mark(context.Background(), "offermart", "r1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "marking record")
}
