package dedup

import (
	"context"
	"fmt"
	"time"

	"offermart/internal/config"
	"offermart/internal/constants"
	"offermart/internal/logger"
	"offermart/pkg/metrics"
)

// ReplayGuard drops offer rows the engine has already processed, keyed
// on (source system, incoming record id) with a TTL'd redis entry. The
// check and the mark are separate steps: Seen is consulted before a row
// enters an evaluation session, Mark is called only after the session's
// results are persisted and published. A row that fails mid-session is
// therefore never recorded as seen and stays retryable.
type ReplayGuard struct {
	repo   Repository
	cfg    config.ReplayGuardConfig
	logger logger.Logger
}

func NewReplayGuard(repo Repository, cfg config.ReplayGuardConfig, log logger.Logger) *ReplayGuard {
	return &ReplayGuard{
		repo:   repo,
		cfg:    cfg,
		logger: log,
	}
}

// Seen reports whether the row was already processed to completion. On
// a redis failure the configured fallback decides: "allow" treats the
// row as unseen, "deny" surfaces the error so the message is retried.
func (g *ReplayGuard) Seen(ctx context.Context, sourceSystem, recordID string) (bool, error) {
	if !g.cfg.Enabled {
		return false, nil
	}

	key := replayKey(sourceSystem, recordID)
	start := time.Now()
	exists, err := g.repo.Exists(ctx, key)
	duration := time.Since(start)

	if err != nil {
		metrics.ReplayGuardChecksTotal.WithLabelValues("error").Inc()
		metrics.ObserveReplayGuardDuration(duration, "error")

		if g.cfg.OnRedisError == constants.FallbackAllow {
			metrics.FallbackUsageTotal.WithLabelValues("replay_guard", "allow_on_error", err.Error()).Inc()
			g.logger.WarnwCtx(ctx, "Redis error during replay check, treating row as unseen (fallback: allow)",
				"source_system", sourceSystem,
				"incoming_record_id", recordID,
				"error", err,
			)
			return false, nil
		}

		metrics.FallbackUsageTotal.WithLabelValues("replay_guard", "deny_on_error", err.Error()).Inc()
		return false, fmt.Errorf("redis error during replay check for record %s/%s: %w", sourceSystem, recordID, err)
	}

	status := "fresh"
	if exists {
		status = "replay"
	}
	metrics.ReplayGuardChecksTotal.WithLabelValues(status).Inc()
	metrics.ObserveReplayGuardDuration(duration, status)

	return exists, nil
}

// Mark records the row as processed. Callers invoke it after the
// session's output is durable; a marking failure must not fail the
// batch, since that would re-run work that already committed.
func (g *ReplayGuard) Mark(ctx context.Context, sourceSystem, recordID string) error {
	if !g.cfg.Enabled {
		return nil
	}

	ttl := time.Duration(g.cfg.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = constants.DefaultReplayTTLSeconds * time.Second
	}

	if _, err := g.repo.SetNX(ctx, replayKey(sourceSystem, recordID), time.Now().Unix(), ttl); err != nil {
		metrics.FallbackUsageTotal.WithLabelValues("replay_guard", "mark_failed", err.Error()).Inc()
		return fmt.Errorf("redis error while marking record %s/%s as processed: %w", sourceSystem, recordID, err)
	}
	return nil
}

// ReportCacheSize publishes the guard's key count on a ticker until the
// context is cancelled.
func (g *ReplayGuard) ReportCacheSize(ctx context.Context, interval time.Duration) {
	if !g.cfg.Enabled {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			size, err := g.repo.GetCacheSize(ctx, constants.CacheKeyPrefixReplay)
			if err != nil {
				g.logger.WarnwCtx(ctx, "Failed to read replay cache size",
					"error", err,
				)
				continue
			}
			metrics.ReplayGuardCacheSize.Set(float64(size))
		}
	}
}

func replayKey(sourceSystem, recordID string) string {
	return constants.CacheKeyPrefixReplay + sourceSystem + ":" + recordID
}
