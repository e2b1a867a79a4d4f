package config

import (
	"fmt"
	"strings"

	"offermart/internal/constants"
)

// ValidateStatic checks everything that can be verified without
// touching external systems. It runs once at startup; a bad value here
// should stop the service before it consumes anything.
func ValidateStatic(cfg *Config) error {
	var errs []string

	if cfg.Server.Port != 0 && (cfg.Server.Port < 1 || cfg.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server.port must be between 1 and 65535, got %d", cfg.Server.Port))
	}

	switch cfg.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("logging.level must be one of debug/info/warn/error, got %q", cfg.Logging.Level))
	}

	if cfg.Broker.Type != "" && cfg.Broker.Type != "kafka" {
		errs = append(errs, fmt.Sprintf("broker.type %q is not supported", cfg.Broker.Type))
	}

	if cfg.Broker.Type == "kafka" && len(cfg.Broker.Kafka.Brokers) == 0 {
		errs = append(errs, "broker.kafka.brokers must not be empty")
	}

	switch cfg.Dedup.TieBreak {
	case "", constants.TieBreakFirstWins, constants.TieBreakHighestAmount:
	default:
		errs = append(errs, fmt.Sprintf("dedup.tie_break must be %q or %q, got %q",
			constants.TieBreakFirstWins, constants.TieBreakHighestAmount, cfg.Dedup.TieBreak))
	}

	switch cfg.Dedup.ReplayGuard.OnRedisError {
	case "", constants.FallbackAllow, constants.FallbackDeny:
	default:
		errs = append(errs, fmt.Sprintf("dedup.replay_guard.on_redis_error must be %q or %q, got %q",
			constants.FallbackAllow, constants.FallbackDeny, cfg.Dedup.ReplayGuard.OnRedisError))
	}

	if cfg.Dedup.ReplayGuard.Enabled && cfg.Dedup.ReplayGuard.TTLSeconds < 0 {
		errs = append(errs, "dedup.replay_guard.ttl_seconds must not be negative")
	}

	if r := cfg.Broker.Kafka.Retry; r.MaxAttempts < 0 {
		errs = append(errs, "broker.kafka.retry.max_attempts must not be negative")
	}

	if cfg.Validation.Reload.IntervalSeconds < 0 {
		errs = append(errs, "validation.reload.interval_seconds must not be negative")
	}

	if cfg.Ops.RateLimit.Enabled {
		if cfg.Ops.RateLimit.RPS <= 0 {
			errs = append(errs, "ops.rate_limit.rps must be positive when rate limiting is enabled")
		}
		if cfg.Ops.RateLimit.Burst <= 0 {
			errs = append(errs, "ops.rate_limit.burst must be positive when rate limiting is enabled")
		}
	}

	if cfg.CircuitBreaker.Enabled {
		if cfg.CircuitBreaker.FailureRatio < 0 || cfg.CircuitBreaker.FailureRatio > 1 {
			errs = append(errs, fmt.Sprintf("circuit_breaker.failure_ratio must be within [0,1], got %v", cfg.CircuitBreaker.FailureRatio))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
