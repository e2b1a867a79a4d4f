package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	CacheKeyPrefixReplay = "offer:seen:"
)

const (
	DefaultInputTopic        = "offermart_rows"
	DefaultResultTopic       = "offer_decisions"
	DefaultLiveBookTopic     = "livebook_customer_dedup"
	DefaultConfigUpdateTopic = "offer_config_updates"
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	DefaultReplayTTLSeconds     = 86400
	ReplayCacheSizeReportPeriod = time.Minute
)

const (
	TieBreakFirstWins     = "first_wins"
	TieBreakHighestAmount = "highest_amount"
)

const (
	FallbackAllow = "allow"
	FallbackDeny  = "deny"
)
