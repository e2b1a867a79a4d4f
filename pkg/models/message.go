package models

import "time"

// MessageEnvelope is the wire format shared by every topic: raw offer
// row batches from Offermart, live-book events, config updates and
// per-record results.
type MessageEnvelope struct {
	ID        string                 `json:"id"`
	Source    string                 `json:"source"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload"`
	Metadata  Metadata               `json:"metadata"`
}

type Metadata struct {
	TraceID       string                 `json:"trace_id,omitempty"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Validation    *ValidationInfo        `json:"validation,omitempty"`
	Deduplication *DeduplicationInfo     `json:"deduplication,omitempty"`
	Attributes    map[string]interface{} `json:"attributes,omitempty"`
}

type ValidationInfo struct {
	Valid       bool      `json:"valid"`
	FailedRules []string  `json:"failed_rules,omitempty"`
	CheckedAt   time.Time `json:"checked_at"`
}

type DeduplicationInfo struct {
	Status    string    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	MatchID   string    `json:"match_id,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}
