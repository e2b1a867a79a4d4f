package models

import "time"

type ConfigUpdateEvent struct {
	EventType   string                 `json:"event_type"`   // "validation_rule_updated", "dedup_policy_updated"
	ServiceType string                 `json:"service_type"` // "validation", "deduplication"
	RuleID      string                 `json:"rule_id,omitempty"`
	Action      string                 `json:"action"` // "create", "update", "delete", "toggle"
	Timestamp   time.Time              `json:"timestamp"`
	ChangedBy   string                 `json:"changed_by,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

const (
	EventTypeValidationRuleUpdated = "validation_rule_updated"
	EventTypeDedupPolicyUpdated    = "dedup_policy_updated"
)

const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionToggle = "toggle"
	ActionReload = "reload"
)

const (
	ServiceTypeValidation    = "validation"
	ServiceTypeDeduplication = "deduplication"
)
