package config_handler

import (
	"context"
	"encoding/json"

	"offermart/internal/logger"
	"offermart/pkg/models"
)

type ConfigReloader interface {
	ReloadRules(ctx context.Context) error
}

type ConfigUpdater interface {
	UpdateTieBreak(policy string) error
}

// Handler reacts to config update events for one service type:
// validation rule changes trigger a reload, dedup policy changes
// update the tie-break in place.
type Handler struct {
	expectedEventType   string
	expectedServiceType string
	reloader            ConfigReloader
	updater             ConfigUpdater
	logger              logger.Logger
}

func NewHandler(expectedEventType, expectedServiceType string, log logger.Logger) *Handler {
	return &Handler{
		expectedEventType:   expectedEventType,
		expectedServiceType: expectedServiceType,
		logger:              log,
	}
}

func NewHandlerWithReloader(expectedEventType, expectedServiceType string, reloader ConfigReloader, log logger.Logger) *Handler {
	return NewHandler(expectedEventType, expectedServiceType, log).WithReloader(reloader)
}

func NewHandlerWithUpdater(expectedEventType, expectedServiceType string, updater ConfigUpdater, log logger.Logger) *Handler {
	return NewHandler(expectedEventType, expectedServiceType, log).WithUpdater(updater)
}

func (h *Handler) WithReloader(reloader ConfigReloader) *Handler {
	h.reloader = reloader
	return h
}

func (h *Handler) WithUpdater(updater ConfigUpdater) *Handler {
	h.updater = updater
	return h
}

func (h *Handler) HandleConfigUpdateEvent(ctx context.Context, envelope models.MessageEnvelope) error {
	eventType, ok := envelope.Metadata.Attributes["event_type"].(string)
	if !ok {
		if eventTypeVal, ok := envelope.Payload["event_type"].(string); ok {
			eventType = eventTypeVal
		} else {
			h.logger.Warnw("Config event missing event_type", "id", envelope.ID)
			return nil
		}
	}

	if eventType != h.expectedEventType {
		return nil
	}

	serviceType, ok := envelope.Metadata.Attributes["service_type"].(string)
	if !ok {
		if serviceTypeVal, ok := envelope.Payload["service_type"].(string); ok {
			serviceType = serviceTypeVal
		} else {
			h.logger.Warnw("Config event missing service_type", "id", envelope.ID)
			return nil
		}
	}

	if serviceType != h.expectedServiceType {
		return nil
	}

	var event models.ConfigUpdateEvent
	eventJSON, err := json.Marshal(envelope.Payload)
	if err != nil {
		h.logger.Errorw("Failed to marshal event payload", "error", err, "id", envelope.ID)
		return err
	}

	if err := json.Unmarshal(eventJSON, &event); err != nil {
		h.logger.Errorw("Failed to unmarshal config event", "error", err, "id", envelope.ID)
		return err
	}

	h.logger.Infow("Received config update event",
		"event_type", event.EventType,
		"action", event.Action,
		"rule_id", event.RuleID,
	)

	if h.reloader != nil {
		if err := h.reloader.ReloadRules(ctx); err != nil {
			h.logger.Errorw("Failed to reload rules after config update", "error", err)
			return err
		}
		h.logger.Infow("Rules reloaded successfully after config update", "action", event.Action)
	}

	if h.updater == nil {
		return nil
	}

	if policy, ok := envelope.Payload["tie_break"].(string); ok && policy != "" {
		if err := h.updater.UpdateTieBreak(policy); err != nil {
			h.logger.Errorw("Failed to update tie-break policy", "error", err, "tie_break", policy)
			return err
		}
		h.logger.Infow("Tie-break policy updated", "tie_break", policy)
	}

	return nil
}
