package offer

import (
	"encoding/json"
	"fmt"

	"offermart/pkg/errors"
	"offermart/pkg/models"
)

// ReconciliationStatus is the outcome reported by the live-book
// customer master for one identity-resolution attempt.
type ReconciliationStatus string

const (
	ReconciliationMatched ReconciliationStatus = "MATCHED"
	ReconciliationNoMatch ReconciliationStatus = "NO_MATCH"
	ReconciliationMerged  ReconciliationStatus = "MERGED"
	ReconciliationRemoved ReconciliationStatus = "REMOVED"
)

func (s ReconciliationStatus) Valid() bool {
	switch s {
	case ReconciliationMatched, ReconciliationNoMatch, ReconciliationMerged, ReconciliationRemoved:
		return true
	default:
		return false
	}
}

// CustomerDeduplicationEvent is the asynchronous identity-resolution
// outcome consumed from the live-book topic.
type CustomerDeduplicationEvent struct {
	OriginalCustomerID string               `json:"original_customer_id"`
	DedupedCustomerID  string               `json:"deduped_customer_id,omitempty"`
	Status             ReconciliationStatus `json:"status"`
	AffectedOfferIDs   []string             `json:"affected_offer_ids,omitempty"`
	CorrelationID      string               `json:"correlation_id,omitempty"`
}

// Validate rejects events that can never become valid. Callers must
// treat the returned error as permanent: no retry, straight to the
// dead-letter path.
func (e *CustomerDeduplicationEvent) Validate() error {
	if e.OriginalCustomerID == "" {
		return errors.ErrMalformedEvent.
			WithDetail("message", "original_customer_id is required").
			AsFatal()
	}
	if e.Status == "" {
		return errors.ErrMalformedEvent.
			WithDetail("message", "status is required").
			AsFatal()
	}
	if !e.Status.Valid() {
		return errors.ErrMalformedEvent.
			WithDetail("message", fmt.Sprintf("unknown status %q", e.Status)).
			AsFatal()
	}
	if e.Status == ReconciliationMatched || e.Status == ReconciliationMerged {
		if e.DedupedCustomerID == "" {
			return errors.ErrMalformedEvent.
				WithDetail("message", fmt.Sprintf("deduped_customer_id is required for status %s", e.Status)).
				AsFatal()
		}
	}
	return nil
}

// ParseCustomerDeduplicationEvent decodes an event from the envelope
// payload. Decode failures are permanent.
func ParseCustomerDeduplicationEvent(envelope models.MessageEnvelope) (*CustomerDeduplicationEvent, error) {
	raw, err := json.Marshal(envelope.Payload)
	if err != nil {
		return nil, errors.ErrMalformedEvent.WithCause(err).AsFatal()
	}

	var event CustomerDeduplicationEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, errors.ErrMalformedEvent.WithCause(err).AsFatal()
	}

	if event.CorrelationID == "" {
		event.CorrelationID = envelope.Metadata.CorrelationID
	}

	return &event, nil
}
