package reconciliation

import (
	"context"

	"offermart/internal/offer"
	"offermart/pkg/models"
)

// HandleLiveBookEvent adapts the broker envelope to the reconciliation
// service. Undecodable payloads surface as fatal errors and skip the
// retry loop.
func (s *Service) HandleLiveBookEvent(ctx context.Context, envelope models.MessageEnvelope) error {
	event, err := offer.ParseCustomerDeduplicationEvent(envelope)
	if err != nil {
		return err
	}
	return s.Apply(ctx, event)
}
