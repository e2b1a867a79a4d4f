package reconciliation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"offermart/internal/dedup"
	"offermart/internal/logger"
	"offermart/internal/offer"
	"offermart/internal/store"
	"offermart/pkg/logging"
	"offermart/pkg/metrics"
	"offermart/pkg/tracing"
)

// Service folds live-book reconciliation outcomes into persisted offer
// records. Events for one customer are serialized; applying the same
// event twice leaves the records unchanged.
type Service struct {
	offers store.OfferRepository
	dedup  *dedup.Service
	audit  store.AuditLog
	locks  *KeyedMutex
	logger logger.Logger
}

func NewService(offers store.OfferRepository, dedupSvc *dedup.Service, audit store.AuditLog, log logger.Logger) *Service {
	return &Service{
		offers: offers,
		dedup:  dedupSvc,
		audit:  audit,
		locks:  NewKeyedMutex(),
		logger: log,
	}
}

// Apply handles one customer deduplication event. Validation failures
// are permanent: the event can never become valid and goes straight to
// the dead-letter path. Storage failures are retryable.
func (s *Service) Apply(ctx context.Context, event *offer.CustomerDeduplicationEvent) error {
	ctx, span := tracing.GetTracer("reconciliation-service").Start(ctx, "reconciliation.apply")
	defer span.End()

	if err := event.Validate(); err != nil {
		metrics.ReconciliationEventsTotal.WithLabelValues("malformed").Inc()
		return err
	}

	ctx = logging.WithCustomerID(ctx, event.OriginalCustomerID)
	start := time.Now()

	unlock := s.lockCustomers(event)
	defer unlock()

	var err error
	switch event.Status {
	case offer.ReconciliationMatched:
		err = s.applyMatched(ctx, event)
	case offer.ReconciliationNoMatch:
		err = s.applyNoMatch(ctx, event)
	case offer.ReconciliationMerged:
		err = s.applyMerged(ctx, event)
	case offer.ReconciliationRemoved:
		err = s.applyRemoved(ctx, event)
	}

	status := string(event.Status)
	if err != nil {
		status = "error"
	}
	metrics.ReconciliationEventsTotal.WithLabelValues(status).Inc()
	metrics.ObserveReconciliationDuration(time.Since(start), status)

	return err
}

// lockCustomers serializes on every customer the event touches. Keys
// are sorted so two MERGED events crossing the same pair cannot
// deadlock.
func (s *Service) lockCustomers(event *offer.CustomerDeduplicationEvent) func() {
	keys := []string{event.OriginalCustomerID}
	if event.DedupedCustomerID != "" && event.DedupedCustomerID != event.OriginalCustomerID {
		keys = append(keys, event.DedupedCustomerID)
	}
	sort.Strings(keys)

	unlocks := make([]func(), 0, len(keys))
	for _, key := range keys {
		unlocks = append(unlocks, s.locks.Lock(key))
	}

	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}

// applyMatched marks affected records MATCHED_LIVEBOOK. The status is
// absorbing: records already matched or removed stay as they are.
func (s *Service) applyMatched(ctx context.Context, event *offer.CustomerDeduplicationEvent) error {
	records, err := s.offers.GetByCustomer(ctx, event.OriginalCustomerID)
	if err != nil {
		return fmt.Errorf("failed to load records for customer %s: %w", event.OriginalCustomerID, err)
	}

	var changed []*offer.Record
	for _, rec := range affected(records, event.AffectedOfferIDs) {
		if rec.DedupeStatus.Absorbing() {
			continue
		}
		rec.MarkMatchedLiveBook(event.DedupedCustomerID)
		rec.RecomputeEligibility()
		changed = append(changed, rec)
	}

	return s.persist(ctx, event, changed)
}

// applyNoMatch confirms the records as-is. Nothing changes, but the
// confirmation is audited.
func (s *Service) applyNoMatch(ctx context.Context, event *offer.CustomerDeduplicationEvent) error {
	s.logger.InfowCtx(ctx, "Live book reported no match, records unchanged",
		"customer_id", event.OriginalCustomerID,
	)
	return nil
}

// applyRemoved marks affected records REMOVED. Removal overrides a
// prior MATCHED_LIVEBOOK; a second REMOVED event is a no-op.
func (s *Service) applyRemoved(ctx context.Context, event *offer.CustomerDeduplicationEvent) error {
	records, err := s.offers.GetByCustomer(ctx, event.OriginalCustomerID)
	if err != nil {
		return fmt.Errorf("failed to load records for customer %s: %w", event.OriginalCustomerID, err)
	}

	var changed []*offer.Record
	for _, rec := range affected(records, event.AffectedOfferIDs) {
		if rec.DedupeStatus == offer.DedupRemoved {
			continue
		}
		rec.MarkRemoved()
		rec.RecomputeEligibility()
		changed = append(changed, rec)
	}

	return s.persist(ctx, event, changed)
}

// applyMerged re-keys the original customer's records under the
// surviving identity and re-runs the deduplication rule set over the
// combined population. Absorbing records keep their status but still
// move to the surviving customer. The re-evaluation is deterministic
// over the stable load order, so a replayed event converges on the
// same outcome.
func (s *Service) applyMerged(ctx context.Context, event *offer.CustomerDeduplicationEvent) error {
	originals, err := s.offers.GetByCustomer(ctx, event.OriginalCustomerID)
	if err != nil {
		return fmt.Errorf("failed to load records for customer %s: %w", event.OriginalCustomerID, err)
	}

	for _, rec := range originals {
		rec.CustomerID = event.DedupedCustomerID
	}
	if err := s.offers.UpdateAll(ctx, originals); err != nil {
		return fmt.Errorf("failed to re-key records to customer %s: %w", event.DedupedCustomerID, err)
	}

	combined, err := s.offers.GetByCustomer(ctx, event.DedupedCustomerID)
	if err != nil {
		return fmt.Errorf("failed to load records for customer %s: %w", event.DedupedCustomerID, err)
	}

	for _, rec := range combined {
		rec.ResetDedup()
	}
	s.dedup.Evaluate(ctx, combined)
	for _, rec := range combined {
		rec.RecomputeEligibility()
	}

	return s.persist(ctx, event, combined)
}

func (s *Service) persist(ctx context.Context, event *offer.CustomerDeduplicationEvent, changed []*offer.Record) error {
	if len(changed) == 0 {
		return nil
	}

	if err := s.offers.UpdateAll(ctx, changed); err != nil {
		return fmt.Errorf("failed to update records: %w", err)
	}

	entries := make([]store.DecisionEntry, 0, len(changed))
	for _, rec := range changed {
		metrics.ReconciliationRecordsUpdated.WithLabelValues(string(rec.DedupeStatus)).Inc()
		entries = append(entries, store.NewDecisionEntry(rec, "reconciliation", event.CorrelationID))
	}
	if err := s.audit.Append(ctx, entries); err != nil {
		return fmt.Errorf("failed to append audit entries: %w", err)
	}

	s.logger.InfowCtx(ctx, "Reconciliation applied",
		"status", event.Status,
		"records_updated", len(changed),
	)
	return nil
}

// affected filters records down to the offer IDs named by the event.
// An event without offer IDs touches every record of the customer.
func affected(records []*offer.Record, offerIDs []string) []*offer.Record {
	if len(offerIDs) == 0 {
		return records
	}

	wanted := make(map[string]struct{}, len(offerIDs))
	for _, id := range offerIDs {
		wanted[id] = struct{}{}
	}

	var out []*offer.Record
	for _, rec := range records {
		if _, ok := wanted[rec.OfferID]; ok {
			out = append(out, rec)
		}
	}
	return out
}
