package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"offermart/internal/broker"
	"offermart/internal/dedup"
	"offermart/internal/logger"
	"offermart/internal/offer"
	"offermart/internal/store"
	"offermart/internal/validation"
	"offermart/pkg/metrics"
	"offermart/pkg/models"
	"offermart/pkg/tracing"
)

// Service is the offer evaluation pipeline: one incoming feed message
// is one evaluation session. Rows become records, the validation rule
// set runs, the deduplication rule set runs over the same session, the
// eligibility flag is derived, and the outcome is persisted, audited
// and published.
type Service struct {
	validation  *validation.Service
	dedup       *dedup.Service
	guard       *dedup.ReplayGuard
	offers      store.OfferRepository
	audit       store.AuditLog
	producer    broker.Producer
	resultTopic string
	logger      logger.Logger
}

func NewService(
	validationSvc *validation.Service,
	dedupSvc *dedup.Service,
	guard *dedup.ReplayGuard,
	offers store.OfferRepository,
	audit store.AuditLog,
	producer broker.Producer,
	resultTopic string,
	log logger.Logger,
) *Service {
	return &Service{
		validation:  validationSvc,
		dedup:       dedupSvc,
		guard:       guard,
		offers:      offers,
		audit:       audit,
		producer:    producer,
		resultTopic: resultTopic,
		logger:      log,
	}
}

// ProcessBatch handles one feed message end to end. Rows already
// processed to completion are acknowledged without re-evaluation;
// malformed payloads return a fatal error so the broker routes them to
// the DLQ without retrying. Rows are recorded as seen only after the
// session's output is persisted and published, so a transient store or
// broker failure leaves the whole message retryable.
func (s *Service) ProcessBatch(ctx context.Context, envelope models.MessageEnvelope) error {
	ctx, span := tracing.GetTracer("offer-engine").Start(ctx, "engine.process_batch")
	defer span.End()

	rows, err := offer.ParseRows(envelope)
	if err != nil {
		return err
	}

	if len(rows) == 0 {
		s.logger.WarnwCtx(ctx, "Feed message carried no rows",
			"message_id", envelope.ID,
		)
		return nil
	}

	fresh := make([]offer.Row, 0, len(rows))
	for _, row := range rows {
		seen, err := s.guard.Seen(ctx, row.SourceSystem, row.IncomingRecordID)
		if err != nil {
			return err
		}
		if seen {
			s.logger.InfowCtx(ctx, "Skipping replayed offer row",
				"message_id", envelope.ID,
				"source_system", row.SourceSystem,
				"incoming_record_id", row.IncomingRecordID,
			)
			continue
		}
		fresh = append(fresh, row)
	}

	if len(fresh) == 0 {
		s.logger.InfowCtx(ctx, "Every row in the message was already processed",
			"message_id", envelope.ID,
		)
		return nil
	}

	records := make([]*offer.Record, 0, len(fresh))
	for _, row := range fresh {
		records = append(records, row.ToRecord())
	}

	results := s.validation.ApplyRulesBatch(ctx, records)
	s.dedup.Evaluate(ctx, records)

	for _, rec := range records {
		rec.RecomputeEligibility()
		metrics.EligibilityDecisionsTotal.WithLabelValues(eligibilityLabel(rec)).Inc()
	}

	if err := s.offers.SaveAll(ctx, records); err != nil {
		return fmt.Errorf("failed to persist evaluated records: %w", err)
	}

	entries := make([]store.DecisionEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, store.NewDecisionEntry(rec, "evaluation", envelope.Metadata.CorrelationID))
	}
	if err := s.audit.Append(ctx, entries); err != nil {
		return fmt.Errorf("failed to append audit entries: %w", err)
	}

	for _, rec := range records {
		result := results[rec]
		if err := s.publishResult(ctx, envelope, rec, result); err != nil {
			return err
		}
	}

	// The session is durable from here: marking failures must not fail
	// the batch, or the retry would re-publish committed results. An
	// unmarked row redelivered later converges through the store upsert.
	for _, row := range fresh {
		if err := s.guard.Mark(ctx, row.SourceSystem, row.IncomingRecordID); err != nil {
			s.logger.WarnwCtx(ctx, "Failed to mark row as processed",
				"message_id", envelope.ID,
				"source_system", row.SourceSystem,
				"incoming_record_id", row.IncomingRecordID,
				"error", err,
			)
		}
	}

	s.logger.InfowCtx(ctx, "Evaluation session complete",
		"message_id", envelope.ID,
		"records", len(records),
	)
	return nil
}

func (s *Service) publishResult(ctx context.Context, in models.MessageEnvelope, rec *offer.Record, result offer.OverallResult) error {
	out := models.NewMessageEnvelopeBuilder().
		WithID(uuid.NewString()).
		WithSource("offer-engine").
		WithPayloadField("fact_id", rec.FactID).
		WithPayloadField("record", rec).
		WithPayloadField("validation_results", result.Results).
		WithMetadata(models.Metadata{
			TraceID:       in.Metadata.TraceID,
			CorrelationID: in.Metadata.CorrelationID,
			Validation: &models.ValidationInfo{
				Valid:       rec.Validated,
				FailedRules: result.FailedRules(),
				CheckedAt:   time.Now().UTC(),
			},
			Deduplication: &models.DeduplicationInfo{
				Status:    string(rec.DedupeStatus),
				Reason:    rec.DedupeReason,
				MatchID:   rec.DedupeMatchID,
				CheckedAt: time.Now().UTC(),
			},
		}).
		Build()

	if err := s.producer.Publish(ctx, s.resultTopic, out); err != nil {
		return fmt.Errorf("failed to publish result for record %s: %w", rec.FactID, err)
	}
	return nil
}

func eligibilityLabel(rec *offer.Record) string {
	if rec.EligibleForFinalization {
		return "eligible"
	}
	return "ineligible"
}
