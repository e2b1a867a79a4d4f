package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"offermart/internal/config"
	"offermart/internal/constants"
	"offermart/internal/dedup"
	"offermart/internal/logger"
	"offermart/internal/offer"
	"offermart/internal/store"
	"offermart/internal/validation"
	"offermart/pkg/errors"
	"offermart/pkg/models"
)

type fakeRuleRepo struct{}

func (fakeRuleRepo) GetActiveRules(context.Context) ([]validation.CELRule, error) {
	return nil, nil
}

type fakeOfferRepo struct {
	order        []string
	byID         map[string]*offer.Record
	failNextSave error
}

func newFakeOfferRepo() *fakeOfferRepo {
	return &fakeOfferRepo{byID: make(map[string]*offer.Record)}
}

func (r *fakeOfferRepo) SaveAll(_ context.Context, records []*offer.Record) error {
	if r.failNextSave != nil {
		err := r.failNextSave
		r.failNextSave = nil
		return err
	}
	for _, rec := range records {
		if _, ok := r.byID[rec.FactID]; !ok {
			r.order = append(r.order, rec.FactID)
		}
		clone := *rec
		r.byID[rec.FactID] = &clone
	}
	return nil
}

func (r *fakeOfferRepo) GetByCustomer(_ context.Context, customerID string) ([]*offer.Record, error) {
	var out []*offer.Record
	for _, id := range r.order {
		if r.byID[id].CustomerID == customerID {
			clone := *r.byID[id]
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *fakeOfferRepo) GetByFactID(_ context.Context, factID string) (*offer.Record, error) {
	rec, ok := r.byID[factID]
	if !ok {
		return nil, nil
	}
	clone := *rec
	return &clone, nil
}

func (r *fakeOfferRepo) UpdateAll(_ context.Context, records []*offer.Record) error {
	for _, rec := range records {
		clone := *rec
		r.byID[rec.FactID] = &clone
	}
	return nil
}

type fakeAuditLog struct {
	entries []store.DecisionEntry
}

func (l *fakeAuditLog) Append(_ context.Context, entries []store.DecisionEntry) error {
	l.entries = append(l.entries, entries...)
	return nil
}

func (l *fakeAuditLog) GetByFactID(_ context.Context, factID string) ([]store.DecisionEntry, error) {
	var out []store.DecisionEntry
	for _, e := range l.entries {
		if e.FactID == factID {
			out = append(out, e)
		}
	}
	return out, nil
}

type published struct {
	topic string
	msg   models.MessageEnvelope
}

type fakeProducer struct {
	messages []published
}

func (p *fakeProducer) Publish(_ context.Context, topic string, msg models.MessageEnvelope) error {
	p.messages = append(p.messages, published{topic: topic, msg: msg})
	return nil
}

func (p *fakeProducer) Close() error { return nil }

type fakeReplayRepo struct {
	seen map[string]bool
}

func (r *fakeReplayRepo) Exists(_ context.Context, key string) (bool, error) {
	return r.seen[key], nil
}

func (r *fakeReplayRepo) SetNX(_ context.Context, key string, _ interface{}, _ time.Duration) (bool, error) {
	if r.seen[key] {
		return false, nil
	}
	r.seen[key] = true
	return true, nil
}

func (r *fakeReplayRepo) GetCacheSize(context.Context, string) (int, error) {
	return len(r.seen), nil
}

type pipeline struct {
	svc      *Service
	offers   *fakeOfferRepo
	audit    *fakeAuditLog
	producer *fakeProducer
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	log := logger.NopLogger()

	validationSvc, err := validation.NewService(fakeRuleRepo{}, config.ValidationConfig{}, log)
	require.NoError(t, err)

	dedupSvc := dedup.NewService(config.DedupConfig{TieBreak: constants.TieBreakFirstWins}, log)
	guard := dedup.NewReplayGuard(&fakeReplayRepo{seen: make(map[string]bool)}, config.ReplayGuardConfig{
		Enabled:    true,
		TTLSeconds: 60,
	}, log)

	offers := newFakeOfferRepo()
	audit := &fakeAuditLog{}
	producer := &fakeProducer{}

	return &pipeline{
		svc:      NewService(validationSvc, dedupSvc, guard, offers, audit, producer, "offer-results", log),
		offers:   offers,
		audit:    audit,
		producer: producer,
	}
}

func row(id, customerID, product string, amount float64) map[string]interface{} {
	return map[string]interface{}{
		"incoming_record_id": id,
		"customer_id":        customerID,
		"product_type":       product,
		"offer_id":           "offer-" + id,
		"loan_amount":        amount,
		"tenure_months":      12,
	}
}

func feedEnvelope(id string, rows ...map[string]interface{}) models.MessageEnvelope {
	converted := make([]interface{}, len(rows))
	for i, r := range rows {
		converted[i] = r
	}
	return models.MessageEnvelope{
		ID:      id,
		Source:  "offermart",
		Payload: map[string]interface{}{"rows": converted},
	}
}

func TestProcessBatch_SessionDeduplication(t *testing.T) {
	p := newPipeline(t)

	envelope := feedEnvelope("batch-1",
		row("r1", "c1", "Loyalty", 7000),
		row("r2", "c1", "Loyalty", 7500),
		row("r3", "c1", "Loyalty", 8000),
		row("r4", "c1", "Preapproved", 9000),
	)
	require.NoError(t, p.svc.ProcessBatch(context.Background(), envelope))

	records, err := p.offers.GetByCustomer(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, records, 4)

	byRow := make(map[string]*offer.Record, len(records))
	for _, rec := range records {
		byRow[rec.IncomingRecordID] = rec
	}

	// First Loyalty offer wins its scope, the later two lose to it.
	assert.Equal(t, offer.DedupNew, byRow["r1"].DedupeStatus)
	assert.True(t, byRow["r1"].EligibleForFinalization)
	for _, id := range []string{"r2", "r3"} {
		assert.Equal(t, offer.DedupDuplicate, byRow[id].DedupeStatus)
		assert.Equal(t, offer.ReasonCrossProductDuplicate, byRow[id].DedupeReason)
		assert.Equal(t, byRow["r1"].FactID, byRow[id].DedupeMatchID)
		assert.False(t, byRow[id].EligibleForFinalization)
	}

	// The Preapproved offer sits in its own scope and survives.
	assert.Equal(t, offer.DedupNew, byRow["r4"].DedupeStatus)
	assert.True(t, byRow["r4"].EligibleForFinalization)

	assert.Len(t, p.producer.messages, 4)
	for _, pub := range p.producer.messages {
		assert.Equal(t, "offer-results", pub.topic)
		require.NotNil(t, pub.msg.Metadata.Deduplication)
		require.NotNil(t, pub.msg.Metadata.Validation)
	}

	assert.Len(t, p.audit.entries, 4)
	for _, entry := range p.audit.entries {
		assert.Equal(t, "evaluation", entry.Stage)
	}
}

func TestProcessBatch_ReplayedRowsAreSkipped(t *testing.T) {
	p := newPipeline(t)

	envelope := feedEnvelope("batch-1", row("r1", "c1", "Loyalty", 7000))
	require.NoError(t, p.svc.ProcessBatch(context.Background(), envelope))
	require.Len(t, p.producer.messages, 1)

	// Same message again: acknowledged, not re-evaluated.
	require.NoError(t, p.svc.ProcessBatch(context.Background(), envelope))
	assert.Len(t, p.producer.messages, 1)
	assert.Len(t, p.audit.entries, 1)

	// The guard keys on the row, not the envelope: the same row under a
	// new message ID is still a replay.
	require.NoError(t, p.svc.ProcessBatch(context.Background(), feedEnvelope("batch-2", row("r1", "c1", "Loyalty", 7000))))
	assert.Len(t, p.producer.messages, 1)
	assert.Len(t, p.audit.entries, 1)
}

func TestProcessBatch_RetriedAfterTransientStoreFailure(t *testing.T) {
	p := newPipeline(t)
	p.offers.failNextSave = fmt.Errorf("connection reset by peer")

	envelope := feedEnvelope("batch-1", row("r1", "c1", "Loyalty", 7000))
	err := p.svc.ProcessBatch(context.Background(), envelope)
	require.Error(t, err)
	assert.False(t, errors.IsPermanent(err), "a store outage must stay retryable")
	assert.Empty(t, p.producer.messages)

	// The broker redelivers the message. The failed attempt must not
	// have marked the rows as seen, or the retry would drop the batch.
	require.NoError(t, p.svc.ProcessBatch(context.Background(), envelope))

	records, lookupErr := p.offers.GetByCustomer(context.Background(), "c1")
	require.NoError(t, lookupErr)
	require.Len(t, records, 1, "the record must land once the store recovers")
	assert.Equal(t, offer.DedupNew, records[0].DedupeStatus)
	assert.Len(t, p.producer.messages, 1)
	assert.Len(t, p.audit.entries, 1)
}

func TestProcessBatch_InvalidRowIsPersistedButIneligible(t *testing.T) {
	p := newPipeline(t)

	envelope := feedEnvelope("batch-1", row("r1", "c1", "Loyalty", -500))
	require.NoError(t, p.svc.ProcessBatch(context.Background(), envelope))

	records, err := p.offers.GetByCustomer(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.False(t, rec.Validated)
	assert.NotEmpty(t, rec.ValidationErrors)
	assert.False(t, rec.EligibleForFinalization)

	// The outcome is still published for downstream consumers.
	require.Len(t, p.producer.messages, 1)
	assert.False(t, p.producer.messages[0].msg.Metadata.Validation.Valid)
}

func TestProcessBatch_MalformedPayloadIsPermanent(t *testing.T) {
	p := newPipeline(t)

	envelope := models.MessageEnvelope{
		ID:      "batch-1",
		Payload: map[string]interface{}{"rows": "not-a-list"},
	}
	err := p.svc.ProcessBatch(context.Background(), envelope)
	require.Error(t, err)
	assert.True(t, errors.IsPermanent(err), "malformed batches go to the DLQ, not the retry loop")

	assert.Empty(t, p.producer.messages)
	assert.Empty(t, p.audit.entries)
}

func TestProcessBatch_EmptyBatch(t *testing.T) {
	p := newPipeline(t)

	require.NoError(t, p.svc.ProcessBatch(context.Background(), feedEnvelope("batch-1")))
	assert.Empty(t, p.producer.messages)
	assert.Empty(t, p.audit.entries)
}
