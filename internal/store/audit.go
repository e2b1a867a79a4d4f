package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"offermart/internal/offer"
	"offermart/pkg/migrations"
)

// DecisionEntry is one audit row: the state of a record at the moment
// a decision about it was made or revised.
type DecisionEntry struct {
	FactID           string    `bson:"fact_id"`
	CustomerID       string    `bson:"customer_id,omitempty"`
	SourceSystem     string    `bson:"source_system"`
	IncomingRecordID string    `bson:"incoming_record_id"`
	ProductType      string    `bson:"product_type"`
	OfferID          string    `bson:"offer_id"`
	LoanAmount       float64   `bson:"loan_amount"`
	Validated        bool      `bson:"validated"`
	ValidationErrors []string  `bson:"validation_errors,omitempty"`
	DedupeStatus     string    `bson:"dedupe_status"`
	DedupeMatchID    string    `bson:"dedupe_match_id,omitempty"`
	DedupeReason     string    `bson:"dedupe_reason,omitempty"`
	Eligible         bool      `bson:"eligible"`
	Stage            string    `bson:"stage"` // "evaluation" or "reconciliation"
	CorrelationID    string    `bson:"correlation_id,omitempty"`
	RecordedAt       time.Time `bson:"recorded_at"`
}

// AuditLog records every decision for later inspection. Append-only.
type AuditLog interface {
	Append(ctx context.Context, entries []DecisionEntry) error
	GetByFactID(ctx context.Context, factID string) ([]DecisionEntry, error)
}

type MongoAuditLog struct {
	collection *mongo.Collection
}

func NewAuditLog(db *mongo.Database) AuditLog {
	return &MongoAuditLog{
		collection: db.Collection(migrations.DecisionAuditCollection),
	}
}

func (l *MongoAuditLog) Append(ctx context.Context, entries []DecisionEntry) error {
	if len(entries) == 0 {
		return nil
	}

	docs := make([]interface{}, len(entries))
	for i, entry := range entries {
		docs[i] = entry
	}

	if _, err := l.collection.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to append audit entries: %w", err)
	}
	return nil
}

func (l *MongoAuditLog) GetByFactID(ctx context.Context, factID string) ([]DecisionEntry, error) {
	filter := bson.M{"fact_id": factID}
	opts := options.Find().SetSort(bson.D{{Key: "recorded_at", Value: 1}})

	cursor, err := l.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find audit entries: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []DecisionEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode audit entries: %w", err)
	}

	return entries, nil
}

// NewDecisionEntry snapshots a record at a decision point.
func NewDecisionEntry(rec *offer.Record, stage, correlationID string) DecisionEntry {
	return DecisionEntry{
		FactID:           rec.FactID,
		CustomerID:       rec.CustomerID,
		SourceSystem:     rec.SourceSystem,
		IncomingRecordID: rec.IncomingRecordID,
		ProductType:      string(rec.ProductType),
		OfferID:          rec.OfferID,
		LoanAmount:       rec.LoanAmount,
		Validated:        rec.Validated,
		ValidationErrors: rec.ValidationErrors,
		DedupeStatus:     string(rec.DedupeStatus),
		DedupeMatchID:    rec.DedupeMatchID,
		DedupeReason:     rec.DedupeReason,
		Eligible:         rec.EligibleForFinalization,
		Stage:            stage,
		CorrelationID:    correlationID,
		RecordedAt:       time.Now().UTC(),
	}
}
