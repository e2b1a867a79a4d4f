package migrations

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const DecisionAuditCollection = "offer_decisions"

// EnsureMongoCollection creates the indexes backing the decision audit
// trail queries (per customer, per fact, most-recent-first).
func EnsureMongoCollection(ctx context.Context, db *mongo.Database) error {
	collection := db.Collection(DecisionAuditCollection)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "fact_id", Value: 1}, {Key: "recorded_at", Value: -1}},
			Options: options.Index().SetName("idx_offer_decisions_fact_recorded"),
		},
		{
			Keys:    bson.D{{Key: "customer_id", Value: 1}, {Key: "recorded_at", Value: -1}},
			Options: options.Index().SetName("idx_offer_decisions_customer_recorded"),
		},
		{
			Keys:    bson.D{{Key: "correlation_id", Value: 1}},
			Options: options.Index().SetName("idx_offer_decisions_correlation"),
		},
		{
			Keys:    bson.D{{Key: "recorded_at", Value: -1}},
			Options: options.Index().SetName("idx_offer_decisions_recorded_at"),
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		if !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("failed to create indexes: %w", err)
		}
	}

	return nil
}
