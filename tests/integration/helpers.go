package integration

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"offermart/internal/config"
	"offermart/internal/constants"
	"offermart/internal/logger"
	"offermart/internal/offer"
)

const (
	containerStartupTimeout = 60
	timestampDelay          = 10 * time.Millisecond
)

func createTestLogger() logger.Logger {
	return logger.NopLogger()
}

func createTestReplayGuardConfig() config.ReplayGuardConfig {
	return config.ReplayGuardConfig{
		Enabled:      true,
		TTLSeconds:   300,
		OnRedisError: constants.FallbackAllow,
	}
}

func createTestRecord(customerID, incomingRecordID string, product offer.ProductType, amount float64) *offer.Record {
	rec := offer.NewRecord("offermart", incomingRecordID)
	rec.CustomerID = customerID
	rec.ProductType = product
	rec.OfferID = "offer-" + incomingRecordID
	rec.LoanAmount = amount
	rec.TenureMonths = 12
	rec.Validated = true
	rec.MarkNew()
	rec.RecomputeEligibility()
	return rec
}

func insertTestRule(t *testing.T, db *sql.DB, name, expression, message string, priority int, enabled bool) {
	t.Helper()
	_, err := db.ExecContext(context.Background(), `
		INSERT INTO validation_rules (name, expression, message, priority, enabled)
		VALUES ($1, $2, $3, $4, $5)
	`, name, expression, message, priority, enabled)
	if err != nil {
		t.Fatalf("failed to insert rule %s: %v", name, err)
	}
}
