package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"offermart/internal/offer"
)

// OfferRepository persists evaluated offer records. Reconciliation
// reads them back per customer, so the load order must be stable: it
// matches session insertion order (created_at, then fact_id).
type OfferRepository interface {
	SaveAll(ctx context.Context, records []*offer.Record) error
	GetByCustomer(ctx context.Context, customerID string) ([]*offer.Record, error)
	GetByFactID(ctx context.Context, factID string) (*offer.Record, error)
	UpdateAll(ctx context.Context, records []*offer.Record) error
}

type PostgresOfferRepository struct {
	db *sql.DB
}

func NewOfferRepository(db *sql.DB) OfferRepository {
	return &PostgresOfferRepository{db: db}
}

// SaveAll upserts the batch in one transaction. The (source_system,
// incoming_record_id) unique constraint makes redelivered batches
// converge on the same rows instead of inserting twins.
func (r *PostgresOfferRepository) SaveAll(ctx context.Context, records []*offer.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO offer_records (
			fact_id, source_system, incoming_record_id, customer_id,
			pan, mobile, email, product_type, offer_id, loan_amount,
			tenure_months, campaign_id, validated, validation_errors,
			dedupe_status, dedupe_match_id, dedupe_reason,
			eligible_for_finalization, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $19)
		ON CONFLICT (source_system, incoming_record_id) DO UPDATE SET
			customer_id = EXCLUDED.customer_id,
			pan = EXCLUDED.pan,
			mobile = EXCLUDED.mobile,
			email = EXCLUDED.email,
			product_type = EXCLUDED.product_type,
			offer_id = EXCLUDED.offer_id,
			loan_amount = EXCLUDED.loan_amount,
			tenure_months = EXCLUDED.tenure_months,
			campaign_id = EXCLUDED.campaign_id,
			validated = EXCLUDED.validated,
			validation_errors = EXCLUDED.validation_errors,
			dedupe_status = EXCLUDED.dedupe_status,
			dedupe_match_id = EXCLUDED.dedupe_match_id,
			dedupe_reason = EXCLUDED.dedupe_reason,
			eligible_for_finalization = EXCLUDED.eligible_for_finalization,
			updated_at = EXCLUDED.updated_at
	`

	now := time.Now().UTC()
	for _, rec := range records {
		if _, err := tx.ExecContext(ctx, query,
			rec.FactID,
			rec.SourceSystem,
			rec.IncomingRecordID,
			rec.CustomerID,
			rec.PAN,
			rec.Mobile,
			rec.Email,
			string(rec.ProductType),
			rec.OfferID,
			rec.LoanAmount,
			rec.TenureMonths,
			rec.CampaignID,
			rec.Validated,
			pq.Array(rec.ValidationErrors),
			string(rec.DedupeStatus),
			rec.DedupeMatchID,
			rec.DedupeReason,
			rec.EligibleForFinalization,
			now,
		); err != nil {
			return fmt.Errorf("failed to upsert record %s: %w", rec.FactID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

const selectColumns = `
	fact_id, source_system, incoming_record_id, customer_id,
	pan, mobile, email, product_type, offer_id, loan_amount,
	tenure_months, campaign_id, validated, validation_errors,
	dedupe_status, dedupe_match_id, dedupe_reason,
	eligible_for_finalization
`

func (r *PostgresOfferRepository) GetByCustomer(ctx context.Context, customerID string) ([]*offer.Record, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM offer_records
		WHERE customer_id = $1
		ORDER BY created_at ASC, fact_id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query records for customer %s: %w", customerID, err)
	}
	defer rows.Close()

	var records []*offer.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return records, nil
}

func (r *PostgresOfferRepository) GetByFactID(ctx context.Context, factID string) (*offer.Record, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM offer_records
		WHERE fact_id = $1
	`

	row := r.db.QueryRowContext(ctx, query, factID)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// UpdateAll rewrites the mutable evaluation state of each record in
// one transaction. Reconciliation may re-key customer_id on MERGED
// events, so identity columns move with it.
func (r *PostgresOfferRepository) UpdateAll(ctx context.Context, records []*offer.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE offer_records SET
			customer_id = $2,
			validated = $3,
			validation_errors = $4,
			dedupe_status = $5,
			dedupe_match_id = $6,
			dedupe_reason = $7,
			eligible_for_finalization = $8,
			updated_at = $9
		WHERE fact_id = $1
	`

	now := time.Now().UTC()
	for _, rec := range records {
		if _, err := tx.ExecContext(ctx, query,
			rec.FactID,
			rec.CustomerID,
			rec.Validated,
			pq.Array(rec.ValidationErrors),
			string(rec.DedupeStatus),
			rec.DedupeMatchID,
			rec.DedupeReason,
			rec.EligibleForFinalization,
			now,
		); err != nil {
			return fmt.Errorf("failed to update record %s: %w", rec.FactID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*offer.Record, error) {
	var rec offer.Record
	var productType, dedupeStatus string
	var validationErrors pq.StringArray

	if err := row.Scan(
		&rec.FactID,
		&rec.SourceSystem,
		&rec.IncomingRecordID,
		&rec.CustomerID,
		&rec.PAN,
		&rec.Mobile,
		&rec.Email,
		&productType,
		&rec.OfferID,
		&rec.LoanAmount,
		&rec.TenureMonths,
		&rec.CampaignID,
		&rec.Validated,
		&validationErrors,
		&dedupeStatus,
		&rec.DedupeMatchID,
		&rec.DedupeReason,
		&rec.EligibleForFinalization,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan record: %w", err)
	}

	rec.ProductType = offer.ProductType(productType)
	rec.DedupeStatus = offer.DedupStatus(dedupeStatus)
	rec.ValidationErrors = validationErrors
	return &rec, nil
}
