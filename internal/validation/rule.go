package validation

import (
	"context"
	"fmt"

	"offermart/internal/offer"
)

// Rule is one independent structural check over a single record. It
// returns the human-readable error messages for a failing record, or
// nothing when the record passes. A non-nil error means the rule
// itself could not execute; the engine isolates it as a synthetic
// failure without aborting the batch. Rules must not depend on each
// other's outcome.
type Rule interface {
	Name() string
	Check(ctx context.Context, rec *offer.Record) ([]string, error)
}

type builtinRule struct {
	name  string
	check func(rec *offer.Record) []string
}

func (r builtinRule) Name() string { return r.name }

func (r builtinRule) Check(_ context.Context, rec *offer.Record) ([]string, error) {
	return r.check(rec), nil
}

// BuiltinRules returns the structural checks every deployment runs
// regardless of operator-configured CEL rules.
func BuiltinRules() []Rule {
	return []Rule{
		builtinRule{
			name: "positive_loan_amount",
			check: func(rec *offer.Record) []string {
				if rec.LoanAmount <= 0 {
					return []string{fmt.Sprintf("loan amount must be positive, got %.2f", rec.LoanAmount)}
				}
				return nil
			},
		},
		builtinRule{
			name: "positive_tenure",
			check: func(rec *offer.Record) []string {
				if rec.TenureMonths <= 0 {
					return []string{fmt.Sprintf("tenure must be positive, got %d months", rec.TenureMonths)}
				}
				return nil
			},
		},
		builtinRule{
			name: "known_product_type",
			check: func(rec *offer.Record) []string {
				if _, ok := offer.ParseProductType(string(rec.ProductType)); !ok {
					return []string{fmt.Sprintf("unknown product type %q", rec.ProductType)}
				}
				return nil
			},
		},
		builtinRule{
			name: "offer_identity_present",
			check: func(rec *offer.Record) []string {
				var msgs []string
				if rec.OfferID == "" {
					msgs = append(msgs, "offer id is required")
				}
				if rec.IncomingRecordID == "" {
					msgs = append(msgs, "incoming record id is required")
				}
				return msgs
			},
		},
		builtinRule{
			name: "customer_key_present",
			check: func(rec *offer.Record) []string {
				if !rec.HasCustomerKey() {
					return []string{"at least one of customer id, PAN, mobile or email is required"}
				}
				return nil
			},
		},
	}
}
