package offer

import (
	"strings"

	"github.com/google/uuid"
)

// ProductType enumerates the consumer-loan product families carried by
// the Offermart feed. Top-up offers form their own deduplication scope.
type ProductType string

const (
	ProductLoyalty     ProductType = "LOYALTY"
	ProductPreapproved ProductType = "PREAPPROVED"
	ProductEAggregator ProductType = "E_AGGREGATOR"
	ProductTopUp       ProductType = "TOP_UP"
)

// ParseProductType normalizes feed spellings ("Top-up", "e-aggregator")
// into the canonical enum. The bool reports whether the value is known.
func ParseProductType(s string) (ProductType, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(s))
	normalized = strings.NewReplacer("-", "_", " ", "_").Replace(normalized)

	switch ProductType(normalized) {
	case ProductLoyalty:
		return ProductLoyalty, true
	case ProductPreapproved:
		return ProductPreapproved, true
	case ProductEAggregator, "EAGGREGATOR":
		return ProductEAggregator, true
	case ProductTopUp, "TOPUP":
		return ProductTopUp, true
	default:
		return ProductType(normalized), false
	}
}

type DedupStatus string

const (
	DedupPending         DedupStatus = "PENDING"
	DedupNew             DedupStatus = "NEW"
	DedupDuplicate       DedupStatus = "DUPLICATE"
	DedupMatchedLiveBook DedupStatus = "MATCHED_LIVEBOOK"
	DedupRemoved         DedupStatus = "REMOVED"
)

// Absorbing reports whether the status is terminal for finalization
// purposes: once a record is matched against the live book or removed,
// no later evaluation may bring it back to eligibility.
func (s DedupStatus) Absorbing() bool {
	return s == DedupMatchedLiveBook || s == DedupRemoved
}

// Dedupe reasons attached to losing records.
const (
	ReasonCrossProductDuplicate = "cross-product duplicate"
	ReasonTopUpDuplicate        = "Top-up loan offer duplicate"
	ReasonMatchedLiveBook       = "matched existing live-book customer"
	ReasonRemovedByLiveBook     = "removed by live-book reconciliation"
)

// Record is one offer row under evaluation. It is mutated in place by
// the validation rule set, then the dedup rule set, then the live-book
// reconciliation handler.
type Record struct {
	FactID           string      `json:"fact_id"`
	SourceSystem     string      `json:"source_system"`
	IncomingRecordID string      `json:"incoming_record_id"`
	CustomerID       string      `json:"customer_id,omitempty"`
	PAN              string      `json:"pan,omitempty"`
	Mobile           string      `json:"mobile,omitempty"`
	Email            string      `json:"email,omitempty"`
	ProductType      ProductType `json:"product_type"`
	OfferID          string      `json:"offer_id"`
	LoanAmount       float64     `json:"loan_amount"`
	TenureMonths     int         `json:"tenure_months"`
	CampaignID       string      `json:"campaign_id,omitempty"`

	Validated               bool        `json:"validated"`
	ValidationErrors        []string    `json:"validation_errors,omitempty"`
	DedupeStatus            DedupStatus `json:"dedupe_status"`
	DedupeMatchID           string      `json:"dedupe_match_id,omitempty"`
	DedupeReason            string      `json:"dedupe_reason,omitempty"`
	EligibleForFinalization bool        `json:"eligible_for_finalization"`
}

// NewRecord assigns a fact ID and the initial PENDING state.
func NewRecord(sourceSystem, incomingRecordID string) *Record {
	return &Record{
		FactID:           uuid.NewString(),
		SourceSystem:     sourceSystem,
		IncomingRecordID: incomingRecordID,
		DedupeStatus:     DedupPending,
	}
}

// Same reports identity equality: fact IDs when both carry one,
// otherwise the (incoming record ID, source system) natural key.
func (r *Record) Same(other *Record) bool {
	if other == nil {
		return false
	}
	if r.FactID != "" && other.FactID != "" {
		return r.FactID == other.FactID
	}
	return r.IncomingRecordID == other.IncomingRecordID && r.SourceSystem == other.SourceSystem
}

// MarkDuplicate marks the record a dedup loser within its scope.
func (r *Record) MarkDuplicate(winnerFactID, reason string) {
	r.DedupeStatus = DedupDuplicate
	r.DedupeMatchID = winnerFactID
	r.DedupeReason = reason
}

// MarkNew marks the record the retained winner of its scope.
func (r *Record) MarkNew() {
	r.DedupeStatus = DedupNew
	r.DedupeMatchID = ""
	r.DedupeReason = ""
}

// MarkMatchedLiveBook folds a live-book MATCHED outcome into the
// record. Absorbing for finalization.
func (r *Record) MarkMatchedLiveBook(matchID string) {
	r.DedupeStatus = DedupMatchedLiveBook
	r.DedupeMatchID = matchID
	r.DedupeReason = ReasonMatchedLiveBook
}

// MarkRemoved folds a live-book REMOVED outcome into the record.
func (r *Record) MarkRemoved() {
	r.DedupeStatus = DedupRemoved
	r.DedupeMatchID = ""
	r.DedupeReason = ReasonRemovedByLiveBook
}

// ResetDedup returns the record to PENDING ahead of a re-evaluation.
// Records in an absorbing state are left untouched.
func (r *Record) ResetDedup() {
	if r.DedupeStatus.Absorbing() {
		return
	}
	r.DedupeStatus = DedupPending
	r.DedupeMatchID = ""
	r.DedupeReason = ""
	r.EligibleForFinalization = false
}

// RecomputeEligibility derives the finalization flag from current
// state. Called after rule evaluation and again whenever a late
// reconciliation event mutates the record.
func (r *Record) RecomputeEligibility() bool {
	r.EligibleForFinalization = r.Validated && r.DedupeStatus == DedupNew
	return r.EligibleForFinalization
}

// HasCustomerKey reports whether any matching key is present.
func (r *Record) HasCustomerKey() bool {
	return r.CustomerID != "" || r.PAN != "" || r.Mobile != "" || r.Email != ""
}
