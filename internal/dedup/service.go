package dedup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"offermart/internal/config"
	"offermart/internal/constants"
	"offermart/internal/logger"
	"offermart/internal/offer"
	"offermart/pkg/metrics"
	"offermart/pkg/tracing"
)

const (
	scopeCrossProduct = "cross_product"
	scopeTopUp        = "topup"
)

// Service implements the deduplication rule set. One Evaluate call is
// one evaluation session: records are grouped into comparison scopes,
// one winner per scope is retained as NEW and the rest are marked
// DUPLICATE with a scope-specific reason.
//
// Two scopes exist. Non-Top-up records group by (customer, product
// type). Top-up records group only with other Top-up records for the
// same customer; the two scopes never influence each other.
type Service struct {
	cfg    config.DedupConfig
	logger logger.Logger

	policyMu sync.RWMutex
	tieBreak string
}

func NewService(cfg config.DedupConfig, log logger.Logger) *Service {
	tieBreak := cfg.TieBreak
	if tieBreak == "" {
		tieBreak = constants.TieBreakFirstWins
	}

	return &Service{
		cfg:      cfg,
		logger:   log,
		tieBreak: tieBreak,
	}
}

// Evaluate runs one deduplication session over the given records,
// mutating their dedupe status in place. Validation outcome does not
// matter here: invalid records still claim their slot in the scope.
// Records already in an absorbing state (MATCHED_LIVEBOOK, REMOVED)
// are left untouched and do not compete.
func (s *Service) Evaluate(ctx context.Context, records []*offer.Record) {
	_, span := tracing.GetTracer("offer-engine").Start(ctx, "dedup.evaluate")
	defer span.End()

	start := time.Now()

	groups := make(map[string][]*offer.Record)
	order := make([]string, 0)

	for _, rec := range records {
		if rec == nil || rec.DedupeStatus.Absorbing() {
			continue
		}

		// No customer key means no comparison scope: the record
		// stands alone and is retained.
		if rec.CustomerID == "" {
			rec.MarkNew()
			metrics.DedupRecordsTotal.WithLabelValues(string(offer.DedupNew), scopeLabel(rec)).Inc()
			continue
		}

		key := groupKey(rec)
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], rec)
	}

	policy := s.TieBreak()
	for _, key := range order {
		s.resolveGroup(groups[key], policy)
	}

	metrics.ObserveDedupSessionDuration(time.Since(start))
}

// resolveGroup retains one winner and marks the rest duplicates. The
// slice preserves session insertion order, which is the final
// tie-break for every policy.
func (s *Service) resolveGroup(group []*offer.Record, policy string) {
	winner := group[0]
	if policy == constants.TieBreakHighestAmount {
		for _, rec := range group[1:] {
			if rec.LoanAmount > winner.LoanAmount {
				winner = rec
			}
		}
	}

	reason := offer.ReasonCrossProductDuplicate
	scope := scopeCrossProduct
	if winner.ProductType == offer.ProductTopUp {
		reason = offer.ReasonTopUpDuplicate
		scope = scopeTopUp
	}

	winner.MarkNew()
	metrics.DedupRecordsTotal.WithLabelValues(string(offer.DedupNew), scope).Inc()

	for _, rec := range group {
		if rec == winner {
			continue
		}
		rec.MarkDuplicate(winner.FactID, reason)
		metrics.DedupRecordsTotal.WithLabelValues(string(offer.DedupDuplicate), scope).Inc()
	}
}

// groupKey builds the comparison-scope key. Top-up offers form their
// own scope per customer regardless of other products.
func groupKey(rec *offer.Record) string {
	if rec.ProductType == offer.ProductTopUp {
		return scopeTopUp + "|" + rec.CustomerID
	}
	return string(rec.ProductType) + "|" + rec.CustomerID
}

func scopeLabel(rec *offer.Record) string {
	if rec.ProductType == offer.ProductTopUp {
		return scopeTopUp
	}
	return scopeCrossProduct
}

// TieBreak returns the active tie-break policy.
func (s *Service) TieBreak() string {
	s.policyMu.RLock()
	defer s.policyMu.RUnlock()
	return s.tieBreak
}

// UpdateTieBreak swaps the tie-break policy at runtime. Only affects
// sessions started after the call.
func (s *Service) UpdateTieBreak(policy string) error {
	if policy != constants.TieBreakFirstWins && policy != constants.TieBreakHighestAmount {
		return fmt.Errorf("unknown tie-break policy %q", policy)
	}

	s.policyMu.Lock()
	s.tieBreak = policy
	s.policyMu.Unlock()

	s.logger.Infow("Updated dedup tie-break policy", "tie_break", policy)
	return nil
}
