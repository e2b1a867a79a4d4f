package dedup

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"offermart/internal/config"
	"offermart/internal/constants"
	"offermart/internal/logger"
	"offermart/internal/offer"
)

func newTestDedup(tieBreak string) *Service {
	return NewService(config.DedupConfig{TieBreak: tieBreak}, logger.NopLogger())
}

func record(customerID string, product offer.ProductType, amount float64) *offer.Record {
	rec := offer.NewRecord("offermart", "row-"+customerID+"-"+string(product))
	rec.CustomerID = customerID
	rec.ProductType = product
	rec.LoanAmount = amount
	rec.Validated = true
	return rec
}

func statuses(records []*offer.Record) map[offer.DedupStatus]int {
	counts := make(map[offer.DedupStatus]int)
	for _, rec := range records {
		counts[rec.DedupeStatus]++
	}
	return counts
}

func TestEvaluate_CrossProductScope(t *testing.T) {
	svc := newTestDedup(constants.TieBreakFirstWins)

	first := record("c1", offer.ProductLoyalty, 7000)
	second := record("c1", offer.ProductLoyalty, 7500)
	third := record("c1", offer.ProductLoyalty, 8000)

	svc.Evaluate(context.Background(), []*offer.Record{first, second, third})

	assert.Equal(t, offer.DedupNew, first.DedupeStatus)
	assert.Equal(t, offer.DedupDuplicate, second.DedupeStatus)
	assert.Equal(t, offer.DedupDuplicate, third.DedupeStatus)

	assert.Equal(t, offer.ReasonCrossProductDuplicate, second.DedupeReason)
	assert.Equal(t, first.FactID, second.DedupeMatchID)
	assert.Equal(t, first.FactID, third.DedupeMatchID)
}

func TestEvaluate_TopUpScopeReason(t *testing.T) {
	svc := newTestDedup(constants.TieBreakFirstWins)

	first := record("c1", offer.ProductTopUp, 5000)
	second := record("c1", offer.ProductTopUp, 6000)

	svc.Evaluate(context.Background(), []*offer.Record{first, second})

	assert.Equal(t, offer.DedupNew, first.DedupeStatus)
	assert.Equal(t, offer.DedupDuplicate, second.DedupeStatus)
	assert.Equal(t, offer.ReasonTopUpDuplicate, second.DedupeReason)
}

func TestEvaluate_CrossScopeIndependence(t *testing.T) {
	svc := newTestDedup(constants.TieBreakFirstWins)

	topup := record("c1", offer.ProductTopUp, 5000)
	loyalty := record("c1", offer.ProductLoyalty, 7000)

	svc.Evaluate(context.Background(), []*offer.Record{topup, loyalty})

	// A Top-up and a Loyalty offer for the same customer never affect
	// each other.
	assert.Equal(t, offer.DedupNew, topup.DedupeStatus)
	assert.Equal(t, offer.DedupNew, loyalty.DedupeStatus)
}

func TestEvaluate_DifferentProductsDifferentScopes(t *testing.T) {
	svc := newTestDedup(constants.TieBreakFirstWins)

	loyalty1 := record("c1", offer.ProductLoyalty, 7000)
	loyalty2 := record("c1", offer.ProductLoyalty, 7500)
	loyalty3 := record("c1", offer.ProductLoyalty, 8000)
	preapproved := record("c1", offer.ProductPreapproved, 9000)

	svc.Evaluate(context.Background(), []*offer.Record{loyalty1, loyalty2, loyalty3, preapproved})

	counts := statuses([]*offer.Record{loyalty1, loyalty2, loyalty3})
	assert.Equal(t, 1, counts[offer.DedupNew])
	assert.Equal(t, 2, counts[offer.DedupDuplicate])
	assert.Equal(t, offer.DedupNew, preapproved.DedupeStatus)
}

func TestEvaluate_ExactlyOneWinnerPerScope(t *testing.T) {
	svc := newTestDedup(constants.TieBreakFirstWins)

	for n := 2; n <= 6; n++ {
		records := make([]*offer.Record, 0, n)
		for i := 0; i < n; i++ {
			records = append(records, record("c1", offer.ProductTopUp, float64(1000*(i+1))))
		}

		svc.Evaluate(context.Background(), records)

		counts := statuses(records)
		assert.Equal(t, 1, counts[offer.DedupNew], "n=%d", n)
		assert.Equal(t, n-1, counts[offer.DedupDuplicate], "n=%d", n)
		for _, rec := range records {
			if rec.DedupeStatus == offer.DedupDuplicate {
				assert.Equal(t, offer.ReasonTopUpDuplicate, rec.DedupeReason)
			}
		}
	}
}

func TestEvaluate_DifferentCustomersNeverGroup(t *testing.T) {
	svc := newTestDedup(constants.TieBreakFirstWins)

	a := record("c1", offer.ProductLoyalty, 7000)
	b := record("c2", offer.ProductLoyalty, 7000)

	svc.Evaluate(context.Background(), []*offer.Record{a, b})

	assert.Equal(t, offer.DedupNew, a.DedupeStatus)
	assert.Equal(t, offer.DedupNew, b.DedupeStatus)
}

func TestEvaluate_MissingCustomerStandsAlone(t *testing.T) {
	svc := newTestDedup(constants.TieBreakFirstWins)

	a := record("", offer.ProductLoyalty, 7000)
	b := record("", offer.ProductLoyalty, 7000)

	svc.Evaluate(context.Background(), []*offer.Record{a, b})

	assert.Equal(t, offer.DedupNew, a.DedupeStatus)
	assert.Equal(t, offer.DedupNew, b.DedupeStatus)
}

func TestEvaluate_InvalidRecordsStillCompete(t *testing.T) {
	svc := newTestDedup(constants.TieBreakFirstWins)

	invalid := record("c1", offer.ProductLoyalty, -1)
	invalid.Validated = false
	valid := record("c1", offer.ProductLoyalty, 7000)

	svc.Evaluate(context.Background(), []*offer.Record{invalid, valid})

	// The invalid record still claims the scope slot.
	assert.Equal(t, offer.DedupNew, invalid.DedupeStatus)
	assert.Equal(t, offer.DedupDuplicate, valid.DedupeStatus)

	invalid.RecomputeEligibility()
	assert.False(t, invalid.EligibleForFinalization, "winning the scope does not make an invalid record eligible")
}

func TestEvaluate_AbsorbingRecordsUntouched(t *testing.T) {
	svc := newTestDedup(constants.TieBreakFirstWins)

	matched := record("c1", offer.ProductLoyalty, 7000)
	matched.MarkMatchedLiveBook("cust-live")
	fresh := record("c1", offer.ProductLoyalty, 7500)

	svc.Evaluate(context.Background(), []*offer.Record{matched, fresh})

	assert.Equal(t, offer.DedupMatchedLiveBook, matched.DedupeStatus)
	assert.Equal(t, offer.DedupNew, fresh.DedupeStatus)
}

func TestEvaluate_HighestAmountTieBreak(t *testing.T) {
	svc := newTestDedup(constants.TieBreakHighestAmount)

	low := record("c1", offer.ProductLoyalty, 7000)
	high := record("c1", offer.ProductLoyalty, 8000)
	mid := record("c1", offer.ProductLoyalty, 7500)

	svc.Evaluate(context.Background(), []*offer.Record{low, high, mid})

	assert.Equal(t, offer.DedupNew, high.DedupeStatus)
	assert.Equal(t, offer.DedupDuplicate, low.DedupeStatus)
	assert.Equal(t, offer.DedupDuplicate, mid.DedupeStatus)
	assert.Equal(t, high.FactID, low.DedupeMatchID)
}

func TestEvaluate_HighestAmountTiesFallBackToInsertionOrder(t *testing.T) {
	svc := newTestDedup(constants.TieBreakHighestAmount)

	first := record("c1", offer.ProductLoyalty, 8000)
	second := record("c1", offer.ProductLoyalty, 8000)

	svc.Evaluate(context.Background(), []*offer.Record{first, second})

	assert.Equal(t, offer.DedupNew, first.DedupeStatus)
	assert.Equal(t, offer.DedupDuplicate, second.DedupeStatus)
}

func TestEvaluate_Deterministic(t *testing.T) {
	svc := newTestDedup(constants.TieBreakFirstWins)

	for run := 0; run < 5; run++ {
		records := []*offer.Record{
			record("c1", offer.ProductLoyalty, 7000),
			record("c1", offer.ProductLoyalty, 7500),
			record("c2", offer.ProductTopUp, 5000),
			record("c2", offer.ProductTopUp, 6000),
		}

		svc.Evaluate(context.Background(), records)

		assert.Equal(t, offer.DedupNew, records[0].DedupeStatus, "run %d", run)
		assert.Equal(t, offer.DedupDuplicate, records[1].DedupeStatus, "run %d", run)
		assert.Equal(t, offer.DedupNew, records[2].DedupeStatus, "run %d", run)
		assert.Equal(t, offer.DedupDuplicate, records[3].DedupeStatus, "run %d", run)
	}
}

func TestUpdateTieBreak(t *testing.T) {
	svc := newTestDedup(constants.TieBreakFirstWins)

	require.NoError(t, svc.UpdateTieBreak(constants.TieBreakHighestAmount))
	assert.Equal(t, constants.TieBreakHighestAmount, svc.TieBreak())

	assert.Error(t, svc.UpdateTieBreak("lowest_amount"))
	assert.Equal(t, constants.TieBreakHighestAmount, svc.TieBreak())
}

func TestNewService_DefaultsToFirstWins(t *testing.T) {
	svc := newTestDedup("")
	assert.Equal(t, constants.TieBreakFirstWins, svc.TieBreak())
}
