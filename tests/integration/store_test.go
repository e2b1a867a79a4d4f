package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"offermart/internal/offer"
	"offermart/internal/store"
)

func TestOfferRepository_SaveAndLoad(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	ctx := context.Background()
	repo := store.NewOfferRepository(infra.PostgresDB)

	rec := createTestRecord("c1", "row-1", offer.ProductLoyalty, 7000)
	rec.ValidationErrors = []string{"tenure below product minimum"}
	require.NoError(t, repo.SaveAll(ctx, []*offer.Record{rec}))

	got, err := repo.GetByFactID(ctx, rec.FactID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.CustomerID, got.CustomerID)
	assert.Equal(t, rec.ProductType, got.ProductType)
	assert.Equal(t, rec.LoanAmount, got.LoanAmount)
	assert.Equal(t, rec.DedupeStatus, got.DedupeStatus)
	assert.Equal(t, []string{"tenure below product minimum"}, got.ValidationErrors)
	assert.True(t, got.EligibleForFinalization)
}

func TestOfferRepository_GetByFactID_NotFound(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	repo := store.NewOfferRepository(infra.PostgresDB)
	got, err := repo.GetByFactID(context.Background(), "11111111-1111-1111-1111-111111111111")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestOfferRepository_RedeliveredBatchConverges(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	ctx := context.Background()
	repo := store.NewOfferRepository(infra.PostgresDB)

	original := createTestRecord("c1", "row-1", offer.ProductLoyalty, 7000)
	require.NoError(t, repo.SaveAll(ctx, []*offer.Record{original}))

	// The same feed row arrives again under a fresh fact ID.
	redelivered := createTestRecord("c1", "row-1", offer.ProductLoyalty, 7500)
	require.NoError(t, repo.SaveAll(ctx, []*offer.Record{redelivered}))

	records, err := repo.GetByCustomer(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, records, 1, "redelivery updates the existing row instead of inserting a twin")
	assert.Equal(t, original.FactID, records[0].FactID, "the first fact id sticks")
	assert.Equal(t, 7500.0, records[0].LoanAmount)
}

func TestOfferRepository_GetByCustomer_StableOrder(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	ctx := context.Background()
	repo := store.NewOfferRepository(infra.PostgresDB)

	first := createTestRecord("c1", "row-1", offer.ProductLoyalty, 7000)
	second := createTestRecord("c1", "row-2", offer.ProductLoyalty, 7500)
	require.NoError(t, repo.SaveAll(ctx, []*offer.Record{first, second}))

	time.Sleep(timestampDelay)
	third := createTestRecord("c1", "row-3", offer.ProductTopUp, 5000)
	require.NoError(t, repo.SaveAll(ctx, []*offer.Record{third}))

	records, err := repo.GetByCustomer(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, records, 3)

	// Later batches always sort after earlier ones.
	assert.Equal(t, third.FactID, records[2].FactID)

	// Repeated loads return the identical order.
	for i := 0; i < 3; i++ {
		again, err := repo.GetByCustomer(ctx, "c1")
		require.NoError(t, err)
		require.Len(t, again, 3)
		for j := range records {
			assert.Equal(t, records[j].FactID, again[j].FactID)
		}
	}
}

func TestOfferRepository_UpdateAll_RekeysCustomer(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	ctx := context.Background()
	repo := store.NewOfferRepository(infra.PostgresDB)

	rec := createTestRecord("c1", "row-1", offer.ProductLoyalty, 7000)
	require.NoError(t, repo.SaveAll(ctx, []*offer.Record{rec}))

	rec.CustomerID = "c2"
	rec.MarkDuplicate("winner-fact", offer.ReasonCrossProductDuplicate)
	rec.RecomputeEligibility()
	require.NoError(t, repo.UpdateAll(ctx, []*offer.Record{rec}))

	old, err := repo.GetByCustomer(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, old)

	moved, err := repo.GetByCustomer(ctx, "c2")
	require.NoError(t, err)
	require.Len(t, moved, 1)
	assert.Equal(t, offer.DedupDuplicate, moved[0].DedupeStatus)
	assert.Equal(t, offer.ReasonCrossProductDuplicate, moved[0].DedupeReason)
	assert.False(t, moved[0].EligibleForFinalization)
}
