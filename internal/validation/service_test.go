package validation

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"offermart/internal/config"
	"offermart/internal/logger"
	"offermart/internal/offer"
)

type fakeRuleRepo struct {
	rules []CELRule
	err   error
}

func (r *fakeRuleRepo) GetActiveRules(_ context.Context) ([]CELRule, error) {
	return r.rules, r.err
}

type stubRule struct {
	name  string
	check func(ctx context.Context, rec *offer.Record) ([]string, error)
}

func (r stubRule) Name() string { return r.name }

func (r stubRule) Check(ctx context.Context, rec *offer.Record) ([]string, error) {
	return r.check(ctx, rec)
}

func newTestService(t *testing.T, repo Repository) *Service {
	t.Helper()
	svc, err := NewService(repo, config.ValidationConfig{}, logger.NopLogger())
	require.NoError(t, err)
	return svc
}

func validRecord() *offer.Record {
	rec := offer.NewRecord("offermart", "row-1")
	rec.CustomerID = "c1"
	rec.ProductType = offer.ProductLoyalty
	rec.OfferID = "o1"
	rec.LoanAmount = 7000
	rec.TenureMonths = 12
	return rec
}

func TestApplyRules_ValidRecord(t *testing.T) {
	svc := newTestService(t, &fakeRuleRepo{})
	rec := validRecord()

	overall := svc.ApplyRules(context.Background(), rec)

	assert.True(t, overall.OverallSuccess)
	assert.True(t, rec.Validated)
	assert.Empty(t, rec.ValidationErrors)
}

func TestApplyRules_FailuresAccumulateAcrossRules(t *testing.T) {
	svc := newTestService(t, &fakeRuleRepo{})

	rec := offer.NewRecord("offermart", "row-1")
	rec.ProductType = "UNKNOWN"
	rec.LoanAmount = -5
	rec.TenureMonths = 0

	overall := svc.ApplyRules(context.Background(), rec)

	assert.False(t, overall.OverallSuccess)
	assert.False(t, rec.Validated)
	// Every independent rule reported, none short-circuited the rest.
	assert.Contains(t, overall.FailedRules(), "positive_loan_amount")
	assert.Contains(t, overall.FailedRules(), "positive_tenure")
	assert.Contains(t, overall.FailedRules(), "known_product_type")
	assert.Contains(t, overall.FailedRules(), "offer_identity_present")
	assert.Contains(t, overall.FailedRules(), "customer_key_present")
	assert.NotEmpty(t, rec.ValidationErrors)
}

func TestApplyRules_PanickingRuleIsIsolated(t *testing.T) {
	svc := newTestService(t, &fakeRuleRepo{})
	svc.celRules = []Rule{
		stubRule{name: "boom", check: func(context.Context, *offer.Record) ([]string, error) {
			panic("rule blew up")
		}},
	}

	rec := validRecord()
	overall := svc.ApplyRules(context.Background(), rec)

	assert.False(t, overall.OverallSuccess)
	assert.Equal(t, []string{"boom"}, overall.FailedRules())

	// The other rules still produced their results.
	assert.Len(t, overall.Results, len(BuiltinRules())+1)
	for _, res := range overall.Results {
		if res.RuleName == "boom" {
			require.Len(t, res.ErrorMessages, 1)
			assert.Contains(t, res.ErrorMessages[0], "internal error")
		} else {
			assert.True(t, res.Success)
		}
	}
}

func TestApplyRules_ErroringRuleIsIsolated(t *testing.T) {
	svc := newTestService(t, &fakeRuleRepo{})
	svc.celRules = []Rule{
		stubRule{name: "broken", check: func(context.Context, *offer.Record) ([]string, error) {
			return nil, fmt.Errorf("downstream unavailable")
		}},
		stubRule{name: "after_broken", check: func(context.Context, *offer.Record) ([]string, error) {
			return nil, nil
		}},
	}

	rec := validRecord()
	overall := svc.ApplyRules(context.Background(), rec)

	assert.False(t, overall.OverallSuccess)
	assert.Equal(t, []string{"broken"}, overall.FailedRules())
}

func TestApplyRulesBatch(t *testing.T) {
	svc := newTestService(t, &fakeRuleRepo{})

	a := validRecord()
	b := offer.NewRecord("offermart", "row-2")
	b.LoanAmount = -1

	results := svc.ApplyRulesBatch(context.Background(), []*offer.Record{a, nil, b, a})

	require.Len(t, results, 2, "nil and duplicate entries collapse")
	assert.True(t, results[a].OverallSuccess)
	assert.False(t, results[b].OverallSuccess)
}

func TestApplyRulesBatch_Empty(t *testing.T) {
	svc := newTestService(t, &fakeRuleRepo{})
	results := svc.ApplyRulesBatch(context.Background(), nil)
	assert.Empty(t, results)
}

func TestReloadRules_CompilesAndApplies(t *testing.T) {
	repo := &fakeRuleRepo{rules: []CELRule{
		{ID: "1", Name: "max_loan", Expression: "loan_amount <= 100000.0", Message: "loan amount exceeds cap"},
	}}
	svc := newTestService(t, repo)
	require.NoError(t, svc.ReloadRules(context.Background()))

	rec := validRecord()
	rec.LoanAmount = 500000
	overall := svc.ApplyRules(context.Background(), rec)

	assert.False(t, overall.OverallSuccess)
	assert.Contains(t, rec.ValidationErrors, "loan amount exceeds cap")
}

func TestReloadRules_SkipsUncompilableRules(t *testing.T) {
	repo := &fakeRuleRepo{rules: []CELRule{
		{ID: "1", Name: "good", Expression: "loan_amount > 0.0"},
		{ID: "2", Name: "bad_syntax", Expression: "loan_amount >>> ???"},
		{ID: "3", Name: "not_bool", Expression: "loan_amount + 1.0"},
	}}
	svc := newTestService(t, repo)
	require.NoError(t, svc.ReloadRules(context.Background()))

	names := make([]string, 0)
	for _, info := range svc.LoadedRules() {
		if info.Kind == "cel" {
			names = append(names, info.Name)
		}
	}
	assert.Equal(t, []string{"good"}, names)
}

func TestReloadRules_RepositoryError(t *testing.T) {
	repo := &fakeRuleRepo{err: fmt.Errorf("connection refused")}
	svc := newTestService(t, repo)
	assert.Error(t, svc.ReloadRules(context.Background()))
}

func TestReloadRules_SatisfiesConfigReloader(t *testing.T) {
	svc := newTestService(t, &fakeRuleRepo{})
	handler := NewHandler(svc, logger.NopLogger())
	assert.NotNil(t, handler)
}
