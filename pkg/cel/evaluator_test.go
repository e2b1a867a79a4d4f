package cel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"offermart/internal/offer"
)

func TestNewEvaluator(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)
	assert.NotNil(t, eval)
}

func TestValidateExpression(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	tests := []struct {
		name      string
		expr      string
		wantError bool
	}{
		{
			name:      "valid simple expression",
			expr:      `product_type == "TOP_UP"`,
			wantError: false,
		},
		{
			name:      "valid numeric comparison",
			expr:      `loan_amount > 100.0`,
			wantError: false,
		},
		{
			name:      "non-bool expression compiles",
			expr:      `loan_amount + 1.0`,
			wantError: false,
		},
		{
			name:      "invalid expression",
			expr:      `invalid syntax here!!!`,
			wantError: true,
		},
		{
			name:      "undefined variable",
			expr:      `undefinedVar == "test"`,
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := eval.ValidateExpression(tt.expr)
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateRuleExpression(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	tests := []struct {
		name      string
		expr      string
		wantError bool
	}{
		{
			name:      "valid predicate",
			expr:      `loan_amount > 0.0 && tenure_months > 0`,
			wantError: false,
		},
		{
			name:      "string predicate",
			expr:      `customer_id != "" || pan != ""`,
			wantError: false,
		},
		{
			name:      "non-bool result",
			expr:      `loan_amount * 2.0`,
			wantError: true,
		},
		{
			name:      "syntax error",
			expr:      `loan_amount >>> 0`,
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := eval.ValidateRuleExpression(tt.expr)
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCompileAndEvaluateRule(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	rec := offer.NewRecord("offermart", "row-1")
	rec.CustomerID = "c1"
	rec.ProductType = offer.ProductTopUp
	rec.LoanAmount = 7000
	rec.TenureMonths = 12

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{
			name: "amount cap holds",
			expr: `loan_amount <= 100000.0`,
			want: true,
		},
		{
			name: "amount cap violated",
			expr: `loan_amount <= 5000.0`,
			want: false,
		},
		{
			name: "product scoped rule",
			expr: `product_type == "TOP_UP" && tenure_months >= 6`,
			want: true,
		},
		{
			name: "identity present",
			expr: `customer_id != ""`,
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			program, err := eval.CompileRule(tt.expr)
			require.NoError(t, err)

			passed, err := eval.EvaluateRule(context.Background(), program, rec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, passed)
		})
	}
}

func TestCompileRule_RejectsNonBool(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	_, err = eval.CompileRule(`loan_amount`)
	assert.Error(t, err)
}
