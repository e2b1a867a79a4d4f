package cel

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"offermart/internal/offer"
)

// Evaluator compiles and runs CEL expressions over offer records.
// Expressions see the record's attributes as flat variables, e.g.
// `loan_amount > 0.0 && product_type == "TOP_UP"`.
type Evaluator struct {
	env *cel.Env
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("source_system", cel.StringType),
		cel.Variable("incoming_record_id", cel.StringType),
		cel.Variable("customer_id", cel.StringType),
		cel.Variable("pan", cel.StringType),
		cel.Variable("mobile", cel.StringType),
		cel.Variable("email", cel.StringType),
		cel.Variable("product_type", cel.StringType),
		cel.Variable("offer_id", cel.StringType),
		cel.Variable("loan_amount", cel.DoubleType),
		cel.Variable("tenure_months", cel.IntType),
		cel.Variable("campaign_id", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env}, nil
}

func (e *Evaluator) ValidateExpression(expression string) error {
	_, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}
	return nil
}

// ValidateRuleExpression additionally requires a bool result, since a
// validation rule is a predicate over one record.
func (e *Evaluator) ValidateRuleExpression(expression string) error {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return fmt.Errorf("rule expression must return bool, got %v", ast.OutputType())
	}

	return nil
}

// CompileRule compiles a bool-valued rule expression into a reusable
// program.
func (e *Evaluator) CompileRule(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile CEL expression: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule expression must return bool, got %v", ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return program, nil
}

// EvaluateRule runs a compiled rule against one record.
func (e *Evaluator) EvaluateRule(ctx context.Context, program cel.Program, rec *offer.Record) (bool, error) {
	result, _, err := program.ContextEval(ctx, recordToVars(rec))
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	boolVal, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return bool, got %T", result.Value())
	}

	return boolVal, nil
}

func recordToVars(rec *offer.Record) map[string]interface{} {
	return map[string]interface{}{
		"source_system":      rec.SourceSystem,
		"incoming_record_id": rec.IncomingRecordID,
		"customer_id":        rec.CustomerID,
		"pan":                rec.PAN,
		"mobile":             rec.Mobile,
		"email":              rec.Email,
		"product_type":       string(rec.ProductType),
		"offer_id":           rec.OfferID,
		"loan_amount":        rec.LoanAmount,
		"tenure_months":      rec.TenureMonths,
		"campaign_id":        rec.CampaignID,
	}
}
