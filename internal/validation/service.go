package validation

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	celgo "github.com/google/cel-go/cel"

	"offermart/internal/config"
	"offermart/internal/logger"
	"offermart/internal/offer"
	"offermart/pkg/cel"
	"offermart/pkg/metrics"
	"offermart/pkg/tracing"
)

// Service runs the validation rule set: builtin structural checks
// followed by operator-defined CEL rules loaded from the database.
// Rule failures are isolated per rule; a broken rule never aborts the
// batch.
type Service struct {
	repo      Repository
	evaluator *cel.Evaluator
	cfg       config.ValidationConfig
	logger    logger.Logger

	rulesMu  sync.RWMutex
	builtins []Rule
	celRules []Rule
}

func NewService(repo Repository, cfg config.ValidationConfig, log logger.Logger) (*Service, error) {
	evaluator, err := cel.NewEvaluator()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL evaluator: %w", err)
	}

	return &Service{
		repo:      repo,
		evaluator: evaluator,
		cfg:       cfg,
		logger:    log,
		builtins:  BuiltinRules(),
		celRules:  make([]Rule, 0),
	}, nil
}

// ApplyRules evaluates every active rule against the record, mutating
// its validated flag and accumulated error messages. An empty rule set
// validates the record by policy.
func (s *Service) ApplyRules(ctx context.Context, rec *offer.Record) offer.OverallResult {
	ctx, span := tracing.GetTracer("offer-engine").Start(ctx, "validation.apply_rules")
	defer span.End()

	rules := s.activeRules()
	start := time.Now()

	results := make([]offer.ValidationResult, 0, len(rules))
	for _, rule := range rules {
		results = append(results, s.applyRule(ctx, rule, rec))
	}

	overall := offer.NewOverallResult(results)
	rec.Validated = overall.OverallSuccess
	rec.ValidationErrors = overall.FailureMessages()

	status := "valid"
	if !overall.OverallSuccess {
		status = "invalid"
	}
	metrics.ValidationRecordsTotal.WithLabelValues(status).Inc()
	metrics.ObserveValidationDuration(time.Since(start), status)

	return overall
}

// ApplyRulesBatch evaluates the rule set over a whole batch, one
// result per distinct record. Duplicate entries in the input collapse
// onto the same result; an empty batch yields an empty map.
func (s *Service) ApplyRulesBatch(ctx context.Context, recs []*offer.Record) map[*offer.Record]offer.OverallResult {
	results := make(map[*offer.Record]offer.OverallResult, len(recs))
	for _, rec := range recs {
		if rec == nil {
			continue
		}
		if _, done := results[rec]; done {
			continue
		}
		results[rec] = s.ApplyRules(ctx, rec)
	}
	return results
}

// applyRule runs one rule in isolation. Panics and execution errors
// become a synthetic failed result so the remaining rules still run.
func (s *Service) applyRule(ctx context.Context, rule Rule, rec *offer.Record) (result offer.ValidationResult) {
	result = offer.ValidationResult{RuleName: rule.Name(), Success: true}

	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorwCtx(ctx, "Rule execution panicked",
				"rule", rule.Name(),
				"fact_id", rec.FactID,
				"panic", r,
			)
			result.Success = false
			result.ErrorMessages = []string{fmt.Sprintf("internal error: %v", r)}
			metrics.ValidationRuleFailuresTotal.WithLabelValues(rule.Name(), "error").Inc()
		}
	}()

	msgs, err := rule.Check(ctx, rec)
	if err != nil {
		s.logger.ErrorwCtx(ctx, "Rule execution error",
			"rule", rule.Name(),
			"fact_id", rec.FactID,
			"error", err,
		)
		result.Success = false
		result.ErrorMessages = []string{fmt.Sprintf("internal error: %v", err)}
		metrics.ValidationRuleFailuresTotal.WithLabelValues(rule.Name(), "error").Inc()
		return result
	}

	if len(msgs) > 0 {
		result.Success = false
		result.ErrorMessages = msgs
		metrics.ValidationRuleFailuresTotal.WithLabelValues(rule.Name(), "failed").Inc()
	}

	return result
}

func (s *Service) activeRules() []Rule {
	s.rulesMu.RLock()
	defer s.rulesMu.RUnlock()

	rules := make([]Rule, 0, len(s.builtins)+len(s.celRules))
	rules = append(rules, s.builtins...)
	rules = append(rules, s.celRules...)
	return rules
}

// celRule adapts a compiled CEL predicate to the Rule interface.
type celRule struct {
	spec      CELRule
	program   celgo.Program
	evaluator *cel.Evaluator
}

func (r celRule) Name() string { return r.spec.Name }

func (r celRule) Check(ctx context.Context, rec *offer.Record) ([]string, error) {
	passed, err := r.evaluator.EvaluateRule(ctx, r.program, rec)
	if err != nil {
		return nil, err
	}
	if passed {
		return nil, nil
	}

	msg := r.spec.Message
	if msg == "" {
		msg = fmt.Sprintf("rule %s failed", r.spec.Name)
	}
	return []string{msg}, nil
}

// ReloadRules replaces the CEL rule list from the database. Rules that
// no longer compile are skipped with an error log rather than failing
// the whole reload.
func (s *Service) ReloadRules(ctx context.Context) error {
	specs, err := s.repo.GetActiveRules(ctx)
	if err != nil {
		return fmt.Errorf("failed to load validation rules: %w", err)
	}

	compiled := make([]Rule, 0, len(specs))
	for _, spec := range specs {
		program, err := s.evaluator.CompileRule(spec.Expression)
		if err != nil {
			s.logger.ErrorwCtx(ctx, "Skipping rule with invalid expression",
				"rule_id", spec.ID,
				"rule_name", spec.Name,
				"error", err,
			)
			continue
		}
		compiled = append(compiled, celRule{spec: spec, program: program, evaluator: s.evaluator})
	}

	s.rulesMu.Lock()
	s.celRules = compiled
	total := len(s.builtins) + len(s.celRules)
	s.rulesMu.Unlock()

	metrics.SetValidationActiveRules(total)
	s.logger.InfowCtx(ctx, "Successfully reloaded validation rules",
		"cel_rules", len(compiled),
		"builtin_rules", len(s.builtins),
	)
	return nil
}

// StartReloader reloads CEL rules on the configured interval until the
// context is cancelled.
func (s *Service) StartReloader(ctx context.Context) error {
	interval := time.Duration(s.cfg.Reload.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 60 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := s.ReloadRules(ctx); err != nil {
		s.logger.ErrorwCtx(ctx, "Failed to reload validation rules",
			"error", err,
		)
	}

	for {
		select {
		case <-ticker.C:
			if err := s.applyJitter(ctx); err != nil {
				return err
			}
			if err := s.ReloadRules(ctx); err != nil {
				s.logger.ErrorwCtx(ctx, "Failed to reload validation rules",
					"error", err,
				)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// applyJitter spreads concurrent reloads across replicas.
func (s *Service) applyJitter(ctx context.Context) error {
	if s.cfg.Reload.JitterMaxMilliseconds == 0 {
		return nil
	}

	jitter := time.Duration(rand.Intn(s.cfg.Reload.JitterMaxMilliseconds)) * time.Millisecond
	select {
	case <-time.After(jitter):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RuleInfo describes one loaded rule for introspection.
type RuleInfo struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"` // "builtin" or "cel"
	Expression string `json:"expression,omitempty"`
	Priority   int    `json:"priority,omitempty"`
}

// LoadedRules lists the currently active rules in evaluation order.
func (s *Service) LoadedRules() []RuleInfo {
	s.rulesMu.RLock()
	defer s.rulesMu.RUnlock()

	infos := make([]RuleInfo, 0, len(s.builtins)+len(s.celRules))
	for _, rule := range s.builtins {
		infos = append(infos, RuleInfo{Name: rule.Name(), Kind: "builtin"})
	}
	for _, rule := range s.celRules {
		if cr, ok := rule.(celRule); ok {
			infos = append(infos, RuleInfo{
				Name:       cr.spec.Name,
				Kind:       "cel",
				Expression: cr.spec.Expression,
				Priority:   cr.spec.Priority,
			})
		}
	}
	return infos
}
