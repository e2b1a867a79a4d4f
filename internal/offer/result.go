package offer

// ValidationResult is the outcome of one rule against one record.
type ValidationResult struct {
	RuleName      string   `json:"rule_name"`
	Success       bool     `json:"success"`
	ErrorMessages []string `json:"error_messages,omitempty"`
}

// OverallResult aggregates the per-rule results for one record.
type OverallResult struct {
	Results        []ValidationResult `json:"results"`
	OverallSuccess bool               `json:"overall_success"`
}

// NewOverallResult folds per-rule results into an aggregate. An empty
// rule set yields success: a record with nothing to check is valid by
// policy, not by accident.
func NewOverallResult(results []ValidationResult) OverallResult {
	overall := OverallResult{
		Results:        results,
		OverallSuccess: true,
	}
	for _, res := range results {
		if !res.Success {
			overall.OverallSuccess = false
			break
		}
	}
	return overall
}

// FailureMessages flattens the error messages of all failed rules,
// preserving rule order.
func (o OverallResult) FailureMessages() []string {
	var msgs []string
	for _, res := range o.Results {
		if !res.Success {
			msgs = append(msgs, res.ErrorMessages...)
		}
	}
	return msgs
}

// FailedRules lists the names of rules that did not pass.
func (o OverallResult) FailedRules() []string {
	var names []string
	for _, res := range o.Results {
		if !res.Success {
			names = append(names, res.RuleName)
		}
	}
	return names
}
