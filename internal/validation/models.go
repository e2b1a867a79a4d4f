package validation

import "time"

// CELRule is an operator-defined validation rule stored in Postgres.
// The expression must be a bool predicate over one offer record; a
// false result fails the record with the configured message.
type CELRule struct {
	ID         string
	Name       string
	Expression string
	Message    string
	Priority   int
	Enabled    bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
