package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithDetail_DoesNotMutateCatalogEntry(t *testing.T) {
	first := ErrMalformedEvent.WithDetail("message", "payload is missing 'rows'")
	assert.Empty(t, ErrMalformedEvent.Details, "catalog sentinels must stay pristine")

	second := ErrMalformedEvent.WithDetail("message", "rows is not a list")
	assert.Equal(t, "payload is missing 'rows'", first.Details["message"])
	assert.Equal(t, "rows is not a list", second.Details["message"])
}

func TestWithDetail_CopiesExistingDetails(t *testing.T) {
	base := ErrValidation.WithDetail("field", "loan_amount")
	derived := base.WithDetail("message", "must be positive")

	assert.Equal(t, "loan_amount", derived.Details["field"])
	_, ok := base.Details["message"]
	assert.False(t, ok, "deriving must not write through to the parent")
}

func TestIsPermanent(t *testing.T) {
	assert.True(t, IsPermanent(ErrMalformedEvent.AsFatal()))
	assert.True(t, IsPermanent(ErrMalformedEvent.WithCause(fmt.Errorf("bad payload"))))
	assert.False(t, IsPermanent(ErrInternal.WithCause(fmt.Errorf("connection reset"))))
	assert.False(t, IsPermanent(fmt.Errorf("plain error")))
}

func TestErrorMessagePrefersDetail(t *testing.T) {
	err := ErrMalformedEvent.WithDetail("message", "payload is missing 'rows'")
	require.Contains(t, err.Error(), "payload is missing 'rows'")
	require.Contains(t, err.Error(), "MALFORMED_EVENT")
}
