package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusMapsKnownKinds(t *testing.T) {
	assert.Equal(t, 400, HTTPStatus(New(KindValidation, CodeInvalidFormat, "bad input")))
	assert.Equal(t, 404, HTTPStatus(New(KindCache, CodeNotFound, "missing")))
	assert.Equal(t, 500, HTTPStatus(New(KindCache, CodeBackendError, "boom")))
	assert.Equal(t, 500, HTTPStatus(New(KindHTTP, CodeTimeout, "slow")))
}

func TestHTTPStatusDefaultsTo500ForPlainErrors(t *testing.T) {
	assert.Equal(t, 500, HTTPStatus(errors.New("not an apperr")))
}

func TestHTTPStatusUnwrapsWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("context: %w", New(KindValidation, CodeInvalidFormat, "bad"))
	assert.Equal(t, 400, HTTPStatus(wrapped))
}

func TestWrapPreservesCauseForErrorsIs(t *testing.T) {
	cause := errors.New("underlying failure")
	wrapped := Wrap(KindHTTP, CodeConnectionFailed, "request failed", cause)

	assert.ErrorIs(t, wrapped, cause)
	assert.Contains(t, wrapped.Error(), "http.connection_failed")
}

func TestWithDetailsAttachesDetails(t *testing.T) {
	err := New(KindValidation, CodeInvalidFormat, "bad").WithDetails(map[string]string{"field": "system_id"})
	assert.Equal(t, map[string]string{"field": "system_id"}, err.Details)
}

func TestRetryablefSetsRetryableFlag(t *testing.T) {
	err := Retryablef(KindUpstream, CodeESIError, "attempt %d failed", 3)
	assert.True(t, err.Retryable)
	assert.Contains(t, err.Error(), "attempt 3 failed")
}
