package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZaidMomin2003/talxify/internal/domain"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestErrorCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{domain.EINVALID, http.StatusBadRequest},
		{domain.EPAYMENT, http.StatusPaymentRequired},
		{domain.ENOTFOUND, http.StatusNotFound},
		{domain.ECONFLICT, http.StatusConflict},
		{domain.EUNAVAILABLE, http.StatusServiceUnavailable},
		{domain.EPARTIAL, http.StatusInternalServerError},
		{domain.EINTERNAL, http.StatusInternalServerError},
		{"something_else", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCodeToHTTPStatus(tt.code))
		})
	}
}

func serveError(err error) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/accounts/acc-1/notes", nil)
	ErrorResponse(rec, req, testLogger, err)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) JSONError {
	t.Helper()
	var body JSONError
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestErrorResponse_LimitReachedCarriesDetails(t *testing.T) {
	le := &domain.LimitError{
		Feature: domain.FeatureNotes,
		Plan:    domain.PlanFree,
		Limit:   1,
		Used:    1,
		Reason:  domain.DenyLimitReached,
	}

	rec := serveError(domain.QuotaExceeded("gate.run", le))

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	body := decodeError(t, rec)
	assert.Equal(t, domain.EPAYMENT, body.Error.Code)
	require.NotNil(t, body.Error.Limit)
	assert.Equal(t, domain.FeatureNotes, body.Error.Limit.Feature)
	assert.Equal(t, domain.PlanFree, body.Error.Limit.Plan)
	assert.Equal(t, int64(1), body.Error.Limit.Limit)
	assert.Equal(t, domain.DenyLimitReached, body.Error.Limit.Reason)
}

func TestErrorResponse_HidesInternalDetails(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "plain error", err: errors.New("pq: relation entitlements does not exist"), status: http.StatusInternalServerError},
		{name: "internal", err: domain.Internal(errors.New("nil map"), "quota.try_consume", "boom"), status: http.StatusInternalServerError},
		{name: "transient", err: domain.Unavailable(errors.New("deadlock detected"), "store.update", "retry"), status: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serveError(tt.err)
			assert.Equal(t, tt.status, rec.Code)

			raw := rec.Body.String()
			assert.NotContains(t, raw, "pq:")
			assert.NotContains(t, raw, "deadlock")
			assert.NotContains(t, raw, "quota.try_consume")
		})
	}
}

func TestErrorResponse_UnavailableSetsRetryAfter(t *testing.T) {
	rec := serveError(domain.Unavailable(errors.New("timeout"), "op", "down"))
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestErrorResponse_ChargedNotSaved(t *testing.T) {
	rec := serveError(domain.ChargedNotSaved(errors.New("write failed"), "gate.run", domain.FeatureNotes))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, domain.EPARTIAL, body.Error.Code)
	assert.Contains(t, body.Error.Message, "charged")
	assert.NotContains(t, body.Error.Message, "write failed")
}

func TestValidationErrorResponse_DoesNotExposeOperationName(t *testing.T) {
	ve := domain.NewValidationError("gate.generate_notes", "topic", "Topic is required")

	rec := serveError(ve)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	raw := rec.Body.String()
	assert.False(t, strings.Contains(raw, "gate.generate_notes"), "response exposes operation name: %s", raw)

	var body JSONError
	require.NoError(t, json.Unmarshal([]byte(raw), &body))
	assert.Equal(t, domain.EINVALID, body.Error.Code)
	assert.Equal(t, "Topic is required", body.Error.Fields["topic"])
}
