package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/health", "/health"},
		{"/api/accounts/acc-1", "/api/accounts/{account}"},
		{"/api/accounts/acc-1/usage", "/api/accounts/{account}/usage"},
		{"/api/accounts/acc-1/usage/notes", "/api/accounts/{account}/usage/{feature}"},
		{"/api/accounts/acc-1/usage/anything-at-all", "/api/accounts/{account}/usage/{feature}"},
		{"/api/accounts/acc-1/activity", "/api/accounts/{account}/activity"},
		{"/api/accounts/acc-1/activity/rec-9", "/api/accounts/{account}/activity/{record}"},
		{"/api/accounts/acc-1/interviews/rec-9", "/api/accounts/{account}/interviews/{record}"},
		{"/webhooks/stripe", "/webhooks/stripe"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizePath(tt.path))
		})
	}
}

func TestMiddleware_CountsByNormalizedPath(t *testing.T) {
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
	}))

	counter := HTTPRequestsTotal.WithLabelValues(http.MethodPost, "/api/accounts/{account}/notes", "402")
	before := testutil.ToFloat64(counter)

	for _, acct := range []string{"a", "b", "c"} {
		req := httptest.NewRequest(http.MethodPost, "/api/accounts/"+acct+"/notes", nil)
		h.ServeHTTP(httptest.NewRecorder(), req)
	}

	assert.Equal(t, before+3, testutil.ToFloat64(counter))
}
