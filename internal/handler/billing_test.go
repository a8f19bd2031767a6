package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZaidMomin2003/talxify/internal/billing"
	"github.com/ZaidMomin2003/talxify/internal/domain"
	"github.com/ZaidMomin2003/talxify/internal/repository/memory"
	"github.com/ZaidMomin2003/talxify/internal/service"
)

func newBillingMux(t *testing.T, fb *fakeBilling) *http.ServeMux {
	t.Helper()
	quota := service.NewQuotaService(memory.New(), service.QuotaConfig{
		Retry: service.RetryConfig{MaxRetries: 1, BaseDelay: time.Millisecond},
	}, testLogger)
	_, err := quota.EnsureAccount(context.Background(), "acc-1")
	require.NoError(t, err)

	var svc billing.Service
	if fb != nil {
		svc = fb
	}
	mux := http.NewServeMux()
	NewBillingHandler(svc, quota, "https://talxify.test", testLogger).RegisterRoutes(mux)
	return mux
}

func TestBillingHandler(t *testing.T) {
	tests := []struct {
		name     string
		disabled bool
		path     string
		body     string
		want     int
		wantURL  string
		wantCode string
	}{
		{
			name:    "checkout for paid plan",
			path:    "/api/accounts/acc-1/checkout",
			body:    `{"plan":"pro-60day"}`,
			want:    http.StatusOK,
			wantURL: "https://checkout.stripe.test/acc-1",
		},
		{
			name:     "checkout for free plan",
			path:     "/api/accounts/acc-1/checkout",
			body:     `{"plan":"free"}`,
			want:     http.StatusBadRequest,
			wantCode: domain.EINVALID,
		},
		{
			name:     "checkout for unknown account",
			path:     "/api/accounts/ghost/checkout",
			body:     `{"plan":"pro-60day"}`,
			want:     http.StatusNotFound,
			wantCode: domain.ENOTFOUND,
		},
		{
			name:    "portal",
			path:    "/api/accounts/acc-1/portal",
			body:    `{"customer_id":"cus_123"}`,
			want:    http.StatusOK,
			wantURL: "https://billing.stripe.test/cus_123",
		},
		{
			name:     "portal without customer",
			path:     "/api/accounts/acc-1/portal",
			body:     `{}`,
			want:     http.StatusBadRequest,
			wantCode: domain.EINVALID,
		},
		{
			name:     "portal provider failure",
			path:     "/api/accounts/acc-1/portal",
			body:     `{"customer_id":"cus_down"}`,
			want:     http.StatusServiceUnavailable,
			wantCode: domain.EUNAVAILABLE,
		},
		{
			name:     "billing not configured",
			disabled: true,
			path:     "/api/accounts/acc-1/checkout",
			body:     `{"plan":"pro-60day"}`,
			want:     http.StatusServiceUnavailable,
			wantCode: domain.EUNAVAILABLE,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var fb *fakeBilling
			if !tt.disabled {
				fb = &fakeBilling{prices: map[string]domain.PlanID{"price_60": domain.PlanPro60Day}}
			}
			mux := newBillingMux(t, fb)

			req := httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			require.Equal(t, tt.want, rec.Code)
			if tt.wantURL != "" {
				assert.Equal(t, tt.wantURL, decodeBody[RedirectResponse](t, rec).URL)
				return
			}
			assert.Equal(t, tt.wantCode, decodeBody[JSONError](t, rec).Error.Code)
		})
	}
}

func TestBillingHandler_CheckoutReturnURL(t *testing.T) {
	fb := &fakeBilling{prices: map[string]domain.PlanID{"price_m": domain.PlanProMonthly}}
	mux := newBillingMux(t, fb)

	req := httptest.NewRequest(http.MethodPost, "/api/accounts/acc-1/checkout", strings.NewReader(`{"plan":"pro-monthly"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(fb.lastSuccessURL, "https://talxify.test/billing/success"))
	assert.Contains(t, fb.lastSuccessURL, "{CHECKOUT_SESSION_ID}")
}
