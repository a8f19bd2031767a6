// This file implements the checkout and customer portal endpoints backed by
// Stripe.
//
// Routes handled:
//   - POST /api/accounts/{account}/checkout -> CreateCheckout
//   - POST /api/accounts/{account}/portal   -> OpenPortal
//
// A completed checkout reaches the ledger through the webhook, never through
// these handlers.
package handler

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ZaidMomin2003/talxify/internal/billing"
	"github.com/ZaidMomin2003/talxify/internal/domain"
	"github.com/ZaidMomin2003/talxify/internal/service"
)

// BillingHandler handles billing HTTP requests.
type BillingHandler struct {
	billing billing.Service
	quota   service.QuotaService
	baseURL string
	logger  *slog.Logger
}

// NewBillingHandler creates a new BillingHandler.
// billingService may be nil when Stripe is not configured.
func NewBillingHandler(billingService billing.Service, quota service.QuotaService, baseURL string, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{
		billing: billingService,
		quota:   quota,
		baseURL: baseURL,
		logger:  logger,
	}
}

// RegisterRoutes registers billing routes on the provided mux.
func (h *BillingHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/accounts/{account}/checkout", h.CreateCheckout)
	mux.HandleFunc("POST /api/accounts/{account}/portal", h.OpenPortal)
}

type checkoutRequest struct {
	Plan domain.PlanID `json:"plan"`
}

type portalRequest struct {
	CustomerID string `json:"customer_id"`
}

// RedirectResponse carries a Stripe-hosted page the client should open.
type RedirectResponse struct {
	URL string `json:"url"`
}

// CreateCheckout starts a subscription checkout for a paid plan.
func (h *BillingHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	const op = "billing.create_checkout"
	accountID := r.PathValue("account")

	if !h.configured(w, r, op) {
		return
	}

	var req checkoutRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return
	}

	// The webhook can only credit accounts the ledger knows.
	if _, err := h.quota.Usage(r.Context(), accountID); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	successURL := fmt.Sprintf("%s/billing/success?session_id={CHECKOUT_SESSION_ID}", h.baseURL)
	cancelURL := fmt.Sprintf("%s/billing", h.baseURL)

	checkoutURL, err := h.billing.CreateCheckoutSession(accountID, req.Plan, successURL, cancelURL)
	if err != nil {
		if domain.ErrorCode(err) == domain.EINTERNAL {
			err = domain.Unavailable(err, op, "billing provider unavailable")
		}
		ErrorResponse(w, r, h.logger, err)
		return
	}

	h.logger.Info("checkout session created", "account_id", accountID, "plan", req.Plan)
	writeJSON(w, http.StatusOK, RedirectResponse{URL: checkoutURL})
}

// OpenPortal creates a Stripe Customer Portal session.
func (h *BillingHandler) OpenPortal(w http.ResponseWriter, r *http.Request) {
	const op = "billing.open_portal"

	if !h.configured(w, r, op) {
		return
	}

	var req portalRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return
	}
	if req.CustomerID == "" {
		ErrorResponse(w, r, h.logger, domain.NewValidationError(op, "customer_id", "is required"))
		return
	}

	portalURL, err := h.billing.CreatePortalSession(req.CustomerID, fmt.Sprintf("%s/billing", h.baseURL))
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Unavailable(err, op, "billing provider unavailable"))
		return
	}

	writeJSON(w, http.StatusOK, RedirectResponse{URL: portalURL})
}

func (h *BillingHandler) configured(w http.ResponseWriter, r *http.Request, op string) bool {
	if h.billing != nil {
		return true
	}
	h.logger.Warn("billing requested but Stripe is not configured", "path", r.URL.Path)
	ErrorResponse(w, r, h.logger, &domain.Error{
		Code:    domain.EUNAVAILABLE,
		Op:      op,
		Message: "Billing is not configured.",
	})
	return false
}
