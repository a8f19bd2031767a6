// This file implements the Stripe webhook that changes plans.
//
// Route:
//   - POST /webhooks/stripe -> HandleStripeWebhook
//
// This route carries no auth middleware because Stripe calls it directly. The
// webhook signature authenticates it.
package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v79"

	"github.com/ZaidMomin2003/talxify/internal/billing"
	"github.com/ZaidMomin2003/talxify/internal/domain"
	"github.com/ZaidMomin2003/talxify/internal/service"
)

// WebhookHandler handles incoming webhook events from Stripe.
type WebhookHandler struct {
	billing billing.Service
	quota   service.QuotaService
	logger  *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
// billingService may be nil when Stripe is not configured.
func NewWebhookHandler(billingService billing.Service, quota service.QuotaService, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		billing: billingService,
		quota:   quota,
		logger:  logger,
	}
}

// RegisterRoutes registers webhook routes on the provided mux.
func (h *WebhookHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhooks/stripe", h.HandleStripeWebhook)
}

// HandleStripeWebhook verifies and applies one Stripe event. A transient
// store failure answers 503 so Stripe redelivers; every other outcome
// answers 200 because a redelivery would fail the same way.
func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.billing == nil {
		h.logger.Warn("stripe webhook received but billing is not configured")
		w.WriteHeader(http.StatusOK)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 65536))
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	event, err := h.billing.VerifyWebhookSignature(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.logger.Warn("webhook signature verification failed", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	logger := h.logger.With("event_type", event.Type, "event_id", event.ID)
	logger.Info("stripe webhook received")

	switch event.Type {
	case "customer.subscription.created", "customer.subscription.updated":
		err = h.applySubscription(r.Context(), logger, event, false)
	case "customer.subscription.deleted":
		err = h.applySubscription(r.Context(), logger, event, true)
	default:
		logger.Debug("unhandled webhook event type")
	}

	if err != nil && domain.IsTransient(err) {
		logger.Warn("webhook deferred to redelivery", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *WebhookHandler) applySubscription(ctx context.Context, logger *slog.Logger, event stripe.Event, deleted bool) error {
	var sub stripe.Subscription
	if event.Data == nil {
		logger.Error("subscription event has no data")
		return nil
	}
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		logger.Error("failed to parse subscription event", "error", err)
		return nil
	}

	accountID := sub.Metadata[billing.MetadataAccountID]
	if accountID == "" {
		logger.Warn("subscription has no account id", "subscription_id", sub.ID)
		return nil
	}
	logger = logger.With("account_id", accountID, "subscription_id", sub.ID, "status", sub.Status)

	plan, ok := targetPlan(h.billing, &sub, deleted)
	if !ok {
		logger.Info("subscription status does not change the plan")
		return nil
	}

	if _, err := h.quota.EnsureAccount(ctx, accountID); err != nil {
		logger.Error("failed to ensure account", "error", err)
		return err
	}

	change := domain.PlanChange{Plan: plan}
	if event.Created > 0 {
		change.At = time.Unix(event.Created, 0)
	}
	// Stripe sends subscription.updated for unrelated edits too, and
	// re-applying the running term would reset the counters.
	if !deleted && sub.CurrentPeriodStart > 0 {
		change.PeriodStart = time.Unix(sub.CurrentPeriodStart, 0)
	}

	applied, err := h.quota.ApplyPlanChange(ctx, accountID, change, service.PlanSourceStripe)
	if err != nil {
		logger.Error("failed to set plan", "error", err, "plan", plan)
		return err
	}
	if !applied {
		logger.Debug("plan change superseded", "plan", plan)
		return nil
	}

	logger.Info("plan changed from webhook", "plan", plan)
	return nil
}

// targetPlan maps a subscription to the plan it grants.
func targetPlan(svc billing.Service, sub *stripe.Subscription, deleted bool) (domain.PlanID, bool) {
	if deleted {
		return domain.PlanFree, true
	}
	switch sub.Status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		return billing.SubscriptionPlan(svc, sub)
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusUnpaid, stripe.SubscriptionStatusIncompleteExpired:
		return domain.PlanFree, true
	default:
		// past_due, incomplete, paused: keep the current term running.
		return "", false
	}
}
