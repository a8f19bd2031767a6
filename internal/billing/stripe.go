// Package billing provides the Stripe integration that drives plan changes.
package billing

import (
	"fmt"

	"github.com/stripe/stripe-go/v79"
	billingportalsession "github.com/stripe/stripe-go/v79/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/ZaidMomin2003/talxify/internal/domain"
)

// MetadataAccountID is the subscription metadata key carrying the account id.
const MetadataAccountID = "account_id"

// Service defines the interface for billing operations.
type Service interface {
	// CreateCheckoutSession starts a subscription checkout for a paid plan and
	// returns the URL to redirect to. The account id is stamped on the
	// subscription metadata so webhooks can find the account.
	CreateCheckoutSession(accountID string, plan domain.PlanID, successURL, cancelURL string) (string, error)

	// CreatePortalSession opens the customer portal for a Stripe customer.
	CreatePortalSession(customerID, returnURL string) (string, error)

	// VerifyWebhookSignature verifies the Stripe webhook signature and returns the event.
	VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error)

	// PlanForPriceID returns the plan sold under a Stripe price id.
	PlanForPriceID(priceID string) (domain.PlanID, bool)
}

// PriceConfig holds the Stripe price ID for each paid plan.
type PriceConfig struct {
	ProMonthlyPriceID string
	Pro60DayPriceID   string
	ProYearlyPriceID  string
}

func (c PriceConfig) byPlan() map[domain.PlanID]string {
	m := make(map[domain.PlanID]string, 3)
	if c.ProMonthlyPriceID != "" {
		m[domain.PlanProMonthly] = c.ProMonthlyPriceID
	}
	if c.Pro60DayPriceID != "" {
		m[domain.PlanPro60Day] = c.Pro60DayPriceID
	}
	if c.ProYearlyPriceID != "" {
		m[domain.PlanProYearly] = c.ProYearlyPriceID
	}
	return m
}

type stripeService struct {
	webhookSecret string
	planToPrice   map[domain.PlanID]string
	priceToPlan   map[string]domain.PlanID
}

// NewStripeService creates a new Stripe billing service.
//
// The secretKey authenticates Stripe API calls and the webhookSecret verifies
// incoming webhook signatures.
func NewStripeService(secretKey, webhookSecret string, prices PriceConfig) Service {
	stripe.Key = secretKey

	planToPrice := prices.byPlan()
	priceToPlan := make(map[string]domain.PlanID, len(planToPrice))
	for plan, price := range planToPrice {
		priceToPlan[price] = plan
	}

	return &stripeService{
		webhookSecret: webhookSecret,
		planToPrice:   planToPrice,
		priceToPlan:   priceToPlan,
	}
}

func (s *stripeService) CreateCheckoutSession(accountID string, plan domain.PlanID, successURL, cancelURL string) (string, error) {
	priceID, ok := s.planToPrice[plan]
	if !ok {
		return "", domain.Errorf(domain.EINVALID, "billing.checkout", "Plan %q is not for sale.", plan)
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		ClientReferenceID: stripe.String(accountID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{MetadataAccountID: accountID},
		},
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
	}
	sess, err := checkoutsession.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create checkout session: %w", err)
	}
	return sess.URL, nil
}

func (s *stripeService) CreatePortalSession(customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	sess, err := billingportalsession.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create portal session: %w", err)
	}
	return sess.URL, nil
}

func (s *stripeService) VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error) {
	event, err := webhook.ConstructEvent(payload, signature, s.webhookSecret)
	if err != nil {
		return stripe.Event{}, fmt.Errorf("stripe webhook signature verification failed: %w", err)
	}
	return event, nil
}

func (s *stripeService) PlanForPriceID(priceID string) (domain.PlanID, bool) {
	plan, ok := s.priceToPlan[priceID]
	return plan, ok
}

// SubscriptionPlan resolves the plan of a subscription's first priced item.
func SubscriptionPlan(svc Service, sub *stripe.Subscription) (domain.PlanID, bool) {
	if sub.Items == nil {
		return "", false
	}
	for _, item := range sub.Items.Data {
		if item == nil || item.Price == nil {
			continue
		}
		if plan, ok := svc.PlanForPriceID(item.Price.ID); ok {
			return plan, true
		}
	}
	return "", false
}
