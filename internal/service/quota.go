// Package service contains the business logic layer.
//
// This file implements the quota ledger: the only writer of entitlements.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/ZaidMomin2003/talxify/internal/domain"
	"github.com/ZaidMomin2003/talxify/internal/metrics"
)

// Plan change sources, recorded in metrics and logs.
const (
	PlanSourceStripe = "stripe"
	PlanSourceAdmin  = "admin"
)

// =============================================================================
// Interface Definition
// =============================================================================

// QuotaService defines operations on per-account feature quotas.
type QuotaService interface {
	// TryConsume atomically checks and increments the account's counter for
	// feature. A denial is returned as a Decision with Allowed=false, not as
	// an error.
	TryConsume(ctx context.Context, accountID string, feature domain.Feature) (*domain.Decision, error)

	// Check reports what TryConsume would decide without writing. The answer
	// may be stale by the time the caller acts on it.
	Check(ctx context.Context, accountID string, feature domain.Feature) (*domain.Decision, error)

	// Usage returns per-feature consumption for display.
	Usage(ctx context.Context, accountID string) (*UsageReport, error)

	// SetPlan switches the account to plan and resets every counter.
	SetPlan(ctx context.Context, accountID string, plan domain.PlanID, source string) error

	// ApplyPlanChange is SetPlan for billing events. A change older than the
	// one that set the current plan, or one repeating the running term, is
	// skipped inside the same read-modify-write; applied is false then.
	ApplyPlanChange(ctx context.Context, accountID string, change domain.PlanChange, source string) (applied bool, err error)

	// EnsureAccount creates a free entitlement on first sign-in.
	EnsureAccount(ctx context.Context, accountID string) (created bool, err error)
}

// UsageReport is the account's plan plus per-feature consumption.
type UsageReport struct {
	AccountID     string
	Plan          domain.PlanID
	EffectivePlan domain.PlanID
	Status        domain.EntitlementStatus
	PeriodStart   time.Time
	PeriodEnd     time.Time
	Features      []domain.FeatureUsage
}

// QuotaConfig configures a QuotaService.
type QuotaConfig struct {
	Catalog *domain.Catalog
	Retry   RetryConfig
	Now     func() time.Time
}

// =============================================================================
// Implementation
// =============================================================================

type quotaService struct {
	store   domain.EntitlementStore
	catalog *domain.Catalog
	retry   RetryConfig
	now     func() time.Time
	logger  *slog.Logger
}

// NewQuotaService creates a new QuotaService.
func NewQuotaService(store domain.EntitlementStore, cfg QuotaConfig, logger *slog.Logger) QuotaService {
	if cfg.Catalog == nil {
		cfg.Catalog = domain.DefaultCatalog()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &quotaService{
		store:   store,
		catalog: cfg.Catalog,
		retry:   cfg.Retry,
		now:     cfg.Now,
		logger:  logger,
	}
}

// TryConsume runs one read-modify-write of the entitlement. Each retry
// re-reads the stored state, so a retried attempt cannot double count.
func (s *quotaService) TryConsume(ctx context.Context, accountID string, feature domain.Feature) (*domain.Decision, error) {
	const op = "quota.try_consume"

	if accountID == "" {
		return nil, domain.Invalid(op, "account id is required")
	}
	if !feature.Valid() {
		return nil, domain.UnknownFeature(op, feature)
	}

	var decision domain.Decision
	err := withRetry(ctx, s.retry, s.logger, op, func(ctx context.Context) error {
		return s.store.UpdateEntitlement(ctx, accountID, func(ent *domain.Entitlement) (bool, error) {
			d, changed, err := domain.Decide(s.catalog, ent, feature, s.now())
			if err != nil {
				return false, err
			}
			decision = d
			return changed, nil
		})
	})
	if err != nil {
		s.logger.Error("quota consumption failed", "op", op, "account_id", accountID, "feature", feature, "error", err)
		return nil, err
	}

	metrics.QuotaDecision(string(feature), string(decision.Plan), decision.Allowed, string(decision.Reason))
	if !decision.Allowed {
		s.logger.Info("quota denied",
			"account_id", accountID,
			"feature", feature,
			"plan", decision.Plan,
			"used", decision.Used,
			"reason", decision.Reason,
		)
	}
	return &decision, nil
}

// Check decides against a snapshot and discards the result.
func (s *quotaService) Check(ctx context.Context, accountID string, feature domain.Feature) (*domain.Decision, error) {
	const op = "quota.check"

	if !feature.Valid() {
		return nil, domain.UnknownFeature(op, feature)
	}

	ent, err := s.get(ctx, op, accountID)
	if err != nil {
		return nil, err
	}

	d, _, err := domain.Decide(s.catalog, ent, feature, s.now())
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Usage reports consumption without mutating the entitlement.
func (s *quotaService) Usage(ctx context.Context, accountID string) (*UsageReport, error) {
	const op = "quota.usage"

	ent, err := s.get(ctx, op, accountID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	features, err := domain.Usage(s.catalog, ent, now)
	if err != nil {
		return nil, err
	}

	return &UsageReport{
		AccountID:     ent.AccountID,
		Plan:          ent.Plan,
		EffectivePlan: ent.EffectivePlan(now),
		Status:        ent.Status,
		PeriodStart:   ent.PeriodStart,
		PeriodEnd:     ent.PeriodEnd,
		Features:      features,
	}, nil
}

func (s *quotaService) get(ctx context.Context, op, accountID string) (*domain.Entitlement, error) {
	if accountID == "" {
		return nil, domain.Invalid(op, "account id is required")
	}
	var ent *domain.Entitlement
	err := withRetry(ctx, s.retry, s.logger, op, func(ctx context.Context) error {
		var err error
		ent, err = s.store.GetEntitlement(ctx, accountID)
		return err
	})
	return ent, err
}

// SetPlan applies the plan inside the same read-modify-write used by
// TryConsume, so no consumption interleaves with the reset.
func (s *quotaService) SetPlan(ctx context.Context, accountID string, plan domain.PlanID, source string) error {
	const op = "quota.set_plan"

	_, err := s.changePlan(ctx, op, accountID, domain.PlanChange{Plan: plan}, source)
	return err
}

func (s *quotaService) ApplyPlanChange(ctx context.Context, accountID string, change domain.PlanChange, source string) (bool, error) {
	const op = "quota.apply_plan_change"

	return s.changePlan(ctx, op, accountID, change, source)
}

func (s *quotaService) changePlan(ctx context.Context, op, accountID string, change domain.PlanChange, source string) (bool, error) {
	if accountID == "" {
		return false, domain.Invalid(op, "account id is required")
	}
	def, ok := s.catalog.Plan(change.Plan)
	if !ok {
		return false, domain.Errorf(domain.EINVALID, op, "unknown plan %q", change.Plan)
	}

	var applied bool
	err := withRetry(ctx, s.retry, s.logger, op, func(ctx context.Context) error {
		return s.store.UpdateEntitlement(ctx, accountID, func(ent *domain.Entitlement) (bool, error) {
			applied = !ent.Superseded(change)
			if !applied {
				return false, nil
			}
			ent.ApplyPlan(def, s.now())
			if !change.At.IsZero() {
				ent.PlanEventAt = change.At.UTC()
			}
			return true, nil
		})
	})
	if err != nil {
		s.logger.Error("plan change failed", "op", op, "account_id", accountID, "plan", change.Plan, "error", err)
		return false, err
	}
	if !applied {
		s.logger.Debug("plan change superseded", "account_id", accountID, "plan", change.Plan, "source", source)
		return false, nil
	}

	metrics.PlanChanged(string(change.Plan), source)
	s.logger.Info("plan changed", "account_id", accountID, "plan", change.Plan, "source", source)
	return true, nil
}

// EnsureAccount is idempotent: an existing entitlement is left untouched.
func (s *quotaService) EnsureAccount(ctx context.Context, accountID string) (bool, error) {
	const op = "quota.ensure_account"

	if accountID == "" {
		return false, domain.Invalid(op, "account id is required")
	}

	var created bool
	err := withRetry(ctx, s.retry, s.logger, op, func(ctx context.Context) error {
		var err error
		created, err = s.store.CreateEntitlement(ctx, domain.NewEntitlement(accountID, s.now()))
		return err
	})
	if err != nil {
		return false, err
	}
	if created {
		s.logger.Info("account created", "account_id", accountID, "plan", domain.PlanFree)
	}
	return created, nil
}
