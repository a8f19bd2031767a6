package domain

import (
	"context"
	"time"
)

// EntitlementStatus represents the state of an account's subscription.
type EntitlementStatus string

const (
	EntitlementActive    EntitlementStatus = "active"
	EntitlementInactive  EntitlementStatus = "inactive"
	EntitlementCancelled EntitlementStatus = "cancelled"
)

// Counter is the consumption of one feature within one period.
type Counter struct {
	Count     uint64 `json:"count"`
	PeriodKey string `json:"period_key"`
}

// InterviewQuota is the paid-plan interview counter. Its limit is fixed when
// the subscription is (re)activated rather than read from the catalog.
type InterviewQuota struct {
	Count uint64 `json:"count"`
	Limit uint64 `json:"limit"`
}

// Entitlement is the durable record of an account's plan and consumption.
// It is owned by the quota ledger; nothing else writes it.
type Entitlement struct {
	AccountID   string
	Plan        PlanID
	Status      EntitlementStatus
	PeriodStart time.Time
	PeriodEnd   time.Time // zero for open-ended plans
	Counters    map[Feature]Counter
	Interview   *InterviewQuota
	UpdatedAt   time.Time

	// PlanEventAt is when the change that set Plan was raised: the billing
	// event time, or the apply time for manual changes. Zero until the
	// first plan change.
	PlanEventAt time.Time
}

// NewEntitlement returns the free-plan entitlement created on first sign-in.
func NewEntitlement(accountID string, now time.Time) *Entitlement {
	return &Entitlement{
		AccountID:   accountID,
		Plan:        PlanFree,
		Status:      EntitlementActive,
		PeriodStart: now.UTC(),
		Counters:    make(map[Feature]Counter),
		UpdatedAt:   now.UTC(),
	}
}

// Clone returns a deep copy.
func (e *Entitlement) Clone() *Entitlement {
	c := *e
	c.Counters = make(map[Feature]Counter, len(e.Counters))
	for f, ctr := range e.Counters {
		c.Counters[f] = ctr
	}
	if e.Interview != nil {
		iq := *e.Interview
		c.Interview = &iq
	}
	return &c
}

// ApplyPlan switches the entitlement to def, starting a new term at now and
// resetting every counter.
func (e *Entitlement) ApplyPlan(def PlanDefinition, now time.Time) {
	now = now.UTC()
	e.Plan = def.ID
	e.Status = EntitlementActive
	e.PeriodStart = now
	e.PeriodEnd = time.Time{}
	if def.TermDays > 0 {
		e.PeriodEnd = now.AddDate(0, 0, def.TermDays)
	}
	e.Counters = make(map[Feature]Counter)
	e.Interview = nil
	if def.Interviews != nil {
		e.Interview = &InterviewQuota{Limit: uint64(def.Interviews.Count)}
	}
	e.UpdatedAt = now
	e.PlanEventAt = now
}

// PlanChange is a plan switch raised by a billing event.
type PlanChange struct {
	Plan PlanID
	// PeriodStart is the billing period the event grants. Zero when the
	// event carries none.
	PeriodStart time.Time
	// At is when the event was raised. Zero applies unconditionally.
	At time.Time
}

// Superseded reports whether c is older than the change that set the
// current plan, or repeats it for a term that is already running.
func (e *Entitlement) Superseded(c PlanChange) bool {
	if !c.At.IsZero() && !e.PlanEventAt.IsZero() {
		if c.At.Before(e.PlanEventAt) {
			return true
		}
		if c.At.Equal(e.PlanEventAt) && c.Plan == e.Plan {
			return true
		}
	}
	return c.Plan == e.Plan && !c.PeriodStart.IsZero() && !e.PeriodStart.Before(c.PeriodStart)
}

// EffectivePlan returns the plan whose limits apply at now. An inactive or
// cancelled entitlement, or a paid term that has ended, falls back to free.
func (e *Entitlement) EffectivePlan(now time.Time) PlanID {
	if e.Status != EntitlementActive {
		return PlanFree
	}
	if !e.PeriodEnd.IsZero() && !now.Before(e.PeriodEnd) {
		return PlanFree
	}
	return e.Plan
}

// PeriodKey identifies the window a counter applies to at now.
func PeriodKey(period Period, now, periodStart time.Time) string {
	switch period {
	case PeriodMonthly:
		return now.UTC().Format("2006-01")
	default:
		return "term:" + periodStart.UTC().Format(time.RFC3339)
	}
}

// EffectiveCount applies rollover: a counter stored under a different period
// key than the live one counts as zero.
func EffectiveCount(c Counter, liveKey string) uint64 {
	if c.PeriodKey != liveKey {
		return 0
	}
	return c.Count
}

// =============================================================================
// Decisions
// =============================================================================

// DenyReason explains a denied consumption.
type DenyReason string

const (
	DenyLimitReached DenyReason = "limit_reached"
	DenyNotIncluded  DenyReason = "feature_not_included"
)

// Decision is the outcome of a quota consumption attempt.
type Decision struct {
	Allowed   bool
	Feature   Feature
	Plan      PlanID
	Used      uint64
	Limit     Limit
	Remaining int64 // -1 when unlimited
	Reason    DenyReason
}

// Err converts a denied decision into the user-facing LimitReached error.
// It returns nil for allowed decisions.
func (d Decision) Err(op string) error {
	if d.Allowed {
		return nil
	}
	return QuotaExceeded(op, &LimitError{
		Feature: d.Feature,
		Plan:    d.Plan,
		Limit:   d.Limit.N,
		Used:    int64(d.Used),
		Reason:  d.Reason,
	})
}

// Decide runs the consume algorithm against ent. On Allowed the counter is
// incremented in place and changed is true; a denial never mutates ent.
func Decide(c *Catalog, ent *Entitlement, feature Feature, now time.Time) (d Decision, changed bool, err error) {
	plan := ent.EffectivePlan(now)
	fl, err := c.LimitFor(plan, feature)
	if err != nil {
		return Decision{}, false, err
	}

	d = Decision{Feature: feature, Plan: plan, Limit: fl.Limit}

	if fl.Limit.Unlimited && !feature.Metered() {
		d.Allowed = true
		d.Remaining = -1
		return d, false, nil
	}

	if !fl.Limit.Unlimited && fl.Limit.N <= 0 {
		d.Reason = DenyNotIncluded
		return d, false, nil
	}

	if feature == FeatureInterview && plan != PlanFree && ent.Interview != nil {
		iq := ent.Interview
		d.Limit = Fixed(int64(iq.Limit))
		if iq.Count >= iq.Limit {
			d.Used = iq.Count
			d.Reason = DenyLimitReached
			return d, false, nil
		}
		iq.Count++
		d.Allowed = true
		d.Used = iq.Count
		d.Remaining = int64(iq.Limit - iq.Count)
		ent.UpdatedAt = now.UTC()
		return d, true, nil
	}

	key := PeriodKey(fl.Period, now, ent.PeriodStart)
	current := EffectiveCount(ent.Counters[feature], key)

	if !fl.Limit.Unlimited && current >= uint64(fl.Limit.N) {
		d.Used = current
		d.Reason = DenyLimitReached
		return d, false, nil
	}

	if ent.Counters == nil {
		ent.Counters = make(map[Feature]Counter)
	}
	ent.Counters[feature] = Counter{Count: current + 1, PeriodKey: key}
	ent.UpdatedAt = now.UTC()

	d.Allowed = true
	d.Used = current + 1
	d.Remaining = -1
	if !fl.Limit.Unlimited {
		d.Remaining = fl.Limit.N - int64(current+1)
	}
	return d, true, nil
}

// FeatureUsage is the display view of one feature's consumption.
type FeatureUsage struct {
	Feature   Feature
	Used      uint64
	Limit     Limit
	Remaining int64
}

// Usage reports consumption for every feature at now without mutating ent.
func Usage(c *Catalog, ent *Entitlement, now time.Time) ([]FeatureUsage, error) {
	plan := ent.EffectivePlan(now)
	out := make([]FeatureUsage, 0, len(Features))
	for _, f := range Features {
		fl, err := c.LimitFor(plan, f)
		if err != nil {
			return nil, err
		}
		u := FeatureUsage{Feature: f, Limit: fl.Limit, Remaining: -1}
		if f == FeatureInterview && plan != PlanFree && ent.Interview != nil {
			u.Used = ent.Interview.Count
			u.Limit = Fixed(int64(ent.Interview.Limit))
		} else {
			u.Used = EffectiveCount(ent.Counters[f], PeriodKey(fl.Period, now, ent.PeriodStart))
		}
		if !u.Limit.Unlimited {
			u.Remaining = max(0, u.Limit.N-int64(u.Used))
		}
		out = append(out, u)
	}
	return out, nil
}

// =============================================================================
// Store
// =============================================================================

// EntitlementStore persists entitlements. UpdateEntitlement is the only
// mutation path and must run fn inside a transactional read-modify-write on
// the account's single entitlement document: fn sees the current state and,
// if it returns changed=true, the mutated value is written before any other
// UpdateEntitlement on the same account can observe the record.
type EntitlementStore interface {
	// CreateEntitlement inserts ent unless the account already has one.
	// Returns created=false for an existing account.
	CreateEntitlement(ctx context.Context, ent *Entitlement) (created bool, err error)

	// GetEntitlement returns a snapshot. ENOTFOUND when the account is unknown.
	GetEntitlement(ctx context.Context, accountID string) (*Entitlement, error)

	// UpdateEntitlement runs fn under the account's write lock.
	// ENOTFOUND when the account is unknown, EUNAVAILABLE on transient failure.
	UpdateEntitlement(ctx context.Context, accountID string, fn func(*Entitlement) (changed bool, err error)) error
}
