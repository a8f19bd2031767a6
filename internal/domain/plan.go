// Package domain contains core business types and interfaces.
//
// This file defines the static plan catalog: subscription tiers and the
// per-feature limits they grant.
package domain

import (
	"fmt"
	"sort"
)

// Feature identifies a gated capability with its own quota.
type Feature string

const (
	FeatureInterview         Feature = "interview"
	FeatureCodingQuiz        Feature = "coding_quiz"
	FeatureNotes             Feature = "notes"
	FeatureQuestionGenerator Feature = "question_generator"
	FeatureAIEnhancement     Feature = "ai_enhancement"
	FeatureResumeExport      Feature = "resume_export"
)

// Features lists every feature in catalog order.
var Features = []Feature{
	FeatureInterview,
	FeatureCodingQuiz,
	FeatureNotes,
	FeatureQuestionGenerator,
	FeatureAIEnhancement,
	FeatureResumeExport,
}

// Valid checks if the feature is part of the catalog.
func (f Feature) Valid() bool {
	for _, known := range Features {
		if f == known {
			return true
		}
	}
	return false
}

// Metered reports whether the feature keeps a counter even on otherwise
// unlimited plans. Interviews and résumé exports have plan-specific quotas.
func (f Feature) Metered() bool {
	return f == FeatureInterview || f == FeatureResumeExport
}

// PlanID identifies a subscription tier.
type PlanID string

const (
	PlanFree       PlanID = "free"
	PlanProMonthly PlanID = "pro-monthly"
	PlanPro60Day   PlanID = "pro-60day"
	PlanProYearly  PlanID = "pro-yearly"
)

// Period selects how a counter's period key is derived.
type Period string

const (
	// PeriodMonthly counters roll over on the first of each UTC month.
	PeriodMonthly Period = "monthly"
	// PeriodTerm counters live for the entitlement's plan term.
	PeriodTerm Period = "term"
)

// Limit is either Fixed(n) or Unlimited.
type Limit struct {
	Unlimited bool
	N         int64
}

// Fixed returns a capped limit.
func Fixed(n int64) Limit { return Limit{N: n} }

// Unlimited returns the uncapped limit.
func Unlimited() Limit { return Limit{Unlimited: true} }

func (l Limit) String() string {
	if l.Unlimited {
		return "unlimited"
	}
	return fmt.Sprintf("%d", l.N)
}

// FeatureLimit is a plan's grant for one feature.
type FeatureLimit struct {
	Limit  Limit
	Period Period
}

// InterviewAllowance is the interview quota a paid plan grants per term. It is
// copied into the entitlement when the subscription is (re)activated.
type InterviewAllowance struct {
	Count      int64
	PeriodDays int
}

// PlanDefinition is immutable catalog data.
type PlanDefinition struct {
	ID         PlanID
	Name       string
	Paid       bool
	TermDays   int // 0 means open-ended
	Limits     map[Feature]FeatureLimit
	Interviews *InterviewAllowance
}

// Catalog is the static table of plans. It is safe for concurrent use
// because it is never written after construction.
type Catalog struct {
	plans map[PlanID]PlanDefinition
}

// NewCatalog builds a catalog from plan definitions.
func NewCatalog(plans ...PlanDefinition) *Catalog {
	c := &Catalog{plans: make(map[PlanID]PlanDefinition, len(plans))}
	for _, p := range plans {
		c.plans[p.ID] = p
	}
	return c
}

// DefaultCatalog returns the production plan table.
func DefaultCatalog() *Catalog {
	paid := func(id PlanID, name string, termDays int, interviews int64, exports int64) PlanDefinition {
		return PlanDefinition{
			ID:       id,
			Name:     name,
			Paid:     true,
			TermDays: termDays,
			Limits: map[Feature]FeatureLimit{
				FeatureInterview:         {Limit: Fixed(interviews), Period: PeriodTerm},
				FeatureCodingQuiz:        {Limit: Unlimited(), Period: PeriodMonthly},
				FeatureNotes:             {Limit: Unlimited(), Period: PeriodMonthly},
				FeatureQuestionGenerator: {Limit: Unlimited(), Period: PeriodMonthly},
				FeatureAIEnhancement:     {Limit: Unlimited(), Period: PeriodMonthly},
				FeatureResumeExport:      {Limit: Fixed(exports), Period: PeriodMonthly},
			},
			Interviews: &InterviewAllowance{Count: interviews, PeriodDays: termDays},
		}
	}

	return NewCatalog(
		PlanDefinition{
			ID:   PlanFree,
			Name: "Free",
			Limits: map[Feature]FeatureLimit{
				FeatureInterview:         {Limit: Fixed(1), Period: PeriodTerm},
				FeatureCodingQuiz:        {Limit: Fixed(1), Period: PeriodMonthly},
				FeatureNotes:             {Limit: Fixed(1), Period: PeriodMonthly},
				FeatureQuestionGenerator: {Limit: Fixed(1), Period: PeriodMonthly},
				FeatureAIEnhancement:     {Limit: Fixed(0), Period: PeriodMonthly},
				FeatureResumeExport:      {Limit: Fixed(1), Period: PeriodMonthly},
			},
		},
		paid(PlanProMonthly, "Pro (monthly)", 30, 5, 10),
		paid(PlanPro60Day, "Pro (60 days)", 60, 10, 20),
		paid(PlanProYearly, "Pro (yearly)", 365, 60, 30),
	)
}

// Plan returns the definition for id.
func (c *Catalog) Plan(id PlanID) (PlanDefinition, bool) {
	p, ok := c.plans[id]
	return p, ok
}

// PlanIDs returns the known plan ids in sorted order.
func (c *Catalog) PlanIDs() []PlanID {
	ids := make([]PlanID, 0, len(c.plans))
	for id := range c.plans {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// LimitFor returns the plan's grant for feature.
func (c *Catalog) LimitFor(plan PlanID, feature Feature) (FeatureLimit, error) {
	const op = "catalog.limit_for"

	if !feature.Valid() {
		return FeatureLimit{}, UnknownFeature(op, feature)
	}
	p, ok := c.plans[plan]
	if !ok {
		return FeatureLimit{}, NotFound(op, "plan", string(plan))
	}
	fl, ok := p.Limits[feature]
	if !ok {
		return FeatureLimit{}, UnknownFeature(op, feature)
	}
	return fl, nil
}
