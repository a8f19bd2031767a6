package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jan15 = time.Date(2024, time.January, 15, 12, 0, 0, 0, time.UTC)

func TestCatalog_LimitFor(t *testing.T) {
	c := DefaultCatalog()

	tests := []struct {
		name     string
		plan     PlanID
		feature  Feature
		want     Limit
		wantCode string
	}{
		{"free quiz", PlanFree, FeatureCodingQuiz, Fixed(1), ""},
		{"free enhancement excluded", PlanFree, FeatureAIEnhancement, Fixed(0), ""},
		{"pro notes unlimited", PlanProMonthly, FeatureNotes, Unlimited(), ""},
		{"pro-60day exports", PlanPro60Day, FeatureResumeExport, Fixed(20), ""},
		{"yearly interviews", PlanProYearly, FeatureInterview, Fixed(60), ""},
		{"unknown feature", PlanFree, Feature("teleport"), Limit{}, EINVALID},
		{"unknown plan", PlanID("enterprise"), FeatureNotes, Limit{}, ENOTFOUND},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fl, err := c.LimitFor(tt.plan, tt.feature)
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, ErrorCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, fl.Limit)
		})
	}
}

func TestCatalog_UnknownFeatureSentinel(t *testing.T) {
	_, err := DefaultCatalog().LimitFor(PlanFree, Feature("nope"))
	assert.ErrorIs(t, err, ErrUnknownFeature)
}

func TestEffectiveCount(t *testing.T) {
	tests := []struct {
		name    string
		counter Counter
		live    string
		want    uint64
	}{
		{"same period", Counter{Count: 3, PeriodKey: "2024-01"}, "2024-01", 3},
		{"rolled over", Counter{Count: 3, PeriodKey: "2024-01"}, "2024-02", 0},
		{"never used", Counter{}, "2024-01", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EffectiveCount(tt.counter, tt.live))
		})
	}
}

func TestPeriodKey(t *testing.T) {
	start := time.Date(2023, time.December, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-01", PeriodKey(PeriodMonthly, jan15, start))
	assert.Equal(t, "term:2023-12-01T00:00:00Z", PeriodKey(PeriodTerm, jan15, start))

	// Month is taken in UTC regardless of the caller's zone.
	est := time.FixedZone("EST", -5*3600)
	assert.Equal(t, "2024-02", PeriodKey(PeriodMonthly, time.Date(2024, time.January, 31, 21, 0, 0, 0, est), start))
}

func TestDecide_FreeQuizThenDenied(t *testing.T) {
	c := DefaultCatalog()
	ent := NewEntitlement("acc-1", jan15)

	d, changed, err := Decide(c, ent, FeatureCodingQuiz, jan15)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.True(t, changed)
	assert.Equal(t, uint64(1), d.Used)
	assert.Equal(t, int64(0), d.Remaining)
	assert.Equal(t, Counter{Count: 1, PeriodKey: "2024-01"}, ent.Counters[FeatureCodingQuiz])

	d, changed, err = Decide(c, ent, FeatureCodingQuiz, jan15)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.False(t, changed)
	assert.Equal(t, DenyLimitReached, d.Reason)
	assert.Equal(t, uint64(1), ent.Counters[FeatureCodingQuiz].Count)

	le, ok := AsLimitError(d.Err("test"))
	require.True(t, ok)
	assert.Equal(t, FeatureCodingQuiz, le.Feature)
	assert.Equal(t, int64(1), le.Limit)
	assert.Equal(t, EPAYMENT, ErrorCode(d.Err("test")))
}

func TestDecide_Rollover(t *testing.T) {
	c := DefaultCatalog()
	ent := NewEntitlement("acc-1", jan15)
	ent.Counters[FeatureNotes] = Counter{Count: 1, PeriodKey: "2024-01"}

	d, _, err := Decide(c, ent, FeatureNotes, jan15)
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	feb := time.Date(2024, time.February, 1, 0, 0, 1, 0, time.UTC)
	d, changed, err := Decide(c, ent, FeatureNotes, feb)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.True(t, changed)
	assert.Equal(t, Counter{Count: 1, PeriodKey: "2024-02"}, ent.Counters[FeatureNotes])

	d, _, err = Decide(c, ent, FeatureNotes, feb)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}

func TestDecide_FixedZeroNeverWrites(t *testing.T) {
	ent := NewEntitlement("acc-1", jan15)

	d, changed, err := Decide(DefaultCatalog(), ent, FeatureAIEnhancement, jan15)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.False(t, changed)
	assert.Equal(t, DenyNotIncluded, d.Reason)
	assert.Empty(t, ent.Counters)
}

func TestDecide_UnlimitedSkipsWrite(t *testing.T) {
	c := DefaultCatalog()
	ent := NewEntitlement("acc-1", jan15)
	def, _ := c.Plan(PlanProMonthly)
	ent.ApplyPlan(def, jan15)

	for i := 0; i < 50; i++ {
		d, changed, err := Decide(c, ent, FeatureNotes, jan15)
		require.NoError(t, err)
		require.True(t, d.Allowed)
		require.False(t, changed)
		assert.Equal(t, int64(-1), d.Remaining)
	}
}

func TestDecide_PaidInterviewPair(t *testing.T) {
	c := DefaultCatalog()
	ent := NewEntitlement("acc-1", jan15)
	def, _ := c.Plan(PlanProMonthly)
	ent.ApplyPlan(def, jan15)
	require.NotNil(t, ent.Interview)
	assert.Equal(t, uint64(5), ent.Interview.Limit)

	for i := 1; i <= 5; i++ {
		d, changed, err := Decide(c, ent, FeatureInterview, jan15.Add(time.Hour))
		require.NoError(t, err)
		require.True(t, d.Allowed, "attempt %d", i)
		assert.True(t, changed)
		assert.Equal(t, int64(5-i), d.Remaining)
	}

	d, changed, err := Decide(c, ent, FeatureInterview, jan15.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.False(t, changed)
	assert.Equal(t, uint64(5), ent.Interview.Count)
}

func TestEntitlement_EffectivePlan(t *testing.T) {
	c := DefaultCatalog()
	def, _ := c.Plan(PlanProMonthly)

	ent := NewEntitlement("acc-1", jan15)
	ent.ApplyPlan(def, jan15)

	assert.Equal(t, PlanProMonthly, ent.EffectivePlan(jan15.AddDate(0, 0, 29)))
	assert.Equal(t, PlanFree, ent.EffectivePlan(jan15.AddDate(0, 0, 30)))

	ent.Status = EntitlementCancelled
	assert.Equal(t, PlanFree, ent.EffectivePlan(jan15))
}

func TestEntitlement_ApplyPlanResetsCounters(t *testing.T) {
	c := DefaultCatalog()
	ent := NewEntitlement("acc-1", jan15)
	ent.Counters[FeatureCodingQuiz] = Counter{Count: 1, PeriodKey: "2024-01"}

	def, _ := c.Plan(PlanPro60Day)
	ent.ApplyPlan(def, jan15)

	assert.Equal(t, PlanPro60Day, ent.Plan)
	assert.Empty(t, ent.Counters)
	assert.Equal(t, jan15.AddDate(0, 0, 60), ent.PeriodEnd)
	assert.Equal(t, &InterviewQuota{Limit: 10}, ent.Interview)
	assert.Equal(t, jan15, ent.PlanEventAt)

	free, _ := c.Plan(PlanFree)
	ent.ApplyPlan(free, jan15)
	assert.Nil(t, ent.Interview)
	assert.True(t, ent.PeriodEnd.IsZero())
}

func TestEntitlement_Superseded(t *testing.T) {
	c := DefaultCatalog()
	def, _ := c.Plan(PlanPro60Day)

	applied := NewEntitlement("acc-1", jan15)
	applied.ApplyPlan(def, jan15)
	applied.PlanEventAt = jan15.Add(-time.Minute)

	fresh := NewEntitlement("acc-2", jan15)

	tests := []struct {
		name   string
		ent    *Entitlement
		change PlanChange
		want   bool
	}{
		{"first change on a new account", fresh, PlanChange{Plan: PlanPro60Day, At: jan15.Add(-time.Hour)}, false},
		{"older event", applied, PlanChange{Plan: PlanFree, At: jan15.Add(-time.Hour)}, true},
		{"redelivered event", applied, PlanChange{Plan: PlanPro60Day, At: jan15.Add(-time.Minute)}, true},
		{"same second different plan", applied, PlanChange{Plan: PlanFree, At: jan15.Add(-time.Minute)}, false},
		{"update within running term", applied, PlanChange{Plan: PlanPro60Day, PeriodStart: jan15.Add(-time.Hour), At: jan15.Add(time.Hour)}, true},
		{"renewal", applied, PlanChange{Plan: PlanPro60Day, PeriodStart: jan15.AddDate(0, 0, 60), At: jan15.AddDate(0, 0, 60)}, false},
		{"newer cancellation", applied, PlanChange{Plan: PlanFree, At: jan15.Add(time.Hour)}, false},
		{"no event time", applied, PlanChange{Plan: PlanFree}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.ent.Superseded(tt.change))
		})
	}
}

func TestEntitlement_Clone(t *testing.T) {
	ent := NewEntitlement("acc-1", jan15)
	ent.Counters[FeatureNotes] = Counter{Count: 1, PeriodKey: "2024-01"}
	ent.Interview = &InterviewQuota{Count: 1, Limit: 5}

	c := ent.Clone()
	c.Counters[FeatureNotes] = Counter{Count: 9}
	c.Interview.Count = 4

	assert.Equal(t, uint64(1), ent.Counters[FeatureNotes].Count)
	assert.Equal(t, uint64(1), ent.Interview.Count)
}

func TestUsage(t *testing.T) {
	c := DefaultCatalog()
	ent := NewEntitlement("acc-1", jan15)
	ent.Counters[FeatureCodingQuiz] = Counter{Count: 1, PeriodKey: "2024-01"}
	ent.Counters[FeatureNotes] = Counter{Count: 1, PeriodKey: "2023-12"}

	usage, err := Usage(c, ent, jan15)
	require.NoError(t, err)
	require.Len(t, usage, len(Features))

	byFeature := make(map[Feature]FeatureUsage)
	for _, u := range usage {
		byFeature[u.Feature] = u
	}
	assert.Equal(t, uint64(1), byFeature[FeatureCodingQuiz].Used)
	assert.Equal(t, int64(0), byFeature[FeatureCodingQuiz].Remaining)
	assert.Equal(t, uint64(0), byFeature[FeatureNotes].Used)
	assert.Equal(t, int64(1), byFeature[FeatureNotes].Remaining)
}
