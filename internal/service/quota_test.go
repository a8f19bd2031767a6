package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ZaidMomin2003/talxify/internal/domain"
	"github.com/ZaidMomin2003/talxify/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryConsume_ConcurrentCallersNeverExceedLimit(t *testing.T) {
	tests := []struct {
		name    string
		limit   int64
		callers int
	}{
		{name: "more callers than limit", limit: 5, callers: 50},
		{name: "fewer callers than limit", limit: 20, callers: 8},
		{name: "single unit", limit: 1, callers: 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, flatCatalog(tt.limit))
			acct := e.account(t, "acc-1")

			var allowed atomic.Int64
			var wg sync.WaitGroup
			for i := 0; i < tt.callers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					d, err := e.quota.TryConsume(context.Background(), acct, domain.FeatureNotes)
					if assert.NoError(t, err) && d.Allowed {
						allowed.Add(1)
					}
				}()
			}
			wg.Wait()

			want := min(int64(tt.callers), tt.limit)
			assert.Equal(t, want, allowed.Load())
			assert.Equal(t, uint64(want), e.used(t, acct, domain.FeatureNotes))
		})
	}
}

func TestTryConsume_MonthlyRollover(t *testing.T) {
	e := newEnv(t, nil)
	acct := e.account(t, "acc-1")
	ctx := context.Background()

	d, err := e.quota.TryConsume(ctx, acct, domain.FeatureCodingQuiz)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = e.quota.TryConsume(ctx, acct, domain.FeatureCodingQuiz)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, domain.DenyLimitReached, d.Reason)

	e.clock.Set(time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC))
	assert.Zero(t, e.used(t, acct, domain.FeatureCodingQuiz))

	d, err = e.quota.TryConsume(ctx, acct, domain.FeatureCodingQuiz)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, uint64(1), d.Used)
}

func TestTryConsume_FreeToPro60Day(t *testing.T) {
	e := newEnv(t, nil)
	acct := e.account(t, "acc-1")
	ctx := context.Background()

	d, err := e.quota.TryConsume(ctx, acct, domain.FeatureInterview)
	require.NoError(t, err)
	require.True(t, d.Allowed)
	d, err = e.quota.TryConsume(ctx, acct, domain.FeatureInterview)
	require.NoError(t, err)
	require.False(t, d.Allowed)

	require.NoError(t, e.quota.SetPlan(ctx, acct, domain.PlanPro60Day, PlanSourceStripe))

	for i := 1; i <= 10; i++ {
		d, err := e.quota.TryConsume(ctx, acct, domain.FeatureInterview)
		require.NoError(t, err)
		require.True(t, d.Allowed, "interview %d", i)
		assert.Equal(t, int64(10-i), d.Remaining)
	}
	d, err = e.quota.TryConsume(ctx, acct, domain.FeatureInterview)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, domain.PlanPro60Day, d.Plan)

	// Unlimited features never write a counter.
	for i := 0; i < 3; i++ {
		d, err := e.quota.TryConsume(ctx, acct, domain.FeatureNotes)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, int64(-1), d.Remaining)
	}
	assert.Zero(t, e.used(t, acct, domain.FeatureNotes))

	// The term ends and limits fall back to free.
	e.clock.Advance(61 * 24 * time.Hour)
	report, err := e.quota.Usage(ctx, acct)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanPro60Day, report.Plan)
	assert.Equal(t, domain.PlanFree, report.EffectivePlan)

	d, err = e.quota.TryConsume(ctx, acct, domain.FeatureInterview)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, domain.PlanFree, d.Plan)
}

func TestTryConsume_FeatureNotIncluded(t *testing.T) {
	e := newEnv(t, nil)
	acct := e.account(t, "acc-1")

	d, err := e.quota.TryConsume(context.Background(), acct, domain.FeatureAIEnhancement)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, domain.DenyNotIncluded, d.Reason)

	gateErr := d.Err("test")
	assert.Equal(t, domain.EPAYMENT, domain.ErrorCode(gateErr))
	le, ok := domain.AsLimitError(gateErr)
	require.True(t, ok)
	assert.Equal(t, domain.FeatureAIEnhancement, le.Feature)
	assert.Zero(t, le.Limit)
}

func TestTryConsume_Errors(t *testing.T) {
	e := newEnv(t, nil)
	acct := e.account(t, "acc-1")

	tests := []struct {
		name     string
		account  string
		feature  domain.Feature
		wantCode string
		check    func(t *testing.T, err error)
	}{
		{
			name:     "unknown account",
			account:  "ghost",
			feature:  domain.FeatureNotes,
			wantCode: domain.ENOTFOUND,
		},
		{
			name:     "unknown feature",
			account:  acct,
			feature:  "teleport",
			wantCode: domain.EINVALID,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, domain.ErrUnknownFeature)
			},
		},
		{
			name:     "empty account",
			account:  "",
			feature:  domain.FeatureNotes,
			wantCode: domain.EINVALID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := e.quota.TryConsume(context.Background(), tt.account, tt.feature)
			require.Error(t, err)
			assert.Nil(t, d)
			assert.Equal(t, tt.wantCode, domain.ErrorCode(err))
			if tt.check != nil {
				tt.check(t, err)
			}
		})
	}
}

func TestTryConsume_RetriesTransientErrors(t *testing.T) {
	e := newEnv(t, flatCatalog(3))
	acct := e.account(t, "acc-1")

	e.store.FailNext(memory.OpUpdate, transient(), transient())

	d, err := e.quota.TryConsume(context.Background(), acct, domain.FeatureNotes)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, uint64(1), e.used(t, acct, domain.FeatureNotes))
}

func TestTryConsume_GivesUpAfterRetryBudget(t *testing.T) {
	e := newEnv(t, flatCatalog(3))
	acct := e.account(t, "acc-1")

	e.store.FailNext(memory.OpUpdate, transient(), transient(), transient(), transient())

	_, err := e.quota.TryConsume(context.Background(), acct, domain.FeatureNotes)
	require.Error(t, err)
	assert.True(t, domain.IsTransient(err))
	assert.Zero(t, e.used(t, acct, domain.FeatureNotes))
}

func TestTryConsume_DoesNotRetryPermanentErrors(t *testing.T) {
	e := newEnv(t, flatCatalog(3))
	acct := e.account(t, "acc-1")

	boom := errors.New("constraint violated")
	e.store.FailNext(memory.OpUpdate, boom, transient())

	_, err := e.quota.TryConsume(context.Background(), acct, domain.FeatureNotes)
	assert.ErrorIs(t, err, boom)

	// The queued transient error is still there, proving no second attempt ran.
	d, err := e.quota.TryConsume(context.Background(), acct, domain.FeatureNotes)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestCheck_DoesNotConsume(t *testing.T) {
	e := newEnv(t, nil)
	acct := e.account(t, "acc-1")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := e.quota.Check(ctx, acct, domain.FeatureNotes)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}
	assert.Zero(t, e.used(t, acct, domain.FeatureNotes))

	_, err := e.quota.TryConsume(ctx, acct, domain.FeatureNotes)
	require.NoError(t, err)

	d, err := e.quota.Check(ctx, acct, domain.FeatureNotes)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}

func TestSetPlan(t *testing.T) {
	e := newEnv(t, nil)
	acct := e.account(t, "acc-1")
	ctx := context.Background()

	_, err := e.quota.TryConsume(ctx, acct, domain.FeatureResumeExport)
	require.NoError(t, err)

	t.Run("resets counters and starts a term", func(t *testing.T) {
		require.NoError(t, e.quota.SetPlan(ctx, acct, domain.PlanProMonthly, PlanSourceAdmin))

		report, err := e.quota.Usage(ctx, acct)
		require.NoError(t, err)
		assert.Equal(t, domain.PlanProMonthly, report.Plan)
		assert.True(t, e.clock.Now().AddDate(0, 0, 30).Equal(report.PeriodEnd))
		assert.Zero(t, e.used(t, acct, domain.FeatureResumeExport))
	})

	t.Run("unknown plan", func(t *testing.T) {
		err := e.quota.SetPlan(ctx, acct, "platinum", PlanSourceAdmin)
		assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
	})

	t.Run("unknown account", func(t *testing.T) {
		err := e.quota.SetPlan(ctx, "ghost", domain.PlanProYearly, PlanSourceAdmin)
		assert.True(t, domain.IsNotFound(err))
	})
}

func TestApplyPlanChange_OrderedAndAppliedOnce(t *testing.T) {
	e := newEnv(t, nil)
	acct := e.account(t, "acc-1")
	ctx := context.Background()

	raised := e.clock.Now().Add(-time.Minute)
	change := domain.PlanChange{Plan: domain.PlanPro60Day, PeriodStart: raised, At: raised}

	var wg sync.WaitGroup
	var applied atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := e.quota.ApplyPlanChange(ctx, acct, change, PlanSourceStripe)
			assert.NoError(t, err)
			if ok {
				applied.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), applied.Load(), "concurrent redeliveries apply once")

	d, err := e.quota.TryConsume(ctx, acct, domain.FeatureInterview)
	require.NoError(t, err)
	require.True(t, d.Allowed)

	tests := []struct {
		name   string
		change domain.PlanChange
	}{
		{name: "redelivery", change: change},
		{name: "cancellation raised before the subscription", change: domain.PlanChange{Plan: domain.PlanFree, At: raised.Add(-time.Second)}},
		{name: "update within the running term", change: domain.PlanChange{Plan: domain.PlanPro60Day, PeriodStart: raised, At: raised.Add(time.Hour)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := e.quota.ApplyPlanChange(ctx, acct, tt.change, PlanSourceStripe)
			require.NoError(t, err)
			assert.False(t, ok)
			report, err := e.quota.Usage(ctx, acct)
			require.NoError(t, err)
			assert.Equal(t, domain.PlanPro60Day, report.Plan)
			assert.Equal(t, uint64(1), e.used(t, acct, domain.FeatureInterview))
		})
	}

	ok, err := e.quota.ApplyPlanChange(ctx, acct, domain.PlanChange{Plan: domain.PlanFree, At: raised.Add(time.Hour)}, PlanSourceStripe)
	require.NoError(t, err)
	assert.True(t, ok)

	// The subscription's creation arriving after its cancellation is stale.
	ok, err = e.quota.ApplyPlanChange(ctx, acct, change, PlanSourceStripe)
	require.NoError(t, err)
	assert.False(t, ok)
	report, err := e.quota.Usage(ctx, acct)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanFree, report.Plan)
}

func TestEnsureAccount_Idempotent(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	created, err := e.quota.EnsureAccount(ctx, "acc-1")
	require.NoError(t, err)
	assert.True(t, created)

	_, err = e.quota.TryConsume(ctx, "acc-1", domain.FeatureNotes)
	require.NoError(t, err)

	created, err = e.quota.EnsureAccount(ctx, "acc-1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, uint64(1), e.used(t, "acc-1", domain.FeatureNotes))
}
