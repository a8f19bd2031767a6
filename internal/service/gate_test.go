package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/ZaidMomin2003/talxify/internal/ai"
	"github.com/ZaidMomin2003/talxify/internal/domain"
	"github.com/ZaidMomin2003/talxify/internal/repository/memory"
	"github.com/ZaidMomin2003/talxify/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateNotes_ChargesThenRecords(t *testing.T) {
	e := newEnv(t, nil)
	acct := e.account(t, "acc-1")
	ctx := context.Background()

	rec, err := e.gate.GenerateNotes(ctx, acct, "  Binary Trees ", "beginner")
	require.NoError(t, err)
	assert.Equal(t, domain.RecordNoteGeneration, rec.Kind)
	assert.Equal(t, "Binary Trees", rec.Note.Topic)
	assert.Contains(t, rec.Note.Content, "Binary Trees")

	records, err := e.activity.Read(ctx, acct)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, rec.ID, records[0].ID)

	// Free plan allows one note per month.
	_, err = e.gate.GenerateNotes(ctx, acct, "Heaps", "")
	require.Error(t, err)
	assert.Equal(t, domain.EPAYMENT, domain.ErrorCode(err))
	le, ok := domain.AsLimitError(err)
	require.True(t, ok)
	assert.Equal(t, domain.FeatureNotes, le.Feature)
	assert.Equal(t, int64(1), le.Limit)
	assert.Equal(t, int64(1), le.Used)

	assert.Equal(t, 1, e.gen.CallCount(), "a denied request must not reach the generator")
}

func TestRun_ChargedButNotSaved(t *testing.T) {
	e := newEnv(t, nil)
	acct := e.account(t, "acc-1")

	e.store.FailNext(memory.OpAppend, errors.New("ledger write rejected"))

	_, err := e.gate.GenerateNotes(context.Background(), acct, "Tries", "")
	require.Error(t, err)
	assert.Equal(t, domain.EPARTIAL, domain.ErrorCode(err))
	assert.Contains(t, domain.ErrorMessage(err), "notes")

	// No refund: the unit stays consumed.
	assert.Equal(t, uint64(1), e.used(t, acct, domain.FeatureNotes))
}

func TestRun_GenerationFailureIsNotRefunded(t *testing.T) {
	e := newEnv(t, nil)
	acct := e.account(t, "acc-1")

	e.gen.SetError(ai.EAIUnavailable)

	_, err := e.gate.GenerateQuestions(context.Background(), acct, "graphs", "medium", 5)
	assert.ErrorIs(t, err, ai.EAIUnavailable)
	assert.Equal(t, uint64(1), e.used(t, acct, domain.FeatureQuestionGenerator))
}

func TestRun_CancellationIsNotRefunded(t *testing.T) {
	e := newEnv(t, nil)
	acct := e.account(t, "acc-1")

	ctx, cancel := context.WithCancel(context.Background())
	err := e.gate.ExportResume(ctx, acct, func(ctx context.Context) error {
		cancel()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, uint64(1), e.used(t, acct, domain.FeatureResumeExport))
}

func TestEnhanceResume_NotIncludedOnFree(t *testing.T) {
	e := newEnv(t, nil)
	acct := e.account(t, "acc-1")
	ctx := context.Background()

	_, err := e.gate.EnhanceResume(ctx, acct, "Built things.")
	le, ok := domain.AsLimitError(err)
	require.True(t, ok)
	assert.Equal(t, domain.DenyNotIncluded, le.Reason)
	assert.Zero(t, e.gen.CallCount())

	require.NoError(t, e.quota.SetPlan(ctx, acct, domain.PlanProMonthly, PlanSourceAdmin))
	out, err := e.gate.EnhanceResume(ctx, acct, "Built things.")
	require.NoError(t, err)
	assert.Equal(t, "Built things.", out)
}

func TestGate_ValidationDoesNotCharge(t *testing.T) {
	e := newEnv(t, nil)
	acct := e.account(t, "acc-1")
	ctx := context.Background()

	tests := []struct {
		name    string
		run     func() error
		field   string
		feature domain.Feature
	}{
		{
			name: "question count zero",
			run: func() error {
				_, err := e.gate.GenerateQuestions(ctx, acct, "graphs", "medium", 0)
				return err
			},
			field:   "count",
			feature: domain.FeatureQuestionGenerator,
		},
		{
			name: "unknown difficulty",
			run: func() error {
				_, err := e.gate.GenerateQuestions(ctx, acct, "graphs", "insane", 3)
				return err
			},
			field:   "difficulty",
			feature: domain.FeatureQuestionGenerator,
		},
		{
			name: "empty topic",
			run: func() error {
				_, err := e.gate.GenerateNotes(ctx, acct, "   ", "")
				return err
			},
			field:   "topic",
			feature: domain.FeatureNotes,
		},
		{
			name: "empty role",
			run: func() error {
				_, err := e.gate.StartInterview(ctx, acct, "", "mid")
				return err
			},
			field:   "role",
			feature: domain.FeatureInterview,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			var ve *domain.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Contains(t, ve.Fields, tt.field)
			assert.Zero(t, e.used(t, acct, tt.feature))
		})
	}
}

func TestInterview_StartAndRecord(t *testing.T) {
	e := newEnv(t, nil)
	acct := e.account(t, "acc-1")
	ctx := context.Background()

	session, err := e.gate.StartInterview(ctx, acct, "Backend Engineer", "mid")
	require.NoError(t, err)
	assert.NotEmpty(t, session.RecordID)
	assert.Contains(t, session.Briefing, "Backend Engineer")

	// Role and level come from what was charged, not from the client.
	result := domain.InterviewResult{Role: "Staff Engineer", Level: "staff", Transcript: []string{"Q: hi", "A: hello"}, DurationS: 900}

	rec, err := e.gate.RecordInterview(ctx, acct, session.RecordID, result)
	require.NoError(t, err)
	assert.True(t, rec.Pending())
	assert.Equal(t, "Backend Engineer", rec.Interview.Role)
	assert.Equal(t, "mid", rec.Interview.Level)
	require.Equal(t, 1, e.jobs.count())
	assert.Equal(t, worker.JobTypeAnalyzeInterview, e.jobs.jobs[0].jobType)
	assert.Equal(t, worker.AnalyzeInterviewPayload{AccountID: acct, RecordID: session.RecordID}, e.jobs.jobs[0].payload)

	// A retry after a lost response returns the stored record and schedules
	// nothing new.
	again, err := e.gate.RecordInterview(ctx, acct, session.RecordID, result)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, again.ID)
	assert.Equal(t, 1, e.jobs.count())
	records, err := e.activity.Read(ctx, acct, domain.RecordInterviewResult)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	// Free plan: one interview per term.
	_, err = e.gate.StartInterview(ctx, acct, "Backend Engineer", "mid")
	assert.Equal(t, domain.EPAYMENT, domain.ErrorCode(err))
}

func TestRecordInterview_RejectsUnreservedIDs(t *testing.T) {
	e := newEnv(t, nil)
	acct := e.account(t, "acc-1")
	other := e.account(t, "acc-2")
	ctx := context.Background()
	result := domain.InterviewResult{Role: "SRE", Transcript: []string{"..."}}

	session, err := e.gate.StartInterview(ctx, acct, "SRE", "")
	require.NoError(t, err)
	_, err = e.gate.StartInterview(ctx, acct, "SRE", "")
	require.Equal(t, domain.EPAYMENT, domain.ErrorCode(err))

	for i := 0; i < 5; i++ {
		_, err := e.gate.RecordInterview(ctx, acct, fmt.Sprintf("made-up-%d", i), result)
		assert.True(t, domain.IsNotFound(err), "id %d", i)
	}

	// A reservation belongs to the account that paid for it.
	_, err = e.gate.RecordInterview(ctx, other, session.RecordID, result)
	assert.True(t, domain.IsNotFound(err))

	assert.Zero(t, e.jobs.count())
	records, err := e.activity.Read(ctx, acct)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, uint64(1), e.used(t, acct, domain.FeatureInterview))
}

func TestRecordInterview_ConcurrentCallsRecordOnce(t *testing.T) {
	e := newEnv(t, nil)
	acct := e.account(t, "acc-1")
	ctx := context.Background()
	result := domain.InterviewResult{Transcript: []string{"..."}}

	session, err := e.gate.StartInterview(ctx, acct, "SRE", "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.gate.RecordInterview(ctx, acct, session.RecordID, result)
			if err != nil {
				assert.Equal(t, domain.ECONFLICT, domain.ErrorCode(err))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, e.jobs.count())
	records, err := e.activity.Read(ctx, acct, domain.RecordInterviewResult)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestRecordInterview_Failures(t *testing.T) {
	e := newEnv(t, flatCatalog(10))
	acct := e.account(t, "acc-1")
	ctx := context.Background()
	result := domain.InterviewResult{Transcript: []string{"..."}}

	start := func(t *testing.T) string {
		t.Helper()
		session, err := e.gate.StartInterview(ctx, acct, "SRE", "")
		require.NoError(t, err)
		return session.RecordID
	}

	t.Run("ledger failure is charged-not-saved", func(t *testing.T) {
		id := start(t)
		e.store.FailNext(memory.OpAppend, errors.New("rejected"))
		_, err := e.gate.RecordInterview(ctx, acct, id, result)
		assert.Equal(t, domain.EPARTIAL, domain.ErrorCode(err))

		// The claim was handed back, so the client can retry.
		_, err = e.gate.RecordInterview(ctx, acct, id, result)
		require.NoError(t, err)
	})

	t.Run("enqueue failure is retryable", func(t *testing.T) {
		id := start(t)
		before := e.jobs.count()

		e.jobs.setErr(errors.New("queue down"))
		_, err := e.gate.RecordInterview(ctx, acct, id, result)
		assert.True(t, domain.IsTransient(err))

		e.jobs.setErr(nil)
		_, err = e.gate.RecordInterview(ctx, acct, id, result)
		require.NoError(t, err)
		assert.Equal(t, before+1, e.jobs.count())
	})

	t.Run("reservation failure is charged-not-saved", func(t *testing.T) {
		e.store.FailNext(memory.OpReserve, errors.New("rejected"))
		_, err := e.gate.StartInterview(ctx, acct, "SRE", "")
		assert.Equal(t, domain.EPARTIAL, domain.ErrorCode(err))
	})

	t.Run("empty transcript", func(t *testing.T) {
		_, err := e.gate.RecordInterview(ctx, acct, start(t), domain.InterviewResult{Role: "SRE"})
		var ve *domain.ValidationError
		assert.ErrorAs(t, err, &ve)
	})
}

type stubRenderer struct {
	err   error
	calls int
}

func (r *stubRenderer) Render(_ context.Context, doc *domain.Resume, w io.Writer) (int64, error) {
	r.calls++
	if r.err != nil {
		return 0, r.err
	}
	n, err := io.WriteString(w, "resume:"+doc.Name)
	return int64(n), err
}

func TestRenderResume(t *testing.T) {
	e := newEnv(t, nil)
	acct := e.account(t, "acc-1")
	ctx := context.Background()

	t.Run("invalid resume is not charged", func(t *testing.T) {
		r := &stubRenderer{}
		err := e.gate.RenderResume(ctx, acct, &domain.Resume{Email: "not-an-email"}, r, io.Discard)

		var ve *domain.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Contains(t, ve.Fields, "name")
		assert.Contains(t, ve.Fields, "email")
		assert.Zero(t, r.calls)
		assert.Zero(t, e.used(t, acct, domain.FeatureResumeExport))
	})

	t.Run("render failure keeps the charge", func(t *testing.T) {
		r := &stubRenderer{err: errors.New("layout failed")}
		err := e.gate.RenderResume(ctx, acct, &domain.Resume{Name: "Ada"}, r, io.Discard)
		require.Error(t, err)
		assert.Equal(t, uint64(1), e.used(t, acct, domain.FeatureResumeExport))
	})

	t.Run("free plan allows one export", func(t *testing.T) {
		r := &stubRenderer{}
		var buf bytes.Buffer
		err := e.gate.RenderResume(ctx, acct, &domain.Resume{Name: "Ada"}, r, &buf)
		assert.Equal(t, domain.EPAYMENT, domain.ErrorCode(err))
		assert.Zero(t, r.calls)
		assert.Zero(t, buf.Len())
	})
}

func TestRenderResume_WritesDocument(t *testing.T) {
	e := newEnv(t, nil)
	acct := e.account(t, "acc-1")

	var buf bytes.Buffer
	err := e.gate.RenderResume(context.Background(), acct, &domain.Resume{Name: "Ada"}, &stubRenderer{}, &buf)
	require.NoError(t, err)
	assert.Equal(t, "resume:Ada", buf.String())
}
