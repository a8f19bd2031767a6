package service

import (
	"context"
	"errors"
	"testing"

	"github.com/ZaidMomin2003/talxify/internal/domain"
	"github.com/ZaidMomin2003/talxify/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startParams(acct string) StartQuizParams {
	return StartQuizParams{AccountID: acct, Topic: "Dynamic Programming", Difficulty: "medium", QuestionCount: 3}
}

func TestQuizStart_ResumesInsteadOfCharging(t *testing.T) {
	e := newEnv(t, flatCatalog(5))
	acct := e.account(t, "acc-1")
	ctx := context.Background()

	d, err := e.quiz.Start(ctx, startParams(acct))
	require.NoError(t, err)
	assert.Equal(t, domain.SessionActive, d.State)
	assert.Len(t, d.Questions, 3)
	assert.Len(t, d.Answers, 3)

	again := startParams(acct)
	again.Topic = "  dynamic   PROGRAMMING"
	resumed, err := e.quiz.Start(ctx, again)
	require.NoError(t, err)
	assert.Equal(t, d.RecordID, resumed.RecordID)

	assert.Equal(t, uint64(1), e.used(t, acct, domain.FeatureCodingQuiz))
	assert.Equal(t, 1, e.gen.CallCount())
}

func TestQuizStart_DeniedAtLimit(t *testing.T) {
	e := newEnv(t, nil)
	acct := e.account(t, "acc-1")
	ctx := context.Background()

	_, err := e.quiz.Start(ctx, startParams(acct))
	require.NoError(t, err)

	other := startParams(acct)
	other.Topic = "Graphs"
	denied, err := e.quiz.Start(ctx, other)
	le, ok := domain.AsLimitError(err)
	require.True(t, ok)
	assert.Equal(t, domain.FeatureCodingQuiz, le.Feature)

	require.NotNil(t, denied)
	assert.Equal(t, domain.SessionDenied, denied.State)
	assert.Empty(t, denied.Questions)
	assert.Equal(t, 1, e.gen.CallCount())

	_, err = e.drafts.Load(ctx, denied.Key)
	assert.True(t, domain.IsNotFound(err), "a denied session leaves no draft")
}

func TestQuiz_DraftSurvivesRestart(t *testing.T) {
	e := newEnv(t, nil)
	acct := e.account(t, "acc-1")
	ctx := context.Background()

	d, err := e.quiz.Start(ctx, startParams(acct))
	require.NoError(t, err)
	_, err = e.quiz.Answer(ctx, d.Key, 0, "memoize the recursion")
	require.NoError(t, err)
	_, err = e.quiz.Seek(ctx, d.Key, 2)
	require.NoError(t, err)

	// New draft store and service over the same directory.
	restarted := e.newQuiz(newDraftStore(t, e.dir))
	got, err := restarted.Start(ctx, startParams(acct))
	require.NoError(t, err)
	assert.Equal(t, d.RecordID, got.RecordID)
	assert.Equal(t, "memoize the recursion", got.Answers[0])
	assert.Equal(t, 2, got.Cursor)
	assert.Equal(t, uint64(1), e.used(t, acct, domain.FeatureCodingQuiz))
}

func TestQuiz_AnswerValidation(t *testing.T) {
	e := newEnv(t, nil)
	acct := e.account(t, "acc-1")
	ctx := context.Background()

	d, err := e.quiz.Start(ctx, startParams(acct))
	require.NoError(t, err)

	tests := []struct {
		name  string
		index int
	}{
		{name: "negative index", index: -1},
		{name: "past the end", index: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.quiz.Answer(ctx, d.Key, tt.index, "x")
			assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
		})
	}

	_, err = e.quiz.Answer(ctx, domain.NewDraftKey(acct, "never started", "easy", 1), 0, "x")
	assert.True(t, domain.IsNotFound(err))
}

func TestQuizSubmit_RecordsAndSchedulesGrading(t *testing.T) {
	e := newEnv(t, nil)
	acct := e.account(t, "acc-1")
	ctx := context.Background()

	d, err := e.quiz.Start(ctx, startParams(acct))
	require.NoError(t, err)
	_, err = e.quiz.Answer(ctx, d.Key, 1, "bottom-up table")
	require.NoError(t, err)

	rec, err := e.quiz.Submit(ctx, d.Key)
	require.NoError(t, err)
	assert.Equal(t, d.RecordID, rec.ID)
	assert.True(t, rec.Pending())
	assert.Equal(t, "bottom-up table", rec.Quiz.Answers[1])
	assert.Equal(t, "dynamic programming", rec.Quiz.Topic)

	require.Equal(t, 1, e.jobs.count())
	assert.Equal(t, worker.JobTypeGradeQuiz, e.jobs.jobs[0].jobType)
	assert.Equal(t, worker.GradeQuizPayload{AccountID: acct, RecordID: d.RecordID, Draft: d.Key}, e.jobs.jobs[0].payload)

	_, err = e.drafts.Load(ctx, d.Key)
	assert.True(t, domain.IsNotFound(err), "draft must be gone after submit")
}

func TestQuizSubmit_RetryAfterEnqueueFailure(t *testing.T) {
	e := newEnv(t, nil)
	acct := e.account(t, "acc-1")
	ctx := context.Background()

	d, err := e.quiz.Start(ctx, startParams(acct))
	require.NoError(t, err)

	e.jobs.setErr(errors.New("queue down"))
	_, err = e.quiz.Submit(ctx, d.Key)
	require.True(t, domain.IsTransient(err))

	saved, err := e.drafts.Load(ctx, d.Key)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionSubmitting, saved.State)

	// Further edits are refused once submission began.
	_, err = e.quiz.Answer(ctx, d.Key, 0, "late")
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))

	e.jobs.setErr(nil)
	_, err = e.quiz.Submit(ctx, d.Key)
	require.NoError(t, err)

	records, err := e.activity.Read(ctx, acct, domain.RecordQuizResult)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestQuizSubmit_FinalizedDraftReplays(t *testing.T) {
	e := newEnv(t, flatCatalog(5))
	acct := e.account(t, "acc-1")
	ctx := context.Background()

	d, err := e.quiz.Start(ctx, startParams(acct))
	require.NoError(t, err)
	first, err := e.quiz.Submit(ctx, d.Key)
	require.NoError(t, err)

	// Stand-in for a draft whose discard failed after the session finalized.
	leftover := &domain.QuizDraft{Key: d.Key, RecordID: d.RecordID, State: domain.SessionFinalized}
	require.NoError(t, e.drafts.Save(ctx, leftover))

	_, err = e.quiz.Answer(ctx, d.Key, 0, "late")
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))

	replayed, err := e.quiz.Submit(ctx, d.Key)
	require.NoError(t, err)
	assert.Equal(t, first.ID, replayed.ID)
	assert.Equal(t, 1, e.jobs.count(), "replay must not schedule grading twice")

	_, err = e.drafts.Load(ctx, d.Key)
	assert.True(t, domain.IsNotFound(err))

	// A finalized leftover never resumes; the same configuration starts afresh.
	require.NoError(t, e.drafts.Save(ctx, leftover))
	next, err := e.quiz.Start(ctx, startParams(acct))
	require.NoError(t, err)
	assert.NotEqual(t, d.RecordID, next.RecordID)
	assert.Equal(t, domain.SessionActive, next.State)
	assert.Equal(t, uint64(2), e.used(t, acct, domain.FeatureCodingQuiz))
}

func TestQuizCompleteGrading_IdempotentAndDiscardsDraft(t *testing.T) {
	e := newEnv(t, nil)
	acct := e.account(t, "acc-1")
	ctx := context.Background()

	d, err := e.quiz.Start(ctx, startParams(acct))
	require.NoError(t, err)

	_, err = e.quiz.Submit(ctx, d.Key)
	require.NoError(t, err)

	// Stand-in for a draft whose discard failed during submit.
	require.NoError(t, e.drafts.Save(ctx, &domain.QuizDraft{Key: d.Key, RecordID: d.RecordID, State: domain.SessionSubmitting}))

	analysis := domain.Analysis{Score: 67, Feedback: "Two of three correct."}
	require.NoError(t, e.quiz.CompleteGrading(ctx, d.Key, d.RecordID, analysis))
	require.NoError(t, e.quiz.CompleteGrading(ctx, d.Key, d.RecordID, domain.Analysis{Score: 5}))

	rec, err := e.activity.Get(ctx, acct, d.RecordID)
	require.NoError(t, err)
	assert.Equal(t, domain.AnalysisComplete, rec.Analysis.Status)
	assert.Equal(t, 67, rec.Analysis.Score)

	_, err = e.drafts.Load(ctx, d.Key)
	assert.True(t, domain.IsNotFound(err))
}

func TestQuizDiscard_DoesNotRefund(t *testing.T) {
	e := newEnv(t, nil)
	acct := e.account(t, "acc-1")
	ctx := context.Background()

	d, err := e.quiz.Start(ctx, startParams(acct))
	require.NoError(t, err)
	require.NoError(t, e.quiz.Discard(ctx, d.Key))

	_, err = e.quiz.Start(ctx, startParams(acct))
	assert.Equal(t, domain.EPAYMENT, domain.ErrorCode(err))
	assert.Equal(t, uint64(1), e.used(t, acct, domain.FeatureCodingQuiz))
}
