package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ZaidMomin2003/talxify/internal/ai/mock"
	"github.com/ZaidMomin2003/talxify/internal/domain"
	"github.com/ZaidMomin2003/talxify/internal/draft"
	"github.com/ZaidMomin2003/talxify/internal/repository/memory"
	"github.com/ZaidMomin2003/talxify/internal/storage"
	"github.com/stretchr/testify/require"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

var testRetry = RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(t time.Time) *clock { return &clock{now: t} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeEnqueuer records scheduled jobs.
type fakeEnqueuer struct {
	mu   sync.Mutex
	jobs []enqueued
	err  error
}

type enqueued struct {
	jobType string
	payload any
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, jobType string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, enqueued{jobType: jobType, payload: payload})
	return nil
}

func (f *fakeEnqueuer) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeEnqueuer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jobs)
}

// env wires every service over one in-memory store.
type env struct {
	store    *memory.Store
	clock    *clock
	gen      *mock.Provider
	jobs     *fakeEnqueuer
	quota    QuotaService
	activity ActivityService
	gate     *Gate
	drafts   domain.DraftStore
	quiz     QuizService
	dir      string
}

func newEnv(t *testing.T, catalog *domain.Catalog) *env {
	t.Helper()

	e := &env{
		store: memory.New(),
		clock: newClock(time.Date(2024, time.January, 15, 12, 0, 0, 0, time.UTC)),
		gen:   mock.New(testLogger),
		jobs:  &fakeEnqueuer{},
		dir:   t.TempDir(),
	}
	e.quota = NewQuotaService(e.store, QuotaConfig{Catalog: catalog, Retry: testRetry, Now: e.clock.Now}, testLogger)
	e.activity = NewActivityService(e.store, testRetry, e.clock.Now, testLogger)
	e.gate = NewGate(e.quota, e.activity, e.gen, e.jobs, testLogger)
	e.gate.now = e.clock.Now
	e.drafts = newDraftStore(t, e.dir)
	e.quiz = e.newQuiz(e.drafts)
	return e
}

func (e *env) newQuiz(drafts domain.DraftStore) QuizService {
	q := NewQuizService(e.quota, e.activity, drafts, e.gen, e.jobs, testRetry, testLogger)
	q.(*quizService).now = e.clock.Now
	return q
}

func newDraftStore(t *testing.T, dir string) domain.DraftStore {
	t.Helper()
	s, err := storage.NewLocalStorage(storage.LocalConfig{BasePath: dir}, testLogger)
	require.NoError(t, err)
	return draft.NewBlobStore(s, testLogger)
}

func (e *env) account(t *testing.T, id string) string {
	t.Helper()
	_, err := e.quota.EnsureAccount(context.Background(), id)
	require.NoError(t, err)
	return id
}

func (e *env) used(t *testing.T, accountID string, f domain.Feature) uint64 {
	t.Helper()
	report, err := e.quota.Usage(context.Background(), accountID)
	require.NoError(t, err)
	for _, u := range report.Features {
		if u.Feature == f {
			return u.Used
		}
	}
	t.Fatalf("feature %s missing from usage", f)
	return 0
}

// flatCatalog grants the same fixed limit for every feature on the free plan.
func flatCatalog(n int64) *domain.Catalog {
	limits := make(map[domain.Feature]domain.FeatureLimit, len(domain.Features))
	for _, f := range domain.Features {
		limits[f] = domain.FeatureLimit{Limit: domain.Fixed(n), Period: domain.PeriodMonthly}
	}
	return domain.NewCatalog(domain.PlanDefinition{ID: domain.PlanFree, Name: "Free", Limits: limits})
}

func transient() error {
	return domain.Unavailable(context.DeadlineExceeded, "test", "store timeout")
}
