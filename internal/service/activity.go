package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/ZaidMomin2003/talxify/internal/domain"
	"github.com/ZaidMomin2003/talxify/internal/metrics"
	"github.com/google/uuid"
)

// ActivityStoreWithAccounts is the persistence the activity ledger needs.
type ActivityStoreWithAccounts interface {
	domain.ActivityStore
	domain.AccountStore
	domain.ReservationStore
}

// =============================================================================
// Interface Definition
// =============================================================================

// ActivityService is the per-account append-only log of completed work.
type ActivityService interface {
	// Append adds rec. A record whose id already exists is left as is and
	// inserted is false.
	Append(ctx context.Context, rec *domain.ActivityRecord) (inserted bool, err error)

	// Finalize completes a pending analysis. A second call for the same
	// record returns AlreadyFinalized.
	Finalize(ctx context.Context, accountID, recordID string, analysis domain.Analysis) error

	// Read returns the account's records newest first, optionally filtered
	// by kind.
	Read(ctx context.Context, accountID string, kinds ...domain.RecordKind) ([]*domain.ActivityRecord, error)

	// Get returns one record.
	Get(ctx context.Context, accountID, recordID string) (*domain.ActivityRecord, error)

	// DeleteAccount removes the entitlement and every record of the account.
	DeleteAccount(ctx context.Context, accountID string) error

	// Reserve stores the record id a charged interview will be logged under.
	Reserve(ctx context.Context, res *domain.InterviewReservation) error

	// Claim takes the reservation for token. claimed is false when another
	// recording holds it. ENOTFOUND when the id was never reserved.
	Claim(ctx context.Context, accountID, recordID, token string) (res *domain.InterviewReservation, claimed bool, err error)

	// Release gives back a claim after a failed recording.
	Release(ctx context.Context, accountID, recordID, token string) error
}

// NewRecordID returns an id for a new activity record.
func NewRecordID() string {
	return uuid.NewString()
}

// =============================================================================
// Implementation
// =============================================================================

type activityService struct {
	store  ActivityStoreWithAccounts
	retry  RetryConfig
	now    func() time.Time
	logger *slog.Logger
}

// NewActivityService creates a new ActivityService.
func NewActivityService(store ActivityStoreWithAccounts, retry RetryConfig, now func() time.Time, logger *slog.Logger) ActivityService {
	if now == nil {
		now = time.Now
	}
	return &activityService{
		store:  store,
		retry:  retry,
		now:    now,
		logger: logger,
	}
}

// Append retries transient failures. The insert is keyed by record id, so a
// retry after an ambiguous failure cannot duplicate the record.
func (s *activityService) Append(ctx context.Context, rec *domain.ActivityRecord) (inserted bool, err error) {
	const op = "activity.append"

	if rec == nil {
		return false, domain.Invalid(op, "record is required")
	}
	defer func() { metrics.LedgerAppended(string(rec.Kind), inserted, err) }()

	if rec.AccountID == "" || rec.ID == "" {
		return false, domain.Invalid(op, "account id and record id are required")
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now().UTC()
	}
	if rec.Analysis.Status == "" {
		rec.Analysis.Status = domain.AnalysisNone
	}
	if err := rec.Validate(); err != nil {
		return false, err
	}

	err = withRetry(ctx, s.retry, s.logger, op, func(ctx context.Context) error {
		var err error
		inserted, err = s.store.AppendActivity(ctx, rec)
		return err
	})
	if err != nil {
		s.logger.Error("activity append failed", "op", op, "account_id", rec.AccountID, "record_id", rec.ID, "error", err)
		return false, err
	}

	if !inserted {
		s.logger.Debug("duplicate activity record ignored", "account_id", rec.AccountID, "record_id", rec.ID)
	}
	return inserted, nil
}

// Finalize stamps the completion time and hands off to the store's
// conditional update.
func (s *activityService) Finalize(ctx context.Context, accountID, recordID string, analysis domain.Analysis) (err error) {
	const op = "activity.finalize"

	defer func() {
		switch {
		case err == nil:
			metrics.LedgerFinalized("finalized")
		case domain.IsAlreadyFinalized(err):
			metrics.LedgerFinalized("already_finalized")
		default:
			metrics.LedgerFinalized("error")
		}
	}()

	if accountID == "" || recordID == "" {
		return domain.Invalid(op, "account id and record id are required")
	}
	if analysis.Score < 0 || analysis.Score > 100 {
		return domain.Invalid(op, "score must be between 0 and 100")
	}

	completed := s.now().UTC()
	analysis.Status = domain.AnalysisComplete
	analysis.CompletedAt = &completed

	err = withRetry(ctx, s.retry, s.logger, op, func(ctx context.Context) error {
		return s.store.FinalizeActivity(ctx, accountID, recordID, analysis)
	})
	if err != nil {
		if !domain.IsAlreadyFinalized(err) {
			s.logger.Error("activity finalize failed", "op", op, "account_id", accountID, "record_id", recordID, "error", err)
		}
		return err
	}

	s.logger.Info("activity finalized", "account_id", accountID, "record_id", recordID, "score", analysis.Score)
	return nil
}

// Read sorts here; stores make no ordering promise.
func (s *activityService) Read(ctx context.Context, accountID string, kinds ...domain.RecordKind) ([]*domain.ActivityRecord, error) {
	const op = "activity.read"

	if accountID == "" {
		return nil, domain.Invalid(op, "account id is required")
	}
	for _, k := range kinds {
		if !k.Valid() {
			return nil, domain.Errorf(domain.EINVALID, op, "unknown record kind %q", k)
		}
	}

	var records []*domain.ActivityRecord
	err := withRetry(ctx, s.retry, s.logger, op, func(ctx context.Context) error {
		var err error
		records, err = s.store.ListActivity(ctx, accountID, kinds)
		return err
	})
	if err != nil {
		return nil, err
	}

	domain.SortByTimestampDesc(records)
	return records, nil
}

// Get returns one record.
func (s *activityService) Get(ctx context.Context, accountID, recordID string) (*domain.ActivityRecord, error) {
	const op = "activity.get"

	if accountID == "" || recordID == "" {
		return nil, domain.Invalid(op, "account id and record id are required")
	}

	var rec *domain.ActivityRecord
	err := withRetry(ctx, s.retry, s.logger, op, func(ctx context.Context) error {
		var err error
		rec, err = s.store.GetActivity(ctx, accountID, recordID)
		return err
	})
	return rec, err
}

// DeleteAccount removes the account's entitlement and ledger together.
func (s *activityService) DeleteAccount(ctx context.Context, accountID string) error {
	const op = "activity.delete_account"

	if accountID == "" {
		return domain.Invalid(op, "account id is required")
	}

	err := withRetry(ctx, s.retry, s.logger, op, func(ctx context.Context) error {
		return s.store.DeleteAccount(ctx, accountID)
	})
	if err != nil {
		return err
	}

	s.logger.Info("account deleted", "account_id", accountID)
	return nil
}

// =============================================================================
// Interview reservations
// =============================================================================

func (s *activityService) Reserve(ctx context.Context, res *domain.InterviewReservation) error {
	const op = "activity.reserve"

	if res == nil || res.AccountID == "" || res.RecordID == "" {
		return domain.Invalid(op, "account id and record id are required")
	}
	if res.ReservedAt.IsZero() {
		res.ReservedAt = s.now().UTC()
	}

	err := withRetry(ctx, s.retry, s.logger, op, func(ctx context.Context) error {
		return s.store.CreateReservation(ctx, res)
	})
	if err != nil {
		s.logger.Error("interview reservation failed", "op", op, "account_id", res.AccountID, "record_id", res.RecordID, "error", err)
		return err
	}
	return nil
}

// Claim retries are safe because a claim by the same token succeeds again.
func (s *activityService) Claim(ctx context.Context, accountID, recordID, token string) (*domain.InterviewReservation, bool, error) {
	const op = "activity.claim"

	if accountID == "" || recordID == "" || token == "" {
		return nil, false, domain.Invalid(op, "account id, record id and token are required")
	}

	var (
		res     *domain.InterviewReservation
		claimed bool
	)
	at := s.now().UTC()
	err := withRetry(ctx, s.retry, s.logger, op, func(ctx context.Context) error {
		var err error
		res, claimed, err = s.store.ClaimReservation(ctx, accountID, recordID, token, at)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return res, claimed, nil
}

func (s *activityService) Release(ctx context.Context, accountID, recordID, token string) error {
	const op = "activity.release"

	return withRetry(ctx, s.retry, s.logger, op, func(ctx context.Context) error {
		return s.store.ReleaseReservation(ctx, accountID, recordID, token)
	})
}
