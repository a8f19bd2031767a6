package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ZaidMomin2003/talxify/internal/domain"
	"github.com/sqlc-dev/pqtype"
)

// Store implements the domain store interfaces on Postgres.
//
// Entitlement updates take a row lock with SELECT ... FOR UPDATE so that
// concurrent read-modify-write cycles on one account serialize in the
// database. Ledger appends and finalizes are single conditional statements.
type Store struct {
	db      *sql.DB
	queries *Queries
}

// NewStore creates a Store backed by db.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, queries: New(db)}
}

// Queries exposes the underlying queries for the job queue.
func (s *Store) Queries() *Queries {
	return s.queries
}

var (
	_ domain.EntitlementStore = (*Store)(nil)
	_ domain.ActivityStore    = (*Store)(nil)
	_ domain.AccountStore     = (*Store)(nil)
	_ domain.ReservationStore = (*Store)(nil)
)

// passDomain returns err unchanged when it already carries a domain code,
// otherwise it classifies it as a database failure.
func passDomain(err error, op, message string) error {
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	return classify(err, op, message)
}

// =============================================================================
// Entitlements
// =============================================================================

// CreateEntitlement inserts ent unless the account already exists.
func (s *Store) CreateEntitlement(ctx context.Context, ent *domain.Entitlement) (bool, error) {
	const op = "entitlement.create"

	row, err := entitlementRow(ent)
	if err != nil {
		return false, domain.Internal(err, op, "failed to encode entitlement")
	}

	n, err := s.queries.CreateEntitlement(ctx, CreateEntitlementParams(row))
	if err != nil {
		return false, classify(err, op, "failed to create entitlement")
	}
	return n > 0, nil
}

// GetEntitlement returns a snapshot of the account's entitlement.
func (s *Store) GetEntitlement(ctx context.Context, accountID string) (*domain.Entitlement, error) {
	const op = "entitlement.get"

	row, err := s.queries.GetEntitlement(ctx, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.AccountNotFound(op, accountID)
		}
		return nil, classify(err, op, "failed to get entitlement")
	}

	ent, err := toDomainEntitlement(row)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to decode entitlement")
	}
	return ent, nil
}

// UpdateEntitlement runs fn against the locked row and writes the result when
// fn reports a change.
func (s *Store) UpdateEntitlement(ctx context.Context, accountID string, fn func(*domain.Entitlement) (bool, error)) error {
	const op = "entitlement.update"

	err := WithTx(ctx, s.db, nil, func(q *Queries) error {
		row, err := q.GetEntitlementForUpdate(ctx, accountID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.AccountNotFound(op, accountID)
			}
			return err
		}

		ent, err := toDomainEntitlement(row)
		if err != nil {
			return domain.Internal(err, op, "failed to decode entitlement")
		}

		changed, err := fn(ent)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}

		updated, err := entitlementRow(ent)
		if err != nil {
			return domain.Internal(err, op, "failed to encode entitlement")
		}
		return q.UpdateEntitlement(ctx, UpdateEntitlementParams(updated))
	})
	if err != nil {
		return passDomain(err, op, "failed to update entitlement")
	}
	return nil
}

// entitlementFields mirrors the writable columns of both create and update.
type entitlementFields struct {
	AccountID   string
	Plan        string
	Status      string
	PeriodStart time.Time
	PeriodEnd   sql.NullTime
	Counters    json.RawMessage
	Interview   pqtype.NullRawMessage
	UpdatedAt   time.Time
	PlanEventAt sql.NullTime
}

func entitlementRow(ent *domain.Entitlement) (entitlementFields, error) {
	counters := ent.Counters
	if counters == nil {
		counters = map[domain.Feature]domain.Counter{}
	}
	countersJSON, err := json.Marshal(counters)
	if err != nil {
		return entitlementFields{}, fmt.Errorf("marshal counters: %w", err)
	}

	var interview pqtype.NullRawMessage
	if ent.Interview != nil {
		b, err := json.Marshal(ent.Interview)
		if err != nil {
			return entitlementFields{}, fmt.Errorf("marshal interview quota: %w", err)
		}
		interview = pqtype.NullRawMessage{RawMessage: b, Valid: true}
	}

	return entitlementFields{
		AccountID:   ent.AccountID,
		Plan:        string(ent.Plan),
		Status:      string(ent.Status),
		PeriodStart: ent.PeriodStart,
		PeriodEnd:   sql.NullTime{Time: ent.PeriodEnd, Valid: !ent.PeriodEnd.IsZero()},
		Counters:    countersJSON,
		Interview:   interview,
		UpdatedAt:   ent.UpdatedAt,
		PlanEventAt: sql.NullTime{Time: ent.PlanEventAt, Valid: !ent.PlanEventAt.IsZero()},
	}, nil
}

func toDomainEntitlement(row Entitlement) (*domain.Entitlement, error) {
	ent := &domain.Entitlement{
		AccountID:   row.AccountID,
		Plan:        domain.PlanID(row.Plan),
		Status:      domain.EntitlementStatus(row.Status),
		PeriodStart: row.PeriodStart.UTC(),
		Counters:    make(map[domain.Feature]domain.Counter),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
	if row.PeriodEnd.Valid {
		ent.PeriodEnd = row.PeriodEnd.Time.UTC()
	}
	if row.PlanEventAt.Valid {
		ent.PlanEventAt = row.PlanEventAt.Time.UTC()
	}
	if len(row.Counters) > 0 {
		if err := json.Unmarshal(row.Counters, &ent.Counters); err != nil {
			return nil, fmt.Errorf("unmarshal counters: %w", err)
		}
	}
	if row.Interview.Valid {
		var iq domain.InterviewQuota
		if err := json.Unmarshal(row.Interview.RawMessage, &iq); err != nil {
			return nil, fmt.Errorf("unmarshal interview quota: %w", err)
		}
		ent.Interview = &iq
	}
	return ent, nil
}

// =============================================================================
// Activity ledger
// =============================================================================

// AppendActivity inserts rec. A duplicate id is a no-op.
func (s *Store) AppendActivity(ctx context.Context, rec *domain.ActivityRecord) (bool, error) {
	const op = "activity.append"

	payload, err := activityPayload(rec)
	if err != nil {
		return false, domain.Internal(err, op, "failed to encode record")
	}

	var analysis pqtype.NullRawMessage
	if rec.Analysis.Status == domain.AnalysisComplete {
		b, err := json.Marshal(rec.Analysis)
		if err != nil {
			return false, domain.Internal(err, op, "failed to encode analysis")
		}
		analysis = pqtype.NullRawMessage{RawMessage: b, Valid: true}
	}

	n, err := s.queries.InsertActivityRecord(ctx, InsertActivityRecordParams{
		AccountID:      rec.AccountID,
		ID:             rec.ID,
		Kind:           string(rec.Kind),
		OccurredAt:     rec.Timestamp,
		Payload:        payload,
		AnalysisStatus: string(rec.Analysis.Status),
		Analysis:       analysis,
	})
	if err != nil {
		if isForeignKeyViolation(err) {
			return false, domain.AccountNotFound(op, rec.AccountID)
		}
		return false, classify(err, op, "failed to append record")
	}
	return n > 0, nil
}

// FinalizeActivity completes a pending record.
func (s *Store) FinalizeActivity(ctx context.Context, accountID, recordID string, a domain.Analysis) error {
	const op = "activity.finalize"

	a.Status = domain.AnalysisComplete
	b, err := json.Marshal(a)
	if err != nil {
		return domain.Internal(err, op, "failed to encode analysis")
	}

	n, err := s.queries.FinalizeActivityRecord(ctx, FinalizeActivityRecordParams{
		AccountID: accountID,
		ID:        recordID,
		Analysis:  b,
	})
	if err != nil {
		return classify(err, op, "failed to finalize record")
	}
	if n > 0 {
		return nil
	}

	// Nothing matched the pending sentinel: either the record is missing or
	// another writer finalized it first.
	if _, err := s.queries.GetActivityRecord(ctx, accountID, recordID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFound(op, "record", recordID)
		}
		return classify(err, op, "failed to get record")
	}
	return domain.AlreadyFinalized(op, recordID)
}

// GetActivity returns one record.
func (s *Store) GetActivity(ctx context.Context, accountID, recordID string) (*domain.ActivityRecord, error) {
	const op = "activity.get"

	row, err := s.queries.GetActivityRecord(ctx, accountID, recordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "record", recordID)
		}
		return nil, classify(err, op, "failed to get record")
	}

	rec, err := toDomainActivity(row)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to decode record")
	}
	return rec, nil
}

// ListActivity returns the account's records, optionally filtered by kind.
func (s *Store) ListActivity(ctx context.Context, accountID string, kinds []domain.RecordKind) ([]*domain.ActivityRecord, error) {
	const op = "activity.list"

	filter := make([]string, len(kinds))
	for i, k := range kinds {
		filter[i] = string(k)
	}

	rows, err := s.queries.ListActivityRecords(ctx, accountID, filter)
	if err != nil {
		return nil, classify(err, op, "failed to list records")
	}

	records := make([]*domain.ActivityRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := toDomainActivity(row)
		if err != nil {
			return nil, domain.Internal(err, op, "failed to decode record")
		}
		records = append(records, rec)
	}
	return records, nil
}

// DeleteAccount removes the ledger and the entitlement in one transaction.
// Interview reservations go with the entitlement row through ON DELETE CASCADE.
func (s *Store) DeleteAccount(ctx context.Context, accountID string) error {
	const op = "account.delete"

	err := WithTx(ctx, s.db, nil, func(q *Queries) error {
		if _, err := q.DeleteActivityRecordsByAccount(ctx, accountID); err != nil {
			return err
		}
		n, err := q.DeleteEntitlement(ctx, accountID)
		if err != nil {
			return err
		}
		if n == 0 {
			return domain.AccountNotFound(op, accountID)
		}
		return nil
	})
	if err != nil {
		return passDomain(err, op, "failed to delete account")
	}
	return nil
}

// =============================================================================
// Interview reservations
// =============================================================================

// CreateReservation stores r. A repeated record id is a no-op.
func (s *Store) CreateReservation(ctx context.Context, r *domain.InterviewReservation) error {
	const op = "reservation.create"

	_, err := s.queries.InsertReservation(ctx, InsertReservationParams{
		AccountID:  r.AccountID,
		RecordID:   r.RecordID,
		Role:       r.Role,
		Level:      r.Level,
		ReservedAt: r.ReservedAt,
	})
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.AccountNotFound(op, r.AccountID)
		}
		return classify(err, op, "failed to create reservation")
	}
	return nil
}

// ClaimReservation takes the reservation for token in one conditional
// update. When the update matches nothing the row is read back to tell a
// missing reservation from one held by another token.
func (s *Store) ClaimReservation(ctx context.Context, accountID, recordID, token string, at time.Time) (*domain.InterviewReservation, bool, error) {
	const op = "reservation.claim"

	row, err := s.queries.ClaimReservation(ctx, ClaimReservationParams{
		AccountID: accountID,
		RecordID:  recordID,
		Token:     token,
		ClaimedAt: at,
	})
	if err == nil {
		return toDomainReservation(row), true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, classify(err, op, "failed to claim reservation")
	}

	row, err = s.queries.GetReservation(ctx, accountID, recordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, domain.NotFound(op, "interview", recordID)
		}
		return nil, false, classify(err, op, "failed to get reservation")
	}
	return toDomainReservation(row), false, nil
}

// ReleaseReservation drops the claim held by token.
func (s *Store) ReleaseReservation(ctx context.Context, accountID, recordID, token string) error {
	const op = "reservation.release"

	if _, err := s.queries.ReleaseReservation(ctx, accountID, recordID, token); err != nil {
		return classify(err, op, "failed to release reservation")
	}
	return nil
}

func toDomainReservation(row InterviewReservation) *domain.InterviewReservation {
	r := &domain.InterviewReservation{
		AccountID:  row.AccountID,
		RecordID:   row.RecordID,
		Role:       row.Role,
		Level:      row.Level,
		ReservedAt: row.ReservedAt.UTC(),
		ClaimToken: row.ClaimToken.String,
	}
	if row.ClaimedAt.Valid {
		at := row.ClaimedAt.Time.UTC()
		r.ClaimedAt = &at
	}
	return r
}

func activityPayload(rec *domain.ActivityRecord) (json.RawMessage, error) {
	switch rec.Kind {
	case domain.RecordQuizResult:
		return json.Marshal(rec.Quiz)
	case domain.RecordInterviewResult:
		return json.Marshal(rec.Interview)
	case domain.RecordNoteGeneration:
		return json.Marshal(rec.Note)
	default:
		return nil, fmt.Errorf("unknown record kind %q", rec.Kind)
	}
}

func toDomainActivity(row ActivityRecord) (*domain.ActivityRecord, error) {
	rec := &domain.ActivityRecord{
		ID:        row.ID,
		AccountID: row.AccountID,
		Kind:      domain.RecordKind(row.Kind),
		Timestamp: row.OccurredAt.UTC(),
	}

	var target any
	switch rec.Kind {
	case domain.RecordQuizResult:
		rec.Quiz = &domain.QuizResult{}
		target = rec.Quiz
	case domain.RecordInterviewResult:
		rec.Interview = &domain.InterviewResult{}
		target = rec.Interview
	case domain.RecordNoteGeneration:
		rec.Note = &domain.NoteGeneration{}
		target = rec.Note
	default:
		return nil, fmt.Errorf("unknown record kind %q", row.Kind)
	}
	if err := json.Unmarshal(row.Payload, target); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}

	if row.Analysis.Valid {
		if err := json.Unmarshal(row.Analysis.RawMessage, &rec.Analysis); err != nil {
			return nil, fmt.Errorf("unmarshal analysis: %w", err)
		}
	}
	rec.Analysis.Status = domain.AnalysisStatus(row.AnalysisStatus)
	return rec, nil
}
