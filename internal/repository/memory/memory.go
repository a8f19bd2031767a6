// Package memory provides an in-process implementation of the domain stores.
//
// Service, handler, job and CLI tests run against it. Each account has its
// own lock, so the read-modify-write contract of UpdateEntitlement holds per
// account just as a row lock does.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ZaidMomin2003/talxify/internal/domain"
)

// Fault operation names accepted by FailNext.
const (
	OpCreate   = "create"
	OpUpdate   = "update"
	OpAppend   = "append"
	OpFinalize = "finalize"
	OpList     = "list"
	OpDelete   = "delete"
	OpReserve  = "reserve"
	OpClaim    = "claim"
)

type account struct {
	mu           sync.Mutex
	entitlement  *domain.Entitlement
	records      map[string]*domain.ActivityRecord
	reservations map[string]*domain.InterviewReservation
}

// Store is an in-memory implementation of every domain store.
type Store struct {
	mu       sync.Mutex
	accounts map[string]*account
	faults   map[string][]error
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		accounts: make(map[string]*account),
		faults:   make(map[string][]error),
	}
}

var (
	_ domain.EntitlementStore = (*Store)(nil)
	_ domain.ActivityStore    = (*Store)(nil)
	_ domain.AccountStore     = (*Store)(nil)
	_ domain.ReservationStore = (*Store)(nil)
)

// FailNext queues errors returned by the next calls to op, one per call,
// before the operation touches any state.
func (s *Store) FailNext(op string, errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = append(s.faults[op], errs...)
}

func (s *Store) fault(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	queued := s.faults[op]
	if len(queued) == 0 {
		return nil
	}
	s.faults[op] = queued[1:]
	return queued[0]
}

func (s *Store) lookup(accountID string) *account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts[accountID]
}

// =============================================================================
// Entitlements
// =============================================================================

// CreateEntitlement stores ent unless the account already exists.
func (s *Store) CreateEntitlement(ctx context.Context, ent *domain.Entitlement) (bool, error) {
	if err := s.fault(OpCreate); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[ent.AccountID]; ok {
		return false, nil
	}
	s.accounts[ent.AccountID] = &account{
		entitlement:  ent.Clone(),
		records:      make(map[string]*domain.ActivityRecord),
		reservations: make(map[string]*domain.InterviewReservation),
	}
	return true, nil
}

// GetEntitlement returns a copy of the account's entitlement.
func (s *Store) GetEntitlement(ctx context.Context, accountID string) (*domain.Entitlement, error) {
	const op = "entitlement.get"

	acct := s.lookup(accountID)
	if acct == nil {
		return nil, domain.AccountNotFound(op, accountID)
	}
	acct.mu.Lock()
	defer acct.mu.Unlock()
	return acct.entitlement.Clone(), nil
}

// UpdateEntitlement runs fn on a copy under the account lock and keeps the
// copy when fn reports a change.
func (s *Store) UpdateEntitlement(ctx context.Context, accountID string, fn func(*domain.Entitlement) (bool, error)) error {
	const op = "entitlement.update"

	if err := s.fault(OpUpdate); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	acct := s.lookup(accountID)
	if acct == nil {
		return domain.AccountNotFound(op, accountID)
	}

	acct.mu.Lock()
	defer acct.mu.Unlock()

	working := acct.entitlement.Clone()
	changed, err := fn(working)
	if err != nil {
		return err
	}
	if changed {
		acct.entitlement = working
	}
	return nil
}

// =============================================================================
// Activity ledger
// =============================================================================

// AppendActivity stores rec unless its id already exists for the account.
func (s *Store) AppendActivity(ctx context.Context, rec *domain.ActivityRecord) (bool, error) {
	const op = "activity.append"

	if err := s.fault(OpAppend); err != nil {
		return false, err
	}

	acct := s.lookup(rec.AccountID)
	if acct == nil {
		return false, domain.AccountNotFound(op, rec.AccountID)
	}

	acct.mu.Lock()
	defer acct.mu.Unlock()
	if _, ok := acct.records[rec.ID]; ok {
		return false, nil
	}
	acct.records[rec.ID] = cloneRecord(rec)
	return true, nil
}

// FinalizeActivity completes a pending record.
func (s *Store) FinalizeActivity(ctx context.Context, accountID, recordID string, a domain.Analysis) error {
	const op = "activity.finalize"

	if err := s.fault(OpFinalize); err != nil {
		return err
	}

	acct := s.lookup(accountID)
	if acct == nil {
		return domain.NotFound(op, "record", recordID)
	}

	acct.mu.Lock()
	defer acct.mu.Unlock()
	rec, ok := acct.records[recordID]
	if !ok {
		return domain.NotFound(op, "record", recordID)
	}
	if !rec.Pending() {
		return domain.AlreadyFinalized(op, recordID)
	}
	a.Status = domain.AnalysisComplete
	a.PerQuestion = append([]string(nil), a.PerQuestion...)
	rec.Analysis = a
	return nil
}

// GetActivity returns a copy of one record.
func (s *Store) GetActivity(ctx context.Context, accountID, recordID string) (*domain.ActivityRecord, error) {
	const op = "activity.get"

	acct := s.lookup(accountID)
	if acct == nil {
		return nil, domain.NotFound(op, "record", recordID)
	}

	acct.mu.Lock()
	defer acct.mu.Unlock()
	rec, ok := acct.records[recordID]
	if !ok {
		return nil, domain.NotFound(op, "record", recordID)
	}
	return cloneRecord(rec), nil
}

// ListActivity returns copies of the account's records in map order.
func (s *Store) ListActivity(ctx context.Context, accountID string, kinds []domain.RecordKind) ([]*domain.ActivityRecord, error) {
	if err := s.fault(OpList); err != nil {
		return nil, err
	}

	acct := s.lookup(accountID)
	if acct == nil {
		return nil, nil
	}

	acct.mu.Lock()
	defer acct.mu.Unlock()

	var out []*domain.ActivityRecord
	for _, rec := range acct.records {
		if len(kinds) > 0 && !containsKind(kinds, rec.Kind) {
			continue
		}
		out = append(out, cloneRecord(rec))
	}
	return out, nil
}

// =============================================================================
// Interview reservations
// =============================================================================

// CreateReservation stores r unless its record id is already reserved.
func (s *Store) CreateReservation(ctx context.Context, r *domain.InterviewReservation) error {
	const op = "reservation.create"

	if err := s.fault(OpReserve); err != nil {
		return err
	}

	acct := s.lookup(r.AccountID)
	if acct == nil {
		return domain.AccountNotFound(op, r.AccountID)
	}

	acct.mu.Lock()
	defer acct.mu.Unlock()
	if _, ok := acct.reservations[r.RecordID]; ok {
		return nil
	}
	c := *r
	c.ClaimToken, c.ClaimedAt = "", nil
	acct.reservations[r.RecordID] = &c
	return nil
}

// ClaimReservation takes an unclaimed reservation for token.
func (s *Store) ClaimReservation(ctx context.Context, accountID, recordID, token string, at time.Time) (*domain.InterviewReservation, bool, error) {
	const op = "reservation.claim"

	if err := s.fault(OpClaim); err != nil {
		return nil, false, err
	}

	acct := s.lookup(accountID)
	if acct == nil {
		return nil, false, domain.NotFound(op, "interview", recordID)
	}

	acct.mu.Lock()
	defer acct.mu.Unlock()
	r, ok := acct.reservations[recordID]
	if !ok {
		return nil, false, domain.NotFound(op, "interview", recordID)
	}
	owned := r.ClaimToken == "" || r.ClaimToken == token
	if owned && r.ClaimToken == "" {
		claimedAt := at
		r.ClaimToken, r.ClaimedAt = token, &claimedAt
	}
	return cloneReservation(r), owned, nil
}

// ReleaseReservation drops the claim held by token.
func (s *Store) ReleaseReservation(ctx context.Context, accountID, recordID, token string) error {
	acct := s.lookup(accountID)
	if acct == nil {
		return nil
	}

	acct.mu.Lock()
	defer acct.mu.Unlock()
	if r, ok := acct.reservations[recordID]; ok && r.ClaimToken == token {
		r.ClaimToken, r.ClaimedAt = "", nil
	}
	return nil
}

func cloneReservation(r *domain.InterviewReservation) *domain.InterviewReservation {
	c := *r
	if r.ClaimedAt != nil {
		at := *r.ClaimedAt
		c.ClaimedAt = &at
	}
	return &c
}

// DeleteAccount removes the entitlement, the ledger and the reservations
// together.
func (s *Store) DeleteAccount(ctx context.Context, accountID string) error {
	const op = "account.delete"

	if err := s.fault(OpDelete); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[accountID]; !ok {
		return domain.AccountNotFound(op, accountID)
	}
	delete(s.accounts, accountID)
	return nil
}

func containsKind(kinds []domain.RecordKind, k domain.RecordKind) bool {
	for _, want := range kinds {
		if want == k {
			return true
		}
	}
	return false
}

func cloneRecord(rec *domain.ActivityRecord) *domain.ActivityRecord {
	c := *rec
	if rec.Quiz != nil {
		q := *rec.Quiz
		q.Questions = append([]domain.QuizQuestion(nil), rec.Quiz.Questions...)
		q.Answers = append([]string(nil), rec.Quiz.Answers...)
		c.Quiz = &q
	}
	if rec.Interview != nil {
		iv := *rec.Interview
		iv.Transcript = append([]string(nil), rec.Interview.Transcript...)
		c.Interview = &iv
	}
	if rec.Note != nil {
		n := *rec.Note
		c.Note = &n
	}
	c.Analysis.PerQuestion = append([]string(nil), rec.Analysis.PerQuestion...)
	if rec.Analysis.CompletedAt != nil {
		at := *rec.Analysis.CompletedAt
		c.Analysis.CompletedAt = &at
	}
	return &c
}
