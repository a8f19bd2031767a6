package domain

import (
	"context"
	"sort"
	"time"
)

// RecordKind tags the activity record union.
type RecordKind string

const (
	RecordQuizResult      RecordKind = "quiz_result"
	RecordInterviewResult RecordKind = "interview_result"
	RecordNoteGeneration  RecordKind = "note_generation"
)

// Valid checks if the kind is known.
func (k RecordKind) Valid() bool {
	switch k {
	case RecordQuizResult, RecordInterviewResult, RecordNoteGeneration:
		return true
	default:
		return false
	}
}

// AnalysisStatus is the sentinel Finalize keys on.
type AnalysisStatus string

const (
	AnalysisNone     AnalysisStatus = "none"     // record was complete when appended
	AnalysisPending  AnalysisStatus = "pending"  // awaiting Finalize
	AnalysisComplete AnalysisStatus = "complete" // finalized; never changes again
)

// Analysis is the computed result that Finalize fills in.
type Analysis struct {
	Status      AnalysisStatus `json:"status"`
	Score       int            `json:"score"`
	Feedback    string         `json:"feedback,omitempty"`
	PerQuestion []string       `json:"per_question,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// QuizQuestion is one generated coding question.
type QuizQuestion struct {
	Prompt string `json:"prompt"`
	Hint   string `json:"hint,omitempty"`
}

// QuizResult is the payload of a finished coding quiz.
type QuizResult struct {
	Topic         string         `json:"topic"`
	Difficulty    string         `json:"difficulty"`
	QuestionCount int            `json:"question_count"`
	Questions     []QuizQuestion `json:"questions"`
	Answers       []string       `json:"answers"`
}

// InterviewResult is the payload of a finished mock interview.
type InterviewResult struct {
	Role       string   `json:"role"`
	Level      string   `json:"level"`
	Transcript []string `json:"transcript"`
	DurationS  int      `json:"duration_s"`
}

// NoteGeneration is the payload of a generated study note.
type NoteGeneration struct {
	Topic   string `json:"topic"`
	Content string `json:"content"`
}

// ActivityRecord is one entry in an account's append-only ledger. Exactly one
// of Quiz, Interview, Note is set, matching Kind.
type ActivityRecord struct {
	ID        string // caller-supplied, unique per account
	AccountID string
	Kind      RecordKind
	Timestamp time.Time
	Quiz      *QuizResult
	Interview *InterviewResult
	Note      *NoteGeneration
	Analysis  Analysis
}

// Pending reports whether the record still awaits Finalize.
func (r *ActivityRecord) Pending() bool {
	return r.Analysis.Status == AnalysisPending
}

// Validate checks the tagged-union shape.
func (r *ActivityRecord) Validate() error {
	const op = "activity.validate"

	if r.ID == "" {
		return Invalid(op, "record id is required")
	}
	if r.AccountID == "" {
		return Invalid(op, "account id is required")
	}
	var set int
	for _, present := range []bool{r.Quiz != nil, r.Interview != nil, r.Note != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return Invalid(op, "exactly one payload must be set")
	}
	switch r.Kind {
	case RecordQuizResult:
		if r.Quiz == nil {
			return Invalid(op, "quiz_result requires a quiz payload")
		}
	case RecordInterviewResult:
		if r.Interview == nil {
			return Invalid(op, "interview_result requires an interview payload")
		}
	case RecordNoteGeneration:
		if r.Note == nil {
			return Invalid(op, "note_generation requires a note payload")
		}
	default:
		return Invalid(op, "unknown record kind")
	}
	switch r.Analysis.Status {
	case AnalysisNone, AnalysisPending, AnalysisComplete:
	default:
		return Invalid(op, "unknown analysis status")
	}
	return nil
}

// SortByTimestampDesc orders records newest first. Ties break on id so the
// order is stable across reads.
func SortByTimestampDesc(records []*ActivityRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].Timestamp.Equal(records[j].Timestamp) {
			return records[i].ID > records[j].ID
		}
		return records[i].Timestamp.After(records[j].Timestamp)
	})
}

// ActivityStore persists the per-account ledger.
type ActivityStore interface {
	// AppendActivity adds rec with an additive insert. A record whose id
	// already exists for the account is left untouched and inserted=false.
	AppendActivity(ctx context.Context, rec *ActivityRecord) (inserted bool, err error)

	// FinalizeActivity sets the analysis of one pending record. It is a
	// conditional update keyed on the pending sentinel: ENOTFOUND when the
	// record does not exist, ErrAlreadyFinalized when it is not pending.
	FinalizeActivity(ctx context.Context, accountID, recordID string, a Analysis) error

	// GetActivity returns one record. ENOTFOUND when missing.
	GetActivity(ctx context.Context, accountID, recordID string) (*ActivityRecord, error)

	// ListActivity returns the account's records in no particular order.
	// An empty kinds slice means all kinds.
	ListActivity(ctx context.Context, accountID string, kinds []RecordKind) ([]*ActivityRecord, error)
}

// AccountStore removes everything an account owns in one transaction.
type AccountStore interface {
	DeleteAccount(ctx context.Context, accountID string) error
}

// InterviewReservation is the server-side proof that an interview was
// charged. StartInterview writes it and RecordInterview claims it, so only
// ids the ledger handed out can become interview records.
type InterviewReservation struct {
	AccountID  string
	RecordID   string
	Role       string
	Level      string
	ReservedAt time.Time
	ClaimToken string // empty until claimed
	ClaimedAt  *time.Time
}

// Claimed reports whether a recording has taken the reservation.
func (r *InterviewReservation) Claimed() bool {
	return r.ClaimToken != ""
}

// ReservationStore persists interview reservations. Deleting the account
// removes them with the rest of its state.
type ReservationStore interface {
	// CreateReservation stores r. Storing the same record id twice is a
	// no-op. ENOTFOUND when the account does not exist.
	CreateReservation(ctx context.Context, r *InterviewReservation) error

	// ClaimReservation takes an unclaimed reservation for token, or confirms
	// a claim token already holds. It returns the reservation and whether
	// token owns it. ENOTFOUND when no reservation exists.
	ClaimReservation(ctx context.Context, accountID, recordID, token string, at time.Time) (*InterviewReservation, bool, error)

	// ReleaseReservation drops the claim held by token. Other claims are
	// left alone.
	ReleaseReservation(ctx context.Context, accountID, recordID, token string) error
}
