package domain

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/text/cases"
)

// =============================================================================
// Session state machine
// =============================================================================

// SessionState is the lifecycle of one quiz session.
type SessionState string

const (
	SessionNotStarted SessionState = "not_started"
	SessionDenied     SessionState = "denied"
	SessionGenerating SessionState = "generating"
	SessionActive     SessionState = "active"
	SessionSubmitting SessionState = "submitting"
	SessionFinalized  SessionState = "finalized"
)

// CanTransitionTo checks if the session can move to target.
//
// Valid transitions:
//   - not_started -> denied | generating
//   - generating -> active
//   - active -> active (answer edits and cursor moves)
//   - active -> submitting
//   - submitting -> submitting (client retries the whole finalize)
//   - submitting -> finalized
func (s SessionState) CanTransitionTo(target SessionState) bool {
	switch s {
	case SessionNotStarted:
		return target == SessionDenied || target == SessionGenerating
	case SessionGenerating:
		return target == SessionActive
	case SessionActive:
		return target == SessionActive || target == SessionSubmitting
	case SessionSubmitting:
		return target == SessionSubmitting || target == SessionFinalized
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s SessionState) Terminal() bool {
	return s == SessionDenied || s == SessionFinalized
}

// =============================================================================
// Draft key
// =============================================================================

var topicFolder = cases.Fold()

// DraftKey identifies a draft by its configuration rather than a random id so
// that re-entering the same configuration recovers the same draft.
type DraftKey struct {
	AccountID     string
	Topic         string
	Difficulty    string
	QuestionCount int
}

// NewDraftKey normalises topic and difficulty. Case and runs of whitespace do
// not distinguish drafts.
func NewDraftKey(accountID, topic, difficulty string, questionCount int) DraftKey {
	return DraftKey{
		AccountID:     accountID,
		Topic:         normalizeLabel(topic),
		Difficulty:    normalizeLabel(difficulty),
		QuestionCount: questionCount,
	}
}

func normalizeLabel(s string) string {
	return strings.Join(strings.Fields(topicFolder.String(s)), " ")
}

// Validate checks the key is usable.
func (k DraftKey) Validate() error {
	const op = "draft.key"

	if k.AccountID == "" {
		return Invalid(op, "account id is required")
	}
	if k.Topic == "" {
		return Invalid(op, "topic is required")
	}
	if k.QuestionCount <= 0 {
		return Invalid(op, "question count must be positive")
	}
	return nil
}

// AccountDigest returns the hex digest used as the account's draft prefix.
func (k DraftKey) AccountDigest() string {
	sum := blake2b.Sum256([]byte(k.AccountID))
	return hex.EncodeToString(sum[:16])
}

// Digest returns a stable hex digest of the full configuration.
func (k DraftKey) Digest() string {
	canonical := fmt.Sprintf("%s\x00%s\x00%s\x00%d", k.AccountID, k.Topic, k.Difficulty, k.QuestionCount)
	sum := blake2b.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// StorageKey returns the object path for the draft.
// Format: drafts/{account-digest}/{config-digest}.json
func (k DraftKey) StorageKey() string {
	return fmt.Sprintf("drafts/%s/%s.json", k.AccountDigest(), k.Digest())
}

// =============================================================================
// Draft
// =============================================================================

// QuizDraft is ephemeral scratch state for an in-progress quiz. It is never
// a system of record; the activity ledger is.
type QuizDraft struct {
	Key       DraftKey       `json:"key"`
	RecordID  string         `json:"record_id"`
	State     SessionState   `json:"state"`
	Questions []QuizQuestion `json:"questions"`
	Answers   []string       `json:"answers"`
	Cursor    int            `json:"cursor"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// TransitionTo moves the draft to target, validating the transition.
func (d *QuizDraft) TransitionTo(target SessionState) error {
	if !d.State.CanTransitionTo(target) {
		return Errorf(EINVALID, "draft.transition",
			"cannot transition quiz session from %s to %s", d.State, target)
	}
	d.State = target
	return nil
}

// SetAnswer records the answer at index i and moves the cursor there.
func (d *QuizDraft) SetAnswer(i int, answer string) error {
	if i < 0 || i >= len(d.Questions) {
		return Invalid("draft.answer", "question index out of range")
	}
	if err := d.TransitionTo(SessionActive); err != nil {
		return err
	}
	if len(d.Answers) < len(d.Questions) {
		answers := make([]string, len(d.Questions))
		copy(answers, d.Answers)
		d.Answers = answers
	}
	d.Answers[i] = answer
	d.Cursor = i
	return nil
}

// Seek moves the cursor without changing answers.
func (d *QuizDraft) Seek(i int) error {
	if i < 0 || i >= len(d.Questions) {
		return Invalid("draft.seek", "question index out of range")
	}
	if err := d.TransitionTo(SessionActive); err != nil {
		return err
	}
	d.Cursor = i
	return nil
}

// DraftStore holds drafts keyed by DraftKey. Save is a full overwrite and the
// last writer wins. Load returns ENOTFOUND when there is no draft.
type DraftStore interface {
	Save(ctx context.Context, draft *QuizDraft) error
	Load(ctx context.Context, key DraftKey) (*QuizDraft, error)
	Discard(ctx context.Context, key DraftKey) error
}
