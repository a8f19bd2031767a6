package repository

import (
	"context"
	"time"
)

const reservationColumns = `account_id, record_id, role, level, reserved_at, claim_token, claimed_at`

func scanReservation(row interface{ Scan(...any) error }) (InterviewReservation, error) {
	var r InterviewReservation
	err := row.Scan(
		&r.AccountID,
		&r.RecordID,
		&r.Role,
		&r.Level,
		&r.ReservedAt,
		&r.ClaimToken,
		&r.ClaimedAt,
	)
	return r, err
}

const insertReservation = `INSERT INTO interview_reservations (account_id, record_id, role, level, reserved_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (account_id, record_id) DO NOTHING`

// InsertReservationParams holds a new reservation.
type InsertReservationParams struct {
	AccountID  string
	RecordID   string
	Role       string
	Level      string
	ReservedAt time.Time
}

// InsertReservation adds a reservation unless it already exists.
func (q *Queries) InsertReservation(ctx context.Context, arg InsertReservationParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, insertReservation,
		arg.AccountID,
		arg.RecordID,
		arg.Role,
		arg.Level,
		arg.ReservedAt,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const claimReservation = `UPDATE interview_reservations
SET claim_token = $3,
    claimed_at = COALESCE(claimed_at, $4)
WHERE account_id = $1
  AND record_id = $2
  AND (claim_token IS NULL OR claim_token = $3)
RETURNING ` + reservationColumns

// ClaimReservationParams identifies a reservation and the claimant.
type ClaimReservationParams struct {
	AccountID string
	RecordID  string
	Token     string
	ClaimedAt time.Time
}

// ClaimReservation sets the claim token when the row is unclaimed or
// already held by the same token. Returns sql.ErrNoRows otherwise.
func (q *Queries) ClaimReservation(ctx context.Context, arg ClaimReservationParams) (InterviewReservation, error) {
	return scanReservation(q.db.QueryRowContext(ctx, claimReservation,
		arg.AccountID,
		arg.RecordID,
		arg.Token,
		arg.ClaimedAt,
	))
}

const getReservation = `SELECT ` + reservationColumns + `
FROM interview_reservations
WHERE account_id = $1 AND record_id = $2`

// GetReservation reads one reservation.
func (q *Queries) GetReservation(ctx context.Context, accountID, recordID string) (InterviewReservation, error) {
	return scanReservation(q.db.QueryRowContext(ctx, getReservation, accountID, recordID))
}

const releaseReservation = `UPDATE interview_reservations
SET claim_token = NULL,
    claimed_at = NULL
WHERE account_id = $1
  AND record_id = $2
  AND claim_token = $3`

// ReleaseReservation clears the claim held by token.
func (q *Queries) ReleaseReservation(ctx context.Context, accountID, recordID, token string) (int64, error) {
	result, err := q.db.ExecContext(ctx, releaseReservation, accountID, recordID, token)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
