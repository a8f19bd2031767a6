package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"
)

const activityColumns = `account_id, id, kind, occurred_at, payload, analysis_status, analysis, created_at`

func scanActivityRecord(row interface{ Scan(...any) error }) (ActivityRecord, error) {
	var r ActivityRecord
	err := row.Scan(
		&r.AccountID,
		&r.ID,
		&r.Kind,
		&r.OccurredAt,
		&r.Payload,
		&r.AnalysisStatus,
		&r.Analysis,
		&r.CreatedAt,
	)
	return r, err
}

const insertActivityRecord = `INSERT INTO activity_records (account_id, id, kind, occurred_at, payload, analysis_status, analysis)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (account_id, id) DO NOTHING`

// InsertActivityRecordParams holds a new ledger row.
type InsertActivityRecordParams struct {
	AccountID      string
	ID             string
	Kind           string
	OccurredAt     time.Time
	Payload        json.RawMessage
	AnalysisStatus string
	Analysis       pqtype.NullRawMessage
}

// InsertActivityRecord adds a row unless (account_id, id) already exists and
// returns the number of rows inserted.
func (q *Queries) InsertActivityRecord(ctx context.Context, arg InsertActivityRecordParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, insertActivityRecord,
		arg.AccountID,
		arg.ID,
		arg.Kind,
		arg.OccurredAt,
		arg.Payload,
		arg.AnalysisStatus,
		arg.Analysis,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const finalizeActivityRecord = `UPDATE activity_records
SET analysis_status = 'complete',
    analysis = $3
WHERE account_id = $1
  AND id = $2
  AND analysis_status = 'pending'`

// FinalizeActivityRecordParams identifies the pending row and its analysis.
type FinalizeActivityRecordParams struct {
	AccountID string
	ID        string
	Analysis  json.RawMessage
}

// FinalizeActivityRecord completes a pending row. It returns 0 when the row
// does not exist or is no longer pending.
func (q *Queries) FinalizeActivityRecord(ctx context.Context, arg FinalizeActivityRecordParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, finalizeActivityRecord, arg.AccountID, arg.ID, arg.Analysis)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const getActivityRecord = `SELECT ` + activityColumns + `
FROM activity_records
WHERE account_id = $1 AND id = $2`

// GetActivityRecord reads one row.
func (q *Queries) GetActivityRecord(ctx context.Context, accountID, id string) (ActivityRecord, error) {
	return scanActivityRecord(q.db.QueryRowContext(ctx, getActivityRecord, accountID, id))
}

const listActivityRecords = `SELECT ` + activityColumns + `
FROM activity_records
WHERE account_id = $1
  AND (cardinality($2::text[]) = 0 OR kind = ANY($2::text[]))`

// ListActivityRecords returns an account's rows, optionally filtered by kind.
func (q *Queries) ListActivityRecords(ctx context.Context, accountID string, kinds []string) ([]ActivityRecord, error) {
	if kinds == nil {
		kinds = []string{}
	}
	rows, err := q.db.QueryContext(ctx, listActivityRecords, accountID, pq.Array(kinds))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ActivityRecord
	for rows.Next() {
		r, err := scanActivityRecord(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const deleteActivityRecordsByAccount = `DELETE FROM activity_records WHERE account_id = $1`

// DeleteActivityRecordsByAccount removes an account's ledger.
func (q *Queries) DeleteActivityRecordsByAccount(ctx context.Context, accountID string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteActivityRecordsByAccount, accountID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
