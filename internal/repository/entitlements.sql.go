package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/sqlc-dev/pqtype"
)

const entitlementColumns = `account_id, plan, status, period_start, period_end, counters, interview, created_at, updated_at, plan_event_at`

func scanEntitlement(row interface{ Scan(...any) error }) (Entitlement, error) {
	var e Entitlement
	err := row.Scan(
		&e.AccountID,
		&e.Plan,
		&e.Status,
		&e.PeriodStart,
		&e.PeriodEnd,
		&e.Counters,
		&e.Interview,
		&e.CreatedAt,
		&e.UpdatedAt,
		&e.PlanEventAt,
	)
	return e, err
}

const createEntitlement = `INSERT INTO entitlements (account_id, plan, status, period_start, period_end, counters, interview, updated_at, plan_event_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (account_id) DO NOTHING`

// CreateEntitlementParams holds the columns written on first sign-in.
type CreateEntitlementParams struct {
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

// CreateEntitlement inserts a row unless the account already has one and
// returns the number of rows inserted.
func (q *Queries) CreateEntitlement(ctx context.Context, arg CreateEntitlementParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, createEntitlement,
		arg.AccountID,
		arg.Plan,
		arg.Status,
		arg.PeriodStart,
		arg.PeriodEnd,
		arg.Counters,
		arg.Interview,
		arg.UpdatedAt,
		arg.PlanEventAt,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const getEntitlement = `SELECT ` + entitlementColumns + `
FROM entitlements
WHERE account_id = $1`

// GetEntitlement reads an entitlement without locking it.
func (q *Queries) GetEntitlement(ctx context.Context, accountID string) (Entitlement, error) {
	return scanEntitlement(q.db.QueryRowContext(ctx, getEntitlement, accountID))
}

const getEntitlementForUpdate = getEntitlement + `
FOR UPDATE`

// GetEntitlementForUpdate reads an entitlement and holds its row lock until
// the surrounding transaction ends.
func (q *Queries) GetEntitlementForUpdate(ctx context.Context, accountID string) (Entitlement, error) {
	return scanEntitlement(q.db.QueryRowContext(ctx, getEntitlementForUpdate, accountID))
}

const updateEntitlement = `UPDATE entitlements
SET plan = $2,
    status = $3,
    period_start = $4,
    period_end = $5,
    counters = $6,
    interview = $7,
    updated_at = $8,
    plan_event_at = $9
WHERE account_id = $1`

// UpdateEntitlementParams holds every mutable column.
type UpdateEntitlementParams struct {
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

// UpdateEntitlement overwrites the row. It is only called inside the
// transaction that locked the row with GetEntitlementForUpdate.
func (q *Queries) UpdateEntitlement(ctx context.Context, arg UpdateEntitlementParams) error {
	_, err := q.db.ExecContext(ctx, updateEntitlement,
		arg.AccountID,
		arg.Plan,
		arg.Status,
		arg.PeriodStart,
		arg.PeriodEnd,
		arg.Counters,
		arg.Interview,
		arg.UpdatedAt,
		arg.PlanEventAt,
	)
	return err
}

const deleteEntitlement = `DELETE FROM entitlements WHERE account_id = $1`

// DeleteEntitlement removes the row and returns the number deleted.
func (q *Queries) DeleteEntitlement(ctx context.Context, accountID string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteEntitlement, accountID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
