package repository

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

// Entitlement is a row of the entitlements table.
type Entitlement struct {
	AccountID   string
	Plan        string
	Status      string
	PeriodStart time.Time
	PeriodEnd   sql.NullTime
	Counters    json.RawMessage
	Interview   pqtype.NullRawMessage
	CreatedAt   time.Time
	UpdatedAt   time.Time
	PlanEventAt sql.NullTime
}

// ActivityRecord is a row of the activity_records table.
type ActivityRecord struct {
	AccountID      string
	ID             string
	Kind           string
	OccurredAt     time.Time
	Payload        json.RawMessage
	AnalysisStatus string
	Analysis       pqtype.NullRawMessage
	CreatedAt      time.Time
}

// Job is a row of the jobs table.
type Job struct {
	ID           uuid.UUID
	JobType      string
	Payload      json.RawMessage
	Status       string
	Priority     int32
	Attempts     int32
	MaxAttempts  int32
	ScheduledAt  time.Time
	StartedAt    sql.NullTime
	CompletedAt  sql.NullTime
	ErrorMessage sql.NullString
	CreatedAt    time.Time
}

// InterviewReservation is a row of the interview_reservations table.
type InterviewReservation struct {
	AccountID  string
	RecordID   string
	Role       string
	Level      string
	ReservedAt time.Time
	ClaimToken sql.NullString
	ClaimedAt  sql.NullTime
}
