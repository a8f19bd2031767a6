package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// JobHandler executes one job type. Delivery is at-least-once: a job can run
// again after a crash or a lost completion, so Handle must be idempotent.
type JobHandler interface {
	// Type must match the job_type column in the jobs table.
	Type() string

	// Handle executes the job with its raw JSON payload. Return a
	// PermanentError to stop retries.
	Handle(ctx context.Context, payload []byte) error
}

// PermanentError marks a failure that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// NewPermanentError wraps err so the job is failed without retry.
func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err or anything it wraps is a PermanentError.
func IsPermanent(err error) bool {
	var permErr *PermanentError
	return errors.As(err, &permErr)
}

// DecodePayload unmarshals a job payload. A payload that does not decode
// will never decode, so the error is permanent.
func DecodePayload(payload []byte, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return NewPermanentError(fmt.Errorf("unmarshal payload: %w", err))
	}
	return nil
}
