package jobs

import (
	"errors"

	"github.com/ZaidMomin2003/talxify/internal/ai"
	"github.com/ZaidMomin2003/talxify/internal/domain"
	"github.com/ZaidMomin2003/talxify/internal/worker"
)

// classify marks failures that a retry cannot fix as permanent. Transient
// store errors, provider outages and malformed model output are retried.
func classify(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case domain.IsNotFound(err),
		domain.ErrorCode(err) == domain.EINVALID,
		errors.Is(err, ai.EAIInvalidRequest),
		errors.Is(err, ai.EAIUnauthorized):
		return worker.NewPermanentError(err)
	}
	return err
}
