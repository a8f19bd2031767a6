// Package draft implements the quiz draft cache.
//
// Drafts are scratch state and never a system of record. Two backends are
// provided: BlobStore keeps each draft as a JSON object in storage.Storage
// (local disk or R2), RedisStore keeps it in Redis with a TTL.
package draft

import (
	"encoding/json"
	"fmt"

	"github.com/ZaidMomin2003/talxify/internal/domain"
)

// maxDraftSize bounds a single encoded draft.
const maxDraftSize = 1 << 20

const (
	BackendLocal = "local"
	BackendR2    = "r2"
	BackendRedis = "redis"
)

func encode(d *domain.QuizDraft) ([]byte, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal draft: %w", err)
	}
	if len(data) > maxDraftSize {
		return nil, fmt.Errorf("draft is %d bytes, limit %d", len(data), maxDraftSize)
	}
	return data, nil
}

func decode(data []byte, key domain.DraftKey) (*domain.QuizDraft, error) {
	var d domain.QuizDraft
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("unmarshal draft: %w", err)
	}
	// A digest collision or a hand-edited object must not hand one account
	// another account's draft.
	if d.Key != key {
		return nil, fmt.Errorf("draft key mismatch")
	}
	return &d, nil
}
