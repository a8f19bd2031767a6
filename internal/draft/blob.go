package draft

import (
	"context"
	"log/slog"

	"github.com/ZaidMomin2003/talxify/internal/domain"
	"github.com/ZaidMomin2003/talxify/internal/metrics"
	"github.com/ZaidMomin2003/talxify/internal/storage"
)

// BlobStore keeps drafts as JSON objects in a storage.Storage.
type BlobStore struct {
	storage storage.Storage
	logger  *slog.Logger
}

// NewBlobStore creates a BlobStore.
func NewBlobStore(s storage.Storage, logger *slog.Logger) *BlobStore {
	return &BlobStore{storage: s, logger: logger}
}

var _ domain.DraftStore = (*BlobStore)(nil)

// Save overwrites the draft at its key.
func (s *BlobStore) Save(ctx context.Context, d *domain.QuizDraft) (err error) {
	const op = "draft.save"
	defer func() { metrics.DraftOperation("save", err) }()

	data, err := encode(d)
	if err != nil {
		return domain.Internal(err, op, "failed to encode draft")
	}

	if err := s.storage.Put(ctx, d.Key.StorageKey(), data, storage.PutOptions{
		ContentType: "application/json",
		MaxSize:     maxDraftSize,
	}); err != nil {
		return domain.Unavailable(err, op, "failed to save draft")
	}
	return nil
}

// Load returns the draft at key, or ENOTFOUND.
func (s *BlobStore) Load(ctx context.Context, key domain.DraftKey) (d *domain.QuizDraft, err error) {
	const op = "draft.load"
	defer func() {
		if !domain.IsNotFound(err) {
			metrics.DraftOperation("load", err)
		}
	}()

	data, err := s.storage.Get(ctx, key.StorageKey())
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, domain.NotFound(op, "draft", key.Digest())
		}
		return nil, domain.Unavailable(err, op, "failed to load draft")
	}

	d, err = decode(data, key)
	if err != nil {
		// An unreadable draft is dropped rather than blocking the session.
		s.logger.Warn("discarding unreadable draft", "key", key.StorageKey(), "error", err)
		_ = s.storage.Delete(ctx, key.StorageKey())
		return nil, domain.NotFound(op, "draft", key.Digest())
	}
	return d, nil
}

// Discard removes the draft. Discarding a missing draft succeeds.
func (s *BlobStore) Discard(ctx context.Context, key domain.DraftKey) (err error) {
	const op = "draft.discard"
	defer func() { metrics.DraftOperation("discard", err) }()

	if err := s.storage.Delete(ctx, key.StorageKey()); err != nil {
		return domain.Unavailable(err, op, "failed to discard draft")
	}
	return nil
}
