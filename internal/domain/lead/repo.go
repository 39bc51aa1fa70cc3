package lead

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	// CreateOrResubmit inserts l unless a lead sharing any of its
	// fingerprints was submitted after since. In that case the existing
	// lead's submission count is bumped, its fingerprints absorb l's, and it
	// is returned instead. The check and the write are atomic per fingerprint.
	CreateOrResubmit(ctx context.Context, l *Lead, since time.Time) (existing *Lead, err error)
	GetByID(ctx context.Context, id uuid.UUID) (*Lead, error)
	// UpdateStatus moves the lead only if it is still in status from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Lead, error)
	// List orders by score descending, then oldest first.
	List(ctx context.Context, f Filter, limit, offset int) ([]*Lead, int, error)
	CountBySourceAndTier(ctx context.Context, since time.Time) ([]SourceTierCount, error)
}
