package repository

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/kelpcommercial/kelp-transfers/internal/model"
)

// TransferRepository is the transfer store. Updates on one id are atomic with respect to each other.
type TransferRepository interface {
	// Create inserts a transfer. Returns errs.ErrConflict if the id exists.
	Create(ctx context.Context, t *model.Transfer) error
	// Get loads a transfer by id.
	Get(ctx context.Context, id uuid.UUID) (*model.Transfer, error)
	// ApplyProgress increments file_count/total_size if the transfer is writable at p.Now and the new
	// total stays within p.MaxTotalSize; a pending transfer moves to processing.
	ApplyProgress(ctx context.Context, id uuid.UUID, p model.Progress) (*model.Transfer, error)
	// SetStatus overwrites the status if the current status is one of from, else errs.ErrInvalidState.
	SetStatus(ctx context.Context, id uuid.UUID, from []model.TransferStatus, to model.TransferStatus) (*model.Transfer, error)
	// CountOpen counts the owner's pending/processing transfers that have not expired at now.
	CountOpen(ctx context.Context, ownerID string, now time.Time) (int, error)
}
