package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/kelpcommercial/kelp-transfers/internal/errs"
	"github.com/kelpcommercial/kelp-transfers/internal/model"
	"github.com/kelpcommercial/kelp-transfers/internal/quota"
)

// TransferRepo implements TransferRepository using PostgreSQL. Updates lock the transfer row.
type TransferRepo struct{ db *DB }

// NewTransferRepo constructs a transfer repository.
func NewTransferRepo(db *DB) *TransferRepo { return &TransferRepo{db: db} }

const transferColumns = `id, owner_id, sender_email, recipient_emails, title, status, file_count,
declared_size, total_size, expires_at, created_at, updated_at`

func scanTransfer(row pgx.Row) (*model.Transfer, error) {
	var (
		t      model.Transfer
		status string
	)
	err := row.Scan(&t.ID, &t.OwnerID, &t.SenderEmail, &t.RecipientEmails, &t.Title, &status, &t.FileCount,
		&t.DeclaredSize, &t.TotalSize, &t.ExpiresAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	t.Status = model.TransferStatus(status)
	return &t, nil
}

// Create inserts a new transfer row.
func (r *TransferRepo) Create(ctx context.Context, t *model.Transfer) error {
	const q = `
INSERT INTO transfers (id, owner_id, sender_email, recipient_emails, title, status, file_count,
  declared_size, total_size, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING created_at, updated_at`
	err := r.db.Pool.QueryRow(ctx, q, t.ID, t.OwnerID, t.SenderEmail, t.RecipientEmails, t.Title, string(t.Status),
		t.FileCount, t.DeclaredSize, t.TotalSize, t.ExpiresAt).Scan(&t.CreatedAt, &t.UpdatedAt)
	if isUniqueViolation(err) {
		return errs.ErrConflict
	}
	return err
}

// Get selects a transfer by id.
func (r *TransferRepo) Get(ctx context.Context, id uuid.UUID) (*model.Transfer, error) {
	q := `SELECT ` + transferColumns + ` FROM transfers WHERE id = $1`
	return scanTransfer(r.db.Pool.QueryRow(ctx, q, id))
}

func lockTransfer(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Transfer, error) {
	q := `SELECT ` + transferColumns + ` FROM transfers WHERE id = $1 FOR UPDATE`
	return scanTransfer(tx.QueryRow(ctx, q, id))
}

// ApplyProgress re-checks the size bound against the locked, persisted total before incrementing.
func (r *TransferRepo) ApplyProgress(ctx context.Context, id uuid.UUID, p model.Progress) (t *model.Transfer, err error) {
	err = r.db.inTx(ctx, func(tx pgx.Tx) error {
		cur, err := lockTransfer(ctx, tx, id)
		if err != nil {
			return err
		}
		if !cur.Writable(p.Now) {
			return fmt.Errorf("%w: transfer %s is %s", errs.ErrInvalidState, id, cur.EffectiveStatus(p.Now))
		}
		total, err := quota.Add(cur.TotalSize, p.Bytes)
		if err != nil {
			return err
		}
		if total > p.MaxTotalSize {
			return errs.Quota(errs.ResourceStorage, p.MaxTotalSize, total)
		}
		q := `
UPDATE transfers
SET file_count = file_count + $2,
    total_size = total_size + $3,
    status = CASE WHEN status = 'pending' THEN 'processing' ELSE status END,
    updated_at = now()
WHERE id = $1
RETURNING ` + transferColumns
		t, err = scanTransfer(tx.QueryRow(ctx, q, id, p.Files, p.Bytes))
		if isOutOfRange(err) {
			return fmt.Errorf("%w: transfer %s counters", errs.ErrOverflow, id)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// SetStatus is a compare-and-set on the status column.
func (r *TransferRepo) SetStatus(
	ctx context.Context, id uuid.UUID, from []model.TransferStatus, to model.TransferStatus,
) (t *model.Transfer, err error) {
	err = r.db.inTx(ctx, func(tx pgx.Tx) error {
		cur, err := lockTransfer(ctx, tx, id)
		if err != nil {
			return err
		}
		if !slices.Contains(from, cur.Status) {
			return fmt.Errorf("%w: transfer %s is %s", errs.ErrInvalidState, id, cur.Status)
		}
		q := `UPDATE transfers SET status = $2, updated_at = now() WHERE id = $1 RETURNING ` + transferColumns
		t, err = scanTransfer(tx.QueryRow(ctx, q, id, string(to)))
		return err
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// CountOpen counts the owner's unexpired pending/processing transfers.
func (r *TransferRepo) CountOpen(ctx context.Context, ownerID string, now time.Time) (int, error) {
	const q = `
SELECT COUNT(*) FROM transfers
WHERE owner_id = $1 AND status IN ('pending', 'processing') AND expires_at > $2`
	var n int
	if err := r.db.Pool.QueryRow(ctx, q, ownerID, now).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
