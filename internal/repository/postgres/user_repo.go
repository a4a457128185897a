package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/kelpcommercial/kelp-transfers/internal/errs"
	"github.com/kelpcommercial/kelp-transfers/internal/model"
	"github.com/kelpcommercial/kelp-transfers/internal/quota"
)

// UserRepo implements UserRepository using PostgreSQL. Read-modify-write paths lock the user row.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

const userColumns = `id, email, full_name, avatar_url, plan, usage_current_period, usage_limit,
storage_used, storage_limit, created_at, updated_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		u    model.User
		plan string
	)
	err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.AvatarURL, &plan, &u.UsageCurrentPeriod, &u.UsageLimit,
		&u.StorageUsed, &u.StorageLimit, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	u.Plan = model.Plan(plan)
	return &u, nil
}

// Create inserts a new user row.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	const q = `
INSERT INTO users (id, email, full_name, avatar_url, plan, usage_current_period, usage_limit, storage_used, storage_limit)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING created_at, updated_at`
	err := r.db.Pool.QueryRow(ctx, q, u.ID, u.Email, u.FullName, u.AvatarURL, string(u.Plan),
		u.UsageCurrentPeriod, u.UsageLimit, u.StorageUsed, u.StorageLimit).Scan(&u.CreatedAt, &u.UpdatedAt)
	if isUniqueViolation(err) {
		return errs.ErrConflict
	}
	return err
}

// Get selects a user by id.
func (r *UserRepo) Get(ctx context.Context, id string) (*model.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.Pool.QueryRow(ctx, q, id))
}

func lockUser(ctx context.Context, tx pgx.Tx, id string) (*model.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE id = $1 FOR UPDATE`
	return scanUser(tx.QueryRow(ctx, q, id))
}

// admitDelta checks the post-increment counters against the user's own limits.
func admitDelta(u *model.User, deltaTransfers uint32, deltaBytes uint64) error {
	usage := uint64(u.UsageCurrentPeriod) + uint64(deltaTransfers)
	if usage > uint64(u.UsageLimit) {
		return errs.Quota(errs.ResourceTransfers, uint64(u.UsageLimit), usage)
	}
	storage, err := quota.Add(u.StorageUsed, deltaBytes)
	if err != nil {
		return err
	}
	if storage > u.StorageLimit {
		return errs.Quota(errs.ResourceStorage, u.StorageLimit, storage)
	}
	return nil
}

func increment(ctx context.Context, tx pgx.Tx, id string, deltaTransfers uint32, deltaBytes uint64) (*model.User, error) {
	cur, err := lockUser(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := admitDelta(cur, deltaTransfers, deltaBytes); err != nil {
		return nil, err
	}
	q := `
UPDATE users
SET usage_current_period = usage_current_period + $2,
    storage_used = storage_used + $3,
    updated_at = now()
WHERE id = $1
RETURNING ` + userColumns
	u, err := scanUser(tx.QueryRow(ctx, q, id, deltaTransfers, deltaBytes))
	if isOutOfRange(err) {
		return nil, fmt.Errorf("%w: storage_used", errs.ErrOverflow)
	}
	return u, err
}

// Increment adds usage deltas under a row lock.
func (r *UserRepo) Increment(ctx context.Context, id string, deltaTransfers uint32, deltaBytes uint64) (u *model.User, err error) {
	err = r.db.inTx(ctx, func(tx pgx.Tx) error {
		u, err = increment(ctx, tx, id, deltaTransfers, deltaBytes)
		return err
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// Charge inserts the usage_charges row keyed by transfer id and applies the increment in the same
// transaction. A second charge for the same transfer finds the row and leaves the counters alone.
func (r *UserRepo) Charge(ctx context.Context, c model.Charge) (u *model.User, charged bool, err error) {
	const ins = `
INSERT INTO usage_charges (transfer_id, user_id, transfers, bytes)
VALUES ($1, $2, $3, $4)
ON CONFLICT (transfer_id) DO NOTHING`
	err = r.db.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, ins, c.TransferID, c.UserID, c.Transfers, c.Bytes)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			q := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
			u, err = scanUser(tx.QueryRow(ctx, q, c.UserID))
			return err
		}
		u, err = increment(ctx, tx, c.UserID, c.Transfers, c.Bytes)
		charged = err == nil
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return u, charged, nil
}

// SetPlan switches plan and limits if current usage already fits the target limits.
func (r *UserRepo) SetPlan(ctx context.Context, id string, plan model.Plan, limits quota.Limits) (u *model.User, err error) {
	err = r.db.inTx(ctx, func(tx pgx.Tx) error {
		cur, err := lockUser(ctx, tx, id)
		if err != nil {
			return err
		}
		if !quota.Fits(cur, limits) {
			return fmt.Errorf("%w: usage %d/%d bytes exceeds %s limits %d/%d bytes", errs.ErrPolicyViolation,
				cur.UsageCurrentPeriod, cur.StorageUsed, plan, limits.Transfers, limits.Storage)
		}
		q := `
UPDATE users
SET plan = $2, usage_limit = $3, storage_limit = $4, updated_at = now()
WHERE id = $1
RETURNING ` + userColumns
		u, err = scanUser(tx.QueryRow(ctx, q, id, string(plan), limits.Transfers, limits.Storage))
		return err
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// ResetPeriod zeroes the transfer counter of every user that has one.
func (r *UserRepo) ResetPeriod(ctx context.Context) (int64, error) {
	const q = `UPDATE users SET usage_current_period = 0, updated_at = now() WHERE usage_current_period > 0`
	tag, err := r.db.Pool.Exec(ctx, q)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
