// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/kelpcommercial/kelp-transfers/internal/model"
	"github.com/kelpcommercial/kelp-transfers/internal/quota"
)

// UserRepository is the usage ledger: it owns the per-user counters and plan limits.
// Every mutation of a single user serializes on that user's row; different users never block each other.
type UserRepository interface {
	// Create inserts a new user. Returns errs.ErrConflict if the id exists.
	Create(ctx context.Context, u *model.User) error
	// Get loads a user by id.
	Get(ctx context.Context, id string) (*model.User, error)
	// Increment adds both deltas atomically and returns the post-update snapshot.
	// Fails with a QuotaError if the result would exceed the user's limits.
	Increment(ctx context.Context, id string, deltaTransfers uint32, deltaBytes uint64) (*model.User, error)
	// Charge records the usage of a completed transfer exactly once per transfer id.
	// charged is false when the transfer had already been charged; counters are untouched then.
	Charge(ctx context.Context, c model.Charge) (u *model.User, charged bool, err error)
	// SetPlan overwrites plan and limits if current usage fits them, else errs.ErrPolicyViolation.
	SetPlan(ctx context.Context, id string, plan model.Plan, limits quota.Limits) (*model.User, error)
	// ResetPeriod zeroes usage_current_period for all users with nonzero usage.
	ResetPeriod(ctx context.Context) (int64, error)
}
