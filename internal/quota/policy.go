// Package quota holds the plan limits table and the admission checks evaluated before every state change.
// All functions are pure; size arithmetic is unsigned 64-bit and never wraps.
package quota

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/kelpcommercial/kelp-transfers/internal/errs"
	"github.com/kelpcommercial/kelp-transfers/internal/model"
)

// GiB is 2^30 bytes.
const GiB uint64 = 1 << 30

// Upper bounds of anything persisted; counters are integer and sizes bigint columns.
const (
	MaxTransfers uint32 = math.MaxInt32
	MaxStorage   uint64 = math.MaxInt64
)

// Limits are the per-period caps of a plan.
type Limits struct {
	Transfers uint32 // transfers per period
	Storage   uint64 // bytes per period
}

// Plan defaults.
var (
	FreeLimits = Limits{Transfers: 8, Storage: 5 * GiB}
	ProLimits  = Limits{Transfers: 30, Storage: 10 * GiB}
)

// LimitsFor returns the limits of plan. Overrides only apply to pro; zero fields keep the default.
func LimitsFor(plan model.Plan, overrides *Limits) (Limits, error) {
	switch plan {
	case model.PlanFree:
		return FreeLimits, nil
	case model.PlanPro:
		l := ProLimits
		if overrides != nil {
			if overrides.Transfers > MaxTransfers || overrides.Storage > MaxStorage {
				return Limits{}, fmt.Errorf("%w: pro overrides out of range", errs.ErrInvalidArgument)
			}
			if overrides.Transfers > 0 {
				l.Transfers = overrides.Transfers
			}
			if overrides.Storage > 0 {
				l.Storage = overrides.Storage
			}
		}
		return l, nil
	default:
		return Limits{}, fmt.Errorf("%w: unknown plan %q", errs.ErrInvalidArgument, plan)
	}
}

// Add returns a+b or ErrOverflow when the sum does not fit in 64 bits.
func Add(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: %d + %d", errs.ErrOverflow, a, b)
	}
	return sum, nil
}

// AdmitTransferCreation checks the transfer count and whether declared bytes still fit the period.
func AdmitTransferCreation(u *model.User, declared uint64) error {
	if u.UsageCurrentPeriod >= u.UsageLimit {
		return errs.Quota(errs.ResourceTransfers, uint64(u.UsageLimit), uint64(u.UsageCurrentPeriod)+1)
	}
	total, err := Add(u.StorageUsed, declared)
	if err != nil {
		return err
	}
	if total > u.StorageLimit {
		return errs.Quota(errs.ResourceStorage, u.StorageLimit, total)
	}
	return nil
}

// AdmitChunk checks that a transfer's total plus the chunk stays within the account-wide storage limit.
// A zero-sized chunk is always admitted as long as the current total itself fits.
func AdmitChunk(u *model.User, currentTotal, chunk uint64) error {
	total, err := Add(currentTotal, chunk)
	if err != nil {
		return err
	}
	if total > u.StorageLimit {
		return errs.Quota(errs.ResourceStorage, u.StorageLimit, total)
	}
	return nil
}

// AdmitCharge checks that charging one transfer of size bytes keeps both counters within limits.
func AdmitCharge(u *model.User, bytes uint64) error {
	if u.UsageCurrentPeriod >= u.UsageLimit {
		return errs.Quota(errs.ResourceTransfers, uint64(u.UsageLimit), uint64(u.UsageCurrentPeriod)+1)
	}
	total, err := Add(u.StorageUsed, bytes)
	if err != nil {
		return err
	}
	if total > u.StorageLimit {
		return errs.Quota(errs.ResourceStorage, u.StorageLimit, total)
	}
	return nil
}

// Fits reports whether the user's current usage is within l.
func Fits(u *model.User, l Limits) bool {
	return u.UsageCurrentPeriod <= l.Transfers && u.StorageUsed <= l.Storage
}
