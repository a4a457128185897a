package quota

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kelpcommercial/kelp-transfers/internal/errs"
	"github.com/kelpcommercial/kelp-transfers/internal/model"
)

func freeUser() *model.User {
	return &model.User{
		ID:           "user_1",
		Plan:         model.PlanFree,
		UsageLimit:   FreeLimits.Transfers,
		StorageLimit: FreeLimits.Storage,
	}
}

func quotaErr(t *testing.T, err error) *errs.QuotaError {
	t.Helper()
	var qe *errs.QuotaError
	require.True(t, errors.As(err, &qe), "want QuotaError, got %v", err)
	return qe
}

func TestLimitsFor(t *testing.T) {
	t.Parallel()

	l, err := LimitsFor(model.PlanFree, &Limits{Transfers: 100})
	require.NoError(t, err)
	require.Equal(t, FreeLimits, l, "free ignores overrides")

	l, err = LimitsFor(model.PlanPro, nil)
	require.NoError(t, err)
	require.Equal(t, ProLimits, l)

	l, err = LimitsFor(model.PlanPro, &Limits{Storage: 50 * GiB})
	require.NoError(t, err)
	require.Equal(t, Limits{Transfers: 30, Storage: 50 * GiB}, l)

	_, err = LimitsFor("gold", nil)
	require.ErrorIs(t, err, errs.ErrInvalidArgument)
}

func TestLimitsFor_OverridesBounded(t *testing.T) {
	t.Parallel()

	l, err := LimitsFor(model.PlanPro, &Limits{Transfers: MaxTransfers, Storage: MaxStorage})
	require.NoError(t, err)
	require.Equal(t, Limits{Transfers: MaxTransfers, Storage: MaxStorage}, l)

	_, err = LimitsFor(model.PlanPro, &Limits{Storage: 1 << 63})
	require.ErrorIs(t, err, errs.ErrInvalidArgument)

	_, err = LimitsFor(model.PlanPro, &Limits{Transfers: math.MaxUint32})
	require.ErrorIs(t, err, errs.ErrInvalidArgument)
}

func TestAdd_Overflow(t *testing.T) {
	t.Parallel()

	s, err := Add(1, 2)
	require.NoError(t, err)
	require.Equal(t, uint64(3), s)

	_, err = Add(math.MaxUint64, 10)
	require.ErrorIs(t, err, errs.ErrOverflow)

	s, err = Add(math.MaxUint64, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(math.MaxUint64), s)
}

func TestAdmitTransferCreation(t *testing.T) {
	t.Parallel()

	u := freeUser()
	require.NoError(t, AdmitTransferCreation(u, 4*GiB))
	require.NoError(t, AdmitTransferCreation(u, 5*GiB), "exactly at the limit is allowed")

	qe := quotaErr(t, AdmitTransferCreation(u, 5*GiB+1))
	require.Equal(t, errs.ResourceStorage, qe.Resource)
	require.Equal(t, 5*GiB, qe.Limit)
	require.Equal(t, 5*GiB+1, qe.Attempted)

	u.UsageCurrentPeriod = 8
	qe = quotaErr(t, AdmitTransferCreation(u, 0))
	require.Equal(t, errs.ResourceTransfers, qe.Resource)
	require.Equal(t, uint64(8), qe.Limit)
	require.Equal(t, uint64(9), qe.Attempted)
}

func TestAdmitTransferCreation_OverflowIsNotAdmitted(t *testing.T) {
	t.Parallel()

	u := freeUser()
	u.StorageUsed = math.MaxUint64
	u.StorageLimit = math.MaxUint64
	err := AdmitTransferCreation(u, 10)
	require.ErrorIs(t, err, errs.ErrOverflow)
	require.NotErrorIs(t, err, errs.ErrQuotaExceeded)
}

func TestAdmitChunk(t *testing.T) {
	t.Parallel()

	u := freeUser()
	require.NoError(t, AdmitChunk(u, 0, 2*GiB))
	require.NoError(t, AdmitChunk(u, 5*GiB, 0), "zero-sized chunk at the limit")

	qe := quotaErr(t, AdmitChunk(u, 4*GiB, 2*GiB))
	require.Equal(t, errs.ResourceStorage, qe.Resource)
	require.Equal(t, 6*GiB, qe.Attempted)

	// The bound is the account limit, not the usage left in the period.
	u.StorageUsed = 4 * GiB
	require.NoError(t, AdmitChunk(u, 0, 3*GiB))

	require.ErrorIs(t, AdmitChunk(u, math.MaxUint64-1, 2), errs.ErrOverflow)
}

func TestAdmitCharge(t *testing.T) {
	t.Parallel()

	u := freeUser()
	require.NoError(t, AdmitCharge(u, 4*GiB))

	u.StorageUsed = 3 * GiB
	qe := quotaErr(t, AdmitCharge(u, 3*GiB))
	require.Equal(t, errs.ResourceStorage, qe.Resource)

	u.StorageUsed = 0
	u.UsageCurrentPeriod = 8
	qe = quotaErr(t, AdmitCharge(u, 0))
	require.Equal(t, errs.ResourceTransfers, qe.Resource)
}

func TestFits(t *testing.T) {
	t.Parallel()

	u := freeUser()
	u.UsageCurrentPeriod, u.StorageUsed = 8, 5*GiB
	require.True(t, Fits(u, FreeLimits))

	u.StorageUsed = 6 * GiB
	require.False(t, Fits(u, FreeLimits))

	u.StorageUsed, u.UsageCurrentPeriod = 0, 9
	require.False(t, Fits(u, FreeLimits))
}
