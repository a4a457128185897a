package main

import (
	"context"
	"testing"

	"github.com/kelpcommercial/kelp-transfers/internal/model"
	"github.com/kelpcommercial/kelp-transfers/internal/quota"
)

type recAccounts struct {
	upgraded   *quota.Limits
	upgrades   int
	downgrades int
}

func (r *recAccounts) Provision(context.Context, string, string, string, string) (*model.User, error) {
	return nil, nil
}
func (r *recAccounts) Usage(context.Context, string) (*model.User, error) { return nil, nil }
func (r *recAccounts) UpgradeToPro(_ context.Context, id string, o *quota.Limits) (*model.User, error) {
	r.upgrades++
	r.upgraded = o
	l, err := quota.LimitsFor(model.PlanPro, o)
	if err != nil {
		return nil, err
	}
	return &model.User{ID: id, Plan: model.PlanPro, UsageLimit: l.Transfers, StorageLimit: l.Storage}, nil
}
func (r *recAccounts) DowngradeToFree(_ context.Context, id string) (*model.User, error) {
	r.downgrades++
	return &model.User{ID: id, Plan: model.PlanFree}, nil
}
func (r *recAccounts) ResetPeriod(context.Context) (int64, error) { return 0, nil }

func Test_parseArgs(t *testing.T) {
	a, err := parseArgs([]string{"-user", "u1", "-plan", "pro", "-storage", "53687091200"})
	if err != nil || a.userID != "u1" || a.plan != model.PlanPro || a.storage != 50*quota.GiB {
		t.Fatalf("pro args: %+v, %v", a, err)
	}

	bad := [][]string{
		{"-plan", "pro"},
		{"-user", "u1"},
		{"-user", "u1", "-plan", "gold"},
		{"-user", "u1", "-plan", "free", "-storage", "1"},
		{"-user", "u1", "-plan", "pro", "-transfers", "4000000000"},
		{"-user", "u1", "-plan", "pro", "-storage", "-1"},
	}
	for _, args := range bad {
		if _, err := parseArgs(args); err == nil {
			t.Fatalf("parseArgs(%v) should fail", args)
		}
	}
}

func Test_apply(t *testing.T) {
	ctx := context.Background()
	acc := &recAccounts{}

	u, err := apply(ctx, acc, planArgs{userID: "u1", plan: model.PlanPro})
	if err != nil || acc.upgraded != nil || u.StorageLimit != quota.ProLimits.Storage {
		t.Fatalf("pro defaults: %+v, %v", u, err)
	}

	u, err = apply(ctx, acc, planArgs{userID: "u1", plan: model.PlanPro, transfers: 40, storage: 50 * quota.GiB})
	if err != nil || u.UsageLimit != 40 || u.StorageLimit != 50*quota.GiB {
		t.Fatalf("pro overrides: %+v, %v", u, err)
	}

	if _, err := apply(ctx, acc, planArgs{userID: "u1", plan: model.PlanPro, storage: 1 << 63}); err == nil {
		t.Fatalf("storage above the bigint range must be rejected")
	}

	if _, err := apply(ctx, acc, planArgs{userID: "u1", plan: model.PlanFree}); err != nil || acc.downgrades != 1 {
		t.Fatalf("downgrade: %v", err)
	}
}
