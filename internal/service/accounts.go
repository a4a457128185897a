package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/kelpcommercial/kelp-transfers/internal/errs"
	"github.com/kelpcommercial/kelp-transfers/internal/model"
	"github.com/kelpcommercial/kelp-transfers/internal/quota"
	"github.com/kelpcommercial/kelp-transfers/internal/repository"
)

// AccountService manages the usage ledger entry and plan of a user.
type AccountService interface {
	// Provision creates the caller's ledger entry on first access with free limits.
	// An existing user is returned unchanged.
	Provision(ctx context.Context, callerID, email, fullName, avatarURL string) (*model.User, error)
	// Usage returns the caller's counters and limits.
	Usage(ctx context.Context, callerID string) (*model.User, error)
	// UpgradeToPro switches to pro; nonzero override fields replace the pro defaults.
	UpgradeToPro(ctx context.Context, callerID string, overrides *quota.Limits) (*model.User, error)
	// DowngradeToFree switches to free if current usage fits the free limits.
	DowngradeToFree(ctx context.Context, callerID string) (*model.User, error)
	// ResetPeriod starts a new accounting period for every user.
	ResetPeriod(ctx context.Context) (int64, error)
}

type AccountServiceImpl struct {
	users    repository.UserRepository
	validate *validator.Validate
	log      *zap.Logger
}

// NewAccountService constructs AccountService.
func NewAccountService(users repository.UserRepository, log *zap.Logger) *AccountServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &AccountServiceImpl{users: users, validate: validator.New(), log: log}
}

var _ AccountService = (*AccountServiceImpl)(nil)

// Provision is idempotent; a concurrent first access that loses the insert reads the winner's row.
func (s *AccountServiceImpl) Provision(ctx context.Context, callerID, email, fullName, avatarURL string) (*model.User, error) {
	if callerID == "" {
		return nil, errs.ErrUnauthenticated
	}
	u, err := s.users.Get(ctx, callerID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}
	if err := s.validate.Var(email, "required,email"); err != nil {
		return nil, fmt.Errorf("%w: email: %s", errs.ErrInvalidArgument, err)
	}
	if avatarURL != "" {
		if err := s.validate.Var(avatarURL, "url"); err != nil {
			return nil, fmt.Errorf("%w: avatar_url: %s", errs.ErrInvalidArgument, err)
		}
	}

	u = &model.User{
		ID:           callerID,
		Email:        email,
		FullName:     fullName,
		AvatarURL:    avatarURL,
		Plan:         model.PlanFree,
		UsageLimit:   quota.FreeLimits.Transfers,
		StorageLimit: quota.FreeLimits.Storage,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, errs.ErrConflict) {
			return s.users.Get(ctx, callerID)
		}
		return nil, err
	}
	s.log.Info("user provisioned", zap.String("user_id", callerID))
	return u, nil
}

func (s *AccountServiceImpl) Usage(ctx context.Context, callerID string) (*model.User, error) {
	if callerID == "" {
		return nil, errs.ErrUnauthenticated
	}
	return s.users.Get(ctx, callerID)
}

func (s *AccountServiceImpl) UpgradeToPro(ctx context.Context, callerID string, overrides *quota.Limits) (*model.User, error) {
	return s.setPlan(ctx, callerID, model.PlanPro, overrides)
}

func (s *AccountServiceImpl) DowngradeToFree(ctx context.Context, callerID string) (*model.User, error) {
	return s.setPlan(ctx, callerID, model.PlanFree, nil)
}

func (s *AccountServiceImpl) setPlan(ctx context.Context, callerID string, plan model.Plan, overrides *quota.Limits) (*model.User, error) {
	if callerID == "" {
		return nil, errs.ErrUnauthenticated
	}
	limits, err := quota.LimitsFor(plan, overrides)
	if err != nil {
		return nil, err
	}
	u, err := s.users.SetPlan(ctx, callerID, plan, limits)
	if err != nil {
		return nil, err
	}
	s.log.Info("plan changed",
		zap.String("user_id", callerID),
		zap.String("plan", string(plan)),
		zap.Uint32("usage_limit", limits.Transfers),
		zap.Uint64("storage_limit", limits.Storage))
	return u, nil
}

func (s *AccountServiceImpl) ResetPeriod(ctx context.Context) (int64, error) {
	n, err := s.users.ResetPeriod(ctx)
	if err != nil {
		return 0, err
	}
	s.log.Info("usage period reset", zap.Int64("users", n))
	return n, nil
}
