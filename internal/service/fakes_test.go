package service

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/kelpcommercial/kelp-transfers/internal/errs"
	"github.com/kelpcommercial/kelp-transfers/internal/model"
	"github.com/kelpcommercial/kelp-transfers/internal/quota"
	"github.com/kelpcommercial/kelp-transfers/internal/repository"
)

// fakeUsers is an in-memory ledger with the same admission rules as the postgres one.
type fakeUsers struct {
	mu      sync.Mutex
	byID    map[string]*model.User
	charged map[uuid.UUID]bool

	createErr error
	chargeErr error
	charges   int
}

var _ repository.UserRepository = (*fakeUsers)(nil)

func newFakeUsers(us ...model.User) *fakeUsers {
	f := &fakeUsers{byID: map[string]*model.User{}, charged: map[uuid.UUID]bool{}}
	for i := range us {
		u := us[i]
		f.byID[u.ID] = &u
	}
	return f
}

func (f *fakeUsers) Create(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.byID[u.ID]; ok {
		return errs.ErrConflict
	}
	c := *u
	f.byID[u.ID] = &c
	return nil
}

func (f *fakeUsers) Get(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (f *fakeUsers) incrementLocked(id string, dt uint32, db uint64) (*model.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	usage := uint64(u.UsageCurrentPeriod) + uint64(dt)
	if usage > uint64(u.UsageLimit) {
		return nil, errs.Quota(errs.ResourceTransfers, uint64(u.UsageLimit), usage)
	}
	storage, err := quota.Add(u.StorageUsed, db)
	if err != nil {
		return nil, err
	}
	if storage > u.StorageLimit {
		return nil, errs.Quota(errs.ResourceStorage, u.StorageLimit, storage)
	}
	u.UsageCurrentPeriod, u.StorageUsed = uint32(usage), storage
	c := *u
	return &c, nil
}

func (f *fakeUsers) Increment(_ context.Context, id string, dt uint32, db uint64) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.incrementLocked(id, dt, db)
}

func (f *fakeUsers) Charge(_ context.Context, c model.Charge) (*model.User, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.chargeErr != nil {
		return nil, false, f.chargeErr
	}
	if f.charged[c.TransferID] {
		u := *f.byID[c.UserID]
		return &u, false, nil
	}
	u, err := f.incrementLocked(c.UserID, c.Transfers, c.Bytes)
	if err != nil {
		return nil, false, err
	}
	f.charged[c.TransferID] = true
	f.charges++
	return u, true, nil
}

func (f *fakeUsers) SetPlan(_ context.Context, id string, plan model.Plan, l quota.Limits) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	if !quota.Fits(u, l) {
		return nil, fmt.Errorf("%w: usage exceeds %s limits", errs.ErrPolicyViolation, plan)
	}
	u.Plan, u.UsageLimit, u.StorageLimit = plan, l.Transfers, l.Storage
	c := *u
	return &c, nil
}

func (f *fakeUsers) ResetPeriod(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, u := range f.byID {
		if u.UsageCurrentPeriod > 0 {
			u.UsageCurrentPeriod = 0
			n++
		}
	}
	return n, nil
}

func (f *fakeUsers) snapshot(id string) model.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.byID[id]
}

// fakeTransfers serializes every mutation on one mutex, mirroring the row lock.
type fakeTransfers struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*model.Transfer

	setStatusErr error
	statusWrites int
	// onSetStatus runs after a successful status write, outside the lock.
	onSetStatus func(id uuid.UUID)
}

var _ repository.TransferRepository = (*fakeTransfers)(nil)

func newFakeTransfers() *fakeTransfers {
	return &fakeTransfers{byID: map[uuid.UUID]*model.Transfer{}}
}

func (f *fakeTransfers) Create(_ context.Context, t *model.Transfer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[t.ID]; ok {
		return errs.ErrConflict
	}
	c := *t
	f.byID[t.ID] = &c
	return nil
}

func (f *fakeTransfers) Get(_ context.Context, id uuid.UUID) (*model.Transfer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *t
	return &c, nil
}

func (f *fakeTransfers) ApplyProgress(_ context.Context, id uuid.UUID, p model.Progress) (*model.Transfer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	if !t.Writable(p.Now) {
		return nil, errs.ErrInvalidState
	}
	total, err := quota.Add(t.TotalSize, p.Bytes)
	if err != nil {
		return nil, err
	}
	if total > p.MaxTotalSize {
		return nil, errs.Quota(errs.ResourceStorage, p.MaxTotalSize, total)
	}
	t.FileCount += p.Files
	t.TotalSize = total
	if t.Status == model.StatusPending {
		t.Status = model.StatusProcessing
	}
	c := *t
	return &c, nil
}

func (f *fakeTransfers) SetStatus(_ context.Context, id uuid.UUID, from []model.TransferStatus, to model.TransferStatus) (*model.Transfer, error) {
	f.mu.Lock()
	if f.setStatusErr != nil {
		f.mu.Unlock()
		return nil, f.setStatusErr
	}
	t, ok := f.byID[id]
	if !ok {
		f.mu.Unlock()
		return nil, errs.ErrNotFound
	}
	if !slices.Contains(from, t.Status) {
		f.mu.Unlock()
		return nil, errs.ErrInvalidState
	}
	t.Status = to
	f.statusWrites++
	c := *t
	hook := f.onSetStatus
	f.mu.Unlock()
	if hook != nil {
		hook(id)
	}
	return &c, nil
}

func (f *fakeTransfers) CountOpen(_ context.Context, ownerID string, now time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.byID {
		if t.OwnerID == ownerID && t.Writable(now) {
			n++
		}
	}
	return n, nil
}

func (f *fakeTransfers) status(id uuid.UUID) model.TransferStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[id].Status
}

type fakeIssuer struct {
	mu    sync.Mutex
	err   error
	paths []string
	ttls  []time.Duration
}

func (f *fakeIssuer) Issue(_ context.Context, path string, ttl time.Duration) (model.UploadLocation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, path)
	f.ttls = append(f.ttls, ttl)
	if f.err != nil {
		return model.UploadLocation{}, f.err
	}
	return model.UploadLocation{Path: path, URL: "https://store.test/" + path, ExpiresAt: time.Now().Add(ttl)}, nil
}
