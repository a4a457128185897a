package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid/v5"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/kelpcommercial/kelp-transfers/internal/errs"
	"github.com/kelpcommercial/kelp-transfers/internal/model"
	"github.com/kelpcommercial/kelp-transfers/internal/quota"
	"github.com/kelpcommercial/kelp-transfers/internal/repository"
	"github.com/kelpcommercial/kelp-transfers/internal/storage"
)

// DefaultUploadTTL is the validity of an issued upload URL.
const DefaultUploadTTL = time.Hour

// TransferService drives the transfer lifecycle and enforces the caller's quota at every step.
type TransferService interface {
	// CreateTransfer registers a pending transfer. Usage is not charged until completion.
	CreateTransfer(ctx context.Context, callerID string, in CreateTransferInput) (uuid.UUID, error)
	// GetTransfer returns a transfer owned by the caller.
	GetTransfer(ctx context.Context, callerID string, id uuid.UUID) (*model.Transfer, error)
	// AuthorizeChunkUpload issues an upload location for one chunk. It reserves nothing.
	AuthorizeChunkUpload(ctx context.Context, callerID string, transferID uuid.UUID, fileID string,
		chunkIndex uint32, chunkSize uint64) (model.UploadLocation, error)
	// RecordChunkProgress adds uploaded files and bytes to the transfer.
	RecordChunkProgress(ctx context.Context, callerID string, transferID uuid.UUID,
		deltaFiles uint32, deltaBytes uint64) (*model.Transfer, error)
	// CompleteTransfer marks the transfer completed and charges the caller once.
	CompleteTransfer(ctx context.Context, callerID string, transferID uuid.UUID) (*model.Transfer, error)
	// ReconcileCharge retries the usage charge of a completed transfer; charged is false if it was already applied.
	ReconcileCharge(ctx context.Context, callerID string, transferID uuid.UUID) (charged bool, err error)
}

// CreateTransferInput describes a new transfer. A nil ID asks the service to generate one.
type CreateTransferInput struct {
	ID              uuid.UUID
	SenderEmail     string    `validate:"required,email"`
	RecipientEmails []string  `validate:"required,min=1,dive,required,email"`
	Title           string    `validate:"required,max=255"`
	TotalSize       uint64    // declared bytes
	ExpiresAt       time.Time `validate:"required"`
}

// TransferOptions tunes the orchestrator. Zero values select defaults.
type TransferOptions struct {
	UploadTTL        time.Duration
	MaxOpenTransfers int // 0 disables the in-flight cap
	Now              func() time.Time
}

type TransferServiceImpl struct {
	users     repository.UserRepository
	transfers repository.TransferRepository
	issuer    storage.LocationIssuer
	opts      TransferOptions
	validate  *validator.Validate
	sanitizer *bluemonday.Policy
	log       *zap.Logger
}

// NewTransferService wires the orchestrator to its collaborators.
func NewTransferService(
	users repository.UserRepository,
	transfers repository.TransferRepository,
	issuer storage.LocationIssuer,
	opts TransferOptions,
	log *zap.Logger,
) *TransferServiceImpl {
	if opts.UploadTTL <= 0 {
		opts.UploadTTL = DefaultUploadTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &TransferServiceImpl{
		users:     users,
		transfers: transfers,
		issuer:    issuer,
		opts:      opts,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		sanitizer: bluemonday.StrictPolicy(),
		log:       log,
	}
}

var _ TransferService = (*TransferServiceImpl)(nil)

// CreateTransfer validates input, admits it against the caller's plan and persists a pending transfer.
func (s *TransferServiceImpl) CreateTransfer(ctx context.Context, callerID string, in CreateTransferInput) (uuid.UUID, error) {
	if callerID == "" {
		return uuid.Nil, errs.ErrUnauthenticated
	}
	if err := s.validate.Struct(in); err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s", errs.ErrInvalidArgument, err)
	}
	now := s.opts.Now()
	if !in.ExpiresAt.After(now) {
		return uuid.Nil, fmt.Errorf("%w: expires_at must be in the future", errs.ErrInvalidArgument)
	}
	if in.TotalSize > quota.MaxStorage {
		return uuid.Nil, fmt.Errorf("%w: total_size %d exceeds %d", errs.ErrOverflow, in.TotalSize, quota.MaxStorage)
	}

	user, err := s.users.Get(ctx, callerID)
	if err != nil {
		return uuid.Nil, err
	}
	if err := quota.AdmitTransferCreation(user, in.TotalSize); err != nil {
		return uuid.Nil, err
	}
	if limit := s.opts.MaxOpenTransfers; limit > 0 {
		open, err := s.transfers.CountOpen(ctx, callerID, now)
		if err != nil {
			return uuid.Nil, err
		}
		if open >= limit {
			return uuid.Nil, errs.Quota(errs.ResourceTransfers, uint64(limit), uint64(open)+1)
		}
	}

	id := in.ID
	if id == uuid.Nil {
		if id, err = uuid.NewV4(); err != nil {
			return uuid.Nil, err
		}
	}
	t := &model.Transfer{
		ID:              id,
		OwnerID:         callerID,
		SenderEmail:     in.SenderEmail,
		RecipientEmails: append([]string(nil), in.RecipientEmails...),
		Title:           s.sanitizer.Sanitize(in.Title),
		Status:          model.StatusPending,
		DeclaredSize:    in.TotalSize,
		ExpiresAt:       in.ExpiresAt,
	}
	if err := s.transfers.Create(ctx, t); err != nil {
		return uuid.Nil, err
	}
	s.log.Info("transfer created",
		zap.String("transfer_id", id.String()),
		zap.String("owner_id", callerID),
		zap.Uint64("declared_size", in.TotalSize))
	return id, nil
}

// GetTransfer reports expired transfers as expired even before the status has been persisted.
func (s *TransferServiceImpl) GetTransfer(ctx context.Context, callerID string, id uuid.UUID) (*model.Transfer, error) {
	t, err := s.owned(ctx, callerID, id)
	if err != nil {
		return nil, err
	}
	t.Status = t.EffectiveStatus(s.opts.Now())
	return t, nil
}

// AuthorizeChunkUpload runs an optimistic, read-only admission check; the authoritative check
// happens when progress is recorded.
func (s *TransferServiceImpl) AuthorizeChunkUpload(
	ctx context.Context, callerID string, transferID uuid.UUID, fileID string, chunkIndex uint32, chunkSize uint64,
) (model.UploadLocation, error) {
	t, err := s.owned(ctx, callerID, transferID)
	if err != nil {
		return model.UploadLocation{}, err
	}
	if fileID == "" {
		return model.UploadLocation{}, fmt.Errorf("%w: empty file id", errs.ErrInvalidArgument)
	}
	if err := s.requireWritable(ctx, t); err != nil {
		return model.UploadLocation{}, err
	}
	user, err := s.users.Get(ctx, callerID)
	if err != nil {
		return model.UploadLocation{}, err
	}
	if err := quota.AdmitChunk(user, t.TotalSize, chunkSize); err != nil {
		return model.UploadLocation{}, err
	}
	return s.issuer.Issue(ctx, storage.ChunkPath(t.ID, fileID, chunkIndex), s.opts.UploadTTL)
}

// RecordChunkProgress applies the increment; the store re-checks the bound against the persisted total.
func (s *TransferServiceImpl) RecordChunkProgress(
	ctx context.Context, callerID string, transferID uuid.UUID, deltaFiles uint32, deltaBytes uint64,
) (*model.Transfer, error) {
	t, err := s.owned(ctx, callerID, transferID)
	if err != nil {
		return nil, err
	}
	if err := s.requireWritable(ctx, t); err != nil {
		return nil, err
	}
	if deltaBytes > quota.MaxStorage {
		return nil, fmt.Errorf("%w: chunk of %d bytes", errs.ErrOverflow, deltaBytes)
	}
	if uint64(t.FileCount)+uint64(deltaFiles) > uint64(quota.MaxTransfers) {
		return nil, fmt.Errorf("%w: file count %d + %d", errs.ErrOverflow, t.FileCount, deltaFiles)
	}
	user, err := s.users.Get(ctx, callerID)
	if err != nil {
		return nil, err
	}
	return s.transfers.ApplyProgress(ctx, transferID, model.Progress{
		Files:        deltaFiles,
		Bytes:        deltaBytes,
		MaxTotalSize: user.StorageLimit,
		Now:          s.opts.Now(),
	})
}

// CompleteTransfer flips the transfer to completed, then charges the caller. A failed charge leaves the
// transfer completed; ReconcileCharge repairs it.
func (s *TransferServiceImpl) CompleteTransfer(ctx context.Context, callerID string, transferID uuid.UUID) (*model.Transfer, error) {
	t, err := s.owned(ctx, callerID, transferID)
	if err != nil {
		return nil, err
	}
	if err := s.requireWritable(ctx, t); err != nil {
		return nil, err
	}
	user, err := s.users.Get(ctx, callerID)
	if err != nil {
		return nil, err
	}
	if err := quota.AdmitCharge(user, t.BillableSize()); err != nil {
		return nil, err
	}

	done, err := s.transfers.SetStatus(ctx, transferID, model.WritableStatuses, model.StatusCompleted)
	if err != nil {
		return nil, err
	}
	bytes := done.BillableSize()
	if _, _, err := s.users.Charge(ctx, model.Charge{
		TransferID: transferID,
		UserID:     callerID,
		Transfers:  1,
		Bytes:      bytes,
	}); err != nil {
		s.log.Error("transfer completed but usage not charged",
			zap.String("transfer_id", transferID.String()),
			zap.String("owner_id", callerID),
			zap.Uint64("bytes", bytes),
			zap.Error(err))
		return nil, fmt.Errorf("charge transfer %s: %w", transferID, err)
	}
	s.log.Info("transfer completed",
		zap.String("transfer_id", transferID.String()),
		zap.String("owner_id", callerID),
		zap.Uint64("bytes", bytes))
	return done, nil
}

// ReconcileCharge applies the completion charge alone, keyed by transfer id.
func (s *TransferServiceImpl) ReconcileCharge(ctx context.Context, callerID string, transferID uuid.UUID) (bool, error) {
	t, err := s.owned(ctx, callerID, transferID)
	if err != nil {
		return false, err
	}
	if t.Status != model.StatusCompleted {
		return false, fmt.Errorf("%w: transfer %s is %s", errs.ErrInvalidState, transferID, t.Status)
	}
	_, charged, err := s.users.Charge(ctx, model.Charge{
		TransferID: transferID,
		UserID:     callerID,
		Transfers:  1,
		Bytes:      t.BillableSize(),
	})
	if err != nil {
		return false, err
	}
	if charged {
		s.log.Info("completion charge reconciled", zap.String("transfer_id", transferID.String()))
	}
	return charged, nil
}

// owned loads a transfer and hides transfers of other users behind ErrNotFound.
func (s *TransferServiceImpl) owned(ctx context.Context, callerID string, id uuid.UUID) (*model.Transfer, error) {
	if callerID == "" {
		return nil, errs.ErrUnauthenticated
	}
	if id == uuid.Nil {
		return nil, fmt.Errorf("%w: empty transfer id", errs.ErrInvalidArgument)
	}
	t, err := s.transfers.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.OwnerID != callerID {
		return nil, errs.ErrNotFound
	}
	return t, nil
}

// requireWritable rejects terminal and expired transfers. Expiry is persisted lazily here.
func (s *TransferServiceImpl) requireWritable(ctx context.Context, t *model.Transfer) error {
	if t.Status.Terminal() {
		return fmt.Errorf("%w: transfer %s is %s", errs.ErrInvalidState, t.ID, t.Status)
	}
	if t.Expired(s.opts.Now()) {
		s.expire(ctx, t)
		return fmt.Errorf("%w: transfer %s is %s", errs.ErrInvalidState, t.ID, model.StatusExpired)
	}
	return nil
}

func (s *TransferServiceImpl) expire(ctx context.Context, t *model.Transfer) {
	_, err := s.transfers.SetStatus(ctx, t.ID, model.WritableStatuses, model.StatusExpired)
	switch {
	case err == nil:
		s.log.Info("transfer expired", zap.String("transfer_id", t.ID.String()), zap.Time("expires_at", t.ExpiresAt))
	case errors.Is(err, errs.ErrInvalidState):
	default:
		s.log.Warn("persist expiry", zap.String("transfer_id", t.ID.String()), zap.Error(err))
	}
}
