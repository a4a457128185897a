// Package grpcserver exposes the kelp.transfers.v1 gRPC API handlers.
package grpcserver

import (
	"context"

	"go.uber.org/zap"

	api "github.com/kelpcommercial/kelp-transfers/internal/api/transferv1"
	"github.com/kelpcommercial/kelp-transfers/internal/convert"
	"github.com/kelpcommercial/kelp-transfers/internal/errs"
	"github.com/kelpcommercial/kelp-transfers/internal/service"
)

// Server wires services into gRPC handlers. Callers are authenticated by AuthUnary.
type Server struct {
	accounts  service.AccountService
	transfers service.TransferService
	log       *zap.Logger
}

var _ api.TransfersServer = (*Server)(nil)

// New constructs a gRPC server with injected services.
func New(accounts service.AccountService, transfers service.TransferService, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{accounts: accounts, transfers: transfers, log: log}
}

func (s *Server) caller(ctx context.Context) (string, error) {
	id, ok := CallerIDFromCtx(ctx)
	if !ok {
		return "", toStatus(s.log, "auth", errs.ErrUnauthenticated)
	}
	return id, nil
}

// --- Accounts ---

// RegisterUser provisions the caller's ledger entry on first access.
func (s *Server) RegisterUser(ctx context.Context, req *api.RegisterUserRequest) (*api.User, error) {
	id, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	u, err := s.accounts.Provision(ctx, id, req.Email, req.FullName, req.AvatarURL)
	if err != nil {
		return nil, toStatus(s.log, "register user", err)
	}
	return convert.ToAPIUser(u), nil
}

// GetUsage returns counters and limits.
func (s *Server) GetUsage(ctx context.Context, _ *api.GetUsageRequest) (*api.User, error) {
	id, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	u, err := s.accounts.Usage(ctx, id)
	if err != nil {
		return nil, toStatus(s.log, "get usage", err)
	}
	return convert.ToAPIUser(u), nil
}

// --- Transfers ---

func (s *Server) CreateTransfer(ctx context.Context, req *api.CreateTransferRequest) (*api.CreateTransferResponse, error) {
	id, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	in, err := convert.FromAPICreateTransfer(req)
	if err != nil {
		return nil, toStatus(s.log, "create transfer", err)
	}
	tid, err := s.transfers.CreateTransfer(ctx, id, in)
	if err != nil {
		return nil, toStatus(s.log, "create transfer", err)
	}
	return &api.CreateTransferResponse{ID: tid.String()}, nil
}

func (s *Server) GetTransfer(ctx context.Context, req *api.GetTransferRequest) (*api.Transfer, error) {
	id, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	tid, err := convert.ParseID(req.ID)
	if err != nil {
		return nil, toStatus(s.log, "get transfer", err)
	}
	t, err := s.transfers.GetTransfer(ctx, id, tid)
	if err != nil {
		return nil, toStatus(s.log, "get transfer", err)
	}
	return convert.ToAPITransfer(t), nil
}

// AuthorizeChunkUpload returns a pre-signed PUT for one chunk.
func (s *Server) AuthorizeChunkUpload(ctx context.Context, req *api.AuthorizeChunkUploadRequest) (*api.UploadLocation, error) {
	id, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	tid, err := convert.ParseID(req.TransferID)
	if err != nil {
		return nil, toStatus(s.log, "authorize chunk", err)
	}
	loc, err := s.transfers.AuthorizeChunkUpload(ctx, id, tid, req.FileID, req.ChunkIndex, req.ChunkSize)
	if err != nil {
		return nil, toStatus(s.log, "authorize chunk", err)
	}
	return convert.ToAPIUploadLocation(loc), nil
}

func (s *Server) RecordChunkProgress(ctx context.Context, req *api.RecordChunkProgressRequest) (*api.Transfer, error) {
	id, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	tid, err := convert.ParseID(req.TransferID)
	if err != nil {
		return nil, toStatus(s.log, "record progress", err)
	}
	t, err := s.transfers.RecordChunkProgress(ctx, id, tid, req.Files, req.Bytes)
	if err != nil {
		return nil, toStatus(s.log, "record progress", err)
	}
	return convert.ToAPITransfer(t), nil
}

func (s *Server) CompleteTransfer(ctx context.Context, req *api.CompleteTransferRequest) (*api.Transfer, error) {
	id, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	tid, err := convert.ParseID(req.TransferID)
	if err != nil {
		return nil, toStatus(s.log, "complete transfer", err)
	}
	t, err := s.transfers.CompleteTransfer(ctx, id, tid)
	if err != nil {
		return nil, toStatus(s.log, "complete transfer", err)
	}
	return convert.ToAPITransfer(t), nil
}

// ReconcileCharge retries the completion charge of a completed transfer.
func (s *Server) ReconcileCharge(ctx context.Context, req *api.ReconcileChargeRequest) (*api.ReconcileChargeResponse, error) {
	id, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	tid, err := convert.ParseID(req.TransferID)
	if err != nil {
		return nil, toStatus(s.log, "reconcile charge", err)
	}
	charged, err := s.transfers.ReconcileCharge(ctx, id, tid)
	if err != nil {
		return nil, toStatus(s.log, "reconcile charge", err)
	}
	return &api.ReconcileChargeResponse{Charged: charged}, nil
}
