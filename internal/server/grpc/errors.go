package grpcserver

import (
	"context"
	"errors"
	"strconv"

	"go.uber.org/zap"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kelpcommercial/kelp-transfers/internal/errs"
)

// ErrorDomain is the ErrorInfo domain of every reasoned status.
const ErrorDomain = "kelp.transfers.v1"

// ErrorInfo reasons. Codes are shared between some of them; clients branch on the reason.
const (
	ReasonQuotaExceeded   = "QUOTA_EXCEEDED"
	ReasonRateLimited     = "RATE_LIMITED"
	ReasonInvalidState    = "INVALID_STATE"
	ReasonPolicyViolation = "POLICY_VIOLATION"
)

// reasoned builds a status carrying an ErrorInfo detail plus any extra details.
func reasoned(code codes.Code, msg, reason string, md map[string]string, extra ...*errdetails.QuotaFailure) error {
	st := status.New(code, msg)
	info := &errdetails.ErrorInfo{Reason: reason, Domain: ErrorDomain, Metadata: md}
	withInfo, err := st.WithDetails(info)
	if err != nil {
		return st.Err()
	}
	for _, d := range extra {
		if next, err := withInfo.WithDetails(d); err == nil {
			withInfo = next
		}
	}
	return withInfo.Err()
}

func quotaStatus(qe *errs.QuotaError) error {
	md := map[string]string{
		"resource":  string(qe.Resource),
		"limit":     strconv.FormatUint(qe.Limit, 10),
		"attempted": strconv.FormatUint(qe.Attempted, 10),
	}
	qf := &errdetails.QuotaFailure{Violations: []*errdetails.QuotaFailure_Violation{{
		Subject:     string(qe.Resource),
		Description: qe.Error(),
	}}}
	return reasoned(codes.ResourceExhausted, qe.Error(), ReasonQuotaExceeded, md, qf)
}

// toStatus maps domain errors to stable gRPC codes. Unknown errors are logged and reported as Internal.
func toStatus(log *zap.Logger, op string, err error) error {
	if err == nil {
		return nil
	}
	var qe *errs.QuotaError
	switch {
	case errors.As(err, &qe):
		return quotaStatus(qe)
	case errors.Is(err, errs.ErrQuotaExceeded):
		return reasoned(codes.ResourceExhausted, err.Error(), ReasonQuotaExceeded, nil)
	case errors.Is(err, errs.ErrRateLimited):
		return reasoned(codes.ResourceExhausted, "rate limited", ReasonRateLimited, nil)
	case errors.Is(err, errs.ErrUnauthenticated):
		return status.Error(codes.Unauthenticated, "unauthenticated")
	case errors.Is(err, errs.ErrNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, errs.ErrConflict):
		return status.Error(codes.AlreadyExists, "already exists")
	case errors.Is(err, errs.ErrInvalidState):
		return reasoned(codes.FailedPrecondition, err.Error(), ReasonInvalidState, nil)
	case errors.Is(err, errs.ErrPolicyViolation):
		return reasoned(codes.FailedPrecondition, err.Error(), ReasonPolicyViolation, nil)
	case errors.Is(err, errs.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, errs.ErrOverflow):
		return status.Error(codes.OutOfRange, "size overflow")
	case errors.Is(err, errs.ErrStorageUnavailable):
		log.Warn("object store unavailable", zap.String("op", op), zap.Error(err))
		return status.Error(codes.Unavailable, "storage unavailable")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	default:
		log.Error("internal error", zap.String("op", op), zap.Error(err))
		return status.Error(codes.Internal, "internal")
	}
}
