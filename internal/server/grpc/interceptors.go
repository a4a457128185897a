package grpcserver

import (
	"context"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/kelpcommercial/kelp-transfers/internal/limiter"
)

// LoggingUnary returns a unary server interceptor for structured logging.
func LoggingUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		code := status.Code(err)

		var remote string
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			remote = p.Addr.String()
		}

		// metadata only, never payloads
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Duration("dur", time.Since(start)),
			zap.String("peer", remote),
		}
		if id, ok := CallerIDFromCtx(ctx); ok {
			fields = append(fields, zap.String("caller", id))
		}
		log.Info("grpc", fields...)
		return resp, err
	}
}

// RecoverUnary returns a unary server interceptor that recovers from panics.
func RecoverUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic",
					zap.Any("reason", r),
					zap.ByteString("stack", debug.Stack()),
					zap.String("method", info.FullMethod),
				)
				err = status.Error(codes.Internal, "internal")
			}
		}()
		return next(ctx, req)
	}
}

// AuthUnary verifies the bearer token of every method under servicePrefix and stores the caller id
// in the context. Other services (health) pass through.
func AuthUnary(v Verifier, servicePrefix string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		if !strings.HasPrefix(info.FullMethod, servicePrefix) {
			return next(ctx, req)
		}
		tok, err := bearerTokenFromMD(ctx)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "no auth")
		}
		id, err := v.Verify(ctx, tok)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}
		return next(WithCallerID(ctx, id), req)
	}
}

// RateLimitUnary limits the listed methods per caller. Limiter failures fail open.
func RateLimitUnary(lim limiter.Limiter, log *zap.Logger, methods ...string) grpc.UnaryServerInterceptor {
	limited := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		limited[m] = struct{}{}
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		if _, ok := limited[info.FullMethod]; !ok {
			return next(ctx, req)
		}
		id, ok := CallerIDFromCtx(ctx)
		if !ok {
			return next(ctx, req)
		}
		allowed, retry, err := lim.Allow(ctx, info.FullMethod+":"+id)
		if err != nil {
			log.Warn("rate limiter", zap.String("method", info.FullMethod), zap.Error(err))
			return next(ctx, req)
		}
		if !allowed {
			secs := int(retry.Round(time.Second) / time.Second)
			_ = grpc.SetHeader(ctx, metadata.Pairs("retry-after", strconv.Itoa(secs)))
			return nil, reasoned(codes.ResourceExhausted, "rate limited, retry after "+retry.Round(time.Second).String(),
				ReasonRateLimited, map[string]string{"retry_after_seconds": strconv.Itoa(secs)})
		}
		return next(ctx, req)
	}
}
