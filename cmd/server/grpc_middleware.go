package main

import (
	"context"
	"strings"
	"time"

	"booksaga/internal/logging"
	"booksaga/internal/observability"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

type rateLimiter interface {
	Wait(ctx context.Context) error
}

// unaryInterceptor throttles ingress, tracks per-method metrics and attaches
// a request-scoped logger to the handler context.
func unaryInterceptor(limiter rateLimiter, metrics *observability.Metrics, logger *zap.Logger) grpc.UnaryServerInterceptor {
	logger = logging.OrNop(logger)
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !shouldTrackMethod(info.FullMethod) {
			return handler(ctx, req)
		}

		span := metrics.Start(info.FullMethod)
		start := time.Now()
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				span.End(err)
				return nil, status.FromContextError(err).Err()
			}
		}

		reqLogger := logger.With(zap.String("method", info.FullMethod))
		resp, err := handler(logging.ContextWithLogger(ctx, reqLogger), req)
		span.End(err)
		if err != nil {
			reqLogger.Info("grpc call failed",
				zap.String("code", status.Code(err).String()),
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err),
			)
		}
		return resp, err
	}
}

func shouldTrackMethod(method string) bool {
	return method != "" &&
		!strings.HasPrefix(method, "/grpc.reflection.") &&
		!strings.HasPrefix(method, "/grpc.health.")
}
