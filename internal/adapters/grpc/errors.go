package grpc

import (
	"context"
	"errors"

	"booksaga/internal/orders/saga"

	grpcpkg "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// ErrorKindTrailer carries the saga error kind of a failed step.
const ErrorKindTrailer = "step-error-kind"

// mapStepError converts a step failure into a gRPC status whose message is
// the error kind, and sets the kind trailer.
func mapStepError(ctx context.Context, err error) error {
	kind := saga.KindOf(err)
	if kind != "" {
		_ = grpcpkg.SetTrailer(ctx, metadata.Pairs(ErrorKindTrailer, string(kind)))
	}

	switch {
	case errors.Is(err, saga.ErrInvalidQuantity):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, messageFor(kind, err))
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, messageFor(kind, err))
	}

	switch kind {
	case saga.KindBookOutOfStock, saga.KindInsufficientRedemption:
		return status.Error(codes.FailedPrecondition, string(kind))
	case saga.KindBookNotFound:
		return status.Error(codes.NotFound, string(kind))
	case saga.KindStoreError:
		return status.Error(codes.Unavailable, string(kind))
	case "":
		return status.Error(codes.Internal, err.Error())
	default:
		return status.Error(codes.Internal, string(kind))
	}
}

func messageFor(kind saga.Kind, err error) string {
	if kind != "" {
		return string(kind)
	}
	return err.Error()
}

// KindFromError recovers the saga error kind from a client-side status error.
func KindFromError(err error, trailer metadata.MD) saga.Kind {
	if values := trailer.Get(ErrorKindTrailer); len(values) > 0 {
		return saga.Kind(values[0])
	}
	if st, ok := status.FromError(err); ok {
		switch kind := saga.Kind(st.Message()); kind {
		case saga.KindBookOutOfStock, saga.KindBookNotFound, saga.KindInsufficientRedemption,
			saga.KindStoreError, saga.KindNoCourierAvailable:
			return kind
		}
	}
	return ""
}
