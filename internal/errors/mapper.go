// internal/errors/mapper.go
package errors

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"
)

// Map converts domain/repo/infra errors into gRPC-friendly status errors.
// Keeps service layer clean by centralizing error mapping.
// Errors that already carry a status pass through untouched.
func Map(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, ErrInvalidActionTarget),
		errors.Is(err, ErrInvalidOutcome),
		errors.Is(err, ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, ErrAlreadyBlocked),
		errors.Is(err, ErrNotParticipant):
		return status.Error(codes.PermissionDenied, err.Error())

	case errors.Is(err, ErrBatchAlreadyComplete),
		errors.Is(err, ErrBatchInvariant),
		errors.Is(err, ErrConversationClosed):
		return status.Error(codes.FailedPrecondition, err.Error())

	case errors.Is(err, ErrAggregateNotFound):
		return status.Error(codes.NotFound, err.Error())

	case errors.Is(err, gorm.ErrRecordNotFound):
		return status.Error(codes.NotFound, "record not found")

	case errors.Is(err, ErrConcurrentWriteLost):
		// transient: retries were exhausted, client may try again
		return status.Error(codes.Aborted, err.Error())

	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "request timed out")

	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request was canceled")

	default:
		// fallback → bubble up error message for debugging
		return status.Error(codes.Internal, err.Error())
	}
}

// InvalidArgument creates a gRPC InvalidArgument error.
// Use this in service layer for bad input validation.
func InvalidArgument(msg string) error {
	return status.Error(codes.InvalidArgument, msg)
}
