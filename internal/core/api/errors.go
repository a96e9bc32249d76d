package api

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/solatis/campaignkeeper/internal/rules"
	"github.com/solatis/campaignkeeper/internal/types"
)

// Auth errors are mapped in the auth interceptor. Everything else maps here:
// validation to INVALID_ARGUMENT, unknown ids to NOT_FOUND, catalog drift to
// FAILED_PRECONDITION, context timeouts to DEADLINE_EXCEEDED. Anything else
// (storage, population, translator, locks) is UNAVAILABLE.

func (s *Service) toStatus(op string, err error) error {
	var verrs rules.ValidationErrors
	code := codes.Unavailable

	switch {
	// Drift wraps ValidationErrors; it must win over them.
	case errors.Is(err, types.ErrCatalogDrift),
		errors.Is(err, types.ErrAlreadyDispatched):
		code = codes.FailedPrecondition
	case errors.As(err, &verrs),
		errors.Is(err, types.ErrMalformedNode),
		errors.Is(err, types.ErrInvalidSortKey),
		errors.Is(err, types.ErrInvalidPage),
		errors.Is(err, types.ErrInvalidReceipt):
		code = codes.InvalidArgument
	case errors.Is(err, types.ErrCampaignNotFound),
		errors.Is(err, types.ErrSegmentNotFound),
		errors.Is(err, types.ErrMessageNotFound):
		code = codes.NotFound
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	}

	if code == codes.Unavailable || code == codes.FailedPrecondition {
		s.logger.Error("request failed", "op", op, "code", code, "error", err)
	}
	return status.Error(code, fmt.Sprintf("%s: %v", op, err))
}

func invalidArgument(format string, args ...any) error {
	return status.Errorf(codes.InvalidArgument, format, args...)
}
