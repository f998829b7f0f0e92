package server

import (
	"errors"
	"net/http"

	"github.com/joseph-ayodele/document-processor/internal/async"
	"github.com/joseph-ayodele/document-processor/internal/common"
	"github.com/joseph-ayodele/document-processor/internal/core"
	"github.com/joseph-ayodele/document-processor/internal/repository"
)

// grpcError maps scheduler errors onto gRPC status codes.
func grpcError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, common.ErrValidation):
		return common.InvalidArgumentError(err.Error())
	case errors.Is(err, repository.ErrNotFound):
		return common.NotFoundError("document not found")
	case errors.Is(err, async.ErrQueueFull):
		return common.ResourceExhaustedError("processing queue is full, retry later")
	case errors.Is(err, core.ErrAlreadyTerminal):
		return common.FailedPreconditionError(err.Error())
	case errors.Is(err, async.ErrQueueClosed):
		return common.UnavailableError("scheduler is shutting down")
	default:
		return common.InternalError("internal error")
	}
}

// httpStatus is the HTTP counterpart of grpcError.
func httpStatus(err error) (int, string) {
	switch {
	case errors.Is(err, common.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "document not found"
	case errors.Is(err, async.ErrQueueFull):
		return http.StatusTooManyRequests, "processing queue is full, retry later"
	case errors.Is(err, core.ErrAlreadyTerminal):
		return http.StatusConflict, err.Error()
	case errors.Is(err, async.ErrQueueClosed):
		return http.StatusServiceUnavailable, "scheduler is shutting down"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
