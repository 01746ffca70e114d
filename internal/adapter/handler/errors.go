package handler

import (
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"

	"github.com/rl1809/seat-booking/internal/core/domain"
)

// httpStatus maps the domain taxonomy onto HTTP. Anything unrecognized is
// an internal error and its text is not shown to the caller.
func httpStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, domain.ErrInsufficientCapacity):
		return http.StatusConflict, "insufficient capacity"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "conflict, retry the request"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func grpcCode(err error) codes.Code {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return codes.InvalidArgument
	case errors.Is(err, domain.ErrNotFound):
		return codes.NotFound
	case errors.Is(err, domain.ErrInsufficientCapacity), errors.Is(err, domain.ErrConflict):
		return codes.Aborted
	default:
		return codes.Internal
	}
}
