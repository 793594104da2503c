package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/KilluaDB/topology/internal/services"
	"github.com/KilluaDB/topology/internal/topology"
)

const defaultFetchTimeout = 30 * time.Second

// statusFor maps service and engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrSessionNotFound),
		errors.Is(err, services.ErrTableNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrInvalidTable),
		errors.Is(err, services.ErrInvalidDepth),
		errors.Is(err, services.ErrUnknownNode):
		return http.StatusBadRequest
	case errors.Is(err, topology.ErrNotLoaded),
		errors.Is(err, topology.ErrNothingToRetry):
		return http.StatusConflict
	case errors.Is(err, topology.ErrClosed):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}
