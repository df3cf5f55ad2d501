package nbi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/signalsfoundry/geofence-simulator/internal/logging"
	sim "github.com/signalsfoundry/geofence-simulator/internal/sim/state"
)

var (
	// ErrInvalidRequest is used for malformed query parameters and bodies.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrUnknownCommand is returned for observer commands the server does
	// not understand.
	ErrUnknownCommand = errors.New("unknown command")
)

// HTTPStatus maps simulator errors onto HTTP status codes.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrUnknownCommand),
		errors.Is(err, sim.ErrInvalidPeriod),
		errors.Is(err, sim.ErrInvalidCoordinate),
		errors.Is(err, sim.ErrPolygonNameEmpty):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// writeError aborts the request with the mapped status and a JSON body.
func writeError(c *gin.Context, err error) {
	code := HTTPStatus(err)
	ctx := c.Request.Context()
	log := logging.FromContextOr(ctx, nil)
	if code >= http.StatusInternalServerError {
		log.Error(ctx, "request failed", logging.Err(err))
	} else {
		log.Info(ctx, "request rejected", logging.Int("status", code), logging.Err(err))
	}
	c.AbortWithStatusJSON(code, errorResponse{
		Error:     err.Error(),
		RequestID: logging.RequestIDFromContext(ctx),
	})
}
