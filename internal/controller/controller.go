package controller

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/lshigami/examprep/internal/dto"
	"github.com/lshigami/examprep/internal/middleware"
	"github.com/lshigami/examprep/internal/repository"
	"github.com/lshigami/examprep/internal/service"
	"github.com/rs/zerolog/log"
)

// StatusFor maps a service error onto the HTTP status returned to clients.
func StatusFor(err error) int {
	var pending *service.ResultPendingError
	switch {
	case errors.Is(err, service.ErrAttemptNotFound),
		errors.Is(err, service.ErrTestNotFound),
		errors.Is(err, service.ErrScoringRuleNotFound),
		errors.Is(err, service.ErrResultNotPending):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidState),
		errors.Is(err, service.ErrDuplicateScoringRule),
		errors.Is(err, service.ErrNoQuestions),
		errors.Is(err, service.ErrStaleResult),
		errors.Is(err, service.ErrCompletionContended):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrInvalidAnswer):
		return http.StatusBadRequest
	case errors.As(err, &pending), repository.IsWriteError(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RespondError writes err with the status StatusFor picks. Server-side
// failures are logged with the operation name; internals stay out of the body.
func RespondError(ctx *gin.Context, op string, err error) {
	status := StatusFor(err)
	event := log.Warn()
	if status >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.Err(err).Str("requestID", middleware.GetRequestID(ctx)).Int("status", status).Msg(op + ": Request failed")

	if status == http.StatusInternalServerError {
		ctx.JSON(status, dto.ErrorResponse{Error: "internal server error"})
		return
	}
	ctx.JSON(status, dto.ErrorResponse{Error: err.Error()})
}

// RespondBindError reports a request that failed binding or validation.
func RespondBindError(ctx *gin.Context, op string, err error) {
	log.Warn().Err(err).Str("requestID", middleware.GetRequestID(ctx)).Msg(op + ": Failed to bind request")
	ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request", Details: []string{err.Error()}})
}

// ParseID reads a positive numeric path parameter. On failure it writes a 400
// and returns false.
func ParseID(ctx *gin.Context, param string) (uint, bool) {
	id, err := strconv.ParseUint(ctx.Param(param), 10, 32)
	if err != nil || id == 0 {
		ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid " + param + " format"})
		return 0, false
	}
	return uint(id), true
}
