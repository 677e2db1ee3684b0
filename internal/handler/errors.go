package handler

import (
	"errors"
	"net/http"

	"fruittrace/internal/logging"
	"fruittrace/internal/service"
	"fruittrace/pkg/response"

	"github.com/gin-gonic/gin"
)

// Reason codes reported in the "reason" field of error responses
const (
	ReasonValidation       = "validation_error"
	ReasonUnauthorized     = "unauthorized"
	ReasonForbidden        = "forbidden"
	ReasonNotFound         = "not_found"
	ReasonConflict         = "conflict"
	ReasonMalformedPayload = "malformed_payload"
	ReasonStorage          = "storage_failure"
	ReasonInternal         = "internal_error"
)

var failureClasses = []struct {
	err    error
	status int
	reason string
}{
	{service.ErrValidation, http.StatusBadRequest, ReasonValidation},
	{service.ErrUnauthorized, http.StatusUnauthorized, ReasonUnauthorized},
	{service.ErrForbidden, http.StatusForbidden, ReasonForbidden},
	{service.ErrNotFound, http.StatusNotFound, ReasonNotFound},
	{service.ErrConflict, http.StatusConflict, ReasonConflict},
	{service.ErrMalformedPayload, http.StatusUnprocessableEntity, ReasonMalformedPayload},
	{service.ErrStorage, http.StatusInternalServerError, ReasonStorage},
}

// classify maps a service error to its HTTP status and reason code.
func classify(err error) (int, string) {
	for _, fc := range failureClasses {
		if errors.Is(err, fc.err) {
			return fc.status, fc.reason
		}
	}
	return http.StatusInternalServerError, ReasonInternal
}

// respondError writes the error envelope for err. Server-side failures are
// logged and reported with a generic message.
func respondError(c *gin.Context, err error) {
	status, reason := classify(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		logging.Error("request failed", err, map[string]interface{}{
			"method": c.Request.Method,
			"path":   c.FullPath(),
			"reason": reason,
			"cause":  service.StorageCause(err),
		})
		msg = "Internal server error"
	}
	c.AbortWithStatusJSON(status, response.Failure(status, reason, msg))
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, response.Failure(http.StatusBadRequest, ReasonValidation, msg))
}
