package api

import (
	"net/http"

	"github.com/Domenick1991/airticket/internal/apperr"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type errorDetail struct {
	Kind    apperr.Kind `json:"kind"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message"`
}

type errorResponse struct {
	Error errorDetail `json:"error"`
}

var kindStatus = map[apperr.Kind]int{
	apperr.Invalid:           http.StatusBadRequest,
	apperr.Unauthorized:      http.StatusUnauthorized,
	apperr.Forbidden:         http.StatusForbidden,
	apperr.NotFound:          http.StatusNotFound,
	apperr.Conflict:          http.StatusConflict,
	apperr.SeatUnavailable:   http.StatusConflict,
	apperr.InvalidTransition: http.StatusConflict,
	apperr.NotAllowed:        http.StatusUnprocessableEntity,
	apperr.GatewayRejected:   http.StatusBadGateway,
	apperr.Internal:          http.StatusInternalServerError,
}

func statusFor(kind apperr.Kind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// writeError renders err and aborts the request. Internal causes are logged,
// never returned to the caller.
func writeError(c *gin.Context, err error) {
	detail := errorDetail{Kind: apperr.Internal, Message: "internal error"}
	if e, ok := apperr.As(err); ok && e.Kind != apperr.Internal {
		detail = errorDetail{Kind: e.Kind, Code: e.Code, Message: e.Message}
	}

	status := statusFor(detail.Kind)
	if status >= http.StatusInternalServerError {
		loggerFrom(c).WithError(err).Error("request failed")
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: detail})
}

func badRequest(c *gin.Context, message string) {
	writeError(c, apperr.InvalidErr("%s", message))
}

func loggerFrom(c *gin.Context) logrus.FieldLogger {
	if v, ok := c.Get(ctxKeyLogger); ok {
		if l, ok := v.(logrus.FieldLogger); ok {
			return l
		}
	}
	return logrus.StandardLogger()
}
