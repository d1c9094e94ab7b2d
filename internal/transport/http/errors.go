package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"quiz-access-service/internal/domain"
)

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindUnavailable:
		return http.StatusLocked
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindInvalidState:
		return http.StatusUnprocessableEntity
	case domain.KindUpstreamFailure:
		return http.StatusBadGateway
	case domain.KindInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func jsonError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	})
}

// writeError maps a service error to its status. Internal detail goes to the log only.
func writeError(c *gin.Context, logger *slog.Logger, err error) {
	kind := domain.KindOf(err)
	status := statusFor(kind)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
	} else {
		logger.Debug("request rejected", "path", c.FullPath(), "kind", kind, "error", err)
	}
	jsonError(c, status, domain.PublicMessage(err))
}
