package server

import (
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/soulmatch/internal/apperrors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const internalErrorCode = "internal_error"

type errorResponsePayload struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func statusForKind(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindUnauthorized:
		return http.StatusUnauthorized
	case apperrors.KindForbidden:
		return http.StatusForbidden
	case apperrors.KindInvalidRequest:
		return http.StatusBadRequest
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {"error": code, "message": text}. Causes of upstream failures
// stay in the logs.
func (h *httpHandler) writeError(c *gin.Context, err error) {
	status := statusForKind(apperrors.KindOf(err))
	payload := errorResponsePayload{Error: internalErrorCode, Message: "internal error"}

	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		payload.Error = appErr.Code()
		if status != http.StatusInternalServerError {
			payload.Message = causeMessage(appErr)
		}
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("code", payload.Error),
			zap.Error(err))
	}
	c.AbortWithStatusJSON(status, payload)
}

func causeMessage(appErr *apperrors.Error) string {
	if cause := appErr.Unwrap(); cause != nil {
		return cause.Error()
	}
	return appErr.Reason()
}

func (h *httpHandler) writeBadRequest(c *gin.Context, operation, reason string, cause error) {
	h.writeError(c, apperrors.InvalidRequest(operation, reason, cause))
}
