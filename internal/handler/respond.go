package handler

import (
	stderrors "errors"
	"net/http"

	"minchat/internal/model"
	apperrors "minchat/pkg/errors"

	"github.com/gin-gonic/gin"
)

// headerUserID carries the caller identity, resolved by the auth layer in
// front of this service. The value is trusted as already authenticated.
const headerUserID = "X-User-ID"

func requesterID(c *gin.Context) (string, bool) {
	userID := c.GetHeader(headerUserID)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, model.ErrorPayload{
			Code:    string(apperrors.CodeUnknown),
			Message: "missing " + headerUserID + " header",
		})
		return "", false
	}
	return userID, true
}

func respondError(c *gin.Context, err error) {
	code := apperrors.CodeOf(err)

	message := err.Error()
	var appErr *apperrors.AppError
	if stderrors.As(err, &appErr) {
		message = appErr.Message
	}

	c.JSON(statusOf(code), model.ErrorPayload{
		Code:    string(code),
		Message: message,
	})
}

func statusOf(code apperrors.Code) int {
	switch code {
	case apperrors.CodeInvalidArgument:
		return http.StatusBadRequest
	case apperrors.CodeNotFound:
		return http.StatusNotFound
	case apperrors.CodePermissionDenied:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
