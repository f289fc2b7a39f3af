package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"jobcost/internal/core/apperror"
	appctx "jobcost/internal/core/context"
	"jobcost/pkg/logger"
)

// ErrorHandler writes the last registered error as {code, message, details}.
// Internal causes are logged and never returned to the client.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		writeError(c, c.Errors.Last().Err)
	}
}

// writeError renders err as {code, message, details}.
func writeError(c *gin.Context, err error) {
	if appErr, ok := apperror.AsAppError(err); ok {
		if appErr.Err != nil || apperror.GetHTTPStatus(appErr) >= http.StatusInternalServerError {
			logger.Error(c.Request.Context(), "request error",
				"code", appErr.Code,
				"cause", appErr.Err,
			)
		}

		body := gin.H{
			"code":    appErr.Code,
			"message": appErr.Message,
			"details": appErr.Details,
		}
		CompleteIdempotency(c, appErr.HTTPStatus, "application/json", body)
		c.JSON(appErr.HTTPStatus, body)
		return
	}

	logger.Error(c.Request.Context(), "unhandled error", "error", err)

	body := gin.H{
		"code":    apperror.CodeInternal,
		"message": "Internal server error",
		"details": map[string]any{
			"request_id": appctx.GetRequestID(c.Request.Context()),
			"trace_id":   appctx.GetTraceID(c.Request.Context()),
		},
	}
	CompleteIdempotency(c, http.StatusInternalServerError, "application/json", body)
	c.JSON(http.StatusInternalServerError, body)
}
