package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Every error leaving the API has the same shape:
// {"success":false,"code":...,"message":...}. Codes are stable; messages are
// for humans and may change.
func RespondError(ctx *gin.Context, status int, code, message string) {
	ctx.JSON(status, gin.H{
		"success": false,
		"code":    code,
		"message": message,
	})
}

func RespondBadRequest(ctx *gin.Context, message string, details interface{}) {
	ctx.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"code":    "invalid_request",
		"message": message,
		"details": details,
	})
}

func RespondUnauthorized(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusUnauthorized, "unauthorized", message)
}

func RespondForbidden(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusForbidden, "forbidden", message)
}

func RespondNotFound(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusNotFound, "not_found", message)
}

func RespondConflict(ctx *gin.Context, code, message string) {
	RespondError(ctx, http.StatusConflict, code, message)
}

func RespondUnavailable(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusServiceUnavailable, "data_unavailable", message)
}

func RespondInternal(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusInternalServerError, "internal_error", message)
}
