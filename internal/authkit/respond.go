package authkit

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Envelope is the JSON body of every API response.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// RespondSuccess writes data inside a success envelope.
func RespondSuccess(contextGin *gin.Context, status int, data any) {
	contextGin.JSON(status, Envelope{Success: true, Data: data})
}

// RespondFailure aborts with message inside a failure envelope.
func RespondFailure(contextGin *gin.Context, status int, message string) {
	contextGin.AbortWithStatusJSON(status, Envelope{Success: false, Error: message})
}

// RespondError maps err onto its status and public message. Server-side failures are logged with their cause.
func RespondError(contextGin *gin.Context, logger *zap.Logger, err error) {
	status := StatusCode(err)
	if logger != nil && (errors.Is(err, ErrUpstream) || errors.Is(err, ErrInternal) || errors.Is(err, ErrConfig) || status >= 500) {
		logger.Error("request failed",
			zap.String("code", ErrorCode(err)),
			zap.String("path", contextGin.FullPath()),
			zap.Error(err),
		)
	}
	RespondFailure(contextGin, status, PublicMessage(err))
}
