package authkit

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// ContextKeyUserID holds the authenticated user id set by RequirePolishAccess.
	ContextKeyUserID = "auth_user_id"
	// HeaderBringOwnKey carries a caller-supplied API key for the rewriting service.
	HeaderBringOwnKey = "X-OpenAI-Key"
)

// BearerVerifier resolves a bearer token to the user id it was issued to.
type BearerVerifier interface {
	Verify(token string) (string, error)
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(request *http.Request) (string, bool) {
	header := strings.TrimSpace(request.Header.Get("Authorization"))
	if len(header) < len("Bearer ") || !strings.EqualFold(header[:len("Bearer ")], "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(header[len("Bearer "):])
	return token, token != ""
}

// RequirePolishAccess admits callers that bring their own key, or present a valid token within quota.
func RequirePolishAccess(verifier BearerVerifier, quota QuotaChecker, metrics MetricsRecorder, logger *zap.Logger) gin.HandlerFunc {
	metrics = metricsOrDiscard(metrics)
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(contextGin *gin.Context) {
		if strings.TrimSpace(contextGin.GetHeader(HeaderBringOwnKey)) != "" {
			metrics.Increment(MetricPolishBringOwnKey)
			contextGin.Next()
			return
		}
		token, ok := BearerToken(contextGin.Request)
		if !ok {
			metrics.Increment(MetricPolishRejectedToken)
			RespondFailure(contextGin, http.StatusUnauthorized, "Authentication required")
			return
		}
		userID, verifyErr := verifier.Verify(token)
		if verifyErr != nil {
			metrics.Increment(MetricPolishRejectedToken)
			RespondFailure(contextGin, http.StatusUnauthorized, messageInvalidToken)
			return
		}
		allowed, quotaErr := quota.Allow(contextGin.Request.Context(), userID)
		if quotaErr != nil {
			if contextGin.Request.Context().Err() == context.Canceled {
				contextGin.Abort()
				return
			}
			RespondError(contextGin, logger, internalError("polish.quota", quotaErr))
			return
		}
		if !allowed {
			metrics.Increment(MetricPolishRejectedQuota)
			RespondFailure(contextGin, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}
		metrics.Increment(MetricPolishAllowed)
		contextGin.Set(ContextKeyUserID, userID)
		contextGin.Next()
	}
}
