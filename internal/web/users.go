package web

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/mumblefish/internal/authkit"
	"go.uber.org/zap"
)

// IdentityLookup resolves a bearer token to the public user record.
type IdentityLookup interface {
	GetIdentity(ctx context.Context, token string) (authkit.UserInfo, error)
}

// HandleWhoAmI serves the authenticated user's id and email.
func HandleWhoAmI(logger *zap.Logger, identities IdentityLookup) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	if identities == nil {
		panic("identity lookup is required")
	}

	return func(contextGin *gin.Context) {
		token, ok := authkit.BearerToken(contextGin.Request)
		if !ok {
			logger.Debug("missing bearer token", zap.String("code", "api.me.missing_token"))
			authkit.RespondFailure(contextGin, http.StatusUnauthorized, "Authentication required")
			return
		}
		info, err := identities.GetIdentity(contextGin.Request.Context(), token)
		if err != nil {
			authkit.RespondError(contextGin, logger, err)
			return
		}
		authkit.RespondSuccess(contextGin, http.StatusOK, info)
	}
}
