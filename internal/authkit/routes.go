package authkit

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const messageInvalidBody = "Invalid request body"

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// MountAuthRoutes registers /auth/register, /auth/login, /auth/google, and the OAuth redirect pair under router.
func MountAuthRoutes(router gin.IRouter, resolver *IdentityResolver, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}

	router.POST("/auth/register", func(contextGin *gin.Context) {
		var inbound credentialsRequest
		if err := contextGin.ShouldBindJSON(&inbound); err != nil {
			RespondFailure(contextGin, http.StatusBadRequest, messageInvalidBody)
			return
		}
		result, err := resolver.Register(contextGin.Request.Context(), inbound.Email, inbound.Password)
		if err != nil {
			RespondError(contextGin, logger, err)
			return
		}
		RespondSuccess(contextGin, http.StatusOK, result)
	})

	router.POST("/auth/login", func(contextGin *gin.Context) {
		var inbound credentialsRequest
		if err := contextGin.ShouldBindJSON(&inbound); err != nil {
			RespondFailure(contextGin, http.StatusBadRequest, messageInvalidBody)
			return
		}
		result, err := resolver.Login(contextGin.Request.Context(), inbound.Email, inbound.Password)
		if err != nil {
			RespondError(contextGin, logger, err)
			return
		}
		RespondSuccess(contextGin, http.StatusOK, result)
	})

	router.POST("/auth/google", func(contextGin *gin.Context) {
		var inbound struct {
			GoogleIDToken string `json:"google_id_token"`
		}
		if err := contextGin.ShouldBindJSON(&inbound); err != nil {
			RespondFailure(contextGin, http.StatusBadRequest, messageInvalidBody)
			return
		}
		result, err := resolver.LoginWithGoogleIDToken(contextGin.Request.Context(), inbound.GoogleIDToken)
		if err != nil {
			RespondError(contextGin, logger, err)
			return
		}
		RespondSuccess(contextGin, http.StatusOK, result)
	})

	router.GET("/auth/oauth/:provider", func(contextGin *gin.Context) {
		authorizationURL, err := resolver.StartOAuth(contextGin.Request.Context(), contextGin.Param("provider"), contextGin.Query("redirect_uri"))
		if err != nil {
			RespondError(contextGin, logger, err)
			return
		}
		contextGin.Redirect(http.StatusFound, authorizationURL)
	})

	router.GET("/auth/oauth/:provider/callback", func(contextGin *gin.Context) {
		target, err := resolver.CompleteOAuth(contextGin.Request.Context(), contextGin.Param("provider"), contextGin.Query("code"), contextGin.Query("state"))
		if err != nil {
			RespondError(contextGin, logger, err)
			return
		}
		contextGin.Redirect(http.StatusFound, target)
	})
}
