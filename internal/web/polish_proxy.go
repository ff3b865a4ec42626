package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/mumblefish/internal/authkit"
	"go.uber.org/zap"
)

var errInvalidUpstream = errors.New("polish_proxy.invalid_upstream")

// HeaderAuthenticatedUser tells the rewriting upstream which account is being charged.
const HeaderAuthenticatedUser = "X-Mumblefish-User"

type admittedUserKey struct{}

// NewPolishProxy forwards admitted requests to the endpoint at upstreamURL.
// Run it after authkit.RequirePolishAccess.
func NewPolishProxy(upstreamURL string, logger *zap.Logger) (gin.HandlerFunc, error) {
	target, err := url.Parse(upstreamURL)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("%w: %q", errInvalidUpstream, upstreamURL)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	proxy := &httputil.ReverseProxy{
		Rewrite: func(request *httputil.ProxyRequest) {
			request.SetURL(target)
			if target.Path != "" {
				request.Out.URL.Path = target.Path
				request.Out.URL.RawPath = target.RawPath
			}
			request.SetXForwarded()
			request.Out.Host = target.Host
			request.Out.Header.Del("Authorization")
			request.Out.Header.Del(HeaderAuthenticatedUser)
			if userID, ok := request.In.Context().Value(admittedUserKey{}).(string); ok && userID != "" {
				request.Out.Header.Set(HeaderAuthenticatedUser, userID)
			}
		},
		ErrorHandler: func(writer http.ResponseWriter, request *http.Request, proxyErr error) {
			logger.Error("polish upstream failed",
				zap.String("code", "polish.upstream_failed"),
				zap.Error(proxyErr))
			writer.Header().Set("Content-Type", "application/json; charset=utf-8")
			writer.WriteHeader(http.StatusBadGateway)
			_, _ = writer.Write([]byte(`{"success":false,"error":"Upstream service failure"}`))
		},
	}

	return func(contextGin *gin.Context) {
		request := contextGin.Request
		if userID := contextGin.GetString(authkit.ContextKeyUserID); userID != "" {
			request = request.WithContext(context.WithValue(request.Context(), admittedUserKey{}, userID))
		}
		proxy.ServeHTTP(contextGin.Writer, request)
	}, nil
}
