package web

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/mumblefish/internal/authkit"
)

// ClientConfig contains the values a browser or desktop client needs to render sign-in options.
type ClientConfig struct {
	BaseURL        string
	GoogleClientID string
	Providers      []authkit.Provider
}

type clientConfigPayload struct {
	BaseURL        string   `json:"baseUrl"`
	GoogleClientID string   `json:"googleClientId,omitempty"`
	Providers      []string `json:"providers"`
}

// ServeClientConfig writes the sign-in configuration, deriving the base URL from the request when unset.
func ServeClientConfig(contextGin *gin.Context, configuration ClientConfig) {
	baseURL := strings.TrimRight(configuration.BaseURL, "/")
	if strings.TrimSpace(baseURL) == "" {
		host := contextGin.Request.Host
		if host == "" {
			host = "localhost"
		}
		baseURL = fmt.Sprintf("%s://%s", forwardedProto(contextGin.Request), host)
	}
	providers := make([]string, 0, len(configuration.Providers))
	for _, provider := range configuration.Providers {
		providers = append(providers, string(provider))
	}

	contextGin.Header("Cache-Control", "no-store")
	authkit.RespondSuccess(contextGin, http.StatusOK, clientConfigPayload{
		BaseURL:        baseURL,
		GoogleClientID: configuration.GoogleClientID,
		Providers:      providers,
	})
}

func forwardedProto(request *http.Request) string {
	if request == nil {
		return "https"
	}
	if headerValue := request.Header.Get("X-Forwarded-Proto"); headerValue != "" {
		return headerValue
	}
	if request.TLS != nil {
		return "https"
	}
	if request.URL != nil && request.URL.Scheme != "" {
		return request.URL.Scheme
	}
	return "http"
}
