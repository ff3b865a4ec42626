package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tyemirov/mumblefish/internal/authkit"
	"github.com/tyemirov/mumblefish/internal/web"
	"go.uber.org/zap"
)

var serveHTTP = func(server *http.Server) error {
	return server.ListenAndServe()
}

var buildGoogleTokenValidator = func(ctx context.Context) (authkit.GoogleTokenValidator, error) {
	return authkit.NewGoogleTokenValidator(ctx)
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

const (
	defaultRedirectURI      = "https://mumble.fish/auth/callback"
	defaultAllowedRedirects = "https://mumble.fish/auth/callback,mumblefish://auth/callback"
	defaultPublicBaseURL    = "https://mumble.fish"
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "mumblefish",
		Short:   "Auth backend for mumblefish: password and OAuth sign-in, bearer tokens, and the polish gate",
		PreRunE: prepareServerConfig,
		RunE:    runServer,
	}

	rootCmd.Flags().String("listen_addr", ":8080", "HTTP listen address")
	rootCmd.Flags().String("token_signing_key", "", "HMAC-SHA256 secret for bearer tokens")
	rootCmd.Flags().Duration("token_ttl", authkit.DefaultTokenTTL, "Bearer token TTL")
	rootCmd.Flags().Duration("oauth_state_ttl", authkit.DefaultOAuthStateTTL, "Lifetime of a pending OAuth state")
	rootCmd.Flags().String("allowed_redirects", defaultAllowedRedirects, "Comma-separated redirect URIs accepted by OAuth start")
	rootCmd.Flags().String("default_redirect_uri", defaultRedirectURI, "Redirect URI used when OAuth start omits one")
	rootCmd.Flags().String("public_base_url", defaultPublicBaseURL, "Externally visible base URL used for OAuth callbacks")
	rootCmd.Flags().String("google_client_id", "", "Google OAuth client ID (also the ID-token audience)")
	rootCmd.Flags().String("google_client_secret", "", "Google OAuth client secret")
	rootCmd.Flags().String("github_client_id", "", "GitHub OAuth app client ID")
	rootCmd.Flags().String("github_client_secret", "", "GitHub OAuth app client secret")
	rootCmd.Flags().String("database_url", "", "Database URL (postgres:// or sqlite://; leave empty for in-memory stores)")
	rootCmd.Flags().Bool("enable_cors", false, "Enable CORS for browser clients")
	rootCmd.Flags().String("cors_allowed_origins", "", "Comma-separated origins allowed when CORS is enabled")
	rootCmd.Flags().String("polish_upstream_url", "", "Rewriting service endpoint; empty disables /api/v1/polish")
	rootCmd.Flags().Int("quota_per_minute", 10, "Polish calls per user per minute without a personal key")
	rootCmd.Flags().Int("quota_burst", 5, "Polish burst size per user")

	for _, flagName := range []string{
		"listen_addr", "token_signing_key", "token_ttl", "oauth_state_ttl", "allowed_redirects",
		"default_redirect_uri", "public_base_url", "google_client_id", "google_client_secret",
		"github_client_id", "github_client_secret", "database_url", "enable_cors",
		"cors_allowed_origins", "polish_upstream_url", "quota_per_minute", "quota_burst",
	} {
		_ = viper.BindPFlag(flagName, rootCmd.Flags().Lookup(flagName))
	}

	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()

	return rootCmd
}

const (
	configCodeMissingTokenSigningKey   = "config.missing_token_signing_key"
	configCodeInvalidTokenTTL          = "config.invalid_token_ttl"
	configCodeInvalidOAuthStateTTL     = "config.invalid_oauth_state_ttl"
	configCodeEmptyAllowedRedirects    = "config.empty_allowed_redirects"
	configCodeDefaultRedirectForbidden = "config.default_redirect_not_allowed"
	configCodeUninitializedServerConf  = "config.uninitialized_server_config"
	configCodeGoogleValidatorInit      = "config.google_validator_init"
	configCodeInvalidCORSOrigins       = "config.invalid_cors_origins"
	configCodeInvalidPolishUpstream    = "config.invalid_polish_upstream_url"
)

type contextKey string

const serverConfigContextKey contextKey = "serverConfig"

func prepareServerConfig(command *cobra.Command, arguments []string) error {
	serverConfig, loadErr := LoadServerConfig()
	if loadErr != nil {
		return loadErr
	}
	existingContext := command.Context()
	if existingContext == nil {
		existingContext = context.Background()
	}
	command.SetContext(context.WithValue(existingContext, serverConfigContextKey, serverConfig))
	return nil
}

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

// splitList reads a comma-separated setting. viper's slice getters split on whitespace only.
func splitList(value string) []string {
	var entries []string
	for _, entry := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(entry); trimmed != "" {
			entries = append(entries, trimmed)
		}
	}
	return entries
}

func LoadServerConfig() (authkit.ServerConfig, error) {
	tokenSigningKey := viper.GetString("token_signing_key")
	if tokenSigningKey == "" {
		return authkit.ServerConfig{}, configError(configCodeMissingTokenSigningKey, "token_signing_key must be provided")
	}

	tokenTTL := viper.GetDuration("token_ttl")
	if tokenTTL <= 0 {
		return authkit.ServerConfig{}, configError(configCodeInvalidTokenTTL, "token_ttl must be greater than zero")
	}

	oauthStateTTL := viper.GetDuration("oauth_state_ttl")
	if oauthStateTTL <= 0 {
		return authkit.ServerConfig{}, configError(configCodeInvalidOAuthStateTTL, "oauth_state_ttl must be greater than zero")
	}

	allowedRedirects := splitList(viper.GetString("allowed_redirects"))
	if len(allowedRedirects) == 0 {
		return authkit.ServerConfig{}, configError(configCodeEmptyAllowedRedirects, "allowed_redirects must list at least one URI")
	}

	defaultRedirect := viper.GetString("default_redirect_uri")
	redirectAllowed := false
	for _, allowed := range allowedRedirects {
		if allowed == defaultRedirect {
			redirectAllowed = true
			break
		}
	}
	if !redirectAllowed {
		return authkit.ServerConfig{}, configError(configCodeDefaultRedirectForbidden, "default_redirect_uri must appear in allowed_redirects")
	}

	return authkit.ServerConfig{
		TokenSigningKey:    []byte(tokenSigningKey),
		TokenTTL:           tokenTTL,
		OAuthStateTTL:      oauthStateTTL,
		AllowedRedirects:   allowedRedirects,
		DefaultRedirectURI: defaultRedirect,
		PublicBaseURL:      strings.TrimRight(viper.GetString("public_base_url"), "/"),
		GoogleOAuth: authkit.OAuthClientConfig{
			ClientID:     viper.GetString("google_client_id"),
			ClientSecret: viper.GetString("google_client_secret"),
		},
		GitHubOAuth: authkit.OAuthClientConfig{
			ClientID:     viper.GetString("github_client_id"),
			ClientSecret: viper.GetString("github_client_secret"),
		},
	}, nil
}

func runServer(command *cobra.Command, arguments []string) error {
	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	commandContext := command.Context()
	var contextValue any
	if commandContext != nil {
		contextValue = commandContext.Value(serverConfigContextKey)
	}
	serverConfig, ok := contextValue.(authkit.ServerConfig)
	if !ok {
		return configError(configCodeUninitializedServerConf, "server configuration not prepared; PreRunE must execute before RunE")
	}
	if commandContext == nil {
		commandContext = context.Background()
	}

	listenAddr := viper.GetString("listen_addr")

	stores, storesErr := openStores(commandContext, viper.GetString("database_url"), logger)
	if storesErr != nil {
		return storesErr
	}
	defer stores.Close()

	metricsRecorder := authkit.NewCounterMetrics()
	defer func() {
		logger.Info("auth counters", zap.Any("counters", metricsRecorder.Snapshot()))
	}()

	router, routerErr := buildRouter(commandContext, serverConfig, stores, metricsRecorder, logger)
	if routerErr != nil {
		return routerErr
	}

	server := &http.Server{
		Addr:              listenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()

	go func() {
		stopSignals := make(chan os.Signal, 1)
		signal.Notify(stopSignals, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(stopSignals)
		select {
		case <-stopSignals:
		case <-shutdownCtx.Done():
			return
		}
		graceCtx, graceCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		defer graceCancel()
		if err := server.Shutdown(graceCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", listenAddr))
	if err := serveHTTP(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen error: %w", err)
	}
	return nil
}

func buildRouter(ctx context.Context, serverConfig authkit.ServerConfig, stores *storeSet, metricsRecorder authkit.MetricsRecorder, logger *zap.Logger) (*gin.Engine, error) {
	clock := authkit.NewSystemClock()

	codec, codecErr := authkit.NewTokenCodec(serverConfig.TokenSigningKey, serverConfig.TokenTTL, clock)
	if codecErr != nil {
		return nil, codecErr
	}

	var googleValidator authkit.GoogleTokenValidator
	if serverConfig.GoogleOAuth.ClientID != "" {
		validator, validatorErr := buildGoogleTokenValidator(ctx)
		if validatorErr != nil {
			return nil, fmt.Errorf("%s: %w", configCodeGoogleValidatorInit, validatorErr)
		}
		googleValidator = validator
	}

	resolver, resolverErr := authkit.NewIdentityResolver(authkit.IdentityResolverDependencies{
		Users:           stores.users,
		Broker:          authkit.NewOAuthSessionBroker(stores.sessions, serverConfig, clock, logger),
		Codec:           codec,
		Hasher:          authkit.NewArgon2PasswordHasher(),
		Providers:       authkit.NewIdentityProviders(serverConfig, &http.Client{Timeout: 15 * time.Second}),
		GoogleValidator: googleValidator,
		GoogleClientID:  serverConfig.GoogleOAuth.ClientID,
		Clock:           clock,
		Metrics:         metricsRecorder,
		Logger:          logger,
	})
	if resolverErr != nil {
		return nil, resolverErr
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(zapLoggerMiddleware(logger))

	if viper.GetBool("enable_cors") {
		corsMiddleware, corsErr := web.ConfigureCORS(logger, splitList(viper.GetString("cors_allowed_origins")))
		if corsErr != nil {
			return nil, fmt.Errorf("%s: %w", configCodeInvalidCORSOrigins, corsErr)
		}
		router.Use(corsMiddleware)
	}

	router.GET("/api/health", web.HandleHealth)

	api := router.Group("/api/v1")
	authkit.MountAuthRoutes(api, resolver, logger)
	api.GET("/auth/me", web.HandleWhoAmI(logger, resolver))
	api.GET("/auth/providers", func(contextGin *gin.Context) {
		googleClientID := ""
		if resolver.GoogleIDTokenEnabled() {
			googleClientID = serverConfig.GoogleOAuth.ClientID
		}
		web.ServeClientConfig(contextGin, web.ClientConfig{
			BaseURL:        serverConfig.PublicBaseURL,
			GoogleClientID: googleClientID,
			Providers:      resolver.ConfiguredProviders(),
		})
	})

	if upstreamURL := viper.GetString("polish_upstream_url"); upstreamURL != "" {
		proxy, proxyErr := web.NewPolishProxy(upstreamURL, logger)
		if proxyErr != nil {
			return nil, fmt.Errorf("%s: %w", configCodeInvalidPolishUpstream, proxyErr)
		}
		quota := authkit.NewRateLimitQuota(viper.GetInt("quota_per_minute"), viper.GetInt("quota_burst"))
		api.Any("/polish", authkit.RequirePolishAccess(codec, quota, metricsRecorder, logger), proxy)
		logger.Info("polish gate enabled", zap.String("upstream", upstreamURL))
	}

	logger.Info("sign-in providers",
		zap.Strings("oauth", providerNames(resolver.ConfiguredProviders())),
		zap.Bool("google_id_token", resolver.GoogleIDTokenEnabled()))
	return router, nil
}

func providerNames(providers []authkit.Provider) []string {
	names := make([]string, 0, len(providers))
	for _, provider := range providers {
		names = append(names, string(provider))
	}
	return names
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		startTime := time.Now()
		contextGin.Next()
		duration := time.Since(startTime)
		logger.Info("http",
			zap.String("method", contextGin.Request.Method),
			zap.String("path", contextGin.Request.URL.Path),
			zap.Int("status", contextGin.Writer.Status()),
			zap.String("ip", contextGin.ClientIP()),
			zap.Duration("elapsed", duration),
		)
	}
}
