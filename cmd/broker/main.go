// The broker is an HTTP sidecar exposing a chained credential flow: it
// acquires tokens through an ordered set of providers and serves them from
// an expiry-aware cache.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/justinas/alice"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/demoray/azure-identity-helpers/credential"
	"github.com/demoray/azure-identity-helpers/internal/audit"
	"github.com/demoray/azure-identity-helpers/internal/cache"
	"github.com/demoray/azure-identity-helpers/internal/chain"
	"github.com/demoray/azure-identity-helpers/internal/config"
	"github.com/demoray/azure-identity-helpers/internal/observe"
	"github.com/demoray/azure-identity-helpers/internal/server"
)

func main() {
	configureLogging()

	logBuildInfo()

	if err := launch(); err != nil {
		log.Fatal().Err(err).Msg("broker failed to start")
	}
}

func launch() error {
	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("configuration load failed: %w", err)
	}

	shutdownTelemetry, err := observe.Configure(ctx, cfg.Observe)
	if err != nil {
		return fmt.Errorf("telemetry bootstrap failed: %w", err)
	}

	store, err := cache.NewFromConfig[credential.AccessToken](cfg.Cache)
	if err != nil {
		return fmt.Errorf("token cache configuration failed: %w", err)
	}

	tokenCache := credential.NewTokenCache(store,
		credential.WithExpiryMargin(time.Duration(cfg.Cache.ExpiryMarginSecs)*time.Second),
	)

	credentialChain, err := chain.New(cfg.Chain, tokenCache)
	if err != nil {
		return fmt.Errorf("credential chain configuration failed: %w", err)
	}

	handler := configureRoutes(cfg.Chain, credentialChain, tokenCache)

	hooks := &server.Hooks{}
	hooks.Add("telemetry", shutdownTelemetry)
	hooks.AddCloser("token store", store)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler,
		MaxHeaderBytes:    20 << 10,         // 20 KB
		ReadHeaderTimeout: 20 * time.Second, // Prevent Slowloris attacks
	}

	return server.Serve(ctx, srv,
		time.Duration(cfg.Server.ShutdownTimeoutSeconds)*time.Second, hooks)
}

func configureRoutes(cfg config.ChainConfig, issuer tokenIssuer, tokenCache *credential.TokenCache) http.Handler {
	// wrap a mux such that HTTP telemetry is configured by default
	muxWithoutTelemetry := http.NewServeMux()
	mux := observe.NewMux(muxWithoutTelemetry)

	// The request body size is fairly limited to prevent accidental or
	// deliberate abuse. Given the current API shape, this is not
	// configurable.
	requestLimitBytes := int64(20 << 10) // 20 KB
	middleware := alice.New(audit.Middleware(), maxRequestSize(requestLimitBytes))

	mux.Handle("POST /token", middleware.Then(handlePostToken(cfg, issuer)))
	mux.Handle("DELETE /token", middleware.Then(handleInvalidateToken(cfg, tokenCache)))

	// healthchecks are not included in telemetry
	muxWithoutTelemetry.Handle("GET /healthcheck", middleware.Then(handleHealthCheck()))

	return mux
}

func configureLogging() {
	// default level is Info
	log.Logger = log.Level(zerolog.InfoLevel)

	if os.Getenv("ENV") == "development" {
		log.Logger = log.
			Output(zerolog.ConsoleWriter{Out: os.Stdout}).
			Level(zerolog.DebugLevel)
	}

	zerolog.DefaultContextLogger = &log.Logger
}

func logBuildInfo() {
	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	ev := log.Info()
	for _, v := range buildInfo.Settings {
		if strings.HasPrefix(v.Key, "vcs.") ||
			strings.HasPrefix(v.Key, "GO") ||
			v.Key == "CGO_ENABLED" {
			ev = ev.Str(v.Key, v.Value)
		}
	}

	ev.Msg("build information")
}
