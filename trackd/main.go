package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tracklab-io/tracklab/internal/domain"
	"github.com/tracklab-io/tracklab/internal/platform/auth"
	"github.com/tracklab-io/tracklab/internal/platform/env"
	"github.com/tracklab-io/tracklab/internal/platform/httpserver"
	"github.com/tracklab-io/tracklab/internal/store"

	_ "github.com/tracklab-io/tracklab/internal/store/memory"
	_ "github.com/tracklab-io/tracklab/internal/store/postgres"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := env.String("TRACKLAB_HTTP_ADDR", ":8080")
	shutdownTimeout, err := env.Duration("TRACKLAB_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}

	trackingURI := env.String("TRACKLAB_TRACKING_URI", "mem://")
	backend, err := store.Open(ctx, trackingURI)
	if err != nil {
		logger.Error("tracking backend unavailable", "uri", trackingURI, "error", err)
		os.Exit(1)
	}
	defer func() { _ = backend.Close() }()

	authCfg, err := auth.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid auth config", "error", err)
		os.Exit(2)
	}
	var authenticator auth.Authenticator
	switch authCfg.Mode {
	case auth.ModeDisabled:
		authenticator = nil
	case auth.ModeDev:
		authenticator = auth.NewDevAuthenticator(authCfg)
	case auth.ModeToken:
		authenticator, err = auth.NewStaticTokenAuthenticator(authCfg.StaticToken)
		if err != nil {
			logger.Error("invalid token auth config", "error", err)
			os.Exit(2)
		}
	case auth.ModeOIDC:
		authenticator, err = auth.NewOIDCAuthenticator(ctx, authCfg)
		if err != nil {
			logger.Error("oidc provider init failed", "error", err)
			os.Exit(2)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", httpserver.Healthz("trackd"))
	mux.HandleFunc(
		"/readyz",
		httpserver.ReadyzWithChecks(
			"trackd",
			httpserver.ReadinessCheck{
				Name: "store",
				Check: func(ctx context.Context) error {
					checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
					defer cancel()
					_, err := backend.ListExperiments(checkCtx, domain.ViewAll)
					return err
				},
			},
		),
	)

	api := newTrackdAPI(logger, backend)
	api.register(mux)

	var handler http.Handler = mux
	if authenticator != nil {
		handler = auth.Middleware{
			Logger:        logger,
			Authenticator: authenticator,
			SkipPrefixes:  []string{"/healthz", "/readyz"},
		}.Wrap(mux)
	}

	cfg := httpserver.Config{
		Service:         "trackd",
		Addr:            addr,
		ShutdownTimeout: shutdownTimeout,
	}

	if err := httpserver.Run(ctx, logger, cfg, httpserver.Wrap(logger, "trackd", handler)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
