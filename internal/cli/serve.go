package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ucmodeler/modelstore/internal/auth"
	"github.com/ucmodeler/modelstore/internal/server"
	"github.com/ucmodeler/modelstore/pkg/config"
	"github.com/ucmodeler/modelstore/pkg/logging"
)

const shutdownTimeout = 10 * time.Second

var errAuthUnchosen = errors.New("auth is not configured: set auth.enabled, BACKEND_AUTH_ENABLED or pass --no-auth")

func newServeCmd(o *options) *cobra.Command {
	var tracing, noAuth bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve the model HTTP API until interrupted.

Authentication uses RS256 bearer tokens verified against the public key
published at auth.public_key_uri. With auth disabled, callers act as the user
named in the TestUsername header.

The server refuses to start until auth is chosen: set auth.enabled in the
config file, set BACKEND_AUTH_ENABLED, or pass --no-auth.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withApp(func(a *app) error {
				ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()
				if noAuth {
					a.cfg.Auth.SetEnabled(false)
				}
				return serve(ctx, a, tracing)
			})
		},
	}
	cmd.Flags().String("listen", "", "listen address (overrides config)")
	cmd.Flags().BoolVar(&tracing, "tracing", false, "record OpenTelemetry spans for requests")
	cmd.Flags().BoolVar(&noAuth, "no-auth", false, "serve without bearer authentication")
	mustBindFlag(o.v, "listen", "", cmd.Flags().Lookup("listen"))
	return cmd
}

func newAuthenticator(cfg *config.Config) auth.Authenticator {
	var verifier auth.Authenticator
	if cfg.Auth.PublicKeyURI != "" {
		verifier = auth.NewJWTAuthenticator(auth.NewHTTPKeySource(cfg.Auth.PublicKeyURI, nil))
	}
	if cfg.Auth.Enabled {
		return verifier
	}
	return &auth.DisabledAuthenticator{DefaultUser: cfg.Auth.DefaultUser, Next: verifier}
}

func serve(ctx context.Context, a *app, tracing bool) error {
	if !a.cfg.Auth.Chosen() {
		return errAuthUnchosen
	}
	logger := logging.WithFields(map[string]any{"component": "serve"})

	opts := []server.Option{
		server.WithAuthenticator(newAuthenticator(a.cfg)),
		server.WithTracing(tracing),
	}
	if a.metrics != nil {
		opts = append(opts, server.WithMetrics(a.metrics), server.WithMetricsPath(a.cfg.Metrics.Path))
	}
	srv := &http.Server{
		Addr:              a.cfg.Listen,
		Handler:           server.New(a.leases, a.registry, a.transfer, opts...).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", map[string]any{"addr": srv.Addr, "models_dir": a.store.Dir(), "auth": a.cfg.Auth.Enabled})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
