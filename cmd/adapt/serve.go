package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/unboundedsystems/adapt/internal/eventbus"
	"github.com/unboundedsystems/adapt/internal/observer"
	"github.com/unboundedsystems/adapt/internal/otel"
	"github.com/unboundedsystems/adapt/internal/server"
	"github.com/unboundedsystems/adapt/internal/transform"
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve observer GraphQL endpoints over HTTP",
		Long: `Serve POST /observers/{name}/graphql for every observer, executing queries
against the observations file as it is on disk at request time. Prometheus
metrics are served at /metrics.`,
		Args: cobra.NoArgs,
		PreRun: func(cmd *cobra.Command, args []string) {
			flags := cmd.Flags()
			mustBindPFlag(serverAddrFlag, flags.Lookup(serverAddrFlag))
			mustBindPFlag(serverTimeoutFlag, flags.Lookup(serverTimeoutFlag))
			mustBindPFlag(serverPrettyFlag, flags.Lookup(serverPrettyFlag))
			mustBindPFlag(serverCORSOriginFlag, flags.Lookup(serverCORSOriginFlag))
			mustBindPFlag(allMaxDepthFlag, flags.Lookup(allMaxDepthFlag))
			mustBindPFlag(allMaxFieldsFlag, flags.Lookup(allMaxFieldsFlag))
			mustBindPFlag(otelEndpointFlag, flags.Lookup(otelEndpointFlag))
			mustBindPFlag(otelServiceFlag, flags.Lookup(otelServiceFlag))
		},
		RunE: runServe,
	}
	flags := cmd.Flags()
	flags.String(serverAddrFlag, ":8080", "HTTP listen address")
	flags.Duration(serverTimeoutFlag, 10*time.Second, "per-request timeout")
	flags.Bool(serverPrettyFlag, false, "pretty-print JSON responses")
	flags.StringSlice(serverCORSOriginFlag, nil, "allowed CORS origins; CORS is disabled when empty")
	flags.Int(allMaxDepthFlag, transform.DefaultLimits.MaxDepth, "largest depth accepted by @all; 0 disables the check")
	flags.Int(allMaxFieldsFlag, transform.DefaultLimits.MaxFields, "most fields one @all may add; 0 disables the check")
	flags.String(otelEndpointFlag, "", "OTLP gRPC collector endpoint; tracing is disabled when empty")
	flags.String(otelServiceFlag, "adapt", "OpenTelemetry service name")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log, err := newLogger()
	if err != nil {
		return err
	}
	bus := eventbus.New()
	shutdownTracing, err := otel.Setup(bus, viper.GetString(otelEndpointFlag), viper.GetString(otelServiceFlag))
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	path := viper.GetString(observationsFlag)
	source := func(context.Context) (observer.Observations, error) {
		obs, err := observer.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return obs.Observer, nil
	}

	opts := []server.Option{
		server.WithTimeout(viper.GetDuration(serverTimeoutFlag)),
		server.WithLogger(log),
		server.WithBus(bus),
		server.WithAllLimits(transform.Limits{
			MaxDepth:  viper.GetInt(allMaxDepthFlag),
			MaxFields: viper.GetInt(allMaxFieldsFlag),
		}),
	}
	if viper.GetBool(serverPrettyFlag) {
		opts = append(opts, server.WithPretty())
	}
	if origins := viper.GetStringSlice(serverCORSOriginFlag); len(origins) > 0 {
		opts = append(opts, server.WithCORS(origins...))
	}
	h, err := server.New(newRegistry(), source, opts...)
	if err != nil {
		return err
	}
	defer h.Close()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", h)

	addr := viper.GetString(serverAddrFlag)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		log.Info("serving observers", zap.String("addr", addr), zap.String("observations", path))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
