package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/joao-fontenele/printhub/internal/config"
	"github.com/joao-fontenele/printhub/internal/gateway"
	"github.com/joao-fontenele/printhub/internal/httpx"
	"github.com/joao-fontenele/printhub/internal/telemetry"
)

const serviceName = "gateway"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := telemetry.NewLogger(os.Stdout, serviceName)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Require("ORDERS_SERVICE_URL"); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, telemetry.TracerConfig{
		Endpoint:       cfg.OTLPEndpoint,
		ServiceName:    serviceName,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Env,
		SampleRatio:    cfg.TraceSampleRatio,
	})
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	httpClient := &http.Client{
		Timeout:   cfg.HTTPTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	// Payments and notifications are served by the orders binary unless
	// routed elsewhere.
	upstream := func(url string) *gateway.ServiceProxy {
		if url == "" {
			url = cfg.OrdersServiceURL
		}
		return gateway.NewServiceProxy(url, httpClient)
	}
	handler := gateway.NewHandler(
		upstream(cfg.OrdersServiceURL),
		upstream(cfg.PaymentsServiceURL),
		upstream(cfg.NotificationsURL),
		httpx.NewResponder(logger, !cfg.IsProduction()),
		logger,
	)

	mux := http.NewServeMux()
	handler.Register(mux, telemetry.WithHTTPRoute)
	mux.HandleFunc("GET /healthz", httpx.Healthz)

	port := cfg.PortOr("8080")
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      httpx.Wrap(mux, serviceName),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.HTTPTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("starting gateway service", "port", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
