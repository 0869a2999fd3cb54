package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/joao-fontenele/printhub/internal/auth"
	"github.com/joao-fontenele/printhub/internal/catalog"
	"github.com/joao-fontenele/printhub/internal/config"
	"github.com/joao-fontenele/printhub/internal/database"
	"github.com/joao-fontenele/printhub/internal/domain"
	"github.com/joao-fontenele/printhub/internal/httpx"
	"github.com/joao-fontenele/printhub/internal/messaging"
	"github.com/joao-fontenele/printhub/internal/notifications"
	"github.com/joao-fontenele/printhub/internal/orders"
	"github.com/joao-fontenele/printhub/internal/outbox"
	"github.com/joao-fontenele/printhub/internal/payments"
	"github.com/joao-fontenele/printhub/internal/telemetry"
	"github.com/joao-fontenele/printhub/internal/users"
)

const serviceName = "orders"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := telemetry.NewLogger(os.Stdout, serviceName)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Require("POSTGRES_URL", "KAFKA_BROKERS", "JWT_SECRET", "PAYMENT_WEBHOOK_SECRET"); err != nil {
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

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(serviceName, "0.1.0")
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(context.Background()) }()

	db, err := database.Open(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	producer := messaging.NewProducer(cfg.KafkaBrokers)
	defer func() { _ = producer.Close() }()

	var nonces auth.NonceStore = auth.NewInMemoryNonceStore(nil)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		nonces = auth.NewRedisNonceStore(rdb, "printhub:webhook-nonce")
	} else {
		logger.Warn("REDIS_ADDR not set, webhook nonces are tracked in memory")
	}

	rs := httpx.NewResponder(logger, !cfg.IsProduction())
	tx := database.NewTxManager(db)
	userRepo := users.NewRepository(db)
	outboxStore := outbox.NewStore(db)

	notificationRepo := notifications.NewRepository(db)
	dispatcher := notifications.NewDispatcher(userRepo, notificationRepo, outboxStore, cfg.NotificationsTopic, logger)

	orderRepo := orders.NewOrderRepository(db)
	orderService := orders.NewService(orderRepo, tx, catalog.NewRepository(db), userRepo, dispatcher, logger)

	providers, err := payments.NewManager(map[domain.PaymentMethod]payments.Provider{
		domain.PaymentMethodAirtelMoney: payments.NewAirtelMoney(cfg.FrontendURL, cfg.SimulatedLatency),
		domain.PaymentMethodMoovMoney:   payments.NewMoovMoney(cfg.FrontendURL, cfg.SimulatedLatency),
	})
	if err != nil {
		logger.Error("failed to register payment providers", "error", err)
		os.Exit(1)
	}
	paymentService := payments.NewService(payments.NewPaymentRepository(db), tx, orderRepo, orderService, providers, cfg.PaymentTimeout, logger)

	authenticator := auth.NewAuthenticator(cfg.JWTSecret, userRepo, rs)
	verifier, err := auth.NewWebhookVerifier(cfg.PaymentWebhookSecret, nonces, rs, logger, auth.WithClockSkew(cfg.WebhookClockSkew))
	if err != nil {
		logger.Error("failed to build webhook verifier", "error", err)
		os.Exit(1)
	}

	orderHandler := orders.NewHandler(orderService, rs)
	paymentHandler := payments.NewHandler(paymentService, rs)
	notificationHandler := notifications.NewHandler(notifications.NewService(notificationRepo, dispatcher, tx), rs)

	authed := func(h http.HandlerFunc) http.Handler {
		return authenticator.Middleware(telemetry.WithHTTPRoute(h))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /orders", authed(orderHandler.HandleCreate))
	mux.Handle("GET /orders", authed(orderHandler.HandleList))
	mux.Handle("GET /printer/orders", authed(orderHandler.HandleListAssigned))
	mux.Handle("GET /orders/{id}", authed(orderHandler.HandleGet))
	mux.Handle("PATCH /orders/{id}/status", authed(orderHandler.HandleUpdateStatus))
	mux.Handle("POST /orders/{id}/cancel", authed(orderHandler.HandleCancel))
	mux.Handle("POST /orders/{id}/assign", authed(orderHandler.HandleAssign))
	mux.Handle("POST /payments/initiate", authed(paymentHandler.HandleInitiate))
	mux.Handle("POST /payments/confirm", verifier.Middleware(telemetry.WithHTTPRoute(paymentHandler.HandleConfirm)))
	mux.Handle("GET /payments/status/{orderId}", authed(paymentHandler.HandleStatus))
	mux.Handle("GET /notifications", authed(notificationHandler.HandleList))
	mux.Handle("POST /notifications/whatsapp", authed(notificationHandler.HandleSendWhatsApp))
	mux.Handle("PATCH /notifications/{id}/read", authed(notificationHandler.HandleMarkRead))
	mux.HandleFunc("GET /healthz", httpx.Healthz)
	mux.Handle("GET /metrics", metricsHandler)

	relay := outbox.NewRelay(outboxStore, tx, producer, cfg.OutboxPollInterval, cfg.OutboxBatchSize, logger)
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		relay.Run(ctx)
	}()

	port := cfg.PortOr("8081")
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      httpx.Wrap(mux, serviceName),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 2 * cfg.PaymentTimeout,
	}

	go func() {
		logger.Info("starting orders service", "port", port)
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
	<-relayDone
}
