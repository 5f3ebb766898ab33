package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/learnhub-backend/api/routes"
	"github.com/angelmondragon/learnhub-backend/internal/auth"
	"github.com/angelmondragon/learnhub-backend/internal/courses"
	"github.com/angelmondragon/learnhub-backend/internal/enrollments"
	"github.com/angelmondragon/learnhub-backend/internal/identity"
	"github.com/angelmondragon/learnhub-backend/internal/payments"
	"github.com/angelmondragon/learnhub-backend/internal/users"
	razorpaywebhook "github.com/angelmondragon/learnhub-backend/internal/webhooks/razorpay"
	"github.com/angelmondragon/learnhub-backend/pkg/auth/session"
	"github.com/angelmondragon/learnhub-backend/pkg/config"
	"github.com/angelmondragon/learnhub-backend/pkg/db"
	"github.com/angelmondragon/learnhub-backend/pkg/enums"
	"github.com/angelmondragon/learnhub-backend/pkg/instance"
	"github.com/angelmondragon/learnhub-backend/pkg/logger"
	"github.com/angelmondragon/learnhub-backend/pkg/metrics"
	"github.com/angelmondragon/learnhub-backend/pkg/migrate"
	"github.com/angelmondragon/learnhub-backend/pkg/outbox"
	"github.com/angelmondragon/learnhub-backend/pkg/razorpay"
	"github.com/angelmondragon/learnhub-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("run dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		return fmt.Errorf("create session manager: %w", err)
	}

	currency, err := enums.ParseCurrency(cfg.Razorpay.Currency)
	if err != nil {
		return fmt.Errorf("razorpay currency: %w", err)
	}

	paymentMetrics := metrics.NewPaymentMetrics(prometheus.DefaultRegisterer)

	usersRepo := users.NewRepository(dbClient.DB())
	coursesRepo := courses.NewRepository(dbClient.DB())
	enrollmentsRepo := enrollments.NewRepository(dbClient.DB())
	paymentsRepo := payments.NewRepository(dbClient.DB())
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       usersRepo,
		SessionManager: sessionManager,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
		Logger:         logg,
	})
	if err != nil {
		return fmt.Errorf("create auth service: %w", err)
	}

	courseService, err := courses.NewService(coursesRepo, currency)
	if err != nil {
		return fmt.Errorf("create course service: %w", err)
	}

	enrollmentService, err := enrollments.NewService(enrollmentsRepo)
	if err != nil {
		return fmt.Errorf("create enrollment service: %w", err)
	}

	gateway, err := razorpay.NewClient(cfg.Razorpay.KeyID, cfg.Razorpay.KeySecret, razorpay.WithBaseURL(cfg.Razorpay.BaseURL))
	if err != nil {
		return fmt.Errorf("create razorpay client: %w", err)
	}

	intents, err := payments.NewIntentService(payments.IntentServiceParams{
		Courses:        coursesRepo,
		Enrollments:    enrollmentsRepo,
		Payments:       paymentsRepo,
		Gateway:        gateway,
		GatewayTimeout: cfg.Timeouts.Gateway,
		Metrics:        paymentMetrics,
		Logger:         logg,
	})
	if err != nil {
		return fmt.Errorf("create intent service: %w", err)
	}

	webhookGuard, err := razorpaywebhook.NewIdempotencyGuard(redisClient, cfg.Payments.WebhookTTL)
	if err != nil {
		return fmt.Errorf("create webhook guard: %w", err)
	}

	reconciler, err := payments.NewReconciler(payments.ReconcilerParams{
		DB:            dbClient,
		Outbox:        outboxService,
		VerifySigner:  payments.NewSignatureVerifier(cfg.Razorpay.KeySecret),
		WebhookSigner: payments.NewSignatureVerifier(cfg.Razorpay.WebhookSecret),
		Guard:         webhookGuard,
		StoreTimeout:  cfg.Timeouts.Store,
		Metrics:       paymentMetrics,
		Logger:        logg,
	})
	if err != nil {
		return fmt.Errorf("create reconciler: %w", err)
	}

	handler := routes.NewRouter(cfg, logg, routes.Dependencies{
		DB:          dbClient,
		Redis:       redisClient,
		Verifier:    identity.NewVerifier(cfg.JWT, sessionManager, cfg.Timeouts.Identity),
		Resolver:    users.NewResolver(usersRepo, cfg.Timeouts.Store),
		Auth:        authService,
		Courses:     courseService,
		Enrollments: enrollmentService,
		Intents:     intents,
		Reconciler:  reconciler,
		Metrics:     paymentMetrics,
		Gatherer:    prometheus.DefaultGatherer,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(logCtx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logg.Info(logCtx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-serveErr
}
