package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/learnhub-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/learnhub-backend/api/controllers/webhooks"
	"github.com/angelmondragon/learnhub-backend/api/middleware"
	"github.com/angelmondragon/learnhub-backend/internal/auth"
	"github.com/angelmondragon/learnhub-backend/internal/courses"
	"github.com/angelmondragon/learnhub-backend/internal/enrollments"
	"github.com/angelmondragon/learnhub-backend/internal/identity"
	"github.com/angelmondragon/learnhub-backend/internal/payments"
	"github.com/angelmondragon/learnhub-backend/pkg/config"
	"github.com/angelmondragon/learnhub-backend/pkg/db"
	"github.com/angelmondragon/learnhub-backend/pkg/db/models"
	"github.com/angelmondragon/learnhub-backend/pkg/enums"
	"github.com/angelmondragon/learnhub-backend/pkg/logger"
	"github.com/angelmondragon/learnhub-backend/pkg/metrics"
)

// Verifier authenticates bearer credentials.
type Verifier interface {
	Verify(ctx context.Context, header string) (identity.Principal, error)
}

// ProfileResolver loads the profile row behind a principal.
type ProfileResolver interface {
	Resolve(ctx context.Context, principalID uuid.UUID) (*models.User, error)
}

// PaymentIntents opens provider orders.
type PaymentIntents interface {
	CreateIntent(ctx context.Context, userID, courseID uuid.UUID) (*payments.IntentResult, error)
}

// PaymentReconciler finalizes payments from both confirmation paths.
type PaymentReconciler interface {
	ReconcileVerification(ctx context.Context, actor payments.Actor, req payments.VerifyRequest) (*payments.Result, error)
	ReconcileWebhook(ctx context.Context, delivery payments.WebhookDelivery) (*payments.Result, error)
}

// RedisStore is the subset of the redis client the HTTP layer uses for rate
// limits, idempotency and readiness.
type RedisStore interface {
	Get(ctx context.Context, key string) (string, error)
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	IdempotencyKey(scope, id string) string
	RateLimitKey(scope string) string
	Ping(ctx context.Context) error
}

// Dependencies carries everything the router hands to controllers.
type Dependencies struct {
	DB          db.Pinger
	Redis       RedisStore
	Verifier    Verifier
	Resolver    ProfileResolver
	Auth        auth.Service
	Courses     courses.Service
	Enrollments enrollments.Service
	Intents     PaymentIntents
	Reconciler  PaymentReconciler
	Metrics     *metrics.PaymentMetrics
	Gatherer    prometheus.Gatherer
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.AllowedOrigins()),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	signupPolicy := middleware.NewAuthRateLimitPolicy(
		"signup",
		cfg.AuthRateLimit.SignupWindow,
		cfg.AuthRateLimit.SignupIPLimit,
		cfg.AuthRateLimit.SignupEmailLimit,
	)

	var readiness []controllers.ReadinessCheck
	if deps.DB != nil {
		readiness = append(readiness, controllers.ReadinessCheck{Name: "postgres", Ping: deps.DB.Ping})
	}
	if deps.Redis != nil {
		readiness = append(readiness, controllers.ReadinessCheck{Name: "redis", Ping: deps.Redis.Ping})
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness...))
	})

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	authenticated := middleware.RequireAuthenticated(deps.Verifier, deps.Resolver, logg)
	staffOnly := middleware.RequireRole(logg, enums.UserRoleInstructor, enums.UserRoleAdmin)
	idempotent := middleware.Idempotency(deps.Redis, logg)

	r.Route("/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(signupPolicy, deps.Redis, logg)).Post("/signup", controllers.AuthSignup(deps.Auth, logg))
		r.With(middleware.AuthRateLimit(loginPolicy, deps.Redis, logg)).Post("/login", controllers.AuthLogin(deps.Auth, logg))

		r.Group(func(r chi.Router) {
			r.Use(authenticated)
			r.Post("/logout", controllers.AuthLogout(deps.Auth, logg))
			r.Get("/profile", controllers.AuthProfile(deps.Auth, logg))
			r.With(middleware.RequireRole(logg, enums.UserRoleAdmin)).Patch("/role/{uid}", controllers.AuthUpdateRole(deps.Auth, logg))
		})
	})

	r.Route("/courses", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuthenticated(deps.Verifier, deps.Resolver, logg))
			r.Get("/", controllers.CoursesList(deps.Courses, logg))
			r.Get("/{id}", controllers.CourseGet(deps.Courses, logg))
		})
		r.Group(func(r chi.Router) {
			r.Use(authenticated, staffOnly)
			r.With(idempotent).Post("/", controllers.CourseCreate(deps.Courses, logg))
			r.Patch("/{id}", controllers.CourseUpdate(deps.Courses, logg))
		})
	})

	r.With(authenticated).Get("/enrollments/me", controllers.MyEnrollments(deps.Enrollments, logg))

	r.Route("/payment", func(r chi.Router) {
		r.Post("/webhook", webhookcontrollers.RazorpayWebhook(deps.Reconciler, deps.Metrics, logg))

		r.Group(func(r chi.Router) {
			r.Use(authenticated)
			r.With(idempotent).Post("/create-order", controllers.PaymentCreateOrder(deps.Intents, logg))
			r.Post("/verify", controllers.PaymentVerify(deps.Reconciler, logg))
		})
	})

	return r
}
