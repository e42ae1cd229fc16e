package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/dentdesk/dentdesk/internal/config"
	"github.com/dentdesk/dentdesk/internal/domain/assistant"
	"github.com/dentdesk/dentdesk/internal/domain/auditevent"
	"github.com/dentdesk/dentdesk/internal/domain/billing"
	"github.com/dentdesk/dentdesk/internal/domain/catalog"
	"github.com/dentdesk/dentdesk/internal/domain/clinical"
	"github.com/dentdesk/dentdesk/internal/domain/completion"
	"github.com/dentdesk/dentdesk/internal/domain/dataimport"
	"github.com/dentdesk/dentdesk/internal/domain/dbapi"
	"github.com/dentdesk/dentdesk/internal/domain/identity"
	"github.com/dentdesk/dentdesk/internal/domain/inbox"
	"github.com/dentdesk/dentdesk/internal/domain/scheduling"
	"github.com/dentdesk/dentdesk/internal/domain/supply"
	"github.com/dentdesk/dentdesk/internal/platform/auth"
	"github.com/dentdesk/dentdesk/internal/platform/db"
	"github.com/dentdesk/dentdesk/internal/platform/events"
	"github.com/dentdesk/dentdesk/internal/platform/idempotency"
	"github.com/dentdesk/dentdesk/internal/platform/lock"
	"github.com/dentdesk/dentdesk/internal/platform/middleware"
	"github.com/dentdesk/dentdesk/internal/platform/payment"
	"github.com/dentdesk/dentdesk/internal/platform/validate"
)

// infra holds the optional backing services picked from config.
type infra struct {
	redis       *redis.Client
	idempotency idempotency.Store
	locker      lock.Locker
	publisher   events.Publisher
	checks      []db.DependencyCheck
	closers     []func()
}

func (i *infra) close() {
	for j := len(i.closers) - 1; j >= 0; j-- {
		i.closers[j]()
	}
}

func newInfra(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*infra, error) {
	in := &infra{}

	if cfg.RedisURL != "" {
		rdb, err := db.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		in.redis = rdb
		in.closers = append(in.closers, func() { rdb.Close() })
		in.idempotency = idempotency.NewRedisStore(rdb, cfg.IdempotencyTTL)
		in.locker = lock.NewRedisLocker(rdb, "dentdesk:lock:")
		in.checks = append(in.checks, db.DependencyCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
		logger.Info().Msg("using redis for idempotency keys and visit locks")
	} else {
		mem := idempotency.NewMemoryStore(cfg.IdempotencyTTL)
		in.closers = append(in.closers, mem.Stop)
		in.idempotency = mem
		in.locker = lock.NewLocalLocker()
		logger.Warn().Msg("REDIS_URL not set: idempotency keys and visit locks are process-local")
	}

	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaEventsTopic, logger)
		in.publisher = kp
		in.checks = append(in.checks, db.DependencyCheck{Name: "kafka", Check: kp.Ping})
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaEventsTopic).Msg("publishing events to kafka")
	} else {
		in.publisher = events.NewLogPublisher(logger)
	}
	in.closers = append(in.closers, func() {
		if err := in.publisher.Close(); err != nil {
			logger.Error().Err(err).Msg("close event publisher")
		}
	})

	return in, nil
}

// services is every domain service the API exposes.
type services struct {
	identity   *identity.Service
	scheduling *scheduling.Service
	clinical   *clinical.Service
	billing    *billing.Service
	supply     *supply.Service
	inbox      *inbox.Service
	audit      *auditevent.Service
	auditRepo  *auditevent.AuditLogRepoPG
	completion *completion.Service
	dbapi      *dbapi.Service
	assistant  *assistant.Service
	imports    *dataimport.Service
}

func newServices(pool *pgxpool.Pool, cfg *config.Config, in *infra, logger zerolog.Logger) *services {
	inTx := func(ctx context.Context, fn func(context.Context) error) error {
		return db.RunInTx(ctx, pool, fn)
	}

	s := &services{
		identity:   identity.NewService(identity.NewPatientRepoPG(pool), identity.NewDentistRepoPG(pool)),
		scheduling: scheduling.NewService(scheduling.NewAppointmentRepoPG(pool), scheduling.NewRecallRepoPG(pool)),
		clinical:   clinical.NewService(clinical.NewTreatmentRepoPG(pool), clinical.NewNoteRepoPG(pool), clinical.NewPrescriptionRepoPG(pool)),
		billing:    billing.NewService(billing.NewInvoiceRepoPG(pool)),
		supply: supply.NewService(supply.NewInventoryRepoPG(pool), cfg.LowStockThreshold,
			supply.WithTx(inTx), supply.WithEvents(in.publisher, logger)),
		inbox:     inbox.NewService(inbox.NewNotificationRepoPG(pool), inbox.NewTemplateEngine()),
		auditRepo: auditevent.NewAuditLogRepoPG(pool),
		dbapi:     dbapi.NewService(dbapi.NewStorePG(pool), cfg.LowStockThreshold),
	}
	s.audit = auditevent.NewService(s.auditRepo)
	s.imports = dataimport.NewService(s.identity, logger)

	var payments payment.Requester
	if cfg.PaymentLinksEnabled() {
		payments = payment.NewClient(cfg.PaymentAPIURL, cfg.PaymentAPIKey)
	}

	s.completion = completion.NewService(completion.Deps{
		Appointments: s.scheduling,
		Directory:    s.identity,
		Clinical:     s.clinical,
		Invoices:     s.billing,
		Inventory:    s.supply,
		Notifier:     s.inbox,
		Auditor:      s.audit,
		Payments:     payments,
		Events:       in.publisher,
		Locker:       in.locker,
		InTx:         inTx,
		Savepoint:    db.Savepoint,
		Logger:       logger.With().Str("component", "completion").Logger(),
	})

	var completer assistant.Completer
	if cfg.LLMAPIKey != "" {
		completer = assistant.NewClient(cfg.LLMAPIURL, cfg.LLMAPIKey, cfg.LLMModel)
	} else {
		logger.Warn().Msg("LLM_API_KEY not set: the assistant answers with canned replies")
	}
	s.assistant = assistant.NewService(completer, logger.With().Str("component", "assistant").Logger())

	return s
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	in, err := newInfra(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect backing services")
	}
	defer in.close()

	svc := newServices(pool, cfg, in, logger)

	e := newEcho(cfg, pool, svc, in, logger)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func newEcho(cfg *config.Config, pool *pgxpool.Pool, svc *services, in *infra, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validate.New()

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders:  []string{"Authorization", "Content-Type", "X-Request-ID", "X-Tenant-ID", idempotency.HeaderKey},
		ExposeHeaders: []string{idempotency.HeaderReplayed},
	}))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout, middleware.UploadPathPrefix))
	e.Use(middleware.BodyLimit("1M", cfg.BodyLimit))

	jwtCfg := auth.JWTConfig{
		Issuer:   cfg.AuthIssuer,
		Audience: cfg.AuthAudience,
		JWKSURL:  cfg.AuthJWKSURL,
	}
	if cfg.AuthSigningKey != "" {
		jwtCfg.SigningKey = []byte(cfg.AuthSigningKey)
	}
	if cfg.IsDev() {
		var verify echo.MiddlewareFunc
		if cfg.AuthIssuer != "" || cfg.AuthSigningKey != "" {
			verify = auth.JWTMiddleware(jwtCfg)
		}
		e.Use(auth.DevAuthMiddleware(cfg.DefaultTenant, verify))
	} else {
		e.Use(auth.JWTMiddleware(jwtCfg))
	}

	e.Use(db.TenantMiddleware(pool, cfg.DefaultTenant, auth.IsPublic))
	e.Use(middleware.Audit(logger, auditevent.NewAccessRecorder(svc.auditRepo, cfg.DefaultTenant)))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(pool, in.checks...))

	apiV1 := e.Group("/api/v1")
	rl := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rl.RequestsPerSecond <= 0 {
		rl = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rl))

	catalog.NewHandler().RegisterRoutes(apiV1)
	identity.NewHandler(svc.identity).RegisterRoutes(apiV1)
	scheduling.NewHandler(svc.scheduling).RegisterRoutes(apiV1)
	clinical.NewHandler(svc.clinical).RegisterRoutes(apiV1)
	billing.NewHandler(svc.billing).RegisterRoutes(apiV1)
	supply.NewHandler(svc.supply).RegisterRoutes(apiV1)
	inbox.NewHandler(svc.inbox).RegisterRoutes(apiV1)
	auditevent.NewHandler(svc.audit).RegisterRoutes(apiV1)
	completion.NewHandler(svc.completion, in.idempotency, logger).RegisterRoutes(apiV1)
	dbapi.NewHandler(svc.dbapi, logger).RegisterRoutes(apiV1)
	assistant.NewHandler(svc.assistant).RegisterRoutes(apiV1)
	dataimport.NewHandler(svc.imports).RegisterRoutes(apiV1)

	return e
}
