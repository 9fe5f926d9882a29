package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	libredis "cyberdesk/backend/libs/redis"
	"cyberdesk/backend/services/desk-service/internal/clients"
	"cyberdesk/backend/services/desk-service/internal/clock"
	"cyberdesk/backend/services/desk-service/internal/config"
	"cyberdesk/backend/services/desk-service/internal/db"
	httpserver "cyberdesk/backend/services/desk-service/internal/http"
	"cyberdesk/backend/services/desk-service/internal/http/handlers"
	"cyberdesk/backend/services/desk-service/internal/http/middleware"
	"cyberdesk/backend/services/desk-service/internal/password"
	redisstore "cyberdesk/backend/services/desk-service/internal/redis"
	"cyberdesk/backend/services/desk-service/internal/repository"
	"cyberdesk/backend/services/desk-service/internal/service"
)

// App wires desk-service dependencies.
type App struct {
	server      *httpserver.Server
	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger
}

// New constructs the application graph.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	hourlyRate, err := cfg.HourlyRate()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	sqlDB, err := OpenDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	var (
		redisClient *redis.Client
		limiter     service.PushLimiter
		marker      service.CallbackMarker
	)
	if cfg.RedisEnabled() {
		redisClient, err = libredis.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			sqlDB.Close()
			return nil, err
		}
		store := redisstore.NewStore(redisClient, cfg.CallbackTTL(), cfg.PushTTL())
		limiter, marker = store, store
	} else {
		logger.Warn("redis not configured; callback dedup and push throttling disabled")
	}

	sessionRepo := repository.NewSessionRepository(sqlDB)
	studentRepo := repository.NewStudentRepository(sqlDB)
	paymentRepo := repository.NewPaymentRepository(sqlDB)
	operatorRepo := repository.NewOperatorRepository(sqlDB)
	dashboardView := repository.NewDashboardView(sqlDB)

	daraja := clients.NewDarajaClient(clients.DarajaConfig{
		BaseURL:        cfg.MpesaBaseURL(),
		ConsumerKey:    cfg.Mpesa.ConsumerKey,
		ConsumerSecret: cfg.Mpesa.ConsumerSecret,
		ShortCode:      cfg.Mpesa.ShortCode,
		PassKey:        cfg.Mpesa.PassKey,
		Location:       loc,
	}, clients.NewDefaultHTTPClient(cfg.MpesaTimeout()))

	clk := clock.System{}
	tokens := service.NewTokenService(cfg.JWT.Secret, cfg.JWTExpiration())
	authService := service.NewAuthService(operatorRepo, password.NewBcryptHasher(0), tokens, logger)
	ledger := service.NewLedgerService(sessionRepo, clk, hourlyRate, logger)
	gateway := service.NewGatewayService(daraja, sessionRepo, paymentRepo, studentRepo, limiter, logger)
	reconciler := service.NewReconcilerService(sessionRepo, paymentRepo, marker, logger)
	records := service.NewRecordsService(studentRepo, paymentRepo, gateway, clk, loc, logger)
	dashboard := service.NewDashboardService(dashboardView, paymentRepo, clk, service.DashboardOptions{
		TotalMachines:  cfg.Billing.TotalMachines,
		RecentSessions: cfg.Billing.RecentSessions,
		RecentPayments: cfg.Billing.RecentPayments,
		Location:       loc,
	})

	routes := httpserver.Routes{
		Health:        handlers.NewHealthHandler(sqlDB),
		Login:         handlers.NewLoginHandler(authService, logger),
		MpesaCallback: handlers.NewMpesaCallbackHandler(reconciler, logger),
		Dashboard:     handlers.NewDashboardHandler(dashboard, logger),
		Students:      handlers.NewStudentsHandler(records, dashboard, logger),
		Sessions:      handlers.NewSessionsHandler(ledger, gateway, cfg.Mpesa.CallbackURL, logger),
		Payments:      handlers.NewPaymentsHandler(records, gateway, cfg.Mpesa.CallbackURL, logger),
	}

	router := httpserver.NewRouter(routes, middleware.Auth(tokens), logger)
	server := httpserver.NewServer(cfg.HTTPAddress(), router, logger)

	return &App{
		server:      server,
		db:          sqlDB,
		redisClient: redisClient,
		logger:      logger,
	}, nil
}

// OpenDatabase connects to postgres and applies the schema when configured to.
func OpenDatabase(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*sql.DB, error) {
	sqlDB, err := db.NewPostgres(cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.Database.Migrate {
		if err := db.Migrate(ctx, sqlDB, logger); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return sqlDB, nil
}

// Run starts HTTP server.
func (a *App) Run(ctx context.Context) error {
	return a.server.Run(ctx)
}

// Close releases resources.
func (a *App) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}
