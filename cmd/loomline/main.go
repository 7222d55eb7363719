package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/loomline/loomline/internal/app"
	"github.com/loomline/loomline/internal/auth"
	"github.com/loomline/loomline/internal/orders"
	"github.com/loomline/loomline/internal/rbac"
	"github.com/loomline/loomline/internal/shared"
	"github.com/loomline/loomline/internal/tenancy"
	"github.com/loomline/loomline/internal/tenants"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	codec, err := auth.NewTokenCodec(cfg.AuthSecret, cfg.TokenTTL)
	if err != nil {
		logger.Error("token codec", slog.Any("error", err))
		os.Exit(1)
	}

	tables := tenancy.DefaultTableConfig()
	if len(cfg.TenancyExcludedTables)+len(cfg.TenancySharedTables)+len(cfg.TenancySuperAdminTables) > 0 {
		tables = tenancy.NewTableConfig(cfg.TenancyExcludedTables, cfg.TenancySharedTables, cfg.TenancySuperAdminTables)
	}
	tenantDB := tenancy.NewDB(dbpool, tables, logger)

	auditLogger := shared.NewAuditLogger(dbpool)
	idempotency := shared.NewIdempotencyStore(dbpool)

	rbacStore := rbac.NewStore(dbpool)
	engine := rbac.NewEngine(rbacStore, redisClient, logger)
	rbacService := rbac.NewService(rbacStore, engine, auditLogger, logger)
	rbacMW := rbac.Middleware{Logger: logger}

	versions := auth.NewPasswordVersions(redisClient)
	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo, codec, versions, logger, cfg.TokenTTL)
	authMW := auth.NewMiddleware(codec, versions, engine, logger)

	tenantsRepo := tenants.NewRepository(dbpool)
	tenantsService := tenants.NewService(tenantsRepo, auditLogger, logger)

	ordersRepo := orders.NewRepository(tenantDB)
	ordersService := orders.NewService(ordersRepo, idempotency, auditLogger, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:  logger,
		Config:  cfg,
		Auth:    authMW,
		RBAC:    rbacMW,
		AuthH:   auth.NewHandler(logger, authService),
		RBACH:   rbac.NewHandler(logger, rbacService),
		Tenants: tenants.NewHandler(logger, tenantsService),
		Orders:  orders.NewHandler(logger, ordersService, rbacMW),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
