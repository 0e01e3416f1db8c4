package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"golang.org/x/sync/errgroup"

	"artspire/internal/auth"
	"artspire/internal/config"
	"artspire/internal/constants"
	"artspire/internal/endpoints"
	"artspire/internal/logger"
	"artspire/internal/rabbitmq"
	"artspire/pkg/bootstrap"
	"artspire/pkg/cel"
	"artspire/pkg/health"
	"artspire/pkg/logging"
	"artspire/pkg/migrations"
	"artspire/pkg/tracing"
)

const serviceName = "auth-service"

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	db             *sql.DB
	tracerProvider *tracing.Provider
	server         *http.Server
	supervisors    []*rabbitmq.Supervisor
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(serviceName)
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	ctx = logging.WithServiceName(ctx, serviceName)

	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	a.db = db

	if a.Config.Database.RunMigrations {
		if err := migrations.MigratePostgres(db); err != nil {
			return err
		}
		a.Logger.InfowCtx(ctx, "Users schema migrated")
	}

	tokens, err := auth.LoadTokens(a.Config.JWT)
	if err != nil {
		return fmt.Errorf("failed to load jwt keys: %w", err)
	}

	var policy *cel.Policy
	if a.Config.JWT.ClaimsPolicy != "" {
		evaluator, err := cel.NewEvaluator()
		if err != nil {
			return fmt.Errorf("failed to create CEL evaluator: %w", err)
		}
		policy, err = evaluator.CompilePolicy(a.Config.JWT.ClaimsPolicy)
		if err != nil {
			return fmt.Errorf("invalid jwt.claims_policy: %w", err)
		}
		a.Logger.InfowCtx(ctx, "Token claims policy enabled", "policy", policy.String())
	}

	tp, err := tracing.Init(a.Config.Tracing, serviceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	a.InitRabbitMQ(serviceName)
	a.InitRPCClient(serviceName)

	repo := auth.NewRepository(db)
	service := auth.NewService(repo, tokens, endpoints.NewClient(a.Caller), a.Logger)

	a.supervisors = []*rabbitmq.Supervisor{
		a.Supervise(constants.JWTRequestQueue, auth.NewTokenValidationHandler(tokens, policy, a.Logger)),
		a.Supervise(constants.UsersRequestQueue, auth.NewUserLookupHandler(repo, a.Logger)),
	}

	registry := health.NewCheckerRegistry()
	registry.Register(health.NewPostgreSQLChecker(db))
	registry.Register(health.NewRabbitMQChecker(a.Dialer))

	router := a.NewRouter(ctx, serviceName, registry)
	auth.NewHandler(service, a.Logger).RegisterRoutes(router)
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	a.server = a.NewHTTPServer(router)
	return nil
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	for _, s := range a.supervisors {
		g.Go(func() error { return s.Run(gCtx) })
	}

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.InfowCtx(logging.WithServiceName(ctx, serviceName), "Shutting down auth service")

	return a.Base.Shutdown(ctx, func(ctx context.Context) []error {
		var errs []error
		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}
		return append(errs, a.dbConnector.ShutdownDatabases(ctx, nil, a.db, nil)...)
	})
}
