package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	"artspire/internal/art"
	"artspire/internal/config"
	"artspire/internal/constants"
	"artspire/internal/endpoints"
	"artspire/internal/logger"
	"artspire/internal/rabbitmq"
	"artspire/pkg/bootstrap"
	"artspire/pkg/health"
	"artspire/pkg/logging"
	"artspire/pkg/migrations"
	"artspire/pkg/tracing"
)

const serviceName = "art-service"

func mongoDatabase(cfg *config.Config) string {
	if cfg.Database.MongoDB.Database != "" {
		return cfg.Database.MongoDB.Database
	}
	return constants.DefaultMongoDBName
}

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	mongoClient    *mongo.Client
	tracerProvider *tracing.Provider
	server         *http.Server
	supervisors    []*rabbitmq.Supervisor
	pinger         *art.Pinger
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

	client, err := a.dbConnector.InitMongoDB(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize MongoDB: %w", err)
	}
	a.mongoClient = client
	db := client.Database(mongoDatabase(a.Config))

	if a.Config.Database.RunMigrations {
		if err := migrations.EnsureBlobIndexes(ctx, db, a.Config.Storage.Bucket); err != nil {
			return err
		}
	}

	store, err := art.NewGridFSStore(db, a.Config.Storage.Bucket)
	if err != nil {
		return err
	}
	signer := art.NewURLSigner([]byte(a.Config.Storage.SigningKey), a.Config.Storage.BaseURL, a.Config.Storage.URLTTL())
	images := art.NewImageService(store, signer, a.Logger)

	tp, err := tracing.Init(a.Config.Tracing, serviceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	a.InitRabbitMQ(serviceName)
	a.InitRPCClient(serviceName)
	if err := a.InitBroker(serviceName); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	a.supervisors = []*rabbitmq.Supervisor{
		a.Supervise(constants.ImageAddRequestQueue, art.NewImageStoreHandler(images)),
		a.Supervise(constants.ImageGetRequestQueue, art.NewImageURLHandler(images)),
	}
	a.pinger = art.NewPinger(a.Producer, a.Config.Events.PingQueue, a.Config.Events.PingInterval, serviceName, a.Logger)

	registry := health.NewCheckerRegistry()
	registry.Register(health.NewMongoDBChecker(client))
	registry.Register(health.NewRabbitMQChecker(a.Dialer))

	router := a.NewRouter(ctx, serviceName, registry)
	art.NewGateway(endpoints.NewClient(a.Caller), images, a.Logger).RegisterRoutes(router)
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

	g.Go(func() error {
		if err := a.pinger.Run(gCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.InfowCtx(logging.WithServiceName(ctx, serviceName), "Shutting down art service")

	return a.Base.Shutdown(ctx, func(ctx context.Context) []error {
		var errs []error
		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}
		return append(errs, a.dbConnector.ShutdownDatabases(ctx, nil, nil, a.mongoClient)...)
	})
}
