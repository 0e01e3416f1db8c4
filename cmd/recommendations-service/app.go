package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	"artspire/internal/config"
	"artspire/internal/constants"
	"artspire/internal/logger"
	"artspire/internal/rabbitmq"
	"artspire/internal/recommendations"
	"artspire/pkg/bootstrap"
	"artspire/pkg/health"
	"artspire/pkg/logging"
	"artspire/pkg/migrations"
	"artspire/pkg/tracing"
)

const serviceName = "recommendations-service"

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	redisClient    *redis.Client
	mongoClient    *mongo.Client
	tracerProvider *tracing.Provider
	server         *http.Server
	supervisor     *rabbitmq.Supervisor
	cache          recommendations.Cache
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

func (a *App) collection() string {
	if a.Config.Recommendations.Collection != "" {
		return a.Config.Recommendations.Collection
	}
	return constants.DefaultSimilarityCollection
}

func (a *App) initIndex(ctx context.Context) (*recommendations.MongoIndex, error) {
	client, err := a.dbConnector.InitMongoDB(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MongoDB: %w", err)
	}
	a.mongoClient = client

	name := a.Config.Database.MongoDB.Database
	if name == "" {
		name = constants.DefaultMongoDBName
	}
	db := client.Database(name)

	if a.Config.Database.RunMigrations {
		if err := migrations.EnsureSimilarityIndexes(ctx, db, a.collection()); err != nil {
			return nil, err
		}
	}
	return recommendations.NewMongoIndex(db, a.collection()), nil
}

// InitImporter connects only what an index import needs: the index and the
// event producer.
func (a *App) InitImporter(ctx context.Context) (*recommendations.Importer, error) {
	index, err := a.initIndex(ctx)
	if err != nil {
		return nil, err
	}

	a.InitRabbitMQ(serviceName)
	if err := a.InitBroker(serviceName); err != nil {
		return nil, fmt.Errorf("failed to initialize broker: %w", err)
	}

	return recommendations.NewImporter(index, a.Producer, a.Config.Events.IndexTopic, a.collection(), serviceName, a.Logger), nil
}

func (a *App) Initialize(ctx context.Context) error {
	ctx = logging.WithServiceName(ctx, serviceName)

	index, err := a.initIndex(ctx)
	if err != nil {
		return err
	}

	redisClient, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize Redis: %w", err)
	}
	a.redisClient = redisClient

	ttl := a.Config.Recommendations.CacheTTL
	if ttl <= 0 {
		ttl = constants.DefaultSimilarityTTL
	}
	var cache recommendations.Cache = recommendations.NewRedisCache(redisClient, ttl)
	if a.Config.CircuitBreaker.Enabled {
		cache = recommendations.NewCircuitBreakerCache(cache, a.Config.CircuitBreaker)
	}
	a.cache = cache

	tp, err := tracing.Init(a.Config.Tracing, serviceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	a.InitRabbitMQ(serviceName)
	if err := a.InitBroker(serviceName); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	recommender := recommendations.NewRecommender(index, cache, a.Config.Recommendations.FallbackIDs, a.Logger)
	if err := recommender.CheckFallback(ctx); err != nil {
		a.Logger.WarnwCtx(ctx, "Unknown arts will get empty recommendations until the index is imported or RECOMMENDATIONS_FALLBACK_IDS is set", "error", err)
	}
	a.supervisor = a.Supervise(constants.SimilarityRequestQueue, recommendations.NewSimilarityHandler(recommender, a.Logger))

	registry := health.NewCheckerRegistry()
	registry.Register(health.NewMongoDBChecker(a.mongoClient))
	registry.RegisterOptional(health.NewRedisChecker(redisClient))
	registry.Register(health.NewRabbitMQChecker(a.Dialer))

	a.server = a.NewHTTPServer(a.NewRouter(ctx, serviceName, registry))
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

	g.Go(func() error { return a.supervisor.Run(gCtx) })

	if a.Consumer != nil {
		handler := recommendations.NewIndexEventHandler(a.cache, a.collection(), a.Logger)
		g.Go(func() error {
			if err := a.Consumer.Consume(gCtx, a.Config.Events.IndexTopic, handler); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("index event consumer error: %w", err)
			}
			return nil
		})
	}

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.InfowCtx(logging.WithServiceName(ctx, serviceName), "Shutting down recommendations service")

	return a.Base.Shutdown(ctx, func(ctx context.Context) []error {
		var errs []error
		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}
		return append(errs, a.dbConnector.ShutdownDatabases(ctx, a.redisClient, nil, a.mongoClient)...)
	})
}
