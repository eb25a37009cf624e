package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/rideline/rideline/internal/adapters/crdb"
	mongoadapter "github.com/rideline/rideline/internal/adapters/mongo"
	"github.com/rideline/rideline/internal/adapters/rabbit"
	redisadapter "github.com/rideline/rideline/internal/adapters/redis"
	"github.com/rideline/rideline/internal/booking"
	"github.com/rideline/rideline/internal/config"
	"github.com/rideline/rideline/internal/fare"
	"github.com/rideline/rideline/internal/hold"
	httphandler "github.com/rideline/rideline/internal/http"
	"github.com/rideline/rideline/internal/idempotency"
	"github.com/rideline/rideline/internal/inventory"
	"github.com/rideline/rideline/internal/materialize"
	"github.com/rideline/rideline/internal/notify"
	"github.com/rideline/rideline/internal/observability"
	"github.com/rideline/rideline/internal/printing"
	"github.com/rideline/rideline/internal/ratelimit"
	"github.com/rideline/rideline/internal/selector"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	mongoDB := mongoClient.Database("rideline")
	catalog := mongoadapter.NewCatalogRepository(mongoDB, logger)
	audit := mongoadapter.NewAuditLogger(mongoDB, logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	redisCache := redisadapter.NewCache(redisClient)
	redisIdemp := redisadapter.NewIdempotency(redisClient)
	idemp := idempotency.NewIdempotency(redisIdemp, cfg.IdempotencyTTL)
	rl := ratelimit.NewRateLimiter(redisCache)

	rabbitConn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer rabbitConn.Close()
	rabbitPub, err := rabbit.NewPublisher(rabbitConn)
	if err != nil {
		log.Fatalf("failed to create publisher: %v", err)
	}
	notifier := notify.NewRabbitNotifier(rabbitPub, logger)

	holds := hold.NewManager(repo, notifier, logger, hold.Options{
		ShortTTL:      cfg.ShortHoldTTL,
		LongTTL:       cfg.LongHoldTTL,
		SweepInterval: cfg.SweepInterval,
	})
	holds.Start(context.Background())
	defer holds.Stop()

	inv := inventory.NewService(repo, holds, logger)
	sel := selector.New(inv)
	quoter := fare.NewCatalogQuoter(repo, catalog)
	coord := booking.NewCoordinator(repo, holds, quoter, notifier, printing.JSONGenerator{}, logger, cfg.PaymentTolerance)
	mat := materialize.NewMaterializer(catalog, repo, notifier, logger)

	handlers := httphandler.NewHandlers(cfg, holds, sel, coord, mat, inv, repo, catalog, idemp, audit, logger)
	r := httphandler.SetupRouter(handlers, logger, rl)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("Server exiting")
}
