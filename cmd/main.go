/**
 * @description
 * This is the main entry point for the settlement simulator. It loads configuration,
 * selects the storage backend, seeds the partner banks and demo accounts, connects the
 * optional Redis and RabbitMQ integrations, starts the settlement engine and health
 * classifier, and serves the HTTP API until it receives SIGINT or SIGTERM.
 *
 * @dependencies
 * - github.com/joho/godotenv: For loading .env files during local development.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/redis/go-redis/v9: Transfer rate limiting.
 * - golang.org/x/sync/errgroup: Supervises the HTTP server and background workers.
 * - internal/api, internal/app, internal/config, internal/network, internal/store.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/pamilerinsimon03/WemaTrust/internal/api"
	"github.com/pamilerinsimon03/WemaTrust/internal/app"
	"github.com/pamilerinsimon03/WemaTrust/internal/config"
	"github.com/pamilerinsimon03/WemaTrust/internal/health"
	"github.com/pamilerinsimon03/WemaTrust/internal/network"
	"github.com/pamilerinsimon03/WemaTrust/internal/seed"
	"github.com/pamilerinsimon03/WemaTrust/internal/store"
	rmrabbit "github.com/pamilerinsimon03/WemaTrust/pkg/rabbitmq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load .env file for local development.
	if err := godotenv.Load(); err != nil {
		log.Println("level=info component=bootstrap msg=\"no .env file found; using environment variables\"")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	log.Printf("level=info component=bootstrap msg=\"starting settlement simulator\" port=%s storage=%s", cfg.ServerPort, cfg.StorageBackend)

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var repository store.Repository = store.NewMemoryRepository()
	if cfg.StorageBackend == config.StoragePostgres {
		dbpool, err := openPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
		}
		defer dbpool.Close()

		pgRepo := store.NewPostgresRepository(dbpool)
		if err := pgRepo.EnsureSchema(ctx); err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"schema migration failed\" err=%v", err)
		}
		repository = pgRepo
		log.Println("level=info component=bootstrap msg=\"database connected\"")
	}

	fixture, err := seed.Load(cfg.SeedFile)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"seed load failed\" err=%v", err)
	}

	sim, err := network.Build(ctx, network.Options{
		Repository:      repository,
		Fixture:         fixture,
		Engine:          cfg.Simulation(),
		EventBufferSize: cfg.EventBufferSize,
		Logger:          logger,
	})
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"network build failed\" err=%v", err)
	}
	defer sim.Close()
	log.Printf("level=info component=bootstrap msg=\"seed applied\" banks=%d accounts=%d users=%d", sim.Seeded.Banks, sim.Seeded.Accounts, sim.Seeded.Users)

	if cfg.TransferRateLimitPerMinute > 0 {
		var limiter app.RateLimiter = app.NewMemoryRateLimiter()
		if redisClient := connectRedis(cfg.RedisURL); redisClient != nil {
			defer redisClient.Close()
			limiter = app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix)
		}
		sim.Service.SetTransferRateLimiter(limiter, cfg.TransferRateLimitPerMinute)
	}

	// Event relay and partner status feed are optional; the simulator runs without RabbitMQ.
	var publisher rmrabbit.Publisher
	if cfg.RabbitMQURL != "" {
		producer, err := rmrabbit.NewEventProducer(cfg.RabbitMQURL)
		if err != nil {
			log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
			publisher = &rmrabbit.EventProducerFallback{}
		} else {
			defer producer.Close()
			publisher = producer
			log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
		}

		consumer, err := rmrabbit.NewConsumer(cfg.RabbitMQURL)
		if err != nil {
			log.Printf("level=warn component=bootstrap msg=\"rabbitmq consumer unavailable; partner status feed disabled\" err=%v", err)
		} else {
			defer consumer.Close()
			bindings := map[string]func([]byte) bool{
				"partner.status.updated": sim.Service.PartnerStatusConsumer().HandleMessage,
			}
			if err := consumer.ConsumeWithBindings(cfg.EventsExchange, cfg.PartnerStatusQueue, bindings); err != nil {
				log.Printf("level=warn component=bootstrap msg=\"partner status consumer start failed\" err=%v", err)
			}
		}
	} else {
		log.Println("level=warn component=bootstrap msg=\"RABBITMQ_URL not set; event relay disabled\"")
	}

	if err := sim.Start(ctx); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"settlement engine start failed\" err=%v", err)
	}

	scheduler := health.NewScheduler(sim.Classifier, logger, cfg.HealthClassifierSchedule)
	if err := scheduler.Start(); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"health classifier schedule invalid\" err=%v", err)
	}
	defer func() { <-scheduler.Stop().Done() }()

	if cfg.OpsJWTSecret == "" {
		log.Println("level=warn component=bootstrap msg=\"OPS_JWT_SECRET not set; ops endpoints are unauthenticated\"")
	}
	handlers := api.NewHandlers(sim.Service, sim.Bus)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           api.NewRouter(handlers, cfg.OpsJWTSecret, cfg.AllowedOrigins()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("level=info component=http msg=\"server listening\" addr=%s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if publisher != nil {
		g.Go(func() error {
			return app.NewEventRelay(sim.Bus, publisher, cfg.EventsExchange, logger).Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Println("level=info component=http msg=\"shutdown started\"")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Printf("level=error component=http msg=\"server stopped\" err=%v", err)
	}
	log.Println("level=info component=http msg=\"shutdown complete\"")
}

func openPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	return pgxpool.NewWithConfig(ctx, poolConfig)
}

// connectRedis returns nil when Redis is not configured or unreachable, in which case
// rate limiting stays in process.
func connectRedis(redisURL string) *redis.Client {
	if strings.TrimSpace(redisURL) == "" {
		log.Println("level=info component=bootstrap msg=\"redis url missing; using in-memory rate limiting\" env=REDIS_URL")
		return nil
	}
	redisOptions, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; using in-memory rate limiting\" err=%v", err)
		return nil
	}
	client := redis.NewClient(redisOptions)
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Printf("level=warn component=bootstrap msg=\"redis ping failed; using in-memory rate limiting\" err=%v", err)
		client.Close()
		return nil
	}
	log.Println("level=info component=bootstrap msg=\"redis connected\"")
	return client
}
