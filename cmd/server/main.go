package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/neexbeast/greenscore/internal/aggregate"
	"github.com/neexbeast/greenscore/internal/api"
	"github.com/neexbeast/greenscore/internal/cache"
	"github.com/neexbeast/greenscore/internal/events"
	"github.com/neexbeast/greenscore/internal/presence"
	"github.com/neexbeast/greenscore/internal/storage"
	"github.com/neexbeast/greenscore/internal/storage/sqlite"
	"github.com/neexbeast/greenscore/internal/upstream"
)

// CLI is the server configuration. Every flag can also be set from the
// environment or a .env file.
type CLI struct {
	Port   string `env:"PORT" default:"8080" help:"HTTP listen port."`
	APIKey string `env:"API_KEY" required:"" help:"Key clients send in X-API-Key or Authorization: Bearer."`

	DatabaseURL   string `env:"DATABASE_URL" help:"PostgreSQL URL. When empty records go to SQLite."`
	SQLitePath    string `env:"SQLITE_PATH" default:"greenscore.db" help:"SQLite file used when DATABASE_URL is empty."`
	MigrationsDir string `env:"MIGRATIONS_DIR" default:"migrations" help:"Directory of PostgreSQL migrations."`
	RedisURL      string `env:"REDIS_URL" help:"Redis URL for the presence cache. When empty the cache is in-process."`

	OpenWeatherAPIKey  string `env:"OPENWEATHER_API_KEY" required:"" help:"OpenWeatherMap API key."`
	ExchangeRateAPIKey string `env:"EXCHANGERATE_API_KEY" required:"" help:"ExchangeRate-API key."`
	DiplomacyAPIURL    string `env:"DIPLOMACY_API_URL" required:"" help:"Base URL of the diplomatic mission directory."`
	DiplomacyAPIKey    string `env:"DIPLOMACY_API_KEY" help:"Optional key for the mission directory."`

	PresenceSource  string        `env:"PRESENCE_SOURCE_COUNTRY" help:"Sending country for pairwise presence. Empty uses the total across major senders."`
	PresenceTTL     time.Duration `env:"PRESENCE_TTL" default:"5m" help:"Lifetime of cached presence lookups."`
	UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT" default:"10s" help:"Deadline for each upstream stage."`
	ConnectTimeout  time.Duration `env:"CONNECT_TIMEOUT" default:"30s" help:"How long to keep retrying PostgreSQL and Redis at startup."`
	RateLimit       int           `env:"RATE_LIMIT_PER_MINUTE" default:"60" help:"Requests per minute allowed per client IP."`

	KafkaBrokers []string `env:"KAFKA_BROKERS" help:"Comma-separated Kafka brokers for score events."`
	KafkaTopic   string   `env:"KAFKA_TOPIC" default:"scores" help:"Kafka topic for score events."`

	LogLevel string `env:"LOG_LEVEL" default:"info" enum:"debug,info,warn,error" help:"Log level."`
}

func main() {
	_ = godotenv.Load()

	var cli CLI
	kong.Parse(&cli,
		kong.Name("greenscore"),
		kong.Description("Renewable energy investment score service."),
	)

	var level slog.Level
	if err := level.UnmarshalText([]byte(cli.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	if err := run(cli, log); err != nil {
		log.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cli CLI, log *slog.Logger) error {
	ctx := context.Background()
	var checks []api.HealthCheck

	// Record store: PostgreSQL when configured, SQLite otherwise.
	var records api.RecordStore
	if cli.DatabaseURL != "" {
		pool, err := storage.ConnectWithRetry(ctx, cli.DatabaseURL, cli.ConnectTimeout, log)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer pool.Close()

		if err := storage.RunMigrations(ctx, pool, cli.MigrationsDir); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		log.Info("migrations applied")

		records = storage.NewRepository(pool)
		checks = append(checks, api.HealthCheck{Name: "db", Pinger: pool})
	} else {
		store, err := sqlite.New(cli.SQLitePath)
		if err != nil {
			return fmt.Errorf("opening sqlite: %w", err)
		}
		defer func() { _ = store.Close() }()

		log.Info("using sqlite record store", "path", cli.SQLitePath)
		records = store
		checks = append(checks, api.HealthCheck{Name: "db", Pinger: store})
	}

	// Presence cache store: Redis when configured, in-process otherwise.
	var presenceStore presence.Store
	if cli.RedisURL != "" {
		redisClient, err := cache.ConnectWithRetry(ctx, cli.RedisURL, cli.ConnectTimeout, log)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer func() { _ = redisClient.Close() }()

		presenceStore = cache.NewPresenceStore(redisClient)
		checks = append(checks, api.HealthCheck{Name: "redis", Pinger: &redisPingerAdapter{client: redisClient}})
	} else {
		presenceStore = presence.NewMemoryStore()
	}

	// Score events.
	var publisher events.Publisher = events.NopPublisher{}
	if len(cli.KafkaBrokers) > 0 {
		kp, err := events.NewKafkaPublisher(cli.KafkaBrokers, cli.KafkaTopic, log)
		if err != nil {
			return fmt.Errorf("creating kafka publisher: %w", err)
		}
		publisher = kp
	}
	defer func() { _ = publisher.Close() }()

	// Wire dependencies.
	countries := upstream.NewCountriesClient()
	presenceCache := presence.NewCache(
		presenceStore,
		countries,
		upstream.NewDiplomacyClient(cli.DiplomacyAPIURL, cli.DiplomacyAPIKey),
		presence.WithTTL(cli.PresenceTTL),
		presence.WithLogger(log),
	)
	engine := aggregate.NewEngine(aggregate.Clients{
		Countries: countries,
		Weather:   upstream.NewWeatherClient(cli.OpenWeatherAPIKey),
		Exchange:  upstream.NewExchangeClient(cli.ExchangeRateAPIKey),
		Stability: upstream.NewStabilityClient(),
		Solar:     upstream.NewSolarClient(countries),
		Presence:  presenceCache,
	}, aggregate.Options{
		UpstreamTimeout: cli.UpstreamTimeout,
		PresenceSource:  cli.PresenceSource,
		Logger:          log,
	})

	handlers := api.NewHandlers(engine, records, presenceCache, publisher, log)
	router := api.NewRouter(handlers, cli.APIKey, cli.RateLimit, checks, log)

	srv := &http.Server{
		Addr:         ":" + cli.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 4*cli.UpstreamTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("server goroutine panicked", "recover", r)
				errCh <- fmt.Errorf("server panicked: %v", r)
			}
		}()
		log.Info("server starting", "port", cli.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("listening: %w", err)
		}
	}()

	select {
	case sig := <-quit:
		log.Info("shutdown signal received", "signal", sig)
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	log.Info("server shut down cleanly")
	return nil
}

// redisPingerAdapter adapts redis.Client to api.Pinger.
type redisPingerAdapter struct {
	client *redis.Client
}

func (r *redisPingerAdapter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
