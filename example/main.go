package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	notifier "github.com/sandboxhq/notifier"
	"github.com/sandboxhq/notifier/storage/redisledger"
	"github.com/sandboxhq/notifier/storage/sqlstore"
)

const (
	dbDSN     = "root:password@tcp(localhost:3306)/notifier_db?parseTime=true"
	redisAddr = "localhost:6379"
)

// envSecretSource reads secrets from the environment. Production deployments
// would back this with the platform secret store; the SecretCache in front
// handles TTL and rotation either way.
type envSecretSource struct{}

func (envSecretSource) FetchSecret(_ context.Context, name string) (string, error) {
	if v := os.Getenv(name); v != "" {
		return v, nil
	}
	return "", notifier.ErrSecretNotFound
}

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	db, err := sql.Open("mysql", dbDSN)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatal("Failed to ping database", zap.Error(err))
	}

	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer redisClient.Close()

	// 1. Storage: redis idempotency ledger, MySQL dead-letter sink.
	ledger := redisledger.New(redisClient, logger)
	deadLetters := sqlstore.New(db, logger)
	if err := deadLetters.EnsureTables(context.Background()); err != nil {
		logger.Fatal("Failed to ensure tables", zap.Error(err))
	}

	// 2. Channel senders behind the shared secret cache.
	secrets := notifier.NewSecretCache(envSecretSource{}, clockwork.NewRealClock(), 5*time.Minute, logger)
	emailProvider := notifier.NewHTTPEmailProvider(
		"https://email.internal.example/v1/send",
		"EMAIL_API_KEY",
		secrets,
		nil,
	)
	emailSender := notifier.NewEmailSender(emailProvider, []string{"example.gov"}, logger)
	chatSender := notifier.NewChatSender("CHAT_WEBHOOK_URL", secrets, nil, logger)

	// 3. The engine: one brain, two mouths.
	engine, err := notifier.NewEngine(ledger, deadLetters,
		notifier.WithLogger(logger),
		notifier.WithMetrics(notifier.NewOpenTelemetryMetricsCollector()),
		notifier.WithAccountStore(notifier.NewHTTPAccountStore("https://accounts.internal.example", nil)),
		notifier.WithSender(emailSender),
		notifier.WithSender(chatSender),
	)
	if err != nil {
		logger.Fatal("Failed to create engine", zap.Error(err))
	}

	// 4. Source pump and retention cleanup under the dispatcher.
	source, err := notifier.NewKafkaSource(logger)
	if err != nil {
		logger.Fatal("Failed to create kafka source", zap.Error(err))
	}
	defer source.Close()

	consumer := notifier.NewConsumer(source, engine, logger, nil,
		notifier.WithConsumerMaxConcurrent(10),
	)
	cleanup := notifier.NewCleanupService(deadLetters, logger, nil,
		notifier.WithCleanupDeadLetterRetention(30*24*time.Hour),
	)

	workers := []notifier.Worker{
		notifier.NewBaseWorker("event_consumer", 1*time.Second, logger, consumer.ProcessBatch),
		notifier.NewBaseWorker("deadletter_cleanup", 1*time.Hour, logger, cleanup.Cleanup),
	}
	dispatcher := notifier.NewDispatcher(logger, workers...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go dispatcher.Start(ctx)

	<-ctx.Done()
	logger.Info("Shutdown signal received. Stopping dispatcher...")
	dispatcher.Stop()
	logger.Info("Dispatcher stopped gracefully.")
}
