package main

import (
	"github.com/septivank/meter-reading-service/internal/config"
	"github.com/septivank/meter-reading-service/internal/db"
	"github.com/septivank/meter-reading-service/internal/logging"
	"github.com/septivank/meter-reading-service/internal/mq"
	"github.com/septivank/meter-reading-service/internal/repository"
	"github.com/septivank/meter-reading-service/internal/service"
	"github.com/septivank/meter-reading-service/internal/validator"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// startWorker consumes reading submissions until the application stops.
// Rejected or unprocessable submissions are dead-lettered.
func startWorker(
	lc fx.Lifecycle,
	conn *mq.Connection,
	cfg *config.Config,
	logger *zap.Logger,
	processor *service.SubmissionProcessor,
) (*mq.Consumer, error) {
	consumer, err := mq.NewConsumer(mq.ConsumerConfig{
		Connection:    conn,
		Queue:         cfg.RabbitMQ.SubmissionQueue,
		DLQQueue:      cfg.RabbitMQ.DLQQueue,
		Exchange:      cfg.RabbitMQ.SubmissionExchange,
		RoutingKey:    cfg.RabbitMQ.SubmissionRoutingKey,
		PrefetchCount: cfg.RabbitMQ.PrefetchCount,
		Logger:        logger,
		Handler:       processor.ProcessMessage,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("submission worker configured",
		zap.String("queue", cfg.RabbitMQ.SubmissionQueue),
		zap.String("dlq", cfg.RabbitMQ.DLQQueue),
		zap.Int("prefetch", cfg.RabbitMQ.PrefetchCount),
	)
	consumer.RegisterLifecycle(lc)
	return consumer, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.NewLogger(cfg.ServiceName)
}

// ProvideDBPool creates a new database pool instance
func ProvideDBPool(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*db.Pool, error) {
	return db.NewPool(lc, logger, db.PoolOptions{
		URL:      cfg.Database.URL,
		MaxConns: int32(cfg.Database.MaxConns),
	})
}

// ProvideRepository creates a new repository instance
func ProvideRepository(pool *db.Pool) *repository.Repository {
	return repository.NewRepository(pool)
}

// ProvideValidator creates a new validator instance
func ProvideValidator(cfg *config.Config) *validator.Validator {
	return validator.NewValidator(cfg.Validation.ReadingDateToleranceMinutes)
}

// ProvideMQConnection creates a new RabbitMQ connection instance
func ProvideMQConnection(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*mq.Connection, error) {
	return mq.NewConnection(lc, logger, cfg.RabbitMQ.URL, cfg.ServiceName)
}

// ProvidePublisher publishes reading.created events for ingested submissions
func ProvidePublisher(lc fx.Lifecycle, conn *mq.Connection, cfg *config.Config, logger *zap.Logger) (*mq.Publisher, error) {
	return mq.NewLifecyclePublisher(lc, conn, cfg.RabbitMQ.EventsExchange, logger)
}

// ProvideReadingService records submissions through the same ingestion rules as the API
func ProvideReadingService(repo *repository.Repository, publisher *mq.Publisher, v *validator.Validator, logger *zap.Logger) *service.ReadingService {
	return service.NewReadingService(repo, repo, publisher, v, logger)
}

// ProvideSubmissionProcessor creates a new submission processor instance
func ProvideSubmissionProcessor(
	readings *service.ReadingService,
	repo *repository.Repository,
	v *validator.Validator,
	logger *zap.Logger,
) *service.SubmissionProcessor {
	return service.NewSubmissionProcessor(readings, repo, v, logger)
}
