package main

import (
	"github.com/septivank/meter-reading-service/internal/anomaly"
	"github.com/septivank/meter-reading-service/internal/auth"
	"github.com/septivank/meter-reading-service/internal/config"
	"github.com/septivank/meter-reading-service/internal/db"
	"github.com/septivank/meter-reading-service/internal/httpapi"
	"github.com/septivank/meter-reading-service/internal/logging"
	"github.com/septivank/meter-reading-service/internal/mq"
	"github.com/septivank/meter-reading-service/internal/repository"
	"github.com/septivank/meter-reading-service/internal/service"
	"github.com/septivank/meter-reading-service/internal/validator"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.NewLogger(cfg.ServiceName)
}

// ProvideDBPool creates the database pool and applies the schema on start
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

func ProvideTokenManager(cfg *config.Config) *auth.TokenManager {
	return auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiresIn)
}

// ProvideAnomalyDetector creates a new anomaly detector instance
func ProvideAnomalyDetector(cfg *config.Config) *anomaly.Detector {
	return anomaly.NewDetector(cfg.Anomaly.BaselineSize)
}

// ProvideEventPublisher publishes reading events to RabbitMQ, or drops them
// when RABBITMQ_URL is unset.
func ProvideEventPublisher(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (service.EventPublisher, error) {
	if cfg.RabbitMQ.URL == "" {
		logger.Warn("RABBITMQ_URL not set, reading events are not published")
		return mq.NopPublisher{}, nil
	}

	conn, err := mq.NewConnection(lc, logger, cfg.RabbitMQ.URL, cfg.ServiceName)
	if err != nil {
		return nil, err
	}
	publisher, err := mq.NewLifecyclePublisher(lc, conn, cfg.RabbitMQ.EventsExchange, logger)
	if err != nil {
		return nil, err
	}
	return publisher, nil
}

func ProvideUserService(repo *repository.Repository, tokens *auth.TokenManager, v *validator.Validator, logger *zap.Logger) *service.UserService {
	return service.NewUserService(repo, tokens, v, logger)
}

func ProvideCustomerService(repo *repository.Repository, v *validator.Validator, logger *zap.Logger) *service.CustomerService {
	return service.NewCustomerService(repo, repo, v, logger)
}

func ProvideReadingService(repo *repository.Repository, events service.EventPublisher, v *validator.Validator, logger *zap.Logger) *service.ReadingService {
	return service.NewReadingService(repo, repo, events, v, logger)
}

func ProvideReportService(repo *repository.Repository, detector *anomaly.Detector, cfg *config.Config, logger *zap.Logger) *service.ReportService {
	return service.NewReportService(repo, repo, detector, cfg.Anomaly.DefaultThreshold, cfg.Anomaly.LookupConcurrency, logger)
}

func ProvideFieldReadingService(repo *repository.Repository, v *validator.Validator) *service.FieldReadingService {
	return service.NewFieldReadingService(repo, v)
}

// ProvideRouterDeps collects everything the HTTP handlers dispatch to.
func ProvideRouterDeps(
	users *service.UserService,
	customers *service.CustomerService,
	readings *service.ReadingService,
	reports *service.ReportService,
	fields *service.FieldReadingService,
	tokens *auth.TokenManager,
	repo *repository.Repository,
	cfg *config.Config,
	logger *zap.Logger,
) httpapi.Deps {
	return httpapi.Deps{
		Users:         users,
		Customers:     customers,
		Readings:      readings,
		Reports:       reports,
		FieldReadings: fields,
		Tokens:        tokens,
		Accounts:      repo,
		AllowOrigins:  cfg.CORS.AllowOrigins,
		Logger:        logger,
	}
}
