package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/septivank/meter-reading-service/internal/config"
	"github.com/septivank/meter-reading-service/internal/httpapi"
	"github.com/septivank/meter-reading-service/internal/logging"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const startStopTimeout = 30 * time.Second

func main() {
	bootLogger, err := logging.NewLogger("meter-reading-api")
	if err != nil {
		panic(err)
	}

	if path := config.LoadDotEnv(); path != "" {
		bootLogger.Info("loaded environment file", zap.String("path", path))
	} else {
		bootLogger.Info("no .env file found, using process environment")
	}

	app := fx.New(
		fx.Provide(
			config.LoadAPI,
			newLogger,
			ProvideDBPool,
			ProvideRepository,
			ProvideValidator,
			ProvideTokenManager,
			ProvideAnomalyDetector,
			ProvideEventPublisher,
			ProvideUserService,
			ProvideCustomerService,
			ProvideReadingService,
			ProvideReportService,
			ProvideFieldReadingService,
			httpapi.NewRouter,
			ProvideRouterDeps,
		),
		fx.Invoke(startServer),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	startCtx, startCancel := context.WithTimeout(context.Background(), startStopTimeout)
	defer startCancel()

	if err := app.Start(startCtx); err != nil {
		if errors.Is(startCtx.Err(), context.DeadlineExceeded) {
			bootLogger.Error("application did not start within 30s; check that the database is reachable")
		}
		bootLogger.Fatal("failed to start application", zap.Error(err))
	}

	<-ctx.Done()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), startStopTimeout)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil {
		bootLogger.Error("error stopping application", zap.Error(err))
	}
}
