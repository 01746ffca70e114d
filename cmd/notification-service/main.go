package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rl1809/seat-booking/internal/adapter/handler"
	"github.com/rl1809/seat-booking/internal/adapter/messaging"
	"github.com/rl1809/seat-booking/internal/adapter/notify"
	"github.com/rl1809/seat-booking/internal/adapter/storage"
	"github.com/rl1809/seat-booking/internal/config"
	"github.com/rl1809/seat-booking/internal/core/service"
	"github.com/rl1809/seat-booking/internal/platform/logging"
	"github.com/rl1809/seat-booking/internal/platform/metrics"
	"github.com/rl1809/seat-booking/internal/platform/tracing"
	"github.com/rl1809/seat-booking/internal/port"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "notification-service: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(config.NotificationServiceName)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.ServiceName, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.ServiceName, config.ServiceVersion, cfg.Tracing.Endpoint)
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	db, err := storage.OpenMySQL(ctx, "notification", cfg.Database.NotificationDSN, storage.PoolOptions{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, cfg.Retry, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := storage.EnsureNotificationSchema(ctx, db); err != nil {
		return err
	}

	// exhausting the connect policy here is fatal
	bus, err := messaging.OpenBus(ctx, cfg.Bus, cfg.Retry, logger)
	if err != nil {
		return err
	}
	defer bus.Close()

	dispatchers := []port.Dispatcher{notify.NewLogDispatcher(logger.Named("notify"))}
	rdb, err := storage.OpenRedis(ctx, &redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, cfg.Retry, logger)
	if err != nil {
		logger.Warn("push notifications disabled", zap.Error(err))
	} else {
		defer rdb.Close()
		dispatchers = append(dispatchers, notify.NewRedisPushDispatcher(rdb, cfg.Redis.PushChannel))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	repo := storage.NewMySQLNotificationRepository(db)
	deadLetters := messaging.NewDeadLetterPublisher(bus.Writer, repo, logger)
	notifications := service.NewNotificationService(repo, deadLetters, dispatchers, logger.Named("consumer"), m)

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      handler.NewRouter(logger, m.Handler(), handler.NewNotificationHTTPHandler(notifications, logger).Routes),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("consuming facts", zap.String("topic", cfg.Bus.FactTopic), zap.String("driver", cfg.Bus.Driver))
		return notifications.Consume(gctx, bus.Subscriber(cfg.Bus.FactTopic))
	})
	g.Go(func() error {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info("notification-service stopped")
	return err
}
