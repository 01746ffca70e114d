package main

import (
	"context"
	"errors"
	"fmt"
	"net"
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
	"google.golang.org/grpc"

	"github.com/rl1809/seat-booking/internal/adapter/handler"
	"github.com/rl1809/seat-booking/internal/adapter/messaging"
	"github.com/rl1809/seat-booking/internal/adapter/storage"
	"github.com/rl1809/seat-booking/internal/config"
	"github.com/rl1809/seat-booking/internal/core/service"
	"github.com/rl1809/seat-booking/internal/platform/logging"
	"github.com/rl1809/seat-booking/internal/platform/metrics"
	"github.com/rl1809/seat-booking/internal/platform/tracing"
	"github.com/rl1809/seat-booking/internal/port"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "booking-service: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(config.BookingServiceName)
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

	// Initialize MySQL: inventory and bookings live in separate databases
	pool := storage.PoolOptions{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}
	inventoryDB, err := storage.OpenMySQL(ctx, "inventory", cfg.Database.InventoryDSN, pool, cfg.Retry, logger)
	if err != nil {
		return err
	}
	defer inventoryDB.Close()
	bookingDB, err := storage.OpenMySQL(ctx, "booking", cfg.Database.BookingDSN, pool, cfg.Retry, logger)
	if err != nil {
		return err
	}
	defer bookingDB.Close()

	if err := storage.EnsureInventorySchema(ctx, inventoryDB); err != nil {
		return err
	}
	if err := storage.EnsureBookingSchema(ctx, bookingDB); err != nil {
		return err
	}

	// Redis is optional: without it duplicates are settled by the ledger
	var lock port.RequestLock
	rdb, err := storage.OpenRedis(ctx, &redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: 100,
	}, cfg.Retry, logger)
	if err != nil {
		logger.Warn("running without request lock", zap.Error(err))
	} else {
		defer rdb.Close()
		lock = storage.NewRedisLock(rdb)
	}

	bus, err := messaging.OpenBus(ctx, cfg.Bus, cfg.Retry, logger)
	if err != nil {
		return err
	}
	defer bus.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	// Initialize adapters and services
	inventory := storage.NewMySQLInventory(inventoryDB)
	ledger := storage.NewMySQLBookingRepository(bookingDB, cfg.Bus.FactTopic)
	relay := service.NewOutboxRelay(storage.NewMySQLOutbox(bookingDB), bus.Writer, service.OutboxOptions{
		PollInterval: cfg.Outbox.PollInterval,
		BatchSize:    cfg.Outbox.BatchSize,
		Lease:        cfg.Outbox.Lease,
	}, logger.Named("outbox"), m)

	bookings := service.NewBookingService(inventory, ledger, relay, lock, service.SagaOptions{
		StepTimeout: cfg.Saga.StepTimeout,
		LockTTL:     cfg.Redis.LockTTL,
		LockWait:    cfg.Saga.LockWait,
		LockPoll:    cfg.Saga.LockPoll,
	}, logger.Named("saga"), m)
	inventorySvc := service.NewInventoryService(inventory, logger)
	reconciler := service.NewReconciliationService(inventory, ledger, logger.Named("reconcile"))

	httpHandler := handler.NewHTTPHandler(bookings, inventorySvc, reconciler, logger)
	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      handler.NewRouter(logger, m.Handler(), httpHandler.Routes),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(handler.UnaryLogger(logger)))
	handler.RegisterBookingServer(grpcServer, handler.NewGRPCHandler(bookings))
	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPC.Addr))
		if err := grpcServer.Serve(lis); err != nil {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return relay.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", zap.Error(err))
		}
		grpcServer.GracefulStop()
		return nil
	})

	err = g.Wait()
	logger.Info("booking-service stopped")
	return err
}
