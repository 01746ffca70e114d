// Command reconcile compares inventory counters with the booking ledger and
// exits non-zero when they disagree.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rl1809/seat-booking/internal/adapter/storage"
	"github.com/rl1809/seat-booking/internal/config"
	"github.com/rl1809/seat-booking/internal/core/service"
	"github.com/rl1809/seat-booking/internal/platform/logging"
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "reconcile: %v\n", err)
		os.Exit(2)
	}
	os.Exit(code)
}

func run() (int, error) {
	cfg, err := config.Load("reconcile")
	if err != nil {
		return 0, err
	}
	logger, err := logging.New(cfg.ServiceName, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return 0, err
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool := storage.PoolOptions{MaxOpenConns: 2, MaxIdleConns: 1, ConnMaxLifetime: time.Minute}
	inventoryDB, err := storage.OpenMySQL(ctx, "inventory", cfg.Database.InventoryDSN, pool, cfg.Retry, logger)
	if err != nil {
		return 0, err
	}
	defer inventoryDB.Close()
	bookingDB, err := storage.OpenMySQL(ctx, "booking", cfg.Database.BookingDSN, pool, cfg.Retry, logger)
	if err != nil {
		return 0, err
	}
	defer bookingDB.Close()

	reconciler := service.NewReconciliationService(
		storage.NewMySQLInventory(inventoryDB),
		storage.NewMySQLBookingRepository(bookingDB, cfg.Bus.FactTopic),
		logger,
	)
	report, err := reconciler.Check(ctx)
	if err != nil {
		return 0, err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return 0, err
	}
	if !report.Consistent() {
		return 1, nil
	}
	return 0, nil
}
