package storage

import (
	"context"
	"database/sql"
	"fmt"
)

var inventorySchema = []string{
	`CREATE TABLE IF NOT EXISTS resources (
		id              VARCHAR(64)  NOT NULL PRIMARY KEY,
		title           VARCHAR(255) NOT NULL,
		total_units     INT          NOT NULL,
		available_units INT          NOT NULL,
		starts_at       DATETIME(6)  NULL,
		version         BIGINT       NOT NULL DEFAULT 0,
		created_at      DATETIME(6)  NOT NULL,
		updated_at      DATETIME(6)  NOT NULL,
		CONSTRAINT chk_available CHECK (available_units >= 0 AND available_units <= total_units)
	) ENGINE=InnoDB`,
}

var bookingSchema = []string{
	`CREATE TABLE IF NOT EXISTS bookings (
		booking_key  VARCHAR(128) NOT NULL PRIMARY KEY,
		resource_id  VARCHAR(64)  NOT NULL,
		requester_id VARCHAR(128) NOT NULL,
		unit_count   INT          NOT NULL,
		status       VARCHAR(16)  NOT NULL,
		created_at   DATETIME(6)  NOT NULL,
		INDEX idx_bookings_resource (resource_id, status)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS outbox (
		id            BIGINT AUTO_INCREMENT PRIMARY KEY,
		message_id    VARCHAR(64)  NOT NULL UNIQUE,
		topic         VARCHAR(255) NOT NULL,
		aggregate_key VARCHAR(128) NOT NULL,
		payload       JSON         NOT NULL,
		attempts      INT          NOT NULL DEFAULT 0,
		last_error    TEXT         NULL,
		claimed_until DATETIME(6)  NULL,
		sent_at       DATETIME(6)  NULL,
		created_at    DATETIME(6)  NOT NULL,
		INDEX idx_outbox_pending (sent_at, claimed_until)
	) ENGINE=InnoDB`,
}

var notificationSchema = []string{
	`CREATE TABLE IF NOT EXISTS notifications (
		message_id   VARCHAR(64)  NOT NULL PRIMARY KEY,
		booking_key  VARCHAR(128) NOT NULL,
		requester_id VARCHAR(128) NOT NULL,
		resource_id  VARCHAR(64)  NOT NULL,
		message      TEXT         NOT NULL,
		created_at   DATETIME(6)  NOT NULL,
		INDEX idx_notifications_created (created_at)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS dead_letters (
		id             BIGINT AUTO_INCREMENT PRIMARY KEY,
		original_topic VARCHAR(255) NOT NULL,
		raw_payload    MEDIUMTEXT   NOT NULL,
		failure_reason TEXT         NOT NULL,
		failed_at      DATETIME(6)  NOT NULL
	) ENGINE=InnoDB`,
}

func EnsureInventorySchema(ctx context.Context, db *sql.DB) error {
	return applySchema(ctx, db, inventorySchema)
}

func EnsureBookingSchema(ctx context.Context, db *sql.DB) error {
	return applySchema(ctx, db, bookingSchema)
}

func EnsureNotificationSchema(ctx context.Context, db *sql.DB) error {
	return applySchema(ctx, db, notificationSchema)
}

func applySchema(ctx context.Context, db *sql.DB, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
