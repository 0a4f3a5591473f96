// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

package database

import (
	"context"
	"fmt"
	"time"
)

func (db *DB) createTables() error {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	for _, q := range schemaQueries {
		if _, err := db.conn.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("failed to execute schema query: %s: %w", q, err)
		}
	}
	return nil
}

// Tables are ordered so referenced tables exist before the tables that reference them.
var schemaQueries = []string{
	`CREATE TABLE IF NOT EXISTS venues (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		latitude DOUBLE NOT NULL,
		longitude DOUBLE NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		seller_id TEXT NOT NULL,
		name TEXT NOT NULL,
		category TEXT NOT NULL,
		unit TEXT NOT NULL,
		granularity INTEGER NOT NULL DEFAULT 0,
		season_start_month INTEGER NOT NULL DEFAULT 0,
		season_end_month INTEGER NOT NULL DEFAULT 0,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP NOT NULL,
		deleted_at TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_products_seller ON products(seller_id)`,

	`CREATE TABLE IF NOT EXISTS appearances (
		id TEXT PRIMARY KEY,
		seller_id TEXT NOT NULL,
		venue_id TEXT NOT NULL REFERENCES venues(id),
		sale_date DATE NOT NULL,
		status TEXT NOT NULL,
		weather_temp_c DOUBLE,
		weather_precip DOUBLE,
		weather_condition TEXT,
		weather_source TEXT,
		weather_fetched_at TIMESTAMP,
		events_json TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE (seller_id, venue_id, sale_date)
	)`,

	`CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		seller_id TEXT NOT NULL,
		product_id TEXT NOT NULL REFERENCES products(id),
		venue_id TEXT NOT NULL REFERENCES venues(id),
		quantity DOUBLE NOT NULL,
		sold_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_seller_time ON transactions(seller_id, sold_at)`,

	`CREATE TABLE IF NOT EXISTS recommendations (
		appearance_id TEXT NOT NULL REFERENCES appearances(id),
		product_id TEXT NOT NULL REFERENCES products(id),
		model_version BIGINT NOT NULL,
		raw_estimate DOUBLE NOT NULL,
		normalized_quantity INTEGER NOT NULL,
		confidence DOUBLE NOT NULL,
		path TEXT NOT NULL,
		factors_json TEXT,
		created_at TIMESTAMP NOT NULL,
		PRIMARY KEY (appearance_id, product_id)
	)`,

	`CREATE TABLE IF NOT EXISTS feedback (
		id TEXT NOT NULL UNIQUE,
		appearance_id TEXT NOT NULL REFERENCES appearances(id),
		product_id TEXT NOT NULL REFERENCES products(id),
		seller_id TEXT NOT NULL,
		venue_id TEXT NOT NULL,
		sale_date DATE NOT NULL,
		recommended INTEGER NOT NULL,
		actual DOUBLE NOT NULL,
		variance DOUBLE NOT NULL,
		accurate BOOLEAN NOT NULL,
		submitted_at TIMESTAMP NOT NULL,
		PRIMARY KEY (appearance_id, product_id)
	)`,

	`CREATE TABLE IF NOT EXISTS trained_models (
		version BIGINT PRIMARY KEY,
		active BOOLEAN NOT NULL DEFAULT FALSE,
		trained_at TIMESTAMP NOT NULL,
		training_cutoff TIMESTAMP NOT NULL,
		training_rows INTEGER NOT NULL,
		holdout_mae DOUBLE NOT NULL,
		checksum TEXT NOT NULL,
		artifact BLOB NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS regression_alerts (
		id TEXT PRIMARY KEY,
		candidate_version BIGINT NOT NULL,
		active_version BIGINT NOT NULL,
		candidate_error DOUBLE NOT NULL,
		active_error DOUBLE NOT NULL,
		tolerance DOUBLE NOT NULL,
		message TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
}
