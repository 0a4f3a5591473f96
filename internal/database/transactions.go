// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/stallcast/internal/models"
)

// InsertTransactions writes a batch of sales in a single transaction. Duplicate IDs
// are skipped so re-syncing the same batch is harmless.
func (db *DB) InsertTransactions(ctx context.Context, txns []models.Transaction) (inserted int, err error) {
	if len(txns) == 0 {
		return 0, nil
	}
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer db.observe("INSERT", "transactions", time.Now(), &err)

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transactions (id, seller_id, product_id, venue_id, quantity, sold_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer closeQuietly(stmt)

	for i := range txns {
		t := &txns[i]
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		res, execErr := stmt.ExecContext(ctx, t.ID, t.SellerID, t.ProductID, t.VenueID, t.Quantity, t.SoldAt.UTC())
		if execErr != nil {
			if isForeignKeyViolation(execErr) {
				return 0, fmt.Errorf("transaction %s references unknown product or venue: %w", t.ID, models.ErrInvalidInput)
			}
			return 0, fmt.Errorf("failed to insert transaction %s: %w", t.ID, execErr)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transactions: %w", err)
	}
	return inserted, nil
}

// QueryTransactions returns sales matching q ordered by time. A zero To means "now".
func (db *DB) QueryTransactions(ctx context.Context, q models.TransactionQuery) (_ []models.Transaction, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer db.observe("SELECT", "transactions", time.Now(), &err)

	var (
		where []string
		args  []any
	)
	if q.SellerID != "" {
		where = append(where, "seller_id = ?")
		args = append(args, q.SellerID)
	}
	if q.ProductID != "" {
		where = append(where, "product_id = ?")
		args = append(args, q.ProductID)
	}
	if q.VenueID != "" {
		where = append(where, "venue_id = ?")
		args = append(args, q.VenueID)
	}
	if !q.From.IsZero() {
		where = append(where, "sold_at >= ?")
		args = append(args, q.From.UTC())
	}
	to := q.To
	if to.IsZero() {
		to = time.Now().UTC()
	}
	where = append(where, "sold_at < ?")
	args = append(args, to.UTC())

	query := `SELECT id, seller_id, product_id, venue_id, quantity, sold_at FROM transactions WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY sold_at, id`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.SellerID, &t.ProductID, &t.VenueID, &t.Quantity, &t.SoldAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
