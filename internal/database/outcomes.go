// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/stallcast/internal/models"
)

// SaveRecommendations records the recommendations issued for an appearance. Rows
// are replaced only while the appearance date has not passed; afterwards they are
// immutable and the call is a no-op.
func (db *DB) SaveRecommendations(ctx context.Context, appearanceID string, modelVersion int64, recs []models.Recommendation) (err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer db.observe("UPSERT", "recommendations", time.Now(), &err)

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var date time.Time
	if err = tx.QueryRowContext(ctx, `SELECT sale_date FROM appearances WHERE id = ?`, appearanceID).Scan(&date); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("appearance %s: %w", appearanceID, models.ErrNotFound)
		}
		return fmt.Errorf("failed to load appearance: %w", err)
	}
	if models.Day(date).Before(models.Day(time.Now())) {
		return tx.Rollback()
	}

	now := time.Now().UTC()
	for i := range recs {
		r := &recs[i]
		factors, mErr := json.Marshal(r.Factors)
		if mErr != nil {
			err = fmt.Errorf("failed to encode factors: %w", mErr)
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO recommendations (appearance_id, product_id, model_version, raw_estimate,
				normalized_quantity, confidence, path, factors_json, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (appearance_id, product_id) DO UPDATE SET
				model_version = excluded.model_version,
				raw_estimate = excluded.raw_estimate,
				normalized_quantity = excluded.normalized_quantity,
				confidence = excluded.confidence,
				path = excluded.path,
				factors_json = excluded.factors_json,
				created_at = excluded.created_at`,
			appearanceID, r.ProductID, modelVersion, r.RawEstimate, r.NormalizedQuantity,
			r.Confidence, r.Path, string(factors), now)
		if err != nil {
			return fmt.Errorf("failed to save recommendation for product %s: %w", r.ProductID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit recommendations: %w", err)
	}
	return nil
}

// RecommendedQuantity returns the normalized quantity issued for the pair, or
// models.ErrNotFound when no recommendation was recorded.
func (db *DB) RecommendedQuantity(ctx context.Context, appearanceID, productID string) (_ int, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer db.observe("SELECT", "recommendations", time.Now(), &err)

	var qty int
	err = db.conn.QueryRowContext(ctx,
		`SELECT normalized_quantity FROM recommendations WHERE appearance_id = ? AND product_id = ?`,
		appearanceID, productID).Scan(&qty)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, models.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load recommendation: %w", err)
	}
	return qty, nil
}

// InsertFeedback appends a feedback record. The (appearance, product) primary key
// makes a second insert fail with models.ErrConflict.
func (db *DB) InsertFeedback(ctx context.Context, f *models.Feedback) (err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer db.observe("INSERT", "feedback", time.Now(), &err)

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO feedback (id, appearance_id, product_id, seller_id, venue_id, sale_date,
			recommended, actual, variance, accurate, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.AppearanceID, f.ProductID, f.SellerID, f.VenueID, models.Day(f.Date),
		f.Recommended, f.Actual, f.Variance, f.Accurate, f.SubmittedAt)
	switch {
	case isConstraintViolation(err):
		return fmt.Errorf("feedback for appearance %s product %s: %w", f.AppearanceID, f.ProductID, models.ErrConflict)
	case isForeignKeyViolation(err):
		return fmt.Errorf("feedback references unknown appearance or product: %w", models.ErrNotFound)
	case err != nil:
		return fmt.Errorf("failed to insert feedback: %w", err)
	}
	return nil
}

// GetFeedback returns the feedback for a pair or models.ErrNotFound.
func (db *DB) GetFeedback(ctx context.Context, appearanceID, productID string) (_ *models.Feedback, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer db.observe("SELECT", "feedback", time.Now(), &err)

	rows, err := db.conn.QueryContext(ctx,
		feedbackColumns+` FROM feedback WHERE appearance_id = ? AND product_id = ?`, appearanceID, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback: %w", err)
	}
	defer rows.Close()
	list, err := scanFeedback(rows)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, models.ErrNotFound
	}
	return &list[0], nil
}

// ListFeedbackSince returns feedback for market days on or after from.
func (db *DB) ListFeedbackSince(ctx context.Context, from time.Time) (_ []models.Feedback, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer db.observe("SELECT", "feedback", time.Now(), &err)

	rows, err := db.conn.QueryContext(ctx,
		feedbackColumns+` FROM feedback WHERE sale_date >= ? ORDER BY sale_date, appearance_id, product_id`,
		models.Day(from))
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback: %w", err)
	}
	defer rows.Close()
	return scanFeedback(rows)
}

const feedbackColumns = `SELECT id, appearance_id, product_id, seller_id, venue_id, sale_date,
	recommended, actual, variance, accurate, submitted_at`

func scanFeedback(rows *sql.Rows) ([]models.Feedback, error) {
	var out []models.Feedback
	for rows.Next() {
		var f models.Feedback
		if err := rows.Scan(&f.ID, &f.AppearanceID, &f.ProductID, &f.SellerID, &f.VenueID, &f.Date,
			&f.Recommended, &f.Actual, &f.Variance, &f.Accurate, &f.SubmittedAt); err != nil {
			return nil, fmt.Errorf("failed to scan feedback: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
