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

	"github.com/tomtom215/stallcast/internal/models"
)

// NextModelVersion returns one past the highest stored version.
func (db *DB) NextModelVersion(ctx context.Context) (_ int64, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer db.observe("SELECT", "trained_models", time.Now(), &err)

	var v int64
	if err = db.conn.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM trained_models`).Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to read model version: %w", err)
	}
	return v + 1, nil
}

// SaveModel stores a model version. New versions are stored inactive.
func (db *DB) SaveModel(ctx context.Context, m *models.TrainedModel) (err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer db.observe("INSERT", "trained_models", time.Now(), &err)

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO trained_models (version, active, trained_at, training_cutoff, training_rows,
			holdout_mae, checksum, artifact)
		VALUES (?, FALSE, ?, ?, ?, ?, ?, ?)`,
		m.Version, m.TrainedAt, m.TrainingCutoff, m.TrainingRows, m.HoldoutMAE, m.Checksum, m.Artifact)
	if isConstraintViolation(err) {
		return fmt.Errorf("model version %d: %w", m.Version, models.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to save model %d: %w", m.Version, err)
	}
	return nil
}

// ActivateModel marks version as the only active model.
func (db *DB) ActivateModel(ctx context.Context, version int64) (err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer db.observe("UPDATE", "trained_models", time.Now(), &err)

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var exists bool
	if err = tx.QueryRowContext(ctx, `SELECT COUNT(*) > 0 FROM trained_models WHERE version = ?`, version).Scan(&exists); err != nil {
		return fmt.Errorf("failed to look up model %d: %w", version, err)
	}
	if !exists {
		err = fmt.Errorf("model version %d: %w", version, models.ErrNotFound)
		return err
	}
	if _, err = tx.ExecContext(ctx, `UPDATE trained_models SET active = (version = ?)`, version); err != nil {
		return fmt.Errorf("failed to activate model %d: %w", version, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit model activation: %w", err)
	}
	return nil
}

// ListModels returns model metadata, newest first, without artifacts.
func (db *DB) ListModels(ctx context.Context) (_ []models.TrainedModel, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer db.observe("SELECT", "trained_models", time.Now(), &err)

	rows, err := db.conn.QueryContext(ctx, `
		SELECT version, active, trained_at, training_cutoff, training_rows, holdout_mae, checksum
		FROM trained_models ORDER BY version DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query models: %w", err)
	}
	defer rows.Close()

	var out []models.TrainedModel
	for rows.Next() {
		var m models.TrainedModel
		if err := rows.Scan(&m.Version, &m.Active, &m.TrainedAt, &m.TrainingCutoff,
			&m.TrainingRows, &m.HoldoutMAE, &m.Checksum); err != nil {
			return nil, fmt.Errorf("failed to scan model: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetModel returns a model version including its artifact.
func (db *DB) GetModel(ctx context.Context, version int64) (*models.TrainedModel, error) {
	return db.getModel(ctx, `WHERE version = ?`, version)
}

// ActiveModel returns the active model or models.ErrNotFound.
func (db *DB) ActiveModel(ctx context.Context) (*models.TrainedModel, error) {
	return db.getModel(ctx, `WHERE active`)
}

func (db *DB) getModel(ctx context.Context, where string, args ...any) (_ *models.TrainedModel, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer db.observe("SELECT", "trained_models", time.Now(), &err)

	var m models.TrainedModel
	err = db.conn.QueryRowContext(ctx, `
		SELECT version, active, trained_at, training_cutoff, training_rows, holdout_mae, checksum, artifact
		FROM trained_models `+where+` LIMIT 1`, args...).
		Scan(&m.Version, &m.Active, &m.TrainedAt, &m.TrainingCutoff, &m.TrainingRows,
			&m.HoldoutMAE, &m.Checksum, &m.Artifact)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}
	return &m, nil
}

// PruneModels deletes inactive versions beyond the newest keep versions and returns
// the versions removed. The active version is never pruned.
func (db *DB) PruneModels(ctx context.Context, keep int) (_ []int64, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer db.observe("DELETE", "trained_models", time.Now(), &err)

	rows, err := db.conn.QueryContext(ctx, `
		SELECT version FROM trained_models
		WHERE NOT active
		ORDER BY version DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to select models to prune: %w", err)
	}
	var (
		victims []int64
		seen    int
	)
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			closeQuietly(rows)
			return nil, fmt.Errorf("failed to scan model version: %w", err)
		}
		seen++
		if seen > keep {
			victims = append(victims, v)
		}
	}
	closeQuietly(rows)

	for _, v := range victims {
		if _, err = db.conn.ExecContext(ctx, `DELETE FROM trained_models WHERE version = ? AND NOT active`, v); err != nil {
			return nil, fmt.Errorf("failed to prune model %d: %w", v, err)
		}
	}
	return victims, nil
}

// InsertAlert records a regression alert.
func (db *DB) InsertAlert(ctx context.Context, a *models.RegressionAlert) (err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer db.observe("INSERT", "regression_alerts", time.Now(), &err)

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO regression_alerts (id, candidate_version, active_version, candidate_error,
			active_error, tolerance, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.CandidateVersion, a.ActiveVersion, a.CandidateError, a.ActiveError,
		a.Tolerance, a.Message, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert regression alert: %w", err)
	}
	return nil
}

// ListAlerts returns the most recent regression alerts.
func (db *DB) ListAlerts(ctx context.Context, limit int) (_ []models.RegressionAlert, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer db.observe("SELECT", "regression_alerts", time.Now(), &err)

	if limit <= 0 {
		limit = 50
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, candidate_version, active_version, candidate_error, active_error, tolerance, message, created_at
		FROM regression_alerts ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var out []models.RegressionAlert
	for rows.Next() {
		var a models.RegressionAlert
		if err := rows.Scan(&a.ID, &a.CandidateVersion, &a.ActiveVersion, &a.CandidateError,
			&a.ActiveError, &a.Tolerance, &a.Message, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
