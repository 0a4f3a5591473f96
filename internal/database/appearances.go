// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/stallcast/internal/models"
)

// CreateAppearance schedules a seller at a venue on a date. A second appearance for
// the same (seller, venue, date) returns models.ErrConflict; an unknown venue returns
// models.ErrNotFound.
func (db *DB) CreateAppearance(ctx context.Context, a *models.Appearance) (err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer db.observe("INSERT", "appearances", time.Now(), &err)

	now := time.Now().UTC()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = models.AppearancePlanned
	}
	a.Date = models.Day(a.Date)
	a.CreatedAt, a.UpdatedAt = now, now

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO appearances (id, seller_id, venue_id, sale_date, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.SellerID, a.VenueID, a.Date, string(a.Status), a.CreatedAt, a.UpdatedAt)
	switch {
	case isConstraintViolation(err):
		return fmt.Errorf("appearance for venue %s on %s: %w", a.VenueID, a.Date.Format(models.DateLayout), models.ErrConflict)
	case isForeignKeyViolation(err):
		return fmt.Errorf("venue %s: %w", a.VenueID, models.ErrNotFound)
	case err != nil:
		return fmt.Errorf("failed to insert appearance: %w", err)
	}
	return nil
}

// GetAppearance returns an appearance or models.ErrNotFound.
func (db *DB) GetAppearance(ctx context.Context, id string) (_ *models.Appearance, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer db.observe("SELECT", "appearances", time.Now(), &err)

	rows, err := db.conn.QueryContext(ctx, appearanceColumns+` FROM appearances WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query appearance: %w", err)
	}
	defer rows.Close()
	list, err := scanAppearances(rows)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("appearance %s: %w", id, models.ErrNotFound)
	}
	return &list[0], nil
}

// FindAppearance looks an appearance up by its natural key.
func (db *DB) FindAppearance(ctx context.Context, sellerID, venueID string, date time.Time) (_ *models.Appearance, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer db.observe("SELECT", "appearances", time.Now(), &err)

	rows, err := db.conn.QueryContext(ctx,
		appearanceColumns+` FROM appearances WHERE seller_id = ? AND venue_id = ? AND sale_date = ?`,
		sellerID, venueID, models.Day(date))
	if err != nil {
		return nil, fmt.Errorf("failed to query appearance: %w", err)
	}
	defer rows.Close()
	list, err := scanAppearances(rows)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, models.ErrNotFound
	}
	return &list[0], nil
}

// ListAppearances returns the seller's appearances between from and to (inclusive).
func (db *DB) ListAppearances(ctx context.Context, sellerID string, from, to time.Time) (_ []models.Appearance, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer db.observe("SELECT", "appearances", time.Now(), &err)

	rows, err := db.conn.QueryContext(ctx,
		appearanceColumns+` FROM appearances WHERE seller_id = ? AND sale_date BETWEEN ? AND ? ORDER BY sale_date`,
		sellerID, models.Day(from), models.Day(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query appearances: %w", err)
	}
	defer rows.Close()
	return scanAppearances(rows)
}

// ListPlannedAppearances returns planned appearances of every seller in [from, to].
func (db *DB) ListPlannedAppearances(ctx context.Context, from, to time.Time) (_ []models.Appearance, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer db.observe("SELECT", "appearances", time.Now(), &err)

	rows, err := db.conn.QueryContext(ctx,
		appearanceColumns+` FROM appearances WHERE status = 'planned' AND sale_date BETWEEN ? AND ? ORDER BY sale_date`,
		models.Day(from), models.Day(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query planned appearances: %w", err)
	}
	defer rows.Close()
	return scanAppearances(rows)
}

// ListAppearancesSince returns all appearances on or after from, for training.
func (db *DB) ListAppearancesSince(ctx context.Context, from time.Time) (_ []models.Appearance, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer db.observe("SELECT", "appearances", time.Now(), &err)

	rows, err := db.conn.QueryContext(ctx,
		appearanceColumns+` FROM appearances WHERE sale_date >= ? ORDER BY sale_date`, models.Day(from))
	if err != nil {
		return nil, fmt.Errorf("failed to query appearances: %w", err)
	}
	defer rows.Close()
	return scanAppearances(rows)
}

// UpdateAppearanceStatus moves an appearance to a new status.
func (db *DB) UpdateAppearanceStatus(ctx context.Context, id string, status models.AppearanceStatus) (err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer db.observe("UPDATE", "appearances", time.Now(), &err)

	res, err := db.conn.ExecContext(ctx,
		`UPDATE appearances SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update appearance %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("appearance %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// SetAppearanceSignals records the weather and events resolved for an appearance.
// A nil weather leaves the stored weather untouched.
func (db *DB) SetAppearanceSignals(ctx context.Context, id string, weather *models.WeatherSignal, events []models.EventSignal) (err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer db.observe("UPDATE", "appearances", time.Now(), &err)

	eventsJSON, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("failed to encode events: %w", err)
	}

	if weather == nil {
		_, err = db.conn.ExecContext(ctx,
			`UPDATE appearances SET events_json = ?, updated_at = ? WHERE id = ?`,
			string(eventsJSON), time.Now().UTC(), id)
	} else {
		_, err = db.conn.ExecContext(ctx, `
			UPDATE appearances SET
				weather_temp_c = ?, weather_precip = ?, weather_condition = ?,
				weather_source = ?, weather_fetched_at = ?, events_json = ?, updated_at = ?
			WHERE id = ?`,
			weather.TemperatureC, weather.PrecipitationProb, string(weather.Condition),
			weather.Source, weather.FetchedAt, string(eventsJSON), time.Now().UTC(), id)
	}
	if err != nil {
		return fmt.Errorf("failed to store signals for appearance %s: %w", id, err)
	}
	return nil
}

// SeasonalWeather averages the live weather recorded at a venue on the same time of
// year (within 15 days of the day-of-year) in earlier years. It returns
// models.ErrNotFound when there is nothing to average.
func (db *DB) SeasonalWeather(ctx context.Context, venueID string, date time.Time) (_ *models.WeatherSignal, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer db.observe("SELECT", "appearances", time.Now(), &err)

	day := models.Day(date)
	doy := day.YearDay()

	var (
		n         int
		temp, pre sql.NullFloat64
		condition sql.NullString
	)
	err = db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*), AVG(weather_temp_c), AVG(weather_precip), mode(weather_condition)
		FROM appearances
		WHERE venue_id = ?
			AND weather_source IN ('live', 'cached')
			AND sale_date < ?
			AND year(sale_date) < ?
			AND (abs(dayofyear(sale_date) - ?) <= 15 OR abs(dayofyear(sale_date) - ?) >= 351)`,
		venueID, day, day.Year(), doy, doy).Scan(&n, &temp, &pre, &condition)
	if err != nil {
		return nil, fmt.Errorf("failed to compute seasonal weather: %w", err)
	}
	if n == 0 || !temp.Valid {
		return nil, fmt.Errorf("seasonal weather for venue %s: %w", venueID, models.ErrNotFound)
	}
	return &models.WeatherSignal{
		TemperatureC:      temp.Float64,
		PrecipitationProb: pre.Float64,
		Condition:         models.NormalizeCondition(condition.String),
		Source:            "seasonal",
	}, nil
}

const appearanceColumns = `SELECT id, seller_id, venue_id, sale_date, status,
	weather_temp_c, weather_precip, weather_condition, weather_source, weather_fetched_at,
	events_json, created_at, updated_at`

func scanAppearances(rows *sql.Rows) ([]models.Appearance, error) {
	var out []models.Appearance
	for rows.Next() {
		var (
			a          models.Appearance
			status     string
			temp, pre  sql.NullFloat64
			cond, src  sql.NullString
			fetched    sql.NullTime
			eventsJSON sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.SellerID, &a.VenueID, &a.Date, &status,
			&temp, &pre, &cond, &src, &fetched, &eventsJSON, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan appearance: %w", err)
		}
		a.Status = models.AppearanceStatus(status)
		a.Date = models.Day(a.Date)
		if cond.Valid {
			a.Weather = &models.WeatherSignal{
				TemperatureC:      temp.Float64,
				PrecipitationProb: pre.Float64,
				Condition:         models.WeatherCondition(cond.String),
				Source:            src.String,
				FetchedAt:         fetched.Time,
			}
		}
		if eventsJSON.Valid && eventsJSON.String != "" {
			if err := json.Unmarshal([]byte(eventsJSON.String), &a.Events); err != nil {
				return nil, fmt.Errorf("failed to decode events for appearance %s: %w", a.ID, err)
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
