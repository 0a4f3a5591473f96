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

// UpsertVenue inserts a venue or updates its name and coordinates.
func (db *DB) UpsertVenue(ctx context.Context, v *models.Venue) (err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer db.observe("UPSERT", "venues", time.Now(), &err)

	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO venues (id, name, latitude, longitude, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			latitude = excluded.latitude,
			longitude = excluded.longitude`,
		v.ID, v.Name, v.Latitude, v.Longitude, v.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert venue %s: %w", v.ID, err)
	}
	return nil
}

// GetVenue returns the venue or models.ErrNotFound.
func (db *DB) GetVenue(ctx context.Context, id string) (_ *models.Venue, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer db.observe("SELECT", "venues", time.Now(), &err)

	var v models.Venue
	err = db.conn.QueryRowContext(ctx,
		`SELECT id, name, latitude, longitude, created_at FROM venues WHERE id = ?`, id).
		Scan(&v.ID, &v.Name, &v.Latitude, &v.Longitude, &v.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("venue %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get venue %s: %w", id, err)
	}
	return &v, nil
}

// VenueHistory summarizes the seller's visits to a venue strictly before the given
// date. A visit is a day with recorded sales or a completed appearance.
func (db *DB) VenueHistory(ctx context.Context, sellerID, venueID string, before time.Time) (_ *models.VenueProfile, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer db.observe("SELECT", "appearances", time.Now(), &err)

	venue, err := db.GetVenue(ctx, venueID)
	if err != nil {
		return nil, err
	}

	var (
		count       int
		first, last sql.NullTime
	)
	err = db.conn.QueryRowContext(ctx, `
		WITH visit_days AS (
			SELECT CAST(sold_at AS DATE) AS d FROM transactions
			WHERE seller_id = ? AND venue_id = ? AND sold_at < ?
			UNION
			SELECT sale_date AS d FROM appearances
			WHERE seller_id = ? AND venue_id = ? AND status = 'completed' AND sale_date < ?
		)
		SELECT COUNT(*), MIN(d), MAX(d) FROM visit_days`,
		sellerID, venueID, before, sellerID, venueID, before).
		Scan(&count, &first, &last)
	if err != nil {
		return nil, fmt.Errorf("failed to load venue history: %w", err)
	}

	profile := &models.VenueProfile{
		VenueID:         venueID,
		SellerID:        sellerID,
		Latitude:        venue.Latitude,
		Longitude:       venue.Longitude,
		AppearanceCount: count,
	}
	if first.Valid {
		f := models.Day(first.Time)
		profile.FirstSeen = &f
	}
	if last.Valid {
		l := models.Day(last.Time)
		profile.LastSeen = &l
	}
	return profile, nil
}

// UpsertProduct inserts or updates a product.
func (db *DB) UpsertProduct(ctx context.Context, p *models.Product) (err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer db.observe("UPSERT", "products", time.Now(), &err)

	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO products (id, seller_id, name, category, unit, granularity,
			season_start_month, season_end_month, active, created_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			unit = excluded.unit,
			granularity = excluded.granularity,
			season_start_month = excluded.season_start_month,
			season_end_month = excluded.season_end_month,
			active = excluded.active`,
		p.ID, p.SellerID, p.Name, string(p.Category), p.Unit, p.Granularity,
		p.SeasonStartMonth, p.SeasonEndMonth, p.Active, p.CreatedAt, p.DeletedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert product %s: %w", p.ID, err)
	}
	return nil
}

// SoftDeleteProduct deactivates a product and stamps deleted_at. Rows are never
// removed because transactions and feedback reference them.
func (db *DB) SoftDeleteProduct(ctx context.Context, sellerID, productID string) (err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer db.observe("UPDATE", "products", time.Now(), &err)

	res, err := db.conn.ExecContext(ctx, `
		UPDATE products SET active = FALSE, deleted_at = ?
		WHERE id = ? AND seller_id = ? AND deleted_at IS NULL`,
		time.Now().UTC(), productID, sellerID)
	if err != nil {
		return fmt.Errorf("failed to delete product %s: %w", productID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("product %s: %w", productID, models.ErrNotFound)
	}
	return nil
}

// ListProducts returns the seller's products. With activeOnly, deleted and inactive
// products are skipped.
func (db *DB) ListProducts(ctx context.Context, sellerID string, activeOnly bool) (_ []models.Product, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer db.observe("SELECT", "products", time.Now(), &err)

	query := productColumns + ` FROM products WHERE seller_id = ?`
	if activeOnly {
		query += ` AND active AND deleted_at IS NULL`
	}
	query += ` ORDER BY name, id`

	rows, err := db.conn.QueryContext(ctx, query, sellerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()
	return scanProducts(rows)
}

// ListAllProducts returns every product, including deleted ones, for training.
func (db *DB) ListAllProducts(ctx context.Context) (_ []models.Product, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer db.observe("SELECT", "products", time.Now(), &err)

	rows, err := db.conn.QueryContext(ctx, productColumns+` FROM products ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()
	return scanProducts(rows)
}

// GetProduct returns a product or models.ErrNotFound.
func (db *DB) GetProduct(ctx context.Context, id string) (_ *models.Product, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer db.observe("SELECT", "products", time.Now(), &err)

	rows, err := db.conn.QueryContext(ctx, productColumns+` FROM products WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query product: %w", err)
	}
	defer rows.Close()
	products, err := scanProducts(rows)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, fmt.Errorf("product %s: %w", id, models.ErrNotFound)
	}
	return &products[0], nil
}

const productColumns = `SELECT id, seller_id, name, category, unit, granularity,
	season_start_month, season_end_month, active, created_at, deleted_at`

func scanProducts(rows *sql.Rows) ([]models.Product, error) {
	var out []models.Product
	for rows.Next() {
		var (
			p        models.Product
			category string
			deleted  sql.NullTime
		)
		if err := rows.Scan(&p.ID, &p.SellerID, &p.Name, &category, &p.Unit, &p.Granularity,
			&p.SeasonStartMonth, &p.SeasonEndMonth, &p.Active, &p.CreatedAt, &deleted); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		p.Category = models.ProductCategory(category)
		if deleted.Valid {
			t := deleted.Time
			p.DeletedAt = &t
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
