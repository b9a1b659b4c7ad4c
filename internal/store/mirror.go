package store

import (
	"context"
	"database/sql"
	"fmt"

	"bairro/internal/models"
)

// The businesses table mirrors the last known remote state plus any
// offline writes, so the directory stays readable with no connectivity.

func (d *DB) UpsertBusiness(ctx context.Context, b *models.Business) error {
	query := `INSERT INTO businesses (id, name, category, subcategory, description, address, phone, latitude, longitude, rating, image, is_open, opening_hours, sync_status, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
              ON CONFLICT(id) DO UPDATE SET
                name = excluded.name,
                category = excluded.category,
                subcategory = excluded.subcategory,
                description = excluded.description,
                address = excluded.address,
                phone = excluded.phone,
                latitude = excluded.latitude,
                longitude = excluded.longitude,
                rating = excluded.rating,
                image = excluded.image,
                is_open = excluded.is_open,
                opening_hours = excluded.opening_hours,
                sync_status = excluded.sync_status,
                updated_at = CURRENT_TIMESTAMP`
	_, err := d.db.ExecContext(ctx, query,
		b.ID, b.Name, b.Category, b.Subcategory, b.Description, b.Address, b.Phone,
		b.Latitude, b.Longitude, b.Rating, b.Image, b.IsOpen, b.OpeningHours, b.SyncStatus,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert business %s: %w", b.ID, err)
	}
	return nil
}

func (d *DB) DeleteBusinessLocal(ctx context.Context, id string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM businesses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete local business %s: %w", id, err)
	}
	return nil
}

// ReplaceConfirmed swaps the confirmed portion of the mirror for a fresh
// remote snapshot. Rows still pending sync are preserved.
func (d *DB) ReplaceConfirmed(ctx context.Context, businesses []models.Business) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin mirror replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM businesses WHERE sync_status != ?`, models.SyncStatusPendingSync,
	); err != nil {
		return fmt.Errorf("failed to clear confirmed businesses: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO businesses (id, name, category, subcategory, description, address, phone, latitude, longitude, rating, image, is_open, opening_hours, sync_status, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '', CURRENT_TIMESTAMP)`)
	if err != nil {
		return fmt.Errorf("failed to prepare mirror insert: %w", err)
	}
	defer stmt.Close()

	for i := range businesses {
		b := &businesses[i]
		if _, err := stmt.ExecContext(ctx,
			b.ID, b.Name, b.Category, b.Subcategory, b.Description, b.Address, b.Phone,
			b.Latitude, b.Longitude, b.Rating, b.Image, b.IsOpen, b.OpeningHours,
		); err != nil {
			return fmt.Errorf("failed to insert business %s: %w", b.ID, err)
		}
	}

	return tx.Commit()
}

func (d *DB) LocalBusinesses(ctx context.Context) ([]models.Business, error) {
	return d.queryBusinesses(ctx,
		`SELECT id, name, category, subcategory, description, address, phone, latitude, longitude, rating, image, is_open, opening_hours, sync_status
         FROM businesses ORDER BY name ASC`)
}

// PendingLocalBusinesses returns only offline writes awaiting confirmation.
func (d *DB) PendingLocalBusinesses(ctx context.Context) ([]models.Business, error) {
	return d.queryBusinesses(ctx,
		`SELECT id, name, category, subcategory, description, address, phone, latitude, longitude, rating, image, is_open, opening_hours, sync_status
         FROM businesses WHERE sync_status = ? ORDER BY name ASC`, models.SyncStatusPendingSync)
}

func (d *DB) LocalBusinessByID(ctx context.Context, id string) (*models.Business, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT id, name, category, subcategory, description, address, phone, latitude, longitude, rating, image, is_open, opening_hours, sync_status
         FROM businesses WHERE id = ?`, id)

	var b models.Business
	err := row.Scan(&b.ID, &b.Name, &b.Category, &b.Subcategory, &b.Description, &b.Address, &b.Phone,
		&b.Latitude, &b.Longitude, &b.Rating, &b.Image, &b.IsOpen, &b.OpeningHours, &b.SyncStatus)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get local business %s: %w", id, err)
	}
	return &b, nil
}

func (d *DB) queryBusinesses(ctx context.Context, query string, args ...interface{}) ([]models.Business, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query businesses: %w", err)
	}
	defer rows.Close()

	var businesses []models.Business
	for rows.Next() {
		var b models.Business
		err := rows.Scan(&b.ID, &b.Name, &b.Category, &b.Subcategory, &b.Description, &b.Address, &b.Phone,
			&b.Latitude, &b.Longitude, &b.Rating, &b.Image, &b.IsOpen, &b.OpeningHours, &b.SyncStatus)
		if err != nil {
			return nil, fmt.Errorf("failed to scan business: %w", err)
		}
		businesses = append(businesses, b)
	}
	return businesses, rows.Err()
}
