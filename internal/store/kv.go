package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"
)

// Durable key/value slots for session and sync bookkeeping.
const (
	KeyAuthToken        = "auth_token"
	KeyAuthUser         = "auth_user"
	KeyAuthRefreshToken = "auth_refresh_token"
	KeyAuthLoginTime    = "auth_login_time"
	KeyLastSyncTime     = "last_sync_time"
)

func (d *DB) GetValue(ctx context.Context, key string) (string, error) {
	var value string
	err := d.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read kv %s: %w", key, err)
	}
	return value, nil
}

func (d *DB) SetValue(ctx context.Context, key, value string) error {
	query := `INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
              ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`
	if _, err := d.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to write kv %s: %w", key, err)
	}
	return nil
}

func (d *DB) DeleteValues(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if _, err := d.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
			return fmt.Errorf("failed to delete kv %s: %w", key, err)
		}
	}
	return nil
}

func (d *DB) SetLastSyncTime(ctx context.Context, t time.Time) error {
	return d.SetValue(ctx, KeyLastSyncTime, strconv.FormatInt(t.UnixMilli(), 10))
}

func (d *DB) LastSyncTime(ctx context.Context) (*time.Time, error) {
	raw, err := d.GetValue(ctx, KeyLastSyncTime)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid last sync timestamp %q: %w", raw, err)
	}
	t := time.UnixMilli(ms)
	return &t, nil
}
