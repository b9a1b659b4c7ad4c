package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bairro/internal/models"

	"github.com/google/uuid"
)

// Enqueue appends a pending operation. The row is durable before the
// caller makes any remote attempt, so a crash mid-sync can only cause a
// duplicate attempt, never a lost mutation.
func (d *DB) Enqueue(ctx context.Context, op *models.PendingOperation) error {
	if op.ID == "" {
		op.ID = fmt.Sprintf("%s_%d_%s", op.Type, time.Now().UnixMilli(), uuid.NewString()[:8])
	}
	if op.EnqueuedAt.IsZero() {
		op.EnqueuedAt = time.Now()
	}
	if op.Status == "" {
		op.Status = models.OpStatusPending
	}

	query := `INSERT INTO pending_operations (id, op_type, business_id, payload, status, attempts, last_error, created_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := d.db.ExecContext(ctx, query,
		op.ID,
		op.Type,
		op.BusinessID,
		op.Payload,
		op.Status,
		op.Attempts,
		op.LastError,
		op.EnqueuedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue operation: %w", err)
	}
	return nil
}

// ListPending returns pending operations in enqueue (FIFO) order. A row
// whose payload is not valid JSON makes the whole read fail with
// ErrCorruptQueue; the persisted bytes are left untouched for inspection.
func (d *DB) ListPending(ctx context.Context) ([]models.PendingOperation, error) {
	query := `SELECT id, op_type, business_id, payload, status, attempts, last_error, created_at, processed_at
              FROM pending_operations
              WHERE status = ?
              ORDER BY created_at ASC, rowid ASC`
	rows, err := d.db.QueryContext(ctx, query, models.OpStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending operations: %w", err)
	}
	defer rows.Close()

	var ops []models.PendingOperation
	for rows.Next() {
		var op models.PendingOperation
		err := rows.Scan(
			&op.ID, &op.Type, &op.BusinessID, &op.Payload, &op.Status, &op.Attempts, &op.LastError, &op.EnqueuedAt, &op.ProcessedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptQueue, err)
		}
		if op.Payload != "" && !json.Valid([]byte(op.Payload)) {
			return nil, fmt.Errorf("%w: operation %s has invalid payload", ErrCorruptQueue, op.ID)
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptQueue, err)
	}
	return ops, nil
}

// Dequeue removes a confirmed operation by id.
func (d *DB) Dequeue(ctx context.Context, id string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM pending_operations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to dequeue operation %s: %w", id, err)
	}
	return nil
}

// MarkFailed flags an operation as permanently failed. The row is kept,
// out of FIFO order, so the rejection is reported rather than silently lost.
func (d *DB) MarkFailed(ctx context.Context, id, reason string) error {
	now := time.Now()
	query := `UPDATE pending_operations SET status = ?, last_error = ?, processed_at = ? WHERE id = ?`
	_, err := d.db.ExecContext(ctx, query, models.OpStatusFailed, reason, &now, id)
	if err != nil {
		return fmt.Errorf("failed to mark operation %s failed: %w", id, err)
	}
	return nil
}

// RecordAttempt bumps the attempt counter after an unsuccessful replay
// that keeps the operation queued.
func (d *DB) RecordAttempt(ctx context.Context, id, lastError string) error {
	query := `UPDATE pending_operations SET attempts = attempts + 1, last_error = ? WHERE id = ?`
	_, err := d.db.ExecContext(ctx, query, lastError, id)
	if err != nil {
		return fmt.Errorf("failed to record attempt for %s: %w", id, err)
	}
	return nil
}

func (d *DB) PendingCount(ctx context.Context) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pending_operations WHERE status = ?`, models.OpStatusPending,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending operations: %w", err)
	}
	return count, nil
}

// FailedOperations lists permanently failed operations, newest first.
func (d *DB) FailedOperations(ctx context.Context) ([]models.PendingOperation, error) {
	query := `SELECT id, op_type, business_id, payload, status, attempts, last_error, created_at, processed_at
              FROM pending_operations
              WHERE status = ?
              ORDER BY created_at DESC`
	rows, err := d.db.QueryContext(ctx, query, models.OpStatusFailed)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed operations: %w", err)
	}
	defer rows.Close()

	var ops []models.PendingOperation
	for rows.Next() {
		var op models.PendingOperation
		err := rows.Scan(
			&op.ID, &op.Type, &op.BusinessID, &op.Payload, &op.Status, &op.Attempts, &op.LastError, &op.EnqueuedAt, &op.ProcessedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan failed operation: %w", err)
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}
