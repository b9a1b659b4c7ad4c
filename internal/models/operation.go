package models

import "time"

const (
	OpCreateBusiness = "create_business"
	OpUpdateBusiness = "update_business"
	OpDeleteBusiness = "delete_business"
)

const (
	OpStatusPending = "pending"
	OpStatusFailed  = "failed"
)

// PendingOperation is a durably queued mutation awaiting remote confirmation.
// It is persisted before any remote attempt, so replay is at-least-once.
type PendingOperation struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	BusinessID  string     `json:"business_id"`
	Payload     string     `json:"payload"` // JSON-encoded business fields, empty for deletes
	Status      string     `json:"status"`
	Attempts    int        `json:"attempts"`
	LastError   *string    `json:"last_error"`
	EnqueuedAt  time.Time  `json:"enqueued_at"`
	ProcessedAt *time.Time `json:"processed_at"`
}

// SyncStatus is a derived snapshot, never a source of truth.
type SyncStatus struct {
	IsOnline       bool       `json:"is_online"`
	SyncInProgress bool       `json:"sync_in_progress"`
	PendingCount   int        `json:"pending_count"`
	LastSyncTime   *time.Time `json:"last_sync_time"`
}
