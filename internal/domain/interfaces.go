package domain

import (
	"context"
	"time"

	"bairro/internal/cache"
	"bairro/internal/models"
)

// OperationQueue is the durable FIFO of unconfirmed mutations.
type OperationQueue interface {
	Enqueue(ctx context.Context, op *models.PendingOperation) error
	ListPending(ctx context.Context) ([]models.PendingOperation, error)
	Dequeue(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, reason string) error
	RecordAttempt(ctx context.Context, id, lastError string) error
	PendingCount(ctx context.Context) (int, error)
	FailedOperations(ctx context.Context) ([]models.PendingOperation, error)
}

// BusinessMirror is the local offline copy of the directory.
type BusinessMirror interface {
	UpsertBusiness(ctx context.Context, b *models.Business) error
	DeleteBusinessLocal(ctx context.Context, id string) error
	ReplaceConfirmed(ctx context.Context, businesses []models.Business) error
	LocalBusinesses(ctx context.Context) ([]models.Business, error)
	PendingLocalBusinesses(ctx context.Context) ([]models.Business, error)
	LocalBusinessByID(ctx context.Context, id string) (*models.Business, error)
}

// SyncBookkeeper records sync-pass timestamps.
type SyncBookkeeper interface {
	SetLastSyncTime(ctx context.Context, t time.Time) error
	LastSyncTime(ctx context.Context) (*time.Time, error)
}

// RemoteAPI is the remote collaborator as the sync and read layers see it.
type RemoteAPI interface {
	CheckConnectivity(ctx context.Context) bool
	Categories(ctx context.Context) ([]models.Category, error)
	Businesses(ctx context.Context, filter models.BusinessFilter) ([]models.Business, error)
	BusinessByID(ctx context.Context, id string) (*models.Business, error)
	BusinessesByCategory(ctx context.Context, category string) ([]models.Business, error)
	BusinessesBySubcategory(ctx context.Context, subcategory string) ([]models.Business, error)
	SearchBusinesses(ctx context.Context, q string) ([]models.Business, error)
	CreateBusiness(ctx context.Context, b *models.Business) (*models.Business, error)
	UpdateBusiness(ctx context.Context, id string, b *models.Business) (*models.Business, error)
	DeleteBusiness(ctx context.Context, id string) error
}

// SessionManager is the slice of the auth session the coordinator drives.
type SessionManager interface {
	Refresh(ctx context.Context) bool
	IsExpiringSoon(threshold time.Duration) bool
	IsAuthenticated() bool
}

// ResponseCache is the keyed TTL cache surface.
type ResponseCache interface {
	Get(ctx context.Context, endpoint string, params map[string]string) (*cache.Entry, error)
	Set(ctx context.Context, endpoint string, params map[string]string, payload interface{})
	Remove(ctx context.Context, endpoint string, params map[string]string) error
	Clear(ctx context.Context) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}
