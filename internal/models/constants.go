package models

const (
	// TempIDPrefix marks businesses created offline before the remote API
	// assigned a real id.
	TempIDPrefix = "temp_"

	// SyncStatusPendingSync is the visible status of a locally synthesized
	// result awaiting remote confirmation.
	SyncStatusPendingSync = "pending_sync"
)

const (
	// CacheKeyPrefix namespaces every cache entry in the shared store.
	CacheKeyPrefix = "cache_"

	// CacheVersion is written into entry metadata; bump to invalidate
	// entries across an incompatible format change.
	CacheVersion = "1.0"
)

// Well-known cache endpoints. Entries under essential endpoints survive
// quota evictions.
const (
	EndpointCategories  = "categories"
	EndpointBusinesses  = "businesses"
	EndpointSearch      = "businesses/search"
	EndpointCategory    = "businesses/category"
	EndpointSubcategory = "businesses/subcategory"
)
