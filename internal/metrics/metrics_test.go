package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	// Register should be safe to call multiple times
	Register()
	Register()

	assert.NotPanics(t, func() {
		IncSyncPass("completed")
		IncOperationReplayed("synced")
		SetPendingDepth(3)
		IncCacheRead("hit")
		IncCacheEviction()
		IncHTTPRetry("/businesses")
	})
}
