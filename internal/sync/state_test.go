package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "syncing_operations", StateSyncingOperations.String())
	assert.Equal(t, "refreshing_cache", StateRefreshingCache.String())
	assert.Equal(t, "offline", StateOffline.String())
}

func TestTransitionValidity(t *testing.T) {
	valid := [][2]State{
		{StateIdle, StateSyncingOperations},
		{StateIdle, StateOffline},
		{StateSyncingOperations, StateRefreshingCache},
		{StateSyncingOperations, StateIdle},
		{StateSyncingOperations, StateOffline},
		{StateRefreshingCache, StateIdle},
		{StateRefreshingCache, StateOffline},
		{StateOffline, StateIdle},
		{StateOffline, StateSyncingOperations},
	}
	for _, tr := range valid {
		assert.True(t, transitionValid(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}

	invalid := [][2]State{
		{StateIdle, StateRefreshingCache},
		{StateOffline, StateRefreshingCache},
		{StateRefreshingCache, StateSyncingOperations},
	}
	for _, tr := range invalid {
		assert.False(t, transitionValid(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}
}

func TestTransitionRejectionLeavesState(t *testing.T) {
	f := newFixture(t)

	assert.True(t, f.coordinator.transition(StateOffline))
	assert.False(t, f.coordinator.transition(StateRefreshingCache))
	assert.Equal(t, StateOffline, f.coordinator.State())

	// self-transition is a no-op, not an error
	assert.True(t, f.coordinator.transition(StateOffline))
}
