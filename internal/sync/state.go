package sync

// State is the coordinator's lifecycle phase. Transitions go through
// transition() only, which enforces the validity table below.
type State int

const (
	StateIdle State = iota
	StateSyncingOperations
	StateRefreshingCache
	StateOffline
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSyncingOperations:
		return "syncing_operations"
	case StateRefreshingCache:
		return "refreshing_cache"
	case StateOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// validTransitions lists the reachable next states per state. Any state
// may drop to offline; a pass interrupted by a connectivity loss stays
// offline because its follow-up transitions are rejected.
var validTransitions = map[State][]State{
	StateIdle:              {StateSyncingOperations, StateOffline},
	StateSyncingOperations: {StateRefreshingCache, StateIdle, StateOffline},
	StateRefreshingCache:   {StateIdle, StateOffline},
	StateOffline:           {StateIdle, StateSyncingOperations},
}

func transitionValid(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
