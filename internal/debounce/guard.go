package debounce

// guard is the set of user ids with a handoff in flight. Like buffers it is
// only touched under the owning shard's mutex.
type guard map[string]struct{}

func (g guard) held(userID string) bool {
	_, ok := g[userID]
	return ok
}

func (g guard) acquire(userID string) { g[userID] = struct{}{} }

func (g guard) release(userID string) { delete(g, userID) }
