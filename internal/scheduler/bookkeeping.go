// ============================================================================
// Falcon-SQL Scheduler - Ready/Work Bookkeeping
// ============================================================================
//
// Package: internal/scheduler
// File: bookkeeping.go
// Purpose: The two disjointly-maintained sets dispatch() intersects
//
// ready:    clients with no in-flight Job right now.
// hasWork:  clients whose queue is currently non-empty.
//
// ready ∩ hasWork is exactly the set dispatch() sweeps each pass (§4.4).
// Both are plain maps guarded by nothing: the scheduler event loop is the
// sole owner and sole mutator of this state (§5), so no locking is needed.
//
// ============================================================================

package scheduler

import "github.com/ChuLiYu/falcon-sql/pkg/types"

type clientSet map[types.ClientID]struct{}

func newClientSet() clientSet {
	return make(clientSet)
}

func (s clientSet) add(c types.ClientID) {
	s[c] = struct{}{}
}

func (s clientSet) remove(c types.ClientID) {
	delete(s, c)
}

func (s clientSet) has(c types.ClientID) bool {
	_, ok := s[c]
	return ok
}

func (s clientSet) len() int {
	return len(s)
}
