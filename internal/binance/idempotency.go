package binance

import "sync"

// idempotencyShield is the process-wide set of accepted quoteIds. A second
// AcceptQuote call with an already-seen id must not hit the network; this
// replaces the original boot_guard.py pattern of monkey-patching the global
// request function at import time with an explicit middleware stage, per
// the Design Notes.
type idempotencyShield struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func newIdempotencyShield() *idempotencyShield {
	return &idempotencyShield{seen: make(map[string]struct{})}
}

// CheckAndMark reports whether quoteID has already been accepted in this
// process. If not, it atomically marks it as accepted and returns false
// (proceed with the network call); if so, it returns true (duplicate,
// short-circuit).
func (s *idempotencyShield) CheckAndMark(quoteID string) (duplicate bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[quoteID]; ok {
		return true
	}
	s.seen[quoteID] = struct{}{}
	return false
}

// Reset clears every previously accepted quoteId, so a new cycle does not
// see quoteIds accepted in an earlier cycle as duplicates. quoteIds are
// single-use and cycle-scoped: Binance never reissues one, so clearing the
// set between cycles cannot resurrect a stale duplicate as acceptable.
func (s *idempotencyShield) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = make(map[string]struct{})
}
