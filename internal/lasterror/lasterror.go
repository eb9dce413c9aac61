// Package lasterror keeps the most recent error and status message per
// calling context. The C ABI has no way to return structured errors, so a
// failing call records its message here and the caller reads it back from
// the same thread.
//
// A context is an OS thread ID in the shared library (see Current) and any
// caller-chosen value in tests.
package lasterror

import "sync"

// ContextID identifies one calling context.
type ContextID uint64

// StatusFailed is the status recorded alongside an error.
const StatusFailed = "failed"

type slot struct {
	err    string
	status string
}

// Store maps contexts to their last error and status.
type Store struct {
	mu    sync.RWMutex
	slots map[ContextID]*slot
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{slots: make(map[ContextID]*slot)}
}

func (s *Store) slotLocked(ctx ContextID) *slot {
	sl, ok := s.slots[ctx]
	if !ok {
		sl = &slot{}
		s.slots[ctx] = sl
	}
	return sl
}

// SetError records a failure for ctx. The status becomes StatusFailed.
func (s *Store) SetError(ctx ContextID, msg string) {
	if msg == "" {
		msg = "unknown error"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sl := s.slotLocked(ctx)
	sl.err = msg
	sl.status = StatusFailed
}

// SetStatus records a success message for ctx and clears its error.
func (s *Store) SetStatus(ctx ContextID, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl := s.slotLocked(ctx)
	sl.err = ""
	sl.status = msg
}

// Clear drops ctx's error, keeping its status.
func (s *Store) Clear(ctx ContextID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sl, ok := s.slots[ctx]; ok {
		sl.err = ""
	}
}

// LastError returns ctx's error, or "" if the last call succeeded.
func (s *Store) LastError(ctx ContextID) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sl, ok := s.slots[ctx]; ok {
		return sl.err
	}
	return ""
}

// LastStatus returns ctx's status message.
func (s *Store) LastStatus(ctx ContextID) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sl, ok := s.slots[ctx]; ok {
		return sl.status
	}
	return ""
}

// Forget removes ctx entirely.
func (s *Store) Forget(ctx ContextID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.slots, ctx)
}

// Reset removes every context.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.slots)
}

// Len returns the number of contexts with state.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.slots)
}
