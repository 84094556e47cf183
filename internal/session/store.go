package session

import "sync"

// Store maps user ids to conversation state. It is the only shared mutable
// resource in the bot; Update gives callers an atomic read-modify-write per
// user, and the per-user lock is held for the whole closure so two messages
// from the same user can never interleave. Different users contend only on
// the short map lookup.
type Store struct {
	mu       sync.Mutex
	sessions map[int64]*entry
}

type entry struct {
	mu    sync.Mutex
	state State
}

func NewStore() *Store {
	return &Store{sessions: make(map[int64]*entry)}
}

func (s *Store) entryFor(userID int64) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[userID]
	if !ok {
		e = &entry{state: State{UserID: userID}}
		s.sessions[userID] = e
	}
	return e
}

// Update runs fn with exclusive access to the user's state. fn may mutate
// the state in place; mutations are visible to subsequent calls.
func (s *Store) Update(userID int64, fn func(st *State)) {
	e := s.entryFor(userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.state)
}

// Get returns a copy of the user's state.
func (s *Store) Get(userID int64) (State, bool) {
	s.mu.Lock()
	e, ok := s.sessions[userID]
	s.mu.Unlock()
	if !ok {
		return State{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.state
	return st, true
}

// Delete removes the user's state entirely.
func (s *Store) Delete(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}
