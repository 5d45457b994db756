package wizard

import (
	"sync"
	"time"

	"github.com/seatpredictor/seatweb/pkg/logging"
	"github.com/seatpredictor/seatweb/pkg/models"
)

// StateStore keeps one in-progress wizard per signed-in user, with automatic
// cleanup of abandoned wizards.
type StateStore struct {
	states map[string]*storedState
	mutex  sync.RWMutex
}

type storedState struct {
	state     *State
	expiresAt time.Time
}

// NewStateStore creates a new wizard state store and starts its cleanup
// routine.
func NewStateStore() *StateStore {
	store := &StateStore{
		states: make(map[string]*storedState),
	}
	store.startCleanup()
	return store
}

// Begin discards any previous wizard of the user and starts a fresh one.
func (s *StateStore) Begin(username string) *State {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	state := NewState()
	s.states[username] = &storedState{
		state:     state,
		expiresAt: time.Now().Add(time.Duration(models.WizardTimeout) * time.Second),
	}

	logging.LogDebug("Wizard state created", "username", username)
	return state
}

// Get retrieves the user's in-progress wizard if it exists and hasn't
// expired.
func (s *StateStore) Get(username string) (*State, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	entry, exists := s.states[username]
	if !exists {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(s.states, username)
		logging.LogDebug("Wizard state expired", "username", username)
		return nil, false
	}
	return entry.state, true
}

// Delete discards the user's wizard, typically after a successful submit or
// on navigation away.
func (s *StateStore) Delete(username string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.states[username]; exists {
		delete(s.states, username)
		logging.LogDebug("Wizard state discarded", "username", username)
	}
}

// startCleanup runs a background goroutine to remove abandoned wizards.
func (s *StateStore) startCleanup() {
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()

		for range ticker.C {
			s.cleanupExpired()
		}
	}()
}

// cleanupExpired removes all expired wizard states.
func (s *StateStore) cleanupExpired() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := time.Now()
	expired := 0
	for username, entry := range s.states {
		if now.After(entry.expiresAt) {
			delete(s.states, username)
			expired++
		}
	}
	if expired > 0 {
		logging.LogInfo("Cleaned up expired wizard states",
			"expired_count", expired,
			"remaining", len(s.states))
	}
}
