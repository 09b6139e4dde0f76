package presence

import "sync"

// StateStore holds the last known presence of each supervised device.
// It is shared by all supervisions of one process so that a restarted
// supervision resumes from the known state instead of reporting a
// spurious transition.
type StateStore struct {
	mu     sync.Mutex
	states map[string]bool
}

// NewStateStore creates an empty store
func NewStateStore() *StateStore {
	return &StateStore{states: make(map[string]bool)}
}

// Get returns the stored state of device. known is false when no
// supervision has determined it yet.
func (s *StateStore) Get(device string) (present, known bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	present, known = s.states[device]
	return present, known
}

// Set stores the state of device
func (s *StateStore) Set(device string, present bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[device] = present
}

// Swap stores present for device and returns the previous state.
// changed is true only when a known state flipped.
func (s *StateStore) Swap(device string, present bool) (old, known, changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, known = s.states[device]
	s.states[device] = present
	return old, known, known && old != present
}

// All returns a copy of every stored state
func (s *StateStore) All() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool, len(s.states))
	for device, present := range s.states {
		out[device] = present
	}
	return out
}
