package realtime

import (
	"sync"
	"time"
)

// StopEvent is one calling point of a trip update.
type StopEvent struct {
	StopID     string
	Time       time.Time // predicted departure, or arrival when no departure is given
	Delay      time.Duration
	DelayKnown bool
	Skipped    bool
}

// Trip is a parsed TripUpdate entity.
type Trip struct {
	ID        string
	Cancelled bool
	Stops     []StopEvent
}

// Store holds the latest parsed feed in a thread-safe manner.
type Store struct {
	mu      sync.RWMutex
	trips   []Trip
	fetched time.Time
}

// NewStore creates an empty realtime store.
func NewStore() *Store {
	return &Store{}
}

// SetTrips replaces the snapshot.
func (s *Store) SetTrips(trips []Trip, fetched time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trips = trips
	s.fetched = fetched
}

// Snapshot returns the current trips and when they were fetched. The zero
// time means nothing has been fetched yet.
func (s *Store) Snapshot() ([]Trip, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.trips, s.fetched
}
