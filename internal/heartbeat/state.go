// Package heartbeat reports this sandbox's liveness to an optional control
// plane and throttles the piggybacked update check.
package heartbeat

import (
	"sync"
	"time"
)

// State carries the reporting timestamps for the process. The ticker loop
// and anything inspecting liveness share it, so access is serialized here
// instead of through package globals.
type State struct {
	mu              sync.Mutex
	lastHeartbeat   time.Time
	lastUpdateCheck time.Time
}

func NewState() *State {
	return &State{}
}

func (s *State) MarkHeartbeat(now time.Time) {
	s.mu.Lock()
	s.lastHeartbeat = now
	s.mu.Unlock()
}

func (s *State) LastHeartbeat() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHeartbeat
}

// ShouldCheckUpdates reports whether enough time has passed since the last
// update check, and if so marks the check as done. Deciding and marking
// are one step so concurrent ticks cannot both win.
func (s *State) ShouldCheckUpdates(now time.Time, interval time.Duration) bool {
	if interval <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.Sub(s.lastUpdateCheck) < interval {
		return false
	}
	s.lastUpdateCheck = now
	return true
}
