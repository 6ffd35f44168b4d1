// Package testing holds shared fixtures for unit and integration tests.
package testing

import (
	"sync"
	"time"
)

// FixedClock returns a clock pinned to start and a function that moves it forward.
// Both are safe to call from the goroutines a test spawns.
func FixedClock(start time.Time) (now func() time.Time, advance func(time.Duration)) {
	var mu sync.Mutex
	current := start
	now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	}
	advance = func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(d)
	}
	return now, advance
}
