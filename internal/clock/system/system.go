// Package system provides the wall clock used outside tests.
package system

import "time"

// Clock implements watch.Clock with time.Now in UTC.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time truncated to microseconds, the finest
// resolution every monitor store round-trips.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
