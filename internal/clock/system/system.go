// Package system is the wall clock stamped on runs, documents and mentions.
package system

import "time"

// Clock reads the host clock in UTC. The zero value is ready to use.
type Clock struct{}

// New returns a Clock.
func New() *Clock {
	return &Clock{}
}

// Now is truncated to microseconds, the precision of a Postgres timestamptz.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
