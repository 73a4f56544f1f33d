// Package clock abstracts timer scheduling so that protocol code runs unchanged under a
// virtual-time simulation, a test, or a real-time event loop.
//
// Callbacks handed to AfterFunc are always executed one at a time, on the goroutine that
// drives the clock. Code scheduled through a Clock therefore never needs locks.
package clock

import "time"

type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a handle to a scheduled callback. Stop prevents the callback from running and
// reports whether it did so. Stopping a timer that already fired or was already stopped is
// a no-op.
type Timer interface {
	Stop() bool
}
