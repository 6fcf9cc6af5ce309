package game

import "time"

// Clock schedules the session's delayed transitions. Tests substitute a
// manual clock to fire timers deterministically.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending scheduled call.
type Timer interface {
	// Stop prevents the call from running. It returns false if the call has
	// already run or been stopped.
	Stop() bool
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
