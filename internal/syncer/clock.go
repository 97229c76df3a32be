package syncer

import "time"

// Clock returns the current time in milliseconds since the epoch.
type Clock interface {
	Now() int64
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() int64

func (f ClockFunc) Now() int64 { return f() }

// SystemClock reads the wall clock.
var SystemClock Clock = ClockFunc(func() int64 {
	return time.Now().UnixMilli()
})
