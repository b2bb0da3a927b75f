package timex

import (
	"time"

	"pwmgen-go/x/mathx"
)

// MsCeil converts nanoseconds to whole milliseconds, rounding up.
// Used where a sleep must cover at least one full interval.
func MsCeil(ns uint64) uint64 {
	return mathx.CeilDiv(ns, uint64(time.Millisecond))
}

// UsCeil converts nanoseconds to whole microseconds, rounding up.
func UsCeil(ns uint64) uint64 {
	return mathx.CeilDiv(ns, uint64(time.Microsecond))
}

// NowNs returns Unix nanoseconds as int64 (event timestamps).
func NowNs() int64 { return time.Now().UnixNano() }
