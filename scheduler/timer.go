package scheduler

import (
	"time"

	"github.com/scorewright/scoreline/logging"
)

// driftWarnThreshold is the accumulated overrun, in microseconds, past which
// the stopwatch logs a latency warning rather than silently absorbing it
// (spec.md §4.5).
const driftWarnThreshold = 5000 * time.Microsecond

// stopwatch is the monotonic, drift-correcting timer spec.md §4.5 describes:
// it tracks expected-elapsed time against actual-elapsed wall clock and
// shortens future sleeps by the accumulated overrun, so a long score does
// not accumulate unbounded lag.
type stopwatch struct {
	startedAt time.Time
	expected  time.Duration
}

func newStopwatch() *stopwatch {
	return &stopwatch{startedAt: time.Now()}
}

// sleep requests a wait of `requested`, correcting for drift accumulated
// since the stopwatch started. It never sleeps a negative duration.
func (s *stopwatch) sleep(requested time.Duration) {
	actual := time.Since(s.startedAt)
	drift := actual - s.expected
	s.expected += requested

	if drift > driftWarnThreshold {
		logging.Warn(0, "playback drift %v exceeds %v", drift, driftWarnThreshold)
	}

	wait := requested - drift
	if wait <= 0 {
		return
	}
	time.Sleep(wait)
}
