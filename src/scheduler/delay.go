package scheduler

import "time"

// Delay until the first fire after a (re)start.
// A recorded run anchors the timer to lastRunAt + interval, clamped so an
// overdue job fires immediately. Without one the job waits out its start
// offset, staggering jobs deployed at the same moment.
func initialDelay(lastRunAt time.Time, hasLastRun bool, interval, startOffset time.Duration, now time.Time) time.Duration {
	if !hasLastRun {
		return startOffset
	}
	return nextDelay(lastRunAt, interval, now)
}

// Timestamp the next delay is computed from. An external completion recorded
// at or after this run's start wins over the local clock, letting another
// replica's record correct the cadence.
func nextAnchor(external time.Time, hasExternal bool, runStart, completion time.Time) time.Time {
	if hasExternal && !external.Before(runStart) {
		return external
	}
	return completion
}

func nextDelay(anchor time.Time, interval time.Duration, now time.Time) time.Duration {
	next := anchor.Add(interval)
	if next.Before(now) {
		return 0
	}
	return next.Sub(now)
}
