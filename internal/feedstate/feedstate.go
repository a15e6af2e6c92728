// Package feedstate owns the per-feed fetch cadence and failure
// bookkeeping rules.
package feedstate

import (
	"time"

	"github.com/bryan-buckman/newsriver/internal/model"
)

// Transition is the persisted outcome of one refresh attempt.
type Transition struct {
	NextFetchAt time.Time
	ErrorCount  int
	LastError   string
}

// ComputeNextFetch derives the feed's next schedule point from the outcome
// of a refresh attempt.
//
// Success resets the error state and advances by the refresh interval, or
// by a server-provided retry hint when that is larger. Failure increments
// the error count but still advances by the normal interval: a failing
// feed keeps its cadence until the error ceiling opens the circuit, at
// which point due-selection stops picking it up entirely. There is no
// separate backoff curve for failures.
func ComputeNextFetch(feed *model.Feed, now time.Time, success bool, retryAfter time.Duration, failure error) Transition {
	interval := time.Duration(feed.RefreshIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = time.Hour
	}
	next := now.Add(interval)
	if success {
		if retryAfter > interval {
			next = now.Add(retryAfter)
		}
		return Transition{NextFetchAt: next, ErrorCount: 0, LastError: ""}
	}
	msg := "fetch failed"
	if failure != nil {
		msg = failure.Error()
	}
	return Transition{
		NextFetchAt: next,
		ErrorCount:  feed.ErrorCount + 1,
		LastError:   msg,
	}
}
