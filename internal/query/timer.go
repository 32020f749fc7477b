package query

import (
	stderrors "errors"
	"time"
)

var errClosedFuture = stderrors.New("evaluation future channel closed without a result")

// timeoutTimer wraps time.Timer so a zero or negative duration disables
// the timeout entirely (an unbuffered nil channel that never fires),
// rather than firing immediately like time.After(0) would.
type timeoutTimer struct {
	C    <-chan time.Time
	stop func()
}

func newTimeoutTimer(d time.Duration) timeoutTimer {
	if d <= 0 {
		return timeoutTimer{C: nil, stop: func() {}}
	}
	t := time.NewTimer(d)
	return timeoutTimer{C: t.C, stop: func() { t.Stop() }}
}

func (t timeoutTimer) Stop() { t.stop() }
