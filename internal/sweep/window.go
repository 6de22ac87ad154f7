package sweep

import (
	"fmt"
	"time"
)

// PollWindow is the time range swept by one invocation: [now-period, now].
type PollWindow struct {
	Start time.Time
	End   time.Time
}

// NewWindow computes the look-back window ending at now.
func NewWindow(now time.Time, period time.Duration) (PollWindow, error) {
	if period <= 0 {
		return PollWindow{}, fmt.Errorf("invalid poll period %s", period)
	}
	return PollWindow{Start: now.Add(-period), End: now}, nil
}

// Label is the HH:MM:SS marker of the window start shown in chat headings.
func (w PollWindow) Label(loc *time.Location) string {
	return timeLabel(w.Start, loc)
}

// StreamPrefix scopes a query to the Lambda stream of the window start's
// calendar day.
//
// Known gap: a window straddling midnight only sees the first day's streams,
// so events logged after midnight are dropped. This is why the scope is off
// unless explicitly enabled.
func (w PollWindow) StreamPrefix(loc *time.Location) string {
	return w.Start.In(orLocal(loc)).Format("2006/01/02") + "/[$LATEST]"
}

func timeLabel(t time.Time, loc *time.Location) string {
	return t.In(orLocal(loc)).Format("15:04:05")
}

func orLocal(loc *time.Location) *time.Location {
	if loc == nil {
		return time.Local
	}
	return loc
}
