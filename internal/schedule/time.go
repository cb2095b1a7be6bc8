package schedule

import (
	"time"

	"github.com/teemow/inboxreply/internal/autoreply"
)

// NextOccurrence returns the next time the wall clock in loc reads hhmm:
// today when that moment is still ahead of now, otherwise tomorrow. hhmm
// accepts the same forms as rule windows ("14:30", "2:30pm", "9am").
func NextOccurrence(hhmm string, now time.Time, loc *time.Location) (time.Time, error) {
	clock, err := autoreply.ParseFlexibleClock(hhmm)
	if err != nil {
		return time.Time{}, err
	}
	if loc == nil {
		loc = time.Local
	}

	local := now.In(loc)
	target := time.Date(local.Year(), local.Month(), local.Day(), clock.Hour(), clock.Minute(), 0, 0, loc)
	if !target.After(local) {
		target = time.Date(local.Year(), local.Month(), local.Day()+1, clock.Hour(), clock.Minute(), 0, 0, loc)
	}
	return target, nil
}
