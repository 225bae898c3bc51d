package digest

import (
	"math"
	"time"
)

const dueDateLayout = "2006-01-02"

// daysOverdue returns the count of whole calendar days between the due
// date and the reference instant, both taken as calendar days in loc.
// Returns nil unless the due day is strictly earlier than the reference
// day; same-day and future due dates carry no value at all.
func daysOverdue(dueDate string, now time.Time, loc *time.Location) *int {
	if dueDate == "" {
		return nil
	}

	due, err := time.ParseInLocation(dueDateLayout, dueDate, loc)
	if err != nil {
		return nil
	}

	nowInLoc := now.In(loc)
	today := time.Date(nowInLoc.Year(), nowInLoc.Month(), nowInLoc.Day(), 0, 0, 0, 0, loc)

	if !due.Before(today) {
		return nil
	}

	// Rounding absorbs the odd hour a DST transition adds or removes.
	days := int(math.Round(today.Sub(due).Hours() / 24))
	return &days
}
