package refresh

import (
	"time"

	"trend-data/internal/calendar"
	"trend-data/internal/model"
)

// Request is the calendar range a run wants covered, both ends inclusive.
type Request struct {
	Begin time.Time
	End   time.Time
}

// Plan is the planner decision. When Skip is false, [Begin, End] is the window to fetch.
type Plan struct {
	Skip   bool
	Reason string
	Begin  time.Time
	End    time.Time
}

const (
	reasonCovered  = "covered"
	reasonHolidays = "no trading day"
)

// PlanWindow decides whether anything new can exist for a series whose last bar is
// dated last (hasLast false for an empty series). All comparisons are on calendar days.
func PlanWindow(req Request, last time.Time, hasLast, realigning bool, cal calendar.Oracle) Plan {
	begin := model.DayOf(req.Begin)
	end := model.DayOf(req.End)

	if hasLast && model.DayOf(last).After(end) {
		return Plan{Skip: true, Reason: reasonCovered}
	}

	// only the unseen tail, unless a realignment forces a full rebuild
	if hasLast && !realigning {
		if l := model.DayOf(last); l.After(begin) {
			begin = l
		}
	}

	for d := begin.AddDate(0, 0, 1); !d.After(end); d = d.AddDate(0, 0, 1) {
		if cal.IsTradingDay(d) {
			return Plan{Begin: begin, End: end}
		}
	}
	return Plan{Skip: true, Reason: reasonHolidays}
}
