package export

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/nholding/cycle-book/internal/period/domain"
)

const productID = "-//nholding//cycle-book//EN"

// BuildICS renders the event list of owner as an iCalendar feed with one all-day
// VEVENT per DayEvent.
//
// UIDs are derived from the period id and the date, so calendar clients keep
// their copy of an event across refreshes. generatedAt becomes DTSTAMP.
//
// Example output (excerpt):
//
//	BEGIN:VEVENT
//	UID:01J0ABCD-20240611@cycle-book
//	DTSTART;VALUE=DATE:20240611
//	DTEND;VALUE=DATE:20240612
//	SUMMARY:Period start
//	END:VEVENT
func BuildICS(owner string, events []domain.DayEvent, generatedAt time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	cal.SetXWRCalName("cycle-book: " + owner)

	starts := make(map[string]domain.Date)
	for _, e := range events {
		if e.IsStart() {
			starts[e.PeriodID] = e.Date
		}
	}

	for _, e := range events {
		ve := cal.AddEvent(EventUID(e))
		ve.SetDtStampTime(generatedAt.UTC())
		ve.SetAllDayStartAt(e.Date.Time(time.UTC))
		ve.SetAllDayEndAt(e.Date.AddDays(1).Time(time.UTC))
		ve.SetSummary(eventSummary(e, starts))
		ve.SetDescription("period " + e.PeriodID)
	}

	return cal.Serialize()
}

// EventUID is the stable iCalendar UID of a DayEvent.
func EventUID(e domain.DayEvent) string {
	return fmt.Sprintf("%s-%s@cycle-book", e.PeriodID, e.Date.Time(time.UTC).Format("20060102"))
}

func eventSummary(e domain.DayEvent, starts map[string]domain.Date) string {
	if e.IsStart() {
		return "Period start"
	}
	if start, ok := starts[e.PeriodID]; ok && !e.Date.Before(start) {
		return fmt.Sprintf("Period day %d", e.Date.DaysSince(start)+1)
	}
	return "Period day"
}
