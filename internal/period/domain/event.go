package domain

import "github.com/nholding/cycle-book/internal/utils"

// StartEventTitle labels the first day of every period.
const StartEventTitle = "start"

// DayEvent is a single calendar-day marker shown for a Period.
// PeriodID is a lookup reference back to the owning period.
type DayEvent struct {
	Date     Date   `json:"date"`
	Title    string `json:"title"`
	PeriodID string `json:"periodId"`
}

// IsStart reports whether this is the opening day marker of its period.
func (e DayEvent) IsStart() bool {
	return e.Title == StartEventTitle
}

// NewDayLabel returns a fresh unique per-day title, e.g. "day-01J0ABCD...".
func NewDayLabel() string {
	return "day-" + utils.GenerateStableID()
}

// NewStartEvent returns the single "start" event for a period opened on startDate.
func NewStartEvent(periodID string, startDate Date) DayEvent {
	return DayEvent{
		Date:     startDate,
		Title:    StartEventTitle,
		PeriodID: periodID,
	}
}

// DeriveDayEvents emits one DayEvent per date, in input order, each with a label
// from label. A nil label uses NewDayLabel.
//
// Example:
//
//	days, _ := DaysBetweenExclusiveStartInclusiveEnd(start, end)
//	events := DeriveDayEvents(days, periodID, nil)
func DeriveDayEvents(dates []Date, periodID string, label func() string) []DayEvent {
	if label == nil {
		label = NewDayLabel
	}
	events := make([]DayEvent, 0, len(dates))
	for _, d := range dates {
		events = append(events, DayEvent{
			Date:     d,
			Title:    label(),
			PeriodID: periodID,
		})
	}
	return events
}

// EventList is the append-only, insertion-ordered list of DayEvents consumed by
// the presentation layer. It is not safe for concurrent use on its own; the
// PeriodStore guards it.
type EventList struct {
	events []DayEvent
}

func (l *EventList) Append(events ...DayEvent) {
	l.events = append(l.events, events...)
}

// All returns a copy of every event in insertion order.
func (l *EventList) All() []DayEvent {
	out := make([]DayEvent, len(l.events))
	copy(out, l.events)
	return out
}

// ForPeriod returns the events that belong to periodID, in insertion order.
func (l *EventList) ForPeriod(periodID string) []DayEvent {
	var out []DayEvent
	for _, e := range l.events {
		if e.PeriodID == periodID {
			out = append(out, e)
		}
	}
	return out
}

func (l *EventList) Len() int {
	return len(l.events)
}
