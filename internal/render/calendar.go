package render

import (
	"fmt"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/ryanbastic/go-slotgrid/internal/aggregate"
)

// SlotLength is the duration of one grid cell.
const SlotLength = time.Hour

// CalendarEvent carries the event fields copied into each VEVENT.
type CalendarEvent struct {
	ID          string
	Title       string
	Description string
	Organizer   string
}

// BestSlotsCalendar returns a VCALENDAR with one tentative VEVENT per
// ranked slot, in rank order. Slot times are interpreted in loc.
func BestSlotsCalendar(ev CalendarEvent, best []aggregate.Ranked, loc *time.Location, now time.Time) (string, error) {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//slotgrid//best slots//EN")
	cal.SetXWRCalName(ev.Title)

	for i, r := range best {
		start, err := r.Key.Start(loc)
		if err != nil {
			return "", fmt.Errorf("slot %s: %w", r.Key, err)
		}

		vevent := cal.AddEvent(fmt.Sprintf("%s-%s@slotgrid", ev.ID, strings.ReplaceAll(r.Key.String(), ":", "")))
		vevent.SetCreatedTime(now)
		vevent.SetDtStampTime(now)
		vevent.SetStartAt(start)
		vevent.SetEndAt(start.Add(SlotLength))
		vevent.SetSummary(fmt.Sprintf("%s (option %d)", ev.Title, i+1))
		vevent.SetDescription(describe(ev, r))
		vevent.SetStatus(ics.ObjectStatusTentative)
		if ev.Organizer != "" {
			vevent.SetOrganizer(ev.Organizer)
		}
	}

	return cal.Serialize(), nil
}

func describe(ev CalendarEvent, r aggregate.Ranked) string {
	var b strings.Builder
	if ev.Description != "" {
		b.WriteString(ev.Description)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "%d respondents, availability %.0f%%", r.Respondents, r.Intensity*100)
	return b.String()
}
