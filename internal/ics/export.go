package ics

import (
	"time"

	ical "github.com/arran4/golang-ical"

	"slawindow/internal/model"
)

const productID = "-//slawindow//due occurrences//EN"

// ExportCalendar renders occurrences as a published calendar with one
// zero-length VEVENT per occurrence. UIDs are the occurrence instance keys.
func ExportCalendar(name string, occurrences []model.Occurrence, stamp time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	if name != "" {
		cal.SetName(name)
		cal.SetXWRCalName(name)
	}

	stamp = stamp.UTC()
	for _, occ := range occurrences {
		ev := cal.AddEvent(occ.InstanceKey)
		ev.SetDtStampTime(stamp)
		ev.SetStartAt(occ.At.UTC())
		ev.SetEndAt(occ.At.UTC())
		ev.SetSummary(occ.ControlID + " due")
	}
	return cal.Serialize()
}
