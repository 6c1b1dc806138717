package schedule

import (
	"fmt"
	"strings"
	"time"

	"slawindow/internal/model"
	"slawindow/internal/rule"
)

var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseInstant accepts the date-time spellings used by API callers and
// config files. Values carrying an offset are converted to UTC; all others
// are read as UTC wall-clock.
func ParseInstant(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty instant")
	}
	for _, layout := range instantLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	if t, err := rule.ParseCompact(s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unrecognized instant %q", s)
}

// MostRecent returns the latest date not after at. dates may be in any order.
func MostRecent(dates []time.Time, at time.Time) (time.Time, bool) {
	var (
		best  time.Time
		found bool
	)
	for _, d := range dates {
		if d.After(at) {
			continue
		}
		if !found || d.After(best) {
			best, found = d, true
		}
	}
	return best, found
}

// Label builds the guarantee point for a result computed over [from, to].
// ok is false when the control has no occurrence in the window.
func (e *Engine) Label(c model.Control, value any, from, to time.Time) (model.GuaranteePoint, bool) {
	dates := e.GetDates(from, to, c.Period, c.Custom)
	occ, ok := MostRecent(dates, to.UTC())
	if !ok {
		e.log.Debug("no occurrence to label guarantee point", "control", c.ID, "from", from, "to", to)
		return model.GuaranteePoint{}, false
	}
	return model.GuaranteePoint{
		ControlID:  c.ID,
		Value:      value,
		WindowFrom: from.UTC(),
		WindowTo:   to.UTC(),
		Occurrence: occ,
	}, true
}
