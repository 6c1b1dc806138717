package rule

import (
	"time"

	appLog "slawindow/internal/log"
)

// Termination records why generation of a rule stopped.
type Termination int

const (
	// Completed means the walk reached the rule's upper bound.
	Completed Termination = iota
	// Exhausted means the weekday search found no BYDAY match within a week.
	Exhausted
	// Unsupported means FREQ lacks the modifiers it needs to advance.
	Unsupported
	// Truncated means the occurrence cap was reached.
	Truncated
	// Stalled means a step failed to move past the previous date, or the
	// interval is too large to step with.
	Stalled
)

func (t Termination) String() string {
	switch t {
	case Completed:
		return "completed"
	case Exhausted:
		return "exhausted"
	case Unsupported:
		return "unsupported"
	case Truncated:
		return "truncated"
	case Stalled:
		return "stalled"
	default:
		return "unknown"
	}
}

// Expansion is the outcome of generating one rule.
type Expansion struct {
	Occurrences []time.Time
	Termination Termination
}

// Generator expands descriptors into occurrences.
type Generator struct {
	log            appLog.Logger
	maxOccurrences int
}

// NewGenerator returns a Generator. maxOccurrences <= 0 disables the cap.
func NewGenerator(logger appLog.Logger, maxOccurrences int) *Generator {
	if logger == nil {
		logger = appLog.Discard()
	}
	return &Generator{log: logger, maxOccurrences: maxOccurrences}
}

// Generate walks d from its start date and emits, for every stepped date,
// one occurrence per BYHOUR value (in declared order) that falls inside
// [from, to]. The walk stops after the date of UNTIL (or to, when UNTIL is
// absent). Bounds at exactly midnight cover their whole day; an inverted
// window yields nothing, whatever the bounds' times of day.
func (g *Generator) Generate(d Descriptor, from, to time.Time) Expansion {
	out := make([]time.Time, 0)
	if from.After(to) {
		return Expansion{Occurrences: out, Termination: Completed}
	}

	bound := d.Until.OrElse(to)
	lastDay := dateOf(bound)
	upper := inclusiveUpper(to)
	if until, ok := d.Until.Get(); ok && inclusiveUpper(until).Before(upper) {
		upper = inclusiveUpper(until)
	}
	// Nothing past upper can be emitted.
	if dateOf(upper).Before(lastDay) {
		lastDay = dateOf(upper)
	}

	interval := d.Interval
	if interval < 1 {
		interval = 1
	}
	if interval > MaxInterval {
		g.log.Warn("rule generation stopped: interval out of range", "interval", interval, "max", MaxInterval)
		return Expansion{Occurrences: out, Termination: Stalled}
	}
	hours := d.ByHour
	if len(hours) == 0 {
		hours = []int{0}
	}

	current := d.Start
	weekly := d.Frequency == Weekly && d.ByDay != nil
	if weekly && !d.matchesDay(current) {
		next, ok := d.nextMatchingDay(current)
		if !ok {
			g.log.Warn("rule generation stopped: no BYDAY match within a week", "start", d.Start)
			return Expansion{Occurrences: out, Termination: Exhausted}
		}
		current = next
	}

	for !dateOf(current).After(lastDay) {
		prev := current
		for _, h := range hours {
			candidate := time.Date(current.Year(), current.Month(), current.Day(), h, 0, 0, 0, time.UTC)
			if candidate.Before(from) || candidate.After(upper) {
				continue
			}
			out = append(out, candidate)
			if g.maxOccurrences > 0 && len(out) >= g.maxOccurrences {
				g.log.Warn("rule generation truncated", "cap", g.maxOccurrences, "at", candidate)
				return Expansion{Occurrences: out, Termination: Truncated}
			}
		}

		switch {
		case d.Frequency == Daily:
			current = current.AddDate(0, 0, interval)

		case weekly:
			next, ok := d.nextMatchingDay(current)
			if !ok {
				g.log.Warn("rule generation stopped: no BYDAY match within a week", "at", current)
				return Expansion{Occurrences: out, Termination: Exhausted}
			}
			if !weekStart(next).Equal(weekStart(current)) {
				next = next.AddDate(0, 0, 7*(interval-1))
			}
			current = next

		case d.Frequency == Monthly && d.ByMonthDay.IsPresent():
			first := time.Date(current.Year(), current.Month()+time.Month(interval), 1,
				current.Hour(), current.Minute(), current.Second(), 0, time.UTC)
			day := min(d.ByMonthDay.MustGet(), daysIn(first.Year(), first.Month()))
			current = first.AddDate(0, 0, day-1)

		case d.Frequency == Yearly && d.ByMonth.IsPresent() && d.ByMonthDay.IsPresent():
			year := current.Year() + interval
			month := time.Month(d.ByMonth.MustGet() + 1)
			day := min(d.ByMonthDay.MustGet(), daysIn(year, month))
			current = time.Date(year, month, day,
				current.Hour(), current.Minute(), current.Second(), 0, time.UTC)

		default:
			g.log.Warn("rule generation stopped: unsupported frequency combination",
				"freq", d.Frequency,
				"byday", len(d.ByDay),
				"bymonthday", d.ByMonthDay.IsPresent(),
				"bymonth", d.ByMonth.IsPresent(),
			)
			return Expansion{Occurrences: out, Termination: Unsupported}
		}

		if !current.After(prev) {
			g.log.Warn("rule generation stopped: step did not advance", "freq", d.Frequency, "at", prev)
			return Expansion{Occurrences: out, Termination: Stalled}
		}
	}

	return Expansion{Occurrences: out, Termination: Completed}
}

func (d Descriptor) matchesDay(t time.Time) bool {
	idx := mondayIndex(t.Weekday())
	for i := range d.ByDay {
		if d.ByDay[i].Day() == idx {
			return true
		}
	}
	return false
}

// nextMatchingDay scans the seven days after t for a BYDAY weekday.
func (d Descriptor) nextMatchingDay(t time.Time) (time.Time, bool) {
	for i := 1; i <= 7; i++ {
		next := t.AddDate(0, 0, i)
		if d.matchesDay(next) {
			return next, true
		}
	}
	return time.Time{}, false
}

// mondayIndex maps time.Weekday onto rrule's numbering (Monday = 0).
func mondayIndex(w time.Weekday) int {
	return (int(w) + 6) % 7
}

func weekStart(t time.Time) time.Time {
	return dateOf(t).AddDate(0, 0, -mondayIndex(t.Weekday()))
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// inclusiveUpper widens a midnight bound to the last instant of its day.
func inclusiveUpper(t time.Time) time.Time {
	if t.Equal(dateOf(t)) {
		return t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return t
}
