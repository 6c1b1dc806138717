// Package rule parses and expands the compact recurrence-rule dialect used
// for custom control schedules:
//
//	DTSTART:20250401T100000
//	RRULE:FREQ=WEEKLY;INTERVAL=2;BYDAY=MO,FR;BYHOUR=6,18;UNTIL=20251231T000000Z
//
// Several blocks may be joined with "---" (see ExpandSet).
package rule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/samber/mo"
	"github.com/teambition/rrule-go"
)

// Frequency is the FREQ value of a rule. Values other than the four
// constants are kept verbatim so generation can report them.
type Frequency string

const (
	Daily   Frequency = "DAILY"
	Weekly  Frequency = "WEEKLY"
	Monthly Frequency = "MONTHLY"
	Yearly  Frequency = "YEARLY"
)

// MaxInterval bounds INTERVAL so every step stays within time.Time
// calendar arithmetic.
const MaxInterval = 1 << 20

// Descriptor is a parsed rule block.
type Descriptor struct {
	Start     time.Time
	Frequency Frequency
	// Interval is within 1..MaxInterval.
	Interval int
	// ByHour keeps declaration order; it defaults to [0].
	ByHour     []int
	Until      mo.Option[time.Time]
	// ByDay is nil when BYDAY is absent and empty when it lists nothing.
	ByDay      []rrule.Weekday
	ByMonthDay mo.Option[int]
	// ByMonth is 0-based (January = 0).
	ByMonth mo.Option[int]
}

// ParseErrorKind classifies why a block could not be parsed.
type ParseErrorKind int

const (
	MissingDTSTART ParseErrorKind = iota + 1
	MissingRRULE
	MissingFREQ
	InvalidValue
)

var (
	ErrMissingDTSTART = errors.New("rule: missing DTSTART")
	ErrMissingRRULE   = errors.New("rule: missing RRULE")
	ErrMissingFREQ    = errors.New("rule: missing FREQ")
	ErrInvalidValue   = errors.New("rule: invalid value")
)

func (k ParseErrorKind) sentinel() error {
	switch k {
	case MissingDTSTART:
		return ErrMissingDTSTART
	case MissingRRULE:
		return ErrMissingRRULE
	case MissingFREQ:
		return ErrMissingFREQ
	default:
		return ErrInvalidValue
	}
}

func (k ParseErrorKind) String() string {
	switch k {
	case MissingDTSTART:
		return "missing DTSTART"
	case MissingRRULE:
		return "missing RRULE"
	case MissingFREQ:
		return "missing FREQ"
	case InvalidValue:
		return "invalid value"
	default:
		return "unknown"
	}
}

// ParseError is the only error type returned by Parse.
type ParseError struct {
	Kind  ParseErrorKind
	Key   string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	msg := "rule: " + e.Kind.String()
	if e.Key != "" {
		msg += fmt.Sprintf(" %s=%q", e.Key, e.Value)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *ParseError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.sentinel()}
	}
	return []error{e.Kind.sentinel(), e.Err}
}

func invalid(key, value string, err error) *ParseError {
	return &ParseError{Kind: InvalidValue, Key: key, Value: value, Err: err}
}

var weekdays = map[string]rrule.Weekday{
	"MO": rrule.MO,
	"TU": rrule.TU,
	"WE": rrule.WE,
	"TH": rrule.TH,
	"FR": rrule.FR,
	"SA": rrule.SA,
	"SU": rrule.SU,
}

// Parse reads one rule block. When a key or line appears more than once
// the last occurrence wins; unknown RRULE keys are ignored.
func Parse(text string) (Descriptor, error) {
	var dtstart, rruleLine *contentLine
	lines := lexBlock(text)
	for i := range lines {
		switch lines[i].Name {
		case "DTSTART":
			dtstart = &lines[i]
		case "RRULE":
			rruleLine = &lines[i]
		}
	}
	if dtstart == nil {
		return Descriptor{}, &ParseError{Kind: MissingDTSTART}
	}
	if rruleLine == nil {
		return Descriptor{}, &ParseError{Kind: MissingRRULE}
	}

	start, err := ParseCompact(dtstart.Value)
	if err != nil {
		return Descriptor{}, invalid("DTSTART", dtstart.Value, err)
	}

	d := Descriptor{
		Start:    start,
		Interval: 1,
		ByHour:   []int{0},
	}

	parts, bad := lexRRule(rruleLine.Value)
	if len(bad) > 0 {
		return Descriptor{}, invalid("RRULE", bad[0], errors.New("expected KEY=VALUE"))
	}

	for _, p := range parts {
		if err := d.apply(p); err != nil {
			return Descriptor{}, err
		}
	}
	if d.Frequency == "" {
		return Descriptor{}, &ParseError{Kind: MissingFREQ}
	}
	return d, nil
}

func (d *Descriptor) apply(p part) error {
	switch p.Key {
	case "FREQ":
		d.Frequency = Frequency(strings.ToUpper(p.Value))
	case "INTERVAL":
		n, err := strconv.Atoi(p.Value)
		if err != nil {
			return invalid(p.Key, p.Value, err)
		}
		if n < 1 || n > MaxInterval {
			return invalid(p.Key, p.Value, fmt.Errorf("must be within 1..%d", MaxInterval))
		}
		d.Interval = n
	case "BYHOUR":
		hours, err := intList(p, 0, 23)
		if err != nil {
			return err
		}
		if len(hours) > 0 {
			d.ByHour = hours
		}
	case "UNTIL":
		t, err := ParseCompact(p.Value)
		if err != nil {
			return invalid(p.Key, p.Value, err)
		}
		d.Until = mo.Some(t)
	case "BYDAY":
		days := make([]rrule.Weekday, 0)
		for _, code := range splitList(p.Value) {
			wd, ok := weekdays[strings.ToUpper(code)]
			if !ok {
				return invalid(p.Key, p.Value, fmt.Errorf("unknown weekday %q", code))
			}
			days = append(days, wd)
		}
		d.ByDay = days
	case "BYMONTHDAY":
		n, err := intInRange(p, p.Value, 1, 31)
		if err != nil {
			return err
		}
		d.ByMonthDay = mo.Some(n)
	case "BYMONTH":
		n, err := intInRange(p, p.Value, 1, 12)
		if err != nil {
			return err
		}
		d.ByMonth = mo.Some(n - 1)
	}
	return nil
}

func intList(p part, lo, hi int) ([]int, error) {
	var out []int
	for _, item := range splitList(p.Value) {
		n, err := intInRange(p, item, lo, hi)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func intInRange(p part, s string, lo, hi int) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, invalid(p.Key, p.Value, err)
	}
	if n < lo || n > hi {
		return 0, invalid(p.Key, p.Value, fmt.Errorf("%d outside %d..%d", n, lo, hi))
	}
	return n, nil
}

const (
	compactUTC      = "20060102T150405Z"
	compactDateTime = "20060102T150405"
	compactDate     = "20060102"
)

// ParseCompact parses YYYYMMDDTHHMMSS[Z] or YYYYMMDD as a wall-clock
// instant in UTC.
func ParseCompact(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{compactUTC, compactDateTime, compactDate} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized compact date-time %q", s)
}

// FormatCompactUTC renders t truncated to whole seconds as YYYYMMDDTHHMMSSZ.
func FormatCompactUTC(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(compactUTC)
}
