// Package period expands the simple period keywords (yearly, monthly,
// weekly, daily, hourly) into the instants of a window.
package period

import (
	"errors"
	"fmt"
	"time"

	appLog "slawindow/internal/log"
)

// Period is one of the simple period keywords.
type Period string

const (
	Yearly  Period = "yearly"
	Monthly Period = "monthly"
	Weekly  Period = "weekly"
	Daily   Period = "daily"
	Hourly  Period = "hourly"
)

// All lists the simple periods in declaration order.
var All = []Period{Yearly, Monthly, Weekly, Daily, Hourly}

// maxYear bounds stepping so a window ending far in the future cannot wrap
// time.Time arithmetic.
const maxYear = 9999

var (
	ErrStepOverflow = errors.New("period: step overflows supported calendar range")
	ErrStepStalled  = errors.New("period: step did not advance")
)

// Parse reports whether s names a simple period.
func Parse(s string) (Period, bool) {
	for _, p := range All {
		if string(p) == s {
			return p, true
		}
	}
	return "", false
}

// StepFunc advances an instant by one unit of a period.
type StepFunc func(time.Time) (time.Time, error)

// Steppers is an immutable Period -> StepFunc mapping. The zero value has
// no entries; use DefaultSteppers.
type Steppers struct {
	m map[Period]StepFunc
}

// DefaultSteppers returns the calendar stepping for every simple period.
func DefaultSteppers() Steppers {
	return Steppers{m: map[Period]StepFunc{
		Yearly:  addDate(1, 0, 0),
		Monthly: addDate(0, 1, 0),
		Weekly:  addDate(0, 0, 7),
		Daily:   addDate(0, 0, 1),
		Hourly:  addDuration(time.Hour),
	}}
}

// With returns a copy of s where p steps with fn. s itself is unchanged.
func (s Steppers) With(p Period, fn StepFunc) Steppers {
	m := make(map[Period]StepFunc, len(s.m)+1)
	for k, v := range s.m {
		m[k] = v
	}
	m[p] = fn
	return Steppers{m: m}
}

// Lookup returns the step function registered for p.
func (s Steppers) Lookup(p Period) (StepFunc, bool) {
	fn, ok := s.m[p]
	return fn, ok
}

func addDate(years, months, days int) StepFunc {
	return func(t time.Time) (time.Time, error) {
		if t.Year()+years > maxYear {
			return time.Time{}, fmt.Errorf("%w: %s + %dy%dm%dd", ErrStepOverflow, t.Format(time.RFC3339), years, months, days)
		}
		return t.AddDate(years, months, days), nil
	}
}

func addDuration(d time.Duration) StepFunc {
	return func(t time.Time) (time.Time, error) {
		next := t.Add(d)
		if next.Year() > maxYear {
			return time.Time{}, fmt.Errorf("%w: %s + %s", ErrStepOverflow, t.Format(time.RFC3339), d)
		}
		return next, nil
	}
}

// Resolver walks a window with the step function of a period.
type Resolver struct {
	steppers       Steppers
	log            appLog.Logger
	maxOccurrences int
}

// NewResolver builds a Resolver. A nil logger discards diagnostics;
// maxOccurrences <= 0 disables the cap.
func NewResolver(steppers Steppers, logger appLog.Logger, maxOccurrences int) *Resolver {
	if logger == nil {
		logger = appLog.Discard()
	}
	return &Resolver{steppers: steppers, log: logger, maxOccurrences: maxOccurrences}
}

// Expand returns from, from+1p, from+2p, ... up to and including to.
// Any failure is logged and yields an empty result. Reaching the cap logs
// a truncation and returns the instants collected so far.
func (r *Resolver) Expand(from, to time.Time, p Period) (out []time.Time) {
	if from.IsZero() || to.IsZero() {
		r.log.Warn("period expansion skipped: window bound is not a valid instant",
			"period", p, "from", from, "to", to)
		return []time.Time{}
	}
	step, ok := r.steppers.Lookup(p)
	if !ok {
		r.log.Warn("period expansion skipped: no step function", "period", p)
		return []time.Time{}
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("period step panicked", fmt.Errorf("%v", rec), "period", p)
			out = []time.Time{}
		}
	}()

	out = make([]time.Time, 0)
	for current := from; !current.After(to); {
		if r.maxOccurrences > 0 && len(out) >= r.maxOccurrences {
			r.log.Warn("period expansion truncated", "period", p, "cap", r.maxOccurrences, "at", current)
			return out
		}
		out = append(out, current)
		next, err := step(current)
		if err != nil {
			r.log.Error("period step failed", err, "period", p, "at", current)
			return []time.Time{}
		}
		if !next.After(current) {
			r.log.Error("period step failed", ErrStepStalled, "period", p, "at", current)
			return []time.Time{}
		}
		current = next
	}
	return out
}
