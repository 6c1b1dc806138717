package ics

import (
	"errors"
	"sort"
	"time"

	appLog "slawindow/internal/log"
	"slawindow/internal/model"
	"slawindow/internal/rule"
	"slawindow/internal/schedule"
)

// ExpandResult wraps the expanded occurrences of several controls and
// records which controls had a rule cut short by the occurrence cap.
type ExpandResult struct {
	Occurrences []model.Occurrence
	// TruncatedControls records IDs of controls with a truncated rule.
	TruncatedControls []string
}

// ExpandControls expands every control over [from, to] and returns the
// occurrences ordered by instant, then control ID.
func ExpandControls(eng *schedule.Engine, controls []model.Control, from, to time.Time) (ExpandResult, error) {
	var result ExpandResult

	if from.IsZero() || to.IsZero() {
		return result, errors.New("expand: window bound is missing")
	}
	if to.Before(from) {
		return result, errors.New("expand: to is before from")
	}

	all := make([]model.Occurrence, 0)
	for _, c := range controls {
		dates, truncated := expandControl(eng, c, from, to)
		if truncated {
			result.TruncatedControls = append(result.TruncatedControls, c.ID)
			appLog.Error("expand: truncated occurrences for control due to cap",
				errors.New("max occurrences reached"),
				"control", c.ID,
			)
		}
		for _, d := range dates {
			all = append(all, makeOccurrence(c.ID, d))
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].At.Equal(all[j].At) {
			return all[i].At.Before(all[j].At)
		}
		return all[i].ControlID < all[j].ControlID
	})
	result.Occurrences = all
	return result, nil
}

func expandControl(eng *schedule.Engine, c model.Control, from, to time.Time) ([]time.Time, bool) {
	if c.Period != schedule.CustomRules || c.Custom.Missing() {
		return eng.GetDates(from, to, c.Period, c.Custom), false
	}

	blocks, err := eng.Report(from, to, c.Custom)
	if err != nil {
		return []time.Time{}, false
	}
	out := make([]time.Time, 0)
	truncated := false
	for _, b := range blocks {
		if b.Expansion.Termination == rule.Truncated {
			truncated = true
		}
		out = append(out, b.Expansion.Occurrences...)
	}
	return out, truncated
}

// makeOccurrence keys an instant by control ID and compact UTC time.
func makeOccurrence(controlID string, at time.Time) model.Occurrence {
	return model.Occurrence{
		ControlID:   controlID,
		InstanceKey: controlID + "-" + rule.FormatCompactUTC(at),
		At:          at.UTC(),
	}
}
