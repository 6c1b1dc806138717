package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	ical "github.com/arran4/golang-ical"

	appLog "slawindow/internal/log"
	"slawindow/internal/rule"
)

// ErrNoRecurringEvents is returned when a feed holds no VEVENT with both
// DTSTART and RRULE.
var ErrNoRecurringEvents = errors.New("ics: no recurring events in feed")

// ImportRules converts every recurring VEVENT of an ICS payload into a
// DTSTART/RRULE block and joins the blocks with rule.Delimiter, in feed
// order. DTSTART keeps its wall-clock value; TZID and UTC markers are
// dropped. A rule without BYHOUR gets the DTSTART hour. Events without
// RRULE are skipped, as are events whose DTSTART cannot be read.
func ImportRules(body []byte) (string, error) {
	if len(body) == 0 {
		return "", errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("ics parse: %w", err)
	}

	blocks := make([]string, 0)
	for _, ve := range cal.Events() {
		block, err := ruleBlock(ve)
		if err != nil {
			appLog.Debug("ics vevent skipped", "uid", eventUID(ve), "reason", err.Error())
			continue
		}
		blocks = append(blocks, block)
	}
	if len(blocks) == 0 {
		return "", ErrNoRecurringEvents
	}

	appLog.Debug("ics rules imported", "events", len(cal.Events()), "rules", len(blocks))
	return strings.Join(blocks, "\n"+rule.Delimiter+"\n"), nil
}

func ruleBlock(ve *ical.VEvent) (string, error) {
	rrule := ve.GetProperty(ical.ComponentPropertyRrule)
	if rrule == nil || strings.TrimSpace(rrule.Value) == "" {
		return "", errors.New("no RRULE")
	}
	dtstart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtstart == nil {
		return "", errors.New("no DTSTART")
	}
	start, err := rule.ParseCompact(dtstart.Value)
	if err != nil {
		return "", err
	}
	value := strings.TrimSpace(rrule.Value)
	if !hasRulePart(value, "BYHOUR") {
		value += ";BYHOUR=" + strconv.Itoa(start.Hour())
	}
	return "DTSTART:" + start.Format("20060102T150405") + "\nRRULE:" + value, nil
}

// hasRulePart reports whether an RRULE value sets key.
func hasRulePart(value, key string) bool {
	for _, p := range strings.Split(value, ";") {
		k, _, _ := strings.Cut(p, "=")
		if strings.EqualFold(strings.TrimSpace(k), key) {
			return true
		}
	}
	return false
}

func eventUID(ve *ical.VEvent) string {
	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		return p.Value
	}
	return ""
}
