package ics

import (
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slawindow/internal/log"
	"slawindow/internal/model"
	"slawindow/internal/schedule"
)

func TestExportCalendar(t *testing.T) {
	at := time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)
	occ := []model.Occurrence{
		makeOccurrence("audit", at),
		makeOccurrence("audit", at.AddDate(0, 0, 3)),
	}

	out := ExportCalendar("Audit", occ, at)
	assert.Contains(t, out, "METHOD:PUBLISH")
	assert.Contains(t, out, "UID:audit-20250106T100000Z")
	assert.Contains(t, out, "DTSTART:20250106T100000Z")

	cal, err := ical.ParseCalendar(strings.NewReader(out))
	require.NoError(t, err)
	assert.Len(t, cal.Events(), 2)
}

func TestExpandControls(t *testing.T) {
	eng := schedule.New(schedule.WithLogger(log.Discard()))
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC)

	controls := []model.Control{
		{ID: "backups", Period: "daily"},
		{ID: "audit", Period: schedule.CustomRules, Custom: &model.CustomConfig{
			Rules: "DTSTART:20250101T000000\nRRULE:FREQ=DAILY;BYHOUR=0",
			Wto:   to,
		}},
	}

	res, err := ExpandControls(eng, controls, from, to)
	require.NoError(t, err)
	assert.Empty(t, res.TruncatedControls)

	keys := make([]string, 0, len(res.Occurrences))
	for _, o := range res.Occurrences {
		keys = append(keys, o.InstanceKey)
	}
	assert.Equal(t, []string{
		"audit-20250101T000000Z", "backups-20250101T000000Z",
		"audit-20250102T000000Z", "backups-20250102T000000Z",
		"audit-20250103T000000Z", "backups-20250103T000000Z",
	}, keys)
}

func TestExpandControls_RecordsTruncation(t *testing.T) {
	eng := schedule.New(schedule.WithLogger(log.Discard()), schedule.WithMaxOccurrences(2))
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

	res, err := ExpandControls(eng, []model.Control{{
		ID: "audit", Period: schedule.CustomRules, Custom: &model.CustomConfig{
			Rules: "DTSTART:20250101T000000\nRRULE:FREQ=DAILY",
			Wto:   to,
		},
	}}, from, to)
	require.NoError(t, err)
	assert.Equal(t, []string{"audit"}, res.TruncatedControls)
	assert.Len(t, res.Occurrences, 2)
}

func TestExpandControls_BadWindow(t *testing.T) {
	eng := schedule.New(schedule.WithLogger(log.Discard()))
	from := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

	_, err := ExpandControls(eng, nil, from, from.AddDate(0, 0, -1))
	assert.Error(t, err)
	_, err = ExpandControls(eng, nil, time.Time{}, from)
	assert.Error(t, err)
}
