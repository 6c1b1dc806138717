package ics

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportRules(t *testing.T) {
	body, err := os.ReadFile("testdata/controls.ics")
	require.NoError(t, err)

	rules, err := ImportRules(body)
	require.NoError(t, err)

	want := "DTSTART:20250106T100000\nRRULE:FREQ=WEEKLY;BYDAY=MO,TH;BYHOUR=10\n" +
		"---\n" +
		"DTSTART:20250115T080000\nRRULE:FREQ=MONTHLY;BYMONTHDAY=15;BYHOUR=8"
	assert.Equal(t, want, rules)
}

func TestImportRules_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "empty", body: ""},
		{
			name: "no recurring events",
			body: "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nBEGIN:VEVENT\r\nUID:a\r\nDTSTART:20250101T090000Z\r\nEND:VEVENT\r\nEND:VCALENDAR\r\n",
		},
		{
			name: "rrule without readable dtstart",
			body: "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nBEGIN:VEVENT\r\nUID:a\r\nDTSTART:tomorrow\r\nRRULE:FREQ=DAILY\r\nEND:VEVENT\r\nEND:VCALENDAR\r\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ImportRules([]byte(tt.body))
			assert.Error(t, err)
		})
	}
}

func TestHasRulePart(t *testing.T) {
	assert.True(t, hasRulePart("FREQ=DAILY;byhour=9", "BYHOUR"))
	assert.False(t, hasRulePart("FREQ=DAILY;BYDAY=MO", "BYHOUR"))
}
