package rule

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teambition/rrule-go"

	"slawindow/internal/log/logtest"
)

func at(y int, m time.Month, d, h int) time.Time {
	return time.Date(y, m, d, h, 0, 0, 0, time.UTC)
}

func mustParse(t *testing.T, text string) Descriptor {
	t.Helper()
	d, err := Parse(text)
	require.NoError(t, err)
	return d
}

func TestGenerate(t *testing.T) {
	tests := []struct {
		name string
		rule string
		from time.Time
		to   time.Time
		want []time.Time
		term Termination
	}{
		{
			name: "daily with interval",
			rule: "DTSTART:20240101\nRRULE:FREQ=DAILY;INTERVAL=3;BYHOUR=8",
			from: at(2024, 1, 1, 0),
			to:   at(2024, 1, 10, 0),
			want: []time.Time{at(2024, 1, 1, 8), at(2024, 1, 4, 8), at(2024, 1, 7, 8), at(2024, 1, 10, 8)},
			term: Completed,
		},
		{
			name: "window trims early occurrences",
			rule: "DTSTART:20231225\nRRULE:FREQ=DAILY;BYHOUR=12",
			from: at(2023, 12, 30, 13),
			to:   at(2024, 1, 1, 12),
			want: []time.Time{at(2023, 12, 31, 12), at(2024, 1, 1, 12)},
			term: Completed,
		},
		{
			name: "hours follow declaration order",
			rule: "DTSTART:20240301\nRRULE:FREQ=DAILY;BYHOUR=18,6",
			from: at(2024, 3, 1, 0),
			to:   at(2024, 3, 2, 0),
			want: []time.Time{at(2024, 3, 1, 18), at(2024, 3, 1, 6), at(2024, 3, 2, 18), at(2024, 3, 2, 6)},
			term: Completed,
		},
		{
			name: "until stops before window end",
			rule: "DTSTART:20240101\nRRULE:FREQ=DAILY;UNTIL=20240103T000000Z",
			from: at(2024, 1, 1, 0),
			to:   at(2024, 2, 1, 0),
			want: []time.Time{at(2024, 1, 1, 0), at(2024, 1, 2, 0), at(2024, 1, 3, 0)},
			term: Completed,
		},
		{
			name: "until with a clock time is exact",
			rule: "DTSTART:20240101\nRRULE:FREQ=DAILY;BYHOUR=6,18;UNTIL=20240102T120000Z",
			from: at(2024, 1, 1, 0),
			to:   at(2024, 2, 1, 0),
			want: []time.Time{at(2024, 1, 1, 6), at(2024, 1, 1, 18), at(2024, 1, 2, 6)},
			term: Completed,
		},
		{
			name: "monthly clamps to short months",
			rule: "DTSTART:20200131\nRRULE:FREQ=MONTHLY;INTERVAL=1;BYMONTHDAY=31",
			from: at(2020, 1, 1, 0),
			to:   at(2020, 5, 1, 0),
			want: []time.Time{at(2020, 1, 31, 0), at(2020, 2, 29, 0), at(2020, 3, 31, 0), at(2020, 4, 30, 0)},
			term: Completed,
		},
		{
			name: "monthly clamp in a common year",
			rule: "DTSTART:20230131\nRRULE:FREQ=MONTHLY;BYMONTHDAY=31",
			from: at(2023, 1, 1, 0),
			to:   at(2023, 3, 1, 0),
			want: []time.Time{at(2023, 1, 31, 0), at(2023, 2, 28, 0)},
			term: Completed,
		},
		{
			name: "monthly every other month",
			rule: "DTSTART:20240115\nRRULE:FREQ=MONTHLY;INTERVAL=2;BYMONTHDAY=15;BYHOUR=9",
			from: at(2024, 1, 1, 0),
			to:   at(2024, 7, 31, 0),
			want: []time.Time{at(2024, 1, 15, 9), at(2024, 3, 15, 9), at(2024, 5, 15, 9), at(2024, 7, 15, 9)},
			term: Completed,
		},
		{
			name: "yearly on leap day clamps",
			rule: "DTSTART:20200229\nRRULE:FREQ=YEARLY;BYMONTH=2;BYMONTHDAY=29",
			from: at(2020, 1, 1, 0),
			to:   at(2024, 12, 31, 0),
			want: []time.Time{at(2020, 2, 29, 0), at(2021, 2, 28, 0), at(2022, 2, 28, 0), at(2023, 2, 28, 0), at(2024, 2, 29, 0)},
			term: Completed,
		},
		{
			name: "yearly moves to BYMONTH after the start",
			rule: "DTSTART:20240110\nRRULE:FREQ=YEARLY;INTERVAL=2;BYMONTH=6;BYMONTHDAY=30",
			from: at(2024, 1, 1, 0),
			to:   at(2029, 1, 1, 0),
			want: []time.Time{at(2024, 1, 10, 0), at(2026, 6, 30, 0), at(2028, 6, 30, 0)},
			term: Completed,
		},
		{
			name: "monthly without BYMONTHDAY stops after first date",
			rule: "DTSTART:20240101\nRRULE:FREQ=MONTHLY;BYHOUR=1,2",
			from: at(2024, 1, 1, 0),
			to:   at(2024, 12, 31, 0),
			want: []time.Time{at(2024, 1, 1, 1), at(2024, 1, 1, 2)},
			term: Unsupported,
		},
		{
			name: "yearly without BYMONTH stops",
			rule: "DTSTART:20240101\nRRULE:FREQ=YEARLY;BYMONTHDAY=1",
			from: at(2024, 1, 1, 0),
			to:   at(2030, 1, 1, 0),
			want: []time.Time{at(2024, 1, 1, 0)},
			term: Unsupported,
		},
		{
			name: "unrecognized frequency stops",
			rule: "DTSTART:20240101\nRRULE:FREQ=HOURLY",
			from: at(2024, 1, 1, 0),
			to:   at(2024, 1, 5, 0),
			want: []time.Time{at(2024, 1, 1, 0)},
			term: Unsupported,
		},
		{
			name: "weekly without BYDAY stops",
			rule: "DTSTART:20240101\nRRULE:FREQ=WEEKLY",
			from: at(2024, 1, 1, 0),
			to:   at(2024, 2, 1, 0),
			want: []time.Time{at(2024, 1, 1, 0)},
			term: Unsupported,
		},
		{
			name: "start after window end",
			rule: "DTSTART:20250101\nRRULE:FREQ=DAILY",
			from: at(2024, 1, 1, 0),
			to:   at(2024, 1, 31, 0),
			want: []time.Time{},
			term: Completed,
		},
		{
			name: "inverted window",
			rule: "DTSTART:20240101\nRRULE:FREQ=DAILY",
			from: at(2024, 2, 1, 0),
			to:   at(2024, 1, 1, 0),
			want: []time.Time{},
			term: Completed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGenerator(nil, 0)
			got := g.Generate(mustParse(t, tt.rule), tt.from, tt.to)
			assert.Equal(t, tt.want, got.Occurrences)
			assert.Equal(t, tt.term, got.Termination)
		})
	}
}

func TestGenerate_UnsupportedIsLogged(t *testing.T) {
	rec := &logtest.Recorder{}
	g := NewGenerator(rec, 0)
	got := g.Generate(mustParse(t, "DTSTART:20240101\nRRULE:FREQ=MONTHLY"), at(2024, 1, 1, 0), at(2024, 6, 1, 0))
	assert.Equal(t, Unsupported, got.Termination)
	assert.True(t, rec.Contains("unsupported frequency combination freq=MONTHLY"))
}

func TestGenerate_WeeklyOnlyEmitsByDay(t *testing.T) {
	// 2024-01-03 is a Wednesday.
	d := mustParse(t, "DTSTART:20240103T000000\nRRULE:FREQ=WEEKLY;BYDAY=MO,FR;BYHOUR=9")
	got := NewGenerator(nil, 0).Generate(d, at(2024, 1, 1, 0), at(2024, 3, 31, 0))

	require.Equal(t, Completed, got.Termination)
	require.NotEmpty(t, got.Occurrences)
	assert.Equal(t, at(2024, 1, 5, 9), got.Occurrences[0])
	for _, occ := range got.Occurrences {
		assert.Contains(t, []time.Weekday{time.Monday, time.Friday}, occ.Weekday(), occ)
	}
	// Jan 5 .. Mar 29: 13 Fridays, 12 Mondays.
	assert.Len(t, got.Occurrences, 25)
}

func TestGenerate_WeeklyIntervalSkipsWeeksAtBoundary(t *testing.T) {
	d := mustParse(t, "DTSTART:20240103\nRRULE:FREQ=WEEKLY;INTERVAL=2;BYDAY=MO,FR")
	got := NewGenerator(nil, 0).Generate(d, at(2024, 1, 1, 0), at(2024, 2, 5, 0))

	assert.Equal(t, []time.Time{
		at(2024, 1, 5, 0),
		at(2024, 1, 15, 0),
		at(2024, 1, 19, 0),
		at(2024, 1, 29, 0),
		at(2024, 2, 2, 0),
	}, got.Occurrences)
}

func TestGenerate_WeeklySingleDayInterval(t *testing.T) {
	// Sunday-only rule starting on a Sunday: every third Sunday.
	d := mustParse(t, "DTSTART:20240107\nRRULE:FREQ=WEEKLY;INTERVAL=3;BYDAY=SU")
	got := NewGenerator(nil, 0).Generate(d, at(2024, 1, 1, 0), at(2024, 3, 1, 0))

	assert.Equal(t, []time.Time{at(2024, 1, 7, 0), at(2024, 1, 28, 0), at(2024, 2, 18, 0)}, got.Occurrences)
}

func TestGenerate_EmptyByDayIsExhausted(t *testing.T) {
	rec := &logtest.Recorder{}
	d := mustParse(t, "DTSTART:20240101\nRRULE:FREQ=WEEKLY;BYDAY=")
	require.NotNil(t, d.ByDay)

	got := NewGenerator(rec, 0).Generate(d, at(2024, 1, 1, 0), at(2024, 1, 31, 0))
	assert.Equal(t, Exhausted, got.Termination)
	assert.Empty(t, got.Occurrences)
	assert.True(t, rec.Contains("no BYDAY match"))
}

func TestGenerate_Truncated(t *testing.T) {
	rec := &logtest.Recorder{}
	g := NewGenerator(rec, 5)
	got := g.Generate(mustParse(t, "DTSTART:20240101\nRRULE:FREQ=DAILY;BYHOUR=0,12"), at(2024, 1, 1, 0), at(2024, 12, 31, 0))

	assert.Equal(t, Truncated, got.Termination)
	assert.Len(t, got.Occurrences, 5)
	assert.True(t, rec.Contains("truncated"))
}

func TestGenerate_FarFutureUntilStopsAtWindow(t *testing.T) {
	d := mustParse(t, "DTSTART:20240101\nRRULE:FREQ=DAILY;UNTIL=99991231T000000Z")
	got := NewGenerator(nil, 0).Generate(d, at(2024, 1, 1, 0), at(2024, 1, 3, 0))
	assert.Equal(t, []time.Time{at(2024, 1, 1, 0), at(2024, 1, 2, 0), at(2024, 1, 3, 0)}, got.Occurrences)
}

func TestGenerate_InvertedSameDayWindow(t *testing.T) {
	d := mustParse(t, "DTSTART:20240101T000000\nRRULE:FREQ=DAILY;BYHOUR=10;UNTIL=20300101T000000Z")
	got := NewGenerator(nil, 0).Generate(d, time.Date(2024, 3, 1, 5, 0, 0, 0, time.UTC), at(2024, 3, 1, 0))

	assert.NotNil(t, got.Occurrences)
	assert.Empty(t, got.Occurrences)
	assert.Equal(t, Completed, got.Termination)
}

func TestGenerate_LargeIntervalTerminates(t *testing.T) {
	tests := []struct {
		name string
		rule string
		want []time.Time
	}{
		{name: "daily", rule: "FREQ=DAILY", want: []time.Time{at(2024, 1, 1, 0)}},
		// 2024-01-01 is a Monday; Friday shares its week.
		{name: "weekly", rule: "FREQ=WEEKLY;BYDAY=MO,FR", want: []time.Time{at(2024, 1, 1, 0), at(2024, 1, 5, 0)}},
		{name: "monthly", rule: "FREQ=MONTHLY;BYMONTHDAY=1", want: []time.Time{at(2024, 1, 1, 0)}},
		{name: "yearly", rule: "FREQ=YEARLY;BYMONTH=1;BYMONTHDAY=1", want: []time.Time{at(2024, 1, 1, 0)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := fmt.Sprintf("DTSTART:20240101\nRRULE:%s;INTERVAL=%d", tt.rule, MaxInterval)
			got := NewGenerator(nil, 0).Generate(mustParse(t, text), at(2024, 1, 1, 0), at(2099, 12, 31, 0))
			assert.Equal(t, tt.want, got.Occurrences)
			assert.Equal(t, Completed, got.Termination)

			// A descriptor built without Parse can still carry any interval.
			rec := &logtest.Recorder{}
			d := mustParse(t, "DTSTART:20240101\nRRULE:"+tt.rule)
			d.Interval = math.MaxInt
			got = NewGenerator(rec, 0).Generate(d, at(2024, 1, 1, 0), at(2099, 12, 31, 0))
			assert.Empty(t, got.Occurrences)
			assert.Equal(t, Stalled, got.Termination)
			assert.True(t, rec.Contains("interval out of range"))
		})
	}
}

func TestGenerate_Idempotent(t *testing.T) {
	d := mustParse(t, "DTSTART:20240103\nRRULE:FREQ=WEEKLY;INTERVAL=2;BYDAY=TU,TH,SA;BYHOUR=23,1")
	g := NewGenerator(nil, 0)
	first := g.Generate(d, at(2024, 1, 1, 0), at(2024, 6, 1, 0))
	second := g.Generate(d, at(2024, 1, 1, 0), at(2024, 6, 1, 0))
	assert.Equal(t, first, second)
}

// The DAILY and WEEKLY+BYDAY paths agree with an RFC 5545 implementation
// when hours are listed in ascending order.
func TestGenerate_MatchesRRuleGo(t *testing.T) {
	tests := []struct {
		name string
		text string
		opt  rrule.ROption
	}{
		{
			name: "daily interval 2",
			text: "DTSTART:20240105T000000\nRRULE:FREQ=DAILY;INTERVAL=2;BYHOUR=6,18;UNTIL=20240401T000000Z",
			opt: rrule.ROption{
				Freq:     rrule.DAILY,
				Interval: 2,
				Dtstart:  at(2024, 1, 5, 0),
				Byhour:   []int{6, 18},
				Until:    at(2024, 4, 1, 23),
			},
		},
		{
			name: "weekly interval 2 on weekdays",
			text: "DTSTART:20240103T000000\nRRULE:FREQ=WEEKLY;INTERVAL=2;BYDAY=MO,WE,FR;BYHOUR=9;UNTIL=20240630T000000Z",
			opt: rrule.ROption{
				Freq:      rrule.WEEKLY,
				Interval:  2,
				Wkst:      rrule.MO,
				Dtstart:   at(2024, 1, 3, 0),
				Byweekday: []rrule.Weekday{rrule.MO, rrule.WE, rrule.FR},
				Byhour:    []int{9},
				Until:     at(2024, 6, 30, 23),
			},
		},
		{
			name: "weekly weekend",
			text: "DTSTART:20240101T000000\nRRULE:FREQ=WEEKLY;BYDAY=SA,SU;BYHOUR=10;UNTIL=20240331T000000Z",
			opt: rrule.ROption{
				Freq:      rrule.WEEKLY,
				Interval:  1,
				Wkst:      rrule.MO,
				Dtstart:   at(2024, 1, 1, 0),
				Byweekday: []rrule.Weekday{rrule.SA, rrule.SU},
				Byhour:    []int{10},
				Until:     at(2024, 3, 31, 23),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := rrule.NewRRule(tt.opt)
			require.NoError(t, err)

			got := NewGenerator(nil, 0).Generate(mustParse(t, tt.text), at(2024, 1, 1, 0), at(2024, 12, 31, 0))
			assert.Equal(t, ref.All(), got.Occurrences)
		})
	}
}
