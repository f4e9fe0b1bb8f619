package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestDaysIn(t *testing.T) {
	assert.Equal(t, 31, DaysIn(2024, time.January))
	assert.Equal(t, 29, DaysIn(2024, time.February))
	assert.Equal(t, 28, DaysIn(2023, time.February))
	assert.Equal(t, 30, DaysIn(2024, time.April))
	assert.Equal(t, 31, DaysIn(2024, time.December))
}

func TestNextDaily(t *testing.T) {
	tests := []struct {
		name     string
		from     string
		hour     int
		expected string
	}{
		{"later today", "2024-01-01T10:00:00Z", 14, "2024-01-01T14:00:00Z"},
		{"hour already passed", "2024-01-01T15:30:00Z", 14, "2024-01-02T14:00:00Z"},
		{"exactly on the hour", "2024-01-01T14:00:00Z", 14, "2024-01-01T14:00:00Z"},
		{"one second past", "2024-01-01T14:00:01Z", 14, "2024-01-02T14:00:00Z"},
		{"year rollover", "2024-12-31T23:10:00Z", 0, "2025-01-01T00:00:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextDaily(at(tt.from), tt.hour, time.UTC)
			require.NoError(t, err)
			assert.Equal(t, at(tt.expected), got.UTC())
		})
	}
}

func TestNextDailyRejectsBadHour(t *testing.T) {
	_, err := NextDaily(at("2024-01-01T10:00:00Z"), 24, time.UTC)
	assert.ErrorIs(t, err, ErrNoOccurrence)
}

func TestNextWeekly(t *testing.T) {
	// 2024-01-02 is a Tuesday.
	tests := []struct {
		name     string
		from     string
		weekday  time.Weekday
		hour     int
		expected string
	}{
		{"upcoming friday same week", "2024-01-02T09:00:00Z", time.Friday, 14, "2024-01-05T14:00:00Z"},
		{"same weekday later hour", "2024-01-02T09:00:00Z", time.Tuesday, 10, "2024-01-02T10:00:00Z"},
		{"same weekday hour passed", "2024-01-02T09:00:00Z", time.Tuesday, 8, "2024-01-09T08:00:00Z"},
		{"earlier weekday wraps", "2024-01-02T09:00:00Z", time.Monday, 9, "2024-01-08T09:00:00Z"},
		{"sunday", "2024-01-02T09:00:00Z", time.Sunday, 0, "2024-01-07T00:00:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextWeekly(at(tt.from), tt.weekday, tt.hour, time.UTC)
			require.NoError(t, err)
			assert.Equal(t, at(tt.expected), got.UTC())
		})
	}
}

func TestNextMonthly(t *testing.T) {
	tests := []struct {
		name     string
		from     string
		day      int
		hour     int
		overflow Overflow
		expected string
	}{
		{"day exists this month", "2024-01-20T10:00:00Z", 31, 9, Skip, "2024-01-31T09:00:00Z"},
		{"february skipped", "2024-02-20T10:00:00Z", 31, 9, Skip, "2024-03-31T09:00:00Z"},
		{"february clamped", "2024-02-20T10:00:00Z", 31, 9, Clamp, "2024-02-29T09:00:00Z"},
		{"clamp in non leap year", "2023-02-01T00:00:00Z", 30, 6, Clamp, "2023-02-28T06:00:00Z"},
		{"day passed rolls to next month", "2024-01-20T10:00:00Z", 5, 9, Skip, "2024-02-05T09:00:00Z"},
		{"april skipped to may", "2024-04-01T00:00:00Z", 31, 12, Skip, "2024-05-31T12:00:00Z"},
		{"same day hour not passed", "2024-03-15T08:00:00Z", 15, 9, Skip, "2024-03-15T09:00:00Z"},
		{"december to january", "2024-12-31T10:00:00Z", 31, 9, Skip, "2025-01-31T09:00:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextMonthly(at(tt.from), tt.day, tt.hour, time.UTC, tt.overflow)
			require.NoError(t, err)
			assert.Equal(t, at(tt.expected), got.UTC())
		})
	}
}

func TestNextMonthlyRejectsBadDay(t *testing.T) {
	_, err := NextMonthly(at("2024-01-01T00:00:00Z"), 32, 9, time.UTC, Skip)
	assert.ErrorIs(t, err, ErrNoOccurrence)
	_, err = NextMonthly(at("2024-01-01T00:00:00Z"), 0, 9, time.UTC, Skip)
	assert.ErrorIs(t, err, ErrNoOccurrence)
}

func TestOccurrenceUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	// 10:00Z is 12:00 local, so 14:00 local is 12:00Z the same day.
	got, err := NextDaily(at("2024-01-01T10:00:00Z"), 14, loc)
	require.NoError(t, err)
	assert.Equal(t, at("2024-01-01T12:00:00Z"), got.UTC())
}

func TestParseOverflow(t *testing.T) {
	o, err := ParseOverflow("Clamp")
	require.NoError(t, err)
	assert.Equal(t, Clamp, o)

	o, err = ParseOverflow("")
	require.NoError(t, err)
	assert.Equal(t, Skip, o)

	_, err = ParseOverflow("round")
	assert.Error(t, err)
}
