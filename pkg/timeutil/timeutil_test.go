package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	testCases := []struct {
		name   string
		input  string
		hour   int
		minute int
		ok     bool
	}{
		{name: "padded", input: "09:30", hour: 9, minute: 30, ok: true},
		{name: "single_digit_hour", input: "8:05", hour: 8, minute: 5, ok: true},
		{name: "surrounding_spaces", input: " 14 : 15 ", hour: 14, minute: 15, ok: true},
		{name: "seconds_rejected", input: "10:00:00"},
		{name: "hour_out_of_range", input: "24:00"},
		{name: "minute_out_of_range", input: "10:60"},
		{name: "empty", input: ""},
		{name: "garbage", input: "noon"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h, m, ok := ParseClock(tc.input)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.hour, h)
				assert.Equal(t, tc.minute, m)
			}
		})
	}
}

func TestParseLocalDateTime(t *testing.T) {
	got, ok := ParseLocalDateTime("2025-01-20T00:00:00")
	require.True(t, ok)
	assert.True(t, Date(2025, time.January, 20).Equal(got))

	got, ok = ParseLocalDateTime("2025-03-03T08:15:00.123")
	require.True(t, ok)
	assert.Equal(t, 8, got.Hour())
	assert.Equal(t, 15, got.Minute())

	got, ok = ParseLocalDateTime("2025-06-01T10:00:00Z")
	require.True(t, ok)
	assert.Equal(t, 12, got.Hour(), "UTC 10:00 is 12:00 CEST")

	_, ok = ParseLocalDateTime("not a date")
	assert.False(t, ok)

	_, ok = ParseLocalDateTime("   ")
	assert.False(t, ok)
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("2024-10-01")
	require.NoError(t, err)
	assert.True(t, Date(2024, time.October, 1).Equal(got))
	assert.Equal(t, "2024-10-01", FormatDate(got))

	_, err = ParseDate("01.10.2024")
	assert.Error(t, err)
}

func TestDateInRange(t *testing.T) {
	from := Date(2025, time.January, 10)
	to := Date(2025, time.January, 12)

	assert.True(t, DateInRange(DateTime(2025, time.January, 10, 0, 0), from, to))
	assert.True(t, DateInRange(DateTime(2025, time.January, 12, 23, 59), from, to))
	assert.False(t, DateInRange(DateTime(2025, time.January, 9, 23, 59), from, to))
	assert.False(t, DateInRange(DateTime(2025, time.January, 13, 0, 0), from, to))
}

func TestAddDaysAcrossDST(t *testing.T) {
	day := Date(2025, time.March, 29)
	next := AddDays(day, 2)

	assert.True(t, Date(2025, time.March, 31).Equal(next))
	assert.Equal(t, 0, next.Hour())
	assert.True(t, StartOfDay(AtClock(next, 23, 0)).Equal(next))
}
