package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseDaily(t *testing.T) {
	s, err := Parse("at:08:00,20:00")
	require.NoError(t, err)
	require.Equal(t, kindDaily, s.kind)
	require.Len(t, s.times, 2)
}

func TestParseWeekly(t *testing.T) {
	s, err := Parse("weekly:monday,08:00")
	require.NoError(t, err)
	require.Equal(t, time.Monday, s.day)
}

func TestParseCron(t *testing.T) {
	_, err := Parse("cron:0 8 * * *")
	require.NoError(t, err)
}

func TestParseInvalid(t *testing.T) {
	_, err := Parse("bogus")
	require.Error(t, err)
}

func TestDailyNextTick(t *testing.T) {
	tz, err := time.LoadLocation("Europe/Kyiv")
	require.NoError(t, err)

	s, err := Parse("at:08:00")
	require.NoError(t, err)

	after := time.Date(2026, 2, 10, 20, 0, 0, 0, time.UTC)
	next := s.NextTick(tz, after)
	require.False(t, next.IsZero())
	require.True(t, next.After(after))
}

// TestScenarioS1 mirrors seed scenario S1 from SPEC_FULL.md §8: a channel
// scheduled "at:08:00" Europe/Kyiv, last_generated 2026-02-10T20:00:00Z,
// should be due by 2026-02-11T06:00:00Z (08:00 Kyiv = 06:00 UTC in winter).
func TestScenarioS1(t *testing.T) {
	tz, err := time.LoadLocation("Europe/Kyiv")
	require.NoError(t, err)

	s, err := Parse("at:08:00")
	require.NoError(t, err)

	lastGenerated := time.Date(2026, 2, 10, 20, 0, 0, 0, time.UTC)
	tick := time.Date(2026, 2, 11, 6, 0, 0, 0, time.UTC)

	require.True(t, s.IsDue(tz, lastGenerated, tick))
	require.False(t, s.IsDue(tz, lastGenerated, lastGenerated.Add(time.Minute)))
}

func TestWeeklyWrapsToNextWeek(t *testing.T) {
	s, err := Parse("weekly:monday,08:00")
	require.NoError(t, err)

	// A Monday, time already passed -- must roll to next Monday.
	after := time.Date(2026, 2, 9, 9, 0, 0, 0, time.UTC) // Monday Feb 9 2026, 09:00
	next := s.NextTick(time.UTC, after)
	require.Equal(t, time.Monday, next.Weekday())
	require.True(t, next.After(after.AddDate(0, 0, 6)))
}
