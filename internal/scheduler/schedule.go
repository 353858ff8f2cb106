// Package scheduler computes wall-clock ticks for output channels and
// drives the bounded-concurrency generation loop.
package scheduler

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// kind discriminates the three schedule grammar variants in SPEC_FULL.md
// §6.2.
type kind int

const (
	kindDaily kind = iota
	kindWeekly
	kindCron
)

// Schedule is a parsed schedule descriptor. Cron schedules evaluate in
// UTC; Daily and Weekly evaluate in the channel's configured timezone.
type Schedule struct {
	kind  kind
	times []time.Time // wall-clock times-of-day, year/month/day irrelevant
	day   time.Weekday
	cron  cron.Schedule
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Parse parses a schedule string like "at:08:00,20:00",
// "weekly:monday,08:00", or "cron:0 8 * * *".
func Parse(s string) (*Schedule, error) {
	switch {
	case strings.HasPrefix(s, "at:"):
		raw := strings.TrimPrefix(s, "at:")
		var times []time.Time
		for _, part := range strings.Split(raw, ",") {
			t, err := parseHHMM(strings.TrimSpace(part))
			if err != nil {
				return nil, err
			}
			times = append(times, t)
		}
		sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
		return &Schedule{kind: kindDaily, times: times}, nil

	case strings.HasPrefix(s, "weekly:"):
		rest := strings.TrimPrefix(s, "weekly:")
		parts := strings.SplitN(rest, ",", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("scheduler: invalid weekly schedule %q: expected 'weekly:DAY,HH:MM'", s)
		}
		day, err := parseWeekday(strings.TrimSpace(parts[0]))
		if err != nil {
			return nil, err
		}
		t, err := parseHHMM(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, err
		}
		return &Schedule{kind: kindWeekly, day: day, times: []time.Time{t}}, nil

	case strings.HasPrefix(s, "cron:"):
		expr := strings.TrimPrefix(s, "cron:")
		sched, err := cronParser.Parse(expr)
		if err != nil {
			return nil, fmt.Errorf("scheduler: invalid cron expression %q: %w", expr, err)
		}
		return &Schedule{kind: kindCron, cron: sched}, nil

	default:
		return nil, fmt.Errorf("scheduler: invalid schedule %q: must start with 'at:', 'weekly:', or 'cron:'", s)
	}
}

func parseHHMM(s string) (time.Time, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("scheduler: invalid time %q: %w", s, err)
	}
	return t, nil
}

func parseWeekday(s string) (time.Weekday, error) {
	switch strings.ToLower(s) {
	case "monday", "mon":
		return time.Monday, nil
	case "tuesday", "tue":
		return time.Tuesday, nil
	case "wednesday", "wed":
		return time.Wednesday, nil
	case "thursday", "thu":
		return time.Thursday, nil
	case "friday", "fri":
		return time.Friday, nil
	case "saturday", "sat":
		return time.Saturday, nil
	case "sunday", "sun":
		return time.Sunday, nil
	default:
		return 0, fmt.Errorf("scheduler: unknown weekday %q", s)
	}
}

// NextTick computes the smallest strictly-future instant after `after`
// satisfying the schedule, evaluated in tz for Daily/Weekly and in UTC for
// Cron. Daily and Weekly probe a handful of candidate dates so that a
// spring-forward DST gap (where a local wall-clock time is skipped
// entirely) is stepped over rather than producing a stuck tick.
func (s *Schedule) NextTick(tz *time.Location, after time.Time) time.Time {
	switch s.kind {
	case kindCron:
		return s.cron.Next(after.UTC())

	case kindDaily:
		afterLocal := after.In(tz)
		today := afterLocal
		for dayOffset := 0; dayOffset < 4; dayOffset++ {
			date := today.AddDate(0, 0, dayOffset)
			for _, t := range s.times {
				candidate := time.Date(date.Year(), date.Month(), date.Day(), t.Hour(), t.Minute(), 0, 0, tz)
				if candidate.After(afterLocal) {
					return candidate.UTC()
				}
			}
		}
		return time.Time{}

	case kindWeekly:
		afterLocal := after.In(tz)
		t := s.times[0]
		daysAhead := (int(s.day) - int(afterLocal.Weekday()) + 7) % 7

		var candidateDate time.Time
		if daysAhead == 0 {
			candidate := time.Date(afterLocal.Year(), afterLocal.Month(), afterLocal.Day(), t.Hour(), t.Minute(), 0, 0, tz)
			if candidate.After(afterLocal) {
				return candidate.UTC()
			}
			candidateDate = afterLocal.AddDate(0, 0, 7)
		} else {
			candidateDate = afterLocal.AddDate(0, 0, daysAhead)
		}

		return time.Date(candidateDate.Year(), candidateDate.Month(), candidateDate.Day(), t.Hour(), t.Minute(), 0, 0, tz).UTC()
	}
	return time.Time{}
}

// IsDue reports whether the next tick after `after` is at or before now.
func (s *Schedule) IsDue(tz *time.Location, after, now time.Time) bool {
	next := s.NextTick(tz, after)
	if next.IsZero() {
		return false
	}
	return !next.After(now)
}
