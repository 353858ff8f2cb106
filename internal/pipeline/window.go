package pipeline

import "time"

// WindowOverride selects a non-scheduled time window for an ad-hoc
// `generate`/`interactive` run. Exactly one of Since or (From, To) is set;
// the zero value means "scheduled run" (computed from last_generated).
type WindowOverride struct {
	Since time.Duration
	From  time.Time
	To    time.Time
}

func (w *WindowOverride) isExplicit() bool {
	return w != nil && !w.From.IsZero()
}

func (w *WindowOverride) isSince() bool {
	return w != nil && w.Since > 0
}

// resolveWindow computes [from, to) per SPEC_FULL.md §4.5 Phase 1.
func resolveWindow(lastGenerated *time.Time, override *WindowOverride, now time.Time) (from, to time.Time, isOverrideRun bool) {
	switch {
	case override.isExplicit():
		return override.From, override.To, true
	case override.isSince():
		return now.Add(-override.Since), now, true
	case lastGenerated != nil:
		return *lastGenerated, now, false
	default:
		return now.Add(-7 * 24 * time.Hour), now, false
	}
}

// WindowFor exports resolveWindow's `from` computation for callers outside
// this package (the `generate`/`interactive` CLI commands) that need the
// same cutoff to bound their own pre-collection ingestion fetches.
func WindowFor(lastGenerated *time.Time, override *WindowOverride, now time.Time) (from, to time.Time) {
	from, to, _ = resolveWindow(lastGenerated, override, now)
	return from, to
}
