package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestResolveWindowExplicitOverride(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	override := &WindowOverride{From: from, To: to}

	gotFrom, gotTo, isOverride := resolveWindow(nil, override, time.Now())
	require.Equal(t, from, gotFrom)
	require.Equal(t, to, gotTo)
	require.True(t, isOverride)
}

func TestResolveWindowSince(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	override := &WindowOverride{Since: 24 * time.Hour}

	from, to, isOverride := resolveWindow(nil, override, now)
	require.Equal(t, now.Add(-24*time.Hour), from)
	require.Equal(t, now, to)
	require.True(t, isOverride)
}

func TestResolveWindowScheduledWithLastGenerated(t *testing.T) {
	last := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	now := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

	from, to, isOverride := resolveWindow(&last, nil, now)
	require.Equal(t, last, from)
	require.Equal(t, now, to)
	require.False(t, isOverride)
}

func TestResolveWindowFirstRunLooksBack7Days(t *testing.T) {
	now := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

	from, to, isOverride := resolveWindow(nil, nil, now)
	require.Equal(t, now.Add(-7*24*time.Hour), from)
	require.Equal(t, now, to)
	require.False(t, isOverride)
}
