package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeekOfMonth(t *testing.T) {
	cases := map[int]int{1: 1, 7: 1, 8: 2, 14: 2, 15: 3, 21: 3, 22: 4, 30: 4, 31: 4}
	for day, want := range cases {
		assert.Equal(t, want, WeekOfMonth(day), "day %d", day)
	}
}

func TestZoneIndexWrapsAroundTwelveZones(t *testing.T) {
	require.Equal(t, 12, ZoneCount)
	assert.Equal(t, 1, ZoneIndex(1, 0))
	assert.Equal(t, 12, ZoneIndex(12, 0))
	assert.Equal(t, 1, ZoneIndex(12, 1))
	assert.Equal(t, 3, ZoneIndex(12, 3))

	seen := map[int]bool{}
	for month := 1; month <= 12; month++ {
		idx := ZoneIndex(month, 0)
		assert.True(t, idx >= 1 && idx <= 12)
		seen[idx] = true
	}
	assert.Len(t, seen, 12)
}

func TestResolveTarget(t *testing.T) {
	// Monday 10 March 2025
	today := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	target := ResolveTarget(today, nil, 0)
	assert.Equal(t, 0, target.DayOfWeek)
	assert.Equal(t, 2, target.WeekOfMonth)
	assert.Equal(t, "barberia", target.Niche)
	assert.Equal(t, 3, target.ZoneIndex)
	assert.Equal(t, "Chapultepec", target.ZoneName)
	assert.Equal(t, 15, target.ZoomLevel)

	assert.Equal(t, target, ResolveTarget(today, nil, 0), "same inputs give the same target")

	fallback := ResolveTarget(today, nil, 1)
	assert.Equal(t, 4, fallback.ZoneIndex)
	assert.Equal(t, 13, fallback.ZoomLevel)
	assert.Equal(t, target.Niche, fallback.Niche)
}

func TestResolveTargetDayOverride(t *testing.T) {
	today := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	assert.Equal(t, "estudio de yoga", ResolveTarget(today, ParseDayOverride("3"), 0).Niche)
	assert.Equal(t, "barberia", ResolveTarget(today, ParseDayOverride("9"), 0).Niche, "out of range override is ignored")
	assert.Nil(t, ParseDayOverride("jueves"))
}

func TestResolveTargetLastWeekOfMonth(t *testing.T) {
	// Sunday 30 November 2025
	target := ResolveTarget(time.Date(2025, 11, 30, 8, 0, 0, 0, time.UTC), nil, 0)
	assert.Equal(t, 4, target.WeekOfMonth)
	assert.Equal(t, 6, target.DayOfWeek)
	assert.Equal(t, "arquitectos", target.Niche)
	assert.Equal(t, 11, target.ZoneIndex)
}

func TestNicheForUnknownKeyFallsBack(t *testing.T) {
	assert.Equal(t, DefaultNiche, NicheFor(5, 0))
}

func TestSearchURL(t *testing.T) {
	target := ResolveTarget(time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC), nil, 0)
	require.Equal(t, "salon de belleza", target.Niche)

	u := target.SearchURL()
	assert.Contains(t, u, "/maps/search/salon+de+belleza/@20.6736000,-103.3440000,15z")
}
