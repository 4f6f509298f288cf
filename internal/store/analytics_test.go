package store

import (
	"context"
	"testing"

	"github.com/elonfeng/skillradar/pkg/skill"
	"github.com/elonfeng/skillradar/pkg/trend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategoryStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSnapshot(ctx, at(10, 8), "2026-06-10", []skill.Record{
		{Rank: 1, Name: "a", Installs: 10},
		{Rank: 2, Name: "b", Installs: 9},
		{Rank: 3, Name: "c", Installs: 8},
		{Rank: 4, Name: "d", Installs: 7},
		{Rank: 5, Name: "e", Installs: 6},
	}))
	require.NoError(t, s.SaveDetails(ctx, []skill.Detail{
		{Name: "a", Category: "dev", CategoryLocalized: "开发"},
		{Name: "b", Category: "dev", CategoryLocalized: "开发"},
		{Name: "c", Category: "design", CategoryLocalized: "设计"},
		{Name: "unlisted", Category: "ops", CategoryLocalized: "运维"},
	}))

	stats, err := s.CategoryStats(ctx, "2026-06-10")
	require.NoError(t, err)
	assert.Equal(t, []skill.CategoryCount{
		{Category: "", CategoryLocalized: "", Count: 2},
		{Category: "dev", CategoryLocalized: "开发", Count: 2},
		{Category: "design", CategoryLocalized: "设计", Count: 1},
	}, stats)

	none, err := s.CategoryStats(ctx, "2026-06-11")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCategoryStatsMergesBlankAndMissingCategory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSnapshot(ctx, at(10, 8), "2026-06-10", []skill.Record{
		{Rank: 1, Name: "a", Installs: 10},
		{Rank: 2, Name: "b", Installs: 9},
	}))
	require.NoError(t, s.SaveDetails(ctx, []skill.Detail{{Name: "a", Summary: "no category yet"}}))

	stats, err := s.CategoryStats(ctx, "2026-06-10")
	require.NoError(t, err)
	assert.Equal(t, []skill.CategoryCount{{Category: "", CategoryLocalized: "", Count: 2}}, stats)
}

// TestTopMoversAgreesWithEngine persists an engine-annotated snapshot and
// checks that the stored replay yields the same rising and falling sets.
func TestTopMoversAgreesWithEngine(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	prior := []skill.Record{
		{Rank: 1, Name: "p", Installs: 100},
		{Rank: 2, Name: "q", Installs: 90},
		{Rank: 3, Name: "r", Installs: 80},
		{Rank: 4, Name: "s", Installs: 70},
		{Rank: 5, Name: "t", Installs: 60},
		{Rank: 6, Name: "u", Installs: 50},
		{Rank: 7, Name: "v", Installs: 40},
	}
	current := []skill.Record{
		{Rank: 1, Name: "u", Installs: 130},
		{Rank: 2, Name: "s", Installs: 120},
		{Rank: 3, Name: "p", Installs: 110},
		{Rank: 4, Name: "v", Installs: 105},
		{Rank: 5, Name: "new", Installs: 100},
		{Rank: 6, Name: "q", Installs: 95},
		{Rank: 7, Name: "r", Installs: 81},
	}
	details := map[string]skill.Detail{
		"u": {Name: "u", Summary: "fast climber", Category: "dev", CategoryLocalized: "开发"},
		"q": {Name: "q", Summary: "slipping", Category: "data", CategoryLocalized: "数据"},
	}
	detailList := []skill.Detail{details["u"], details["q"]}

	require.NoError(t, s.SaveSnapshot(ctx, at(9, 8), "2026-06-09", prior))
	require.NoError(t, s.SaveDetails(ctx, detailList))

	engine := trend.NewEngine(s, trend.Options{})
	res, err := engine.Analyze(ctx, current, at(10, 8), details)
	require.NoError(t, err)
	require.NoError(t, s.SaveSnapshot(ctx, at(10, 8), "2026-06-10", res.Records))

	for _, limit := range []int{1, 2, 5} {
		movers, err := s.TopMovers(ctx, "2026-06-10", limit)
		require.NoError(t, err)

		assert.Equal(t, res.Rising[:min(limit, len(res.Rising))], movers.Rising, "rising limit %d", limit)
		assert.Equal(t, res.Falling[:min(limit, len(res.Falling))], movers.Falling, "falling limit %d", limit)
	}

	movers, err := s.TopMovers(ctx, "2026-06-10", 5)
	require.NoError(t, err)
	require.NotEmpty(t, movers.Rising)
	assert.Equal(t, "u", movers.Rising[0].Name)
	assert.Equal(t, "fast climber", movers.Rising[0].Summary)

	empty, err := s.TopMovers(ctx, "2026-06-01", 5)
	require.NoError(t, err)
	assert.Empty(t, empty.Rising)
	assert.Empty(t, empty.Falling)
}
