package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elonfeng/skillradar/pkg/skill"
	"github.com/elonfeng/skillradar/pkg/trend"
)

func diff(t *testing.T) *trend.Result {
	t.Helper()
	prior := []skill.Record{
		{Rank: 1, Name: "a", Installs: 10_000},
		{Rank: 2, Name: "b", Installs: 8_000},
		{Rank: 3, Name: "gone", Installs: 500},
	}
	current := []skill.Record{
		{Rank: 1, Name: "b", Installs: 12_000, URL: "https://skills.sh/o/r/b"},
		{Rank: 2, Name: "a", Installs: 10_100},
		{Rank: 3, Name: "fresh", Installs: 900},
	}
	details := map[string]skill.Detail{
		"b": {Name: "b", Summary: "React rules", Category: "frontend"},
	}
	res, err := trend.Diff(current, prior, details, trend.Options{})
	require.NoError(t, err)
	return res
}

func TestMarkdown(t *testing.T) {
	out := Markdown(diff(t), "2026-06-10")

	assert.Contains(t, out, "# Skills Trending Daily - 2026-06-10")
	assert.Contains(t, out, "3 skills tracked, 1 new, 1 dropped, 2 surging")
	assert.Contains(t, out, "1. [b](https://skills.sh/o/r/b) 12,000 installs (▲1) [frontend] React rules")
	assert.Contains(t, out, "## Rising\n\n- [b](https://skills.sh/o/r/b) up 1 to #1")
	assert.Contains(t, out, "## Falling\n\n- **a** down 1 to #2")
	assert.Contains(t, out, "+4,000 installs (+50.0%)")
	assert.Contains(t, out, "## New entries\n\n- **fresh** enters at #3")
	assert.Contains(t, out, "## Dropped\n\n- **gone** (was #3)")
}

func TestMarkdownColdStart(t *testing.T) {
	res, err := trend.Diff([]skill.Record{{Rank: 1, Name: "a", Installs: 5}}, nil, nil, trend.Options{})
	require.NoError(t, err)

	out := Markdown(res, "2026-06-10")
	assert.Contains(t, out, "first snapshot")
	assert.NotContains(t, out, "## New entries")
	assert.NotContains(t, out, "## Rising")
	assert.Contains(t, out, "1. **a** 5 installs\n")
}
