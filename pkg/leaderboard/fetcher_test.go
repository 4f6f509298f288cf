package leaderboard

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elonfeng/skillradar/pkg/skill"
)

const pageHTML = `<!doctype html>
<html><body>
<h1>skills.sh</h1>
<pre>
## Skills Leaderboard

1

### remotion-best-practices

remotion-dev/skills

5.6K

2

### vercel-react-best-practices

vercel-labs/agent-skills

1.2M

3

### pdf

anthropics/skills

847
</pre>
</body></html>`

// Next.js pages stream the board inside a script string with escaped newlines.
const scriptHTML = `<html><body><script>self.__next_f.push([1,"## Skills Leaderboard\n\n1\n\n### frontend-design\n\nanthropics/skills\n\n3K"])</script></body></html>`

func serve(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "skillradar")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchParsesLeaderboard(t *testing.T) {
	srv := serve(t, http.StatusOK, pageHTML)
	f := NewFetcher(srv.URL+"/trending", "https://skills.sh/", time.Second)

	got, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []skill.Record{
		{Rank: 1, Name: "remotion-best-practices", Owner: "remotion-dev/skills", Installs: 5600,
			URL: "https://skills.sh/remotion-dev/skills/remotion-best-practices"},
		{Rank: 2, Name: "vercel-react-best-practices", Owner: "vercel-labs/agent-skills", Installs: 1_200_000,
			URL: "https://skills.sh/vercel-labs/agent-skills/vercel-react-best-practices"},
		{Rank: 3, Name: "pdf", Owner: "anthropics/skills", Installs: 847,
			URL: "https://skills.sh/anthropics/skills/pdf"},
	}, got)
	assert.NoError(t, skill.ValidateBatch(got))
}

func TestFetchParsesEscapedPayload(t *testing.T) {
	srv := serve(t, http.StatusOK, scriptHTML)
	got, err := NewFetcher(srv.URL, "https://skills.sh", 0).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "frontend-design", got[0].Name)
	assert.Equal(t, int64(3000), got[0].Installs)
}

func TestFetchErrors(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		srv := serve(t, http.StatusBadGateway, "")
		_, err := NewFetcher(srv.URL, "", time.Second).Fetch(context.Background())
		assert.ErrorContains(t, err, "status 502")
	})
	t.Run("no heading", func(t *testing.T) {
		srv := serve(t, http.StatusOK, "<html><body>maintenance</body></html>")
		_, err := NewFetcher(srv.URL, "", time.Second).Fetch(context.Background())
		assert.ErrorIs(t, err, ErrNoLeaderboard)
	})
	t.Run("no entries", func(t *testing.T) {
		srv := serve(t, http.StatusOK, "<pre>## Skills Leaderboard\n\nnothing yet</pre>")
		_, err := NewFetcher(srv.URL, "", time.Second).Fetch(context.Background())
		assert.ErrorIs(t, err, ErrNoLeaderboard)
	})
}

func TestParseInstalls(t *testing.T) {
	cases := map[string]int64{
		"5.6K":  5600,
		"12k":   12000,
		"1.25M": 1_250_000,
		"847":   847,
		" 3K ":  3000,
		"":      0,
		"n/a":   0,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseInstalls(in), in)
	}
}
