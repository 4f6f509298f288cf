package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elonfeng/skillradar/internal/store"
	"github.com/elonfeng/skillradar/pkg/alert"
	"github.com/elonfeng/skillradar/pkg/skill"
	"github.com/elonfeng/skillradar/pkg/trend"
)

type fakeFetcher struct {
	records []skill.Record
	err     error
	started chan struct{}
	block   chan struct{}
}

func (f *fakeFetcher) Fetch(ctx context.Context) ([]skill.Record, error) {
	if f.block != nil {
		close(f.started)
		<-f.block
	}
	return f.records, f.err
}

type fakeSummarizer struct {
	mu    sync.Mutex
	asked []string
}

func (f *fakeSummarizer) Summarize(_ context.Context, records []skill.Record) ([]skill.Detail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []skill.Detail
	for _, r := range records {
		f.asked = append(f.asked, r.Name)
		out = append(out, skill.Detail{Name: r.Name, Summary: "about " + r.Name, Category: "dev", Owner: r.Owner})
	}
	return out, nil
}

type fakeNotifier struct {
	sent []*alert.Notification
	err  error
}

func (f *fakeNotifier) HasNotifiers() bool { return true }

func (f *fakeNotifier) Broadcast(_ context.Context, n *alert.Notification) error {
	f.sent = append(f.sent, n)
	return f.err
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newStore(t *testing.T, c *clock) *store.SQLiteStore {
	t.Helper()
	s, err := store.New(context.Background(), filepath.Join(t.TempDir(), "skills.db"), store.WithClock(c.now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func board(names ...string) []skill.Record {
	out := make([]skill.Record, len(names))
	for i, n := range names {
		out[i] = skill.Record{Rank: i + 1, Name: n, Owner: "o/" + n, Installs: int64(1000 - i*100)}
	}
	return out
}

func TestRunTwoCycles(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2026, 6, 10, 1, 0, 0, 0, time.UTC)}
	s := newStore(t, c)
	f := &fakeFetcher{records: board("a", "b", "c", "e")}
	sum := &fakeSummarizer{}
	n := &fakeNotifier{}

	p := New(f, s, trend.NewEngine(s, trend.Options{}), Options{DetailsTopN: 3, RetentionDays: 30},
		WithSummarizer(sum), WithNotifier(n), WithClock(c.now))

	first, err := p.Run(ctx)
	require.NoError(t, err)
	assert.True(t, first.Trends.ColdStart)
	assert.Equal(t, "2026-06-10 01:00:00", first.SnapshotTime)
	assert.Equal(t, 3, first.DetailsSaved)
	assert.True(t, first.Notified)
	assert.NotEmpty(t, first.RunID)
	assert.Equal(t, []string{"a", "b", "c"}, sum.asked)
	assert.Equal(t, "about a", first.Trends.Top[0].Summary)

	c.t = c.t.Add(24 * time.Hour)
	f.records = board("b", "a", "d")
	f.records[0].Installs = 1500

	second, err := p.Run(ctx)
	require.NoError(t, err)
	assert.False(t, second.Trends.ColdStart)
	assert.Equal(t, []string{"a", "b", "c", "d"}, sum.asked, "only the uncached top skill is summarized")
	assert.Equal(t, 1, second.DetailsSaved)
	require.Len(t, second.Trends.Rising, 1)
	assert.Equal(t, "b", second.Trends.Rising[0].Name)
	require.Len(t, second.Trends.Dropped, 2)
	assert.Equal(t, "c", second.Trends.Dropped[0].Name)
	assert.Equal(t, "e", second.Trends.Dropped[1].Name)
	require.Len(t, n.sent, 2)
	assert.Equal(t, "2026-06-11", n.sent[1].Date)

	dates, err := s.ListAvailableDates(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-06-11", "2026-06-10"}, dates)

	stored, err := s.GetByDate(ctx, "2026-06-11")
	require.NoError(t, err)
	assert.Equal(t, second.Trends.Records, stored)
}

func TestRunDryRunWritesNothing(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2026, 6, 10, 1, 0, 0, 0, time.UTC)}
	s := newStore(t, c)
	sum := &fakeSummarizer{}
	n := &fakeNotifier{}

	p := New(&fakeFetcher{records: board("a", "b")}, s, trend.NewEngine(s, trend.Options{}),
		Options{DetailsTopN: 5, DryRun: true}, WithSummarizer(sum), WithNotifier(n), WithClock(c.now))

	res, err := p.Run(ctx)
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Len(t, res.Trends.Records, 2)
	assert.Empty(t, sum.asked)
	assert.Empty(t, n.sent)

	dates, err := s.ListAvailableDates(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, dates)
}

func TestRunRejectsInvalidBoard(t *testing.T) {
	c := &clock{t: time.Date(2026, 6, 10, 1, 0, 0, 0, time.UTC)}
	s := newStore(t, c)
	sum := &fakeSummarizer{}
	records := board("a", "b")
	records[1].Name = "a"

	p := New(&fakeFetcher{records: records}, s, trend.NewEngine(s, trend.Options{}),
		Options{DetailsTopN: 5}, WithSummarizer(sum), WithClock(c.now))

	_, err := p.Run(context.Background())
	assert.ErrorIs(t, err, skill.ErrInvalidInput)
	assert.Empty(t, sum.asked)
}

func TestRunFetchFailure(t *testing.T) {
	c := &clock{t: time.Date(2026, 6, 10, 1, 0, 0, 0, time.UTC)}
	s := newStore(t, c)
	n := &fakeNotifier{}

	p := New(&fakeFetcher{err: errors.New("timeout")}, s, trend.NewEngine(s, trend.Options{}),
		Options{}, WithNotifier(n), WithClock(c.now))

	_, err := p.Run(context.Background())
	assert.ErrorContains(t, err, "fetch leaderboard: timeout")
	assert.Empty(t, n.sent)
}

func TestRunNotifyFailureKeepsSnapshot(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2026, 6, 10, 1, 0, 0, 0, time.UTC)}
	s := newStore(t, c)
	n := &fakeNotifier{err: errors.New("slack: 500")}

	p := New(&fakeFetcher{records: board("a")}, s, trend.NewEngine(s, trend.Options{}),
		Options{}, WithNotifier(n), WithClock(c.now))

	res, err := p.Run(ctx)
	require.NoError(t, err)
	assert.False(t, res.Notified)

	got, err := s.GetByDate(ctx, "2026-06-10")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestRunIsExclusive(t *testing.T) {
	c := &clock{t: time.Date(2026, 6, 10, 1, 0, 0, 0, time.UTC)}
	s := newStore(t, c)
	f := &fakeFetcher{records: board("a"), started: make(chan struct{}), block: make(chan struct{})}
	p := New(f, s, trend.NewEngine(s, trend.Options{}), Options{}, WithClock(c.now))

	done := make(chan error)
	go func() {
		_, err := p.Run(context.Background())
		done <- err
	}()

	<-f.started
	_, err := p.Run(context.Background())
	assert.ErrorIs(t, err, ErrRunning)

	close(f.block)
	assert.NoError(t, <-done)
}
