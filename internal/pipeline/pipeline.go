package pipeline

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/elonfeng/skillradar/internal/metrics"
	"github.com/elonfeng/skillradar/pkg/alert"
	"github.com/elonfeng/skillradar/pkg/skill"
	"github.com/elonfeng/skillradar/pkg/trend"
)

// ErrRunning is returned when a cycle is requested while another is in progress.
var ErrRunning = errors.New("ingestion cycle already running")

// Fetcher produces the current leaderboard.
type Fetcher interface {
	Fetch(ctx context.Context) ([]skill.Record, error)
}

// Summarizer produces details for skills missing from the cache.
type Summarizer interface {
	Summarize(ctx context.Context, records []skill.Record) ([]skill.Detail, error)
}

// Notifier delivers the digest.
type Notifier interface {
	HasNotifiers() bool
	Broadcast(ctx context.Context, n *alert.Notification) error
}

// Store is the persistence the pipeline writes through.
type Store interface {
	trend.SnapshotReader
	SaveSnapshot(ctx context.Context, snapshotTime time.Time, date string, records []skill.Record) error
	SaveDetails(ctx context.Context, details []skill.Detail) error
	GetAllDetails(ctx context.Context) (map[string]skill.Detail, error)
	Cleanup(ctx context.Context, retentionDays int) (int64, error)
}

// Options tunes a cycle.
type Options struct {
	DetailsTopN   int // only the top N ranks are summarized
	RetentionDays int // 0 disables cleanup
	DryRun        bool
}

// Result describes one finished cycle.
type Result struct {
	RunID        string        `json:"run_id"`
	SnapshotTime string        `json:"snapshot_time"`
	Date         string        `json:"date"`
	Trends       *trend.Result `json:"trends"`
	DetailsSaved int           `json:"details_saved"`
	RowsRemoved  int64         `json:"rows_removed"`
	Notified     bool          `json:"notified"`
	DryRun       bool          `json:"dry_run"`
}

// Pipeline runs ingestion cycles: fetch, analyze, persist, notify, clean up.
type Pipeline struct {
	fetcher    Fetcher
	store      Store
	engine     *trend.Engine
	summarizer Summarizer
	notifier   Notifier
	opts       Options
	now        func() time.Time
	log        *slog.Logger

	mu sync.Mutex
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithSummarizer enables detail enrichment.
func WithSummarizer(s Summarizer) Option {
	return func(p *Pipeline) { p.summarizer = s }
}

// WithNotifier enables digest delivery.
func WithNotifier(n Notifier) Option {
	return func(p *Pipeline) { p.notifier = n }
}

// WithClock overrides the snapshot clock.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// New creates a pipeline.
func New(f Fetcher, s Store, e *trend.Engine, opts Options, options ...Option) *Pipeline {
	p := &Pipeline{
		fetcher: f,
		store:   s,
		engine:  e,
		opts:    opts,
		now:     time.Now,
		log:     slog.Default(),
	}
	for _, o := range options {
		o(p)
	}
	return p
}

// Run executes one ingestion cycle. Only one cycle runs at a time; a
// concurrent call returns ErrRunning.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	if !p.mu.TryLock() {
		return nil, ErrRunning
	}
	defer p.mu.Unlock()

	started := time.Now()
	res, stage, err := p.run(ctx)
	elapsed := time.Since(started).Seconds()

	switch {
	case err != nil:
		metrics.RecordError(stage)
		metrics.RecordCycle("failed", elapsed)
	case res.DryRun:
		metrics.RecordCycle("dry_run", elapsed)
	default:
		metrics.RecordCycle("success", elapsed)
	}
	return res, err
}

func (p *Pipeline) run(ctx context.Context) (*Result, string, error) {
	at := p.now().UTC().Truncate(time.Second)
	res := &Result{
		RunID:        uuid.NewString(),
		SnapshotTime: skill.FormatTime(at),
		Date:         skill.DateOf(at),
		DryRun:       p.opts.DryRun,
	}
	log := p.log.With("run_id", res.RunID, "snapshot_time", res.SnapshotTime)
	log.Info("ingestion cycle started", "dry_run", res.DryRun)

	records, err := p.fetcher.Fetch(ctx)
	if err != nil {
		log.Error("fetch leaderboard", "error", err)
		return nil, "fetch", fmt.Errorf("fetch leaderboard: %w", err)
	}
	log.Info("leaderboard fetched", "skills", len(records))

	if err := skill.ValidateBatch(records); err != nil {
		log.Error("validate leaderboard", "error", err)
		return nil, "validate", fmt.Errorf("validate leaderboard: %w", err)
	}

	details, err := p.store.GetAllDetails(ctx)
	if err != nil {
		log.Error("load details", "error", err)
		return nil, "load_details", fmt.Errorf("load details: %w", err)
	}
	if details == nil {
		details = make(map[string]skill.Detail)
	}

	var fresh []skill.Detail
	if p.summarizer != nil && !p.opts.DryRun {
		fresh, err = p.summarize(ctx, records, details)
		if err != nil {
			log.Error("summarize details", "error", err)
			return nil, "summarize", err
		}
		for _, d := range fresh {
			details[d.Name] = d
		}
		log.Info("details summarized", "count", len(fresh))
	}

	trends, err := p.engine.Analyze(ctx, records, at, details)
	if err != nil {
		log.Error("analyze trends", "error", err)
		return nil, "analyze", fmt.Errorf("analyze trends: %w", err)
	}
	res.Trends = trends
	metrics.RecordTrendSets(len(trends.Records), len(trends.Top), len(trends.NewEntries),
		len(trends.Dropped), len(trends.Rising), len(trends.Falling), len(trends.Surging))

	if p.opts.DryRun {
		log.Info("dry run: skipping writes")
		return res, "", nil
	}

	if len(fresh) > 0 {
		if err := p.store.SaveDetails(ctx, fresh); err != nil {
			log.Error("save details", "error", err)
			return nil, "save_details", fmt.Errorf("save details: %w", err)
		}
		res.DetailsSaved = len(fresh)
		metrics.DetailsSummarized.Add(float64(len(fresh)))
	}

	if err := p.store.SaveSnapshot(ctx, at, res.Date, trends.Records); err != nil {
		log.Error("save snapshot", "error", err)
		return nil, "save_snapshot", fmt.Errorf("save snapshot: %w", err)
	}
	log.Info("snapshot saved", "skills", len(trends.Records),
		"new", len(trends.NewEntries), "dropped", len(trends.Dropped), "cold_start", trends.ColdStart)

	if p.notifier != nil && p.notifier.HasNotifiers() {
		// Delivery failures do not undo a saved snapshot.
		if err := p.notifier.Broadcast(ctx, alert.NewNotification(trends, res.Date)); err != nil {
			metrics.RecordError("notify")
			log.Warn("deliver digest", "error", err)
		} else {
			res.Notified = true
		}
	}

	if p.opts.RetentionDays > 0 {
		removed, err := p.store.Cleanup(ctx, p.opts.RetentionDays)
		res.RowsRemoved = removed
		metrics.CleanupRows.Add(float64(removed))
		if err != nil {
			metrics.RecordError("cleanup")
			log.Warn("retention cleanup", "error", err, "removed", removed)
		}
	}

	log.Info("ingestion cycle finished", "notified", res.Notified, "rows_removed", res.RowsRemoved)
	return res, "", nil
}

// summarize asks for details of the top-ranked skills not yet cached.
func (p *Pipeline) summarize(ctx context.Context, records []skill.Record, cached map[string]skill.Detail) ([]skill.Detail, error) {
	if p.opts.DetailsTopN <= 0 {
		return nil, nil
	}
	ranked := slices.Clone(records)
	slices.SortFunc(ranked, func(a, b skill.Record) int { return cmp.Compare(a.Rank, b.Rank) })

	var missing []skill.Record
	for _, r := range ranked[:min(p.opts.DetailsTopN, len(ranked))] {
		if _, ok := cached[r.Name]; !ok {
			missing = append(missing, r)
		}
	}
	if len(missing) == 0 {
		return nil, nil
	}
	return p.summarizer.Summarize(ctx, missing)
}
