package trend

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/elonfeng/skillradar/pkg/skill"
)

// Default set sizes.
const (
	DefaultTopN         = 20
	DefaultMoversLimit  = 5
	DefaultSurgingLimit = 5
)

// Options sizes the classified sets.
type Options struct {
	TopN         int
	MoversLimit  int
	SurgingLimit int
}

func (o Options) withDefaults() Options {
	if o.TopN <= 0 {
		o.TopN = DefaultTopN
	}
	if o.MoversLimit <= 0 {
		o.MoversLimit = DefaultMoversLimit
	}
	if o.SurgingLimit <= 0 {
		o.SurgingLimit = DefaultSurgingLimit
	}
	return o
}

// Result is the classified comparison of a snapshot against its predecessor.
type Result struct {
	// Records are the current records, ordered by rank and annotated with deltas.
	Records    []skill.Record `json:"records"`
	Top        []skill.Entry  `json:"top"`
	NewEntries []skill.Entry  `json:"new_entries"`
	Dropped    []skill.Record `json:"dropped_entries"`
	Rising     []skill.Entry  `json:"rising"`
	Falling    []skill.Entry  `json:"falling"`
	Surging    []skill.Entry  `json:"surging"`
	// ColdStart is set when no prior snapshot existed.
	ColdStart bool `json:"cold_start"`
}

// SnapshotReader is the slice of the store the engine needs.
type SnapshotReader interface {
	GetLastSnapshot(ctx context.Context, before time.Time) ([]skill.Record, error)
}

// Engine compares each new snapshot against the most recent stored one.
type Engine struct {
	store SnapshotReader
	opts  Options
}

// NewEngine creates a trend engine reading prior snapshots from s.
func NewEngine(s SnapshotReader, opts Options) *Engine {
	return &Engine{store: s, opts: opts.withDefaults()}
}

// Analyze loads the snapshot preceding at and diffs current against it.
func (e *Engine) Analyze(ctx context.Context, current []skill.Record, at time.Time, details map[string]skill.Detail) (*Result, error) {
	if err := skill.ValidateBatch(current); err != nil {
		return nil, err
	}
	prior, err := e.store.GetLastSnapshot(ctx, at)
	if err != nil {
		return nil, fmt.Errorf("load prior snapshot: %w", err)
	}
	return Diff(current, prior, details, e.opts)
}

// Diff annotates current with deltas relative to prior and classifies the
// result. It performs no I/O.
func Diff(current, prior []skill.Record, details map[string]skill.Detail, opts Options) (*Result, error) {
	if err := skill.ValidateBatch(current); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	previous := make(map[string]skill.Record, len(prior))
	for _, p := range prior {
		previous[p.Name] = p
	}

	records := slices.Clone(current)
	slices.SortFunc(records, func(a, b skill.Record) int { return cmp.Compare(a.Rank, b.Rank) })

	res := &Result{ColdStart: len(prior) == 0}
	seen := make(map[string]bool, len(records))
	var carried []skill.Entry

	for i := range records {
		r := &records[i]
		seen[r.Name] = true

		p, ok := previous[r.Name]
		if !ok {
			r.RankDelta, r.InstallsDelta, r.InstallsRate = 0, 0, 0
			res.NewEntries = append(res.NewEntries, entry(*r, details))
			continue
		}

		r.RankDelta = p.Rank - r.Rank
		r.InstallsDelta = r.Installs - p.Installs
		r.InstallsRate = 0
		if p.Installs > 0 {
			r.InstallsRate = float64(r.InstallsDelta) / float64(p.Installs)
			carried = append(carried, entry(*r, details))
		}
	}
	res.Records = records

	for _, r := range records[:min(opts.TopN, len(records))] {
		res.Top = append(res.Top, entry(r, details))
	}

	for _, p := range prior {
		if !seen[p.Name] {
			res.Dropped = append(res.Dropped, p)
		}
	}

	var rising, falling []skill.Entry
	for _, r := range records {
		switch {
		case r.RankDelta > 0:
			rising = append(rising, entry(r, details))
		case r.RankDelta < 0:
			falling = append(falling, entry(r, details))
		}
	}
	slices.SortStableFunc(rising, func(a, b skill.Entry) int {
		return cmp.Or(cmp.Compare(b.RankDelta, a.RankDelta), cmp.Compare(a.Rank, b.Rank))
	})
	slices.SortStableFunc(falling, func(a, b skill.Entry) int {
		return cmp.Or(cmp.Compare(a.RankDelta, b.RankDelta), cmp.Compare(a.Rank, b.Rank))
	})
	slices.SortStableFunc(carried, func(a, b skill.Entry) int {
		return cmp.Or(cmp.Compare(b.InstallsRate, a.InstallsRate), cmp.Compare(a.Rank, b.Rank))
	})

	res.Rising = truncate(rising, opts.MoversLimit)
	res.Falling = truncate(falling, opts.MoversLimit)
	res.Surging = truncate(carried, opts.SurgingLimit)
	return res, nil
}

func entry(r skill.Record, details map[string]skill.Detail) skill.Entry {
	if d, ok := details[r.Name]; ok {
		return skill.NewEntry(r, &d)
	}
	return skill.NewEntry(r, nil)
}

func truncate(entries []skill.Entry, n int) []skill.Entry {
	if len(entries) > n {
		return entries[:n]
	}
	return entries
}
