package store

import (
	"context"

	"github.com/elonfeng/skillradar/pkg/skill"
)

// CategoryStats counts the skills of the latest snapshot on date per detail
// category. Skills without a cached detail are grouped under an empty category.
func (s *SQLiteStore) CategoryStats(ctx context.Context, date string) ([]skill.CategoryCount, error) {
	if err := skill.ValidateDate(date); err != nil {
		return nil, err
	}
	ts, ok, err := s.latestSnapshotOn(ctx, date)
	if err != nil || !ok {
		return nil, err
	}

	var stats []skill.CategoryCount
	if err := s.db.SelectContext(ctx, &stats, `
		SELECT COALESCE(d.category, '') AS category,
			COALESCE(MAX(d.category_zh), '') AS category_zh,
			COUNT(*) AS count
		FROM skills_snapshot s
		LEFT JOIN skills_details d ON s.name = d.name
		WHERE s.snapshot_time = ?
		GROUP BY COALESCE(d.category, '')
		ORDER BY count DESC, category ASC
	`, ts); err != nil {
		return nil, storageErr("category stats for "+date, err)
	}
	return stats, nil
}

// moverRow is a snapshot row joined with its detail.
type moverRow struct {
	skill.Record
	Summary           string `db:"summary"`
	Category          string `db:"category"`
	CategoryLocalized string `db:"category_zh"`
}

// TopMovers replays the rising/falling ordering of the trend engine against
// the deltas persisted in the latest snapshot on date.
func (s *SQLiteStore) TopMovers(ctx context.Context, date string, limit int) (skill.Movers, error) {
	var movers skill.Movers
	if err := skill.ValidateDate(date); err != nil {
		return movers, err
	}
	ts, ok, err := s.latestSnapshotOn(ctx, date)
	if err != nil || !ok {
		return movers, err
	}
	limit = normalizeLimit(limit, 5)

	if movers.Rising, err = s.movers(ctx, ts, "s.rank_delta > 0", "s.rank_delta DESC", limit); err != nil {
		return movers, err
	}
	if movers.Falling, err = s.movers(ctx, ts, "s.rank_delta < 0", "s.rank_delta ASC", limit); err != nil {
		return movers, err
	}
	return movers, nil
}

func (s *SQLiteStore) movers(ctx context.Context, ts, filter, order string, limit int) ([]skill.Entry, error) {
	var rows []moverRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT `+snapshotColumns("s.")+`,
			COALESCE(d.summary, '') AS summary,
			COALESCE(d.category, '') AS category,
			COALESCE(d.category_zh, '') AS category_zh
		FROM skills_snapshot s
		LEFT JOIN skills_details d ON s.name = d.name
		WHERE s.snapshot_time = ? AND `+filter+`
		ORDER BY `+order+`, s.rank ASC
		LIMIT ?
	`, ts, limit); err != nil {
		return nil, storageErr("top movers at "+ts, err)
	}

	var entries []skill.Entry
	for _, row := range rows {
		entries = append(entries, skill.Entry{
			Record:            row.Record,
			Summary:           row.Summary,
			Category:          row.Category,
			CategoryLocalized: row.CategoryLocalized,
		})
	}
	return entries, nil
}
