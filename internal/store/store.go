package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/elonfeng/skillradar/pkg/skill"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// ErrStorage marks failures of the underlying persistence. An operation that
// returns it must be treated as not applied.
var ErrStorage = errors.New("storage failure")

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

// Store is the persistence interface.
type Store interface {
	Initialize(ctx context.Context) error

	SaveSnapshot(ctx context.Context, snapshotTime time.Time, date string, records []skill.Record) error
	GetByDate(ctx context.Context, date string) ([]skill.Record, error)
	GetLastSnapshot(ctx context.Context, before time.Time) ([]skill.Record, error)

	SaveDetails(ctx context.Context, details []skill.Detail) error
	GetDetails(ctx context.Context, name string) (skill.Detail, bool, error)
	GetAllDetails(ctx context.Context) (map[string]skill.Detail, error)

	Cleanup(ctx context.Context, retentionDays int) (int64, error)
	GetSkillHistory(ctx context.Context, name string, days int) ([]skill.HistoryPoint, error)
	ListAvailableDates(ctx context.Context, limit int) ([]string, error)
	ListAvailableSnapshots(ctx context.Context, limit int) ([]skill.SnapshotInfo, error)

	CategoryStats(ctx context.Context, date string) ([]skill.CategoryCount, error)
	TopMovers(ctx context.Context, date string, limit int) (skill.Movers, error)

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db  *sqlx.DB
	now func() time.Time
	log *slog.Logger
}

var _ Store = (*SQLiteStore)(nil)

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithClock overrides the clock used for retention cutoffs and history windows.
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStore) { s.now = now }
}

// WithLogger sets the logger used for one-off maintenance messages.
func WithLogger(l *slog.Logger) Option {
	return func(s *SQLiteStore) { s.log = l }
}

// Open opens the SQLite database at path without touching the schema.
func Open(path string, opts ...Option) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, storageErr("open sqlite "+path, err)
	}
	// One connection keeps the single-writer model and avoids "database is locked".
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, storageErr("ping sqlite "+path, err)
	}
	return newStore(db, opts...), nil
}

// NewFromDB wraps an already opened database handle.
func NewFromDB(db *sql.DB, opts ...Option) *SQLiteStore {
	return newStore(sqlx.NewDb(db, "sqlite"), opts...)
}

func newStore(db *sqlx.DB, opts ...Option) *SQLiteStore {
	s := &SQLiteStore{db: db, now: time.Now, log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// New opens the database at path and initializes its schema.
func New(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	s, err := Open(path, opts...)
	if err != nil {
		return nil, err
	}
	if err := s.Initialize(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// With opens and initializes a store, runs fn, and closes the store on every
// exit path.
func With(ctx context.Context, path string, fn func(*SQLiteStore) error, opts ...Option) (err error) {
	s, err := New(ctx, path, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = storageErr("close", cerr)
		}
	}()
	return fn(s)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveSnapshot upserts records at snapshotTime and rolls them into the daily
// history, all inside one transaction.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snapshotTime time.Time, date string, records []skill.Record) error {
	if snapshotTime.IsZero() {
		return fmt.Errorf("%w: zero snapshot time", skill.ErrInvalidInput)
	}
	if err := skill.ValidateDate(date); err != nil {
		return err
	}
	if want := skill.DateOf(snapshotTime); date != want {
		return fmt.Errorf("%w: date %s does not match snapshot day %s", skill.ErrInvalidInput, date, want)
	}
	if err := skill.ValidateBatch(records); err != nil {
		return err
	}

	ts := skill.FormatTime(snapshotTime)
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return storageErr("begin save snapshot", err)
	}
	defer tx.Rollback()

	for _, r := range records {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO skills_snapshot
				(snapshot_time, date, rank, name, owner, installs, installs_delta, installs_rate, rank_delta, url)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(snapshot_time, name) DO UPDATE SET
				date = excluded.date,
				rank = excluded.rank,
				owner = excluded.owner,
				installs = excluded.installs,
				installs_delta = excluded.installs_delta,
				installs_rate = excluded.installs_rate,
				rank_delta = excluded.rank_delta,
				url = excluded.url
		`, ts, date, r.Rank, r.Name, r.Owner, r.Installs, r.InstallsDelta, r.InstallsRate, r.RankDelta, r.URL); err != nil {
			return storageErr("upsert snapshot "+r.Name, err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO skills_history (skill_name, date, rank, installs)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(skill_name, date) DO UPDATE SET
				rank = excluded.rank,
				installs = excluded.installs
		`, r.Name, date, r.Rank, r.Installs); err != nil {
			return storageErr("upsert history "+r.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit snapshot "+ts, err)
	}
	return nil
}

// snapshotColumns selects a skills_snapshot row as a skill.Record. Tables
// created by older releases allow NULL in the optional columns.
func snapshotColumns(prefix string) string {
	return prefix + "rank, " + prefix + "name, " +
		"COALESCE(" + prefix + "owner, '') AS owner, " +
		prefix + "installs, " +
		"COALESCE(" + prefix + "installs_delta, 0) AS installs_delta, " +
		"COALESCE(" + prefix + "installs_rate, 0) AS installs_rate, " +
		"COALESCE(" + prefix + "rank_delta, 0) AS rank_delta, " +
		"COALESCE(" + prefix + "url, '') AS url"
}

var recordColumns = snapshotColumns("")

// GetByDate returns the latest snapshot taken on date, ordered by rank.
func (s *SQLiteStore) GetByDate(ctx context.Context, date string) ([]skill.Record, error) {
	if err := skill.ValidateDate(date); err != nil {
		return nil, err
	}
	ts, ok, err := s.latestSnapshotOn(ctx, date)
	if err != nil || !ok {
		return nil, err
	}
	return s.recordsAt(ctx, ts)
}

// GetLastSnapshot returns the most recent snapshot strictly before before, or
// the newest one when before is zero. It is empty on a cold start.
func (s *SQLiteStore) GetLastSnapshot(ctx context.Context, before time.Time) ([]skill.Record, error) {
	var latest sql.NullString
	var err error
	if before.IsZero() {
		err = s.db.GetContext(ctx, &latest, "SELECT MAX(snapshot_time) FROM skills_snapshot")
	} else {
		err = s.db.GetContext(ctx, &latest,
			"SELECT MAX(snapshot_time) FROM skills_snapshot WHERE snapshot_time < ?", skill.FormatTime(before))
	}
	if err != nil {
		return nil, storageErr("find last snapshot", err)
	}
	if !latest.Valid {
		return nil, nil
	}
	return s.recordsAt(ctx, latest.String)
}

func (s *SQLiteStore) latestSnapshotOn(ctx context.Context, date string) (string, bool, error) {
	var latest sql.NullString
	if err := s.db.GetContext(ctx, &latest,
		"SELECT MAX(snapshot_time) FROM skills_snapshot WHERE date = ?", date); err != nil {
		return "", false, storageErr("find snapshot for "+date, err)
	}
	return latest.String, latest.Valid, nil
}

func (s *SQLiteStore) recordsAt(ctx context.Context, snapshotTime string) ([]skill.Record, error) {
	var records []skill.Record
	if err := s.db.SelectContext(ctx, &records,
		"SELECT "+recordColumns+" FROM skills_snapshot WHERE snapshot_time = ? ORDER BY rank",
		snapshotTime); err != nil {
		return nil, storageErr("read snapshot "+snapshotTime, err)
	}
	return records, nil
}

// detailRow mirrors skills_details. Legacy databases may hold NULLs in the
// optional columns.
type detailRow struct {
	Name              string         `db:"name"`
	Summary           sql.NullString `db:"summary"`
	Description       sql.NullString `db:"description"`
	UseCase           sql.NullString `db:"use_case"`
	Solves            sql.NullString `db:"solves"`
	Category          sql.NullString `db:"category"`
	CategoryLocalized sql.NullString `db:"category_zh"`
	RuleCount         sql.NullInt64  `db:"rules_count"`
	Owner             sql.NullString `db:"owner"`
	URL               sql.NullString `db:"url"`
}

func (r detailRow) detail() (skill.Detail, error) {
	d := skill.Detail{
		Name:              r.Name,
		Summary:           r.Summary.String,
		Description:       r.Description.String,
		UseCase:           r.UseCase.String,
		Category:          r.Category.String,
		CategoryLocalized: r.CategoryLocalized.String,
		RuleCount:         int(r.RuleCount.Int64),
		Owner:             r.Owner.String,
		URL:               r.URL.String,
	}
	if r.Solves.Valid && r.Solves.String != "" {
		if err := json.Unmarshal([]byte(r.Solves.String), &d.Solves); err != nil {
			return d, fmt.Errorf("decode solves of %s: %w", r.Name, err)
		}
	}
	return d, nil
}

const detailColumns = `name, summary, description, use_case, solves, category, category_zh, rules_count, owner, url`

// SaveDetails upserts details by name. The last write wins.
func (s *SQLiteStore) SaveDetails(ctx context.Context, details []skill.Detail) error {
	for i, d := range details {
		if d.Name == "" {
			return fmt.Errorf("%w: detail %d has empty name", skill.ErrInvalidInput, i)
		}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return storageErr("begin save details", err)
	}
	defer tx.Rollback()

	updated := skill.FormatTime(s.now())
	for _, d := range details {
		solves := d.Solves
		if solves == nil {
			solves = []string{}
		}
		solvesJSON, err := json.Marshal(solves)
		if err != nil {
			return fmt.Errorf("%w: encode solves of %s: %v", skill.ErrInvalidInput, d.Name, err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO skills_details
				(name, summary, description, use_case, solves, category, category_zh, rules_count, owner, url, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET
				summary = excluded.summary,
				description = excluded.description,
				use_case = excluded.use_case,
				solves = excluded.solves,
				category = excluded.category,
				category_zh = excluded.category_zh,
				rules_count = excluded.rules_count,
				owner = excluded.owner,
				url = excluded.url,
				updated_at = excluded.updated_at
		`, d.Name, d.Summary, d.Description, d.UseCase, string(solvesJSON), d.Category,
			d.CategoryLocalized, d.RuleCount, d.Owner, d.URL, updated); err != nil {
			return storageErr("upsert detail "+d.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit details", err)
	}
	return nil
}

// GetDetails returns the cached detail for name. found is false when none exists.
func (s *SQLiteStore) GetDetails(ctx context.Context, name string) (skill.Detail, bool, error) {
	var row detailRow
	err := s.db.GetContext(ctx, &row, "SELECT "+detailColumns+" FROM skills_details WHERE name = ?", name)
	if errors.Is(err, sql.ErrNoRows) {
		return skill.Detail{}, false, nil
	}
	if err != nil {
		return skill.Detail{}, false, storageErr("get detail "+name, err)
	}
	d, err := row.detail()
	if err != nil {
		return skill.Detail{}, false, storageErr("get detail "+name, err)
	}
	return d, true, nil
}

// GetAllDetails returns the whole detail cache keyed by name.
func (s *SQLiteStore) GetAllDetails(ctx context.Context) (map[string]skill.Detail, error) {
	var rows []detailRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT "+detailColumns+" FROM skills_details"); err != nil {
		return nil, storageErr("list details", err)
	}

	details := make(map[string]skill.Detail, len(rows))
	for _, row := range rows {
		d, err := row.detail()
		if err != nil {
			return nil, storageErr("list details", err)
		}
		details[d.Name] = d
	}
	return details, nil
}

// Cleanup deletes snapshot and history rows dated before today minus
// retentionDays. The detail cache is left alone. On failure the rows removed
// before the failing statement are still reported.
func (s *SQLiteStore) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays < 0 {
		return 0, fmt.Errorf("%w: negative retention %d", skill.ErrInvalidInput, retentionDays)
	}
	cutoff := skill.DateOf(s.now().AddDate(0, 0, -retentionDays))

	var total int64
	for _, table := range []string{"skills_snapshot", "skills_history"} {
		res, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE date < ?", cutoff)
		if err != nil {
			return total, storageErr("clean "+table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, storageErr("clean "+table, err)
		}
		total += n
	}

	if total > 0 {
		s.log.Info("removed expired rows", "rows", total, "cutoff", cutoff)
	}
	return total, nil
}

// GetSkillHistory returns the daily points of name from today minus days on,
// oldest first.
func (s *SQLiteStore) GetSkillHistory(ctx context.Context, name string, days int) ([]skill.HistoryPoint, error) {
	if days < 0 {
		return nil, fmt.Errorf("%w: negative window %d", skill.ErrInvalidInput, days)
	}
	cutoff := skill.DateOf(s.now().AddDate(0, 0, -days))

	var points []skill.HistoryPoint
	if err := s.db.SelectContext(ctx, &points, `
		SELECT date, rank, installs
		FROM skills_history
		WHERE skill_name = ? AND date >= ?
		ORDER BY date ASC
	`, name, cutoff); err != nil {
		return nil, storageErr("history of "+name, err)
	}
	return points, nil
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	return limit
}

// ListAvailableDates returns distinct snapshot dates, newest first.
func (s *SQLiteStore) ListAvailableDates(ctx context.Context, limit int) ([]string, error) {
	var dates []string
	if err := s.db.SelectContext(ctx, &dates,
		"SELECT DISTINCT date FROM skills_snapshot ORDER BY date DESC LIMIT ?",
		normalizeLimit(limit, 30)); err != nil {
		return nil, storageErr("list dates", err)
	}
	return dates, nil
}

// ListAvailableSnapshots returns snapshots with their record counts, newest first.
func (s *SQLiteStore) ListAvailableSnapshots(ctx context.Context, limit int) ([]skill.SnapshotInfo, error) {
	var snaps []skill.SnapshotInfo
	if err := s.db.SelectContext(ctx, &snaps, `
		SELECT snapshot_time, MAX(date) AS date, COUNT(*) AS skill_count
		FROM skills_snapshot
		GROUP BY snapshot_time
		ORDER BY snapshot_time DESC
		LIMIT ?
	`, normalizeLimit(limit, 50)); err != nil {
		return nil, storageErr("list snapshots", err)
	}
	return snaps, nil
}
