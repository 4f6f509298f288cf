package skill

import (
	"errors"
	"fmt"
	"time"
)

// Storage layouts for snapshot times and calendar days. Both sort lexically in
// chronological order.
const (
	TimeLayout = "2006-01-02 15:04:05"
	DateLayout = "2006-01-02"
)

// ErrInvalidInput marks a batch or argument that violates the input contract.
var ErrInvalidInput = errors.New("invalid input")

// Record is one skill's state at one observation instant.
type Record struct {
	Rank          int     `json:"rank" db:"rank"`
	Name          string  `json:"name" db:"name"`
	Owner         string  `json:"owner" db:"owner"`
	Installs      int64   `json:"installs" db:"installs"`
	InstallsDelta int64   `json:"installs_delta" db:"installs_delta"`
	InstallsRate  float64 `json:"installs_rate" db:"installs_rate"`
	RankDelta     int     `json:"rank_delta" db:"rank_delta"`
	URL           string  `json:"url" db:"url"`
}

// Detail is the time-independent enrichment for a skill.
type Detail struct {
	Name              string   `json:"name"`
	Summary           string   `json:"summary"`
	Description       string   `json:"description"`
	UseCase           string   `json:"use_case"`
	Solves            []string `json:"solves"`
	Category          string   `json:"category"`
	CategoryLocalized string   `json:"category_zh"`
	RuleCount         int      `json:"rules_count"`
	Owner             string   `json:"owner"`
	URL               string   `json:"url"`
}

// Entry is a record joined with the parts of its detail used for reporting.
type Entry struct {
	Record
	Summary           string `json:"summary,omitempty"`
	Category          string `json:"category,omitempty"`
	CategoryLocalized string `json:"category_zh,omitempty"`
}

// NewEntry joins r with d. A nil detail leaves the enrichment fields empty.
func NewEntry(r Record, d *Detail) Entry {
	e := Entry{Record: r}
	if d != nil {
		e.Summary = d.Summary
		e.Category = d.Category
		e.CategoryLocalized = d.CategoryLocalized
	}
	return e
}

// HistoryPoint is the daily roll-up of a skill.
type HistoryPoint struct {
	Date     string `json:"date" db:"date"`
	Rank     int    `json:"rank" db:"rank"`
	Installs int64  `json:"installs" db:"installs"`
}

// SnapshotInfo describes one stored snapshot.
type SnapshotInfo struct {
	SnapshotTime string `json:"snapshot_time" db:"snapshot_time"`
	Date         string `json:"date" db:"date"`
	SkillCount   int    `json:"skill_count" db:"skill_count"`
}

// CategoryCount is one row of a category breakdown. An empty Category means the
// skill had no cached detail.
type CategoryCount struct {
	Category          string `json:"category" db:"category"`
	CategoryLocalized string `json:"category_zh" db:"category_zh"`
	Count             int    `json:"count" db:"count"`
}

// Movers holds the biggest rank gainers and losers of a snapshot.
type Movers struct {
	Rising  []Entry `json:"rising"`
	Falling []Entry `json:"falling"`
}

// FormatTime renders t in UTC with second precision.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// DateOf returns the calendar day of t in UTC.
func DateOf(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// ValidateDate checks that s is a YYYY-MM-DD day.
func ValidateDate(s string) error {
	if _, err := time.Parse(DateLayout, s); err != nil {
		return fmt.Errorf("%w: date %q: %v", ErrInvalidInput, s, err)
	}
	return nil
}

// ValidateBatch rejects batches with empty names, non-positive ranks, negative
// installs, or duplicate ranks or names.
func ValidateBatch(records []Record) error {
	ranks := make(map[int]string, len(records))
	names := make(map[string]bool, len(records))
	for i, r := range records {
		if r.Name == "" {
			return fmt.Errorf("%w: record %d has empty name", ErrInvalidInput, i)
		}
		if r.Rank < 1 {
			return fmt.Errorf("%w: %s has rank %d", ErrInvalidInput, r.Name, r.Rank)
		}
		if r.Installs < 0 {
			return fmt.Errorf("%w: %s has negative installs %d", ErrInvalidInput, r.Name, r.Installs)
		}
		if other, ok := ranks[r.Rank]; ok {
			return fmt.Errorf("%w: rank %d shared by %s and %s", ErrInvalidInput, r.Rank, other, r.Name)
		}
		if names[r.Name] {
			return fmt.Errorf("%w: duplicate name %s", ErrInvalidInput, r.Name)
		}
		ranks[r.Rank] = r.Name
		names[r.Name] = true
	}
	return nil
}
