package alert

import (
	"context"
	"errors"
	"fmt"

	"github.com/elonfeng/skillradar/pkg/report"
	"github.com/elonfeng/skillradar/pkg/skill"
	"github.com/elonfeng/skillradar/pkg/trend"
)

// Notification is the daily digest sent to alert destinations.
type Notification struct {
	Title    string        `json:"title"`
	Date     string        `json:"date"`
	Headline string        `json:"headline"`
	Body     string        `json:"body"` // markdown digest
	Trends   *trend.Result `json:"trends"`
}

// NewNotification builds the digest notification for a trend result.
func NewNotification(res *trend.Result, date string) *Notification {
	return &Notification{
		Title:    report.Title(date),
		Date:     date,
		Headline: report.Headline(res),
		Body:     report.Markdown(res, date),
		Trends:   res,
	}
}

// highlights returns the entries worth linking in compact messages: rising
// first, then surging, without repeats.
func (n *Notification) highlights(limit int) []skill.Entry {
	if n.Trends == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []skill.Entry
	for _, set := range [][]skill.Entry{n.Trends.Rising, n.Trends.Surging} {
		for _, e := range set {
			if len(out) == limit {
				return out
			}
			if seen[e.Name] {
				continue
			}
			seen[e.Name] = true
			out = append(out, e)
		}
	}
	return out
}

// Notifier delivers alerts to a specific destination.
type Notifier interface {
	Name() string
	Send(ctx context.Context, n *Notification) error
}

// Manager broadcasts notifications to all registered notifiers.
type Manager struct {
	notifiers []Notifier
}

// NewManager creates a new alert manager.
func NewManager(notifiers []Notifier) *Manager {
	return &Manager{notifiers: notifiers}
}

// HasNotifiers returns true if at least one notifier is configured.
func (m *Manager) HasNotifiers() bool {
	return len(m.notifiers) > 0
}

// Broadcast sends a notification to all registered notifiers.
func (m *Manager) Broadcast(ctx context.Context, n *Notification) error {
	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func truncateText(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
