package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/elonfeng/skillradar/pkg/skill"
)

const leaderboardHeading = "## Skills Leaderboard"

// ErrNoLeaderboard is returned when the page has no parseable leaderboard.
var ErrNoLeaderboard = errors.New("leaderboard not found")

// rank, "### name", owner/repo, installs ("5.6K"), separated by blank lines.
var entryPattern = regexp.MustCompile(`(\d+)\n\n### ([\w.-]+)\n\n([\w.-]+/[\w.-]+)\n\n([\d.]+[KkMm]?)`)

// Fetcher downloads and parses the trending leaderboard.
type Fetcher struct {
	client  *http.Client
	url     string
	baseURL string
}

// NewFetcher creates a fetcher for the leaderboard page at url. Skill URLs are
// built as baseURL/owner/name.
func NewFetcher(url, baseURL string, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{
		client:  &http.Client{Timeout: timeout},
		url:     url,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Fetch returns the current leaderboard in page order.
func (f *Fetcher) Fetch(ctx context.Context) ([]skill.Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create leaderboard request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; skillradar/1.0)")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch leaderboard: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("leaderboard status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse leaderboard html: %w", err)
	}

	records, err := f.Parse(doc.Text())
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Parse extracts leaderboard entries from the page text. The page embeds the
// board as markdown, either literally or inside an escaped script payload.
func (f *Fetcher) Parse(text string) ([]skill.Record, error) {
	text = strings.ReplaceAll(text, `\n`, "\n")
	text = strings.ReplaceAll(text, "\r\n", "\n")

	start := strings.Index(text, leaderboardHeading)
	if start < 0 {
		return nil, ErrNoLeaderboard
	}

	var records []skill.Record
	for _, m := range entryPattern.FindAllStringSubmatch(text[start:], -1) {
		rank, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		name, owner := m[2], m[3]
		records = append(records, skill.Record{
			Rank:     rank,
			Name:     name,
			Owner:    owner,
			Installs: ParseInstalls(m[4]),
			URL:      fmt.Sprintf("%s/%s/%s", f.baseURL, owner, name),
		})
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no entries after heading", ErrNoLeaderboard)
	}
	return records, nil
}

// ParseInstalls converts a display count such as "5.6K" or "1.2M" to an
// integer. Unparseable input yields 0.
func ParseInstalls(s string) int64 {
	s = strings.ToUpper(strings.TrimSpace(s))
	mult := 1.0
	switch {
	case strings.HasSuffix(s, "K"):
		mult = 1_000
		s = strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		mult = 1_000_000
		s = strings.TrimSuffix(s, "M")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0
	}
	return int64(v*mult + 0.5)
}
