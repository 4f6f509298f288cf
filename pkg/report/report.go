package report

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/elonfeng/skillradar/pkg/skill"
	"github.com/elonfeng/skillradar/pkg/trend"
)

// Title returns the digest headline for a day.
func Title(date string) string {
	return "Skills Trending Daily - " + date
}

// Headline summarises the set sizes of a result in one line.
func Headline(res *trend.Result) string {
	if res.ColdStart {
		return fmt.Sprintf("%d skills tracked, first snapshot (no comparison yet)", len(res.Records))
	}
	return fmt.Sprintf("%d skills tracked, %d new, %d dropped, %d surging",
		len(res.Records), len(res.NewEntries), len(res.Dropped), len(res.Surging))
}

// Markdown renders the full digest to a string.
func Markdown(res *trend.Result, date string) string {
	var buf bytes.Buffer
	_ = Render(&buf, res, date)
	return buf.String()
}

// Render writes a markdown digest of res to w. Empty sections are omitted.
func Render(w io.Writer, res *trend.Result, date string) error {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n%s\n", Title(date), Headline(res))

	if len(res.Top) > 0 {
		fmt.Fprintf(&b, "\n## Top %d\n\n", len(res.Top))
		for _, e := range res.Top {
			fmt.Fprintf(&b, "%d. %s %s installs%s%s\n", e.Rank, link(e.Record), humanize.Comma(e.Installs),
				rankMove(e.RankDelta, res.ColdStart), summary(e))
		}
	}

	section(&b, "Rising", res.Rising, func(e skill.Entry) string {
		return fmt.Sprintf("%s up %d to #%d%s", link(e.Record), e.RankDelta, e.Rank, summary(e))
	})
	section(&b, "Falling", res.Falling, func(e skill.Entry) string {
		return fmt.Sprintf("%s down %d to #%d%s", link(e.Record), -e.RankDelta, e.Rank, summary(e))
	})
	section(&b, "Surging", res.Surging, func(e skill.Entry) string {
		return fmt.Sprintf("%s +%s installs (%s)%s", link(e.Record), humanize.Comma(e.InstallsDelta),
			percent(e.InstallsRate), summary(e))
	})
	if !res.ColdStart {
		section(&b, "New entries", res.NewEntries, func(e skill.Entry) string {
			return fmt.Sprintf("%s enters at #%d%s", link(e.Record), e.Rank, summary(e))
		})
	}

	if len(res.Dropped) > 0 {
		b.WriteString("\n## Dropped\n\n")
		for _, r := range res.Dropped {
			fmt.Fprintf(&b, "- %s (was #%d)\n", link(r), r.Rank)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func section(b *strings.Builder, heading string, entries []skill.Entry, line func(skill.Entry) string) {
	if len(entries) == 0 {
		return
	}
	fmt.Fprintf(b, "\n## %s\n\n", heading)
	for _, e := range entries {
		fmt.Fprintf(b, "- %s\n", line(e))
	}
}

func link(r skill.Record) string {
	if r.URL == "" {
		return "**" + r.Name + "**"
	}
	return fmt.Sprintf("[%s](%s)", r.Name, r.URL)
}

func summary(e skill.Entry) string {
	switch {
	case e.Summary != "" && e.Category != "":
		return fmt.Sprintf(" [%s] %s", e.Category, e.Summary)
	case e.Summary != "":
		return " " + e.Summary
	}
	return ""
}

func rankMove(delta int, cold bool) string {
	switch {
	case cold || delta == 0:
		return ""
	case delta > 0:
		return fmt.Sprintf(" (▲%d)", delta)
	default:
		return fmt.Sprintf(" (▼%d)", -delta)
	}
}

// percent formats a growth ratio, e.g. 0.25 as "+25.0%".
func percent(rate float64) string {
	return fmt.Sprintf("%+.1f%%", rate*100)
}
