package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/elonfeng/skillradar/internal/config"
	"github.com/elonfeng/skillradar/internal/pipeline"
	"github.com/elonfeng/skillradar/internal/scheduler"
	"github.com/elonfeng/skillradar/internal/store"
	"github.com/elonfeng/skillradar/pkg/alert"
	"github.com/elonfeng/skillradar/pkg/leaderboard"
	"github.com/elonfeng/skillradar/pkg/report"
	"github.com/elonfeng/skillradar/pkg/server"
	"github.com/elonfeng/skillradar/pkg/skill"
	"github.com/elonfeng/skillradar/pkg/summarize"
	"github.com/elonfeng/skillradar/pkg/trend"
)

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(newLogger(cfg.Logging))
	return cfg, nil
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// withStore loads config, opens the store and runs fn against it.
func withStore(ctx context.Context, fn func(*config.Config, *store.SQLiteStore) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	return store.With(ctx, cfg.Database.Path, func(db *store.SQLiteStore) error {
		return fn(cfg, db)
	}, store.WithLogger(slog.Default()))
}

func trendOptions(cfg *config.Config) trend.Options {
	return trend.Options{
		TopN:         cfg.Trend.TopN,
		MoversLimit:  cfg.Trend.MoversLimit,
		SurgingLimit: cfg.Trend.SurgingLimit,
	}
}

func buildAlertManager(cfg *config.Config) *alert.Manager {
	var notifiers []alert.Notifier

	if cfg.Alerts.Slack.Enabled && cfg.Alerts.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewSlack(cfg.Alerts.Slack.WebhookURL))
	}
	if cfg.Alerts.Discord.Enabled && cfg.Alerts.Discord.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewDiscord(cfg.Alerts.Discord.WebhookURL))
	}
	if cfg.Alerts.Webhook.Enabled && cfg.Alerts.Webhook.URL != "" {
		notifiers = append(notifiers, alert.NewWebhook(cfg.Alerts.Webhook.URL, cfg.Alerts.Webhook.Secret))
	}

	return alert.NewManager(notifiers)
}

func buildPipeline(cfg *config.Config, db *store.SQLiteStore, dryRun bool) *pipeline.Pipeline {
	log := slog.Default()
	fetcher := leaderboard.NewFetcher(cfg.Leaderboard.URL, cfg.Leaderboard.BaseURL, cfg.Leaderboard.ParseTimeout())

	opts := []pipeline.Option{
		pipeline.WithLogger(log),
		pipeline.WithNotifier(buildAlertManager(cfg)),
	}
	if cfg.Summarizer.Enabled && cfg.Summarizer.APIKey != "" {
		opts = append(opts, pipeline.WithSummarizer(summarize.New(summarize.Config{
			Provider:    cfg.Summarizer.Provider,
			Model:       cfg.Summarizer.Model,
			APIKey:      cfg.Summarizer.APIKey,
			BaseURL:     cfg.Summarizer.BaseURL,
			Concurrency: cfg.Summarizer.Concurrency,
		}, log)))
		log.Debug("summarizer enabled", "provider", cfg.Summarizer.Provider, "model", cfg.Summarizer.Model)
	}

	return pipeline.New(fetcher, db, trend.NewEngine(db, trendOptions(cfg)), pipeline.Options{
		DetailsTopN:   cfg.Trend.DetailsTopN,
		RetentionDays: cfg.Database.RetentionDays,
		DryRun:        dryRun,
	}, opts...)
}

func runInit(ctx context.Context) error {
	return withStore(ctx, func(cfg *config.Config, db *store.SQLiteStore) error {
		fmt.Printf("database ready: %s\n", cfg.Database.Path)
		return nil
	})
}

func runCollect(ctx context.Context, dryRun, jsonOutput bool) error {
	return withStore(ctx, func(cfg *config.Config, db *store.SQLiteStore) error {
		res, err := buildPipeline(cfg, db, dryRun).Run(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(res)
		}
		return report.Render(os.Stdout, res.Trends, res.Date)
	})
}

func runTrends(ctx context.Context, jsonOutput bool) error {
	return withStore(ctx, func(cfg *config.Config, db *store.SQLiteStore) error {
		snaps, err := db.ListAvailableSnapshots(ctx, 1)
		if err != nil {
			return err
		}
		if len(snaps) == 0 {
			fmt.Println("no snapshots yet (try: skillradar collect)")
			return nil
		}

		latest, err := time.Parse(skill.TimeLayout, snaps[0].SnapshotTime)
		if err != nil {
			return fmt.Errorf("parse snapshot time: %w", err)
		}
		current, err := db.GetByDate(ctx, snaps[0].Date)
		if err != nil {
			return err
		}
		prior, err := db.GetLastSnapshot(ctx, latest)
		if err != nil {
			return err
		}
		details, err := db.GetAllDetails(ctx)
		if err != nil {
			return err
		}

		res, err := trend.Diff(current, prior, details, trendOptions(cfg))
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(res)
		}
		return report.Render(os.Stdout, res, snaps[0].Date)
	})
}

func runHistory(ctx context.Context, name string, days int) error {
	return withStore(ctx, func(cfg *config.Config, db *store.SQLiteStore) error {
		points, err := db.GetSkillHistory(ctx, name, days)
		if err != nil {
			return err
		}
		if len(points) == 0 {
			fmt.Printf("no history for %s in the last %d days\n", name, days)
			return nil
		}

		t := newTable(os.Stdout, "DATE", "RANK", "INSTALLS")
		for _, p := range points {
			t.AddRow(p.Date, fmt.Sprint(p.Rank), humanize.Comma(p.Installs))
		}
		return t.Render()
	})
}

func runSnapshots(ctx context.Context, limit int) error {
	return withStore(ctx, func(cfg *config.Config, db *store.SQLiteStore) error {
		snaps, err := db.ListAvailableSnapshots(ctx, limit)
		if err != nil {
			return err
		}
		if len(snaps) == 0 {
			fmt.Println("no snapshots yet (try: skillradar collect)")
			return nil
		}

		t := newTable(os.Stdout, "SNAPSHOT TIME", "DATE", "SKILLS")
		for _, s := range snaps {
			t.AddRow(s.SnapshotTime, s.Date, fmt.Sprint(s.SkillCount))
		}
		return t.Render()
	})
}

// resolveDate returns date, or the most recent stored day when it is empty.
func resolveDate(ctx context.Context, db *store.SQLiteStore, date string) (string, error) {
	if date != "" {
		return date, skill.ValidateDate(date)
	}
	dates, err := db.ListAvailableDates(ctx, 1)
	if err != nil {
		return "", err
	}
	if len(dates) == 0 {
		fmt.Println("no snapshots yet (try: skillradar collect)")
		return "", nil
	}
	return dates[0], nil
}

func runCategories(ctx context.Context, date string) error {
	return withStore(ctx, func(cfg *config.Config, db *store.SQLiteStore) error {
		date, err := resolveDate(ctx, db, date)
		if err != nil || date == "" {
			return err
		}
		stats, err := db.CategoryStats(ctx, date)
		if err != nil {
			return err
		}

		t := newTable(os.Stdout, "CATEGORY", "LOCALIZED", "SKILLS")
		for _, c := range stats {
			name := c.Category
			if name == "" {
				name = "(uncategorized)"
			}
			t.AddRow(name, c.CategoryLocalized, fmt.Sprint(c.Count))
		}
		return t.Render()
	})
}

func runMovers(ctx context.Context, date string, limit int) error {
	return withStore(ctx, func(cfg *config.Config, db *store.SQLiteStore) error {
		date, err := resolveDate(ctx, db, date)
		if err != nil || date == "" {
			return err
		}
		movers, err := db.TopMovers(ctx, date, limit)
		if err != nil {
			return err
		}

		t := newTable(os.Stdout, "DIRECTION", "RANK", "MOVE", "SKILL", "INSTALLS", "CATEGORY")
		for _, e := range movers.Rising {
			t.AddRow("rising", fmt.Sprint(e.Rank), fmt.Sprintf("+%d", e.RankDelta), e.Name, humanize.Comma(e.Installs), e.Category)
		}
		for _, e := range movers.Falling {
			t.AddRow("falling", fmt.Sprint(e.Rank), fmt.Sprint(e.RankDelta), e.Name, humanize.Comma(e.Installs), e.Category)
		}
		return t.Render()
	})
}

func runCleanup(ctx context.Context, days int) error {
	return withStore(ctx, func(cfg *config.Config, db *store.SQLiteStore) error {
		if days < 0 {
			days = cfg.Database.RetentionDays
		}
		removed, err := db.Cleanup(ctx, days)
		if err != nil {
			return err
		}
		fmt.Printf("removed %s rows older than %d days\n", humanize.Comma(removed), days)
		return nil
	})
}

func runServe(port int) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return withStore(ctx, func(cfg *config.Config, db *store.SQLiteStore) error {
		if port == 0 {
			port = cfg.Server.Port
		}
		srv := server.New(db, buildPipeline(cfg, db, false), port, slog.Default())
		return srv.ListenAndServe(ctx)
	})
}

func runDaemon(port int) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return withStore(ctx, func(cfg *config.Config, db *store.SQLiteStore) error {
		if port == 0 {
			port = cfg.Server.Port
		}
		p := buildPipeline(cfg, db, false)

		sched, err := scheduler.New(p, cfg.Schedule.Cron, true, slog.Default())
		if err != nil {
			return err
		}
		srv := server.New(db, p, port, slog.Default())

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			if err := sched.Run(gctx); err != nil && gctx.Err() == nil {
				return fmt.Errorf("scheduler: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			return srv.ListenAndServe(gctx)
		})

		err = g.Wait()
		slog.Info("shut down")
		return err
	})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
