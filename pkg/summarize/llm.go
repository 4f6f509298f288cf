package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/elonfeng/skillradar/pkg/skill"
)

const detailPrompt = `You are cataloguing AI agent skills published on a public leaderboard.

Skill: %s
Owner: %s
Page: %s

Describe what this skill does for a developer deciding whether to install it.

Respond with a single JSON object with these fields:
- "summary": one sentence, at most 120 characters
- "description": two or three sentences
- "use_case": the typical situation where it helps
- "solves": array of at most 3 short problem statements
- "category": one lowercase English word such as "frontend", "backend", "devops", "data", "design", "docs", "testing", "security", "productivity"
- "category_zh": the same category in Simplified Chinese
- "rules_count": number of distinct rules or guidelines the skill contains, 0 if unknown

Return ONLY the JSON object, no other text.`

// Config configures the LLM client.
type Config struct {
	Provider    string // "openai" or "anthropic"
	Model       string
	APIKey      string
	BaseURL     string
	Concurrency int
}

// Summarizer asks an LLM to describe and categorise skills.
type Summarizer struct {
	client      *http.Client
	provider    string
	model       string
	apiKey      string
	baseURL     string
	concurrency int
	log         *slog.Logger
}

// New creates a summarizer. A nil logger uses slog.Default.
func New(cfg Config, log *slog.Logger) *Summarizer {
	model := cfg.Model
	if model == "" {
		switch cfg.Provider {
		case "anthropic":
			model = "claude-sonnet-4-20250514"
		default:
			model = "gpt-4o-mini"
		}
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if log == nil {
		log = slog.Default()
	}
	return &Summarizer{
		client:      &http.Client{Timeout: 60 * time.Second},
		provider:    cfg.Provider,
		model:       model,
		apiKey:      cfg.APIKey,
		baseURL:     cfg.BaseURL,
		concurrency: cfg.Concurrency,
		log:         log,
	}
}

// Summarize returns a detail for every record the LLM could describe, in
// input order. Per-skill failures are logged and skipped; only cancellation
// of ctx is returned as an error.
func (s *Summarizer) Summarize(ctx context.Context, records []skill.Record) ([]skill.Detail, error) {
	if len(records) == 0 {
		return nil, nil
	}

	results := make([]*skill.Detail, len(records))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, r := range records {
		g.Go(func() error {
			d, err := s.describe(gctx, r)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.log.Warn("summarize skill", "skill", r.Name, "error", err)
				return nil
			}
			mu.Lock()
			results[i] = d
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("summarize skills: %w", err)
	}

	var details []skill.Detail
	for _, d := range results {
		if d != nil {
			details = append(details, *d)
		}
	}
	return details, nil
}

func (s *Summarizer) describe(ctx context.Context, r skill.Record) (*skill.Detail, error) {
	prompt := fmt.Sprintf(detailPrompt, r.Name, r.Owner, r.URL)

	var raw string
	var err error
	switch s.provider {
	case "anthropic":
		raw, err = s.callAnthropic(ctx, prompt)
	default:
		raw, err = s.callOpenAI(ctx, prompt)
	}
	if err != nil {
		return nil, err
	}

	raw = stripCodeFence(raw)

	var d skill.Detail
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, fmt.Errorf("parse llm response: %w\nraw: %s", err, truncateStr(raw, 500))
	}
	d.Name = r.Name
	d.Owner = r.Owner
	d.URL = r.URL
	if d.Solves == nil {
		d.Solves = []string{}
	}
	return &d, nil
}

// stripCodeFence removes a markdown code block around the model output.
func stripCodeFence(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		if idx := strings.Index(raw[3:], "\n"); idx >= 0 {
			raw = raw[3+idx+1:]
		}
		raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
		raw = strings.TrimSpace(raw)
	}
	return raw
}

func (s *Summarizer) callOpenAI(ctx context.Context, prompt string) (string, error) {
	baseURL := s.baseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}

	payload := map[string]any{
		"model": s.model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": 0.2,
	}

	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create openai request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call openai: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return "", fmt.Errorf("openai status %d: %v", resp.StatusCode, errResp)
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode openai response: %w", err)
	}

	if len(result.Choices) == 0 {
		return "", fmt.Errorf("openai: no choices returned")
	}
	return result.Choices[0].Message.Content, nil
}

func (s *Summarizer) callAnthropic(ctx context.Context, prompt string) (string, error) {
	baseURL := s.baseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}

	payload := map[string]any{
		"model":      s.model,
		"max_tokens": 1024,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}

	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create anthropic request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", s.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call anthropic: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return "", fmt.Errorf("anthropic status %d: %v", resp.StatusCode, errResp)
	}

	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode anthropic response: %w", err)
	}

	if len(result.Content) == 0 {
		return "", fmt.Errorf("anthropic: no content returned")
	}
	return result.Content[0].Text, nil
}

func truncateStr(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
