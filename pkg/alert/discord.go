package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Discord caps embed descriptions at 4096 characters.
const discordDescriptionLimit = 4096

// Discord sends notifications via Discord webhook.
type Discord struct {
	client     *http.Client
	webhookURL string
	now        func() time.Time
}

// NewDiscord creates a new Discord notifier.
func NewDiscord(webhookURL string) *Discord {
	return &Discord{
		client:     &http.Client{Timeout: 10 * time.Second},
		webhookURL: webhookURL,
		now:        time.Now,
	}
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) Send(ctx context.Context, n *Notification) error {
	var links []string
	for _, e := range n.highlights(5) {
		if e.URL != "" {
			links = append(links, fmt.Sprintf("• [%s](%s) #%d", e.Name, e.URL, e.Rank))
		} else {
			links = append(links, fmt.Sprintf("• %s #%d", e.Name, e.Rank))
		}
	}

	desc := fmt.Sprintf("**%s**\n\n%s", n.Headline, n.Body)
	if len(links) > 0 {
		desc = fmt.Sprintf("**%s**\n\n%s\n\n%s", n.Headline, strings.Join(links, "\n"), n.Body)
	}

	embed := map[string]any{
		"title":       fmt.Sprintf("📊 %s", n.Title),
		"description": truncateText(desc, discordDescriptionLimit),
		"color":       0x2F80ED,
		"timestamp":   d.now().UTC().Format(time.RFC3339),
	}

	payload := map[string]any{
		"embeds": []map[string]any{embed},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("send discord webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("discord webhook status %d", resp.StatusCode)
	}

	return nil
}
