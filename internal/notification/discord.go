package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jwillz7667/CropLens/internal/insights"
)

type DiscordMessage struct {
	Embeds []DiscordEmbed `json:"embeds"`
}

type DiscordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
}

const (
	colorRed    = 16711680
	colorOrange = 16753920
	colorGreen  = 65280
)

// DiscordNotifier posts alerts as webhook embeds. Medium and high alerts go to
// the error webhook, low ones to the success webhook.
type DiscordNotifier struct {
	ErrorURL   string
	SuccessURL string
	Client     *http.Client
}

func (d *DiscordNotifier) Notify(ctx context.Context, alert Alert) error {
	url, title, color := d.SuccessURL, "✅ "+alert.Subject, colorGreen
	switch alert.Severity {
	case insights.SeverityHigh:
		url, title, color = d.ErrorURL, "🚨 "+alert.Subject, colorRed
	case insights.SeverityMedium:
		url, title, color = d.ErrorURL, "⚠️ "+alert.Subject, colorOrange
	}
	if url == "" {
		return nil
	}

	return d.send(ctx, url, DiscordMessage{
		Embeds: []DiscordEmbed{{Title: title, Description: alert.Body, Color: color}},
	})
}

// SendError reports an operational failure to the error webhook.
func (d *DiscordNotifier) SendError(ctx context.Context, errorMessage string) error {
	if d.ErrorURL == "" {
		return nil
	}
	return d.send(ctx, d.ErrorURL, DiscordMessage{
		Embeds: []DiscordEmbed{{
			Title:       "🚨 Error Notification",
			Description: fmt.Sprintf("An error occurred: %s", errorMessage),
			Color:       colorRed,
		}},
	})
}

func (d *DiscordNotifier) send(ctx context.Context, url string, message DiscordMessage) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to send Discord notification, status code: %d", resp.StatusCode)
	}
	return nil
}
