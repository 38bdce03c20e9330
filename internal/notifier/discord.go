package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/netdout/relay/internal/daemon"
	"github.com/netdout/relay/internal/logctx"
	"github.com/netdout/relay/internal/router"
)

type Notifier interface {
	Notify(ctx context.Context, content string) error
}

type DiscordNotifier struct {
	WebhookURL string
	HTTPClient *http.Client
}

func NewDiscordNotifier(webhookURL string) *DiscordNotifier {
	return &DiscordNotifier{
		WebhookURL: webhookURL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *DiscordNotifier) Notify(ctx context.Context, content string) error {
	if d.WebhookURL == "" {
		return fmt.Errorf("webhook URL is not set")
	}

	body, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	client := d.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook failed with status %d", resp.StatusCode)
	}

	return nil
}

// IntentSettled reports the outcome of queue intents. Status polls are not reported.
func (d *DiscordNotifier) IntentSettled(ctx context.Context, intent router.Intent, result router.Result) {
	queue, ok := intent.(router.QueueIntent)
	if !ok {
		return
	}

	var content string

	if result.OK {
		content = "✅ Download queued: " + queue.Request.URL
		if handle, ok := daemon.HandleFromPayload(result.Data); ok {
			content += " (" + string(handle) + ")"
		}
	} else {
		content = "❌ Failed to queue download: " + queue.Request.URL + ": " + result.Error
	}

	if err := d.Notify(ctx, content); err != nil {
		logctx.LoggerFromContext(ctx).ErrorContext(ctx, "failed to send notification", "err", err)
	}
}

var _ router.Observer = (*DiscordNotifier)(nil)
