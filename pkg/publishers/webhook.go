package publishers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/samvad-hq/daily-digest/pkg/httpclient"
)

type webhookPublisher struct {
	id     string
	cfg    WebhookConfig
	client *resty.Client
	log    Logger
}

func newWebhookPublisher(_ context.Context, cfg SinkConfig, log Logger) (Publisher, error) {
	if cfg.Webhook == nil {
		return nil, fmt.Errorf("missing webhook configuration")
	}
	w := *cfg.Webhook
	var opts []httpclient.Option
	if w.Retries > 0 {
		opts = append(opts, httpclient.WithRetries(w.Retries, 500*time.Millisecond))
	}
	return &webhookPublisher{
		id:     cfg.ID,
		cfg:    w,
		client: httpclient.NewRestyHTTPClient(time.Duration(w.TimeoutSeconds)*time.Second, opts...),
		log:    ensureLogger(log),
	}, nil
}

func (w *webhookPublisher) ID() string   { return w.id }
func (w *webhookPublisher) Type() string { return TypeWebhook }

func (w *webhookPublisher) Publish(ctx context.Context, evt Event) error {
	resp, err := w.client.R().
		SetContext(ctx).
		SetHeaders(w.cfg.Headers).
		SetHeader("Content-Type", "application/json").
		SetBody(evt).
		Execute(w.cfg.Method, w.cfg.URL)
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	if resp.IsError() {
		body := resp.Body()
		if len(body) > 256 {
			body = body[:256]
		}
		return fmt.Errorf("webhook status %d: %s", resp.StatusCode(), strings.TrimSpace(string(body)))
	}
	w.log.DebugObj("run event posted", "publisher_webhook", map[string]any{
		"sink":        w.id,
		"run_id":      evt.RunID,
		"status_code": resp.StatusCode(),
	})
	return nil
}
