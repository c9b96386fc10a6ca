package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// WebhookNotifier posts events to the configured notification endpoint.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

type webhookEnvelope struct {
	DeliveryID string          `json:"delivery_id"`
	EventType  string          `json:"event_type"`
	SentAt     time.Time       `json:"sent_at"`
	Payload    json.RawMessage `json:"payload"`
}

func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (n *WebhookNotifier) Notify(ctx context.Context, eventType string, payload []byte) error {
	body, err := json.Marshal(webhookEnvelope{
		DeliveryID: uuid.NewString(),
		EventType:  eventType,
		SentAt:     time.Now().UTC(),
		Payload:    payload,
	})
	if err != nil {
		return fmt.Errorf("encode webhook body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", eventType)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// LogNotifier is used when no webhook is configured; deliveries only reach the log.
type LogNotifier struct {
	log func(eventType string, payload []byte)
}

func NewLogNotifier(log func(eventType string, payload []byte)) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(_ context.Context, eventType string, payload []byte) error {
	if n.log != nil {
		n.log(eventType, payload)
	}
	return nil
}
