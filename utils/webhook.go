package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"leadpilot/models"
)

const (
	webhookTimeout         = 15 * time.Second
	followupWebhookTimeout = 60 * time.Second

	SourceDailyScraper   = "daily_scraper"
	SourceFollowupSender = "followup_sender"
	SourceJobAPI         = "scrape_job"
)

// webhookBackoff is the wait before each retry of a timed out POST.
var webhookBackoff = []time.Duration{10 * time.Second, 20 * time.Second}

// WebhookStatusError is returned when the automation answers with anything
// but HTTP 200.
type WebhookStatusError struct {
	Status int
	Body   string
}

func (e *WebhookStatusError) Error() string {
	return fmt.Sprintf("webhook returned status %d: %s", e.Status, e.Body)
}

// WebhookSender posts a batch to the outbound automation.
type WebhookSender interface {
	Send(ctx context.Context, payload models.WebhookPayload) error
}

// WebhookClient posts lead batches to the n8n-style automation webhook.
type WebhookClient struct {
	url        string
	httpClient *http.Client
	backoff    []time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewWebhookClient(url string, timeout time.Duration) *WebhookClient {
	if timeout <= 0 {
		timeout = webhookTimeout
	}
	return &WebhookClient{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		backoff:    webhookBackoff,
		sleep:      sleepContext,
	}
}

// NewFollowupWebhookClient uses the longer timeout follow-up batches need.
func NewFollowupWebhookClient(url string) *WebhookClient {
	return NewWebhookClient(url, followupWebhookTimeout)
}

// Send posts payload once, retrying only when the request timed out.
func (w *WebhookClient) Send(ctx context.Context, payload models.WebhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	log := Logger("webhook").WithField("leads", payload.TotalCount)
	for attempt := 0; ; attempt++ {
		err = w.post(ctx, body)
		if err == nil {
			log.WithField("attempt", attempt+1).Info("Batch delivered")
			return nil
		}
		if !isTimeout(err) || ctx.Err() != nil || attempt >= len(w.backoff) {
			return err
		}

		wait := w.backoff[attempt]
		log.WithError(err).WithField("wait", wait).Warn("Webhook timed out, retrying")
		if err := w.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (w *WebhookClient) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &WebhookStatusError{Status: resp.StatusCode, Body: string(respBody)}
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// BuildOutreachPayload maps freshly composed leads to the webhook shape.
func BuildOutreachPayload(leads []models.Lead, source string, now time.Time) models.WebhookPayload {
	out := make([]models.WebhookLead, 0, len(leads))
	for _, l := range leads {
		out = append(out, models.WebhookLead{
			Phone:           l.Phone,
			Message:         l.Message,
			FollowupMessage: l.FollowupMessage,
			LeadName:        l.Name,
			Category:        l.Category,
			Niche:           l.Niche,
			Website:         l.Website,
			GoogleMapsURL:   l.GoogleMapsURL,
		})
	}
	return models.WebhookPayload{
		Leads:      out,
		TotalCount: len(out),
		Source:     source,
		Timestamp:  now.Format(time.RFC3339),
	}
}
