package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"vinyl_radar/models"
)

// WebhookNotifier posts alert batches as JSON to a configured messaging
// endpoint.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

func NewWebhookNotifier(url string, client *http.Client) *WebhookNotifier {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &WebhookNotifier{url: url, client: client}
}

type webhookPayload struct {
	BatchID  uuid.UUID        `json:"batch_id"`
	SentAt   time.Time        `json:"sent_at"`
	Kind     string           `json:"kind"`
	Count    int              `json:"count,omitempty"`
	Text     string           `json:"text"`
	Listings []models.Listing `json:"listings,omitempty"`
	Source   string           `json:"source,omitempty"`
}

func (n *WebhookNotifier) NotifyNew(ctx context.Context, listings []models.Listing) error {
	if len(listings) == 0 {
		return nil
	}

	payload := webhookPayload{
		BatchID:  uuid.New(),
		SentAt:   time.Now(),
		Kind:     "new_listings",
		Count:    len(listings),
		Text:     renderNewListings(listings),
		Listings: listings,
	}
	return n.post(ctx, payload)
}

func (n *WebhookNotifier) NotifyError(ctx context.Context, message, sourceTag string) error {
	payload := webhookPayload{
		BatchID: uuid.New(),
		SentAt:  time.Now(),
		Kind:    "error",
		Text:    message,
		Source:  sourceTag,
	}
	return n.post(ctx, payload)
}

func (n *WebhookNotifier) post(ctx context.Context, payload webhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func renderNewListings(listings []models.Listing) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d new vinyl listings:\n", len(listings))
	for _, l := range listings {
		fmt.Fprintf(&b, "- %s / %s (%s) %s %s from %s", l.Artist, l.Title, l.Condition, l.Price.StringFixed(2), l.Currency, l.Seller)
		if l.URL != "" {
			fmt.Fprintf(&b, " %s", l.URL)
		}
		b.WriteString("\n")
	}
	return b.String()
}
