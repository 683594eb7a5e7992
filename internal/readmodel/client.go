package readmodel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/taskdesk/domain-service/internal/contracts"
)

// Client posts a single domain event to the read-model updater. It is the
// dispatcher's synchronous fallback when the event queue is unavailable.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// envelope matches the updater's trigger contract: the event travels as a
// JSON string inside the body, not as a nested object.
type envelope struct {
	Data envelopeData `json:"Data"`
}

type envelopeData struct {
	Event string `json:"Event"`
}

func (c *Client) Send(ctx context.Context, ev contracts.Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", ev.ID, err)
	}
	body, err := json.Marshal(envelope{Data: envelopeData{Event: string(raw)}})
	if err != nil {
		return fmt.Errorf("encode fallback envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/domain-events", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("post domain event %s: %w", ev.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("read model updater returned %d for event %s", resp.StatusCode, ev.ID)
	}
	return nil
}
