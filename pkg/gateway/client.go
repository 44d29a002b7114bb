package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/onurcolak/event-automation-service/environments"
	"github.com/onurcolak/event-automation-service/pkg/logger"
)

// Client posts text messages to the messaging gateway. It never retries:
// each call is at most one delivery attempt.
type Client struct {
	httpClient *resty.Client
	url        string
}

type SendTextRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

// SendTextResponse holds the gateway message id. MessageID is empty when
// the gateway accepted the message without reporting one.
type SendTextResponse struct {
	MessageID string
}

// APIError is returned when the gateway answers with a non-2xx status or an
// explicit error field. Detail is the gateway's own message when present.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("gateway returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("gateway returned status %d: %s", e.StatusCode, e.Detail)
}

func NewClient(cfg environments.GatewayConfig) *Client {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}

	return &Client{
		httpClient: client,
		url:        cfg.URL,
	}
}

func (c *Client) SendText(ctx context.Context, number, text string) (*SendTextResponse, error) {
	payload := SendTextRequest{
		Number: number,
		Text:   text,
	}

	startTime := time.Now()

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(payload).
		Post(c.url)

	duration := time.Since(startTime)

	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	logger.Infof("Gateway request to %s completed in %v (status: %d)", c.url, duration, resp.StatusCode())

	body := parseBody(resp.Body())

	if resp.StatusCode() < 200 || resp.StatusCode() > 299 || body.hasError() {
		return nil, &APIError{StatusCode: resp.StatusCode(), Detail: body.errorDetail()}
	}

	return &SendTextResponse{MessageID: body.messageID()}, nil
}

func (c *Client) GetURL() string {
	return c.url
}

// responseBody tolerates the shapes gateways answer with: a top-level
// messageId or id, or a nested key.id.
type responseBody struct {
	MessageID string          `json:"messageId"`
	ID        any             `json:"id"`
	Key       *messageKey     `json:"key"`
	Error     json.RawMessage `json:"error"`
	Message   json.RawMessage `json:"message"`
	Response  *nestedResponse `json:"response"`
}

type messageKey struct {
	ID string `json:"id"`
}

type nestedResponse struct {
	Message json.RawMessage `json:"message"`
}

func parseBody(raw []byte) responseBody {
	var body responseBody
	if len(bytes.TrimSpace(raw)) == 0 {
		return body
	}
	_ = json.Unmarshal(raw, &body)
	return body
}

func (b responseBody) messageID() string {
	if b.MessageID != "" {
		return b.MessageID
	}
	if b.Key != nil && b.Key.ID != "" {
		return b.Key.ID
	}
	switch id := b.ID.(type) {
	case string:
		return id
	case float64:
		return fmt.Sprintf("%.0f", id)
	}
	return ""
}

func (b responseBody) hasError() bool {
	raw := strings.TrimSpace(string(b.Error))
	return raw != "" && raw != "null" && raw != "false" && raw != `""`
}

func (b responseBody) errorDetail() string {
	if b.Response != nil {
		if s := rawText(b.Response.Message); s != "" {
			return s
		}
	}
	if s := rawText(b.Error); s != "" && s != "true" {
		return s
	}
	return rawText(b.Message)
}

// rawText flattens a JSON string, an array of strings or an object with a
// message field into plain text.
func rawText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, "; ")
	}

	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}

	text := strings.TrimSpace(string(raw))
	if text == "null" || text == "false" {
		return ""
	}
	return text
}
