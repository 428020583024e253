// Package whatsapp is the WhatsApp Cloud API collaborator. The Worker treats
// it as the only external side effect: a send either succeeds with a provider
// message ID, fails permanently, or fails uncertainly and must be retried.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"orcazap_backend/platform/config"
	"orcazap_backend/platform/logger"
	"orcazap_backend/platform/phone"
)

// ErrDispatchUncertain marks sends whose outcome is unknown: timeouts,
// network errors and 5xx responses. The message may or may not have reached
// the provider, so the caller must not commit local state and must let the
// task retry.
var ErrDispatchUncertain = errors.New("dispatch outcome uncertain")

// Sender sends one text message and returns the provider message ID.
type Sender interface {
	SendText(ctx context.Context, phoneNumberID, toPhone, text string) (string, error)
}

// Client talks to the Graph API.
type Client struct {
	baseURL     string
	accessToken string
	http        *http.Client
	log         *logger.Logger
}

// NewClient creates a Cloud API client with a bounded per-call timeout.
func NewClient(cfg config.WhatsAppConfig, log *logger.Logger) *Client {
	return &Client{
		baseURL:     strings.TrimRight(cfg.GetWhatsAppAPIURL(), "/"),
		accessToken: cfg.GetWhatsAppAccessToken(),
		http:        &http.Client{Timeout: cfg.GetWhatsAppTimeout()},
		log:         log,
	}
}

type textPayload struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

type textBody struct {
	Body string `json:"body"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// SendText delivers a text message through the channel's phone number.
func (c *Client) SendText(ctx context.Context, phoneNumberID, toPhone, text string) (string, error) {
	normalized := strings.TrimPrefix(phone.NormalizeE164(toPhone), "+")

	payload := textPayload{
		MessagingProduct: "whatsapp",
		To:               normalized,
		Type:             "text",
		Text:             textBody{Body: text},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal whatsapp payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build whatsapp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		// Timeout or transport failure: the provider may have received the
		// message anyway.
		return "", fmt.Errorf("whatsapp send to %s: %v: %w", normalized, err, ErrDispatchUncertain)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusInternalServerError {
		data, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("whatsapp service returned %d: %s: %w",
			resp.StatusCode, strings.TrimSpace(string(data)), ErrDispatchUncertain)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("whatsapp rejected send: %d: %s",
			resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var parsed sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode whatsapp response: %v: %w", err, ErrDispatchUncertain)
	}
	if len(parsed.Messages) == 0 || parsed.Messages[0].ID == "" {
		return "", fmt.Errorf("whatsapp response missing message id: %w", ErrDispatchUncertain)
	}

	c.log.Debug("whatsapp message sent", "to", normalized, "provider_message_id", parsed.Messages[0].ID)
	return parsed.Messages[0].ID, nil
}

var _ Sender = (*Client)(nil)
