// Package userbot talks to the secondary-identity gateway, a sidecar that
// holds a real user session and can fetch files the bot channel refuses to
// serve. The gateway shares a volume with this service, so downloads are
// returned as local paths.
package userbot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// MessageSummary is one relay-chat message as reported by the gateway,
// newest first.
type MessageSummary struct {
	ID        int64  `json:"id"`
	Caption   string `json:"caption"`
	HasMedia  bool   `json:"has_media"`
	MediaSize int64  `json:"media_size"`
}

// Client is the HTTP client for the gateway.
type Client struct {
	base   string
	token  string
	client *http.Client
	log    zerolog.Logger
}

// NewClient creates a gateway client.
func NewClient(base, token string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		base:   base,
		token:  token,
		client: &http.Client{Timeout: timeout},
		log:    log.With().Str("component", "userbot").Logger(),
	}
}

// Messages lists up to limit messages of the chat with id greater than minID,
// newest first.
func (c *Client) Messages(ctx context.Context, chatID, minID int64, limit int) ([]MessageSummary, error) {
	q := url.Values{}
	q.Set("chat_id", strconv.FormatInt(chatID, 10))
	q.Set("min_id", strconv.FormatInt(minID, 10))
	q.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/v1/messages?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.auth(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("messages request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway error (status %d): %s", resp.StatusCode, string(body))
	}

	var msgs []MessageSummary
	if err := json.Unmarshal(body, &msgs); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	return msgs, nil
}

// Download asks the gateway to pull a message's media onto the shared volume
// and returns the resulting path.
func (c *Client) Download(ctx context.Context, chatID, messageID int64) (string, error) {
	payload, _ := json.Marshal(map[string]int64{
		"chat_id":    chatID,
		"message_id": messageID,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/v1/download", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.auth(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gateway error (status %d): %s", resp.StatusCode, string(body))
	}

	var out struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode download response: %w", err)
	}
	if out.Path == "" {
		return "", fmt.Errorf("gateway returned empty path for message %d", messageID)
	}
	return out.Path, nil
}

func (c *Client) auth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
