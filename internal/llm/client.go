package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Client calls an OpenAI-compatible /chat/completions endpoint.
type Client struct {
	url     string
	apiKey  string
	referer string
	title   string
	client  *http.Client
	log     zerolog.Logger
}

// Message is a single chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options are per-request generation parameters.
type Options struct {
	Temperature float64
	MaxTokens   int
}

// StatusError is returned for non-200 responses, preserving the status code
// so callers can distinguish auth failures from the rest.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llm API error (status %d): %s", e.Status, e.Body)
}

// NewClient creates a chat-completions HTTP client.
func NewClient(url, apiKey, referer, title string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		url:     url,
		apiKey:  apiKey,
		referer: referer,
		title:   title,
		client:  &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "llm").Logger(),
	}
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends one chat request for the given model and returns the first
// choice's content. Some gateways reject request bodies with raw multi-byte
// characters and answer 401; on a 401 the request is retried exactly once
// with the body re-serialized to an ASCII-escaped string before the error is
// propagated.
func (c *Client) Complete(ctx context.Context, model string, msgs []Message, opts Options) (string, error) {
	payload := chatRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	content, err := c.send(ctx, body)
	var se *StatusError
	if errors.As(err, &se) && se.Status == http.StatusUnauthorized {
		c.log.Warn().Str("model", model).Msg("401 from llm API, retrying with escaped body")
		content, err = c.send(ctx, escapeNonASCII(body))
	}
	if err != nil {
		return "", err
	}
	return content, nil
}

func (c *Client) send(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.referer != "" {
		req.Header.Set("HTTP-Referer", c.referer)
	}
	if c.title != "" {
		req.Header.Set("X-Title", c.title)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{Status: resp.StatusCode, Body: string(respBody)}
	}

	var result chatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("llm response has no choices")
	}
	return result.Choices[0].Message.Content, nil
}

// escapeNonASCII rewrites every rune above 0x7F as a \uXXXX escape. The input
// must be valid JSON; escaping inside string values keeps it valid.
func escapeNonASCII(b []byte) []byte {
	var out bytes.Buffer
	for _, r := range string(b) {
		if r < 0x80 {
			out.WriteRune(r)
			continue
		}
		if r > 0xFFFF {
			// Surrogate pair for characters outside the BMP.
			r -= 0x10000
			fmt.Fprintf(&out, `\u%04x\u%04x`, 0xD800+(r>>10), 0xDC00+(r&0x3FF))
			continue
		}
		fmt.Fprintf(&out, `\u%04x`, r)
	}
	return out.Bytes()
}
