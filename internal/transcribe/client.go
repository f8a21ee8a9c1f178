package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Transcriber is the speech-to-text interface the pipeline depends on.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (*Result, error)
}

// Result is a transcription with segment-level timestamps.
type Result struct {
	Text     string
	Segments []Segment
	Model    string // model that actually produced the result
}

// Segment is one timestamped span of transcribed speech.
type Segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Client calls an OpenAI-compatible /audio/transcriptions endpoint, walking
// an ordered list of candidate models until one answers.
type Client struct {
	url    string
	apiKey string
	models []string
	client *http.Client
	log    zerolog.Logger
}

type apiResponse struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
}

// NewClient creates a transcription client.
func NewClient(url, apiKey string, models []string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		url:    url,
		apiKey: apiKey,
		models: models,
		client: &http.Client{Timeout: timeout},
		log:    log.With().Str("component", "stt").Logger(),
	}
}

// Transcribe uploads the audio file and returns text plus segment timestamps.
// Candidate models are tried in order; the error is the last model's failure.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (*Result, error) {
	info, err := os.Stat(audioPath)
	if err != nil {
		return nil, fmt.Errorf("stat audio file: %w", err)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("audio file is empty: %s", audioPath)
	}

	var lastErr error
	for _, model := range c.models {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := c.transcribeWith(ctx, audioPath, model)
		if err == nil {
			return res, nil
		}
		c.log.Warn().Err(err).Str("model", model).Msg("stt model failed, trying next candidate")
		lastErr = err
	}
	return nil, fmt.Errorf("all stt models failed: %w", lastErr)
}

func (c *Client) transcribeWith(ctx context.Context, audioPath, model string) (*Result, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("copy audio data: %w", err)
	}

	w.WriteField("model", model)
	w.WriteField("response_format", "verbose_json")
	w.WriteField("timestamp_granularities[]", "segment")
	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stt request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stt API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result apiResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &Result{Text: result.Text, Segments: result.Segments, Model: model}, nil
}
