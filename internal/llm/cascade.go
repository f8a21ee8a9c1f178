package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/videlboga/cyberkitty119-sub001/internal/metrics"
)

// Completer is the single-model completion interface the cascade drives.
type Completer interface {
	Complete(ctx context.Context, model string, msgs []Message, opts Options) (string, error)
}

// Result is a completion tagged with the model that produced it.
type Result struct {
	Model   string
	Content string
}

// Attempt records one failed model try for diagnostics.
type Attempt struct {
	Model string
	Err   error
}

// ExhaustedError is returned when every candidate model failed.
type ExhaustedError struct {
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = fmt.Sprintf("%s: %v", a.Model, a.Err)
	}
	return "all models failed: " + strings.Join(parts, "; ")
}

// Cascade tries an ordered list of models until one succeeds.
type Cascade struct {
	models    []string
	completer Completer
	log       zerolog.Logger
}

// NewCascade builds a cascade over the candidate models in order, dropping
// duplicates while keeping the first occurrence.
func NewCascade(completer Completer, models []string, log zerolog.Logger) *Cascade {
	seen := make(map[string]bool, len(models))
	deduped := make([]string, 0, len(models))
	for _, m := range models {
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		deduped = append(deduped, m)
	}
	return &Cascade{
		models:    deduped,
		completer: completer,
		log:       log.With().Str("component", "llm-cascade").Logger(),
	}
}

// Models returns the candidate list in try order.
func (c *Cascade) Models() []string { return c.models }

// Complete runs the request through the candidate models in order and returns
// the first success tagged with its model. A canceled context stops the
// cascade immediately; any other failure moves on to the next candidate.
func (c *Cascade) Complete(ctx context.Context, msgs []Message, opts Options) (*Result, error) {
	var attempts []Attempt
	for _, model := range c.models {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		content, err := c.completer.Complete(ctx, model, msgs, opts)
		if err == nil {
			metrics.LLMRequestsTotal.WithLabelValues(model, "ok").Inc()
			return &Result{Model: model, Content: content}, nil
		}
		metrics.LLMRequestsTotal.WithLabelValues(model, "failed").Inc()
		c.log.Warn().Err(err).Str("model", model).Msg("model failed, trying next candidate")
		attempts = append(attempts, Attempt{Model: model, Err: err})
	}
	return nil, &ExhaustedError{Attempts: attempts}
}
