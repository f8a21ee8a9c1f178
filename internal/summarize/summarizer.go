// Package summarize produces brief and detailed summaries of transcripts.
// Long transcripts are summarized map-reduce style: each chunk gets a
// partial summary, then a final pass merges the partials.
package summarize

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/videlboga/cyberkitty119-sub001/internal/llm"
	"github.com/videlboga/cyberkitty119-sub001/internal/refine"
)

// Kind selects the summary depth.
type Kind string

const (
	Brief    Kind = "brief"
	Detailed Kind = "detailed"
)

const (
	briefPrompt = `Summarize this transcript in a few short paragraphs: the topic, the key points, and any conclusions or decisions. Be concise. Reply in the transcript's language.`

	detailedPrompt = `Write a detailed structured summary of this transcript: the topic, the main threads of discussion with their key arguments, concrete facts and numbers mentioned, and any conclusions, decisions or action items. Reply in the transcript's language.`

	partialPrompt = `This is one part of a longer transcript. Summarize the part on its own: what is discussed and the key points. Keep every concrete fact; another pass will merge the parts. Reply in the transcript's language.`

	mergePrompt = `Below are partial summaries of consecutive parts of one recording. Merge them into a single coherent summary, removing repetition and keeping chronology. Reply in the source language.`
)

// Completer is the model cascade surface the summarizer drives.
type Completer interface {
	Complete(ctx context.Context, msgs []llm.Message, opts llm.Options) (*llm.Result, error)
}

// Summarizer produces on-demand summaries.
type Summarizer struct {
	cascade   Completer
	chunkSize int
	log       zerolog.Logger
}

// NewSummarizer creates a summarizer.
func NewSummarizer(cascade Completer, log zerolog.Logger) *Summarizer {
	return &Summarizer{
		cascade:   cascade,
		chunkSize: refine.MaxChunkSize,
		log:       log.With().Str("component", "summarizer").Logger(),
	}
}

// Summarize returns a summary of the transcript at the requested depth.
// Unlike refining, a failure here is an error: there is no raw text to fall
// back on that would still be a summary.
func (s *Summarizer) Summarize(ctx context.Context, transcript string, kind Kind) (string, error) {
	if strings.TrimSpace(transcript) == "" {
		return "", fmt.Errorf("nothing to summarize")
	}

	chunks := refine.SplitChunks(transcript, s.chunkSize)
	if len(chunks) == 1 {
		return s.complete(ctx, kindPrompt(kind), chunks[0], 0.15, 8192)
	}

	// Map: a partial summary per chunk.
	partials := make([]string, len(chunks))
	for i, chunk := range chunks {
		part, err := s.complete(ctx, partialPrompt, chunk, 0.15, 4096)
		if err != nil {
			return "", fmt.Errorf("summarize part %d of %d: %w", i+1, len(chunks), err)
		}
		partials[i] = part
	}

	// Reduce: merge the partials at the requested depth.
	merged := strings.Join(partials, "\n\n---\n\n")
	out, err := s.complete(ctx, kindPrompt(kind)+"\n\n"+mergePrompt, merged, 0.15, 8192)
	if err != nil {
		return "", fmt.Errorf("merge summaries: %w", err)
	}
	s.log.Debug().Int("chunks", len(chunks)).Str("kind", string(kind)).Msg("map-reduce summary complete")
	return out, nil
}

func (s *Summarizer) complete(ctx context.Context, system, user string, temperature float64, maxTokens int) (string, error) {
	res, err := s.cascade.Complete(ctx, []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}, llm.Options{Temperature: temperature, MaxTokens: maxTokens})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Content), nil
}

func kindPrompt(kind Kind) string {
	if kind == Detailed {
		return detailedPrompt
	}
	return briefPrompt
}
