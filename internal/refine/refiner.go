// Package refine turns raw timestamped transcripts into readable text using
// an LLM, chunk by chunk, without ever losing content: a chunk the model
// cannot improve is kept as-is.
package refine

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/videlboga/cyberkitty119-sub001/internal/llm"
)

// MaxChunkSize is the hard per-request chunk limit in runes.
const MaxChunkSize = 15000

const formatSystemPrompt = `You format speech transcripts. Add punctuation, fix obvious recognition errors, and break the text into readable paragraphs. Keep every [HH:MM:SS] timestamp marker exactly where it is. Do not summarize, do not drop content, do not add commentary. Reply with the formatted text only.`

// Completer is the model cascade surface the refiner drives.
type Completer interface {
	Complete(ctx context.Context, msgs []llm.Message, opts llm.Options) (*llm.Result, error)
}

// Refiner formats transcripts chunk by chunk.
type Refiner struct {
	cascade   Completer
	chunkSize int
	log       zerolog.Logger
}

// NewRefiner creates a transcript refiner.
func NewRefiner(cascade Completer, log zerolog.Logger) *Refiner {
	return &Refiner{
		cascade:   cascade,
		chunkSize: MaxChunkSize,
		log:       log.With().Str("component", "refiner").Logger(),
	}
}

// SplitChunks cuts text into rune chunks of at most size. Boundaries are
// hard; no attempt is made to respect words or lines.
func SplitChunks(text string, size int) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	chunks := make([]string, 0, (len(runes)+size-1)/size)
	for i := 0; i < len(runes); i += size {
		end := i + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
	}
	return chunks
}

// Refine formats the raw transcript. Each chunk is sent through the model
// cascade; a chunk that fails is passed through untouched, so the result is
// never worse than the input. Chunks are rejoined with a blank line.
func (r *Refiner) Refine(ctx context.Context, raw string) string {
	chunks := SplitChunks(raw, r.chunkSize)
	if len(chunks) == 0 {
		return raw
	}

	out := make([]string, len(chunks))
	for i, chunk := range chunks {
		res, err := r.cascade.Complete(ctx, []llm.Message{
			{Role: "system", Content: formatSystemPrompt},
			{Role: "user", Content: chunk},
		}, llm.Options{Temperature: 0.3, MaxTokens: 4096})
		if err != nil {
			r.log.Warn().Err(err).Int("chunk", i).Int("chunks", len(chunks)).Msg("chunk formatting failed, keeping raw text")
			out[i] = chunk
			continue
		}
		out[i] = strings.TrimSpace(res.Content)
		r.log.Debug().Int("chunk", i).Str("model", res.Model).Msg("chunk formatted")
	}
	return strings.Join(out, "\n\n")
}
