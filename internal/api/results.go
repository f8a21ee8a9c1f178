package api

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/videlboga/cyberkitty119-sub001/internal/results"
	"github.com/videlboga/cyberkitty119-sub001/internal/summarize"
)

// Summarizer produces a summary of a transcript.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string, kind summarize.Kind) (string, error)
}

// ResultsHandler serves cached transcription results and on-demand
// summaries.
type ResultsHandler struct {
	cache      results.Store
	summarizer Summarizer
	log        zerolog.Logger
}

func NewResultsHandler(cache results.Store, summarizer Summarizer, log zerolog.Logger) *ResultsHandler {
	return &ResultsHandler{
		cache:      cache,
		summarizer: summarizer,
		log:        log.With().Str("component", "results-api").Logger(),
	}
}

type resultResponse struct {
	Requester int64     `json:"requester"`
	Raw       string    `json:"raw"`
	Formatted string    `json:"formatted"`
	CreatedAt time.Time `json:"created_at"`
}

type summaryResponse struct {
	Requester int64  `json:"requester"`
	Kind      string `json:"kind"`
	Summary   string `json:"summary"`
	Cached    bool   `json:"cached"`
}

// Get handles GET /api/v1/results/{requester}.
func (h *ResultsHandler) Get(w http.ResponseWriter, r *http.Request) {
	requester, err := PathInt64(r, "requester")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid requester id")
		return
	}

	entry, ok := h.cache.Get(requester)
	if !ok {
		WriteError(w, http.StatusNotFound, "no transcript for requester")
		return
	}

	WriteJSON(w, http.StatusOK, resultResponse{
		Requester: requester,
		Raw:       entry.Raw,
		Formatted: entry.Formatted,
		CreatedAt: entry.CreatedAt,
	})
}

// Summary handles GET /api/v1/results/{requester}/summary?kind=brief|detailed.
// Summaries are computed on demand and cached alongside the transcript.
func (h *ResultsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	requester, err := PathInt64(r, "requester")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid requester id")
		return
	}

	kind := summarize.Kind(r.URL.Query().Get("kind"))
	if kind == "" {
		kind = summarize.Brief
	}
	if kind != summarize.Brief && kind != summarize.Detailed {
		WriteError(w, http.StatusBadRequest, "kind must be brief or detailed")
		return
	}

	if text, ok := h.cache.GetSummary(requester, string(kind)); ok {
		WriteJSON(w, http.StatusOK, summaryResponse{
			Requester: requester, Kind: string(kind), Summary: text, Cached: true,
		})
		return
	}

	entry, ok := h.cache.Get(requester)
	if !ok {
		WriteError(w, http.StatusNotFound, "no transcript for requester")
		return
	}

	text, err := h.summarizer.Summarize(r.Context(), entry.Formatted, kind)
	if err != nil {
		h.log.Warn().Err(err).Int64("requester", requester).Msg("summary failed")
		WriteErrorDetail(w, http.StatusBadGateway, "summary generation failed", err.Error())
		return
	}
	h.cache.PutSummary(requester, string(kind), text)

	WriteJSON(w, http.StatusOK, summaryResponse{
		Requester: requester, Kind: string(kind), Summary: text, Cached: false,
	})
}
