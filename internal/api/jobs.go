package api

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/videlboga/cyberkitty119-sub001/internal/media"
	"github.com/videlboga/cyberkitty119-sub001/internal/pipeline"
)

// Enqueuer submits jobs to the pipeline. Returns false when the queue is
// full.
type Enqueuer interface {
	Enqueue(pipeline.Job) bool
}

// JobsHandler accepts transcription job submissions over HTTP.
type JobsHandler struct {
	pool Enqueuer
	log  zerolog.Logger
}

func NewJobsHandler(pool Enqueuer, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{pool: pool, log: log.With().Str("component", "jobs-api").Logger()}
}

type jobRequest struct {
	Requester int64  `json:"requester"`
	URL       string `json:"url,omitempty"`
	LocalPath string `json:"local_path,omitempty"`
	ChatID    int64  `json:"chat_id,omitempty"`
	MessageID int64  `json:"message_id,omitempty"`
	FileID    string `json:"file_id,omitempty"`
	FileSize  int64  `json:"file_size,omitempty"`
}

type jobResponse struct {
	Status    string `json:"status"`
	Requester int64  `json:"requester"`
}

// Create handles POST /api/v1/jobs.
func (h *JobsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req jobRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.Requester == 0 {
		WriteError(w, http.StatusBadRequest, "requester is required")
		return
	}

	sources := 0
	if req.URL != "" {
		sources++
	}
	if req.LocalPath != "" {
		sources++
	}
	if req.FileID != "" {
		sources++
	}
	if sources != 1 {
		WriteError(w, http.StatusBadRequest, "exactly one of url, local_path or file_id is required")
		return
	}
	if req.URL != "" && !media.Supported(req.URL) {
		WriteError(w, http.StatusBadRequest, "unsupported url: expected a video host or drive link")
		return
	}

	job := pipeline.Job{
		Requester: req.Requester,
		Source: media.Source{
			ChatID:    req.ChatID,
			MessageID: req.MessageID,
			FileID:    strings.TrimSpace(req.FileID),
			FileSize:  req.FileSize,
			URL:       strings.TrimSpace(req.URL),
			LocalPath: req.LocalPath,
		},
	}

	if !h.pool.Enqueue(job) {
		WriteError(w, http.StatusServiceUnavailable, "job queue is full, try again later")
		return
	}

	h.log.Info().Int64("requester", req.Requester).Msg("job accepted")
	WriteJSON(w, http.StatusAccepted, jobResponse{Status: "queued", Requester: req.Requester})
}
