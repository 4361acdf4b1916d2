package handlers

import (
	"errors"
	"net/http"
	"strings"

	"schoolsite/internal/domain"
	"schoolsite/internal/middleware"
	"schoolsite/internal/queue"

	"github.com/go-chi/chi/v5"
)

// createJobRequest keeps the coordinates as pointers so a missing field can
// be told apart from zero.
type createJobRequest struct {
	Lat       *float64 `json:"lat"`
	Lng       *float64 `json:"lng"`
	Address   string   `json:"address"`
	Landmarks []string `json:"landmarks"`
}

type jobStatusResponse struct {
	Status domain.JobStatus       `json:"status"`
	Data   *domain.SchoolArtifact `json:"data,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

// CreateJob validates the submission, records it as pending and enqueues
// the pipeline run. It never waits for generation.
func (a *App) CreateJob(w http.ResponseWriter, r *http.Request) {
	var body createJobRequest
	if err := decodeJSON(w, r, &body); err != nil {
		a.error(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Lat == nil || body.Lng == nil {
		a.error(w, http.StatusBadRequest, "lat and lng are required")
		return
	}
	req := domain.GenerationRequest{
		Lat:       *body.Lat,
		Lng:       *body.Lng,
		Address:   body.Address,
		Landmarks: body.Landmarks,
		Locale:    middleware.LocaleFromContext(r.Context()),
	}
	if err := req.Validate(); err != nil {
		a.error(w, http.StatusBadRequest, strings.TrimPrefix(err.Error(), domain.ErrInvalidRequest.Error()+": "))
		return
	}
	req = req.Normalize()

	ctx := r.Context()
	id := domain.NewJobID(a.prefix)
	if err := a.jobs.SetStatus(ctx, id, domain.JobStatusPending); err != nil {
		a.logger.Error().Err(err).Str("job_id", id).Msg("handlers: store pending status")
		a.error(w, http.StatusInternalServerError, "failed to create job")
		return
	}
	if err := a.jobs.MarkCreated(ctx, id, a.now()); err != nil {
		a.logger.Error().Err(err).Str("job_id", id).Msg("handlers: mark created")
		a.error(w, http.StatusInternalServerError, "failed to create job")
		return
	}
	if err := a.queue.Enqueue(ctx, queue.Run{JobID: id, Request: req}); err != nil {
		a.logger.Error().Err(err).Str("job_id", id).Msg("handlers: enqueue run")
		_ = a.jobs.Remove(ctx, id)
		a.error(w, http.StatusInternalServerError, "failed to create job")
		return
	}
	a.logger.Info().
		Str("job_id", id).
		Float64("lat", req.Lat).
		Float64("lng", req.Lng).
		Str("locale", req.Locale).
		Msg("handlers: job accepted")
	a.json(w, http.StatusCreated, map[string]string{"jobId": id})
}

// GetJob reports the job state. A failed job never exposes its partial
// snapshot, and partial data is only returned when the caller asks for it.
func (a *App) GetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobId")
	wantPartial := wantsPartial(r.URL.Query().Get("partial"))
	ctx := r.Context()

	status, err := a.jobs.Status(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		a.getMissingJob(w, r, id)
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Str("job_id", id).Msg("handlers: load status")
		a.error(w, http.StatusInternalServerError, "failed to load job")
		return
	}

	switch status {
	case domain.JobStatusFailed:
		msg, err := a.jobs.Error(ctx, id)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusInternalServerError, "failed to load job")
			return
		}
		if msg == "" {
			msg = "generation failed"
		}
		a.json(w, http.StatusOK, jobStatusResponse{Status: domain.JobStatusFailed, Error: msg})
	case domain.JobStatusCompleted:
		final, err := a.jobs.Final(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			a.json(w, http.StatusOK, jobStatusResponse{Status: domain.JobStatusExpired})
			return
		}
		if err != nil {
			a.error(w, http.StatusInternalServerError, "failed to load job")
			return
		}
		a.json(w, http.StatusOK, jobStatusResponse{Status: domain.JobStatusCompleted, Data: final})
	default:
		if wantPartial {
			partial, err := a.jobs.Partial(ctx, id)
			switch {
			case err == nil:
				a.json(w, http.StatusOK, jobStatusResponse{Status: domain.JobStatusPartial, Data: partial})
				return
			case !errors.Is(err, domain.ErrNotFound):
				a.error(w, http.StatusInternalServerError, "failed to load job")
				return
			}
		}
		a.json(w, http.StatusOK, jobStatusResponse{Status: status})
	}
}

// getMissingJob answers for an id without a live status: archived payloads
// outlive the job keys, a surviving created marker means the job expired, and
// anything else is reported as pending.
func (a *App) getMissingJob(w http.ResponseWriter, r *http.Request, id string) {
	ctx := r.Context()
	if archived, err := a.jobs.IsArchived(ctx, id); err == nil && archived {
		if final, err := a.jobs.Final(ctx, id); err == nil {
			a.json(w, http.StatusOK, jobStatusResponse{Status: domain.JobStatusCompleted, Data: final})
			return
		}
	}
	if _, err := a.jobs.Created(ctx, id); err == nil {
		a.json(w, http.StatusOK, jobStatusResponse{Status: domain.JobStatusExpired})
		return
	}
	a.json(w, http.StatusOK, jobStatusResponse{Status: domain.JobStatusPending})
}

func wantsPartial(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}
