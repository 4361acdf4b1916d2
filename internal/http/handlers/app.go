// Package handlers implements the job submission, polling, archive and
// asset endpoints.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"schoolsite/internal/domain"
	"schoolsite/internal/infra"
	"schoolsite/internal/jobstore"
	"schoolsite/internal/queue"
)

const maxBodyBytes = 1 << 20

// AssetGenerator produces a public URL for an asset and never fails; errors
// surface as placeholder URLs.
type AssetGenerator interface {
	GenerateImage(ctx context.Context, prompt string, t domain.ImageType) string
	GenerateAudio(ctx context.Context, lyrics, style, title string) string
}

// StepCleaner drops the checkpoints a job left in an external step log.
type StepCleaner interface {
	ClearSteps(ctx context.Context, jobID string) error
}

type Options struct {
	Jobs   *jobstore.Store
	Queue  queue.Queue
	Assets AssetGenerator
	// Steps is set when checkpoints live outside the job store.
	Steps       StepCleaner
	JobIDPrefix string
	// StaticDir and StaticBaseURL let archive exports embed locally stored
	// assets instead of linking them.
	StaticDir     string
	StaticBaseURL string
	Logger        *infra.Logger
	Now           func() time.Time
}

type App struct {
	jobs          *jobstore.Store
	queue         queue.Queue
	assets        AssetGenerator
	steps         StepCleaner
	prefix        string
	staticDir     string
	staticBaseURL string
	logger        *infra.Logger
	now           func() time.Time
}

func NewApp(opts Options) (*App, error) {
	if opts.Jobs == nil {
		return nil, errors.New("handlers: job store is required")
	}
	if opts.Queue == nil {
		return nil, errors.New("handlers: queue is required")
	}
	if opts.Assets == nil {
		return nil, errors.New("handlers: asset generator is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	prefix := opts.JobIDPrefix
	if prefix == "" {
		prefix = domain.DefaultJobIDPrefix
	}
	return &App{
		jobs:          opts.Jobs,
		queue:         opts.Queue,
		assets:        opts.Assets,
		steps:         opts.Steps,
		prefix:        prefix,
		staticDir:     opts.StaticDir,
		staticBaseURL: opts.StaticBaseURL,
		logger:        infra.LoggerOrDiscard(opts.Logger),
		now:           now,
	}, nil
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, msg string) {
	a.json(w, code, map[string]string{"error": msg})
}

// decodeJSON reads one JSON document from the request body and turns decoder
// failures into messages fit for a 400 response.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		var typeErr *json.UnmarshalTypeError
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return errors.New("request body is required")
		case errors.As(err, &typeErr) && typeErr.Field != "":
			return fmt.Errorf("%s has an invalid type", typeErr.Field)
		case errors.As(err, &maxErr):
			return errors.New("request body too large")
		default:
			return errors.New("malformed JSON body")
		}
	}
	return nil
}
