package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"schoolsite/internal/domain"
	"schoolsite/pkg/zip"

	"github.com/go-chi/chi/v5"
)

func (a *App) ListArchive(w http.ResponseWriter, r *http.Request) {
	items, err := a.jobs.ListArchive(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("handlers: list archive")
		a.error(w, http.StatusInternalServerError, "failed to load archive")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

// GetArchived returns the final payload of an archived job.
func (a *App) GetArchived(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	final, ok := a.loadArchived(w, r, id)
	if !ok {
		return
	}
	a.json(w, http.StatusOK, final)
}

func (a *App) StarArchived(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	stars, err := a.jobs.AddStar(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		a.error(w, http.StatusNotFound, "archive entry not found")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Str("job_id", id).Msg("handlers: add star")
		a.error(w, http.StatusInternalServerError, "failed to star entry")
		return
	}
	a.json(w, http.StatusOK, map[string]int64{"stars": stars})
}

// DeleteArchived removes every key of the job, its archive entry and its
// pipeline checkpoints.
func (a *App) DeleteArchived(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()
	err := a.jobs.Remove(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		a.error(w, http.StatusNotFound, "archive entry not found")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Str("job_id", id).Msg("handlers: remove job")
		a.error(w, http.StatusInternalServerError, "failed to delete entry")
		return
	}
	if a.steps != nil {
		if err := a.steps.ClearSteps(ctx, id); err != nil {
			a.logger.Warn().Err(err).Str("job_id", id).Msg("handlers: clear checkpoints")
		}
	}
	a.logger.Info().Str("job_id", id).Msg("handlers: job deleted")
	a.json(w, http.StatusOK, map[string]bool{"ok": true})
}

// ExportArchived streams a zip with the final payload, the list of asset
// URLs and every asset that lives in the local static directory.
func (a *App) ExportArchived(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	final, ok := a.loadArchived(w, r, id)
	if !ok {
		return
	}
	payload, err := json.MarshalIndent(final, "", "  ")
	if err != nil {
		a.error(w, http.StatusInternalServerError, "failed to encode payload")
		return
	}
	urls := final.AssetURLs()
	files := []zip.Asset{
		{Filename: "school.json", MIME: "application/json", Data: payload},
		{Filename: "assets.txt", MIME: "text/plain", Data: []byte(strings.Join(urls, "\n"))},
	}
	for _, u := range urls {
		if data := a.loadLocalAsset(u); data != nil {
			files = append(files, zip.Asset{Filename: "assets/" + path.Base(u), Data: data})
		}
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.zip", id))
	w.WriteHeader(http.StatusOK)
	if err := zip.Write(w, files, a.now()); err != nil {
		a.logger.Warn().Err(err).Str("job_id", id).Msg("handlers: write export")
	}
}

func (a *App) loadArchived(w http.ResponseWriter, r *http.Request, id string) (*domain.SchoolArtifact, bool) {
	ctx := r.Context()
	archived, err := a.jobs.IsArchived(ctx, id)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "failed to load archive")
		return nil, false
	}
	if !archived {
		a.error(w, http.StatusNotFound, "archive entry not found")
		return nil, false
	}
	final, err := a.jobs.Final(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		a.error(w, http.StatusNotFound, "archive entry not found")
		return nil, false
	}
	if err != nil {
		a.error(w, http.StatusInternalServerError, "failed to load archive")
		return nil, false
	}
	return final, true
}

// loadLocalAsset reads u from the static directory when it is served by this
// process; remote assets return nil.
func (a *App) loadLocalAsset(u string) []byte {
	base := strings.TrimRight(a.staticBaseURL, "/")
	if a.staticDir == "" || base == "" || !strings.HasPrefix(u, base+"/") {
		return nil
	}
	key := path.Clean("/" + strings.TrimPrefix(u, base+"/"))
	data, err := os.ReadFile(filepath.Join(a.staticDir, filepath.FromSlash(strings.TrimPrefix(key, "/"))))
	if err != nil {
		return nil
	}
	return data
}
