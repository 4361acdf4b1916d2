package handlers

import (
	"net/http"
	"strings"

	"schoolsite/internal/domain"
)

type imageAssetRequest struct {
	Prompt    string `json:"prompt"`
	ImageType string `json:"imageType"`
}

type audioAssetRequest struct {
	Lyrics string `json:"lyrics"`
	Style  string `json:"style"`
	Title  string `json:"title"`
}

// GenerateImageAsset always answers 200 with a URL; provider failures come
// back as a placeholder.
func (a *App) GenerateImageAsset(w http.ResponseWriter, r *http.Request) {
	var req imageAssetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.error(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		a.error(w, http.StatusBadRequest, "prompt is required")
		return
	}
	url := a.assets.GenerateImage(r.Context(), req.Prompt, domain.ParseImageType(req.ImageType))
	a.json(w, http.StatusOK, map[string]string{"url": url})
}

func (a *App) GenerateAudioAsset(w http.ResponseWriter, r *http.Request) {
	var req audioAssetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.error(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Lyrics) == "" {
		a.error(w, http.StatusBadRequest, "lyrics are required")
		return
	}
	url := a.assets.GenerateAudio(r.Context(), req.Lyrics, req.Style, req.Title)
	a.json(w, http.StatusOK, map[string]string{"url": url})
}
