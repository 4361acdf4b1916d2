package domain

import (
	"fmt"
	"math"
	"strings"
)

const (
	// DefaultLandmark stands in when the caller supplied no nearby landmark.
	DefaultLandmark = "地域のランドマーク"
	// DefaultLocale controls the language of generated text.
	DefaultLocale = "ja"
	// MaxLandmarks bounds how many landmarks are embedded into prompts.
	MaxLandmarks = 8
)

// GenerationRequest is the immutable input of a job.
type GenerationRequest struct {
	Lat       float64  `json:"lat"`
	Lng       float64  `json:"lng"`
	Address   string   `json:"address,omitempty"`
	Landmarks []string `json:"landmarks"`
	Locale    string   `json:"locale,omitempty"`
}

// Validate checks the coordinates. Callers decoding untrusted input are
// expected to reject non-numeric values before reaching this point.
func (r GenerationRequest) Validate() error {
	if math.IsNaN(r.Lat) || math.IsInf(r.Lat, 0) {
		return fmt.Errorf("%w: lat must be a finite number", ErrInvalidRequest)
	}
	if math.IsNaN(r.Lng) || math.IsInf(r.Lng, 0) {
		return fmt.Errorf("%w: lng must be a finite number", ErrInvalidRequest)
	}
	if r.Lat < -90 || r.Lat > 90 {
		return fmt.Errorf("%w: lat out of range", ErrInvalidRequest)
	}
	if r.Lng < -180 || r.Lng > 180 {
		return fmt.Errorf("%w: lng out of range", ErrInvalidRequest)
	}
	return nil
}

// Normalize returns a copy with defaults applied.
func (r GenerationRequest) Normalize() GenerationRequest {
	out := GenerationRequest{
		Lat:     r.Lat,
		Lng:     r.Lng,
		Address: strings.TrimSpace(r.Address),
		Locale:  strings.ToLower(strings.TrimSpace(r.Locale)),
	}
	seen := make(map[string]struct{}, len(r.Landmarks))
	for _, lm := range r.Landmarks {
		lm = strings.TrimSpace(lm)
		if lm == "" {
			continue
		}
		if _, ok := seen[lm]; ok {
			continue
		}
		seen[lm] = struct{}{}
		out.Landmarks = append(out.Landmarks, lm)
		if len(out.Landmarks) == MaxLandmarks {
			break
		}
	}
	if len(out.Landmarks) == 0 {
		out.Landmarks = []string{DefaultLandmark}
	}
	if out.Locale == "" {
		out.Locale = DefaultLocale
	}
	return out
}

// PrimaryLandmark returns the first landmark, or the sentinel.
func (r GenerationRequest) PrimaryLandmark() string {
	for _, lm := range r.Landmarks {
		if lm = strings.TrimSpace(lm); lm != "" {
			return lm
		}
	}
	return DefaultLandmark
}
