package pipeline

import (
	"context"
	"strings"
	"time"

	"schoolsite/internal/domain"
)

// Slot kinds name the image slots the pipeline fills. They key the mock
// asset cache, so they must stay stable.
const (
	SlotEmblem         = "emblem"
	SlotBuildingFirst  = "building-first"
	SlotBuildingRecent = "building-recent"
	SlotPrincipalFace  = "principal-face"
	SlotMonument       = "monument"
	SlotUniform        = "uniform"
	SlotEvent          = "event"
	SlotClub           = "club"
)

const (
	audioCacheKind  = "audio"
	mockCachePrefix = "mock-asset:"
)

// MockCacheTTL bounds how long generated assets are reused for mock artifacts.
const MockCacheTTL = 24 * time.Hour

// Slot points at one placeholder image inside an artifact.
type Slot struct {
	Kind   string
	Type   domain.ImageType
	target *domain.ImageSlot
}

// Prompt is the generation prompt of the slot.
func (s Slot) Prompt() string { return s.target.Prompt }

// Set stores url into the artifact.
func (s Slot) Set(url string) { s.target.URL = url }

// CollectSlots lists the placeholder slots of a in generation order: emblem,
// first historical building, most recent historical building, principal
// portrait, first monument, first uniform, first event missing an image and
// first club missing an image.
func CollectSlots(a *domain.SchoolArtifact) []Slot {
	var slots []Slot
	add := func(kind string, t domain.ImageType, target *domain.ImageSlot) {
		if target == nil || target.HasRealAsset() {
			return
		}
		slots = append(slots, Slot{Kind: kind, Type: t, target: target})
	}

	add(SlotEmblem, domain.ImageTypeEmblem, &a.SchoolProfile.Emblem)
	if b := a.SchoolProfile.HistoricalBuildings; len(b) > 0 {
		add(SlotBuildingFirst, domain.ImageTypeLandscape, &b[0].Image)
		if recent := mostRecentBuilding(b); recent > 0 {
			add(SlotBuildingRecent, domain.ImageTypeLandscape, &b[recent].Image)
		}
	}
	add(SlotPrincipalFace, domain.ImageTypePortrait, &a.PrincipalMessage.Face)
	if len(a.Monuments) > 0 {
		add(SlotMonument, domain.ImageTypeLandscape, &a.Monuments[0].Image)
	}
	if len(a.Uniforms) > 0 {
		add(SlotUniform, domain.ImageTypeFullBody, &a.Uniforms[0].Image)
	}
	for i := range a.Events {
		if !a.Events[i].Image.HasRealAsset() {
			add(SlotEvent, domain.ImageTypeLandscape, &a.Events[i].Image)
			break
		}
	}
	for i := range a.ClubActivities {
		if !a.ClubActivities[i].Image.HasRealAsset() {
			add(SlotClub, domain.ImageTypeLandscape, &a.ClubActivities[i].Image)
			break
		}
	}
	return slots
}

// mostRecentBuilding returns the index of the building with the latest year;
// the later entry wins ties.
func mostRecentBuilding(b []domain.HistoricalBuilding) int {
	best := 0
	for i := 1; i < len(b); i++ {
		if b[i].Year >= b[best].Year {
			best = i
		}
	}
	return best
}

// cachedAssets returns cached URLs for every kind, or false when any is missing.
func (o *Orchestrator) cachedAssets(ctx context.Context, kinds []string) (map[string]string, bool) {
	if o.cache == nil || len(kinds) == 0 {
		return nil, false
	}
	urls := make(map[string]string, len(kinds))
	for _, kind := range kinds {
		if _, seen := urls[kind]; seen {
			continue
		}
		v, ok, err := o.cache.GetValue(ctx, mockCachePrefix+kind)
		if err != nil {
			o.logger.Debug().Err(err).Str("kind", kind).Msg("pipeline: mock cache read failed")
			return nil, false
		}
		if !ok || domain.IsPlaceholder(v) {
			return nil, false
		}
		urls[kind] = strings.TrimSpace(v)
	}
	return urls, true
}

// rememberAssets refreshes the mock cache with every real URL.
func (o *Orchestrator) rememberAssets(ctx context.Context, urls map[string]string) {
	if o.cache == nil {
		return
	}
	for kind, u := range urls {
		if domain.IsPlaceholder(u) {
			continue
		}
		if err := o.cache.SetValue(ctx, mockCachePrefix+kind, u, MockCacheTTL); err != nil {
			o.logger.Debug().Err(err).Str("kind", kind).Msg("pipeline: mock cache write failed")
		}
	}
}
