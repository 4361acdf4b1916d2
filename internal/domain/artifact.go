package domain

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Fixed cardinalities of the generated site.
const (
	NewsCount     = 5
	EventCount    = 3
	FacilityCount = 3
	VerseCount    = 3
)

// ImageSlot is one image awaiting generation. URL starts as a placeholder
// and is replaced in place once a real asset exists.
type ImageSlot struct {
	Prompt string `json:"prompt"`
	URL    string `json:"url"`
}

// HasRealAsset reports whether the slot already points at a generated asset.
func (s ImageSlot) HasRealAsset() bool {
	return !IsPlaceholder(s.URL)
}

type HistoricalBuilding struct {
	Year    int       `json:"year"`
	Caption string    `json:"caption"`
	Image   ImageSlot `json:"image"`
}

type SchoolProfile struct {
	Name                string               `json:"name"`
	Motto               string               `json:"motto"`
	Overview            string               `json:"overview"`
	Emblem              ImageSlot            `json:"emblem"`
	HistoricalBuildings []HistoricalBuilding `json:"historicalBuildings"`

	// Misplaced holds top-level sections a model nested under the profile
	// by mistake. They survive serialization until the pipeline hoists them.
	Misplaced map[string]json.RawMessage `json:"-"`
}

type PrincipalMessage struct {
	Name    string    `json:"name"`
	Gender  string    `json:"gender"`
	Message string    `json:"message"`
	Face    ImageSlot `json:"face"`
}

type SchoolSong struct {
	Title    string `json:"title"`
	Lyrics   string `json:"lyrics"`
	Style    string `json:"style"`
	AudioURL string `json:"audioUrl,omitempty"`
}

// Verses splits lyrics on blank lines and drops empty verses.
func (s SchoolSong) Verses() []string {
	normalized := strings.ReplaceAll(s.Lyrics, "\r\n", "\n")
	var verses []string
	for _, block := range strings.Split(normalized, "\n\n") {
		if block = strings.TrimSpace(block); block != "" {
			verses = append(verses, block)
		}
	}
	return verses
}

type NewsItem struct {
	Date  string `json:"date"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

type Club struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Image       ImageSlot `json:"image"`
}

type Event struct {
	Name        string    `json:"name"`
	Month       int       `json:"month"`
	Description string    `json:"description"`
	Image       ImageSlot `json:"image"`
}

type Facility struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type Monument struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Image       ImageSlot `json:"image"`
}

type Uniform struct {
	Description string    `json:"description"`
	Image       ImageSlot `json:"image"`
}

// SchoolArtifact is the structured output of a job and the payload served to
// clients.
type SchoolArtifact struct {
	SchoolProfile    SchoolProfile    `json:"schoolProfile"`
	PrincipalMessage PrincipalMessage `json:"principalMessage"`
	SchoolSong       SchoolSong       `json:"schoolSong"`
	News             []NewsItem       `json:"news"`
	Rules            []string         `json:"rules"`
	ClubActivities   []Club           `json:"clubActivities"`
	Events           []Event          `json:"events"`
	Facilities       []Facility       `json:"facilities"`
	Monuments        []Monument       `json:"monuments"`
	Uniforms         []Uniform        `json:"uniforms"`

	FallbackUsed   bool   `json:"fallbackUsed"`
	FallbackReason string `json:"fallbackReason,omitempty"`
}

// AssetURLs returns every generated (non-placeholder) image and audio URL of
// the artifact, in document order and without duplicates.
func (a *SchoolArtifact) AssetURLs() []string {
	var urls []string
	seen := map[string]struct{}{}
	add := func(u string) {
		if IsPlaceholder(u) {
			return
		}
		if _, ok := seen[u]; ok {
			return
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	}
	add(a.SchoolProfile.Emblem.URL)
	for _, b := range a.SchoolProfile.HistoricalBuildings {
		add(b.Image.URL)
	}
	add(a.PrincipalMessage.Face.URL)
	for _, c := range a.ClubActivities {
		add(c.Image.URL)
	}
	for _, e := range a.Events {
		add(e.Image.URL)
	}
	for _, m := range a.Monuments {
		add(m.Image.URL)
	}
	for _, u := range a.Uniforms {
		add(u.Image.URL)
	}
	add(a.SchoolSong.AudioURL)
	return urls
}

// ArtifactSectionKeys lists the top-level sections that may be found nested
// under schoolProfile in malformed model output.
var ArtifactSectionKeys = []string{
	"principalMessage",
	"schoolSong",
	"news",
	"rules",
	"clubActivities",
	"events",
	"facilities",
	"monuments",
	"uniforms",
}

func (p *SchoolProfile) UnmarshalJSON(data []byte) error {
	type plain SchoolProfile
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v.Misplaced = nil
	for _, key := range ArtifactSectionKeys {
		msg, ok := raw[key]
		if !ok || isJSONNull(msg) {
			continue
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, msg); err != nil {
			return err
		}
		if v.Misplaced == nil {
			v.Misplaced = make(map[string]json.RawMessage)
		}
		v.Misplaced[key] = json.RawMessage(buf.Bytes())
	}
	*p = SchoolProfile(v)
	return nil
}

func (p SchoolProfile) MarshalJSON() ([]byte, error) {
	type plain SchoolProfile
	data, err := json.Marshal(plain(p))
	if err != nil || len(p.Misplaced) == 0 {
		return data, err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	for key, msg := range p.Misplaced {
		if _, taken := raw[key]; !taken {
			raw[key] = msg
		}
	}
	return json.Marshal(raw)
}

func isJSONNull(msg json.RawMessage) bool {
	return len(bytes.TrimSpace(msg)) == 0 || bytes.Equal(bytes.TrimSpace(msg), []byte("null"))
}

// Clone returns a deep copy produced through JSON so slot mutations on the
// copy never leak into the original.
func (a *SchoolArtifact) Clone() (*SchoolArtifact, error) {
	if a == nil {
		return nil, nil
	}
	data, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	var out SchoolArtifact
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DisplayName is the name used for archive listings.
func (a *SchoolArtifact) DisplayName() string {
	if a == nil {
		return ""
	}
	return strings.TrimSpace(a.SchoolProfile.Name)
}

// Normalize hoists sections found nested under schoolProfile to the top
// level. A top-level section that already has content is kept; an empty one
// adopts the nested value. It returns the number of sections hoisted.
func (a *SchoolArtifact) Normalize() int {
	if a == nil || len(a.SchoolProfile.Misplaced) == 0 {
		return 0
	}
	hoisted := 0
	for _, key := range ArtifactSectionKeys {
		raw, ok := a.SchoolProfile.Misplaced[key]
		if !ok {
			continue
		}
		target := a.emptySection(key)
		if target == nil {
			continue
		}
		if err := json.Unmarshal(raw, target); err != nil {
			continue
		}
		hoisted++
	}
	a.SchoolProfile.Misplaced = nil
	return hoisted
}

// emptySection returns a pointer to the top-level section key when it holds
// no content, or nil.
func (a *SchoolArtifact) emptySection(key string) any {
	switch key {
	case "principalMessage":
		if a.PrincipalMessage.Name == "" && a.PrincipalMessage.Message == "" {
			return &a.PrincipalMessage
		}
	case "schoolSong":
		if strings.TrimSpace(a.SchoolSong.Lyrics) == "" && a.SchoolSong.Title == "" {
			return &a.SchoolSong
		}
	case "news":
		if len(a.News) == 0 {
			return &a.News
		}
	case "rules":
		if len(a.Rules) == 0 {
			return &a.Rules
		}
	case "clubActivities":
		if len(a.ClubActivities) == 0 {
			return &a.ClubActivities
		}
	case "events":
		if len(a.Events) == 0 {
			return &a.Events
		}
	case "facilities":
		if len(a.Facilities) == 0 {
			return &a.Facilities
		}
	case "monuments":
		if len(a.Monuments) == 0 {
			return &a.Monuments
		}
	case "uniforms":
		if len(a.Uniforms) == 0 {
			return &a.Uniforms
		}
	}
	return nil
}
