package textgen

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"schoolsite/internal/domain"
)

// artifactSchema is the exact shape the model must return.
const artifactSchema = `{
  "schoolProfile": {
    "name": string,
    "motto": string,
    "overview": string,
    "emblem": {"prompt": string, "url": ""},
    "historicalBuildings": [{"year": integer, "caption": string, "image": {"prompt": string, "url": ""}}]
  },
  "principalMessage": {"name": string, "gender": "male"|"female", "message": string, "face": {"prompt": string, "url": ""}},
  "schoolSong": {"title": string, "lyrics": string, "style": string},
  "news": [{"date": "YYYY-MM-DD", "title": string, "body": string}],
  "rules": [string],
  "clubActivities": [{"name": string, "description": string, "image": {"prompt": string, "url": ""}}],
  "events": [{"name": string, "month": integer, "description": string, "image": {"prompt": string, "url": ""}}],
  "facilities": [{"name": string, "description": string}],
  "monuments": [{"name": string, "description": string, "image": {"prompt": string, "url": ""}}],
  "uniforms": [{"description": string, "image": {"prompt": string, "url": ""}}]
}`

// LanguageName returns the English name of the locale's language, used to
// pin the output language in prompts.
func LanguageName(locale string) string {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		tag = language.Japanese
	}
	base, _ := tag.Base()
	if name := display.English.Languages().Name(base); name != "" {
		return name
	}
	return "Japanese"
}

// BuildPrompt renders the generation prompt for req.
func BuildPrompt(req domain.GenerationRequest) string {
	req = req.Normalize()
	lang := LanguageName(req.Locale)

	sb := &strings.Builder{}
	sb.WriteString("Invent a fictional school located at the place described below and write the content of its website. ")
	sb.WriteString("Respond with exactly one JSON object and nothing else: no prose, no markdown, no code fences. ")
	sb.WriteString("The object must match this schema:\n")
	sb.WriteString(artifactSchema)
	sb.WriteString("\n\nConstraints:\n")
	fmt.Fprintf(sb, "- Write every human readable value in %s. Image prompts are always in English.\n", lang)
	sb.WriteString("- schoolProfile.name: at most 30 characters. motto: at most 40 characters. overview: 150 to 300 characters.\n")
	sb.WriteString("- historicalBuildings: 1 to 3 entries in chronological order with four digit years.\n")
	sb.WriteString("- principalMessage.message: 200 to 400 characters. gender must match the principal's given name.\n")
	sb.WriteString("- schoolSong.lyrics: exactly three verses separated by one blank line (\"\\n\\n\"), four lines per verse. style: a short music style tag.\n")
	fmt.Fprintf(sb, "- news: exactly %d items, newest first. rules: 3 to 6 short rules.\n", domain.NewsCount)
	fmt.Fprintf(sb, "- clubActivities: exactly 1. events: exactly %d with month 1-12. facilities: exactly %d. monuments: exactly 1. uniforms: exactly 1.\n", domain.EventCount, domain.FacilityCount)
	sb.WriteString("- Every image prompt describes a photo or illustration without any text, letters or logos. Leave every url empty.\n")
	sb.WriteString("- Weave the location and landmarks into the school's history, motto and anthem.\n")
	sb.WriteString("\nLocation:\n")
	fmt.Fprintf(sb, "- coordinates: %.5f, %.5f\n", req.Lat, req.Lng)
	if req.Address != "" {
		fmt.Fprintf(sb, "- address: %q\n", req.Address)
	}
	quoted := make([]string, 0, len(req.Landmarks))
	for _, lm := range req.Landmarks {
		quoted = append(quoted, fmt.Sprintf("%q", lm))
	}
	fmt.Fprintf(sb, "- nearby landmarks: %s\n", strings.Join(quoted, ", "))
	return sb.String()
}
