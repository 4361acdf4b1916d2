package textgen

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"schoolsite/internal/domain"
)

// ErrNoJSON is returned when model output contains no object at all.
var ErrNoJSON = errors.New("no json object in model output")

// ErrIncompleteArtifact is returned for objects that decode but carry none of
// the required sections.
var ErrIncompleteArtifact = errors.New("model output missing required sections")

// ParseStage records which pass produced a decodable object.
type ParseStage string

const (
	StageStrict         ParseStage = "strict"
	StageTrailingCommas ParseStage = "trailing_commas"
	StageRepair         ParseStage = "repair"
)

// ParseArtifact decodes model output into an artifact, trying a strict
// decode, then trailing comma removal, then Repair.
func ParseArtifact(raw string) (*domain.SchoolArtifact, ParseStage, error) {
	span := ExtractJSONSpan(trimCodeFence(raw))
	if span == "" {
		return nil, "", ErrNoJSON
	}

	var firstErr error
	attempt := func(stage ParseStage, text string) (*domain.SchoolArtifact, bool) {
		var artifact domain.SchoolArtifact
		if err := json.Unmarshal([]byte(text), &artifact); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return nil, false
		}
		return &artifact, true
	}

	artifact, ok := attempt(StageStrict, span)
	stage := StageStrict
	if !ok {
		artifact, ok = attempt(StageTrailingCommas, StripTrailingCommas(span))
		stage = StageTrailingCommas
	}
	if !ok {
		repaired, err := Repair(span)
		if err != nil {
			return nil, "", fmt.Errorf("parse model output: %w (repair: %v)", firstErr, err)
		}
		artifact, ok = attempt(StageRepair, repaired)
		stage = StageRepair
	}
	if !ok {
		return nil, "", fmt.Errorf("parse model output: %w", firstErr)
	}
	artifact.Normalize()
	if strings.TrimSpace(artifact.SchoolProfile.Name) == "" && strings.TrimSpace(artifact.SchoolSong.Lyrics) == "" {
		return nil, "", ErrIncompleteArtifact
	}
	return artifact, stage, nil
}

// ExtractJSONSpan returns the first balanced top-level {...} span of s. When
// the object never closes, everything from the first brace on is returned.
func ExtractJSONSpan(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	var quote byte
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == quote:
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString, quote = true, c
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return strings.TrimSpace(s[start:])
}

// StripTrailingCommas removes commas that directly precede a closing brace
// or bracket, ignoring string contents.
func StripTrailingCommas(s string) string {
	out := make([]byte, 0, len(s))
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			out = append(out, c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '}', ']':
			out = trimTrailingComma(out)
		}
		out = append(out, c)
	}
	return string(out)
}

func trimTrailingComma(out []byte) []byte {
	end := len(out)
	for end > 0 && isSpace(out[end-1]) {
		end--
	}
	if end > 0 && out[end-1] == ',' {
		return append(out[:end-1], out[end:]...)
	}
	return out
}

func trimCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```JSON")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t'
}
