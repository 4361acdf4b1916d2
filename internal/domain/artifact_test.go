package domain

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestSchoolSongVerses(t *testing.T) {
	song := SchoolSong{Lyrics: "one\nline\n\n\n two \r\n\r\nthree\n\n  "}
	verses := song.Verses()
	if len(verses) != 3 {
		t.Fatalf("verses = %#v, want 3", verses)
	}
	if verses[1] != "two" {
		t.Fatalf("verse[1] = %q", verses[1])
	}
}

func TestSchoolProfileCapturesMisplacedSections(t *testing.T) {
	raw := `{"schoolProfile":{"name":"A","principalMessage":{"name":"Sato"},"news":[ {"title":"x"} ]},"news":[]}`
	var art SchoolArtifact
	if err := json.Unmarshal([]byte(raw), &art); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if art.SchoolProfile.Name != "A" {
		t.Fatalf("name = %q", art.SchoolProfile.Name)
	}
	if got := string(art.SchoolProfile.Misplaced["news"]); got != `[{"title":"x"}]` {
		t.Fatalf("misplaced news = %s", got)
	}
	if _, ok := art.SchoolProfile.Misplaced["principalMessage"]; !ok {
		t.Fatal("principalMessage should be captured")
	}

	data, err := json.Marshal(art)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"principalMessage":{"name":"Sato"}`) {
		t.Fatalf("misplaced section lost on marshal: %s", data)
	}
	var again SchoolArtifact
	if err := json.Unmarshal(data, &again); err != nil {
		t.Fatalf("unmarshal again: %v", err)
	}
	if !reflect.DeepEqual(art, again) {
		t.Fatalf("round trip mismatch:\n%#v\n%#v", art, again)
	}
}

func TestPlaceholderRecognition(t *testing.T) {
	for _, u := range []string{"", PlaceholderImageURL(ImageTypeEmblem), PlaceholderImageURL(ImageTypeFullBody), PlaceholderAudioURL("")} {
		if !IsPlaceholder(u) {
			t.Fatalf("IsPlaceholder(%q) = false", u)
		}
	}
	if IsPlaceholder("https://storage.googleapis.com/bucket/generated/images/a.png") {
		t.Fatal("real asset url reported as placeholder")
	}
	if !strings.HasPrefix(PlaceholderImageURL(ImageTypeLandscape), "https://placehold.co/1664x928/") {
		t.Fatalf("landscape placeholder = %q", PlaceholderImageURL(ImageTypeLandscape))
	}
}

func TestParseImageType(t *testing.T) {
	if ParseImageType(" Portrait ") != ImageTypePortrait {
		t.Fatal("portrait not parsed")
	}
	if ParseImageType("tall") != ImageTypeFullBody {
		t.Fatal("tall should map to fullbody")
	}
	if ParseImageType("unknown") != ImageTypeLandscape {
		t.Fatal("unknown should default to landscape")
	}
}

func TestNormalizeHoistsIntoEmptySections(t *testing.T) {
	raw := `{"schoolProfile":{"name":"A","principalMessage":{"name":"Sato","message":"hi"},"news":[{"title":"nested"}],"rules":["nested"]},"news":[{"title":"top"}]}`
	var art SchoolArtifact
	if err := json.Unmarshal([]byte(raw), &art); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if n := art.Normalize(); n != 2 {
		t.Fatalf("hoisted = %d, want 2", n)
	}
	if art.PrincipalMessage.Name != "Sato" || len(art.Rules) != 1 {
		t.Fatalf("empty sections should adopt nested values: %+v", art)
	}
	if art.News[0].Title != "top" {
		t.Fatalf("non-empty top-level section must win, got %q", art.News[0].Title)
	}
	if art.SchoolProfile.Misplaced != nil {
		t.Fatal("misplaced sections should be cleared")
	}
	if art.Normalize() != 0 {
		t.Fatal("second Normalize should be a no-op")
	}
}

func TestAssetURLsSkipsPlaceholdersAndDuplicates(t *testing.T) {
	a := &SchoolArtifact{
		SchoolProfile: SchoolProfile{
			Emblem: ImageSlot{URL: "https://cdn.test/emblem.png"},
			HistoricalBuildings: []HistoricalBuilding{
				{Image: ImageSlot{URL: PlaceholderImageURL(ImageTypeLandscape)}},
				{Image: ImageSlot{URL: "https://cdn.test/building.png"}},
			},
		},
		PrincipalMessage: PrincipalMessage{Face: ImageSlot{URL: "https://cdn.test/emblem.png"}},
		SchoolSong:       SchoolSong{AudioURL: "https://cdn.test/anthem.mp3"},
		Uniforms:         []Uniform{{Image: ImageSlot{URL: ""}}},
	}
	want := []string{"https://cdn.test/emblem.png", "https://cdn.test/building.png", "https://cdn.test/anthem.mp3"}
	if got := a.AssetURLs(); !reflect.DeepEqual(got, want) {
		t.Fatalf("AssetURLs() = %#v, want %#v", got, want)
	}
}
