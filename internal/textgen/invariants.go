package textgen

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"schoolsite/internal/domain"
)

const (
	GenderFemale = "female"
	GenderMale   = "male"
)

// Given-name endings. The longest matching ending decides.
var (
	cjkFemaleSuffixes   = []string{"子", "美", "奈", "花", "香", "江", "代", "恵", "菜", "里", "乃", "華", "絵", "穂", "愛", "咲", "葉"}
	cjkMaleSuffixes     = []string{"太郎", "一郎", "郎", "太", "介", "助", "夫", "雄", "男", "彦", "也", "輔", "平", "樹", "之", "斗", "人", "一", "蔵"}
	latinFemaleSuffixes = []string{"ko", "mi", "na", "ka", "ri", "ho", "yo", "ne", "e", "a"}
	latinMaleSuffixes   = []string{"ichi", "suke", "hiko", "nori", "taro", "hei", "shi", "ro", "ta", "ya", "to", "ki", "ji", "o"}
)

// InferGender guesses the gender of a principal from the given name.
// It returns "" when the name gives no hint.
func InferGender(name string) string {
	normalized := strings.TrimSpace(norm.NFKC.String(name))
	if normalized == "" {
		return ""
	}
	fields := strings.Fields(normalized)
	if isLatin(normalized) {
		// Romanized names are written given name first.
		given := strings.ToLower(fields[0])
		return matchSuffix(given, latinFemaleSuffixes, latinMaleSuffixes)
	}
	given := fields[len(fields)-1]
	return matchSuffix(given, cjkFemaleSuffixes, cjkMaleSuffixes)
}

func matchSuffix(given string, female, male []string) string {
	best, bestLen := "", 0
	for _, s := range female {
		if strings.HasSuffix(given, s) && len(s) > bestLen {
			best, bestLen = GenderFemale, len(s)
		}
	}
	for _, s := range male {
		if strings.HasSuffix(given, s) && len(s) > bestLen {
			best, bestLen = GenderMale, len(s)
		}
	}
	return best
}

func isLatin(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) && r > unicode.MaxLatin1 {
			return false
		}
	}
	return true
}

// NormalizeGender maps free-form gender labels to male/female.
func NormalizeGender(g string) string {
	switch strings.ToLower(strings.TrimSpace(norm.NFKC.String(g))) {
	case "female", "f", "woman", "女性", "女":
		return GenderFemale
	case "male", "m", "man", "男性", "男":
		return GenderMale
	}
	return ""
}

var (
	femaleToMale = []wordSwap{{"woman", "man"}, {"women", "men"}, {"female", "male"}, {"lady", "gentleman"}, {"girl", "boy"}, {"she", "he"}, {"her", "his"}}
	genderWordRe = regexp.MustCompile(`(?i)\b(women|woman|female|lady|girl|she|her|men|man|male|gentleman|boy|he|his)\b`)
)

type wordSwap struct{ female, male string }

// AlignFacePrompt rewrites gendered words in prompt so they match gender.
func AlignFacePrompt(prompt, gender string) string {
	if gender != GenderFemale && gender != GenderMale {
		return prompt
	}
	out := genderWordRe.ReplaceAllStringFunc(prompt, func(w string) string {
		lower := strings.ToLower(w)
		for _, s := range femaleToMale {
			var from, to string
			if gender == GenderFemale {
				from, to = s.male, s.female
			} else {
				from, to = s.female, s.male
			}
			if lower == from {
				return matchCase(w, to)
			}
		}
		return w
	})
	if gender == GenderFemale {
		out = strings.ReplaceAll(out, "男性", "女性")
	} else {
		out = strings.ReplaceAll(out, "女性", "男性")
	}
	return out
}

func matchCase(src, word string) string {
	if src != "" && unicode.IsUpper(rune(src[0])) {
		return strings.ToUpper(word[:1]) + word[1:]
	}
	return word
}

func facePrompt(gender string) string {
	who := "middle-aged japanese woman"
	if gender == GenderMale {
		who = "middle-aged japanese man"
	}
	return "formal portrait photo of a " + who + ", school principal, warm smile, plain background"
}

// EnsureInvariants repairs a parsed artifact in place: three anthem verses,
// a principal gender consistent with name and portrait, placeholder URLs in
// every empty slot and the fixed section sizes. Missing content is borrowed
// from the deterministic mock for req.
func EnsureInvariants(a *domain.SchoolArtifact, req domain.GenerationRequest) {
	mock := Mock(req)
	_, ja := tableFor(req.Normalize().Locale)

	p := &a.SchoolProfile
	p.Name = firstNonEmpty(p.Name, mock.SchoolProfile.Name)
	p.Motto = firstNonEmpty(p.Motto, mock.SchoolProfile.Motto)
	p.Overview = firstNonEmpty(p.Overview, mock.SchoolProfile.Overview)
	fillSlot(&p.Emblem, mock.SchoolProfile.Emblem.Prompt, domain.ImageTypeEmblem)
	if len(p.HistoricalBuildings) == 0 {
		p.HistoricalBuildings = mock.SchoolProfile.HistoricalBuildings[:1]
	}
	for i := range p.HistoricalBuildings {
		fillSlot(&p.HistoricalBuildings[i].Image, mock.SchoolProfile.HistoricalBuildings[0].Image.Prompt, domain.ImageTypeLandscape)
	}

	ensureSong(&a.SchoolSong, mock.SchoolSong, ja)
	ensurePrincipal(&a.PrincipalMessage, mock.PrincipalMessage)

	a.News = resize(a.News, mock.News, domain.NewsCount)
	if len(a.Rules) == 0 {
		a.Rules = mock.Rules
	}
	a.ClubActivities = resize(a.ClubActivities, mock.ClubActivities, 1)
	a.Events = resize(a.Events, mock.Events, domain.EventCount)
	a.Facilities = resize(a.Facilities, mock.Facilities, domain.FacilityCount)
	a.Monuments = resize(a.Monuments, mock.Monuments, 1)
	a.Uniforms = resize(a.Uniforms, mock.Uniforms, 1)

	for i := range a.ClubActivities {
		fillSlot(&a.ClubActivities[i].Image, mock.ClubActivities[0].Image.Prompt, domain.ImageTypeLandscape)
	}
	for i := range a.Events {
		fillSlot(&a.Events[i].Image, mock.Events[0].Image.Prompt, domain.ImageTypeLandscape)
	}
	for i := range a.Monuments {
		fillSlot(&a.Monuments[i].Image, mock.Monuments[0].Image.Prompt, domain.ImageTypeLandscape)
	}
	for i := range a.Uniforms {
		fillSlot(&a.Uniforms[i].Image, mock.Uniforms[0].Image.Prompt, domain.ImageTypeFullBody)
	}
}

func ensureSong(song *domain.SchoolSong, mock domain.SchoolSong, ja bool) {
	song.Title = firstNonEmpty(song.Title, mock.Title)
	song.Style = firstNonEmpty(song.Style, mock.Style)
	verses := song.Verses()
	filler := mock.Verses()
	if len(filler) != domain.VerseCount {
		filler = fillerVerses(ja, "")
	}
	for len(verses) < domain.VerseCount {
		verses = append(verses, filler[len(verses)])
	}
	if len(verses) > domain.VerseCount {
		merged := strings.Join(verses[domain.VerseCount-1:], "\n")
		verses = append(verses[:domain.VerseCount-1], merged)
	}
	song.Lyrics = strings.Join(verses, "\n\n")
}

func ensurePrincipal(pm *domain.PrincipalMessage, mock domain.PrincipalMessage) {
	pm.Name = firstNonEmpty(pm.Name, mock.Name)
	pm.Message = firstNonEmpty(pm.Message, mock.Message)
	gender := InferGender(pm.Name)
	if gender == "" {
		gender = NormalizeGender(pm.Gender)
	}
	if gender == "" {
		gender = mock.Gender
	}
	if gender == "" {
		gender = GenderFemale
	}
	pm.Gender = gender
	if strings.TrimSpace(pm.Face.Prompt) == "" {
		pm.Face.Prompt = facePrompt(gender)
	} else {
		pm.Face.Prompt = AlignFacePrompt(pm.Face.Prompt, gender)
	}
	fillSlot(&pm.Face, "", domain.ImageTypePortrait)
}

func fillSlot(s *domain.ImageSlot, defaultPrompt string, t domain.ImageType) {
	if strings.TrimSpace(s.Prompt) == "" && defaultPrompt != "" {
		s.Prompt = defaultPrompt
	}
	if strings.TrimSpace(s.URL) == "" {
		s.URL = domain.PlaceholderImageURL(t)
	}
}

// resize trims items to n or pads them from filler.
func resize[T any](items, filler []T, n int) []T {
	if len(items) > n {
		return items[:n]
	}
	for i := len(items); i < n && len(filler) > 0; i++ {
		items = append(items, filler[i%len(filler)])
	}
	return items
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
