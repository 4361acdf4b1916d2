package textgen

import (
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"schoolsite/internal/domain"
)

type mockTable struct {
	bases      []string
	suffixes   []string
	mottos     []string
	principals []string
	clubs      []string
	events     []string
	facilities []string
	monuments  []string
	rules      []string
	styles     []string
	news       []string
}

var jaTable = mockTable{
	bases:      []string{"桜ヶ丘", "青葉", "若葉", "緑ヶ丘", "白鳥", "朝日", "星見", "清流"},
	suffixes:   []string{"高等学校", "学園", "中学校"},
	mottos:     []string{"誠実・挑戦・友愛", "自ら学び、共に輝く", "明るく、強く、美しく", "和して同ぜず"},
	principals: []string{"山田 花子", "佐藤 健太郎", "鈴木 美咲", "高橋 誠一", "田中 陽子", "伊藤 大介"},
	clubs:      []string{"合唱部", "天文部", "吹奏楽部", "陸上競技部", "茶道部"},
	events:     []string{"入学式", "体育祭", "文化祭", "合唱コンクール", "修学旅行", "卒業式"},
	facilities: []string{"図書館", "体育館", "理科実験室", "音楽室", "屋上庭園"},
	monuments:  []string{"創立記念碑", "友情の像", "希望の鐘"},
	rules:      []string{"登校時刻は午前8時20分とする。", "校内では互いに挨拶を交わすこと。", "廊下は走らないこと。", "授業中の携帯電話の使用は禁止する。", "制服は清潔に着用すること。"},
	styles:     []string{"荘厳な合唱曲", "明るい行進曲", "穏やかなバラード"},
	news:       []string{"新入生歓迎会を開催しました", "合唱部が地区大会で金賞を受賞", "図書館に新しい蔵書が加わりました", "避難訓練を実施しました", "地域清掃ボランティアに参加しました", "保護者会のお知らせ"},
}

var enTable = mockTable{
	bases:      []string{"cherry hill", "green leaf", "morning sun", "silver river", "starlight", "north wind"},
	suffixes:   []string{"High School", "Academy", "Junior High School"},
	mottos:     []string{"Honesty, Courage, Friendship", "Learn Together, Shine Together", "Bright, Strong and Kind"},
	principals: []string{"Hanako Yamada", "Kentaro Sato", "Yumiko Suzuki", "Seiichi Takahashi", "Yoko Tanaka", "Daisuke Ito"},
	clubs:      []string{"Chorus Club", "Astronomy Club", "Brass Band", "Track and Field", "Tea Ceremony Club"},
	events:     []string{"Entrance Ceremony", "Sports Festival", "Culture Festival", "Choir Contest", "School Trip", "Graduation"},
	facilities: []string{"Library", "Gymnasium", "Science Lab", "Music Room", "Rooftop Garden"},
	monuments:  []string{"Founding Stone", "Statue of Friendship", "Bell of Hope"},
	rules:      []string{"Arrive by 8:20 a.m.", "Greet one another on campus.", "Do not run in the hallways.", "Phones stay off during lessons.", "Wear the uniform neatly."},
	styles:     []string{"solemn choral anthem", "bright march", "gentle ballad"},
	news:       []string{"Welcome party for new students", "Chorus club wins district gold", "New books arrive at the library", "Evacuation drill held", "Students join a local clean-up", "Notice of parents' meeting"},
}

func tableFor(locale string) (mockTable, bool) {
	if strings.HasPrefix(strings.ToLower(locale), "ja") {
		return jaTable, true
	}
	return enTable, false
}

// Seed derives the deterministic mock seed from the request fields.
func Seed(req domain.GenerationRequest) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%.6f|%.6f|%s|%s", req.Lat, req.Lng, req.Address, strings.Join(req.Landmarks, "|"))
	return h.Sum64()
}

// Mock returns a deterministic, well-formed artifact for req. Every image
// slot carries a placeholder URL.
func Mock(req domain.GenerationRequest) *domain.SchoolArtifact {
	req = req.Normalize()
	seed := Seed(req)
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	table, ja := tableFor(req.Locale)
	pick := func(list []string) string { return list[rng.IntN(len(list))] }

	base := req.PrimaryLandmark()
	if base == domain.DefaultLandmark {
		base = pick(table.bases)
	}
	if !ja {
		base = cases.Title(language.English).String(base)
	}
	suffix := pick(table.suffixes)
	name := base + suffix
	if !ja {
		name = base + " " + suffix
	}
	founded := 1900 + rng.IntN(80)
	principal := pick(table.principals)

	a := &domain.SchoolArtifact{
		SchoolProfile: domain.SchoolProfile{
			Name:  name,
			Motto: pick(table.mottos),
			Overview: localized(ja,
				fmt.Sprintf("%sは%d年に創立された、%sを望む地に建つ学校です。地域と共に歩み、生徒一人ひとりの個性を伸ばす教育を大切にしています。", name, founded, base),
				fmt.Sprintf("%s was founded in %d within sight of %s. It grows alongside its community and values every student's individuality.", name, founded, base)),
			Emblem: slot(fmt.Sprintf("school emblem inspired by %s, flat vector crest", base), domain.ImageTypeEmblem),
			HistoricalBuildings: []domain.HistoricalBuilding{
				{Year: founded, Caption: localized(ja, "創立当時の木造校舎", "The original wooden schoolhouse"), Image: slot("old wooden japanese schoolhouse, sepia photograph", domain.ImageTypeLandscape)},
				{Year: founded + 60, Caption: localized(ja, "現在の鉄筋校舎", "The current concrete building"), Image: slot("modern school building on a sunny day", domain.ImageTypeLandscape)},
			},
		},
		PrincipalMessage: domain.PrincipalMessage{
			Name:    principal,
			Message: localized(ja, fmt.Sprintf("%sのホームページへようこそ。本校は「%s」を合言葉に、生徒が自ら考え行動する力を育んでいます。", name, "共に学ぶ"), fmt.Sprintf("Welcome to %s. Together we nurture students who think and act for themselves.", name)),
		},
		SchoolSong: domain.SchoolSong{
			Title:  localized(ja, name+" 校歌", name+" Anthem"),
			Lyrics: strings.Join(fillerVerses(ja, base), "\n\n"),
			Style:  pick(table.styles),
		},
	}
	a.PrincipalMessage.Gender = InferGender(principal)
	a.PrincipalMessage.Face = slot(facePrompt(a.PrincipalMessage.Gender), domain.ImageTypePortrait)

	start := time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < domain.NewsCount; i++ {
		a.News = append(a.News, domain.NewsItem{
			Date:  start.AddDate(0, 0, -14*i-rng.IntN(7)).Format("2006-01-02"),
			Title: table.news[(int(seed%7)+i)%len(table.news)],
			Body:  localized(ja, "詳しくは学校だよりをご覧ください。", "See the school newsletter for details."),
		})
	}
	a.Rules = append(a.Rules, table.rules[:3]...)
	club := pick(table.clubs)
	a.ClubActivities = []domain.Club{{Name: club, Description: localized(ja, "仲間と共に日々練習に励んでいます。", "Members practise together every day."), Image: slot("students enjoying a club activity after school", domain.ImageTypeLandscape)}}
	for i := 0; i < domain.EventCount; i++ {
		ev := table.events[(int(seed%5)+i)%len(table.events)]
		a.Events = append(a.Events, domain.Event{Name: ev, Month: 4 + i*3, Description: localized(ja, "全校生徒が参加する行事です。", "An event for the whole school."), Image: slot("school event with students, festive atmosphere", domain.ImageTypeLandscape)})
	}
	for i := 0; i < domain.FacilityCount; i++ {
		a.Facilities = append(a.Facilities, domain.Facility{Name: table.facilities[i], Description: localized(ja, "生徒の学びを支える施設です。", "A facility that supports student learning.")})
	}
	a.Monuments = []domain.Monument{{Name: pick(table.monuments), Description: localized(ja, "創立を記念して建てられました。", "Erected to commemorate the founding."), Image: slot("stone monument in a school courtyard", domain.ImageTypeLandscape)}}
	a.Uniforms = []domain.Uniform{{Description: localized(ja, "紺色のブレザーに校章をあしらった制服です。", "A navy blazer bearing the school crest."), Image: slot("full body student wearing a navy blazer school uniform, plain background", domain.ImageTypeFullBody)}}
	return a
}

func fillerVerses(ja bool, base string) []string {
	if ja {
		return []string{
			fmt.Sprintf("朝日に映える %s\n若き心は 空高く\n学びの道を 共に行く\nああ 我らが 学び舎よ", base),
			"緑の風に 誓いあう\n友と交わす 希望の歌\n明日の扉を 開くため\nああ 我らが 学び舎よ",
			"星降る夜も 忘れまじ\n師の教えを 胸に抱き\n未来へ続く この道を\nああ 我らが 学び舎よ",
		}
	}
	return []string{
		fmt.Sprintf("Bright morning over %s\nYoung hearts rising to the sky\nTogether on the road of learning\nOh, our beloved school", base),
		"In the green wind we make our vow\nA song of hope shared with friends\nTo open tomorrow's door\nOh, our beloved school",
		"Under falling stars we won't forget\nThe lessons held within our hearts\nThis road that leads to the future\nOh, our beloved school",
	}
}

func localized(ja bool, jaText, enText string) string {
	if ja {
		return jaText
	}
	return enText
}

func slot(prompt string, t domain.ImageType) domain.ImageSlot {
	return domain.ImageSlot{Prompt: prompt, URL: domain.PlaceholderImageURL(t)}
}
