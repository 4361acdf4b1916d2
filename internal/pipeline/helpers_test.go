package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"

	"schoolsite/internal/domain"
	"schoolsite/internal/infra/sqltest"
	"schoolsite/internal/sqlinline"
	"schoolsite/internal/textgen"
)

func TestCollectSlotsOrder(t *testing.T) {
	a := textgen.Mock(tokyo)
	a.Events[0].Image.URL = "https://cdn.test/event0.png"
	slots := CollectSlots(a)
	var kinds []string
	for _, s := range slots {
		kinds = append(kinds, s.Kind)
	}
	want := []string{SlotEmblem, SlotBuildingFirst, SlotBuildingRecent, SlotPrincipalFace, SlotMonument, SlotUniform, SlotEvent, SlotClub}
	if strings.Join(kinds, ",") != strings.Join(want, ",") {
		t.Fatalf("kinds = %v, want %v", kinds, want)
	}
	if slots[6].target != &a.Events[1].Image {
		t.Fatal("event slot should be the first event still missing an image")
	}
	if slots[0].Type != domain.ImageTypeEmblem || slots[3].Type != domain.ImageTypePortrait || slots[5].Type != domain.ImageTypeFullBody {
		t.Fatalf("unexpected image types: %+v", slots)
	}
}

func TestCollectSlotsSingleBuilding(t *testing.T) {
	a := textgen.Mock(tokyo)
	a.SchoolProfile.HistoricalBuildings = a.SchoolProfile.HistoricalBuildings[:1]
	for _, s := range CollectSlots(a) {
		if s.Kind == SlotBuildingRecent {
			t.Fatal("a single building must not be collected twice")
		}
	}
}

func TestFillImagesHoistsMisplacedSections(t *testing.T) {
	h := newHarness(t, &stubText{}, &stubAssets{}, time.Minute)
	a := textgen.Mock(tokyo)
	a.Rules = nil
	a.SchoolProfile.Misplaced = map[string]json.RawMessage{"rules": json.RawMessage(`["走らない"]`)}
	out, err := h.orch.FillImages(context.Background(), tokyo, a, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Rules) != 1 || out.Rules[0] != "走らない" {
		t.Fatalf("rules = %v", out.Rules)
	}
}

func TestSanitizeError(t *testing.T) {
	long := strings.Repeat("あ", 400)
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: "generation failed"},
		{name: "provider body", err: errors.New(`step images: openai status 500: {"error":{"message":"The server had an error"}}`), want: "step images: openai status 500: The server had an error"},
		{name: "raw json dropped", err: errors.New(`decode failed {"a":1,"b":[2]} here`), want: "decode failed here"},
		{name: "truncated json dropped", err: errors.New(`bad body {"a":`), want: "bad body"},
		{name: "whitespace", err: errors.New("a\n\t  b   c"), want: "a b c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeError(tt.err); got != tt.want {
				t.Fatalf("SanitizeError = %q, want %q", got, tt.want)
			}
		})
	}
	got := SanitizeError(errors.New(long))
	if utf8.RuneCountInString(got) != MaxErrorLength {
		t.Fatalf("length = %d runes, want %d", utf8.RuneCountInString(got), MaxErrorLength)
	}
}

func TestBackoffBounds(t *testing.T) {
	tests := []struct {
		attempt int
		base    time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{5, 30 * time.Second},
		{12, 30 * time.Second},
	}
	for _, tt := range tests {
		for i := 0; i < 50; i++ {
			d := Backoff(tt.attempt)
			lo := time.Duration(float64(tt.base) * 0.8)
			hi := time.Duration(float64(tt.base) * 1.2)
			if d < lo || d > hi {
				t.Fatalf("Backoff(%d) = %s, want within [%s, %s]", tt.attempt, d, lo, hi)
			}
		}
	}
}

func TestStepErrorUnwraps(t *testing.T) {
	err := error(&StepError{Step: StepText, Err: context.DeadlineExceeded})
	if !errors.Is(err, context.DeadlineExceeded) || !strings.Contains(err.Error(), "text-and-anthem") {
		t.Fatalf("unexpected step error %v", err)
	}
}

func TestPostgresStepLog(t *testing.T) {
	load := sqltest.Marker(sqlinline.QLoadStep)
	db := &sqltest.Recorder{OnQuery: map[string]func([]any) pgx.Row{
		load: func(args []any) pgx.Row {
			if args[1] != StepText {
				return sqltest.SimpleRow{}
			}
			return sqltest.NewSimpleRow(func(dest ...any) error {
				*dest[0].(*[]byte) = []byte(`{"fallback":true}`)
				return nil
			})
		},
	}}
	log := NewPostgresStepLog(db)
	ctx := context.Background()

	raw, ok, err := log.LoadStep(ctx, "job", StepText)
	if err != nil || !ok || string(raw) != `{"fallback":true}` {
		t.Fatalf("LoadStep = %s %v %v", raw, ok, err)
	}
	if _, ok, err := log.LoadStep(ctx, "job", StepImages); ok || err != nil {
		t.Fatalf("missing step should report !ok, got %v %v", ok, err)
	}
	if err := log.SaveStep(ctx, "job", StepImages, []byte(`{}`)); err != nil {
		t.Fatal(err)
	}
	if err := log.ClearSteps(ctx, "job"); err != nil {
		t.Fatal(err)
	}
	if db.Count(sqltest.Marker(sqlinline.QSaveStep)) != 1 || db.Count(sqltest.Marker(sqlinline.QClearSteps)) != 1 {
		t.Fatalf("unexpected calls %+v", db.Calls)
	}
}
