package jobstore

import (
	"context"
	"errors"
	"os"
	"reflect"
	"strconv"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"schoolsite/internal/domain"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestStore(t *testing.T) (*Store, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)}
	return newStore(newMemoryBackend(clock.Now), Options{JobTTL: time.Hour, CreatedTTL: 24 * time.Hour}), clock
}

func sampleArtifact() *domain.SchoolArtifact {
	return &domain.SchoolArtifact{
		SchoolProfile: domain.SchoolProfile{
			Name:     "Sakuragaoka High School",
			Motto:    "Kindness and courage",
			Overview: "A hillside school.",
			Emblem:   domain.ImageSlot{Prompt: "cherry emblem", URL: "https://cdn.example.com/emblem.png"},
			HistoricalBuildings: []domain.HistoricalBuilding{
				{Year: 1952, Caption: "Wooden hall", Image: domain.ImageSlot{Prompt: "wooden hall", URL: domain.PlaceholderImageURL(domain.ImageTypeLandscape)}},
			},
		},
		PrincipalMessage: domain.PrincipalMessage{Name: "Yamada Hanako", Gender: "female", Message: "Welcome.", Face: domain.ImageSlot{Prompt: "portrait", URL: domain.PlaceholderImageURL(domain.ImageTypePortrait)}},
		SchoolSong:       domain.SchoolSong{Title: "Anthem", Lyrics: "one\n\ntwo\n\nthree", Style: "choral"},
		News:             []domain.NewsItem{{Date: "2024-04-01", Title: "Opening", Body: "Ceremony"}},
		Rules:            []string{"Be on time"},
		ClubActivities:   []domain.Club{{Name: "Chorus", Description: "Sings", Image: domain.ImageSlot{Prompt: "chorus", URL: domain.PlaceholderImageURL(domain.ImageTypeLandscape)}}},
		FallbackUsed:     true,
		FallbackReason:   "timeout",
	}
}

func TestPartialRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	want := sampleArtifact()

	if err := store.SetPartial(ctx, "job-1", want); err != nil {
		t.Fatalf("SetPartial: %v", err)
	}
	got, err := store.Partial(ctx, "job-1")
	if err != nil {
		t.Fatalf("Partial: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("partial round trip mismatch\n got: %+v\nwant: %+v", got, want)
	}
}

func TestStatusExpiresWithJobTTL(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	if err := store.SetStatus(ctx, "job-1", domain.JobStatusRunning); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if err := store.MarkCreated(ctx, "job-1", clock.Now()); err != nil {
		t.Fatalf("MarkCreated: %v", err)
	}
	status, err := store.Status(ctx, "job-1")
	if err != nil || status != domain.JobStatusRunning {
		t.Fatalf("Status = %q, %v", status, err)
	}

	clock.Advance(2 * time.Hour)
	if _, err := store.Status(ctx, "job-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after ttl, got %v", err)
	}
	if _, err := store.Created(ctx, "job-1"); err != nil {
		t.Fatalf("created marker should outlive status: %v", err)
	}
}

func TestSetStatusRejectsPollOnlyStates(t *testing.T) {
	store, _ := newTestStore(t)
	for _, status := range []domain.JobStatus{domain.JobStatusPartial, domain.JobStatusExpired, "bogus"} {
		if err := store.SetStatus(context.Background(), "job-1", status); err == nil {
			t.Fatalf("SetStatus(%q) expected error", status)
		}
	}
}

func TestArchivePersistsFinalPayload(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	if err := store.SetFinal(ctx, "job-1", sampleArtifact()); err != nil {
		t.Fatalf("SetFinal: %v", err)
	}
	entry := domain.ArchiveEntry{ID: "job-1", Name: "Sakuragaoka High School", CreatedAt: clock.Now()}
	if err := store.Archive(ctx, entry); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	entry.Name = "changed"
	if err := store.Archive(ctx, entry); err != nil {
		t.Fatalf("second Archive: %v", err)
	}

	clock.Advance(48 * time.Hour)
	if _, err := store.Final(ctx, "job-1"); err != nil {
		t.Fatalf("archived final payload expired: %v", err)
	}
	items, err := store.ListArchive(ctx)
	if err != nil {
		t.Fatalf("ListArchive: %v", err)
	}
	if len(items) != 1 || items[0].Name != "Sakuragaoka High School" {
		t.Fatalf("unexpected archive items: %+v", items)
	}
}

func TestArchivedJobKeepsOnlyFinalPayload(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	_ = store.SetStatus(ctx, "job-1", domain.JobStatusCompleted)
	_ = store.SetPartial(ctx, "job-1", sampleArtifact())
	_ = store.SaveStep(ctx, "job-1", "images", []byte(`{}`))
	_ = store.SetFinal(ctx, "job-1", sampleArtifact())
	if err := store.Archive(ctx, domain.ArchiveEntry{ID: "job-1", Name: "x", CreatedAt: clock.Now()}); err != nil {
		t.Fatalf("Archive: %v", err)
	}

	clock.Advance(2 * time.Hour)
	if _, err := store.Final(ctx, "job-1"); err != nil {
		t.Fatalf("archived final payload expired: %v", err)
	}
	if _, err := store.Status(ctx, "job-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("status should expire with the job ttl, got %v", err)
	}
	if _, err := store.Partial(ctx, "job-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("partial should expire with the job ttl, got %v", err)
	}
	if _, ok, _ := store.LoadStep(ctx, "job-1", "images"); ok {
		t.Fatal("step checkpoints should expire with the job ttl")
	}
}

func TestListArchiveOrdersByStarsThenNewest(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()
	base := clock.Now()

	for i, id := range []string{"a", "b", "c"} {
		entry := domain.ArchiveEntry{ID: id, Name: id, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := store.Archive(ctx, entry); err != nil {
			t.Fatalf("Archive(%s): %v", id, err)
		}
	}
	for i := 0; i < 2; i++ {
		if _, err := store.AddStar(ctx, "a"); err != nil {
			t.Fatalf("AddStar: %v", err)
		}
	}

	items, err := store.ListArchive(ctx)
	if err != nil {
		t.Fatalf("ListArchive: %v", err)
	}
	var got []string
	for _, it := range items {
		got = append(got, it.ID+":"+strconv.FormatInt(it.Stars, 10))
	}
	want := []string{"a:2", "c:0", "b:0"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
}

func TestAddStarRequiresArchivedJob(t *testing.T) {
	store, _ := newTestStore(t)
	if _, err := store.AddStar(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRemoveDeletesEveryKey(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()
	id := "job-1"

	_ = store.SetStatus(ctx, id, domain.JobStatusCompleted)
	_ = store.MarkCreated(ctx, id, clock.Now())
	_ = store.SetPartial(ctx, id, sampleArtifact())
	_ = store.SetFinal(ctx, id, sampleArtifact())
	_ = store.SetError(ctx, id, "boom")
	_ = store.SaveStep(ctx, id, "images", []byte(`{}`))
	_ = store.Archive(ctx, domain.ArchiveEntry{ID: id, Name: "x", CreatedAt: clock.Now()})
	if _, err := store.AddStar(ctx, id); err != nil {
		t.Fatalf("AddStar: %v", err)
	}

	if err := store.Remove(ctx, id); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	if _, err := store.Status(ctx, id); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("status still present: %v", err)
	}
	if _, err := store.Final(ctx, id); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("final still present: %v", err)
	}
	if _, err := store.Partial(ctx, id); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("partial still present: %v", err)
	}
	if _, err := store.Created(ctx, id); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("created marker still present: %v", err)
	}
	if _, ok, _ := store.LoadStep(ctx, id, "images"); ok {
		t.Fatalf("step checkpoint still present")
	}
	items, _ := store.ListArchive(ctx)
	if len(items) != 0 {
		t.Fatalf("archive still lists the job: %+v", items)
	}
	if err := store.Remove(ctx, id); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second Remove expected ErrNotFound, got %v", err)
	}
}

func TestStepCheckpointFirstWriteWins(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveStep(ctx, "job-1", "text", []byte(`"first"`)); err != nil {
		t.Fatalf("SaveStep: %v", err)
	}
	if err := store.SaveStep(ctx, "job-1", "text", []byte(`"second"`)); err != nil {
		t.Fatalf("SaveStep: %v", err)
	}
	raw, ok, err := store.LoadStep(ctx, "job-1", "text")
	if err != nil || !ok || string(raw) != `"first"` {
		t.Fatalf("LoadStep = %s, %v, %v", raw, ok, err)
	}

	clock.Advance(2 * time.Hour)
	if _, ok, _ := store.LoadStep(ctx, "job-1", "text"); ok {
		t.Fatalf("checkpoint should expire with the job ttl")
	}
}

func TestCacheValues(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	if _, ok, err := store.GetValue(ctx, "missing"); ok || err != nil {
		t.Fatalf("GetValue(missing) = %v, %v", ok, err)
	}
	if err := store.SetValue(ctx, "textgen:preferred-model", "gpt", time.Minute); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	v, ok, err := store.GetValue(ctx, "textgen:preferred-model")
	if err != nil || !ok || v != "gpt" {
		t.Fatalf("GetValue = %q, %v, %v", v, ok, err)
	}
	clock.Advance(2 * time.Minute)
	if _, ok, _ := store.GetValue(ctx, "textgen:preferred-model"); ok {
		t.Fatalf("cache value should have expired")
	}
}

func TestRedisStoreIntegration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}

	store, err := NewRedisStore(rdb, Options{JobTTL: time.Minute})
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	id := domain.NewJobID("itest")
	t.Cleanup(func() { _ = store.Remove(ctx, id) })

	want := sampleArtifact()
	if err := store.SetPartial(ctx, id, want); err != nil {
		t.Fatalf("SetPartial: %v", err)
	}
	got, err := store.Partial(ctx, id)
	if err != nil {
		t.Fatalf("Partial: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("redis partial round trip mismatch")
	}

	if err := store.SetFinal(ctx, id, want); err != nil {
		t.Fatalf("SetFinal: %v", err)
	}
	if err := store.Archive(ctx, domain.ArchiveEntry{ID: id, Name: "x", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	for i := 1; i <= 3; i++ {
		n, err := store.AddStar(ctx, id)
		if err != nil || n != int64(i) {
			t.Fatalf("AddStar #%d = %d, %v", i, n, err)
		}
	}
	ttl, err := rdb.TTL(ctx, finalKey(id)).Result()
	if err != nil {
		t.Fatalf("TTL: %v", err)
	}
	if ttl != -1 {
		t.Fatalf("archived final payload ttl = %v, want none", ttl)
	}
}

func TestMemoryBackendSweepsUnreadExpiredKeys(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)}
	b := newMemoryBackend(clock.Now)
	ctx := context.Background()

	_ = b.set(ctx, "status:old", "completed", time.Minute)
	_, _ = b.hsetnx(ctx, "steps:old", "images", "{}")
	_ = b.expire(ctx, "steps:old", time.Minute)
	_, _ = b.hsetnx(ctx, "archive", "old", "{}")
	_ = b.set(ctx, "final:old", "{}", 0)

	clock.Advance(2 * time.Minute)
	_ = b.set(ctx, "status:new", "pending", time.Hour)

	if _, ok := b.values["status:old"]; ok {
		t.Fatal("expired value survived the sweep")
	}
	if _, ok := b.hashes["steps:old"]; ok {
		t.Fatal("expired hash survived the sweep")
	}
	if _, ok := b.values["final:old"]; !ok {
		t.Fatal("persistent value was swept")
	}
	if _, ok := b.hashes["archive"]; !ok {
		t.Fatal("archive hash was swept")
	}

	// A second write inside the interval does not rescan.
	_ = b.set(ctx, "status:short", "pending", time.Second)
	clock.Advance(2 * time.Second)
	_ = b.set(ctx, "status:other", "pending", time.Hour)
	if _, ok := b.values["status:short"]; !ok {
		t.Fatal("sweep ran again before the interval elapsed")
	}
}
