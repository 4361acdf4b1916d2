// Package jobstore keeps job status, snapshots, the public archive and the
// shared best-effort caches in a TTL-capable key/value backend.
package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"schoolsite/internal/domain"
)

const (
	DefaultJobTTL     = time.Hour
	DefaultCreatedTTL = 24 * time.Hour

	archiveKey  = "archive:list"
	cachePrefix = "cache:"
)

func statusKey(id string) string  { return "job:" + id + ":status" }
func partialKey(id string) string { return "job:" + id + ":partial" }
func finalKey(id string) string   { return "job:" + id }
func errorKey(id string) string   { return "job:" + id + ":error" }
func starsKey(id string) string   { return "job:" + id + ":stars" }
func createdKey(id string) string { return "job:" + id + ":created" }

func stepsKey(id string) string { return "job:" + id + ":steps" }

// errMissing is returned by backends for absent keys.
var errMissing = errors.New("jobstore: key missing")

// backend is the key/value surface the store needs. Redis and the in-process
// map both implement it.
type backend interface {
	get(ctx context.Context, key string) (string, error)
	set(ctx context.Context, key, value string, ttl time.Duration) error
	mget(ctx context.Context, keys ...string) ([]string, []bool, error)
	del(ctx context.Context, keys ...string) (int64, error)
	persist(ctx context.Context, key string) error
	expire(ctx context.Context, key string, ttl time.Duration) error
	hsetnx(ctx context.Context, key, field, value string) (bool, error)
	hgetall(ctx context.Context, key string) (map[string]string, error)
	hexists(ctx context.Context, key, field string) (bool, error)
	hdel(ctx context.Context, key, field string) (int64, error)
}

// Options tunes key lifetimes.
type Options struct {
	JobTTL     time.Duration
	CreatedTTL time.Duration
}

func (o Options) withDefaults() Options {
	if o.JobTTL <= 0 {
		o.JobTTL = DefaultJobTTL
	}
	if o.CreatedTTL <= 0 {
		o.CreatedTTL = DefaultCreatedTTL
	}
	return o
}

// Store is the job store. Every job key expires after JobTTL except the
// created marker (CreatedTTL) and archived payloads (never).
type Store struct {
	kv   backend
	opts Options
}

func newStore(kv backend, opts Options) *Store {
	return &Store{kv: kv, opts: opts.withDefaults()}
}

// JobTTL reports the lifetime applied to job keys.
func (s *Store) JobTTL() time.Duration { return s.opts.JobTTL }

func (s *Store) SetStatus(ctx context.Context, id string, status domain.JobStatus) error {
	if !status.Valid() {
		return fmt.Errorf("jobstore: status %q cannot be stored", status)
	}
	return s.kv.set(ctx, statusKey(id), string(status), s.opts.JobTTL)
}

// Status returns domain.ErrNotFound when the job is unknown or expired.
func (s *Store) Status(ctx context.Context, id string) (domain.JobStatus, error) {
	v, err := s.kv.get(ctx, statusKey(id))
	if err != nil {
		return "", mapMissing(err)
	}
	return domain.JobStatus(v), nil
}

// MarkCreated records the submission time with the longer CreatedTTL so an
// expired job can be told apart from an unknown one.
func (s *Store) MarkCreated(ctx context.Context, id string, at time.Time) error {
	return s.kv.set(ctx, createdKey(id), at.UTC().Format(time.RFC3339Nano), s.opts.CreatedTTL)
}

func (s *Store) Created(ctx context.Context, id string) (time.Time, error) {
	v, err := s.kv.get(ctx, createdKey(id))
	if err != nil {
		return time.Time{}, mapMissing(err)
	}
	at, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("jobstore: parse created marker: %w", err)
	}
	return at, nil
}

func (s *Store) SetPartial(ctx context.Context, id string, artifact *domain.SchoolArtifact) error {
	return s.setJSON(ctx, partialKey(id), artifact, s.opts.JobTTL)
}

func (s *Store) Partial(ctx context.Context, id string) (*domain.SchoolArtifact, error) {
	return s.getArtifact(ctx, partialKey(id))
}

func (s *Store) SetFinal(ctx context.Context, id string, artifact *domain.SchoolArtifact) error {
	return s.setJSON(ctx, finalKey(id), artifact, s.opts.JobTTL)
}

func (s *Store) Final(ctx context.Context, id string) (*domain.SchoolArtifact, error) {
	return s.getArtifact(ctx, finalKey(id))
}

func (s *Store) SetError(ctx context.Context, id, message string) error {
	return s.kv.set(ctx, errorKey(id), message, s.opts.JobTTL)
}

func (s *Store) Error(ctx context.Context, id string) (string, error) {
	v, err := s.kv.get(ctx, errorKey(id))
	if err != nil {
		return "", mapMissing(err)
	}
	return v, nil
}

// Archive lists the job publicly and makes its final payload permanent.
// Archiving the same id twice keeps the first entry.
func (s *Store) Archive(ctx context.Context, entry domain.ArchiveEntry) error {
	if strings.TrimSpace(entry.ID) == "" {
		return fmt.Errorf("jobstore: archive entry id required: %w", domain.ErrInvalidRequest)
	}
	entry.Stars = 0
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("jobstore: encode archive entry: %w", err)
	}
	if _, err := s.kv.hsetnx(ctx, archiveKey, entry.ID, string(raw)); err != nil {
		return err
	}
	if err := s.kv.persist(ctx, finalKey(entry.ID)); err != nil && !errors.Is(err, errMissing) {
		return err
	}
	return nil
}

// ListArchive returns archived entries by stars descending, newest first on ties.
func (s *Store) ListArchive(ctx context.Context) ([]domain.ArchiveEntry, error) {
	fields, err := s.kv.hgetall(ctx, archiveKey)
	if err != nil {
		return nil, err
	}
	entries := make([]domain.ArchiveEntry, 0, len(fields))
	for id, raw := range fields {
		var entry domain.ArchiveEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, fmt.Errorf("jobstore: decode archive entry %s: %w", id, err)
		}
		entries = append(entries, entry)
	}
	if len(entries) > 0 {
		keys := make([]string, len(entries))
		for i, e := range entries {
			keys[i] = starsKey(e.ID)
		}
		values, found, err := s.kv.mget(ctx, keys...)
		if err != nil {
			return nil, err
		}
		for i := range entries {
			if found[i] {
				entries[i].Stars, _ = strconv.ParseInt(values[i], 10, 64)
			}
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Stars != entries[j].Stars {
			return entries[i].Stars > entries[j].Stars
		}
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		}
		return entries[i].ID < entries[j].ID
	})
	return entries, nil
}

// IsArchived reports whether id has an archive entry.
func (s *Store) IsArchived(ctx context.Context, id string) (bool, error) {
	return s.kv.hexists(ctx, archiveKey, id)
}

// AddStar increments the star count of an archived job and returns the new
// count. The read and the write are separate round trips, so concurrent
// stars on the same id can lose increments.
func (s *Store) AddStar(ctx context.Context, id string) (int64, error) {
	ok, err := s.IsArchived(ctx, id)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, domain.ErrNotFound
	}
	var count int64
	v, err := s.kv.get(ctx, starsKey(id))
	switch {
	case err == nil:
		count, _ = strconv.ParseInt(v, 10, 64)
	case !errors.Is(err, errMissing):
		return 0, err
	}
	count++
	if err := s.kv.set(ctx, starsKey(id), strconv.FormatInt(count, 10), 0); err != nil {
		return 0, err
	}
	return count, nil
}

// Remove deletes every key of the job plus its archive entry.
func (s *Store) Remove(ctx context.Context, id string) error {
	n, err := s.kv.del(ctx,
		statusKey(id), errorKey(id), partialKey(id), finalKey(id),
		starsKey(id), createdKey(id), stepsKey(id),
	)
	if err != nil {
		return err
	}
	m, err := s.kv.hdel(ctx, archiveKey, id)
	if err != nil {
		return err
	}
	if n+m == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// LoadStep returns the checkpoint recorded for step, if any.
func (s *Store) LoadStep(ctx context.Context, id, step string) ([]byte, bool, error) {
	fields, err := s.kv.hgetall(ctx, stepsKey(id))
	if err != nil {
		return nil, false, err
	}
	v, ok := fields[step]
	if !ok {
		return nil, false, nil
	}
	return []byte(v), true, nil
}

// SaveStep records a checkpoint. The first recorded result of a step wins.
func (s *Store) SaveStep(ctx context.Context, id, step string, raw []byte) error {
	if _, err := s.kv.hsetnx(ctx, stepsKey(id), step, string(raw)); err != nil {
		return err
	}
	return s.kv.expire(ctx, stepsKey(id), s.opts.JobTTL)
}

// ClearSteps drops every checkpoint of the job.
func (s *Store) ClearSteps(ctx context.Context, id string) error {
	_, err := s.kv.del(ctx, stepsKey(id))
	return err
}

// GetValue reads a shared cache entry. A missing key is not an error.
func (s *Store) GetValue(ctx context.Context, key string) (string, bool, error) {
	v, err := s.kv.get(ctx, cachePrefix+key)
	if errors.Is(err, errMissing) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// SetValue writes a shared cache entry; ttl <= 0 keeps it forever.
func (s *Store) SetValue(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.kv.set(ctx, cachePrefix+key, value, ttl)
}

func (s *Store) setJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("jobstore: encode %s: %w", key, err)
	}
	return s.kv.set(ctx, key, string(raw), ttl)
}

func (s *Store) getArtifact(ctx context.Context, key string) (*domain.SchoolArtifact, error) {
	v, err := s.kv.get(ctx, key)
	if err != nil {
		return nil, mapMissing(err)
	}
	var artifact domain.SchoolArtifact
	if err := json.Unmarshal([]byte(v), &artifact); err != nil {
		return nil, fmt.Errorf("jobstore: decode %s: %w", key, err)
	}
	return &artifact, nil
}

func mapMissing(err error) error {
	if errors.Is(err, errMissing) {
		return domain.ErrNotFound
	}
	return err
}
