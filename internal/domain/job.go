package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"

	// JobStatusPartial and JobStatusExpired are only reported by the polling
	// endpoint and never stored.
	JobStatusPartial JobStatus = "partial"
	JobStatusExpired JobStatus = "expired"
)

// DefaultJobIDPrefix is used when no prefix is configured.
const DefaultJobIDPrefix = "school"

// Terminal reports whether no further transition is allowed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Valid reports whether the status is one that may be stored.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusCompleted, JobStatusFailed:
		return true
	default:
		return false
	}
}

var jobIDPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*-[0-9]{13}-[0-9a-f]{12}$`)

// NewJobID returns "{prefix}-{unixMillis}-{random}". The random part is
// taken from a v4 UUID so ids stay unique across processes.
func NewJobID(prefix string) string {
	prefix = sanitizeIDPrefix(prefix)
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%s-%013d-%s", prefix, time.Now().UnixMilli(), random)
}

// ValidJobID reports whether id has the shape produced by NewJobID.
func ValidJobID(id string) bool {
	return jobIDPattern.MatchString(id)
}

func sanitizeIDPrefix(prefix string) string {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	var b strings.Builder
	lastDash := true
	for _, r := range prefix {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return DefaultJobIDPrefix
	}
	return out
}
