// Package sqltest provides an in-memory infra.SQLExecutor for unit tests of
// code built on the sqlinline statements.
package sqltest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type SimpleRow struct {
	scan func(dest ...any) error
}

func NewSimpleRow(scanner func(dest ...any) error) SimpleRow {
	return SimpleRow{scan: scanner}
}

func (r SimpleRow) Scan(dest ...any) error {
	if r.scan == nil {
		return pgx.ErrNoRows
	}
	return r.scan(dest...)
}

// Call records one statement issued against the Recorder.
type Call struct {
	Marker string
	Args   []any
}

// Recorder is a scripted SQLExecutor. Handlers are keyed by the statement's
// marker uuid; statements without a handler succeed with no rows.
type Recorder struct {
	mu      sync.Mutex
	Calls   []Call
	OnExec  map[string]func(args []any) (pgconn.CommandTag, error)
	OnQuery map[string]func(args []any) pgx.Row
}

func (r *Recorder) record(query string, args []any) string {
	marker := Marker(query)
	r.mu.Lock()
	r.Calls = append(r.Calls, Call{Marker: marker, Args: args})
	r.mu.Unlock()
	return marker
}

func (r *Recorder) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	marker := r.record(query, args)
	if fn, ok := r.OnExec[marker]; ok {
		return fn(args)
	}
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (r *Recorder) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	marker := r.record(query, args)
	if fn, ok := r.OnQuery[marker]; ok {
		return fn(args)
	}
	return SimpleRow{}
}

func (r *Recorder) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	r.record(query, args)
	return nil, fmt.Errorf("sqltest: Query not supported")
}

// Count returns how many times the statement with marker ran.
func (r *Recorder) Count(marker string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.Calls {
		if c.Marker == marker {
			n++
		}
	}
	return n
}

// Marker extracts the uuid from a "--sql <uuid>" statement.
func Marker(query string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(query), "\n")
	return strings.TrimPrefix(strings.TrimSpace(line), "--sql ")
}
