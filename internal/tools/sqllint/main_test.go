package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeGo(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("package q\n\n"+body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRunAcceptsMarkedQueries(t *testing.T) {
	dir := t.TempDir()
	writeGo(t, dir, "ok.go", "const QA = `--sql 11111111-2222-4333-8444-555555555555\nselect 1;\n`\n"+
		"const Label = \"not sql at all\"\n")
	var stderr bytes.Buffer
	if code := run([]string{dir}, &stderr); code != 0 {
		t.Fatalf("run = %d: %s", code, stderr.String())
	}
}

func TestRunReportsMissingAndDuplicateMarkers(t *testing.T) {
	dir := t.TempDir()
	writeGo(t, dir, "a.go", "const QA = `--sql 11111111-2222-4333-8444-555555555555\nselect 1;\n`\n"+
		"const QB = `create table t (id int);`\n")
	writeGo(t, dir, "b.go", "const QC = `--sql 11111111-2222-4333-8444-555555555555\ndelete from t;\n`\n")

	var stderr bytes.Buffer
	if code := run([]string{dir}, &stderr); code != 1 {
		t.Fatalf("run = %d, want 1", code)
	}
	out := stderr.String()
	for _, want := range []string{"missing or invalid --sql <uuid> marker (QB)", "already used by QA"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRunSkipsUnderscoreAndTestFiles(t *testing.T) {
	dir := t.TempDir()
	hidden := filepath.Join(dir, "_examples")
	if err := os.Mkdir(hidden, 0o755); err != nil {
		t.Fatal(err)
	}
	writeGo(t, hidden, "x.go", "const QX = `select 1`\n")
	writeGo(t, dir, "x_test.go", "const QY = `select 1`\n")
	var stderr bytes.Buffer
	if code := run([]string{dir}, &stderr); code != 0 {
		t.Fatalf("run = %d: %s", code, stderr.String())
	}
}
