package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func runCLI(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()
	api = nil
	apiURL = ""
	submitWait = false
	submitLat, submitLng = "", ""
	statusPartial = false
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--api", srv.URL}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestSubmitPrintsJobID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/jobs" {
			t.Fatalf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		landmarks, _ := body["landmarks"].([]any)
		if len(landmarks) != 2 {
			t.Fatalf("landmarks = %v", body["landmarks"])
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"jobId":"school-1"}`))
	}))
	defer srv.Close()

	out, err := runCLI(t, srv, "submit", "--lat", "35.6762", "--lng", "139.6503", "--landmark", "東京タワー", "--landmark", "浅草寺")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if strings.TrimSpace(out) != "school-1" {
		t.Fatalf("output = %q", out)
	}
}

func TestSubmitRequiresCoordinates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	}))
	defer srv.Close()
	if _, err := runCLI(t, srv, "submit", "--lat", "35"); err == nil {
		t.Fatal("expected error without --lng")
	}
	if _, err := runCLI(t, srv, "submit", "--lat", "95", "--lng", "0"); err == nil {
		t.Fatal("expected range error")
	}
}

func TestArchiveList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items":[{"id":"school-1","name":"東京学園","stars":3,"createdAt":"2025-05-01T09:00:00Z"}]}`))
	}))
	defer srv.Close()
	out, err := runCLI(t, srv, "archive", "list")
	if err != nil {
		t.Fatalf("archive list: %v", err)
	}
	if !strings.Contains(out, "school-1") || !strings.Contains(out, "東京学園") || !strings.Contains(out, "3") {
		t.Fatalf("output = %q", out)
	}
}
