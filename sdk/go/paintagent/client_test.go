package paintagent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSubmitRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/runs" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var submission RunSubmission
		if err := json.NewDecoder(r.Body).Decode(&submission); err != nil {
			t.Errorf("decode submission: %v", err)
		}
		if submission.Input != "AB" {
			t.Errorf("unexpected input: %q", submission.Input)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(Run{ID: "run-1", Status: "pending"})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	created, err := client.SubmitRun(context.Background(), RunSubmission{Input: "AB", Recipient: "a@b.com"})
	if err != nil {
		t.Fatalf("SubmitRun: %v", err)
	}
	if created.ID != "run-1" || created.Status != "pending" {
		t.Fatalf("unexpected run: %+v", created)
	}
}

func TestGetRunError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"code": "RUN_NOT_FOUND", "message": "run not found"})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	_, err = client.GetRun(context.Background(), "missing")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Code != "RUN_NOT_FOUND" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
}

func TestWaitForCompletion(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		status := "running"
		var result *RunResult
		if calls >= 3 {
			status = "succeeded"
			result = &RunResult{State: "DONE", Summary: "ok", Turns: 6}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Run{ID: "run-1", Status: status, Result: result})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	detail, err := client.WaitForCompletion(ctx, "run-1", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("WaitForCompletion: %v", err)
	}
	if detail.Status != "succeeded" || detail.Result == nil || detail.Result.Turns != 6 {
		t.Fatalf("unexpected run: %+v", detail)
	}
	if calls < 3 {
		t.Fatalf("expected at least 3 polls, got %d", calls)
	}
}
