package run

import (
	"context"
	stdErrors "errors"
	"testing"
	"time"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	r := &Run{ID: "r1", Input: "AB", Recipient: "a@b.com", Status: StatusPending, MaxRetries: 3}
	if err := store.Create(ctx, r); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, &Run{ID: "r1", Status: StatusPending, MaxRetries: 3}); !stdErrors.Is(err, ErrRunConflict) {
		t.Fatalf("expected conflict on duplicate create, got %v", err)
	}

	claimed, err := store.Claim(ctx, "r1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Status != StatusRunning || claimed.Attempts != 1 {
		t.Fatalf("unexpected claimed run: %+v", claimed)
	}

	// 执行中的运行不能被再次领取。
	if _, err := store.Claim(ctx, "r1"); !stdErrors.Is(err, ErrRunConflict) {
		t.Fatalf("expected conflict on double claim, got %v", err)
	}

	if err := store.MarkSucceeded(ctx, "r1", Result{State: "DONE", Summary: "ok", Turns: 6}); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}
	if _, err := store.Claim(ctx, "r1"); !stdErrors.Is(err, ErrRunCompleted) {
		t.Fatalf("expected completed on claim after success, got %v", err)
	}

	got, err := store.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusSucceeded || got.Result == nil || got.Result.Turns != 6 {
		t.Fatalf("unexpected run: %+v", got)
	}
}

func TestMemoryStoreClaimExhaustsRetries(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	r := &Run{ID: "r1", Input: "AB", Status: StatusPending, MaxRetries: 2}
	if err := store.Create(ctx, r); err != nil {
		t.Fatalf("create: %v", err)
	}

	for attempt := 1; attempt <= 2; attempt++ {
		claimed, err := store.Claim(ctx, "r1")
		if err != nil {
			t.Fatalf("claim attempt %d: %v", attempt, err)
		}
		if claimed.Attempts != attempt {
			t.Fatalf("expected attempts %d, got %d", attempt, claimed.Attempts)
		}
		if err := store.MarkFailed(ctx, "r1", CodeRunProcessing, "boom", false); err != nil {
			t.Fatalf("mark failed: %v", err)
		}
	}

	if _, err := store.Claim(ctx, "r1"); !stdErrors.Is(err, ErrRunExhausted) {
		t.Fatalf("expected exhausted, got %v", err)
	}
}

func TestMemoryStoreGetMissing(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Get(context.Background(), "missing"); !stdErrors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStoreListFiltersAndOrders(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := time.Now().Add(-2 * time.Minute)
	for _, r := range []*Run{
		{ID: "r1", Input: "A", Status: StatusPending, MaxRetries: 3},
		{ID: "r2", Input: "B", Status: StatusPending, MaxRetries: 3},
		{ID: "r3", Input: "C", Status: StatusPending, MaxRetries: 3},
	} {
		if err := store.Create(ctx, r); err != nil {
			t.Fatalf("create %s: %v", r.ID, err)
		}
	}
	if err := store.MarkFailed(ctx, "r2", CodeRunProcessing, "boom", true); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := store.MarkSucceeded(ctx, "r3", Result{State: "DONE"}); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}

	store.mu.Lock()
	store.runs["r1"].UpdatedAt = base.Unix()
	store.runs["r2"].UpdatedAt = base.Add(30 * time.Second).Unix()
	store.runs["r3"].UpdatedAt = base.Add(60 * time.Second).Unix()
	store.mu.Unlock()

	all, err := store.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 || all[0].ID != "r3" {
		t.Fatalf("expected newest first, got %+v", all)
	}

	failed, err := store.List(ctx, ListOptions{Statuses: []Status{StatusFailed}})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != "r2" {
		t.Fatalf("unexpected failed list: %+v", failed)
	}

	limited, err := store.List(ctx, ListOptions{Limit: 2})
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(limited))
	}
}
