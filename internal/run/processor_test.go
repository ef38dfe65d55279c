package run

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"OpenPaint-Agent/internal/agent"
	xerrors "OpenPaint-Agent/internal/errors"
)

type fakeLoop struct {
	processed atomic.Int32
	latency   time.Duration
	failWith  error
	failTimes int32

	mu       sync.Mutex
	lastTask agent.Task
}

func (f *fakeLoop) Run(ctx context.Context, task agent.Task) (*agent.Outcome, error) {
	f.mu.Lock()
	f.lastTask = task
	f.mu.Unlock()
	if f.latency > 0 {
		select {
		case <-time.After(f.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	count := f.processed.Add(1)
	if f.failWith != nil && (f.failTimes == 0 || count <= f.failTimes) {
		return nil, f.failWith
	}
	return &agent.Outcome{
		State:   agent.StateDone,
		Summary: "ok",
		Turns:   []agent.TurnRecord{{Turn: 1, ToolName: "ascii_exp_sum", ResultText: "done"}},
	}, nil
}

func TestProcessorHandlesConcurrentRuns(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(1024)
	loop := &fakeLoop{latency: 5 * time.Millisecond}

	service := NewService(store, queue, 3)
	processor := NewProcessor(loop, store, queue, queue, WithWorkerCount(8))

	go func() {
		if err := processor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("processor exited: %v", err)
		}
	}()

	total := 100
	for i := 0; i < total; i++ {
		req := Request{Input: fmt.Sprintf("input-%d", i), Recipient: "dest@example.com"}
		if _, err := service.Submit(ctx, req); err != nil {
			t.Fatalf("提交运行失败: %v", err)
		}
	}

	deadline := time.After(5 * time.Second)
	for {
		if int(loop.processed.Load()) >= total {
			cancel()
			break
		}
		select {
		case <-deadline:
			t.Fatalf("运行未能及时处理，已完成 %d", loop.processed.Load())
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestProcessorMarksSuccess(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	queue := NewMemoryQueue(8)
	loop := &fakeLoop{}
	processor := NewProcessor(loop, store, queue, queue)

	if err := store.Create(ctx, &Run{ID: "r1", Input: "AB", Recipient: "a@b.com", MaxIterations: 4, Status: StatusPending, MaxRetries: 3}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := processor.Handle(ctx, "r1"); err != nil {
		t.Fatalf("handle: %v", err)
	}

	r, err := store.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if r.Status != StatusSucceeded {
		t.Fatalf("expected succeeded, got %s", r.Status)
	}
	if r.Result == nil || r.Result.State != string(agent.StateDone) || r.Result.Turns != 1 {
		t.Fatalf("unexpected result: %+v", r.Result)
	}
	// 运行级的回合上限必须原样传递给回合循环。
	loop.mu.Lock()
	task := loop.lastTask
	loop.mu.Unlock()
	if task.MaxIterations != 4 {
		t.Fatalf("expected max iterations forwarded, got %d", task.MaxIterations)
	}
	if task.Input != "AB" || task.Recipient != "a@b.com" {
		t.Fatalf("unexpected task: %+v", task)
	}
}

func TestProcessorRequeuesRetryableFailure(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	queue := NewMemoryQueue(8)
	loop := &fakeLoop{
		failWith:  xerrors.New(xerrors.CodeBackendTimeout, "大模型推理超时"),
		failTimes: 1,
	}
	processor := NewProcessor(loop, store, queue, queue)

	if err := store.Create(ctx, &Run{ID: "r1", Input: "AB", Recipient: "a@b.com", Status: StatusPending, MaxRetries: 3}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := processor.Handle(ctx, "r1"); err != nil {
		t.Fatalf("handle: %v", err)
	}

	r, err := store.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if r.Status != StatusFailed {
		t.Fatalf("expected failed after first attempt, got %s", r.Status)
	}
	if r.ErrorCode != string(xerrors.CodeBackendTimeout) {
		t.Fatalf("unexpected error code: %s", r.ErrorCode)
	}

	// 可重试失败必须已重新投递，第二次处理应当成功。
	if err := processor.Handle(ctx, "r1"); err != nil {
		t.Fatalf("handle retry: %v", err)
	}
	r, err = store.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("get after retry: %v", err)
	}
	if r.Status != StatusSucceeded {
		t.Fatalf("expected succeeded after retry, got %s", r.Status)
	}
	if r.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", r.Attempts)
	}
}

func TestProcessorDoesNotRequeueNonRetryableFailure(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	queue := NewMemoryQueue(8)
	loop := &fakeLoop{
		failWith: xerrors.New(xerrors.CodeParseFailure, "模型输出无法解析"),
	}
	processor := NewProcessor(loop, store, queue, queue)

	if err := store.Create(ctx, &Run{ID: "r1", Input: "AB", Recipient: "a@b.com", Status: StatusPending, MaxRetries: 3}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := processor.Handle(ctx, "r1"); err != nil {
		t.Fatalf("handle: %v", err)
	}

	r, err := store.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if r.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", r.Status)
	}
	if r.ErrorCode != string(xerrors.CodeParseFailure) {
		t.Fatalf("unexpected error code: %s", r.ErrorCode)
	}

	// 不可重试失败不得重新投递。
	select {
	case id := <-queue.ch:
		t.Fatalf("unexpected requeued run: %s", id)
	default:
	}
	if loop.processed.Load() != 1 {
		t.Fatalf("expected single execution, got %d", loop.processed.Load())
	}
}

func TestProcessorSkipsCompletedRun(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	queue := NewMemoryQueue(8)
	loop := &fakeLoop{}
	processor := NewProcessor(loop, store, queue, queue)

	if err := store.Create(ctx, &Run{ID: "r1", Input: "AB", Status: StatusPending, MaxRetries: 3}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.MarkSucceeded(ctx, "r1", Result{State: "DONE"}); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}

	if err := processor.Handle(ctx, "r1"); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if loop.processed.Load() != 0 {
		t.Fatal("completed run must not be executed again")
	}
}
