package agent

import (
	"context"
	"fmt"
	"strings"
	"testing"

	xerrors "OpenPaint-Agent/internal/errors"
	"OpenPaint-Agent/internal/knowledge"
	"OpenPaint-Agent/internal/llm"
	"OpenPaint-Agent/internal/tools"
)

// scriptedLLM 按脚本依次返回预设输出，用于驱动回合循环测试。
type scriptedLLM struct {
	outputs []string
	errs    []error
	calls   int
	prompts []llm.Request
}

func (s *scriptedLLM) Generate(_ context.Context, req llm.Request) (*llm.Response, error) {
	index := s.calls
	s.calls++
	s.prompts = append(s.prompts, req)
	if index < len(s.errs) && s.errs[index] != nil {
		return nil, s.errs[index]
	}
	if index >= len(s.outputs) {
		return nil, fmt.Errorf("script exhausted after %d calls", index)
	}
	return &llm.Response{Text: s.outputs[index]}, nil
}

// recordingTool 记录自己被调用的次数并返回固定文本。
type recordingTool struct {
	name     string
	invoked  int
	failWith error
}

func (t *recordingTool) Name() string        { return t.name }
func (t *recordingTool) Description() string { return "test tool " + t.name }
func (t *recordingTool) Invoke(context.Context, tools.Arguments) (tools.Result, error) {
	t.invoked++
	if t.failWith != nil {
		return tools.Result{}, t.failWith
	}
	return tools.TextResult(t.name + " done"), nil
}

func newTestRegistry(t *testing.T, list ...tools.Tool) *tools.Registry {
	t.Helper()
	registry, err := tools.NewRegistry(list...)
	if err != nil {
		t.Fatalf("NewRegistry returned error: %v", err)
	}
	return registry
}

func TestRunCompletesEndToEnd(t *testing.T) {
	compute := &recordingTool{name: "ascii_exp_sum"}
	open := &recordingTool{name: "open_canvas"}
	draw := &recordingTool{name: "draw_rectangle"}
	write := &recordingTool{name: "add_text"}
	save := &recordingTool{name: "save_file"}
	send := &recordingTool{name: "send_email_with_attachment"}

	client := &scriptedLLM{outputs: []string{
		`FUNCTION_CALL: {"name": "ascii_exp_sum", "args": {"input_string": "AB"}}`,
		`FUNCTION_CALL: {"name": "open_canvas", "args": {}}`,
		`FUNCTION_CALL: {"name": "draw_rectangle", "args": {"x0": 600, "y0": 354, "x1": 1000, "y1": 454}}`,
		`FUNCTION_CALL: {"name": "add_text", "args": {"x": 800, "y": 404, "text": "4421"}}`,
		`FUNCTION_CALL: {"name": "save_file", "args": {"path": "/tmp/result.png"}}`,
		`FUNCTION_CALL: {"name": "send_email_with_attachment", "args": {"to_address": "dest@example.com", "attachment_path": "/tmp/result.png"}}`,
		"FINAL_ANSWER: result 4421 drawn and emailed",
	}}

	loop := New(client, newTestRegistry(t, compute, open, draw, write, save, send))
	outcome, err := loop.Run(context.Background(), Task{Input: "AB", Recipient: "dest@example.com"})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if outcome.State != StateDone {
		t.Fatalf("expected DONE, got %s", outcome.State)
	}
	if outcome.Summary != "result 4421 drawn and emailed" {
		t.Fatalf("unexpected summary: %q", outcome.Summary)
	}
	if len(outcome.Turns) != 6 {
		t.Fatalf("expected 6 recorded turns, got %d", len(outcome.Turns))
	}
	for _, tool := range []*recordingTool{compute, open, draw, write, save, send} {
		if tool.invoked != 1 {
			t.Fatalf("expected %s to be invoked once, got %d", tool.name, tool.invoked)
		}
	}
}

func TestRunHistoryAppearsInPrompts(t *testing.T) {
	compute := &recordingTool{name: "ascii_exp_sum"}
	client := &scriptedLLM{outputs: []string{
		`FUNCTION_CALL: {"name": "ascii_exp_sum", "args": {"input_string": "AB"}}`,
		"FINAL_ANSWER: done",
	}}

	loop := New(client, newTestRegistry(t, compute))
	if _, err := loop.Run(context.Background(), Task{Goal: "compute the sum"}); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(client.prompts) != 2 {
		t.Fatalf("expected 2 model calls, got %d", len(client.prompts))
	}
	// 第二个回合的提示词必须携带第一回合的工具结果。
	if !strings.Contains(client.prompts[1].Prompt, "ascii_exp_sum done") {
		t.Fatalf("expected tool result in second prompt, got %q", client.prompts[1].Prompt)
	}
	if !strings.Contains(client.prompts[0].System, "FUNCTION_CALL") {
		t.Fatalf("expected directive grammar in system prompt")
	}
}

func TestRunTimeoutOnFirstTurn(t *testing.T) {
	client := &scriptedLLM{errs: []error{context.DeadlineExceeded}}
	loop := New(client, newTestRegistry(t, &recordingTool{name: "ascii_exp_sum"}))

	outcome, err := loop.Run(context.Background(), Task{Goal: "compute"})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if xerrors.CodeOf(err) != xerrors.CodeBackendTimeout {
		t.Fatalf("expected BACKEND_TIMEOUT, got %s", xerrors.CodeOf(err))
	}
	if outcome.State != StateAborted {
		t.Fatalf("expected ABORTED, got %s", outcome.State)
	}
	// 第一回合就超时，历史必须为空。
	if len(outcome.Turns) != 0 {
		t.Fatalf("expected empty history, got %d turns", len(outcome.Turns))
	}
}

func TestRunAbortsOnParseFailure(t *testing.T) {
	client := &scriptedLLM{outputs: []string{"I will now draw a rectangle."}}
	loop := New(client, newTestRegistry(t, &recordingTool{name: "draw_rectangle"}))

	outcome, err := loop.Run(context.Background(), Task{Goal: "draw"})
	if err == nil {
		t.Fatal("expected parse failure")
	}
	if xerrors.CodeOf(err) != xerrors.CodeParseFailure {
		t.Fatalf("expected PARSE_FAILURE, got %s", xerrors.CodeOf(err))
	}
	if outcome.State != StateAborted {
		t.Fatalf("expected ABORTED, got %s", outcome.State)
	}
	if client.calls != 1 {
		t.Fatalf("expected no retry after parse failure, got %d calls", client.calls)
	}
}

func TestRunAbortsOnUnknownTool(t *testing.T) {
	registered := &recordingTool{name: "ascii_exp_sum"}
	client := &scriptedLLM{outputs: []string{
		`FUNCTION_CALL: {"name": "launch_missiles", "args": {}}`,
	}}
	loop := New(client, newTestRegistry(t, registered))

	_, err := loop.Run(context.Background(), Task{Goal: "compute"})
	if err == nil {
		t.Fatal("expected unknown tool error")
	}
	if xerrors.CodeOf(err) != xerrors.CodeUnknownTool {
		t.Fatalf("expected UNKNOWN_TOOL, got %s", xerrors.CodeOf(err))
	}
	if registered.invoked != 0 {
		t.Fatal("registered tool must not run for an unknown directive")
	}
}

func TestRunToolFailureStopsSubsequentSteps(t *testing.T) {
	save := &recordingTool{name: "save_file", failWith: fmt.Errorf("disk full")}
	send := &recordingTool{name: "send_email_with_attachment"}
	client := &scriptedLLM{outputs: []string{
		`FUNCTION_CALL: {"name": "save_file", "args": {"path": "/tmp/x.png"}}`,
		`FUNCTION_CALL: {"name": "send_email_with_attachment", "args": {"to_address": "a@b.com", "attachment_path": "/tmp/x.png"}}`,
	}}
	loop := New(client, newTestRegistry(t, save, send))

	outcome, err := loop.Run(context.Background(), Task{Goal: "save and send"})
	if err == nil {
		t.Fatal("expected tool failure")
	}
	if xerrors.CodeOf(err) != xerrors.CodeToolFailure {
		t.Fatalf("expected TOOL_EXECUTION_FAILURE, got %s", xerrors.CodeOf(err))
	}
	if outcome.State != StateAborted {
		t.Fatalf("expected ABORTED, got %s", outcome.State)
	}
	// 保存失败后不得继续发送邮件。
	if send.invoked != 0 {
		t.Fatal("email must not be attempted after save failure")
	}
	if client.calls != 1 {
		t.Fatalf("expected loop to stop after failed turn, got %d calls", client.calls)
	}
}

func TestRunPreservesToolErrorCode(t *testing.T) {
	draw := &recordingTool{
		name:     "draw_rectangle",
		failWith: xerrors.New(xerrors.CodeInvalidArgument, "坐标越界"),
	}
	client := &scriptedLLM{outputs: []string{
		`FUNCTION_CALL: {"name": "draw_rectangle", "args": {"x0": 1, "y0": 1, "x1": 9999, "y1": 9999}}`,
	}}
	loop := New(client, newTestRegistry(t, draw))

	outcome, err := loop.Run(context.Background(), Task{Goal: "draw"})
	if xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected INVALID_ARGUMENT to pass through, got %s", xerrors.CodeOf(err))
	}
	// 终态错误码必须与返回的错误一致。
	if outcome.FailureCode != xerrors.CodeInvalidArgument {
		t.Fatalf("expected outcome code INVALID_ARGUMENT, got %s", outcome.FailureCode)
	}
	if outcome.State != StateAborted {
		t.Fatalf("expected ABORTED, got %s", outcome.State)
	}
}

func TestRunIterationExhaustion(t *testing.T) {
	tool := &recordingTool{name: "ascii_exp_sum"}
	client := &scriptedLLM{outputs: []string{
		`FUNCTION_CALL: {"name": "ascii_exp_sum", "args": {"input_string": "A"}}`,
		`FUNCTION_CALL: {"name": "ascii_exp_sum", "args": {"input_string": "A"}}`,
		`FUNCTION_CALL: {"name": "ascii_exp_sum", "args": {"input_string": "A"}}`,
	}}
	loop := New(client, newTestRegistry(t, tool), WithMaxIterations(3))

	outcome, err := loop.Run(context.Background(), Task{Goal: "compute forever"})
	if err == nil {
		t.Fatal("expected exhaustion error")
	}
	if xerrors.CodeOf(err) != xerrors.CodeIterationExhausted {
		t.Fatalf("expected ITERATION_EXHAUSTED, got %s", xerrors.CodeOf(err))
	}
	if outcome.State != StateAborted {
		t.Fatalf("expected ABORTED, got %s", outcome.State)
	}
	if len(outcome.Turns) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(outcome.Turns))
	}
}

func TestRunTaskIterationOverride(t *testing.T) {
	tool := &recordingTool{name: "ascii_exp_sum"}
	client := &scriptedLLM{outputs: []string{
		`FUNCTION_CALL: {"name": "ascii_exp_sum", "args": {"input_string": "A"}}`,
		`FUNCTION_CALL: {"name": "ascii_exp_sum", "args": {"input_string": "A"}}`,
		`FUNCTION_CALL: {"name": "ascii_exp_sum", "args": {"input_string": "A"}}`,
	}}
	loop := New(client, newTestRegistry(t, tool), WithMaxIterations(10))

	// 任务级上限必须覆盖 Loop 的默认上限。
	outcome, err := loop.Run(context.Background(), Task{Goal: "compute forever", MaxIterations: 1})
	if err == nil {
		t.Fatal("expected exhaustion error")
	}
	if xerrors.CodeOf(err) != xerrors.CodeIterationExhausted {
		t.Fatalf("expected ITERATION_EXHAUSTED, got %s", xerrors.CodeOf(err))
	}
	if len(outcome.Turns) != 1 {
		t.Fatalf("expected 1 turn under task limit, got %d", len(outcome.Turns))
	}
	if tool.invoked != 1 {
		t.Fatalf("expected tool to run once, got %d", tool.invoked)
	}
}

func TestRunValidatesTask(t *testing.T) {
	loop := New(&scriptedLLM{}, newTestRegistry(t))
	if _, err := loop.Run(context.Background(), Task{}); err == nil {
		t.Fatal("expected error for empty task")
	}
	if _, err := loop.Run(context.Background(), Task{Input: "AB"}); err == nil {
		t.Fatal("expected error for missing recipient")
	}
}

func TestRunKnowledgeHintsReachSystemPrompt(t *testing.T) {
	client := &scriptedLLM{outputs: []string{"FINAL_ANSWER: done"}}
	provider := knowledge.NewStaticProvider([]knowledge.Snippet{
		{Title: "画布布局", Content: "矩形参考坐标 (600,354) 到 (1000,454)。"},
	}, 3)
	loop := New(client, newTestRegistry(t), WithKnowledgeProvider(provider))

	if _, err := loop.Run(context.Background(), Task{Goal: "draw a rectangle"}); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !strings.Contains(client.prompts[0].System, "(600,354)") {
		t.Fatalf("expected hint in system prompt, got %q", client.prompts[0].System)
	}
}
