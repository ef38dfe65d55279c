package agent

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	xerrors "OpenPaint-Agent/internal/errors"
	"OpenPaint-Agent/internal/knowledge"
	"OpenPaint-Agent/internal/llm"
	"OpenPaint-Agent/internal/tools"
	"OpenPaint-Agent/pkg/logger"
)

// Task 描述一次完整的自动化运行目标。
type Task struct {
	// Goal 是交给模型的任务描述。为空时由 Input 和 Recipient 合成。
	Goal string `json:"goal"`
	// Input 是参与计算的字符串。
	Input string `json:"input"`
	// Recipient 是结果图片的收件邮箱。
	Recipient string `json:"recipient"`
	// MaxIterations 覆盖本次运行的回合上限，0 表示沿用 Loop 的默认值。
	MaxIterations int `json:"max_iterations,omitempty"`
}

// Outcome 汇总一次运行的终态。
type Outcome struct {
	State       State        `json:"state"`
	Summary     string       `json:"summary"`
	FailureCode xerrors.Code `json:"failure_code,omitempty"`
	Turns       []TurnRecord `json:"turns"`
}

// Loop 驱动模型与工具之间的回合循环，是系统的业务核心。
// 任何一个回合失败都会让整个运行终止，循环自身从不重试。
type Loop struct {
	llmClient     llm.Client
	registry      *tools.Registry
	knowledge     knowledge.Provider
	llmTimeout    time.Duration
	maxIterations int
	log           *slog.Logger
}

// Option 定义可选的 Loop 配置。
type Option func(*Loop)

// defaultMaxIterations 是回合数的默认上限。
const defaultMaxIterations = 10

// WithMaxIterations 设置单次运行允许的最大回合数。
func WithMaxIterations(limit int) Option {
	return func(l *Loop) {
		l.maxIterations = limit
	}
}

// WithKnowledgeProvider 配置知识库，用于在提示词中补充布局经验。
func WithKnowledgeProvider(provider knowledge.Provider) Option {
	return func(l *Loop) {
		l.knowledge = provider
	}
}

// WithLLMTimeout 设置单个回合调用大模型的超时时间。
func WithLLMTimeout(timeout time.Duration) Option {
	return func(l *Loop) {
		if timeout <= 0 {
			l.llmTimeout = 0
			return
		}
		l.llmTimeout = timeout
	}
}

// New 创建回合循环。
func New(llmClient llm.Client, registry *tools.Registry, opts ...Option) *Loop {
	loop := &Loop{
		llmClient:     llmClient,
		registry:      registry,
		maxIterations: defaultMaxIterations,
		log:           logger.Named("agent"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(loop)
		}
	}
	if loop.maxIterations <= 0 {
		loop.maxIterations = defaultMaxIterations
	}
	return loop
}

// ComposeGoal 由输入字符串和收件人合成标准任务描述。
func ComposeGoal(input, recipient string) string {
	return fmt.Sprintf(
		"Open the canvas application. Calculate the sum of exponentials of the character codes of %q "+
			"(each code raised to its 1-based position). Draw a rectangle on the canvas, write the resulting "+
			"number inside the rectangle, save the canvas as an image file, and email that file to %s.",
		input, recipient)
}

// Run 执行完整的回合循环直至完成、失败或回合耗尽。
// 失败时同时返回带终态的 Outcome 和对应错误码的错误。
func (l *Loop) Run(ctx context.Context, task Task) (*Outcome, error) {
	if l.llmClient == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置大模型客户端")
	}
	if l.registry == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置工具注册表")
	}

	goal := strings.TrimSpace(task.Goal)
	if goal == "" {
		if strings.TrimSpace(task.Input) == "" {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "任务目标和输入字符串不能同时为空")
		}
		if strings.TrimSpace(task.Recipient) == "" {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "未指定收件人邮箱")
		}
		goal = ComposeGoal(task.Input, task.Recipient)
	}

	maxIterations := l.maxIterations
	if task.MaxIterations > 0 {
		maxIterations = task.MaxIterations
	}

	session := NewSession()
	systemPrompt := buildSystemPrompt(l.registry, l.collectKnowledge(goal))

	for session.Turn < maxIterations {
		if err := ctx.Err(); err != nil {
			session.abort(xerrors.CodeBackendTimeout, "运行被取消")
			return l.outcome(session), xerrors.Wrap(xerrors.CodeBackendTimeout, err, "运行被取消")
		}

		directive, err := l.step(ctx, session, systemPrompt, goal)
		if err != nil {
			return l.outcome(session), err
		}

		if directive.Kind == KindFinalAnswer {
			session.finish(directive.FinalAnswer)
			l.log.Info("运行完成",
				slog.Int("turns", session.Turn),
				slog.String("summary", session.Summary))
			logger.Audit().Info("agent run finished",
				slog.String("state", string(session.State)),
				slog.Int("turns", session.Turn))
			return l.outcome(session), nil
		}
	}

	session.abort(xerrors.CodeIterationExhausted,
		fmt.Sprintf("回合数达到上限 %d，任务未完成", maxIterations))
	err := xerrors.New(xerrors.CodeIterationExhausted,
		fmt.Sprintf("回合数达到上限 %d", maxIterations))
	logger.Audit().Warn("agent run exhausted iterations",
		slog.Int("max_iterations", maxIterations))
	return l.outcome(session), err
}

// step 执行一个回合：调用模型、解析指令、必要时执行工具。
// 返回解析出的指令；任何失败都会把会话置为 ABORTED 并返回错误。
func (l *Loop) step(ctx context.Context, session *Session, systemPrompt, goal string) (*Directive, error) {
	llmCtx := ctx
	if l.llmTimeout > 0 {
		var cancel context.CancelFunc
		llmCtx, cancel = context.WithTimeout(ctx, l.llmTimeout)
		defer cancel()
	}

	response, err := l.llmClient.Generate(llmCtx, llm.Request{
		System: systemPrompt,
		Prompt: buildUserPrompt(goal, session.History),
	})
	if err != nil {
		if stdErrors.Is(err, context.DeadlineExceeded) {
			session.abort(xerrors.CodeBackendTimeout, "大模型推理超时")
			return nil, xerrors.Wrap(xerrors.CodeBackendTimeout, err, "大模型推理超时")
		}
		session.abort(xerrors.CodeBackendFailure, "大模型推理失败")
		return nil, xerrors.Wrap(xerrors.CodeBackendFailure, err, "大模型推理失败")
	}

	directive, err := ParseDirective(response.Text)
	if err != nil {
		session.abort(xerrors.CodeParseFailure, "模型输出无法解析")
		return nil, err
	}

	if directive.Kind == KindFinalAnswer {
		return directive, nil
	}

	call := directive.ToolCall
	tool, ok := l.registry.Lookup(call.Name)
	if !ok {
		session.abort(xerrors.CodeUnknownTool, fmt.Sprintf("模型请求了未注册的工具 %s", call.Name))
		return nil, xerrors.New(xerrors.CodeUnknownTool,
			fmt.Sprintf("未注册的工具: %s", call.Name))
	}

	l.log.Debug("执行工具",
		slog.Int("turn", session.Turn+1),
		slog.String("tool", call.Name))

	result, err := tool.Invoke(ctx, call.Arguments)
	if err != nil {
		// 工具返回了已登记的错误码时，终态沿用该错误码，保证 Outcome 与错误一致。
		if code := xerrors.CodeOf(err); code != xerrors.CodeUnknown {
			session.abort(code, fmt.Sprintf("工具 %s 执行失败", call.Name))
			return nil, err
		}
		session.abort(xerrors.CodeToolFailure, fmt.Sprintf("工具 %s 执行失败", call.Name))
		return nil, xerrors.Wrap(xerrors.CodeToolFailure, err,
			fmt.Sprintf("工具 %s 执行失败", call.Name))
	}

	session.recordTurn(call.Name, result.Text(), directive.Raw)
	return directive, nil
}

func (l *Loop) outcome(session *Session) *Outcome {
	return &Outcome{
		State:       session.State,
		Summary:     session.Summary,
		FailureCode: session.FailureCode,
		Turns:       append([]TurnRecord(nil), session.History...),
	}
}

func (l *Loop) collectKnowledge(goal string) []knowledge.Snippet {
	if l.knowledge == nil {
		return nil
	}
	return l.knowledge.Query(goal)
}
