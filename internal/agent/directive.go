package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	xerrors "OpenPaint-Agent/internal/errors"
	"OpenPaint-Agent/internal/tools"
)

// DirectiveKind 标识模型输出指令的类型。
type DirectiveKind string

const (
	// KindFunctionCall 表示模型要求调用一个工具。
	KindFunctionCall DirectiveKind = "FUNCTION_CALL"
	// KindFinalAnswer 表示模型宣布任务完成。
	KindFinalAnswer DirectiveKind = "FINAL_ANSWER"
)

const (
	functionCallPrefix = "FUNCTION_CALL:"
	finalAnswerPrefix  = "FINAL_ANSWER:"
)

// ToolCall 是一次具名的工具调用请求。
type ToolCall struct {
	Name      string          `json:"name"`
	Arguments tools.Arguments `json:"args"`
}

// Directive 是模型单个回合的产物：要么调用工具，要么收尾。
type Directive struct {
	Kind        DirectiveKind
	ToolCall    *ToolCall
	FinalAnswer string
	Raw         string
}

// ParseDirective 从模型原始输出中解析指令。
// 输出允许携带若干行推理文字，但必须恰好包含一行以
// FUNCTION_CALL: 或 FINAL_ANSWER: 开头的指令，取第一条生效。
// 找不到指令行或 JSON 不合法都按解析失败处理，不做任何修复尝试。
func ParseDirective(output string) (*Directive, error) {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return nil, xerrors.New(xerrors.CodeParseFailure, "模型输出为空")
	}

	for _, line := range strings.Split(trimmed, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, functionCallPrefix):
			return parseFunctionCall(line)
		case strings.HasPrefix(line, finalAnswerPrefix):
			answer := strings.TrimSpace(strings.TrimPrefix(line, finalAnswerPrefix))
			return &Directive{
				Kind:        KindFinalAnswer,
				FinalAnswer: answer,
				Raw:         line,
			}, nil
		}
	}

	return nil, xerrors.New(xerrors.CodeParseFailure,
		fmt.Sprintf("模型输出中没有可识别的指令行: %q", truncate(trimmed, 200)))
}

func parseFunctionCall(line string) (*Directive, error) {
	payload := strings.TrimSpace(strings.TrimPrefix(line, functionCallPrefix))
	if payload == "" {
		return nil, xerrors.New(xerrors.CodeParseFailure, "FUNCTION_CALL 缺少 JSON 载荷")
	}

	var call ToolCall
	decoder := json.NewDecoder(strings.NewReader(payload))
	decoder.UseNumber()
	if err := decoder.Decode(&call); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeParseFailure, err, "FUNCTION_CALL 载荷不是合法 JSON")
	}
	if strings.TrimSpace(call.Name) == "" {
		return nil, xerrors.New(xerrors.CodeParseFailure, "FUNCTION_CALL 缺少工具名称")
	}
	if call.Arguments == nil {
		call.Arguments = tools.Arguments{}
	}

	return &Directive{
		Kind:     KindFunctionCall,
		ToolCall: &call,
		Raw:      line,
	}, nil
}

func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return text[:limit] + "..."
}
