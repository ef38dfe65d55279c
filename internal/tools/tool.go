package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	xerrors "OpenPaint-Agent/internal/errors"
)

// Arguments 是模型为一次工具调用给出的扁平参数表。
// 模型偶尔会把数字写成字符串，取值方法需要同时兼容两种形式。
type Arguments map[string]any

// String 取出字符串参数。
func (a Arguments) String(key string) (string, bool) {
	value, ok := a[key]
	if !ok {
		return "", false
	}
	switch typed := value.(type) {
	case string:
		return typed, true
	case json.Number:
		return typed.String(), true
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64), true
	default:
		return fmt.Sprintf("%v", typed), true
	}
}

// Int 取出整数参数，兼容 JSON 数字与数字字符串。
func (a Arguments) Int(key string) (int, bool) {
	value, ok := a[key]
	if !ok {
		return 0, false
	}
	switch typed := value.(type) {
	case int:
		return typed, true
	case int64:
		return int(typed), true
	case float64:
		return int(typed), true
	case json.Number:
		parsed, err := typed.Int64()
		if err != nil {
			return 0, false
		}
		return int(parsed), true
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(typed))
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

// Content 是结果中的一个内容块。
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Result 是工具执行的返回值。部分工具产出结构化内容，
// 约定第一个文本块就是写入会话历史的标准文本表示。
type Result struct {
	Content []Content `json:"content"`
}

// TextResult 构造只含一段文本的结果。
func TextResult(text string) Result {
	return Result{Content: []Content{{Type: "text", Text: text}}}
}

// Text 返回结果的标准文本表示。
func (r Result) Text() string {
	for _, content := range r.Content {
		if content.Type == "text" {
			return content.Text
		}
	}
	return ""
}

// Tool 定义可被智能体按名称调用的能力。
type Tool interface {
	Name() string
	Description() string
	Invoke(ctx context.Context, args Arguments) (Result, error)
}

// Registry 维护名称到工具的静态映射，构建后不再变化。
type Registry struct {
	order  []string
	byName map[string]Tool
}

// NewRegistry 注册一组工具，名称冲突视为装配错误。
func NewRegistry(list ...Tool) (*Registry, error) {
	registry := &Registry{byName: make(map[string]Tool, len(list))}
	for _, tool := range list {
		if tool == nil {
			continue
		}
		name := strings.TrimSpace(tool.Name())
		if name == "" {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "工具名称不能为空")
		}
		if _, exists := registry.byName[name]; exists {
			return nil, xerrors.New(xerrors.CodeConflict, fmt.Sprintf("工具 %s 重复注册", name))
		}
		registry.byName[name] = tool
		registry.order = append(registry.order, name)
	}
	return registry, nil
}

// Lookup 按名称查找工具。
func (r *Registry) Lookup(name string) (Tool, bool) {
	tool, ok := r.byName[name]
	return tool, ok
}

// Names 返回注册顺序的工具名称列表。
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Describe 生成提供给模型的工具清单描述。
func (r *Registry) Describe() string {
	var builder strings.Builder
	for idx, name := range r.order {
		tool := r.byName[name]
		builder.WriteString(fmt.Sprintf("%d. %s - %s\n", idx+1, name, tool.Description()))
	}
	return strings.TrimRight(builder.String(), "\n")
}

// Validate 校验清单完整性：告知模型的每个名称都必须有对应实现。
// 在启动阶段调用，避免运行中才发现路由缺口。
func (r *Registry) Validate(announced []string) error {
	var missing []string
	for _, name := range announced {
		if _, ok := r.byName[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return xerrors.New(xerrors.CodeInitializationFailure,
			fmt.Sprintf("以下工具已告知模型但未注册: %s", strings.Join(missing, ", ")))
	}
	return nil
}
