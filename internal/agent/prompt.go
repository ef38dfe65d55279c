package agent

import (
	"fmt"
	"strings"

	"OpenPaint-Agent/internal/knowledge"
	"OpenPaint-Agent/internal/tools"
)

// buildSystemPrompt 生成系统提示词：工具清单、输出语法和知识库提示。
// 指令语法刻意收紧为单行，便于逐行解析。
func buildSystemPrompt(registry *tools.Registry, snippets []knowledge.Snippet) string {
	var builder strings.Builder
	builder.WriteString("You are an automation agent that solves tasks step by step using the tools below.\n")
	builder.WriteString("Available tools:\n")
	builder.WriteString(registry.Describe())
	builder.WriteString("\n\n")
	builder.WriteString("Respond with EXACTLY ONE directive line per turn, in one of two forms:\n")
	builder.WriteString("FUNCTION_CALL: {\"name\": \"tool_name\", \"args\": {\"param\": value}}\n")
	builder.WriteString("FINAL_ANSWER: <short summary of what was accomplished>\n")
	builder.WriteString("The FUNCTION_CALL JSON must be on a single line. ")
	builder.WriteString("Call one tool at a time and wait for its result before the next step. ")
	builder.WriteString("When every step of the task is finished, reply with FINAL_ANSWER.\n")

	if len(snippets) > 0 {
		builder.WriteString("\nHints:\n")
		for _, snippet := range snippets {
			if strings.TrimSpace(snippet.Content) == "" {
				continue
			}
			if strings.TrimSpace(snippet.Title) != "" {
				builder.WriteString(fmt.Sprintf("- %s: %s\n", snippet.Title, snippet.Content))
			} else {
				builder.WriteString(fmt.Sprintf("- %s\n", snippet.Content))
			}
		}
	}

	return builder.String()
}

// buildUserPrompt 生成当前回合的任务提示：目标加上已完成回合的结果。
func buildUserPrompt(goal string, history []TurnRecord) string {
	var builder strings.Builder
	builder.WriteString("Task: ")
	builder.WriteString(goal)
	builder.WriteString("\n")

	if len(history) == 0 {
		builder.WriteString("\nNo steps have been executed yet. Decide the first tool call.\n")
		return builder.String()
	}

	builder.WriteString("\nCompleted steps:\n")
	for _, record := range history {
		builder.WriteString(fmt.Sprintf("%d. %s -> %s\n", record.Turn, record.ToolName, record.ResultText))
	}
	builder.WriteString("\nDecide the next step, or reply with FINAL_ANSWER if the task is complete.\n")
	return builder.String()
}
