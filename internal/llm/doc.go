// Package llm 抽象大模型推理后端，屏蔽具体厂商的 API 差异。
package llm
