package llm

import "context"

// Request 描述一次发送给大模型的完整提示。
type Request struct {
	System string
	Prompt string
}

// Response 是大模型返回的自由文本，由智能体层解析为指令。
type Response struct {
	Text string
}

// Client 定义了调用大模型的统一接口。
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}
