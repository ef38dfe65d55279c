package mail

import "context"

// Message 描述一封待发送的邮件。附件路径为空表示纯文本邮件。
type Message struct {
	To             []string
	Subject        string
	Body           string
	AttachmentPath string
}

// Sender 定义邮件发送能力。实现只做一次投递，失败直接上抛，由调用方决定后续。
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
