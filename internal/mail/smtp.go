package mail

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/gomail.v2"
)

// SMTPConfig 描述 SMTP 服务的连接信息。
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender 通过 SMTP 协议发送带附件的邮件。
type SMTPSender struct {
	cfg SMTPConfig
}

// NewSMTPSender 校验配置并创建发送器。
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("SMTP host 不能为空")
	}
	if cfg.Port <= 0 {
		cfg.Port = 465
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("发件人地址不能为空")
	}
	return &SMTPSender{cfg: cfg}, nil
}

// Send 组装 MIME 邮件并投递，单次尝试，不做重试。
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return errors.New("收件人不能为空")
	}
	if msg.AttachmentPath != "" {
		if _, err := os.Stat(msg.AttachmentPath); err != nil {
			return fmt.Errorf("附件不存在: %w", err)
		}
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", msg.To...)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)
	if msg.AttachmentPath != "" {
		m.Attach(msg.AttachmentPath)
	}

	dialer := gomail.NewDialer(s.cfg.Host, s.cfg.Port, s.cfg.Username, s.cfg.Password)

	// gomail 自身不支持 context，放到独立协程里以便感知取消。
	done := make(chan error, 1)
	go func() {
		done <- dialer.DialAndSend(m)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("发送邮件失败: %w", err)
		}
		return nil
	}
}

var _ Sender = (*SMTPSender)(nil)
