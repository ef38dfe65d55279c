package tools

import (
	"context"
	"fmt"
	"os"
	"strings"

	xerrors "OpenPaint-Agent/internal/errors"
	"OpenPaint-Agent/internal/mail"
)

// SendEmailWithAttachment 通过邮件服务发送带附件的邮件。
// 只做单次尝试，传输层拒绝或附件缺失都会让整个运行终止。
type SendEmailWithAttachment struct {
	Sender mail.Sender
}

// Name 实现 Tool 接口。
func (SendEmailWithAttachment) Name() string { return "send_email_with_attachment" }

// Description 实现 Tool 接口。
func (SendEmailWithAttachment) Description() string {
	return "向指定收件人发送带文件附件的邮件"
}

// Invoke 实现 Tool 接口。
func (t SendEmailWithAttachment) Invoke(ctx context.Context, args Arguments) (Result, error) {
	to, ok := args.String("to_address")
	if !ok || strings.TrimSpace(to) == "" {
		return Result{}, xerrors.New(xerrors.CodeInvalidArgument, "send_email_with_attachment 需要 to_address 参数")
	}
	subject, _ := args.String("subject")
	body, _ := args.String("body")
	attachment, ok := args.String("attachment_path")
	if !ok || strings.TrimSpace(attachment) == "" {
		return Result{}, xerrors.New(xerrors.CodeInvalidArgument, "send_email_with_attachment 需要 attachment_path 参数")
	}

	recipients := splitAddresses(to)
	if err := t.Sender.Send(ctx, mail.Message{
		To:             recipients,
		Subject:        subject,
		Body:           body,
		AttachmentPath: attachment,
	}); err != nil {
		return Result{}, err
	}
	return TextResult(fmt.Sprintf("Email sent to %s with attachment %s", strings.Join(recipients, ", "), attachment)), nil
}

// CheckFileExists 报告文件是否存在及其大小，供模型在发邮件前自检。
type CheckFileExists struct{}

// Name 实现 Tool 接口。
func (CheckFileExists) Name() string { return "check_file_exists" }

// Description 实现 Tool 接口。
func (CheckFileExists) Description() string {
	return "检查文件是否存在并返回其大小"
}

// Invoke 实现 Tool 接口。文件不存在不算失败，以文本结果告知模型。
func (CheckFileExists) Invoke(_ context.Context, args Arguments) (Result, error) {
	path, ok := args.String("file_path")
	if !ok || strings.TrimSpace(path) == "" {
		return Result{}, xerrors.New(xerrors.CodeInvalidArgument, "check_file_exists 需要 file_path 参数")
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return TextResult(fmt.Sprintf("File does not exist: %s", path)), nil
		}
		return Result{}, fmt.Errorf("检查文件失败: %w", err)
	}
	return TextResult(fmt.Sprintf("File exists: %s (%d bytes)", path, info.Size())), nil
}

func splitAddresses(raw string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';'
	})
	addresses := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			addresses = append(addresses, trimmed)
		}
	}
	return addresses
}
