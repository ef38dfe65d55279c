package tools

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"OpenPaint-Agent/internal/mail"
)

type stubSender struct {
	messages []mail.Message
	failWith error
}

func (s *stubSender) Send(_ context.Context, msg mail.Message) error {
	if s.failWith != nil {
		return s.failWith
	}
	s.messages = append(s.messages, msg)
	return nil
}

func TestSendEmailWithAttachment(t *testing.T) {
	sender := &stubSender{}
	tool := SendEmailWithAttachment{Sender: sender}

	result, err := tool.Invoke(context.Background(), Arguments{
		"to_address":      "ops@example.com; audit@example.com",
		"subject":         "计算结果",
		"body":            "见附件",
		"attachment_path": "/tmp/result.png",
	})
	if err != nil {
		t.Fatalf("Invoke returned error: %v", err)
	}
	if len(sender.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sender.messages))
	}
	msg := sender.messages[0]
	if len(msg.To) != 2 || msg.To[0] != "ops@example.com" || msg.To[1] != "audit@example.com" {
		t.Fatalf("unexpected recipients: %v", msg.To)
	}
	if msg.AttachmentPath != "/tmp/result.png" {
		t.Fatalf("unexpected attachment: %s", msg.AttachmentPath)
	}
	if !strings.Contains(result.Text(), "ops@example.com") {
		t.Fatalf("unexpected result text: %q", result.Text())
	}
}

func TestSendEmailMissingRecipient(t *testing.T) {
	tool := SendEmailWithAttachment{Sender: &stubSender{}}
	_, err := tool.Invoke(context.Background(), Arguments{"attachment_path": "/tmp/a.png"})
	if err == nil {
		t.Fatal("expected error for missing to_address")
	}
}

func TestSendEmailMissingAttachment(t *testing.T) {
	tool := SendEmailWithAttachment{Sender: &stubSender{}}
	_, err := tool.Invoke(context.Background(), Arguments{"to_address": "a@b.com"})
	if err == nil {
		t.Fatal("expected error for missing attachment_path")
	}
}

func TestSendEmailPropagatesSenderError(t *testing.T) {
	sender := &stubSender{failWith: errors.New("smtp refused")}
	tool := SendEmailWithAttachment{Sender: sender}

	_, err := tool.Invoke(context.Background(), Arguments{
		"to_address":      "a@b.com",
		"attachment_path": "/tmp/a.png",
	})
	if err == nil {
		t.Fatal("expected sender error to propagate")
	}
}

func TestCheckFileExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "result.png")
	if err := os.WriteFile(path, []byte("png"), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	tool := CheckFileExists{}
	result, err := tool.Invoke(context.Background(), Arguments{"file_path": path})
	if err != nil {
		t.Fatalf("Invoke returned error: %v", err)
	}
	if !strings.HasPrefix(result.Text(), "File exists:") {
		t.Fatalf("unexpected result text: %q", result.Text())
	}
}

func TestCheckFileExistsMissingFile(t *testing.T) {
	tool := CheckFileExists{}
	result, err := tool.Invoke(context.Background(), Arguments{
		"file_path": filepath.Join(t.TempDir(), "absent.png"),
	})
	// 文件缺失是给模型的信息，不是工具失败。
	if err != nil {
		t.Fatalf("Invoke returned error: %v", err)
	}
	if !strings.HasPrefix(result.Text(), "File does not exist:") {
		t.Fatalf("unexpected result text: %q", result.Text())
	}
}
