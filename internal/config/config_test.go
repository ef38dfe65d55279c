package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "paintagent.json")
	content := `{
  "canvas": {"profile_path": "canvas.yaml"},
  "agent": {"knowledge_source": "hints.json"}
}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("写入临时配置失败: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}

	if cfg.Server.Address != ":8080" {
		t.Errorf("监听地址默认值不符: %s", cfg.Server.Address)
	}
	if cfg.LLM.Provider != "gemini" || cfg.LLM.APIKeyEnv != "GEMINI_API_KEY" {
		t.Errorf("模型默认配置不符: %+v", cfg.LLM)
	}
	if cfg.LLMTimeout() != 60*time.Second {
		t.Errorf("模型超时默认值不符: %s", cfg.LLMTimeout())
	}
	if cfg.Mail.Port != 465 || cfg.Mail.UsernameEnv != "SMTP_USERNAME" {
		t.Errorf("邮件默认配置不符: %+v", cfg.Mail)
	}
	if cfg.RunStore.Driver != "memory" || cfg.RunQueue.Driver != "memory" {
		t.Errorf("存储/队列默认驱动不符: %s %s", cfg.RunStore.Driver, cfg.RunQueue.Driver)
	}
	if cfg.Agent.MaxIterations != 10 || cfg.Agent.MaxRetries != 3 || cfg.Agent.WorkerCount != 1 {
		t.Errorf("智能体默认参数不符: %+v", cfg.Agent)
	}

	// 相对路径应相对配置文件所在目录解析。
	if cfg.Canvas.ProfilePath != filepath.Join(dir, "canvas.yaml") {
		t.Errorf("画布配置路径未按目录解析: %s", cfg.Canvas.ProfilePath)
	}
	if cfg.Agent.KnowledgeSource != filepath.Join(dir, "hints.json") {
		t.Errorf("知识库路径未按目录解析: %s", cfg.Agent.KnowledgeSource)
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("缺失的配置文件应报错")
	}
	if _, err := Load(""); err == nil {
		t.Fatal("空路径应报错")
	}
}

func TestResolveSecret(t *testing.T) {
	t.Setenv("PAINTAGENT_TEST_SECRET", "value")
	value, err := ResolveSecret("PAINTAGENT_TEST_SECRET")
	if err != nil {
		t.Fatalf("ResolveSecret 返回错误: %v", err)
	}
	if value != "value" {
		t.Errorf("密钥取值不符: %s", value)
	}

	if _, err := ResolveSecret("PAINTAGENT_TEST_UNSET"); err == nil {
		t.Fatal("未设置的环境变量应报错")
	}
	if _, err := ResolveSecret(""); err == nil {
		t.Fatal("空环境变量名应报错")
	}
}
