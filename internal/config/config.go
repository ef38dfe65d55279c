package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Config 描述了服务在启动阶段需要加载的核心配置。
type Config struct {
	Server   ServerConfig   `json:"server"`
	LLM      LLMConfig      `json:"llm"`
	Mail     MailConfig     `json:"mail"`
	Canvas   CanvasConfig   `json:"canvas"`
	RunStore RunStoreConfig `json:"run_store"`
	RunQueue RunQueueConfig `json:"run_queue"`
	Agent    AgentConfig    `json:"agent"`
	Alerts   AlertConfig    `json:"alerts"`
	Logger   LoggerConfig   `json:"logger"`
}

// AlertConfig 描述运行失败时的告警通道。
type AlertConfig struct {
	EmailTo       []string `json:"email_to"`
	SubjectPrefix string   `json:"subject_prefix"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address string `json:"address"`
}

// LLMConfig 用于配置大模型推理的调用方式。
// 密钥不落盘，只记录读取密钥的环境变量名。
type LLMConfig struct {
	Provider    string `json:"provider"`
	BaseURL     string `json:"base_url"`
	Model       string `json:"model"`
	APIKeyEnv   string `json:"api_key_env"`
	TimeoutSecs int    `json:"timeout_seconds"`
}

// MailConfig 描述 SMTP 发信通道。用户名和密码同样从环境变量读取。
type MailConfig struct {
	Host        string `json:"host"`
	Port        int    `json:"port"`
	UsernameEnv string `json:"username_env"`
	PasswordEnv string `json:"password_env"`
	From        string `json:"from"`
}

// CanvasConfig 选择绘图应用档案。
type CanvasConfig struct {
	ProfilePath string `json:"profile_path"`
	Profile     string `json:"profile"`
}

// RunStoreConfig 描述运行状态的持久化后端。
type RunStoreConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// RunQueueConfig 描述运行队列后端。
type RunQueueConfig struct {
	Driver string `json:"driver"`

	RedisAddress  string `json:"redis_address"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`
	RedisQueue    string `json:"redis_queue"`

	RabbitMQURL   string `json:"rabbitmq_url"`
	RabbitMQQueue string `json:"rabbitmq_queue"`

	MemorySize int `json:"memory_size"`
}

// AgentConfig 控制回合循环的运行参数。
type AgentConfig struct {
	MaxIterations   int    `json:"max_iterations"`
	MaxRetries      int    `json:"max_retries"`
	WorkerCount     int    `json:"worker_count"`
	KnowledgeSource string `json:"knowledge_source"`
}

// LoggerConfig 控制日志输出。
type LoggerConfig struct {
	Level       string   `json:"level"`
	Format      string   `json:"format"`
	OutputPaths []string `json:"output_paths"`
	AuditPath   string   `json:"audit_path"`
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "gemini"
	}
	if c.LLM.APIKeyEnv == "" {
		c.LLM.APIKeyEnv = "GEMINI_API_KEY"
	}
	if c.LLM.TimeoutSecs <= 0 {
		c.LLM.TimeoutSecs = 60
	}

	if c.Mail.Port <= 0 {
		c.Mail.Port = 465
	}
	if c.Mail.UsernameEnv == "" {
		c.Mail.UsernameEnv = "SMTP_USERNAME"
	}
	if c.Mail.PasswordEnv == "" {
		c.Mail.PasswordEnv = "SMTP_PASSWORD"
	}

	if c.Canvas.Profile == "" {
		c.Canvas.Profile = "mspaint"
	}
	if c.Canvas.ProfilePath != "" && !filepath.IsAbs(c.Canvas.ProfilePath) {
		c.Canvas.ProfilePath = filepath.Join(baseDir, c.Canvas.ProfilePath)
	}

	if c.RunStore.Driver == "" {
		c.RunStore.Driver = "memory"
	}
	if c.RunQueue.Driver == "" {
		c.RunQueue.Driver = "memory"
	}
	if c.RunQueue.MemorySize <= 0 {
		c.RunQueue.MemorySize = 64
	}

	if c.Agent.MaxIterations <= 0 {
		c.Agent.MaxIterations = 10
	}
	if c.Agent.MaxRetries <= 0 {
		c.Agent.MaxRetries = 3
	}
	if c.Agent.WorkerCount <= 0 {
		c.Agent.WorkerCount = 1
	}
	if c.Agent.KnowledgeSource != "" && !filepath.IsAbs(c.Agent.KnowledgeSource) {
		c.Agent.KnowledgeSource = filepath.Join(baseDir, c.Agent.KnowledgeSource)
	}

	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "json"
	}
}

// LLMTimeout 返回大模型调用的超时时间。
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSecs) * time.Second
}

// ResolveSecret 从环境变量读取凭证，缺失时返回错误。
func ResolveSecret(envName string) (string, error) {
	if envName == "" {
		return "", errors.New("环境变量名为空")
	}
	value := os.Getenv(envName)
	if value == "" {
		return "", fmt.Errorf("环境变量 %s 未设置", envName)
	}
	return value, nil
}
