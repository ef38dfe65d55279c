package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"OpenPaint-Agent/internal/agent"
	"OpenPaint-Agent/internal/api"
	"OpenPaint-Agent/internal/canvas"
	"OpenPaint-Agent/internal/canvas/mspaint"
	"OpenPaint-Agent/internal/config"
	"OpenPaint-Agent/internal/knowledge"
	"OpenPaint-Agent/internal/llm"
	"OpenPaint-Agent/internal/llm/gemini"
	"OpenPaint-Agent/internal/mail"
	"OpenPaint-Agent/internal/observability/alerting"
	"OpenPaint-Agent/internal/run"
	"OpenPaint-Agent/internal/tools"
	"OpenPaint-Agent/pkg/logger"
)

// announcedTools 是提示词中告知模型的全部工具名称。
// 启动时会校验每个名称都有注册的实现。
var announcedTools = []string{
	"ascii_exp_sum",
	"open_canvas",
	"draw_rectangle",
	"add_text",
	"save_file",
	"send_email_with_attachment",
	"check_file_exists",
}

// main 是绘图智能体守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runDaemon(ctx); err != nil {
		log.Fatalf("paintagentd 运行失败: %v", err)
	}
}

func runDaemon(ctx context.Context) error {
	configPath := os.Getenv("PAINTAGENT_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "paintagent.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logger.Level,
		Format:      cfg.Logger.Format,
		OutputPaths: cfg.Logger.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled: cfg.Logger.AuditPath != "",
			Path:    cfg.Logger.AuditPath,
		},
	}); err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	llmClient, err := createLLMClient(cfg)
	if err != nil {
		return err
	}

	sender, err := createMailSender(cfg)
	if err != nil {
		return err
	}

	profiles, err := canvas.LoadProfiles(cfg.Canvas.ProfilePath)
	if err != nil {
		return err
	}
	driver := mspaint.NewDriver(profiles.Resolve(cfg.Canvas.Profile))

	registry, err := tools.NewRegistry(
		tools.AsciiExpSum{},
		tools.OpenCanvas{Driver: driver},
		tools.DrawRectangle{Driver: driver},
		tools.AddText{Driver: driver},
		tools.SaveFile{Driver: driver},
		tools.SendEmailWithAttachment{Sender: sender},
		tools.CheckFileExists{},
	)
	if err != nil {
		return err
	}
	if err := registry.Validate(announcedTools); err != nil {
		return err
	}

	var knowledgeProvider knowledge.Provider
	if cfg.Agent.KnowledgeSource != "" {
		provider, err := knowledge.LoadStaticProvider(cfg.Agent.KnowledgeSource, 3)
		if err != nil {
			return err
		}
		knowledgeProvider = provider
	} else {
		knowledgeProvider = knowledge.NewDefaultProvider()
	}

	loop := agent.New(llmClient, registry,
		agent.WithMaxIterations(cfg.Agent.MaxIterations),
		agent.WithLLMTimeout(cfg.LLMTimeout()),
		agent.WithKnowledgeProvider(knowledgeProvider),
	)

	runStore, err := createRunStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = runStore.Close()
	}()

	runQueue, err := createRunQueue(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := runQueue.Close(); err != nil {
			log.Printf("关闭运行队列失败: %v", err)
		}
	}()

	var alerter alerting.Dispatcher
	if len(cfg.Alerts.EmailTo) > 0 {
		alerter = alerting.NewFanout(&alerting.EmailNotifier{
			Sender:        sender,
			To:            cfg.Alerts.EmailTo,
			SubjectPrefix: cfg.Alerts.SubjectPrefix,
		})
	}

	service := run.NewService(runStore, runQueue, cfg.Agent.MaxRetries)
	processor := run.NewProcessor(loop, runStore, runQueue, runQueue,
		run.WithWorkerCount(cfg.Agent.WorkerCount),
		run.WithProcessorLogger(logger.Named("processor")),
		run.WithAlertDispatcher(alerter),
	)

	processorCtx, processorCancel := context.WithCancel(ctx)
	defer processorCancel()

	go func() {
		if err := processor.Start(processorCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("运行处理器异常退出: %v", err)
		}
	}()

	server := api.NewServer(cfg.Server.Address, service)

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func createLLMClient(cfg *config.Config) (llm.Client, error) {
	switch cfg.LLM.Provider {
	case "", "gemini":
		apiKey, err := config.ResolveSecret(cfg.LLM.APIKeyEnv)
		if err != nil {
			return nil, fmt.Errorf("读取模型密钥失败: %w", err)
		}
		return gemini.NewClient(gemini.Config{
			APIKey:  apiKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLMTimeout(),
		})
	default:
		return nil, fmt.Errorf("未知的大模型 provider: %s", cfg.LLM.Provider)
	}
}

func createMailSender(cfg *config.Config) (mail.Sender, error) {
	username, err := config.ResolveSecret(cfg.Mail.UsernameEnv)
	if err != nil {
		return nil, fmt.Errorf("读取 SMTP 用户名失败: %w", err)
	}
	password, err := config.ResolveSecret(cfg.Mail.PasswordEnv)
	if err != nil {
		return nil, fmt.Errorf("读取 SMTP 密码失败: %w", err)
	}
	from := cfg.Mail.From
	if from == "" {
		from = username
	}
	return mail.NewSMTPSender(mail.SMTPConfig{
		Host:     cfg.Mail.Host,
		Port:     cfg.Mail.Port,
		Username: username,
		Password: password,
		From:     from,
	})
}

func createRunStore(cfg *config.Config) (run.Store, error) {
	switch cfg.RunStore.Driver {
	case "", "memory":
		return run.NewMemoryStore(), nil
	case "mysql":
		return run.NewMySQLStore(cfg.RunStore.DSN)
	default:
		return nil, fmt.Errorf("未知的存储驱动: %s", cfg.RunStore.Driver)
	}
}

func createRunQueue(cfg *config.Config) (run.Queue, error) {
	switch cfg.RunQueue.Driver {
	case "", "memory":
		return run.NewMemoryQueue(cfg.RunQueue.MemorySize), nil
	case "redis":
		return run.NewRedisQueue(run.RedisQueueConfig{
			Address:   cfg.RunQueue.RedisAddress,
			Password:  cfg.RunQueue.RedisPassword,
			DB:        cfg.RunQueue.RedisDB,
			Queue:     cfg.RunQueue.RedisQueue,
			BlockWait: 5 * time.Second,
		})
	case "rabbitmq":
		return run.NewRabbitMQQueue(run.RabbitMQConfig{
			URL:     cfg.RunQueue.RabbitMQURL,
			Queue:   cfg.RunQueue.RabbitMQQueue,
			Durable: true,
		})
	default:
		return nil, fmt.Errorf("未知的队列驱动: %s", cfg.RunQueue.Driver)
	}
}
