package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"invoicechat/internal/ai"
	appsvc "invoicechat/internal/app"
	"invoicechat/internal/cache"
	"invoicechat/internal/config"
	"invoicechat/internal/model"
	"invoicechat/internal/observability/logging"
	"invoicechat/internal/observability/metrics"
	mysqlClient "invoicechat/internal/platform/mysql"
	rabbitmqClient "invoicechat/internal/platform/rabbitmq"
	redisClient "invoicechat/internal/platform/redis"
	"invoicechat/internal/repository"
	"invoicechat/internal/resilience"
	"invoicechat/internal/worker"
)

type App struct {
	Config      *config.Config
	Logger      *slog.Logger
	Metrics     *metrics.Registry
	MySQL       *gorm.DB
	Redis       *redis.Client
	MQConn      *amqp.Connection
	EventWorker *worker.EventAuditWorker
	Documents   *appsvc.DocumentService

	StartedAt time.Time

	closeOracle func() error
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	logger := logging.New(cfg.App.Name, cfg.App.Env, cfg.App.LogLevel)
	slog.SetDefault(logger)

	a := &App{
		Config:    cfg,
		Logger:    logger,
		Metrics:   metrics.New(cfg.App.Name),
		StartedAt: time.Now(),
	}
	if err := a.init(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config

	mysqlDB, err := mysqlClient.New(ctx, cfg.MySQLDSN(), cfg.App.LogLevel == "debug")
	if err != nil {
		return err
	}
	a.MySQL = mysqlDB
	if err := mysqlDB.AutoMigrate(&model.User{}, &model.Document{}, &model.Interaction{}, &model.DocumentEvent{}); err != nil {
		return fmt.Errorf("auto migrate tables failed: %w", err)
	}

	var documentCache appsvc.DocumentCache
	if cfg.Redis.Enabled {
		redisCli, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		a.Redis = redisCli
		documentCache = cache.NewDocumentCache(
			redisCli,
			time.Duration(cfg.Redis.DocumentTTLSeconds)*time.Second,
			time.Duration(cfg.Redis.DirtyMarkerTTLSecond)*time.Second,
		)
	}

	var publisher appsvc.EventPublisher
	if cfg.RabbitMQ.Enabled {
		mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
		if err != nil {
			return err
		}
		a.MQConn = mqConn
		publisher = rabbitmqClient.NewEventPublisher(mqConn, cfg.RabbitMQ.EventQueue)

		eventWorker := worker.NewEventAuditWorker(mqConn, repository.NewEventRepository(mysqlDB), cfg.RabbitMQ.EventQueue)
		if err := eventWorker.Start(ctx); err != nil {
			return fmt.Errorf("start event worker failed: %w", err)
		}
		a.EventWorker = eventWorker
	}

	oracle, err := a.newOracle(ctx)
	if err != nil {
		return err
	}

	documentRepo := repository.NewDocumentRepository(mysqlDB)
	interactionRepo := repository.NewInteractionRepository(mysqlDB)
	a.Documents = appsvc.NewDocumentService(
		documentRepo,
		interactionRepo,
		ai.NewPDFTextFirst(oracle),
		oracle,
		documentCache,
		publisher,
		appsvc.DocumentServiceOptions{
			MaxFileBytes:   cfg.MaxUploadBytes(),
			AllowedTypes:   cfg.Upload.AllowedTypes,
			IncludeHistory: cfg.LLM.IncludeHistory,
			MaxHistory:     cfg.LLM.MaxHistory,
		},
	)
	return nil
}

// newOracle builds the configured provider behind the rate limit, timeout and
// retry/breaker guard.
func (a *App) newOracle(ctx context.Context) (ai.Oracle, error) {
	cfg := a.Config

	var inner ai.Oracle
	switch cfg.LLM.Provider {
	case config.ProviderGemini:
		gemini, err := ai.NewGeminiOracle(ctx, cfg.LLM.APIKey, cfg.LLM.Model)
		if err != nil {
			return nil, err
		}
		a.closeOracle = gemini.Close
		inner = gemini
	case config.ProviderOpenAI:
		inner = ai.NewOpenAICompatibleClient(ai.ChatConfig{
			BaseURL: cfg.LLM.BaseURL,
			APIKey:  cfg.LLM.APIKey,
			Model:   cfg.LLM.Model,
		}, nil)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}

	limit := rate.Inf
	if cfg.LLM.RateLimitRPS > 0 {
		limit = rate.Limit(cfg.LLM.RateLimitRPS)
	}
	burst := cfg.LLM.RateLimitBurst
	if burst <= 0 {
		burst = 1
	}

	res := cfg.Resilience
	executor := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:        res.RetryMaxAttempts,
		RetryInitialBackoff:     time.Duration(res.RetryInitialBackoffMS) * time.Millisecond,
		RetryMaxBackoff:         time.Duration(res.RetryMaxBackoffMS) * time.Millisecond,
		RetryMultiplier:         res.RetryMultiplier,
		BreakerEnabled:          res.BreakerEnabled,
		BreakerMinRequests:      uint32(max(res.BreakerMinRequests, 0)),
		BreakerFailureRatio:     res.BreakerFailureRatio,
		BreakerOpenTimeout:      time.Duration(res.BreakerOpenTimeoutSec) * time.Second,
		BreakerHalfOpenMaxCalls: uint32(max(res.BreakerHalfOpenMaxCalls, 0)),
	})

	return ai.NewGuard(inner, ai.GuardOptions{
		Timeout:  cfg.LLMTimeout(),
		Limiter:  rate.NewLimiter(limit, burst),
		Executor: executor,
		Observer: a.Metrics,
	}), nil
}

func (a *App) Close() error {
	var errs []error
	if a.EventWorker != nil {
		a.EventWorker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("close rabbitmq failed: %w", err))
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis failed: %w", err))
		}
	}
	if a.closeOracle != nil {
		if err := a.closeOracle(); err != nil {
			errs = append(errs, fmt.Errorf("close llm client failed: %w", err))
		}
	}
	if a.MySQL != nil {
		if sqlDB, err := a.MySQL.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close mysql failed: %w", err))
			}
		}
	}
	return errors.Join(errs...)
}
