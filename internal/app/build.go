package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ent0n29/tensai/internal/admin"
	"github.com/ent0n29/tensai/internal/chat"
	"github.com/ent0n29/tensai/internal/config"
	"github.com/ent0n29/tensai/internal/conversation"
	"github.com/ent0n29/tensai/internal/db"
	"github.com/ent0n29/tensai/internal/httpapi"
	"github.com/ent0n29/tensai/internal/inference"
	"github.com/ent0n29/tensai/internal/lead"
	"github.com/ent0n29/tensai/internal/memory"
	"github.com/ent0n29/tensai/internal/observability"
	"github.com/ent0n29/tensai/internal/reconcile"
	"github.com/ent0n29/tensai/internal/session"
)

type BuildResult struct {
	Config   config.Config
	DB       *db.Handle
	API      *httpapi.Server
	Chat     *chat.Service
	Admin    *admin.Service
	Sessions *session.Manager
	Segments *conversation.FileStore
	Buffer   *conversation.Buffer
	Leads    lead.Store
	Turns    memory.Store
	Provider inference.Provider
	Metrics  *observability.Metrics

	logger    *zap.Logger
	extractor *lead.Extractor
}

// Build opens storage, applies migrations and wires every component. The
// caller owns the result and must call Close.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger, metrics *observability.Metrics) (*BuildResult, error) {
	logger = observability.OrNop(logger)

	handle, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("database init failed: %w", err)
	}
	applied, err := handle.Migrate(ctx)
	if err != nil {
		_ = handle.Close()
		return nil, fmt.Errorf("database migrate failed: %w", err)
	}
	if len(applied) > 0 {
		logger.Info("applied migrations", zap.String("driver", string(handle.Driver)), zap.Int64s("versions", applied))
	}

	res, err := build(ctx, cfg, handle, logger, metrics)
	if err != nil {
		_ = handle.Close()
		return nil, err
	}
	return res, nil
}

func build(ctx context.Context, cfg config.Config, handle *db.Handle, logger *zap.Logger, metrics *observability.Metrics) (*BuildResult, error) {
	sessions := session.NewManager(
		session.NewRepository(handle),
		session.WithLogger(logger.Named("session")),
		session.WithMetrics(metrics),
	)
	turns := memory.NewStore(handle)

	segments, err := conversation.NewFileStore(cfg.ConversationsDir)
	if err != nil {
		return nil, fmt.Errorf("conversation store init failed: %w", err)
	}
	buffer := conversation.NewBuffer(segments)

	leads, err := lead.NewStore(cfg.LeadStore, handle, cfg.ContactsDir)
	if err != nil {
		return nil, fmt.Errorf("lead store init failed: %w", err)
	}

	provider, err := inference.NewProvider(ctx, inference.Config{
		Mode:             cfg.InferenceMode,
		AnthropicAPIKey:  cfg.AnthropicAPIKey,
		AnthropicModel:   cfg.AnthropicModel,
		AnthropicBaseURL: cfg.AnthropicBaseURL,
		BedrockRegion:    cfg.BedrockRegion,
		BedrockModel:     cfg.BedrockModel,
		OpenAIAPIKey:     cfg.OpenAIAPIKey,
		OpenAIModel:      cfg.OpenAIModel,
		OpenAIBaseURL:    cfg.OpenAIBaseURL,
		HTTPURL:          cfg.InferenceHTTPURL,
		HTTPTimeout:      cfg.InferenceTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("inference provider init failed: %w", err)
	}
	logger.Info("inference provider ready", zap.String("provider", provider.Name()))

	prompt := inference.DefaultPromptConfig()
	if cfg.PromptFile != "" {
		prompt, err = inference.LoadPromptConfig(cfg.PromptFile)
		if err != nil {
			return nil, fmt.Errorf("prompt config: %w", err)
		}
	}
	client := inference.NewClient(provider, inference.BuildSystemPrompt(prompt),
		inference.WithLogger(logger.Named("inference")),
		inference.WithMetrics(metrics),
		inference.WithMaxTokens(cfg.InferenceMaxTokens),
	)
	extractor := lead.NewExtractor(client, logger.Named("lead"), metrics)

	chatSvc := chat.NewService(chat.Config{
		Scope:         cfg.ConversationScope,
		ExtractOnTurn: cfg.ExtractOnTurn,
	}, sessions, buffer, client, extractor, turns, logger.Named("chat"), metrics)

	adminSvc := admin.NewService(sessions, turns, leads, logger.Named("admin"))

	api := httpapi.New(cfg, chatSvc, adminSvc, metrics,
		httpapi.WithLogger(logger.Named("http")),
		httpapi.WithReadyCheck(handle.Ping),
	)

	return &BuildResult{
		Config:    cfg,
		DB:        handle,
		API:       api,
		Chat:      chatSvc,
		Admin:     adminSvc,
		Sessions:  sessions,
		Segments:  segments,
		Buffer:    buffer,
		Leads:     leads,
		Turns:     turns,
		Provider:  provider,
		Metrics:   metrics,
		logger:    logger,
		extractor: extractor,
	}, nil
}

// Reconciler builds the background lead reconciler. With ReconcileWatch set
// it also watches the segment directory so changes trigger an early scan
// for as long as ctx lives.
func (b *BuildResult) Reconciler(ctx context.Context) *reconcile.Reconciler {
	opts := []reconcile.Option{
		reconcile.WithInterval(b.Config.ReconcileInterval),
		reconcile.WithLogger(b.logger.Named("reconcile")),
		reconcile.WithMetrics(b.Metrics),
	}
	if b.Config.ReconcileWatch {
		events, err := b.Segments.Watch(ctx)
		if err != nil {
			b.logger.Warn("segment watch unavailable, polling only", zap.Error(err))
		} else {
			opts = append(opts, reconcile.WithTrigger(events))
		}
	}
	return reconcile.New(b.Buffer, b.extractor, b.Leads, opts...)
}

func (b *BuildResult) Close() error {
	if b == nil || b.DB == nil {
		return nil
	}
	if err := b.DB.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
