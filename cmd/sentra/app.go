package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"sentra/api/routes"
	"sentra/internal/config"
	"sentra/internal/dao"
	"sentra/internal/database"
	"sentra/internal/execmgr"
	"sentra/internal/handlers"
	"sentra/internal/intent"
	"sentra/internal/notification"
	"sentra/internal/policy"
	"sentra/internal/registry"
	"sentra/internal/services"
	"sentra/pkg/events"
	output "sentra/pkg/io_utils"
	"sentra/pkg/logger"
	"sentra/pkg/parsers"
	"sentra/pkg/runner"
)

// App owns the constructed component graph. There are no package-level
// singletons: everything hangs off this struct and dies with it.
type App struct {
	Config      *config.Config
	Store       dao.KnowledgeDAO
	Registry    *registry.Registry
	Policy      *policy.ExecutionPolicy
	Coordinator *services.Coordinator
	Recommender *services.Recommender
	Handlers    *handlers.Handlers

	logger        *logger.Logger
	discordClient *notification.NotificationClient
}

// NewApp wires the full stack from configuration.
func NewApp(configPath string, verbose bool) (*App, error) {
	logLevel := logrus.InfoLevel
	if verbose {
		logLevel = logrus.DebugLevel
	}
	appLogger := logger.NewLogger(logLevel)

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	db, err := database.Open(cfg.StorePath)
	if err != nil {
		return nil, err
	}
	store := dao.NewKnowledgeDAO(db, dao.Options{
		TTL:           cfg.EntityTTL,
		PruneEveryN:   cfg.PruneEveryN,
		PruneInterval: cfg.PruneInterval,
		StorePath:     cfg.StorePath,
	})

	reg := registry.New()
	if err := registry.LoadDefaults(reg); err != nil {
		return nil, fmt.Errorf("load tool registry: %w", err)
	}

	execPolicy := policy.Default()
	if cfg.PolicyPath != "" {
		if execPolicy, err = policy.Load(cfg.PolicyPath); err != nil {
			return nil, err
		}
	}

	var discordClient *notification.NotificationClient
	if os.Getenv("DISCORD_TOKEN") != "" {
		discordClient, err = notification.NewNotificationClient()
		if err != nil {
			appLogger.WithError(err).Warn("Failed to initialize Discord client")
		} else {
			appLogger.Info("Discord notifications enabled")
		}
	}

	var secrets *dao.SecretBox
	if cfg.SecretKey != "" {
		if secrets, err = dao.NewSecretBox(cfg.SecretKey); err != nil {
			return nil, fmt.Errorf("initialize secret box: %w", err)
		}
	}

	emitter := newConsoleEmitter(appLogger, discordClient)

	coordinator := services.NewCoordinator(services.Deps{
		Resolver:      intent.NewResolver(cfg.LLMEndpoint, cfg.LLMModel),
		Gate:          policy.NewGate(execPolicy, reg),
		Registry:      reg,
		Parsers:       parsers.NewDefaultRegistry(),
		ExecManager:   execmgr.NewManager(execmgr.Config{ContainerName: cfg.ContainerName, NativeTempDir: cfg.SessionRoot, ProbeTTL: cfg.ProbeTTL}),
		Runner:        runner.NewRunner(),
		Store:         store,
		Secrets:       secrets,
		Emitter:       emitter,
		SessionRoot:   cfg.SessionRoot,
		MaxConcurrent: cfg.MaxConcurrent,
	})

	recommender := services.NewRecommender(store, execPolicy)

	return &App{
		Config:        cfg,
		Store:         store,
		Registry:      reg,
		Policy:        execPolicy,
		Coordinator:   coordinator,
		Recommender:   recommender,
		Handlers:      handlers.New(store, coordinator, recommender),
		logger:        appLogger,
		discordClient: discordClient,
	}, nil
}

// StartBackground launches periodic pruning and the session artifact
// watcher.
func (a *App) StartBackground(ctx context.Context) {
	a.Store.StartAutoPrune(ctx)
	go output.WatchSessionRoot(ctx, a.Config.SessionRoot)
}

// Close releases external resources.
func (a *App) Close() error {
	if a.discordClient != nil {
		return a.discordClient.Close()
	}
	return nil
}

// Router builds the HTTP API surface.
func (a *App) Router() *gin.Engine {
	return routes.NewRouter(a.Handlers)
}

// newConsoleEmitter prints the event stream for terminal consumers and
// forwards terminal events to Discord when configured.
func newConsoleEmitter(appLogger *logger.Logger, discord *notification.NotificationClient) events.Emitter {
	return events.EmitterFunc(func(event events.Event) {
		switch event.Type {
		case events.TypeToolStarted:
			appLogger.WithFields(logger.Fields{
				"execution_id": event.ToolStarted.ExecutionID,
				"tool":         event.ToolStarted.ToolID,
				"target":       event.ToolStarted.Target,
			}).Info("Tool started")

		case events.TypeToolOutputChunk:
			fmt.Println(event.ToolOutputChunk.Text)

		case events.TypeInputRequested:
			appLogger.WithFields(logger.Fields{
				"execution_id": event.InputRequested.ExecutionID,
				"kind":         event.InputRequested.Kind,
			}).Warn("Tool is waiting for input")

		case events.TypeApprovalRequired:
			appLogger.WithFields(logger.Fields{
				"approval_id": event.ApprovalRequired.ApprovalID,
				"intent":      event.ApprovalRequired.IntentKind,
				"risk":        event.ApprovalRequired.Risk,
			}).Warn(event.ApprovalRequired.Reason)

		case events.TypeToolCompleted:
			appLogger.WithFields(logger.Fields{
				"execution_id": event.ToolCompleted.ExecutionID,
				"status":       event.ToolCompleted.Status,
				"entities":     event.ToolCompleted.EntitiesCreated,
				"duration_ms":  event.ToolCompleted.DurationMs,
			}).Info("Tool completed")

		case events.TypeToolError:
			appLogger.WithFields(logger.Fields{
				"execution_id": event.ToolError.ExecutionID,
				"kind":         event.ToolError.Kind,
			}).Error(event.ToolError.Message)
		}

		if discord != nil {
			discord.HandleEvent(event)
		}
	})
}
