package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/a-marczewski/skillforge/internal/config"
	"github.com/a-marczewski/skillforge/internal/logging"
	"github.com/a-marczewski/skillforge/internal/notify"
	"github.com/a-marczewski/skillforge/internal/skillforge"
	"github.com/a-marczewski/skillforge/internal/storage"
	"go.uber.org/zap"
)

// NewApp loads configuration from the project root and builds the App.
func NewApp() (*App, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logFile := cfg.LogFile
	if logFile != "" && !filepath.IsAbs(logFile) {
		logFile = filepath.Join(cfg.ForgeDir, logFile)
	}
	if logFile != "" {
		logDir := filepath.Dir(logFile)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
		}
	}

	logger, err := logging.NewLogger(cfg.LogLevel, logFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return New(cfg, logger)
}

// New builds an App from an already loaded configuration. The forge
// settings are validated when a run starts, so a disabled or misconfigured
// pipeline still allows history and diagnostics commands.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		logger.Error("Failed to initialize database", zap.Error(err))
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// A typed nil *Telegram must not reach the dispatcher as a Notifier.
	var notifier notify.Notifier
	if tg := notify.NewTelegram(notify.TelegramOptions{
		BotToken:     cfg.Telegram.BotToken,
		AllowedUsers: cfg.Telegram.AllowedUsers,
		BaseURL:      cfg.Telegram.BaseURL,
		Logger:       logger.Named("telegram"),
	}); tg != nil {
		notifier = tg
	}
	dispatcher := notify.NewDispatcher(notifier, logger.Named("notify"))

	forge := skillforge.New(cfg.Forge,
		skillforge.WithLogger(logger.Named("skillforge")),
		skillforge.WithDispatcher(dispatcher))

	ctx, cancel := context.WithCancel(context.Background())

	return &App{
		Core: CoreModule{
			Config: cfg,
			Logger: logger,
			DB:     db,
		},
		Forge: ForgeModule{
			Forge:      forge,
			Dispatcher: dispatcher,
		},
		Ctx:    config.WithConfig(ctx, cfg),
		Cancel: cancel,
	}, nil
}

// RunForge executes one pipeline run and records it in the run history.
// A history write failure is logged; the report is still returned.
func (a *App) RunForge(ctx context.Context) (*skillforge.ForgeReport, error) {
	report, err := a.Forge.Forge.Forge(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.Core.DB.SaveReport(ctx, report); err != nil {
		a.Core.Logger.Error("Failed to save run report",
			zap.String("run_id", report.RunID),
			zap.Error(err))
	}
	return report, nil
}

// Close gracefully shuts down the application resources.
func (a *App) Close() {
	if a.Cancel != nil {
		a.Cancel()
	}

	// Pending notifications are delivered before the process exits.
	a.Forge.Dispatcher.Close()

	if a.Core.DB != nil {
		if err := a.Core.DB.Close(); err != nil {
			a.Core.Logger.Error("Failed to close database connection", zap.Error(err))
		} else {
			a.Core.Logger.Debug("Database connection closed.")
		}
	}
	if a.Core.Logger != nil {
		if err := a.Core.Logger.Sync(); err != nil {
			// Syncing stderr fails on some terminals; that is not worth reporting.
			if !strings.Contains(err.Error(), "sync /dev/stderr: invalid argument") &&
				!strings.Contains(err.Error(), "sync <file descriptor>: bad file descriptor") &&
				!strings.Contains(err.Error(), "sync /dev/stderr: inappropriate ioctl for device") {
				fmt.Fprintf(os.Stderr, "Error syncing logger: %v\n", err)
			}
		}
	}
}

// ContextWithLogger returns a new context with the application's logger.
func (a *App) ContextWithLogger(ctx context.Context) context.Context {
	return logging.ContextWithLogger(ctx, a.Core.Logger)
}

// LoggerFromContext retrieves the logger from the given context, or returns the default app logger.
func (a *App) LoggerFromContext(ctx context.Context) *zap.Logger {
	if logger, ok := logging.LoggerFromContext(ctx); ok {
		return logger
	}
	return a.Core.Logger
}
