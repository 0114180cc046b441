package app

import (
	"context"

	"github.com/a-marczewski/skillforge/internal/config"
	"github.com/a-marczewski/skillforge/internal/notify"
	"github.com/a-marczewski/skillforge/internal/skillforge"
	"github.com/a-marczewski/skillforge/internal/storage"
	"go.uber.org/zap"
)

// CoreModule holds the core application components
type CoreModule struct {
	Config *config.Config
	Logger *zap.Logger
	DB     *storage.DB
}

// ForgeModule holds the discovery pipeline and its notification queue
type ForgeModule struct {
	Forge      *skillforge.SkillForge
	Dispatcher *notify.Dispatcher
}

// App groups the application components by concern.
type App struct {
	Core   CoreModule
	Forge  ForgeModule
	Ctx    context.Context
	Cancel context.CancelFunc
}
