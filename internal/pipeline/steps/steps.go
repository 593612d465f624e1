// Package steps implements the storefront setup steps. Each step is a
// pipeline.Step wired to the admin client, the upload manager, and the
// reconciler; All returns them in execution order.
package steps

import (
	"log/slog"
	"time"

	"github.com/Yslas262/shopify-setup/internal/pipeline"
	"github.com/Yslas262/shopify-setup/internal/reconcile"
	"github.com/Yslas262/shopify-setup/internal/shopify"
	"github.com/Yslas262/shopify-setup/internal/uploads"
)

// Config holds the dependencies shared by all steps.
type Config struct {
	Client     *shopify.Client
	Uploads    *uploads.Manager
	Reconciler *reconcile.Reconciler
	Logger     *slog.Logger

	// ThemePollInterval and ThemeMaxPolls bound the wait for remote
	// theme processing after themeCreate. Zero values use defaults.
	ThemePollInterval time.Duration
	ThemeMaxPolls     int

	// SettingsRetryDelay is the base delay for the settings write's
	// local linear retry. Zero uses one second.
	SettingsRetryDelay time.Duration
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// All returns the setup steps in execution order.
func All(cfg Config) []pipeline.Step {
	return []pipeline.Step{
		&prepareShop{cfg: cfg},
		&importProducts{cfg: cfg},
		&createCollections{cfg: cfg},
		&uploadTheme{cfg: cfg},
		&uploadAssets{cfg: cfg},
		&configureTheme{cfg: cfg},
		&setupNavigation{cfg: cfg},
		&publishTheme{cfg: cfg},
	}
}

// NewRegistry builds a validated registry holding all steps.
func NewRegistry(cfg Config) (*pipeline.Registry, error) {
	reg := pipeline.NewRegistry()
	for _, s := range All(cfg) {
		if err := reg.Register(s); err != nil {
			return nil, err
		}
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return reg, nil
}

func failure(msg string, errs ...pipeline.ItemError) pipeline.Result {
	return pipeline.Result{Success: false, Message: msg, Errors: errs}
}
