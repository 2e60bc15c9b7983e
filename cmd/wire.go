package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/viper"

	"github.com/bnema/modelgw/internal/adapters/settings"
	"github.com/bnema/modelgw/internal/application"
	"github.com/bnema/modelgw/internal/config"
	"github.com/bnema/modelgw/internal/logging"
)

type app struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *settings.Store
	broker *application.Broker
	now    func() time.Time
}

func wireApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment)

	var store *settings.Store
	if cfg.SettingsPath != "" {
		store, err = settings.NewStoreAtPath(cfg.SettingsPath, logger)
	} else {
		store, err = settings.NewStore(viper.New(), logger)
	}
	if err != nil {
		return nil, fmt.Errorf("wire settings store: %w", err)
	}

	broker := application.NewBroker(store, application.Options{
		BaseURL: cfg.PublicBaseURL,
		Logger:  logger,
	})

	return &app{
		cfg:    cfg,
		logger: logger,
		store:  store,
		broker: broker,
		now:    time.Now,
	}, nil
}
