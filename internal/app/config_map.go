package app

import (
	"fmt"
	"strings"
	"time"

	"countdownbot/internal/config"
	"countdownbot/internal/storage"
	"countdownbot/internal/task/scheduler"
	"countdownbot/internal/transport/telegram/router"
	logx "countdownbot/pkg/logx"
)

const (
	defaultPollTimeout    = 10 * time.Second
	defaultCommandTimeout = 30 * time.Second
	defaultBusyTimeout    = time.Second
)

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "file":
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, defaultBusyTimeout)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

// mapLogConfig mirrors warnings into telegram.group_log; the Telegram sink
// stays off while no target chat is set.
func mapLogConfig(cfg *config.Config) logx.Config {
	lc := cfg.Logging
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File: logx.FileConfig{
			Enabled: lc.File.Enabled,
			Path:    lc.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    lc.Telegram.Enabled && cfg.Telegram.GroupLogChatID() != 0,
			ChatID:     cfg.Telegram.GroupLogChatID(),
			ThreadID:   lc.Telegram.ThreadID,
			MinLevel:   lc.Telegram.MinLevel,
			RatePerSec: lc.Telegram.RatePerSec,
		},
	}
}

func mapRouterOptions(cfg *config.Config) (router.Options, error) {
	timeout, err := config.ParseDurationOrDefault("router.command_timeout", cfg.Router.CommandTimeout, defaultCommandTimeout)
	if err != nil {
		return router.Options{}, err
	}
	return router.Options{
		Prefixes:       cfg.Telegram.Prefixes(),
		Owners:         cfg.Telegram.OwnerUserIDs,
		Workers:        cfg.Router.Workers,
		QueueSize:      cfg.Router.QueueSize,
		CommandTimeout: timeout,
	}, nil
}

func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{
		Enabled:  cfg.Scheduler.Enabled,
		Timezone: strings.TrimSpace(cfg.Scheduler.Timezone),
	}
}
