package app

import (
	"testing"
	"time"

	"countdownbot/internal/config"
)

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		sc      *config.StorageConfig
		enabled bool
		driver  string
		busy    time.Duration
		wantErr bool
	}{
		{name: "absent"},
		{name: "none", sc: &config.StorageConfig{Driver: "none"}},
		{name: "file", sc: &config.StorageConfig{Driver: "file", Path: "./audit.jsonl"}, enabled: true, driver: "file"},
		{name: "sqlite default busy", sc: &config.StorageConfig{Driver: "SQLite", Path: "./bot.db"}, enabled: true, driver: "sqlite", busy: time.Second},
		{name: "sqlite busy", sc: &config.StorageConfig{Driver: "sqlite", Path: "./bot.db", BusyTimeout: "3s"}, enabled: true, driver: "sqlite", busy: 3 * time.Second},
		{name: "sqlite without path", sc: &config.StorageConfig{Driver: "sqlite"}, wantErr: true},
		{name: "bad busy", sc: &config.StorageConfig{Driver: "sqlite", Path: "x.db", BusyTimeout: "soon"}, wantErr: true},
		{name: "unknown driver", sc: &config.StorageConfig{Driver: "postgres"}, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, enabled, err := mapStorageConfig(&config.Config{Storage: tt.sc})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if enabled != tt.enabled || got.Driver != tt.driver || got.BusyTimeout != tt.busy {
				t.Fatalf("got %+v enabled=%v, want driver=%q busy=%v enabled=%v", got, enabled, tt.driver, tt.busy, tt.enabled)
			}
		})
	}
}

func TestMapLogConfigNeedsTarget(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	cfg.Logging.Telegram.Enabled = true
	if lc := mapLogConfig(cfg); lc.Telegram.Enabled {
		t.Fatal("telegram sink enabled without group_log")
	}
	cfg.Telegram.GroupLog = "-1001234"
	cfg.Logging.Telegram.ThreadID = 9
	lc := mapLogConfig(cfg)
	if !lc.Telegram.Enabled || lc.Telegram.ChatID != -1001234 || lc.Telegram.ThreadID != 9 {
		t.Fatalf("telegram = %+v", lc.Telegram)
	}
}

func TestMapRouterOptions(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	opts, err := mapRouterOptions(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if opts.CommandTimeout != defaultCommandTimeout || len(opts.Prefixes) != 2 {
		t.Fatalf("defaults = %+v", opts)
	}
	cfg.Router.CommandTimeout = "nope"
	if _, err := mapRouterOptions(cfg); err == nil {
		t.Fatal("bad command_timeout accepted")
	}
}
