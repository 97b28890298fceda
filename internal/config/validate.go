package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

var validDrivers = map[string]bool{"": true, "none": true, "file": true, "sqlite": true}

// Validate checks static constraints that do not need any running component.
// All problems are reported together.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		add("telegram.token is required")
	}
	if g := strings.TrimSpace(cfg.Telegram.GroupLog); g != "" {
		if _, err := strconv.ParseInt(g, 10, 64); err != nil {
			add("telegram.group_log: not a chat id: %q", g)
		}
	}
	for _, p := range cfg.Telegram.CommandPrefixes {
		if utf8.RuneCountInString(p) != 1 {
			add("telegram.command_prefixes: %q must be a single character", p)
		}
	}

	durations := []struct{ path, raw string }{
		{"telegram.poll_timeout", cfg.Telegram.PollTimeout},
		{"router.command_timeout", cfg.Router.CommandTimeout},
	}
	if cfg.Storage != nil {
		durations = append(durations,
			struct{ path, raw string }{"storage.busy_timeout", cfg.Storage.BusyTimeout},
			struct{ path, raw string }{"storage.audit_retention", cfg.Storage.AuditRetention},
		)
		if d := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)); !validDrivers[d] {
			add("storage.driver: unsupported %q", cfg.Storage.Driver)
		}
	}
	for _, d := range durations {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			errs = append(errs, err)
		}
	}

	if cfg.Router.Workers < 0 || cfg.Router.QueueSize < 0 {
		add("router: workers and queue_size must be >= 0")
	}
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add("scheduler.timezone: %v", err)
		}
	}
	return errors.Join(errs...)
}

// GroupLogChatID returns telegram.group_log as a chat id (0 when unset).
func (t TelegramConfig) GroupLogChatID() int64 {
	id, _ := strconv.ParseInt(strings.TrimSpace(t.GroupLog), 10, 64)
	return id
}
