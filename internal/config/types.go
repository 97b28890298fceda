package config

import (
	"bytes"
	"encoding/json"
)

type Config struct {
	Telegram  TelegramConfig             `json:"telegram"`
	Logging   LoggingConfig              `json:"logging"`
	Router    RouterConfig               `json:"router,omitempty"`
	Scheduler SchedulerConfig            `json:"scheduler"`
	Storage   *StorageConfig             `json:"storage,omitempty"`
	Plugins   map[string]PluginConfigRaw `json:"plugins"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// GroupLog is the chat id that receives mirrored warnings ("-100...").
	GroupLog string `json:"group_log"`
	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout"`
	// CommandPrefixes lists the characters that start a command.
	// Defaults to "/" and "!".
	CommandPrefixes []string `json:"command_prefixes,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// RouterConfig controls command dispatch.
//
// Defaults: workers 4, queue_size 256, command_timeout "30s".
type RouterConfig struct {
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	CommandTimeout string `json:"command_timeout,omitempty"`
}

// SchedulerConfig controls the cron service used for housekeeping jobs.
type SchedulerConfig struct {
	Enabled  bool   `json:"enabled"`
	Timezone string `json:"timezone,omitempty"`
}

// StorageConfig controls the audit store.
//
//	"storage": { "driver": "sqlite", "path": "./countdownbot.db", "audit_retention": "720h" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
	// AuditRetention drops audit entries older than this on each prune.
	// "0s" or empty keeps everything.
	AuditRetention string `json:"audit_retention,omitempty"`
}

type PluginConfigRaw struct {
	Enabled bool            `json:"enabled"`
	Config  json.RawMessage `json:"config,omitempty"`
}

// UnmarshalJSON rejects unknown keys so typos surface on reload.
func (p *PluginConfigRaw) UnmarshalJSON(b []byte) error {
	type raw PluginConfigRaw
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var r raw
	if err := dec.Decode(&r); err != nil {
		return err
	}
	*p = PluginConfigRaw(r)
	return nil
}

// DefaultCommandPrefixes are used when telegram.command_prefixes is empty.
var DefaultCommandPrefixes = []string{"/", "!"}

// Prefixes returns the configured command prefixes or the defaults.
func (t TelegramConfig) Prefixes() []string {
	out := make([]string, 0, len(t.CommandPrefixes))
	for _, p := range t.CommandPrefixes {
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), DefaultCommandPrefixes...)
	}
	return out
}
