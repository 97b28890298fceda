package config

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

const sampleJSON = `{
  "telegram": {"token": "123:abc", "owner_user_ids": [1], "group_log": "-100200"},
  "logging": {"level": "info", "console": true},
  "scheduler": {"enabled": true},
  "storage": {"driver": "sqlite", "path": "./db", "audit_retention": "720h"},
  "plugins": {"countdown": {"enabled": true, "config": {"max_per_chat": 2}}}
}`

const sampleYAML = `
telegram:
  token: "123:abc"
  owner_user_ids: [1]
  group_log: "-100200"
  command_prefixes: ["!"]
logging:
  level: debug
scheduler:
  enabled: false
plugins:
  countdown:
    enabled: true
    config:
      max_per_chat: 2
`

func TestDecodeJSON(t *testing.T) {
	cfg, err := Decode("config.json", []byte(sampleJSON))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Telegram.GroupLogChatID() != -100200 {
		t.Fatalf("group log = %d", cfg.Telegram.GroupLogChatID())
	}
	if cfg.Storage == nil || cfg.Storage.AuditRetention != "720h" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if !cfg.Plugins["countdown"].Enabled {
		t.Fatal("countdown plugin should be enabled")
	}
	if got := cfg.Telegram.Prefixes(); !reflect.DeepEqual(got, []string{"/", "!"}) {
		t.Fatalf("default prefixes = %q", got)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestDecodeYAML(t *testing.T) {
	cfg, err := Decode("config.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("level = %q", cfg.Logging.Level)
	}
	if got := cfg.Telegram.Prefixes(); !reflect.DeepEqual(got, []string{"!"}) {
		t.Fatalf("prefixes = %q", got)
	}
	if !strings.Contains(string(cfg.Plugins["countdown"].Config), `"max_per_chat":2`) {
		t.Fatalf("plugin config = %s", cfg.Plugins["countdown"].Config)
	}
}

func TestDecodeStrict(t *testing.T) {
	bad := map[string]string{
		"unknown top-level": `{"telegram": {"token": "x"}, "bogus": 1}`,
		"unknown plugin key": `{"telegram": {"token": "x"}, "plugins": {"countdown": {"enabled": true, "timeout": "1s"}}}`,
		"trailing data":      `{"telegram": {"token": "x"}} {}`,
	}
	for name, doc := range bad {
		if _, err := Decode("c.json", []byte(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg := &Config{
		Telegram: TelegramConfig{GroupLog: "abc", CommandPrefixes: []string{"//"}},
		Router:   RouterConfig{CommandTimeout: "soon"},
		Storage:  &StorageConfig{Driver: "postgres", AuditRetention: "-1h"},
	}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"telegram.token", "group_log", "command_prefixes", "router.command_timeout", "storage.driver", "storage.audit_retention"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
}

func TestSummarizeChange(t *testing.T) {
	oldCfg, _ := Decode("c.json", []byte(sampleJSON))
	newCfg, _ := Decode("c.json", []byte(sampleJSON))
	newCfg.Logging.Level = "debug"
	newCfg.Plugins["countdown"] = PluginConfigRaw{Enabled: true, Config: []byte(`{ "max_per_chat" : 5 }`)}

	sections, _, plugins := SummarizeChange(oldCfg, newCfg)
	if !reflect.DeepEqual(sections, []string{"logging", "plugins"}) {
		t.Fatalf("sections = %q", sections)
	}
	if !reflect.DeepEqual(plugins, []string{"countdown"}) {
		t.Fatalf("plugins = %q", plugins)
	}

	same, _ := Decode("c.json", []byte(sampleJSON))
	same.Plugins["countdown"] = PluginConfigRaw{Enabled: true, Config: []byte(`{"max_per_chat":2}`)}
	if sections, _, _ := SummarizeChange(oldCfg, same); len(sections) != 0 {
		t.Fatalf("whitespace-only change reported: %q", sections)
	}
}

func TestManagerReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(sampleJSON), 0o600); err != nil {
		t.Fatal(err)
	}
	m := NewConfigManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	published, err := m.Reload(context.Background())
	if err != nil || published {
		t.Fatalf("unchanged reload: published=%v err=%v", published, err)
	}

	updated := strings.Replace(sampleJSON, `"level": "info"`, `"level": "warn"`, 1)
	if err := os.WriteFile(path, []byte(updated), 0o600); err != nil {
		t.Fatal(err)
	}
	published, err = m.Reload(context.Background())
	if err != nil || !published {
		t.Fatalf("changed reload: published=%v err=%v", published, err)
	}
	if got := (<-ch).Logging.Level; got != "warn" {
		t.Fatalf("published level = %q", got)
	}
	if m.Get().Logging.Level != "warn" {
		t.Fatal("Get should return the committed config")
	}
}

func TestManagerRejectsInvalidReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(sampleJSON), 0o600); err != nil {
		t.Fatal(err)
	}
	m := NewConfigManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	m.SetValidator(func(context.Context, *Config) error { return os.ErrInvalid })

	updated := strings.Replace(sampleJSON, `"console": true`, `"console": false`, 1)
	if err := os.WriteFile(path, []byte(updated), 0o600); err != nil {
		t.Fatal(err)
	}
	if published, err := m.Reload(context.Background()); err == nil || published {
		t.Fatalf("validator rejection ignored: published=%v err=%v", published, err)
	}
	if !m.Get().Logging.Console {
		t.Fatal("rejected config must not be committed")
	}
}
