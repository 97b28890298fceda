package config

import (
	"bytes"
	"reflect"
	"sort"

	logx "countdownbot/pkg/logx"
)

// SummarizeChange lists the top-level sections that differ between two
// configs, safe log fields describing them (never the token), and the names
// of plugins whose enablement or config changed.
func SummarizeChange(oldCfg, newCfg *Config) (sections []string, fields []logx.Field, plugins []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	o, n := oldCfg.Telegram, newCfg.Telegram
	if o.Token != n.Token || o.GroupLog != n.GroupLog || o.PollTimeout != n.PollTimeout ||
		!reflect.DeepEqual(o.OwnerUserIDs, n.OwnerUserIDs) || !reflect.DeepEqual(o.Prefixes(), n.Prefixes()) {
		sections = append(sections, "telegram")
		fields = append(fields,
			logx.Bool("telegram.token_changed", o.Token != n.Token),
			logx.Int("telegram.owner_count", len(n.OwnerUserIDs)),
			logx.Strings("telegram.command_prefixes", n.Prefixes()),
		)
	}
	if oldCfg.Logging != newCfg.Logging {
		sections = append(sections, "logging")
		fields = append(fields,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram", newCfg.Logging.Telegram.Enabled),
		)
	}
	if oldCfg.Router != newCfg.Router {
		sections = append(sections, "router")
		fields = append(fields, logx.Int("router.workers", newCfg.Router.Workers))
	}
	if oldCfg.Scheduler != newCfg.Scheduler {
		sections = append(sections, "scheduler")
		fields = append(fields, logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled))
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		sections = append(sections, "storage")
	}

	names := map[string]struct{}{}
	for k := range oldCfg.Plugins {
		names[k] = struct{}{}
	}
	for k := range newCfg.Plugins {
		names[k] = struct{}{}
	}
	for name := range names {
		op, oOK := oldCfg.Plugins[name]
		np, nOK := newCfg.Plugins[name]
		if oOK != nOK || op.Enabled != np.Enabled || !bytes.Equal(compactJSON(op.Config), compactJSON(np.Config)) {
			plugins = append(plugins, name)
		}
	}
	sort.Strings(plugins)
	if len(plugins) > 0 {
		sections = append(sections, "plugins")
		fields = append(fields, logx.Strings("plugins.changed", plugins))
	}
	return sections, fields, plugins
}
