// Package plugin hosts chat command plugins: the lifecycle interface, a base
// type with shared helpers, and the manager that starts and reconfigures
// plugins from config.
package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"countdownbot/internal/config"
	"countdownbot/internal/eventbus"
	"countdownbot/internal/runtime/supervisor"
	"countdownbot/internal/storage"
	"countdownbot/internal/task/scheduler"
	kit "countdownbot/internal/transport"
	logx "countdownbot/pkg/logx"
)

type Plugin interface {
	Name() string
	Init(ctx context.Context, deps Deps) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Commands() []Command
}

// ConfigurablePlugin receives its raw config before Start and on every
// change while running.
type ConfigurablePlugin interface {
	OnConfigChange(ctx context.Context, raw json.RawMessage) error
}

// ConfigValidator is an optional hook to validate plugin config before it is
// committed.
type ConfigValidator interface {
	ValidateConfig(ctx context.Context, raw json.RawMessage) error
}

// Deps are the host services handed to plugins. Store, Bus, Scheduler and
// Config may be nil.
type Deps struct {
	Logger    logx.Logger
	Adapter   kit.Sender
	Bus       eventbus.Bus
	Store     storage.Store
	Scheduler *scheduler.Service
	// Config returns the current global config.
	Config func() *config.Config
	// Plugins lists every registered plugin; filled in by the Manager.
	Plugins func() []Status
}

var errNoScheduler = errors.New("scheduler not available")

// PluginBase bundles the helpers most plugins need:
//
//	type Plugin struct{ plugin.PluginBase }
//	func (p *Plugin) Init(ctx context.Context, deps plugin.Deps) error { p.InitBase(deps, p.Name()); return nil }
//	func (p *Plugin) Start(ctx context.Context) error { p.StartBase(ctx); return nil }
//	func (p *Plugin) Stop(ctx context.Context) error { return p.StopBase(ctx) }
type PluginBase struct {
	Log    logx.Logger
	Deps   Deps
	Runner *supervisor.Supervisor

	pluginName string
	ctx        context.Context
	schedules  []string
}

func (b *PluginBase) InitBase(deps Deps, pluginName string) {
	b.Deps = deps
	b.pluginName = pluginName
	log := deps.Logger
	if log.IsZero() {
		log = logx.Nop()
	}
	b.Log = log.With(logx.String("plugin", pluginName))
}

// StartBase creates the per-plugin supervisor tied to ctx.
func (b *PluginBase) StartBase(ctx context.Context) {
	b.ctx = ctx
	b.Runner = supervisor.New(ctx, supervisor.WithLogger(b.Log), supervisor.WithCancelOnError(false))
}

// StopBase removes the plugin's schedules, cancels its goroutines and waits
// for them, bounded by ctx.
func (b *PluginBase) StopBase(ctx context.Context) error {
	if sch := b.Deps.Scheduler; sch != nil {
		for _, name := range b.schedules {
			sch.Remove(name)
		}
	}
	b.schedules = nil
	if b.Runner == nil {
		return nil
	}
	err := b.Runner.Stop(ctx)
	b.Runner = nil
	return err
}

// GlobalConfig returns the current global config, or an empty one.
func (b *PluginBase) GlobalConfig() *config.Config {
	if b.Deps.Config != nil {
		if cfg := b.Deps.Config(); cfg != nil {
			return cfg
		}
	}
	return &config.Config{}
}

// Context returns the plugin runtime context (canceled on stop or disable).
func (b *PluginBase) Context() context.Context {
	if b.ctx == nil {
		return context.Background()
	}
	return b.ctx
}

// Schedule registers a housekeeping job under "<plugin>:<name>"; see
// scheduler.ParseSchedule for accepted forms. StopBase removes it again.
func (b *PluginBase) Schedule(name, spec string, timeout time.Duration, job scheduler.Job) error {
	sch := b.Deps.Scheduler
	if sch == nil {
		return errNoScheduler
	}
	full := b.ns(name)
	if err := sch.AddSchedule(full, spec, timeout, job); err != nil {
		return err
	}
	for _, s := range b.schedules {
		if s == full {
			return nil
		}
	}
	b.schedules = append(b.schedules, full)
	return nil
}

// RunSchedule runs a job registered through Schedule right away.
func (b *PluginBase) RunSchedule(ctx context.Context, name string) error {
	if b.Deps.Scheduler == nil {
		return errNoScheduler
	}
	return b.Deps.Scheduler.RunNow(ctx, b.ns(name))
}

func (b *PluginBase) ns(name string) string {
	if name == "" {
		return b.pluginName
	}
	return b.pluginName + ":" + name
}

// AppendAudit writes an audit entry tagged with the plugin name. It returns
// storage.ErrDisabled when no store is configured.
func (b *PluginBase) AppendAudit(ctx context.Context, e storage.AuditEntry) error {
	if b.Deps.Store == nil {
		return storage.ErrDisabled
	}
	if e.Plugin == "" {
		e.Plugin = b.pluginName
	}
	return b.Deps.Store.AppendAudit(ctx, e)
}

// PublishEvent publishes on the in-process bus, if any. Never blocks.
func (b *PluginBase) PublishEvent(typ string, data any) {
	if b.Deps.Bus == nil {
		return
	}
	b.Deps.Bus.Publish(eventbus.Event{Type: typ, Data: data})
}

// DecodePluginConfig decodes a plugin's raw config into T, rejecting unknown
// keys. Empty input yields the zero T.
func DecodePluginConfig[T any](raw json.RawMessage) (T, error) {
	var out T
	if len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		return out, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, fmt.Errorf("decode plugin config: %w", err)
	}
	return out, nil
}
