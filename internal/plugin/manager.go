package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"countdownbot/internal/config"
	"countdownbot/internal/eventbus"
	logx "countdownbot/pkg/logx"
)

// CommandRegistry receives the commands of every running plugin.
type CommandRegistry interface {
	SetRegistry(cmds []Command)
}

type pluginEvent struct {
	Plugin string `json:"plugin"`
	Stage  string `json:"stage,omitempty"`
	Err    string `json:"err,omitempty"`
	TookMS int64  `json:"took_ms,omitempty"`
}

// Status is a point-in-time view of one registered plugin.
type Status struct {
	Name        string
	Enabled     bool
	Running     bool
	Quarantined bool
	Err         string
}

const callTimeout = 10 * time.Second

type Manager struct {
	mu sync.Mutex

	log  logx.Logger
	deps Deps
	cmds CommandRegistry

	reg map[string]Plugin
	run map[string]bool
	// Init runs once per plugin, not on every enable.
	inited   map[string]bool
	lastHash map[string]uint64
	// plugins kept stopped because their config failed; cleared when the
	// config blob changes
	quarantine map[string]quarantineState

	// long-lived parent of every plugin context, not the caller's ctx
	baseCtx    context.Context
	baseCancel context.CancelFunc
	pcancel    map[string]context.CancelFunc

	cfg *config.Config
}

type quarantineState struct {
	hash uint64
	err  string
}

func NewManager(log logx.Logger, deps Deps, cmds CommandRegistry) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	baseCtx, baseCancel := context.WithCancel(context.Background())
	pm := &Manager{
		log:        log.With(logx.String("comp", "plugins")),
		deps:       deps,
		cmds:       cmds,
		reg:        map[string]Plugin{},
		run:        map[string]bool{},
		inited:     map[string]bool{},
		lastHash:   map[string]uint64{},
		quarantine: map[string]quarantineState{},
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
		pcancel:    map[string]context.CancelFunc{},
		cfg:        &config.Config{},
	}
	pm.deps.Plugins = pm.Statuses
	return pm
}

func (pm *Manager) emit(typ string, data pluginEvent) {
	if pm.deps.Bus != nil {
		pm.deps.Bus.Publish(eventbus.Event{Type: typ, Data: data})
	}
}

func (pm *Manager) Register(p ...Plugin) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	for _, pl := range p {
		pm.reg[pl.Name()] = pl
	}
}

// Apply starts, stops and reconfigures plugins to match cfg.
func (pm *Manager) Apply(cfg *config.Config) {
	if cfg == nil {
		return
	}
	type op struct {
		name    string
		p       Plugin
		raw     config.PluginConfigRaw
		hash    uint64
		enabled bool
		running bool
	}
	pm.mu.Lock()
	pm.cfg = cfg
	ops := make([]op, 0, len(pm.reg))
	for name, p := range pm.reg {
		raw, ok := cfg.Plugins[name]
		ops = append(ops, op{
			name:    name,
			p:       p,
			raw:     raw,
			hash:    configHash(raw.Config),
			enabled: ok && raw.Enabled,
			running: pm.run[name],
		})
	}
	pm.mu.Unlock()
	sort.Slice(ops, func(i, j int) bool { return ops[i].name < ops[j].name })

	for _, o := range ops {
		switch {
		case o.enabled && !o.running:
			pm.start(o.name, o.p, o.raw.Config, o.hash)
		case !o.enabled && o.running:
			ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
			pm.stopOne(ctx, o.name, "disabled")
			cancel()
		case o.enabled && o.running:
			pm.reconfigure(o.name, o.p, o.raw.Config, o.hash)
		}
	}
	pm.refreshRegistry()
}

func (pm *Manager) start(name string, p Plugin, raw json.RawMessage, hash uint64) {
	pm.mu.Lock()
	q, quarantined := pm.quarantine[name]
	if quarantined && q.hash != hash {
		delete(pm.quarantine, name)
		quarantined = false
	}
	needInit := !pm.inited[name]
	pm.mu.Unlock()
	if quarantined {
		pm.log.Warn("plugin enable skipped (quarantined)", logx.String("plugin", name), logx.String("err", q.err))
		return
	}

	start := time.Now()
	pctx, cancel := context.WithCancel(pm.baseCtx)
	if needInit {
		if err := pm.call(pctx, "init", name, func(ctx context.Context) error { return p.Init(ctx, pm.deps) }); err != nil {
			pm.log.Error("plugin init failed", logx.String("plugin", name), logx.Err(err))
			pm.emit("plugin.init_failed", pluginEvent{Plugin: name, Err: err.Error()})
			cancel()
			return
		}
		pm.mu.Lock()
		pm.inited[name] = true
		pm.mu.Unlock()
	}

	if err := pm.configure(pctx, name, p, raw); err != nil {
		pm.setQuarantine(name, hash, err)
		cancel()
		return
	}
	// Start gets the long-lived plugin context; only the call itself is bounded.
	if err := pm.call(pctx, "start", name, func(context.Context) error { return p.Start(pctx) }); err != nil {
		pm.log.Error("plugin start failed", logx.String("plugin", name), logx.Err(err))
		pm.emit("plugin.start_failed", pluginEvent{Plugin: name, Err: err.Error()})
		cancel()
		return
	}

	pm.mu.Lock()
	pm.run[name] = true
	pm.pcancel[name] = cancel
	pm.lastHash[name] = hash
	pm.mu.Unlock()

	took := time.Since(start)
	pm.log.Info("plugin started", logx.String("plugin", name), logx.Duration("took", took))
	pm.emit("plugin.started", pluginEvent{Plugin: name, TookMS: took.Milliseconds()})
}

func (pm *Manager) reconfigure(name string, p Plugin, raw json.RawMessage, hash uint64) {
	pm.mu.Lock()
	unchanged := pm.lastHash[name] == hash
	pm.mu.Unlock()
	if unchanged {
		return
	}
	if err := pm.configure(pm.baseCtx, name, p, raw); err != nil {
		pm.setQuarantine(name, hash, err)
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		pm.stopOne(ctx, name, "quarantine")
		cancel()
		return
	}
	pm.mu.Lock()
	pm.lastHash[name] = hash
	pm.mu.Unlock()
	pm.log.Info("plugin config applied", logx.String("plugin", name))
	pm.emit("plugin.config_applied", pluginEvent{Plugin: name})
}

func (pm *Manager) configure(ctx context.Context, name string, p Plugin, raw json.RawMessage) error {
	if v, ok := p.(ConfigValidator); ok {
		if err := pm.call(ctx, "validate", name, func(c context.Context) error { return v.ValidateConfig(c, raw) }); err != nil {
			return fmt.Errorf("config validate: %w", err)
		}
	}
	if cp, ok := p.(ConfigurablePlugin); ok {
		if err := pm.call(ctx, "config", name, func(c context.Context) error { return cp.OnConfigChange(c, raw) }); err != nil {
			return fmt.Errorf("config apply: %w", err)
		}
	}
	return nil
}

func (pm *Manager) setQuarantine(name string, hash uint64, err error) {
	pm.mu.Lock()
	pm.quarantine[name] = quarantineState{hash: hash, err: err.Error()}
	pm.mu.Unlock()
	pm.log.Error("plugin quarantined", logx.String("plugin", name), logx.Err(err))
	pm.emit("plugin.quarantined", pluginEvent{Plugin: name, Err: err.Error()})
}

func (pm *Manager) stopOne(ctx context.Context, name, reason string) {
	pm.mu.Lock()
	p := pm.reg[name]
	running := pm.run[name]
	cancel := pm.pcancel[name]
	pm.mu.Unlock()
	if !running || p == nil {
		return
	}

	start := time.Now()
	if cancel != nil {
		cancel()
	}
	// a misbehaving Stop must not block shutdown past ctx
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := pm.safeCall("stop", name, func() error { return p.Stop(ctx) }); err != nil {
			pm.log.Warn("plugin stop error", logx.String("plugin", name), logx.Err(err))
		}
	}()
	select {
	case <-done:
	case <-ctx.Done():
		pm.log.Warn("plugin stop timeout (continuing)", logx.String("plugin", name), logx.Err(ctx.Err()))
	}

	pm.mu.Lock()
	pm.run[name] = false
	delete(pm.pcancel, name)
	delete(pm.lastHash, name)
	pm.mu.Unlock()

	took := time.Since(start)
	pm.log.Info("plugin stopped", logx.String("plugin", name), logx.String("reason", reason), logx.Duration("took", took))
	pm.emit("plugin.stopped", pluginEvent{Plugin: name, Stage: reason, TookMS: took.Milliseconds()})
}

// StopAll stops every running plugin, each bounded by ctx.
func (pm *Manager) StopAll(ctx context.Context) {
	pm.mu.Lock()
	names := make([]string, 0, len(pm.reg))
	for name := range pm.reg {
		names = append(names, name)
	}
	pm.mu.Unlock()
	sort.Strings(names)
	for _, name := range names {
		pm.stopOne(ctx, name, "shutdown")
	}
	pm.baseCancel()
	pm.refreshRegistry()
}

// ValidateConfig runs every enabled plugin's validator against cfg without
// applying it. Used by the config manager before committing a reload.
func (pm *Manager) ValidateConfig(ctx context.Context, cfg *config.Config) error {
	pm.mu.Lock()
	names := make([]string, 0, len(pm.reg))
	for name := range pm.reg {
		names = append(names, name)
	}
	pm.mu.Unlock()
	sort.Strings(names)

	for _, name := range names {
		raw, ok := cfg.Plugins[name]
		if !ok || !raw.Enabled {
			continue
		}
		pm.mu.Lock()
		p := pm.reg[name]
		pm.mu.Unlock()
		v, ok := p.(ConfigValidator)
		if !ok {
			continue
		}
		if err := pm.call(ctx, "validate", name, func(c context.Context) error { return v.ValidateConfig(c, raw.Config) }); err != nil {
			return fmt.Errorf("plugin %s: %w", name, err)
		}
	}
	return nil
}

func (pm *Manager) Statuses() []Status {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	out := make([]Status, 0, len(pm.reg))
	for name := range pm.reg {
		raw, ok := pm.cfg.Plugins[name]
		q, quarantined := pm.quarantine[name]
		out = append(out, Status{
			Name:        name,
			Enabled:     ok && raw.Enabled,
			Running:     pm.run[name],
			Quarantined: quarantined,
			Err:         q.err,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (pm *Manager) refreshRegistry() {
	if pm.cmds == nil {
		return
	}
	pm.mu.Lock()
	names := make([]string, 0, len(pm.reg))
	for name := range pm.reg {
		if pm.run[name] {
			names = append(names, name)
		}
	}
	pm.mu.Unlock()
	sort.Strings(names)

	var cmds []Command
	for _, name := range names {
		pm.mu.Lock()
		p := pm.reg[name]
		pm.mu.Unlock()
		var pc []Command
		_ = pm.safeCall("commands", name, func() error { pc = p.Commands(); return nil })
		for _, c := range pc {
			c.PluginName = name
			cmds = append(cmds, c)
		}
	}
	pm.cmds.SetRegistry(cmds)
}

// call runs fn with a bounded context and panic recovery.
func (pm *Manager) call(parent context.Context, stage, name string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, callTimeout)
	defer cancel()
	return pm.safeCall(stage, name, func() error { return fn(ctx) })
}

func (pm *Manager) safeCall(stage, name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			pm.log.Error("panic in plugin call",
				logx.String("plugin", name),
				logx.String("call", stage),
				logx.Any("panic", r),
				logx.Stack(string(debug.Stack())),
			)
			err = fmt.Errorf("panic in %s.%s: %v", name, stage, r)
		}
	}()
	return fn()
}

// configHash hashes a config blob after re-encoding it, so whitespace and
// key order do not count as changes.
func configHash(raw json.RawMessage) uint64 {
	if len(raw) == 0 {
		return 0
	}
	b := []byte(raw)
	var v any
	if json.Unmarshal(raw, &v) == nil {
		if canon, err := json.Marshal(v); err == nil {
			b = canon
		}
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
