// Package countdown is the chat plugin that turns a countdown command into a
// timed stream of chat messages.
package countdown

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"countdownbot/internal/clock"
	"countdownbot/internal/config"
	core "countdownbot/internal/countdown"
	"countdownbot/internal/plugin"
	"countdownbot/internal/task/scheduler"
	kit "countdownbot/internal/transport"
)

const (
	defaultMaxDuration = 24 * time.Hour
	defaultMaxPerChat  = 3
	defaultRatePerSec  = 20
	defaultAuditPrune  = "@daily"
)

// Config is the plugin's "config" block:
//
//	"countdown": {
//	  "enabled": true,
//	  "config": { "max_duration": "24h", "max_per_chat": 3, "rate_per_sec": 20, "audit_prune": "@daily" }
//	}
type Config struct {
	MaxDuration string `json:"max_duration,omitempty"`
	MaxPerChat  int    `json:"max_per_chat,omitempty"`
	// RatePerSec limits messages per second relayed into one chat.
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	AuditPrune string `json:"audit_prune,omitempty"`
}

type settings struct {
	maxDuration time.Duration
	maxPerChat  int
	ratePerSec  int
	auditPrune  string
}

func (c Config) settings() (settings, error) {
	maxDur, err := config.ParseDurationOrDefault("countdown.max_duration", c.MaxDuration, defaultMaxDuration)
	if err != nil {
		return settings{}, err
	}
	s := settings{
		maxDuration: maxDur,
		maxPerChat:  c.MaxPerChat,
		ratePerSec:  c.RatePerSec,
		auditPrune:  strings.TrimSpace(c.AuditPrune),
	}
	if s.maxPerChat < 0 || s.ratePerSec < 0 {
		return settings{}, fmt.Errorf("countdown.max_per_chat and countdown.rate_per_sec must be >= 0")
	}
	if s.maxPerChat == 0 {
		s.maxPerChat = defaultMaxPerChat
	}
	if s.ratePerSec == 0 {
		s.ratePerSec = defaultRatePerSec
	}
	if s.auditPrune == "" {
		s.auditPrune = defaultAuditPrune
	}
	if _, err := scheduler.ParseSchedule(s.auditPrune); err != nil {
		return settings{}, fmt.Errorf("countdown.audit_prune: %w", err)
	}
	return s, nil
}

type Plugin struct {
	plugin.PluginBase

	clock clock.Clock
	seq   *core.Sequencer

	mu       sync.Mutex
	cfg      settings
	runs     map[kit.ChatTarget][]*run
	limiters map[kit.ChatTarget]*rate.Limiter
}

type Option func(*Plugin)

// WithClock drives every countdown from clk instead of the wall clock.
func WithClock(clk clock.Clock) Option {
	return func(p *Plugin) { p.clock = clk }
}

func New(opts ...Option) *Plugin {
	p := &Plugin{
		clock:    clock.Real(),
		runs:     map[kit.ChatTarget][]*run{},
		limiters: map[kit.ChatTarget]*rate.Limiter{},
	}
	for _, o := range opts {
		o(p)
	}
	p.seq = core.NewSequencer(p.clock)
	p.cfg, _ = Config{}.settings()
	return p
}

func (p *Plugin) Name() string { return "countdown" }

func (p *Plugin) Init(_ context.Context, deps plugin.Deps) error {
	p.InitBase(deps, p.Name())
	return nil
}

func (p *Plugin) Start(ctx context.Context) error {
	p.StartBase(ctx)
	return p.schedulePrune()
}

// Stop cancels every running countdown, then waits for their bookkeeping.
func (p *Plugin) Stop(ctx context.Context) error {
	p.mu.Lock()
	var all []*run
	for _, rs := range p.runs {
		all = append(all, rs...)
	}
	p.mu.Unlock()
	for _, r := range all {
		r.sub.Cancel()
	}
	return p.StopBase(ctx)
}

func (p *Plugin) ValidateConfig(_ context.Context, raw json.RawMessage) error {
	c, err := plugin.DecodePluginConfig[Config](raw)
	if err != nil {
		return err
	}
	_, err = c.settings()
	return err
}

func (p *Plugin) OnConfigChange(_ context.Context, raw json.RawMessage) error {
	c, err := plugin.DecodePluginConfig[Config](raw)
	if err != nil {
		return err
	}
	s, err := c.settings()
	if err != nil {
		return err
	}
	p.mu.Lock()
	old := p.cfg
	p.cfg = s
	if old.ratePerSec != s.ratePerSec {
		p.limiters = map[kit.ChatTarget]*rate.Limiter{}
	}
	p.mu.Unlock()

	// running: re-register the prune job if its schedule moved
	if p.Runner != nil && old.auditPrune != s.auditPrune {
		return p.schedulePrune()
	}
	return nil
}

func (p *Plugin) settings() settings {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

func (p *Plugin) limiter(chat kit.ChatTarget) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	lim := p.limiters[chat]
	if lim == nil {
		lim = rate.NewLimiter(rate.Limit(p.cfg.ratePerSec), p.cfg.ratePerSec)
		p.limiters[chat] = lim
	}
	return lim
}
