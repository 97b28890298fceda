// Package system answers operational commands: liveness, uptime, runtime
// info, plugin health and the housekeeping schedule.
package system

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"countdownbot/internal/eventbus"
	"countdownbot/internal/plugin"
	"countdownbot/pkg/tgui"
)

type Plugin struct {
	plugin.PluginBase
	startedAt time.Time
	now       func() time.Time
}

func New() *Plugin { return &Plugin{now: time.Now} }

func (p *Plugin) Name() string { return "system" }

func (p *Plugin) Init(_ context.Context, deps plugin.Deps) error {
	p.InitBase(deps, p.Name())
	if p.startedAt.IsZero() {
		p.startedAt = p.now()
	}
	return nil
}

func (p *Plugin) Start(ctx context.Context) error { p.StartBase(ctx); return nil }

func (p *Plugin) Stop(ctx context.Context) error { return p.StopBase(ctx) }

func (p *Plugin) Commands() []plugin.Command {
	return []plugin.Command{
		{
			Route:       "ping",
			Description: "check that the bot answers",
			Usage:       "/ping",
			Handle: func(ctx context.Context, req *plugin.Request) error {
				return req.Reply(ctx, "pong")
			},
		},
		{
			Route:       "uptime",
			Aliases:     []string{"up"},
			Description: "show how long the bot has been running",
			Usage:       "/uptime",
			Handle: func(ctx context.Context, req *plugin.Request) error {
				return req.Reply(ctx, "uptime: "+durRel(p.now().Sub(p.startedAt)))
			},
		},
		{
			Route:       "health",
			Aliases:     []string{"status"},
			Description: "plugin and service health",
			Usage:       "/health",
			Access:      plugin.AccessOwnerOnly,
			Handle:      p.cmdHealth,
		},
		{
			Route:       "sysinfo",
			Description: "runtime info",
			Usage:       "/sysinfo",
			Access:      plugin.AccessOwnerOnly,
			Handle:      p.cmdSysinfo,
		},
		{
			Route:       "sched",
			Aliases:     []string{"sched_list"},
			Description: "list housekeeping schedules",
			Usage:       "/sched",
			Access:      plugin.AccessOwnerOnly,
			Handle:      p.cmdSched,
		},
	}
}

func (p *Plugin) cmdHealth(ctx context.Context, req *plugin.Request) error {
	b := tgui.New().Title("🩺", "health")
	b.KV("uptime", durRel(p.now().Sub(p.startedAt)))

	if p.Deps.Plugins != nil {
		b.Section("plugins")
		for _, st := range p.Deps.Plugins() {
			state := "disabled"
			switch {
			case st.Quarantined:
				state = "quarantined: " + tgui.TruncRunes(st.Err, 120)
			case st.Running:
				state = "running"
			case st.Enabled:
				state = "enabled, not running"
			}
			b.KV(st.Name, state)
		}
	}

	b.Section("services")
	sched := "n/a"
	if s := p.Deps.Scheduler; s != nil {
		sched = "disabled"
		if s.Enabled() {
			sched = fmt.Sprintf("enabled, %d schedules", len(s.Schedules()))
		}
	}
	b.KV("scheduler", sched)
	if p.Deps.Store != nil {
		b.KV("storage", "on")
	} else {
		b.KV("storage", "off")
	}
	if p.Deps.Bus != nil {
		b.KV("events dropped", fmt.Sprintf("%d", eventbus.Dropped(p.Deps.Bus)))
	}

	_, err := b.Build().Send(ctx, req.Adapter, req.Chat)
	return err
}

func (p *Plugin) cmdSysinfo(ctx context.Context, req *plugin.Request) error {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	mod := ""
	if bi, ok := debug.ReadBuildInfo(); ok && bi != nil {
		mod = bi.Main.Path + " " + bi.Main.Version
	}

	_, err := tgui.New().
		Title("🧠", "sysinfo").
		KV("go", runtime.Version()).
		KV("module", mod).
		KV("goroutines", fmt.Sprintf("%d", runtime.NumGoroutine())).
		KV("mem_alloc", fmtBytes(m.Alloc)).
		KV("mem_sys", fmtBytes(m.Sys)).
		Build().
		Send(ctx, req.Adapter, req.Chat)
	return err
}

func (p *Plugin) cmdSched(ctx context.Context, req *plugin.Request) error {
	s := p.Deps.Scheduler
	if s == nil || !s.Enabled() {
		return req.Reply(ctx, "scheduler is disabled")
	}
	infos := s.Schedules()
	if len(infos) == 0 {
		return req.Reply(ctx, "no scheduled tasks")
	}

	now := p.now()
	lines := make([]string, 0, len(infos)+1)
	lines = append(lines, "⏱ scheduled tasks:")
	for _, t := range infos {
		next := "-"
		if !t.Next.IsZero() {
			next = t.Next.Format("2006-01-02 15:04:05 MST")
			if t.Next.After(now) {
				next += " (in " + durRel(t.Next.Sub(now)) + ")"
			}
		}
		lines = append(lines, fmt.Sprintf("- %s: spec=%s, next=%s", t.Name, t.Spec, next))
	}
	return req.Reply(ctx, strings.Join(lines, "\n"))
}

func fmtBytes(n uint64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)
	switch {
	case n >= GB:
		return fmt.Sprintf("%.1fGB", float64(n)/GB)
	case n >= MB:
		return fmt.Sprintf("%.1fMB", float64(n)/MB)
	case n >= KB:
		return fmt.Sprintf("%.1fKB", float64(n)/KB)
	default:
		return fmt.Sprintf("%dB", n)
	}
}

func durRel(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
