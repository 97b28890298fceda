package countdown

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	core "countdownbot/internal/countdown"
	"countdownbot/internal/plugin"
	"countdownbot/internal/storage"
	logx "countdownbot/pkg/logx"
)

const historyDefault = 5

func (p *Plugin) Commands() []plugin.Command {
	return []plugin.Command{
		{
			Route:       "countdown",
			Aliases:     []string{"cd"},
			Description: "start a countdown in this chat",
			Usage:       core.Usage(),
			Handle:      p.cmdStart,
		},
		{
			Route:       "countdown stop",
			Description: "stop every countdown in this chat",
			Usage:       "/countdown stop",
			Handle:      p.cmdStop,
		},
		{
			Route:       "countdown list",
			Description: "list running countdowns",
			Usage:       "/countdown list",
			Handle:      p.cmdList,
		},
		{
			Route:       "countdown history",
			Description: "show recent countdowns of this chat",
			Usage:       "/countdown history [n]",
			Handle:      p.cmdHistory,
		},
		{
			Route:       "countdown prune",
			Description: "drop audit entries past storage.audit_retention",
			Usage:       "/countdown prune",
			Access:      plugin.AccessOwnerOnly,
			Handle:      p.cmdPrune,
		},
	}
}

func (p *Plugin) cmdStart(ctx context.Context, req *plugin.Request) error {
	st := p.seq.EvaluateCommand(core.Line{IsCommand: true, Command: core.CommandName, Args: req.Args})
	spec, err := core.ParseCommand(req.Args)
	if err != nil {
		if !errors.Is(err, core.ErrHelpRequested) {
			req.Logger.Debug("countdown rejected", logx.Err(err))
		}
		// st holds the usage text; it is not tracked as a run
		st.Subscribe(p.Context(), func(n core.Notification) error {
			rctx, cancel := context.WithTimeout(p.Context(), sendTimeout)
			defer cancel()
			return req.Reply(rctx, n.Text)
		})
		return nil
	}

	s := p.settings()
	if d := time.Duration(spec.Duration) * time.Second; d > s.maxDuration {
		return req.Reply(ctx, fmt.Sprintf("countdown too long: %s is over the %s limit", d, s.maxDuration))
	}
	if _, err := p.startRun(req, spec, st); err != nil {
		if errors.Is(err, errTooMany) {
			return req.Reply(ctx, fmt.Sprintf("%d countdowns already running here, stop one with /countdown stop", s.maxPerChat))
		}
		return err
	}
	return nil
}

func (p *Plugin) cmdStop(ctx context.Context, req *plugin.Request) error {
	n := p.cancelChat(req.Chat)
	switch n {
	case 0:
		return req.Reply(ctx, "no countdown running")
	case 1:
		return req.Reply(ctx, "countdown stopped")
	default:
		return req.Reply(ctx, strconv.Itoa(n)+" countdowns stopped")
	}
}

func (p *Plugin) cmdList(ctx context.Context, req *plugin.Request) error {
	rs := p.active(req.Chat)
	if len(rs) == 0 {
		return req.Reply(ctx, "no countdown running")
	}
	now := p.clock.Now()
	var b strings.Builder
	for i, r := range rs {
		if i > 0 {
			b.WriteByte('\n')
		}
		left := int64(r.remaining(now) / time.Second)
		fmt.Fprintf(&b, "%s  %s left", r.id[:8], core.FormatRemaining(left, r.spec.Unit))
		if r.fromUser != "" {
			b.WriteString("  by @" + r.fromUser)
		}
	}
	return req.Reply(ctx, b.String())
}

func (p *Plugin) cmdHistory(ctx context.Context, req *plugin.Request) error {
	limit := historyDefault
	if len(req.Args) > 0 {
		n, err := strconv.Atoi(req.Args[0])
		if err != nil || n <= 0 || n > 50 {
			return req.Reply(ctx, "usage: /countdown history [1-50]")
		}
		limit = n
	}
	st := p.Deps.Store
	if st == nil {
		return req.Reply(ctx, "history is off (no storage configured)")
	}
	entries, err := st.ListAudit(ctx, storage.AuditFilter{ChatID: req.Chat.ChatID, Action: AuditStart, Limit: limit})
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return req.Reply(ctx, "no countdowns yet")
	}
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(e.At.UTC().Format("2006-01-02 15:04:05"))
		if len(e.Target) >= 8 {
			b.WriteString("  " + e.Target[:8])
		}
		if e.ActorUsername != "" {
			b.WriteString("  @" + e.ActorUsername)
		}
	}
	return req.Reply(ctx, b.String())
}

func (p *Plugin) cmdPrune(ctx context.Context, req *plugin.Request) error {
	n, err := p.pruneAudit(ctx)
	if err != nil {
		return err
	}
	return req.Reply(ctx, fmt.Sprintf("pruned %d audit entries", n))
}
