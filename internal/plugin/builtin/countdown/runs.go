package countdown

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"countdownbot/internal/config"
	core "countdownbot/internal/countdown"
	"countdownbot/internal/plugin"
	"countdownbot/internal/storage"
	kit "countdownbot/internal/transport"
	logx "countdownbot/pkg/logx"
)

const (
	EventStarted   = "countdown.started"
	EventFinished  = "countdown.finished"
	EventCancelled = "countdown.cancelled"

	AuditStart  = "countdown.start"
	AuditFinish = "countdown.finish"
	AuditCancel = "countdown.cancel"
)

const sendTimeout = 10 * time.Second

// run is one active countdown in a chat.
type run struct {
	id       string
	chat     kit.ChatTarget
	fromID   int64
	fromUser string
	spec     core.Spec
	sub      *core.Subscription
	log      logx.Logger
}

// remaining is the time left until the finish message.
func (r *run) remaining(now time.Time) time.Duration {
	left := r.spec.TotalDuration() - now.Sub(r.sub.Started())
	return max(left, 0)
}

type runEvent struct {
	ID       string `json:"id"`
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`
	FromID   int64  `json:"from_id,omitempty"`
	Duration int64  `json:"duration_s"`
	Interval int64  `json:"interval_s"`
	Events   int    `json:"events"`
	Err      string `json:"err,omitempty"`
}

func (r *run) event(err error) runEvent {
	e := runEvent{
		ID:       r.id,
		ChatID:   r.chat.ChatID,
		ThreadID: r.chat.ThreadID,
		FromID:   r.fromID,
		Duration: r.spec.Duration,
		Interval: r.spec.Interval,
		Events:   len(r.spec.Events),
	}
	if err != nil {
		e.Err = err.Error()
	}
	return e
}

var errTooMany = errors.New("too many countdowns in this chat")

// startRun subscribes st for the chat and tracks it until it ends. It fails
// with errTooMany once the chat holds max_per_chat runs.
func (p *Plugin) startRun(req *plugin.Request, spec core.Spec, st *core.Stream) (*run, error) {
	r := &run{
		id:       uuid.NewString(),
		chat:     req.Chat,
		fromID:   req.FromID,
		fromUser: req.FromUsername,
		spec:     spec,
	}
	r.log = p.Log.With(logx.String("run", r.id), logx.Int64("chat_id", r.chat.ChatID))

	// hold the lock across Subscribe so finish never sees an untracked run
	p.mu.Lock()
	if len(p.runs[r.chat]) >= p.cfg.maxPerChat {
		p.mu.Unlock()
		return nil, errTooMany
	}
	r.sub = st.Subscribe(p.Context(), func(n core.Notification) error { return p.relay(r, n) })
	p.runs[r.chat] = append(p.runs[r.chat], r)
	p.mu.Unlock()

	p.Runner.Go0("countdown."+r.id, func(context.Context) {
		<-r.sub.Done()
		p.finish(r, r.sub.Err())
	})

	r.log.Info("countdown started", logx.Int64("duration_s", spec.Duration), logx.Int64("interval_s", spec.Interval), logx.Int("events", len(spec.Events)))
	meta, _ := json.Marshal(r.event(nil))
	p.audit(r, AuditStart, 0, nil, string(meta))
	p.PublishEvent(EventStarted, r.event(nil))
	return r, nil
}

// relay sends one notification to the run's chat. Blank event messages are
// skipped. A failed send is logged and does not end the countdown.
func (p *Plugin) relay(r *run, n core.Notification) error {
	if strings.TrimSpace(n.Text) == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(p.Context(), sendTimeout)
	defer cancel()
	if err := p.limiter(r.chat).Wait(ctx); err != nil {
		return err
	}
	if _, err := p.Deps.Adapter.SendText(ctx, r.chat, n.Text, &kit.SendOptions{DisablePreview: true}); err != nil {
		if p.Context().Err() != nil {
			return p.Context().Err()
		}
		r.log.Warn("countdown send failed", logx.Duration("at", n.At), logx.Err(err))
	}
	return nil
}

// untrack removes r from its chat and reports whether it was still tracked.
func (p *Plugin) untrack(r *run) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	rs := p.runs[r.chat]
	for i, x := range rs {
		if x == r {
			rs = append(rs[:i:i], rs[i+1:]...)
			if len(rs) == 0 {
				delete(p.runs, r.chat)
				delete(p.limiters, r.chat)
			} else {
				p.runs[r.chat] = rs
			}
			return true
		}
	}
	return false
}

func (p *Plugin) finish(r *run, err error) {
	p.untrack(r)
	took := p.clock.Now().Sub(r.sub.Started())
	if err == nil {
		r.log.Info("countdown finished", logx.Duration("took", took))
		p.audit(r, AuditFinish, took, nil, "")
		p.PublishEvent(EventFinished, r.event(nil))
		return
	}
	r.log.Info("countdown cancelled", logx.Duration("took", took), logx.Err(err))
	p.audit(r, AuditCancel, took, err, "")
	p.PublishEvent(EventCancelled, r.event(err))
}

// audit is best-effort: a missing store is fine, a failing one is logged.
func (p *Plugin) audit(r *run, action string, took time.Duration, runErr error, meta string) {
	e := storage.AuditEntry{
		At:            p.clock.Now(),
		ActorID:       r.fromID,
		ActorUsername: r.fromUser,
		ChatID:        r.chat.ChatID,
		ThreadID:      r.chat.ThreadID,
		Action:        action,
		Target:        r.id,
		TookMS:        took.Milliseconds(),
		Meta:          meta,
	}
	if runErr != nil {
		e.Error = runErr.Error()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.AppendAudit(ctx, e); err != nil && !errors.Is(err, storage.ErrDisabled) {
		r.log.Warn("audit append failed", logx.String("action", action), logx.Err(err))
	}
}

// active returns the runs of one chat, oldest first.
func (p *Plugin) active(chat kit.ChatTarget) []*run {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*run(nil), p.runs[chat]...)
}

// cancelChat stops every countdown in chat and returns how many there were.
func (p *Plugin) cancelChat(chat kit.ChatTarget) int {
	rs := p.active(chat)
	for _, r := range rs {
		r.sub.Cancel()
		p.untrack(r)
	}
	return len(rs)
}

// pruneAudit drops audit entries older than storage.audit_retention.
func (p *Plugin) pruneAudit(ctx context.Context) (int64, error) {
	st := p.Deps.Store
	if st == nil {
		return 0, nil
	}
	var raw string
	if sc := p.GlobalConfig().Storage; sc != nil {
		raw = sc.AuditRetention
	}
	keep, err := config.ParseDurationOrDefault("storage.audit_retention", raw, 0)
	if err != nil || keep <= 0 {
		return 0, err
	}
	n, err := st.PruneAudit(ctx, p.clock.Now().Add(-keep))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		p.Log.Info("audit pruned", logx.Int64("removed", n), logx.Duration("retention", keep))
	}
	return n, nil
}

func (p *Plugin) schedulePrune() error {
	if p.Deps.Scheduler == nil || p.Deps.Store == nil {
		p.Log.Debug("audit prune not scheduled", logx.Bool("scheduler", p.Deps.Scheduler != nil), logx.Bool("store", p.Deps.Store != nil))
		return nil
	}
	s := p.settings()
	return p.Schedule("audit_prune", s.auditPrune, time.Minute, func(ctx context.Context) error {
		_, err := p.pruneAudit(ctx)
		return err
	})
}
