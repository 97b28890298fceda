// Package storage persists the audit trail of countdown runs.
//
// Two drivers exist: "file" (append-only JSON Lines) and "sqlite"
// (modernc.org/sqlite, no cgo). An empty driver or "none" disables storage.
package storage

import (
	"context"
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means driver default
}

// AuditEntry records one lifecycle step of a countdown run.
type AuditEntry struct {
	At            time.Time `json:"at"`
	ActorID       int64     `json:"actor_id,omitempty"`
	ActorUsername string    `json:"actor_username,omitempty"`
	ChatID        int64     `json:"chat_id"`
	ThreadID      int       `json:"thread_id,omitempty"`
	Plugin        string    `json:"plugin"`
	Action        string    `json:"action"`           // countdown.start, countdown.finish, countdown.cancel
	Target        string    `json:"target,omitempty"` // run id
	Error         string    `json:"error,omitempty"`
	TookMS        int64     `json:"took_ms,omitempty"`
	Meta          string    `json:"meta,omitempty"` // JSON object
}

// AuditFilter narrows ListAudit. Zero fields match everything.
type AuditFilter struct {
	ChatID int64
	Action string
	Since  time.Time
	Limit  int // newest entries win when the limit cuts
}

func (f AuditFilter) match(e AuditEntry) bool {
	if f.ChatID != 0 && e.ChatID != f.ChatID {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if !f.Since.IsZero() && e.At.Before(f.Since) {
		return false
	}
	return true
}

// Store is the persistence port used by plugins and housekeeping jobs.
type Store interface {
	AppendAudit(ctx context.Context, e AuditEntry) error
	// ListAudit returns matching entries oldest first.
	ListAudit(ctx context.Context, f AuditFilter) ([]AuditEntry, error)
	// PruneAudit deletes entries older than before and reports how many went.
	PruneAudit(ctx context.Context, before time.Time) (int64, error)
	Close() error
}
