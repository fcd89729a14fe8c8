// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package logger implements the event write path: level validation,
// occasions identity, the optional rapid-repeat dedup fast path, and the
// fire-and-forget logged notification.
package logger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/olegiv/eventlog-go/internal/dispatch"
	"github.com/olegiv/eventlog-go/internal/model"
	"github.com/olegiv/eventlog-go/internal/store"
)

// Typed validation errors for the write path.
var (
	ErrInvalidLevel = errors.New("invalid event level")
	ErrEmptyMessage = errors.New("empty event message")
)

// Options configures a Logger.
type Options struct {
	// DedupWindow enables the rapid-repeat fast path: when the most
	// recently inserted event has the same logger, occasions id and
	// message and is younger than this window, the write increments a
	// repeat counter on that row instead of inserting. 0 disables the
	// fast path; query-time grouping covers the same ground.
	DedupWindow time.Duration

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Logger writes audit events for one subsystem slug.
type Logger struct {
	slug        string
	store       *store.Store
	recovery    *store.Recovery
	gate        *Gate
	dispatcher  *dispatch.Dispatcher
	log         *slog.Logger
	dedupWindow time.Duration
	now         func() time.Time
}

// New creates a Logger for the given slug. The recovery, gate and
// dispatcher collaborators may be nil.
func New(slug string, st *store.Store, recovery *store.Recovery, gate *Gate, dispatcher *dispatch.Dispatcher, opts Options) *Logger {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Logger{
		slug:        slug,
		store:       st,
		recovery:    recovery,
		gate:        gate,
		dispatcher:  dispatcher,
		log:         slog.Default(),
		dedupWindow: opts.DedupWindow,
		now:         now,
	}
}

// Slug returns the logger's subsystem slug.
func (l *Logger) Slug() string {
	return l.slug
}

// Log records one event and returns its id. When the gate is paused the
// call is a no-op returning id 0. The context map values are coerced to
// strings for storage; reserved keys steer the write:
//
//	_occasionsID  seed for the occasions identity
//	_date         backdates the event (storage or RFC 3339 format)
//	_initiator    overrides the derived initiator
//	_user_id      marks the event as user-initiated
func (l *Logger) Log(ctx context.Context, level, message string, context map[string]any) (int64, error) {
	if l.gate != nil && l.gate.Paused() {
		return 0, nil
	}

	if !model.ValidLevel(level) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLevel, level)
	}
	if message == "" {
		return 0, ErrEmptyMessage
	}

	kv := coerceContext(context)

	ev := model.Event{
		Date:        l.eventDate(kv),
		Logger:      l.slug,
		Level:       level,
		Message:     message,
		OccasionsID: l.occasionsID(kv, message),
		Initiator:   l.initiator(kv),
	}

	if l.dedupWindow > 0 {
		if id, ok, err := l.tryDedup(ctx, &ev); err == nil && ok {
			return id, nil
		}
	}

	id, err := l.insertEvent(ctx, &ev)
	if err != nil {
		return 0, err
	}
	ev.ID = id

	if err := l.store.InsertContexts(ctx, id, kv); err != nil {
		// The event row itself is in place; report the partial write.
		return id, err
	}

	if l.dispatcher != nil {
		l.dispatcher.Publish(&dispatch.LoggedEvent{
			Row:     ev,
			Context: kv,
			Logger:  l.slug,
		})
	}

	return id, nil
}

// insertEvent writes the event row, recovering once if the tables are gone.
func (l *Logger) insertEvent(ctx context.Context, ev *model.Event) (int64, error) {
	id, err := l.store.InsertEvent(ctx, ev)
	if err != nil && l.recovery != nil && l.recovery.RecreateTablesIfMissing(ctx, err) {
		return l.store.InsertEvent(ctx, ev)
	}
	return id, err
}

// tryDedup implements the repeat-counter fast path. Returns ok=true when the
// repeat was folded into the latest row.
func (l *Logger) tryDedup(ctx context.Context, ev *model.Event) (int64, bool, error) {
	latest, found, err := l.store.LatestEvent(ctx)
	if err != nil || !found {
		return 0, false, err
	}
	if latest.Logger != ev.Logger || latest.OccasionsID != ev.OccasionsID || latest.Message != ev.Message {
		return 0, false, nil
	}
	if ev.Date.Sub(latest.Date) > l.dedupWindow {
		return 0, false, nil
	}

	repeated := int64(1)
	if val, ok, err := l.store.GetContextValue(ctx, latest.ID, model.ContextKeyRepeated); err == nil && ok {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			repeated = n
		}
	}
	if err := l.store.SetContextValue(ctx, latest.ID, model.ContextKeyRepeated,
		strconv.FormatInt(repeated+1, 10)); err != nil {
		return 0, false, err
	}
	return latest.ID, true, nil
}

// eventDate resolves the event date, honoring a _date backdate.
func (l *Logger) eventDate(kv map[string]string) time.Time {
	if raw, ok := kv[model.ContextKeyDate]; ok {
		if t, err := time.Parse(store.TimeFormat, raw); err == nil {
			return t
		}
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return t
		}
		l.log.Warn("ignoring unparseable _date context value", "value", raw)
	}
	return l.now()
}

// occasionsID hashes the occasion identity: the caller-supplied seed (or one
// derived from the call site) combined with the logger slug, over a
// canonical JSON encoding.
func (l *Logger) occasionsID(kv map[string]string, message string) string {
	seed, ok := kv[model.ContextKeyOccasionsID]
	if !ok {
		seed = l.slug + "|" + message
	}

	payload, _ := json.Marshal(struct {
		Logger string `json:"logger"`
		Seed   string `json:"seed"`
	}{Logger: l.slug, Seed: seed})

	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// initiator derives the initiator enum value from context.
func (l *Logger) initiator(kv map[string]string) string {
	if v, ok := kv[model.ContextKeyInitiator]; ok {
		switch v {
		case model.InitiatorUser, model.InitiatorWebUser, model.InitiatorSystem,
			model.InitiatorCLI, model.InitiatorOther:
			return v
		}
		l.log.Warn("unknown _initiator context value", "value", v)
		return model.InitiatorOther
	}
	if _, ok := kv[model.ContextKeyUserID]; ok {
		return model.InitiatorUser
	}
	return model.InitiatorSystem
}

// coerceContext converts arbitrary context values to strings for storage.
func coerceContext(context map[string]any) map[string]string {
	kv := make(map[string]string, len(context))
	for k, v := range context {
		switch val := v.(type) {
		case string:
			kv[k] = val
		case fmt.Stringer:
			kv[k] = val.String()
		case time.Time:
			kv[k] = val.Format(store.TimeFormat)
		default:
			kv[k] = fmt.Sprint(val)
		}
	}
	return kv
}

// Convenience wrappers, one per level.

func (l *Logger) Emergency(ctx context.Context, message string, c map[string]any) (int64, error) {
	return l.Log(ctx, model.LevelEmergency, message, c)
}

func (l *Logger) Alert(ctx context.Context, message string, c map[string]any) (int64, error) {
	return l.Log(ctx, model.LevelAlert, message, c)
}

func (l *Logger) Critical(ctx context.Context, message string, c map[string]any) (int64, error) {
	return l.Log(ctx, model.LevelCritical, message, c)
}

func (l *Logger) Error(ctx context.Context, message string, c map[string]any) (int64, error) {
	return l.Log(ctx, model.LevelError, message, c)
}

func (l *Logger) Warning(ctx context.Context, message string, c map[string]any) (int64, error) {
	return l.Log(ctx, model.LevelWarning, message, c)
}

func (l *Logger) Notice(ctx context.Context, message string, c map[string]any) (int64, error) {
	return l.Log(ctx, model.LevelNotice, message, c)
}

func (l *Logger) Info(ctx context.Context, message string, c map[string]any) (int64, error) {
	return l.Log(ctx, model.LevelInfo, message, c)
}

func (l *Logger) Debug(ctx context.Context, message string, c map[string]any) (int64, error) {
	return l.Log(ctx, model.LevelDebug, message, c)
}
