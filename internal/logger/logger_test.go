// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package logger_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/olegiv/eventlog-go/internal/logger"
	"github.com/olegiv/eventlog-go/internal/model"
	"github.com/olegiv/eventlog-go/internal/store"
)

// testStore opens an in-memory database with the event schema in place.
func testStore(t *testing.T) *store.Store {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := store.EnsureTables(context.Background(), db, store.DriverSQLite); err != nil {
		t.Fatalf("EnsureTables: %v", err)
	}
	return store.New(db)
}

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestLogStoresEventAndContext(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	now := time.Date(2026, 4, 2, 10, 30, 0, 0, time.UTC)

	l := logger.New("posts", st, nil, nil, nil, logger.Options{Now: fixedNow(now)})

	id, err := l.Log(ctx, model.LevelInfo, "post_updated", map[string]any{
		"post_id":  42,
		"_user_id": "7",
	})
	if err != nil {
		t.Fatalf("Log: %v", err)
	}

	ev, err := st.GetEvent(ctx, id)
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if ev.Logger != "posts" {
		t.Errorf("Logger = %q, want %q", ev.Logger, "posts")
	}
	if ev.Message != "post_updated" {
		t.Errorf("Message = %q, want %q", ev.Message, "post_updated")
	}
	if !ev.Date.Equal(now) {
		t.Errorf("Date = %v, want %v", ev.Date, now)
	}
	if ev.Initiator != model.InitiatorUser {
		t.Errorf("Initiator = %q, want %q (derived from _user_id)", ev.Initiator, model.InitiatorUser)
	}
	if len(ev.OccasionsID) != 64 {
		t.Errorf("OccasionsID length = %d, want 64 hex chars", len(ev.OccasionsID))
	}

	contexts, err := st.GetContexts(ctx, []int64{id})
	if err != nil {
		t.Fatalf("GetContexts: %v", err)
	}
	kv := contexts[id]
	if kv["post_id"] != "42" {
		t.Errorf("post_id context = %q, want %q", kv["post_id"], "42")
	}
	if kv["_user_id"] != "7" {
		t.Errorf("_user_id context = %q, want %q", kv["_user_id"], "7")
	}
}

func TestLogValidation(t *testing.T) {
	st := testStore(t)
	l := logger.New("posts", st, nil, nil, nil, logger.Options{})
	ctx := context.Background()

	if _, err := l.Log(ctx, "loud", "msg", nil); !errors.Is(err, logger.ErrInvalidLevel) {
		t.Errorf("invalid level error = %v, want ErrInvalidLevel", err)
	}
	if _, err := l.Log(ctx, model.LevelInfo, "", nil); !errors.Is(err, logger.ErrEmptyMessage) {
		t.Errorf("empty message error = %v, want ErrEmptyMessage", err)
	}
}

func TestGatePausesWrites(t *testing.T) {
	st := testStore(t)
	gate := logger.NewGate()
	l := logger.New("posts", st, nil, gate, nil, logger.Options{})
	ctx := context.Background()

	gate.Pause()
	id, err := l.Info(ctx, "ignored while paused", nil)
	if err != nil {
		t.Fatalf("Log while paused: %v", err)
	}
	if id != 0 {
		t.Errorf("paused write returned id %d, want 0", id)
	}
	count, err := st.CountEvents(ctx)
	if err != nil {
		t.Fatalf("CountEvents: %v", err)
	}
	if count != 0 {
		t.Errorf("paused write stored %d events, want 0", count)
	}

	gate.Resume()
	if _, err := l.Info(ctx, "stored after resume", nil); err != nil {
		t.Fatalf("Log after resume: %v", err)
	}
	count, _ = st.CountEvents(ctx)
	if count != 1 {
		t.Errorf("after resume CountEvents = %d, want 1", count)
	}
}

func TestOccasionsIDIdentity(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	posts := logger.New("posts", st, nil, nil, nil, logger.Options{})
	users := logger.New("users", st, nil, nil, nil, logger.Options{})

	idA1, _ := posts.Info(ctx, "post_updated", nil)
	idA2, _ := posts.Info(ctx, "post_updated", nil)
	idB, _ := users.Info(ctx, "post_updated", nil)
	idC, _ := posts.Info(ctx, "post_deleted", nil)

	get := func(id int64) model.Event {
		ev, err := st.GetEvent(ctx, id)
		if err != nil {
			t.Fatalf("GetEvent(%d): %v", id, err)
		}
		return ev
	}

	if get(idA1).OccasionsID != get(idA2).OccasionsID {
		t.Error("same logger and message produced different occasions ids")
	}
	if get(idA1).OccasionsID == get(idB).OccasionsID {
		t.Error("different loggers share an occasions id for the same message")
	}
	if get(idA1).OccasionsID == get(idC).OccasionsID {
		t.Error("different messages share an occasions id")
	}
}

func TestOccasionsIDSeedOverride(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	l := logger.New("posts", st, nil, nil, nil, logger.Options{})

	id1, _ := l.Info(ctx, "first wording", map[string]any{"_occasionsID": "same-incident"})
	id2, _ := l.Info(ctx, "second wording", map[string]any{"_occasionsID": "same-incident"})

	ev1, _ := st.GetEvent(ctx, id1)
	ev2, _ := st.GetEvent(ctx, id2)
	if ev1.OccasionsID != ev2.OccasionsID {
		t.Error("explicit _occasionsID seed did not unify the occasions id")
	}
}

func TestBackdatedEvent(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	l := logger.New("importer", st, nil, nil, nil, logger.Options{})

	id, err := l.Info(ctx, "imported", map[string]any{"_date": "2020-06-15 08:00:00"})
	if err != nil {
		t.Fatalf("Log: %v", err)
	}

	ev, _ := st.GetEvent(ctx, id)
	want := time.Date(2020, 6, 15, 8, 0, 0, 0, time.UTC)
	if !ev.Date.Equal(want) {
		t.Errorf("Date = %v, want backdated %v", ev.Date, want)
	}
}

func TestInitiatorDerivation(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	l := logger.New("posts", st, nil, nil, nil, logger.Options{})

	tests := []struct {
		name    string
		context map[string]any
		want    string
	}{
		{"explicit valid", map[string]any{"_initiator": model.InitiatorCLI}, model.InitiatorCLI},
		{"explicit unknown", map[string]any{"_initiator": "martian"}, model.InitiatorOther},
		{"user id present", map[string]any{"_user_id": "3"}, model.InitiatorUser},
		{"default", nil, model.InitiatorSystem},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := l.Info(ctx, "msg "+tt.name, tt.context)
			if err != nil {
				t.Fatalf("Log: %v", err)
			}
			ev, _ := st.GetEvent(ctx, id)
			if ev.Initiator != tt.want {
				t.Errorf("Initiator = %q, want %q", ev.Initiator, tt.want)
			}
		})
	}
}

func TestDedupWindowFoldsRapidRepeats(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	clock := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }
	l := logger.New("jobs", st, nil, nil, nil, logger.Options{
		DedupWindow: 30 * time.Second,
		Now:         now,
	})

	first, err := l.Warning(ctx, "job_failed", nil)
	if err != nil {
		t.Fatalf("Log: %v", err)
	}

	clock = clock.Add(5 * time.Second)
	second, err := l.Warning(ctx, "job_failed", nil)
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	if second != first {
		t.Fatalf("repeat within window inserted row %d, want folded into %d", second, first)
	}

	count, _ := st.CountEvents(ctx)
	if count != 1 {
		t.Errorf("CountEvents = %d, want 1", count)
	}

	val, ok, err := st.GetContextValue(ctx, first, model.ContextKeyRepeated)
	if err != nil || !ok {
		t.Fatalf("GetContextValue(_repeated) = %q ok=%v err=%v", val, ok, err)
	}
	if val != "2" {
		t.Errorf("_repeated = %q, want \"2\"", val)
	}

	// Outside the window the fast path does not apply.
	clock = clock.Add(time.Minute)
	third, err := l.Warning(ctx, "job_failed", nil)
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	if third == first {
		t.Error("repeat outside window was folded")
	}
}

func TestDedupDisabledByDefault(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	l := logger.New("jobs", st, nil, nil, nil, logger.Options{})

	id1, _ := l.Warning(ctx, "job_failed", nil)
	id2, _ := l.Warning(ctx, "job_failed", nil)
	if id1 == id2 {
		t.Error("writes were deduped with no window configured")
	}
}

func TestFactoryReturnsSameLoggerPerSlug(t *testing.T) {
	st := testStore(t)
	f := logger.NewFactory(st, nil, logger.NewGate(), nil, logger.Options{})

	if f.Get("posts") != f.Get("posts") {
		t.Error("Get returned different loggers for the same slug")
	}
	if f.Get("posts") == f.Get("users") {
		t.Error("Get returned the same logger for different slugs")
	}
	if f.Get("posts").Slug() != "posts" {
		t.Errorf("Slug = %q, want %q", f.Get("posts").Slug(), "posts")
	}
}
