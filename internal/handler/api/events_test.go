// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegiv/eventlog-go/internal/logger"
	"github.com/olegiv/eventlog-go/internal/logquery"
	"github.com/olegiv/eventlog-go/internal/model"
	"github.com/olegiv/eventlog-go/internal/store"
	"github.com/olegiv/eventlog-go/internal/testutil"
)

// eventsResponse mirrors the JSON shape of list responses.
type eventsResponse struct {
	Data []model.GroupedRow `json:"data"`
	Meta *Meta              `json:"meta"`
}

func newTestHandler(t *testing.T) (*Handler, *store.Store) {
	t.Helper()

	db, cleanup := testutil.TestDB(t)
	t.Cleanup(cleanup)
	st := store.New(db)

	engine := logquery.NewEngine(st, logquery.Options{})
	loggers := logger.NewFactory(st, nil, logger.NewGate(), nil, logger.Options{})
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	return NewHandler(engine, loggers, log), st
}

func TestListEvents(t *testing.T) {
	h, st := newTestHandler(t)
	base := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)

	testutil.InsertEvent(t, st, base, "posts", model.LevelInfo, "post_updated", "a")
	testutil.InsertEvent(t, st, base.Add(time.Minute), "posts", model.LevelInfo, "post_updated", "a")
	testutil.InsertEvent(t, st, base.Add(2*time.Minute), "users", model.LevelWarning, "login_failed", "b")

	req := httptest.NewRequest(http.MethodGet, "/api/events?loggers=posts", nil)
	rec := httptest.NewRecorder()
	h.ListEvents(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp eventsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Data, 1, "adjacent posts events should group into one row")
	assert.Equal(t, int64(2), resp.Data[0].SubsequentOccasions)
	assert.Equal(t, "post_updated", resp.Data[0].Message)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, int64(1), resp.Meta.Total)
}

func TestListEventsPagination(t *testing.T) {
	h, st := newTestHandler(t)
	base := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		testutil.InsertEvent(t, st, base.Add(time.Duration(i)*time.Minute),
			"posts", model.LevelInfo, "m", string(rune('a'+i)))
	}

	req := httptest.NewRequest(http.MethodGet, "/api/events?posts_per_page=2&paged=2", nil)
	rec := httptest.NewRecorder()
	h.ListEvents(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp eventsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Len(t, resp.Data, 2)
	assert.Equal(t, 2, resp.Meta.Page)
	assert.Equal(t, 3, resp.Meta.Pages)
	assert.Equal(t, int64(5), resp.Meta.Total)
}

func TestListEventsInvalidFilters(t *testing.T) {
	h, _ := newTestHandler(t)

	tests := []struct {
		name  string
		query string
	}{
		{"non-numeric user", "user=1%27%20OR%20%271%27%3D%271"},
		{"bad since_id", "since_id=abc"},
		{"bad date", "date_from=yesterday"},
		{"bad posts_per_page", "posts_per_page=many"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/events?"+tt.query, nil)
			rec := httptest.NewRecorder()
			h.ListEvents(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestListEventsContextFilterParams(t *testing.T) {
	h, st := newTestHandler(t)
	base := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)

	tagged := testutil.InsertEvent(t, st, base, "posts", model.LevelInfo, "m", "a")
	testutil.InsertEvent(t, st, base.Add(time.Minute), "posts", model.LevelInfo, "m", "b")
	require.NoError(t, st.InsertContexts(context.Background(), tagged, map[string]string{"post_id": "42"}))

	req := httptest.NewRequest(http.MethodGet, "/api/events?context_post_id=42", nil)
	rec := httptest.NewRecorder()
	h.ListEvents(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp eventsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, tagged, resp.Data[0].ID)
}

func TestListOccasions(t *testing.T) {
	h, st := newTestHandler(t)
	base := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		testutil.InsertEvent(t, st, base.Add(time.Duration(i)*time.Minute),
			"jobs", model.LevelWarning, "job_failed", "occ-j")
	}

	// Fetch the grouped row first, the way a client would.
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	rec := httptest.NewRecorder()
	h.ListEvents(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var overview eventsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&overview))
	require.Len(t, overview.Data, 1)
	rep := overview.Data[0]

	url := "/api/events/occasions?log_row_id=" + itoa(rep.ID) +
		"&occasions_id=" + rep.OccasionsID +
		"&occasions_count=" + itoa(rep.SubsequentOccasions)
	req = httptest.NewRequest(http.MethodGet, url, nil)
	rec = httptest.NewRecorder()
	h.ListOccasions(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var expansion eventsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&expansion))
	assert.Len(t, expansion.Data, 3, "expansion excludes the representative row")
	for _, row := range expansion.Data {
		assert.Less(t, row.ID, rep.ID)
	}
}

func TestListOccasionsValidation(t *testing.T) {
	h, _ := newTestHandler(t)

	tests := []struct {
		name  string
		query string
	}{
		{"missing log_row_id", "occasions_id=x&occasions_count=1"},
		{"missing count", "log_row_id=1&occasions_id=x"},
		{"unknown row", "log_row_id=999&occasions_id=x&occasions_count=1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/events/occasions?"+tt.query, nil)
			rec := httptest.NewRecorder()
			h.ListOccasions(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestCreateEvent(t *testing.T) {
	h, st := newTestHandler(t)

	body, _ := json.Marshal(createEventRequest{
		Logger:  "posts",
		Level:   model.LevelInfo,
		Message: "post_updated",
		Context: map[string]any{"post_id": 42, "_user_id": "7"},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/events", bytes.NewReader(body))
	req.RemoteAddr = "203.0.113.9:4711"
	rec := httptest.NewRecorder()
	h.CreateEvent(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Data map[string]int64 `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	id := resp.Data["id"]
	require.Positive(t, id)

	ev, err := st.GetEvent(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "posts", ev.Logger)
	assert.Equal(t, "post_updated", ev.Message)
	assert.Equal(t, model.InitiatorUser, ev.Initiator)

	contexts, err := st.GetContexts(context.Background(), []int64{id})
	require.NoError(t, err)
	assert.Equal(t, "42", contexts[id]["post_id"])
	assert.Equal(t, "203.0.113.9:4711", contexts[id][model.ContextKeyRemoteAddr])
}

func TestCreateEventValidation(t *testing.T) {
	h, _ := newTestHandler(t)

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", "{"},
		{"missing logger", `{"level":"info","message":"m"}`},
		{"missing message", `{"logger":"posts","level":"info"}`},
		{"invalid level", `{"logger":"posts","level":"loud","message":"m"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/events", bytes.NewBufferString(tt.body))
			rec := httptest.NewRecorder()
			h.CreateEvent(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestParseListArgs(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet,
		"/api/events?loggers=posts,users&loglevels=warning&user=7&users=1,2"+
			"&search=failed&since_id=10&post__in=3,5&posts_per_page=25&paged=2"+
			"&ungrouped=1&date_from=2026-01-01&context_post_id=42", nil)

	args, err := parseListArgs(req)
	require.NoError(t, err)

	assert.Equal(t, []string{"posts", "users"}, args.Loggers)
	assert.Equal(t, []string{"warning"}, args.Loglevels)
	assert.Equal(t, "7", args.User)
	assert.Equal(t, []string{"1", "2"}, args.Users)
	assert.Equal(t, "failed", args.Search)
	assert.Equal(t, int64(10), args.SinceID)
	assert.Equal(t, []int64{3, 5}, args.PostIn)
	assert.Equal(t, 25, args.PostsPerPage)
	assert.Equal(t, 2, args.Paged)
	assert.True(t, args.Ungrouped)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), args.DateFrom)
	assert.Equal(t, map[string]string{"post_id": "42"}, args.ContextFilters)
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
