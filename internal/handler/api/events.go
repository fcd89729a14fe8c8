// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/olegiv/eventlog-go/internal/logquery"
	"github.com/olegiv/eventlog-go/internal/middleware"
	"github.com/olegiv/eventlog-go/internal/model"
	"github.com/olegiv/eventlog-go/internal/store"
)

// contextFilterPrefix marks query parameters that become context filters,
// e.g. ?context_post_id=42 matches events whose context has post_id=42.
const contextFilterPrefix = "context_"

// dateLayouts are the accepted formats for date_from and date_to.
var dateLayouts = []string{
	time.RFC3339,
	store.TimeFormat,
	"2006-01-02",
}

// ListEvents handles GET /api/events. Query parameters map onto the query
// engine's filter DSL; invalid filter values return 400.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	args, err := parseListArgs(r)
	if err != nil {
		WriteBadRequest(w, err.Error(), nil)
		return
	}

	result, err := h.engine.Query(r.Context(), middleware.GetActor(r), args)
	if err != nil {
		if errors.Is(err, logquery.ErrInvalidArgument) {
			WriteBadRequest(w, err.Error(), nil)
			return
		}
		h.log.Error("event query failed", "error", err)
		WriteInternalError(w, "Failed to query events")
		return
	}

	WriteSuccess(w, result.LogRows, &Meta{
		Total:   result.TotalRowCount,
		Page:    result.PageCurrent,
		PerPage: args.PostsPerPage,
		Pages:   result.PagesCount,
	})
}

// ListOccasions handles GET /api/events/occasions. It expands one grouped
// row into its earlier repeats.
func (h *Handler) ListOccasions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	logRowID, err := strconv.ParseInt(q.Get("log_row_id"), 10, 64)
	if err != nil {
		WriteBadRequest(w, "log_row_id must be an integer", nil)
		return
	}
	count, err := strconv.ParseInt(q.Get("occasions_count"), 10, 64)
	if err != nil || count < 0 {
		WriteBadRequest(w, "occasions_count must be a non-negative integer", nil)
		return
	}

	args := logquery.Args{
		Type:           logquery.TypeOccasions,
		LogRowID:       logRowID,
		OccasionsID:    q.Get("occasions_id"),
		OccasionsCount: count,
	}

	result, err := h.engine.Query(r.Context(), middleware.GetActor(r), args)
	if err != nil {
		if errors.Is(err, logquery.ErrInvalidArgument) {
			WriteBadRequest(w, err.Error(), nil)
			return
		}
		h.log.Error("occasions query failed", "error", err)
		WriteInternalError(w, "Failed to query occasions")
		return
	}

	WriteSuccess(w, result.LogRows, nil)
}

// createEventRequest is the POST /api/events body.
type createEventRequest struct {
	Logger  string         `json:"logger"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Context map[string]any `json:"context"`
}

// CreateEvent handles POST /api/events. It ingests one event through the
// write path, stamping the caller's address and request id into the
// event context.
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req createEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid JSON body", nil)
		return
	}

	req.Logger = strings.TrimSpace(req.Logger)
	if req.Logger == "" {
		WriteBadRequest(w, "logger is required", nil)
		return
	}
	if req.Level == "" {
		req.Level = model.LevelInfo
	}
	if !model.ValidLevel(req.Level) {
		WriteBadRequest(w, "invalid level", map[string]string{"level": req.Level})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		WriteBadRequest(w, "message is required", nil)
		return
	}

	evCtx := make(map[string]any, len(req.Context)+2)
	for k, v := range req.Context {
		evCtx[k] = v
	}
	evCtx[model.ContextKeyRemoteAddr] = r.RemoteAddr
	if id := middleware.GetRequestID(r); id != "" {
		evCtx[model.ContextKeyRequestID] = id
	}

	id, err := h.loggers.Get(req.Logger).Log(r.Context(), req.Level, req.Message, evCtx)
	if err != nil {
		h.log.Error("event ingest failed", "logger", req.Logger, "error", err)
		WriteInternalError(w, "Failed to store event")
		return
	}

	WriteCreated(w, map[string]int64{"id": id})
}

// parseListArgs maps the request query string onto query engine args.
func parseListArgs(r *http.Request) (logquery.Args, error) {
	q := r.URL.Query()
	args := logquery.Args{Type: logquery.TypeOverview}

	args.Loggers = splitParam(q.Get("loggers"))
	args.ExcludeLoggers = splitParam(q.Get("exclude_loggers"))
	args.Messages = splitParam(q.Get("messages"))
	args.ExcludeMessages = splitParam(q.Get("exclude_messages"))
	args.Loglevels = splitParam(q.Get("loglevels"))
	args.ExcludeLoglevels = splitParam(q.Get("exclude_loglevels"))
	args.User = q.Get("user")
	args.Users = splitParam(q.Get("users"))
	args.ExcludeUsers = splitParam(q.Get("exclude_users"))
	args.Search = q.Get("search")
	args.ExcludeSearch = q.Get("exclude_search")
	args.Ungrouped = q.Get("ungrouped") == "1" || q.Get("ungrouped") == "true"

	for key, values := range q {
		if !strings.HasPrefix(key, contextFilterPrefix) || len(values) == 0 {
			continue
		}
		name := strings.TrimPrefix(key, contextFilterPrefix)
		if name == "" {
			continue
		}
		if args.ContextFilters == nil {
			args.ContextFilters = make(map[string]string)
		}
		args.ContextFilters[name] = values[0]
	}

	var err error
	if args.DateFrom, err = parseDateParam(q.Get("date_from")); err != nil {
		return args, err
	}
	if args.DateTo, err = parseDateParam(q.Get("date_to")); err != nil {
		return args, err
	}

	if v := q.Get("since_id"); v != "" {
		if args.SinceID, err = strconv.ParseInt(v, 10, 64); err != nil {
			return args, errors.New("since_id must be an integer")
		}
	}
	for _, v := range splitParam(q.Get("post__in")) {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return args, errors.New("post__in must be a list of integers")
		}
		args.PostIn = append(args.PostIn, id)
	}
	if v := q.Get("posts_per_page"); v != "" {
		if args.PostsPerPage, err = strconv.Atoi(v); err != nil {
			return args, errors.New("posts_per_page must be an integer")
		}
	}
	if v := q.Get("paged"); v != "" {
		if args.Paged, err = strconv.Atoi(v); err != nil {
			return args, errors.New("paged must be an integer")
		}
	}

	return args, nil
}

// splitParam splits a comma-separated parameter, dropping empty entries.
func splitParam(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// parseDateParam parses a date in any accepted layout. Empty is allowed.
func parseDateParam(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New("invalid date format, use YYYY-MM-DD or RFC 3339")
}
