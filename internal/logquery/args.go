// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package logquery implements the event log query engine: a filter DSL
// compiled to parameterized SQL, run-length grouping of consecutive
// same-occasion rows, stable pagination and the occasions expansion query.
package logquery

import (
	"errors"
	"time"

	"github.com/olegiv/eventlog-go/internal/model"
)

// ErrInvalidArgument is returned for query arguments that fail strict
// validation, such as a non-numeric user id. Callers (e.g. the REST layer)
// map it to a 4xx response.
var ErrInvalidArgument = errors.New("invalid query argument")

// Query types.
const (
	// TypeOverview is the default grouped query.
	TypeOverview = "overview"
	// TypeOccasions expands one grouped row into its constituent repeats.
	TypeOccasions = "occasions"
)

// Args is the query filter DSL. The zero value selects everything the
// caller may read, grouped, without a row limit. Unknown or empty fields
// are ignored.
type Args struct {
	// Type selects the query mode; empty means TypeOverview.
	Type string `json:"type,omitempty"`

	// Loggers restricts results to these logger slugs.
	Loggers        []string `json:"loggers,omitempty"`
	ExcludeLoggers []string `json:"exclude_loggers,omitempty"`

	// Messages holds "logger:message_key" pairs. Entries without a colon
	// are skipped, not an error.
	Messages        []string `json:"messages,omitempty"`
	ExcludeMessages []string `json:"exclude_messages,omitempty"`

	Loglevels        []string `json:"loglevels,omitempty"`
	ExcludeLoglevels []string `json:"exclude_loglevels,omitempty"`

	// User filters by a single user id. Must be numeric; anything else
	// fails with ErrInvalidArgument.
	User string `json:"user,omitempty"`
	// Users filters by multiple user ids. Entries are coerced to their
	// leading integer; entries with no leading integer are skipped.
	Users        []string `json:"users,omitempty"`
	ExcludeUsers []string `json:"exclude_users,omitempty"`

	// ContextFilters matches events whose context has exactly these
	// key/value pairs. Keys never reach the SQL text; a hostile key
	// simply matches nothing.
	ContextFilters map[string]string `json:"context_filters,omitempty"`

	// DateFrom and DateTo bound the event date, inclusive.
	DateFrom time.Time `json:"date_from,omitempty"`
	DateTo   time.Time `json:"date_to,omitempty"`

	// Search holds space-separated tokens, all of which must match the
	// message text or a known message template of the row's logger.
	Search        string `json:"search,omitempty"`
	ExcludeSearch string `json:"exclude_search,omitempty"`

	// SinceID selects only events with a larger id ("new since last poll").
	SinceID int64 `json:"since_id,omitempty"`

	// PostIn is a direct id allow-list.
	PostIn []int64 `json:"post__in,omitempty"`

	// PostsPerPage is the page size; <= 0 means no limit.
	PostsPerPage int `json:"posts_per_page,omitempty"`
	// Paged is the 1-based page number.
	Paged int `json:"paged,omitempty"`

	// Ungrouped bypasses occasions grouping and returns every physical row.
	Ungrouped bool `json:"ungrouped,omitempty"`

	// Occasions expansion mode (Type == TypeOccasions).
	LogRowID       int64  `json:"log_row_id,omitempty"`
	OccasionsID    string `json:"occasions_id,omitempty"`
	OccasionsCount int64  `json:"occasions_count,omitempty"`
}

// Result is the query engine's answer.
type Result struct {
	LogRows       []model.GroupedRow `json:"log_rows"`
	TotalRowCount int64              `json:"total_row_count"`
	PagesCount    int                `json:"pages_count"`
	PageCurrent   int                `json:"page_current"`
	PageRowsFrom  int                `json:"page_rows_from"`
	PageRowsTo    int                `json:"page_rows_to"`
	MaxID         int64              `json:"max_id"`
	MinID         int64              `json:"min_id"`
	LogRowsCount  int                `json:"log_rows_count"`
}
