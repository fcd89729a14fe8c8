// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package logquery

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/olegiv/eventlog-go/internal/cache"
	"github.com/olegiv/eventlog-go/internal/catalog"
	"github.com/olegiv/eventlog-go/internal/dispatch"
	"github.com/olegiv/eventlog-go/internal/model"
	"github.com/olegiv/eventlog-go/internal/store"
)

// Options configures an Engine. All collaborators are optional: a nil
// resolver grants full read access, a nil cache disables result caching.
type Options struct {
	Recovery *store.Recovery
	Resolver PermissionResolver
	Catalog  *catalog.Registry
	Cache    cache.Cacher
	CacheTTL time.Duration
}

// Engine executes log queries against the event store.
type Engine struct {
	store    *store.Store
	recovery *store.Recovery
	resolver PermissionResolver
	catalog  *catalog.Registry
	cache    cache.Cacher
	cacheTTL time.Duration
	logger   *slog.Logger
}

// NewEngine creates a query engine.
func NewEngine(st *store.Store, opts Options) *Engine {
	resolver := opts.Resolver
	if resolver == nil {
		resolver = AllowAllResolver{}
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Engine{
		store:    st,
		recovery: opts.Recovery,
		resolver: resolver,
		catalog:  opts.Catalog,
		cache:    opts.Cache,
		cacheTTL: ttl,
		logger:   slog.Default(),
	}
}

// Query runs the filter DSL for the given actor and returns grouped,
// paginated results. Occasions mode (args.Type == TypeOccasions) expands a
// previously returned grouped row instead.
func (e *Engine) Query(ctx context.Context, actor string, args Args) (*Result, error) {
	scope := e.resolver.ReadableLoggers(ctx, actor)

	if args.Type == TypeOccasions {
		return e.queryOccasions(ctx, scope, args)
	}

	key := signature(args, scope)
	if cached := e.cacheGet(ctx, key); cached != nil {
		return cached, nil
	}

	result, err := e.queryOverview(ctx, scope, args)
	if err != nil {
		return nil, err
	}

	e.cacheSet(ctx, key, result)
	return result, nil
}

// queryOverview is the primary grouped query.
func (e *Engine) queryOverview(ctx context.Context, scope Scope, args Args) (*Result, error) {
	where, values, err := buildWhere(args, scope, e.catalog)
	if err != nil {
		return nil, err
	}

	events, err := e.fetchEvents(ctx, where, values, 0)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}

	var groups []model.GroupedRow
	if args.Ungrouped {
		groups = ungrouped(events)
	} else {
		groups = groupConsecutive(events)
	}

	result := paginate(groups, args.PostsPerPage, args.Paged)

	if err := e.attachContexts(ctx, result.LogRows); err != nil {
		return nil, err
	}
	return result, nil
}

// queryOccasions expands one grouped row into its constituent repeats,
// excluding the representative row, in the same descending order.
func (e *Engine) queryOccasions(ctx context.Context, scope Scope, args Args) (*Result, error) {
	if args.LogRowID <= 0 {
		return nil, fmt.Errorf("%w: occasions query requires logRowID", ErrInvalidArgument)
	}
	if args.OccasionsID == "" {
		return nil, fmt.Errorf("%w: occasions query requires occasionsID", ErrInvalidArgument)
	}

	rep, err := e.getEvent(ctx, args.LogRowID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: log row %d not found", ErrInvalidArgument, args.LogRowID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading representative row: %w", err)
	}

	where, values, err := buildWhere(Args{}, scope, e.catalog)
	if err != nil {
		return nil, err
	}

	repDate := rep.Date.Format(store.TimeFormat)
	occasions := "occasions_id = ? AND logger = ? AND (date < ? OR (date = ? AND id < ?))"
	if where != "" {
		where += " AND " + occasions
	} else {
		where = occasions
	}
	values = append(values, args.OccasionsID, rep.Logger, repDate, repDate, rep.ID)

	events, err := e.fetchEvents(ctx, where, values, args.OccasionsCount)
	if err != nil {
		return nil, fmt.Errorf("querying occasions: %w", err)
	}

	rows := ungrouped(events)
	if err := e.attachContexts(ctx, rows); err != nil {
		return nil, err
	}

	result := &Result{
		LogRows:       rows,
		TotalRowCount: int64(len(rows)),
		PagesCount:    1,
		PageCurrent:   1,
		LogRowsCount:  len(rows),
	}
	if len(rows) > 0 {
		result.PageRowsFrom = 1
		result.PageRowsTo = len(rows)
	}
	fillIDBounds(result)
	return result, nil
}

// fetchEvents runs the ordered select, recovering once when the tables have
// gone missing.
func (e *Engine) fetchEvents(ctx context.Context, where string, values []any, limit int64) ([]model.Event, error) {
	events, err := e.store.SelectEvents(ctx, where, values, limit)
	if err != nil && e.recovery != nil && e.recovery.RecreateTablesIfMissing(ctx, err) {
		events, err = e.store.SelectEvents(ctx, where, values, limit)
	}
	return events, err
}

// getEvent loads one event, recovering once when the tables have gone missing.
func (e *Engine) getEvent(ctx context.Context, id int64) (model.Event, error) {
	ev, err := e.store.GetEvent(ctx, id)
	if err != nil && !errors.Is(err, sql.ErrNoRows) &&
		e.recovery != nil && e.recovery.RecreateTablesIfMissing(ctx, err) {
		ev, err = e.store.GetEvent(ctx, id)
	}
	return ev, err
}

// attachContexts loads and attaches the context maps of the representative
// rows on the current page.
func (e *Engine) attachContexts(ctx context.Context, rows []model.GroupedRow) error {
	if len(rows) == 0 {
		return nil
	}

	ids := make([]int64, len(rows))
	for i := range rows {
		ids[i] = rows[i].ID
	}

	contexts, err := e.store.GetContexts(ctx, ids)
	if err != nil {
		return fmt.Errorf("loading contexts: %w", err)
	}

	for i := range rows {
		if kv, ok := contexts[rows[i].ID]; ok {
			rows[i].Context = kv
		} else {
			rows[i].Context = map[string]string{}
		}
	}
	return nil
}

// groupConsecutive merges consecutive rows sharing the same occasion id and
// logger into one grouped row. This is a run-length encoding over the
// already-sorted stream: only adjacency in the current order merges; the
// same occasion reappearing after an unrelated row starts a new group.
func groupConsecutive(events []model.Event) []model.GroupedRow {
	var groups []model.GroupedRow
	for _, ev := range events {
		if n := len(groups); n > 0 {
			last := &groups[n-1]
			if last.OccasionsID == ev.OccasionsID && last.Logger == ev.Logger {
				last.SubsequentOccasions++
				if ev.ID > last.MaxID {
					last.MaxID = ev.ID
				}
				if ev.ID < last.MinID {
					last.MinID = ev.ID
				}
				continue
			}
		}
		groups = append(groups, model.GroupedRow{
			Event:               ev,
			SubsequentOccasions: 1,
			MaxID:               ev.ID,
			MinID:               ev.ID,
		})
	}
	return groups
}

// ungrouped wraps every physical row as its own group.
func ungrouped(events []model.Event) []model.GroupedRow {
	rows := make([]model.GroupedRow, len(events))
	for i, ev := range events {
		rows[i] = model.GroupedRow{
			Event:               ev,
			SubsequentOccasions: 1,
			MaxID:               ev.ID,
			MinID:               ev.ID,
		}
	}
	return rows
}

// paginate slices the grouped rows into the requested page. Counts reflect
// grouped rows; perPage <= 0 means no limit.
func paginate(groups []model.GroupedRow, perPage, paged int) *Result {
	total := len(groups)

	if perPage <= 0 {
		result := &Result{
			LogRows:       groups,
			TotalRowCount: int64(total),
			PagesCount:    1,
			PageCurrent:   1,
			LogRowsCount:  total,
		}
		if total > 0 {
			result.PageRowsFrom = 1
			result.PageRowsTo = total
		}
		fillIDBounds(result)
		return result
	}

	if paged < 1 {
		paged = 1
	}
	pagesCount := (total + perPage - 1) / perPage

	start := (paged - 1) * perPage
	var page []model.GroupedRow
	if start < total {
		end := start + perPage
		if end > total {
			end = total
		}
		page = groups[start:end]
	}

	result := &Result{
		LogRows:       page,
		TotalRowCount: int64(total),
		PagesCount:    pagesCount,
		PageCurrent:   paged,
		LogRowsCount:  len(page),
	}
	if len(page) > 0 {
		result.PageRowsFrom = start + 1
		result.PageRowsTo = start + len(page)
	}
	fillIDBounds(result)
	return result
}

// fillIDBounds computes the id bounds over the returned page.
func fillIDBounds(result *Result) {
	for i, row := range result.LogRows {
		if i == 0 || row.MaxID > result.MaxID {
			result.MaxID = row.MaxID
		}
		if i == 0 || row.MinID < result.MinID {
			result.MinID = row.MinID
		}
	}
}

// signature derives the cache key from the full argument set and the
// permission scope. Any change to either produces a different key.
func signature(args Args, scope Scope) string {
	payload, _ := json.Marshal(struct {
		Args  Args   `json:"args"`
		Scope string `json:"scope"`
	}{Args: args, Scope: scope.signature()})

	sum := sha256.Sum256(payload)
	return "logquery:" + hex.EncodeToString(sum[:])
}

// signature renders the scope's identity for cache keying.
func (s Scope) signature() string {
	switch {
	case s.all:
		return "all"
	case s.nothing:
		return "nothing"
	case s.fragment != "":
		return "fragment:" + s.fragment
	default:
		return "slugs:" + strings.Join(s.slugs, ",")
	}
}

// cacheGet returns a previously cached result, or nil.
func (e *Engine) cacheGet(ctx context.Context, key string) *Result {
	if e.cache == nil {
		return nil
	}
	data, err := e.cache.Get(ctx, key)
	if err != nil {
		return nil
	}
	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return &result
}

// cacheSet stores a result. Failures only cost the cache hit.
func (e *Engine) cacheSet(ctx context.Context, key string, result *Result) {
	if e.cache == nil {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := e.cache.Set(ctx, key, data, e.cacheTTL); err != nil {
		e.logger.Debug("failed to cache query result", "error", err)
	}
}

// InvalidateCache drops all cached query results.
func (e *Engine) InvalidateCache(ctx context.Context) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Clear(ctx); err != nil {
		e.logger.Debug("failed to clear query cache", "error", err)
	}
}

// LoggedSubscriber returns a dispatch subscriber that invalidates the query
// cache whenever a new event is written.
func (e *Engine) LoggedSubscriber() dispatch.Subscriber {
	return func(ctx context.Context, _ *dispatch.LoggedEvent) {
		e.InvalidateCache(ctx)
	}
}
