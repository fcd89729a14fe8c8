package logquery

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/olegiv/eventlog-go/internal/catalog"
	"github.com/olegiv/eventlog-go/internal/store"
)

// falsePredicate yields zero rows without relying on an empty IN () list.
const falsePredicate = "0 = 1"

// condition is one independently validated WHERE predicate.
type condition struct {
	sql  string
	args []any
}

// buildWhere compiles the filter DSL into a conjunction of parameterized
// predicates. Every dynamic value travels as a placeholder argument; filter
// values never concatenate into the SQL text. The lone exception is the
// permission resolver's pre-built fragment, which is trusted by contract.
func buildWhere(args Args, scope Scope, registry *catalog.Registry) (string, []any, error) {
	var conds []condition

	// Permission scope first: an empty scope short-circuits everything.
	switch {
	case scope.Nothing():
		return falsePredicate, nil, nil
	case scope.All():
		// no scope predicate
	case scope.fragment != "":
		conds = append(conds, condition{sql: "logger IN (" + scope.fragment + ")"})
	default:
		conds = append(conds, inCondition("logger", scope.Slugs()))
	}

	if len(args.Loggers) > 0 {
		conds = append(conds, inCondition("logger", args.Loggers))
	}
	if len(args.ExcludeLoggers) > 0 {
		conds = append(conds, notInCondition("logger", args.ExcludeLoggers))
	}

	if len(args.Loglevels) > 0 {
		conds = append(conds, inCondition("level", args.Loglevels))
	}
	if len(args.ExcludeLoglevels) > 0 {
		conds = append(conds, notInCondition("level", args.ExcludeLoglevels))
	}

	if c, ok := messagesCondition(args.Messages, false); ok {
		conds = append(conds, c)
	}
	if c, ok := messagesCondition(args.ExcludeMessages, true); ok {
		conds = append(conds, c)
	}

	userConds, err := userConditions(args)
	if err != nil {
		return "", nil, err
	}
	conds = append(conds, userConds...)

	conds = append(conds, contextFilterConditions(args.ContextFilters)...)

	if !args.DateFrom.IsZero() {
		conds = append(conds, condition{
			sql:  "date >= ?",
			args: []any{args.DateFrom.Format(store.TimeFormat)},
		})
	}
	if !args.DateTo.IsZero() {
		conds = append(conds, condition{
			sql:  "date <= ?",
			args: []any{args.DateTo.Format(store.TimeFormat)},
		})
	}

	if args.Search != "" {
		if c, ok := searchCondition(args.Search, scope, registry, false); ok {
			conds = append(conds, c)
		}
	}
	if args.ExcludeSearch != "" {
		if c, ok := searchCondition(args.ExcludeSearch, scope, registry, true); ok {
			conds = append(conds, c)
		}
	}

	if args.SinceID > 0 {
		conds = append(conds, condition{sql: "id > ?", args: []any{args.SinceID}})
	}

	if len(args.PostIn) > 0 {
		values := make([]any, len(args.PostIn))
		for i, id := range args.PostIn {
			values[i] = id
		}
		conds = append(conds, condition{
			sql:  "id IN (" + placeholders(len(values)) + ")",
			args: values,
		})
	}

	return joinConditions(conds)
}

// joinConditions renders the conjunction.
func joinConditions(conds []condition) (string, []any, error) {
	if len(conds) == 0 {
		return "", nil, nil
	}

	parts := make([]string, len(conds))
	var values []any
	for i, c := range conds {
		parts[i] = c.sql
		values = append(values, c.args...)
	}
	return strings.Join(parts, " AND "), values, nil
}

// placeholders renders n comma-separated placeholders.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// inCondition builds "column IN (?, ...)".
func inCondition(column string, values []string) condition {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return condition{
		sql:  column + " IN (" + placeholders(len(values)) + ")",
		args: args,
	}
}

// notInCondition builds "column NOT IN (?, ...)".
func notInCondition(column string, values []string) condition {
	c := inCondition(column, values)
	c.sql = column + " NOT IN (" + placeholders(len(values)) + ")"
	return c
}

// messagesCondition compiles "logger:message_key" pairs. Entries without a
// colon are skipped. Inclusion groups pairs per logger and ORs the groups;
// exclusion negates the whole disjunction.
func messagesCondition(entries []string, exclude bool) (condition, bool) {
	keysByLogger := make(map[string][]string)
	for _, entry := range entries {
		idx := strings.Index(entry, ":")
		if idx <= 0 || idx == len(entry)-1 {
			// Malformed entry, skip it rather than fail the query.
			continue
		}
		slug, key := entry[:idx], entry[idx+1:]
		keysByLogger[slug] = append(keysByLogger[slug], key)
	}
	if len(keysByLogger) == 0 {
		return condition{}, false
	}

	slugs := make([]string, 0, len(keysByLogger))
	for slug := range keysByLogger {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)

	var groups []string
	var values []any
	for _, slug := range slugs {
		keys := keysByLogger[slug]
		groups = append(groups, "(logger = ? AND message IN ("+placeholders(len(keys))+"))")
		values = append(values, slug)
		for _, key := range keys {
			values = append(values, key)
		}
	}

	sql := "(" + strings.Join(groups, " OR ") + ")"
	if exclude {
		sql = "NOT " + sql
	}
	return condition{sql: sql, args: values}, true
}

// userConditions compiles the user filters. The single-user filter is
// strict: a non-numeric value is a typed validation error. The multi-user
// filters coerce each entry to its leading integer and skip the rest.
func userConditions(args Args) ([]condition, error) {
	var conds []condition

	if args.User != "" {
		id, err := strconv.ParseInt(args.User, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: user must be numeric, got %q", ErrInvalidArgument, args.User)
		}
		conds = append(conds, condition{
			sql:  "id IN (SELECT history_id FROM contexts WHERE `key` = '_user_id' AND value = ?)",
			args: []any{strconv.FormatInt(id, 10)},
		})
	}

	if ids := coerceUserIDs(args.Users); len(ids) > 0 {
		conds = append(conds, condition{
			sql:  "id IN (SELECT history_id FROM contexts WHERE `key` = '_user_id' AND value IN (" + placeholders(len(ids)) + "))",
			args: ids,
		})
	}

	if ids := coerceUserIDs(args.ExcludeUsers); len(ids) > 0 {
		conds = append(conds, condition{
			sql:  "id NOT IN (SELECT history_id FROM contexts WHERE `key` = '_user_id' AND value IN (" + placeholders(len(ids)) + "))",
			args: ids,
		})
	}

	return conds, nil
}

// coerceUserIDs extracts the leading integer of each entry, dropping
// entries without one. "1' OR '1'='1" coerces to "1"; "abc" is dropped.
func coerceUserIDs(entries []string) []any {
	var ids []any
	for _, entry := range entries {
		if id, ok := leadingInt(entry); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// leadingInt parses the leading decimal integer of s.
func leadingInt(s string) (string, bool) {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return "", false
	}
	return s[:end], true
}

// contextFilterConditions matches events whose context contains each
// key/value pair exactly. Keys and values are placeholder arguments, so a
// key smuggling SQL matches zero rows instead of altering the query.
func contextFilterConditions(filters map[string]string) []condition {
	if len(filters) == 0 {
		return nil
	}

	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conds := make([]condition, 0, len(keys))
	for _, k := range keys {
		conds = append(conds, condition{
			sql:  "id IN (SELECT history_id FROM contexts WHERE `key` = ? AND value = ?)",
			args: []any{k, filters[k]},
		})
	}
	return conds
}

// searchCondition compiles free-text search. Each whitespace-separated
// token must match either the raw message text or a message key whose
// catalog template contains the token; tokens are AND-ed. Exclusion negates
// the full conjunction.
func searchCondition(search string, scope Scope, registry *catalog.Registry, exclude bool) (condition, bool) {
	tokens := strings.Fields(search)
	if len(tokens) == 0 {
		return condition{}, false
	}

	slugs := searchableSlugs(scope, registry)

	var tokenGroups []string
	var values []any
	for _, token := range tokens {
		group := []string{"message LIKE ? ESCAPE '\\'"}
		values = append(values, "%"+likeEscape(token)+"%")

		for _, slug := range slugs {
			keys := registry.SearchKeys(slug, token)
			if len(keys) == 0 {
				continue
			}
			group = append(group, "(logger = ? AND message IN ("+placeholders(len(keys))+"))")
			values = append(values, slug)
			for _, key := range keys {
				values = append(values, key)
			}
		}

		tokenGroups = append(tokenGroups, "("+strings.Join(group, " OR ")+")")
	}

	sql := "(" + strings.Join(tokenGroups, " AND ") + ")"
	if exclude {
		sql = "NOT " + sql
	}
	return condition{sql: sql, args: values}, true
}

// searchableSlugs returns the logger slugs whose catalogs participate in
// search expansion, honoring the permission scope.
func searchableSlugs(scope Scope, registry *catalog.Registry) []string {
	if registry == nil {
		return nil
	}
	if scope.All() || scope.fragment != "" {
		return registry.Loggers()
	}

	var slugs []string
	for _, slug := range scope.Slugs() {
		if registry.Has(slug) {
			slugs = append(slugs, slug)
		}
	}
	return slugs
}

// likeEscape escapes LIKE wildcards in a search token.
func likeEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}
