package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/olegiv/eventlog-go/internal/model"
)

// deleteBatchSize bounds the number of ids per DELETE ... IN (...) statement.
const deleteBatchSize = 500

// Store provides access to the events and contexts tables.
type Store struct {
	db *sql.DB
}

// New creates a Store backed by the given database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// eventColumns is the column list shared by all event selects.
const eventColumns = "id, date, logger, level, message, occasions_id, initiator"

// InsertEvent inserts a single event row and returns its assigned id.
// The event date is stored in TimeFormat; a zero date means "now".
func (s *Store) InsertEvent(ctx context.Context, ev *model.Event) (int64, error) {
	date := ev.Date
	if date.IsZero() {
		date = time.Now()
	}

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO events (date, logger, level, message, occasions_id, initiator) VALUES (?, ?, ?, ?, ?, ?)",
		date.Format(TimeFormat), ev.Logger, ev.Level, ev.Message, ev.OccasionsID, ev.Initiator,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting event: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading event id: %w", err)
	}
	return id, nil
}

// InsertContexts attaches key/value pairs to the event with the given id.
// Keys are written in sorted order for deterministic context_id assignment.
func (s *Store) InsertContexts(ctx context.Context, historyID int64, kv map[string]string) error {
	if len(kv) == 0 {
		return nil
	}

	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		_, err := s.db.ExecContext(ctx,
			"INSERT INTO contexts (history_id, `key`, value) VALUES (?, ?, ?)",
			historyID, k, kv[k],
		)
		if err != nil {
			return fmt.Errorf("inserting context %q: %w", k, err)
		}
	}
	return nil
}

// GetEvent fetches a single event by id.
func (s *Store) GetEvent(ctx context.Context, id int64) (model.Event, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+eventColumns+" FROM events WHERE id = ?", id)
	return scanEvent(row)
}

// LatestEvent returns the most recently inserted event (highest id).
// The second return value is false when the table is empty.
func (s *Store) LatestEvent(ctx context.Context) (model.Event, bool, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+eventColumns+" FROM events ORDER BY id DESC LIMIT 1")
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, false, nil
	}
	if err != nil {
		return model.Event{}, false, err
	}
	return ev, true, nil
}

// SelectEvents returns events matching the given WHERE clause, ordered by
// (date DESC, id DESC). The clause must be fully parameterized; args holds
// the placeholder values. An empty clause selects everything. A limit of 0
// means no limit.
func (s *Store) SelectEvents(ctx context.Context, where string, args []any, limit int64) ([]model.Event, error) {
	query := "SELECT " + eventColumns + " FROM events"
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY date DESC, id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("selecting events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []model.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// SelectEventIDs returns the ids of events matching the given WHERE clause.
// Used by the purge service, whose clause is built internally or supplied by
// a retention filter and therefore carries no placeholders.
func (s *Store) SelectEventIDs(ctx context.Context, where string) ([]int64, error) {
	query := "SELECT id FROM events"
	if where != "" {
		query += " WHERE " + where
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("selecting event ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning event id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteEvents removes the given events and their context rows. Contexts are
// deleted explicitly, keyed by the deleted ids - there is no foreign key
// cascade. Returns the number of event rows deleted.
func (s *Store) DeleteEvents(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	var deleted int64
	for start := 0; start < len(ids); start += deleteBatchSize {
		end := start + deleteBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]

		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(batch)), ",")
		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = id
		}

		res, err := s.db.ExecContext(ctx,
			"DELETE FROM events WHERE id IN ("+placeholders+")", args...)
		if err != nil {
			return deleted, fmt.Errorf("deleting events: %w", err)
		}
		n, _ := res.RowsAffected()
		deleted += n

		_, err = s.db.ExecContext(ctx,
			"DELETE FROM contexts WHERE history_id IN ("+placeholders+")", args...)
		if err != nil {
			return deleted, fmt.Errorf("deleting contexts: %w", err)
		}
	}
	return deleted, nil
}

// GetContexts loads context maps for the given event ids.
func (s *Store) GetContexts(ctx context.Context, ids []int64) (map[int64]map[string]string, error) {
	result := make(map[int64]map[string]string, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT history_id, `key`, value FROM contexts WHERE history_id IN ("+placeholders+")", args...)
	if err != nil {
		return nil, fmt.Errorf("selecting contexts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var historyID int64
		var key, value string
		if err := rows.Scan(&historyID, &key, &value); err != nil {
			return nil, fmt.Errorf("scanning context: %w", err)
		}
		if result[historyID] == nil {
			result[historyID] = make(map[string]string)
		}
		result[historyID][key] = value
	}
	return result, rows.Err()
}

// GetContextValue returns the value of a single context key for an event.
// The second return value is false when the key is not present.
func (s *Store) GetContextValue(ctx context.Context, historyID int64, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM contexts WHERE history_id = ? AND `key` = ? LIMIT 1",
		historyID, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("selecting context value: %w", err)
	}
	return value, true, nil
}

// SetContextValue updates a context key for an event, inserting it when absent.
func (s *Store) SetContextValue(ctx context.Context, historyID int64, key, value string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE contexts SET value = ? WHERE history_id = ? AND `key` = ?",
		value, historyID, key)
	if err != nil {
		return fmt.Errorf("updating context value: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO contexts (history_id, `key`, value) VALUES (?, ?, ?)",
		historyID, key, value)
	if err != nil {
		return fmt.Errorf("inserting context value: %w", err)
	}
	return nil
}

// CountEvents returns the total number of event rows.
func (s *Store) CountEvents(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting events: %w", err)
	}
	return count, nil
}

// scanner is implemented by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanEvent scans one event row, parsing the stored date text.
func scanEvent(row scanner) (model.Event, error) {
	var ev model.Event
	var date string
	err := row.Scan(&ev.ID, &date, &ev.Logger, &ev.Level, &ev.Message, &ev.OccasionsID, &ev.Initiator)
	if errors.Is(err, sql.ErrNoRows) {
		return ev, err
	}
	if err != nil {
		return ev, fmt.Errorf("scanning event: %w", err)
	}

	ev.Date, err = parseStoredDate(date)
	if err != nil {
		return ev, err
	}
	return ev, nil
}

// parseStoredDate parses a date column value. Drivers may hand back the
// canonical TimeFormat text or an RFC 3339 string, depending on how the row
// was written.
func parseStoredDate(s string) (time.Time, error) {
	if t, err := time.Parse(TimeFormat, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing stored date %q: %w", s, err)
	}
	return t, nil
}
