package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const eventColumns = "event_type, user_id, endpoint, method, status_code, duration_ms, timestamp, metadata_json"

func scanEvent(row scanner) (Event, error) {
	var (
		e          Event
		typ        string
		endpoint   sql.NullString
		method     sql.NullString
		statusCode sql.NullInt64
		duration   sql.NullFloat64
		tsRaw      string
		metadata   sql.NullString
	)
	if err := row.Scan(&typ, &e.UserID, &endpoint, &method, &statusCode, &duration, &tsRaw, &metadata); err != nil {
		return Event{}, err
	}
	e.Type = EventType(typ)
	e.Endpoint = endpoint.String
	e.Method = method.String
	e.StatusCode = int(statusCode.Int64)
	e.DurationMS = duration.Float64
	if ts, err := parseTimeString(tsRaw); err == nil {
		e.Timestamp = ts
	}
	if err := decodeJSON(metadata.String, &e.Metadata); err != nil {
		return Event{}, fmt.Errorf("decode event metadata: %w", err)
	}
	return e, nil
}

func eventWhere(filter EventFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if filter.UserID != "" {
		clauses = append(clauses, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if len(filter.Types) > 0 {
		clauses = append(clauses, "event_type IN ("+makePlaceholders(len(filter.Types))+")")
		for _, t := range filter.Types {
			args = append(args, string(t))
		}
	}
	if !filter.Since.IsZero() {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, formatTime(filter.Since))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (s *SQLiteStore) AppendEvent(ctx context.Context, event Event) error {
	if event.Type == "" {
		return errors.New("event type required")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	var metadata any
	if len(event.Metadata) > 0 {
		encoded, err := encodeJSON(event.Metadata)
		if err != nil {
			return fmt.Errorf("encode event metadata: %w", err)
		}
		metadata = encoded
	}
	var statusCode any
	if event.StatusCode != 0 {
		statusCode = event.StatusCode
	}
	if _, err := s.execWithRetry(ctx,
		"INSERT INTO events ("+eventColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		string(event.Type),
		event.UserID,
		nullableString(event.Endpoint),
		nullableString(event.Method),
		statusCode,
		event.DurationMS,
		formatTime(event.Timestamp),
		metadata,
	); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return s.pruneEvents(ctx)
}

func (s *SQLiteStore) pruneEvents(ctx context.Context) error {
	if s.maxEvents <= 0 {
		return nil
	}
	_, err := s.execWithRetry(ctx,
		"DELETE FROM events WHERE id <= (SELECT id FROM events ORDER BY id DESC LIMIT 1 OFFSET ?)",
		s.maxEvents,
	)
	if err != nil {
		return fmt.Errorf("prune events: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListEvents(ctx context.Context, filter EventFilter) ([]Event, error) {
	where, args := eventWhere(filter)
	rows, err := s.db.QueryContext(ensureContext(ctx), "SELECT "+eventColumns+" FROM events"+where+" ORDER BY id", args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	out := make([]Event, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, event)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CountEvents(ctx context.Context, filter EventFilter) (int, error) {
	where, args := eventWhere(filter)
	var count int
	if err := s.db.QueryRowContext(ensureContext(ctx), "SELECT COUNT(1) FROM events"+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}
