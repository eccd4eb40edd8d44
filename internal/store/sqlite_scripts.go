package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const scriptColumns = "id, user_id, topic, content, style, duration, word_count, estimated_duration, provider, model, tokens, cost, quality_score, created_at"

func scanScript(row scanner) (*Script, error) {
	var (
		s          Script
		model      sql.NullString
		createdRaw string
	)
	if err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.Topic,
		&s.Content,
		&s.Style,
		&s.Duration,
		&s.WordCount,
		&s.EstimatedDuration,
		&s.Provider,
		&model,
		&s.Tokens,
		&s.Cost,
		&s.QualityScore,
		&createdRaw,
	); err != nil {
		return nil, err
	}
	s.Model = model.String
	if created, err := parseTimeString(createdRaw); err == nil {
		s.CreatedAt = created
	}
	return &s, nil
}

func scriptWhere(filter ScriptFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if filter.UserID != "" {
		clauses = append(clauses, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if !filter.Since.IsZero() {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, formatTime(filter.Since))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (s *SQLiteStore) CreateScript(ctx context.Context, script *Script) error {
	if err := validateScript(script); err != nil {
		return err
	}
	_, err := s.execWithRetry(ctx,
		"INSERT INTO scripts ("+scriptColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		script.ID,
		script.UserID,
		script.Topic,
		script.Content,
		script.Style,
		script.Duration,
		script.WordCount,
		script.EstimatedDuration,
		script.Provider,
		nullableString(script.Model),
		script.Tokens,
		script.Cost,
		script.QualityScore,
		formatTime(script.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("script %s: %w", script.ID, ErrDuplicateScript)
		}
		return fmt.Errorf("insert script: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetScript(ctx context.Context, id string) (*Script, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), "SELECT "+scriptColumns+" FROM scripts WHERE id = ?", id)
	script, err := scanScript(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get script: %w", err)
	}
	return script, nil
}

func (s *SQLiteStore) ListScripts(ctx context.Context, filter ScriptFilter) ([]*Script, error) {
	where, args := scriptWhere(filter)
	query := "SELECT " + scriptColumns + " FROM scripts" + where + " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list scripts: %w", err)
	}
	defer rows.Close()

	out := make([]*Script, 0)
	for rows.Next() {
		script, err := scanScript(rows)
		if err != nil {
			return nil, fmt.Errorf("scan script: %w", err)
		}
		out = append(out, script)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CountScripts(ctx context.Context, filter ScriptFilter) (int, error) {
	where, args := scriptWhere(filter)
	var count int
	if err := s.db.QueryRowContext(ensureContext(ctx), "SELECT COUNT(1) FROM scripts"+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count scripts: %w", err)
	}
	return count, nil
}
