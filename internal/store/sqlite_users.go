package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const userColumns = "id, email, name, password_hash, plan, created_at, last_login, profile_json, preferences_json, usage_json"

func scanUser(row scanner) (*User, error) {
	var (
		u           User
		createdRaw  string
		lastLogin   sql.NullString
		profile     sql.NullString
		preferences sql.NullString
		usage       sql.NullString
	)
	if err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&u.PasswordHash,
		&u.Plan,
		&createdRaw,
		&lastLogin,
		&profile,
		&preferences,
		&usage,
	); err != nil {
		return nil, err
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		u.CreatedAt = created
	}
	if lastLogin.Valid {
		if ts, err := parseTimeString(lastLogin.String); err == nil {
			u.LastLogin = &ts
		}
	}
	if err := decodeJSON(profile.String, &u.Profile); err != nil {
		return nil, fmt.Errorf("decode profile for %s: %w", u.ID, err)
	}
	if err := decodeJSON(preferences.String, &u.Preferences); err != nil {
		return nil, fmt.Errorf("decode preferences for %s: %w", u.ID, err)
	}
	if err := decodeJSON(usage.String, &u.Usage); err != nil {
		return nil, fmt.Errorf("decode usage for %s: %w", u.ID, err)
	}
	return &u, nil
}

type userDocuments struct {
	profile     string
	preferences string
	usage       string
}

func encodeUserDocuments(user *User) (userDocuments, error) {
	var (
		docs userDocuments
		err  error
	)
	if docs.profile, err = encodeJSON(user.Profile); err != nil {
		return docs, fmt.Errorf("encode profile: %w", err)
	}
	if docs.preferences, err = encodeJSON(user.Preferences); err != nil {
		return docs, fmt.Errorf("encode preferences: %w", err)
	}
	if docs.usage, err = encodeJSON(user.Usage); err != nil {
		return docs, fmt.Errorf("encode usage: %w", err)
	}
	return docs, nil
}

func (s *SQLiteStore) CreateUser(ctx context.Context, user *User) error {
	if err := validateUser(user); err != nil {
		return err
	}
	docs, err := encodeUserDocuments(user)
	if err != nil {
		return err
	}
	_, err = s.execWithRetry(ctx,
		`INSERT INTO users (id, email, email_key, name, password_hash, plan, created_at, last_login, profile_json, preferences_json, usage_json)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Email,
		emailKey(user.Email),
		user.Name,
		user.PasswordHash,
		user.Plan,
		formatTime(user.CreatedAt),
		nullableTime(user.LastLogin),
		docs.profile,
		docs.preferences,
		docs.usage,
	)
	if isUniqueViolation(err) {
		existing, lookupErr := s.GetUserByEmail(ctx, user.Email)
		if lookupErr == nil && existing != nil {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("user %s already exists", user.ID)
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*User, error) {
	return s.getUser(ctx, "id = ?", id)
}

func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.getUser(ctx, "email_key = ?", emailKey(email))
}

func (s *SQLiteStore) getUser(ctx context.Context, where string, arg any) (*User, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), "SELECT "+userColumns+" FROM users WHERE "+where, arg)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (s *SQLiteStore) UpdateUser(ctx context.Context, user *User) error {
	if err := validateUser(user); err != nil {
		return err
	}
	docs, err := encodeUserDocuments(user)
	if err != nil {
		return err
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE users SET email = ?, email_key = ?, name = ?, password_hash = ?, plan = ?, last_login = ?,
         profile_json = ?, preferences_json = ?, usage_json = ? WHERE id = ?`,
		user.Email,
		emailKey(user.Email),
		user.Name,
		user.PasswordHash,
		user.Plan,
		nullableTime(user.LastLogin),
		docs.profile,
		docs.preferences,
		docs.usage,
		user.ID,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), "SELECT "+userColumns+" FROM users ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	out := make([]*User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, user)
	}
	return out, rows.Err()
}
