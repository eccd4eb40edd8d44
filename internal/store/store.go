package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"studio/internal/config"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateScript indicates a script with the same ID is already stored.
	ErrDuplicateScript = errors.New("script id already exists")
	// ErrDuplicateEmail indicates another user already owns the email address.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrSnapshotLocked indicates another process holds the snapshot lock.
	ErrSnapshotLocked = errors.New("snapshot locked by another process")
	// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
	ErrSchemaMismatch = errors.New("schema version mismatch")
)

// Store persists scripts, users, and analytics events.
//
// Getters return (nil, nil) when a record is absent. Returned values are
// copies; mutating them does not change stored state.
type Store interface {
	CreateScript(ctx context.Context, script *Script) error
	GetScript(ctx context.Context, id string) (*Script, error)
	// ListScripts returns matching scripts newest first.
	ListScripts(ctx context.Context, filter ScriptFilter) ([]*Script, error)
	CountScripts(ctx context.Context, filter ScriptFilter) (int, error)

	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	UpdateUser(ctx context.Context, user *User) error
	ListUsers(ctx context.Context) ([]*User, error)

	AppendEvent(ctx context.Context, event Event) error
	// ListEvents returns matching events oldest first.
	ListEvents(ctx context.Context, filter EventFilter) ([]Event, error)
	CountEvents(ctx context.Context, filter EventFilter) (int, error)

	Ping(ctx context.Context) error
	// Flush persists buffered state. Backends that write through return nil.
	Flush(ctx context.Context) error
	Close() error
}

// Open constructs the backend selected by storage.driver.
func Open(cfg *config.Config) (Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	switch cfg.Storage.Driver {
	case "", "memory":
		m, err := OpenMemory(MemoryOptions{
			SnapshotPath: cfg.SnapshotPath(),
			MaxEvents:    cfg.Storage.MaxEvents,
		})
		if err != nil {
			return nil, err
		}
		return m, nil
	case "sqlite":
		s, err := OpenSQLite(cfg.DatabasePath(), cfg.Storage.MaxEvents)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("storage driver %q not supported", cfg.Storage.Driver)
	}
}

func sortScriptsNewestFirst(scripts []*Script) {
	sort.SliceStable(scripts, func(i, j int) bool {
		if !scripts[i].CreatedAt.Equal(scripts[j].CreatedAt) {
			return scripts[i].CreatedAt.After(scripts[j].CreatedAt)
		}
		return scripts[i].ID > scripts[j].ID
	})
}

func validateScript(script *Script) error {
	if script == nil {
		return errors.New("script is nil")
	}
	if script.ID == "" {
		return errors.New("script id required")
	}
	return nil
}

func validateUser(user *User) error {
	if user == nil {
		return errors.New("user is nil")
	}
	if user.ID == "" {
		return errors.New("user id required")
	}
	if emailKey(user.Email) == "" {
		return errors.New("user email required")
	}
	return nil
}
