package database

import (
	"context"
	"errors"
)

// ErrUnsupportedDriver is returned by Open for an unknown DATABASE_URL scheme.
var ErrUnsupportedDriver = errors.New("unsupported database driver")

// Store is the persistent key/value and log table used by the settings
// store and the email logger. It exclusively owns both kinds of records.
type Store interface {
	// GetOption returns the raw value stored under name and whether it exists.
	GetOption(ctx context.Context, name string) ([]byte, bool, error)
	// SetOption inserts or replaces the value stored under name.
	SetOption(ctx context.Context, name string, value []byte) error

	// AppendLog inserts a log row and sets its ID.
	AppendLog(ctx context.Context, entry *EmailLog) error
	// QueryLogs returns matching rows, newest first.
	QueryLogs(ctx context.Context, filter LogFilter) ([]EmailLog, error)
	// DeleteLogs removes matching rows and reports how many went.
	DeleteLogs(ctx context.Context, filter LogFilter) (int64, error)
	CountLogs(ctx context.Context) (int, error)
	// TrimLogs keeps only the newest keep rows.
	TrimLogs(ctx context.Context, keep int) (int64, error)

	Close() error
}
