package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const logColumns = "id, status, recipient, subject, error_message, created_at, log_date"

// SQLStore implements Store over PostgreSQL or SQLite.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

// NewSQLStore wraps an open connection. dialect is "postgres" or "sqlite3".
func NewSQLStore(db *sql.DB, dialect string) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) GetOption(ctx context.Context, name string) ([]byte, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		s.rebind("SELECT option_value FROM options WHERE option_name = ?"), name,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read option %s: %w", name, err)
	}
	return []byte(value), true, nil
}

func (s *SQLStore) SetOption(ctx context.Context, name string, value []byte) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO options (option_name, option_value) VALUES (?, ?)
		ON CONFLICT (option_name) DO UPDATE SET option_value = excluded.option_value`),
		name, string(value),
	)
	if err != nil {
		return fmt.Errorf("failed to write option %s: %w", name, err)
	}
	return nil
}

func (s *SQLStore) AppendLog(ctx context.Context, entry *EmailLog) error {
	err := s.db.QueryRowContext(ctx, s.rebind(`
		INSERT INTO email_logs (status, recipient, subject, error_message, created_at, log_date)
		VALUES (?, ?, ?, ?, ?, ?) RETURNING id`),
		entry.Status, entry.Recipient, entry.Subject, entry.ErrorMessage, entry.CreatedAt.UTC(), entry.LogDate,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("failed to insert email log: %w", err)
	}
	return nil
}

// where renders the filter as a WHERE clause using ? placeholders.
func (f LogFilter) where() (string, []interface{}) {
	var clauses []string
	var args []interface{}
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, f.Status)
	}
	if f.Since != "" {
		clauses = append(clauses, "log_date >= ?")
		args = append(args, f.Since)
	}
	if f.Before != "" {
		clauses = append(clauses, "log_date < ?")
		args = append(args, f.Before)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (s *SQLStore) QueryLogs(ctx context.Context, filter LogFilter) ([]EmailLog, error) {
	where, args := filter.where()
	query := "SELECT " + logColumns + " FROM email_logs" + where + " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query email logs: %w", err)
	}
	defer rows.Close()

	var logs []EmailLog
	for rows.Next() {
		var l EmailLog
		if err := rows.Scan(&l.ID, &l.Status, &l.Recipient, &l.Subject, &l.ErrorMessage, &l.CreatedAt, &l.LogDate); err != nil {
			return nil, fmt.Errorf("failed to scan email log row: %w", err)
		}
		l.LogDate = strings.TrimSpace(l.LogDate)
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over email logs rows: %w", err)
	}
	return logs, nil
}

func (s *SQLStore) DeleteLogs(ctx context.Context, filter LogFilter) (int64, error) {
	where, args := filter.where()
	res, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM email_logs"+where), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete email logs: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLStore) CountLogs(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM email_logs").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count email logs: %w", err)
	}
	return count, nil
}

func (s *SQLStore) TrimLogs(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := s.db.ExecContext(ctx, s.rebind(`
		DELETE FROM email_logs WHERE id NOT IN (
			SELECT id FROM email_logs ORDER BY created_at DESC, id DESC LIMIT ?
		)`), keep)
	if err != nil {
		return 0, fmt.Errorf("failed to trim email logs: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
