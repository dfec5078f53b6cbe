// Package emaillog records one entry per send attempt and derives counts
// and time-bucketed series from those entries.
package emaillog

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mailrelay/database"
	"mailrelay/events"
	"mailrelay/utils"
)

const (
	// DefaultMaxEntries is the retention ceiling used when none is configured.
	DefaultMaxEntries  = 500
	defaultRecentLimit = 50

	// maxKeepDays bounds ClearOld's window so the cutoff date cannot overflow.
	maxKeepDays = 100 * 366
)

// Logger appends send outcomes to the store and evicts the oldest entries
// once the retention ceiling is exceeded.
type Logger struct {
	db         database.Store
	maxEntries int
	loc        *time.Location
	now        func() time.Time
	dispatcher *events.Dispatcher
	logger     *zap.Logger
}

type Option func(*Logger)

// WithMaxEntries sets the retention ceiling.
func WithMaxEntries(n int) Option {
	return func(l *Logger) {
		if n > 0 {
			l.maxEntries = n
		}
	}
}

// WithLocation sets the zone used for day and hour buckets.
func WithLocation(loc *time.Location) Option {
	return func(l *Logger) {
		if loc != nil {
			l.loc = loc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Logger) { l.now = now }
}

func WithDispatcher(d *events.Dispatcher) Option {
	return func(l *Logger) { l.dispatcher = d }
}

func New(db database.Store, logger *zap.Logger, opts ...Option) *Logger {
	l := &Logger{
		db:         db,
		maxEntries: DefaultMaxEntries,
		loc:        time.UTC,
		now:        time.Now,
		logger:     logger.Named("emaillog"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Location is the zone used for bucketing.
func (l *Logger) Location() *time.Location {
	return l.loc
}

// Now is the logger's clock in its bucketing zone.
func (l *Logger) Now() time.Time {
	return l.now().In(l.loc)
}

// today returns local midnight of the current day.
func (l *Logger) today() time.Time {
	now := l.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, l.loc)
}

// LogSent records a successful send.
func (l *Logger) LogSent(ctx context.Context, to, subject string) error {
	entry := l.newEntry(database.StatusSent, to, subject, "")
	if err := l.append(ctx, entry); err != nil {
		return err
	}
	l.publish(events.SentEvent{
		Meta:      events.NewMeta(entry.CreatedAt),
		Recipient: entry.Recipient,
		Subject:   entry.Subject,
	})
	return nil
}

// LogFailed records a failed send with its error detail.
func (l *Logger) LogFailed(ctx context.Context, to, subject, errMsg string) error {
	entry := l.newEntry(database.StatusFailed, to, subject, errMsg)
	if err := l.append(ctx, entry); err != nil {
		return err
	}
	l.publish(events.FailedEvent{
		Meta:      events.NewMeta(entry.CreatedAt),
		Recipient: entry.Recipient,
		Subject:   entry.Subject,
		Error:     entry.ErrorMessage,
	})
	return nil
}

func (l *Logger) newEntry(status, to, subject, errMsg string) *database.EmailLog {
	now := l.Now()
	return &database.EmailLog{
		Status:       status,
		Recipient:    utils.SanitizeText(to),
		Subject:      utils.SanitizeText(subject),
		ErrorMessage: utils.SanitizeText(errMsg),
		CreatedAt:    now,
		LogDate:      now.Format(database.DateLayout),
	}
}

func (l *Logger) append(ctx context.Context, entry *database.EmailLog) error {
	if err := l.db.AppendLog(ctx, entry); err != nil {
		return err
	}

	// Concurrent appends may both observe the ceiling; the second trim is a no-op.
	count, err := l.db.CountLogs(ctx)
	if err != nil {
		return fmt.Errorf("failed to check log ceiling: %w", err)
	}
	if count <= l.maxEntries {
		return nil
	}
	removed, err := l.db.TrimLogs(ctx, l.maxEntries)
	if err != nil {
		return fmt.Errorf("failed to evict old log entries: %w", err)
	}
	if removed > 0 {
		l.logger.Debug("evicted oldest log entries", zap.Int64("removed", removed), zap.Int("ceiling", l.maxEntries))
		l.publish(events.LogsPrunedEvent{
			Meta:    events.NewMeta(l.Now()),
			Removed: removed,
			Reason:  events.PruneByCeiling,
		})
	}
	return nil
}

// Recent returns up to limit entries, newest first, optionally filtered by
// status ("sent" or "failed"). limit <= 0 means 50.
func (l *Logger) Recent(ctx context.Context, limit int, status string) ([]database.EmailLog, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	return l.db.QueryLogs(ctx, database.LogFilter{Status: status, Limit: limit})
}

// ClearOld deletes entries dated before today minus daysToKeep and returns
// how many were removed. Entries dated exactly on the cutoff stay.
func (l *Logger) ClearOld(ctx context.Context, daysToKeep int) (int64, error) {
	if daysToKeep < 0 {
		daysToKeep = 0
	}
	if daysToKeep > maxKeepDays {
		daysToKeep = maxKeepDays
	}
	cutoff := l.today().AddDate(0, 0, -daysToKeep).Format(database.DateLayout)
	removed, err := l.db.DeleteLogs(ctx, database.LogFilter{Before: cutoff})
	if err != nil {
		return 0, err
	}
	l.logger.Info("cleared old email logs", zap.Int64("removed", removed), zap.String("cutoff", cutoff))
	if removed > 0 {
		l.publish(events.LogsPrunedEvent{
			Meta:    events.NewMeta(l.Now()),
			Removed: removed,
			Reason:  events.PruneByAge,
		})
	}
	return removed, nil
}

func (l *Logger) publish(ev events.Event) {
	if l.dispatcher == nil {
		return
	}
	if err := l.dispatcher.Publish(ev); err != nil {
		l.logger.Debug("log event not published", zap.Error(err))
	}
}
