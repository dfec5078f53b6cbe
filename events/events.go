// Package events is a typed publish/subscribe registry for send, log and
// settings events. A Dispatcher is built once at startup and injected into
// the components that publish or react to events.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Event is implemented by every event variant.
type Event interface {
	EventID() string
	OccurredAt() time.Time
}

// Meta carries the fields shared by all variants.
type Meta struct {
	ID string    `json:"id"`
	At time.Time `json:"at"`
}

func (m Meta) EventID() string       { return m.ID }
func (m Meta) OccurredAt() time.Time { return m.At }

// NewMeta stamps a fresh event ID.
func NewMeta(at time.Time) Meta {
	return Meta{ID: uuid.NewString(), At: at}
}

// SentEvent is published after a successful send was logged.
type SentEvent struct {
	Meta
	Recipient string
	Subject   string
}

// FailedEvent is published after a failed send was logged.
type FailedEvent struct {
	Meta
	Recipient string
	Subject   string
	Error     string
}

// Prune reasons carried by LogsPrunedEvent.
const (
	PruneByAge     = "age"
	PruneByCeiling = "ceiling"
)

// LogsPrunedEvent is published when log entries were removed.
type LogsPrunedEvent struct {
	Meta
	Removed int64
	Reason  string
}

// Settings record names carried by SettingsSavedEvent.
const (
	RecordGeneral  = "general"
	RecordAdvanced = "advanced"
)

// SettingsSavedEvent is published after a settings record was persisted.
type SettingsSavedEvent struct {
	Meta
	Record string
}
