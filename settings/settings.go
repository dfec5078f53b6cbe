// Package settings persists the SMTP relay configuration and validates it.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"mailrelay/database"
	"mailrelay/events"
)

const (
	EncryptionTLS = "tls"
	EncryptionSSL = "ssl"

	PortTLS = 587
	PortSSL = 465

	OptionGeneral  = "smtp_general_settings"
	OptionAdvanced = "smtp_advanced_settings"
)

// SmtpSettings is the general relay configuration.
type SmtpSettings struct {
	Username         string `json:"username"`
	Password         string `json:"password"`
	Encryption       string `json:"encryption"`
	FromEmail        string `json:"from_email"`
	FromName         string `json:"from_name"`
	ForceFromAddress bool   `json:"force_from_address"`
	Host             string `json:"host"`
	Port             int    `json:"port"`
}

// AdvancedSettings holds the header overrides applied to outgoing mail.
type AdvancedSettings struct {
	ReplyToEmail string `json:"reply_to_email"`
	ReplyToName  string `json:"reply_to_name"`
	ForceReplyTo bool   `json:"force_reply_to"`
	CcEmail      string `json:"cc_email"`
	CcName       string `json:"cc_name"`
	ForceCc      bool   `json:"force_cc"`
	BccEmail     string `json:"bcc_email"`
	BccName      string `json:"bcc_name"`
	ForceBcc     bool   `json:"force_bcc"`
}

// PortFor maps an encryption mode to the relay port: ssl uses 465,
// everything else 587.
func PortFor(encryption string) int {
	if encryption == EncryptionSSL {
		return PortSSL
	}
	return PortTLS
}

// DefaultGeneral returns the record used when nothing is stored.
func DefaultGeneral(host string) SmtpSettings {
	return SmtpSettings{
		Encryption: EncryptionTLS,
		Host:       host,
		Port:       PortTLS,
	}
}

// normalize fills the derived and fixed fields of a general record. It is
// applied on every read and save, so partial or older records come back
// complete.
func (s *SmtpSettings) normalize(host string) {
	s.Encryption = strings.ToLower(strings.TrimSpace(s.Encryption))
	if s.Encryption != EncryptionSSL {
		s.Encryption = EncryptionTLS
	}
	s.FromEmail = strings.TrimSpace(s.FromEmail)
	s.Host = host
	s.Port = PortFor(s.Encryption)
}

// Cipher protects the SMTP password at rest.
type Cipher interface {
	Seal(plain string) (string, error)
	Open(sealed string) (string, error)
}

// NopCipher stores passwords unchanged.
type NopCipher struct{}

func (NopCipher) Seal(plain string) (string, error)  { return plain, nil }
func (NopCipher) Open(sealed string) (string, error) { return sealed, nil }

// Store reads and writes the two settings records.
type Store struct {
	db         database.Store
	host       string
	cipher     Cipher
	dispatcher *events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

type Option func(*Store)

func WithCipher(c Cipher) Option {
	return func(s *Store) { s.cipher = c }
}

// WithDispatcher publishes a SettingsSavedEvent after each save.
func WithDispatcher(d *events.Dispatcher) Option {
	return func(s *Store) { s.dispatcher = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a settings store. relayHost is the fixed SMTP host
// reported in every general record.
func NewStore(db database.Store, relayHost string, logger *zap.Logger, opts ...Option) *Store {
	s := &Store{
		db:     db,
		host:   relayHost,
		cipher: NopCipher{},
		logger: logger.Named("settings"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// General returns the stored general record. A missing or malformed record
// yields defaults, not an error; the error reports storage failures only.
func (s *Store) General(ctx context.Context) (SmtpSettings, error) {
	out := DefaultGeneral(s.host)
	raw, ok, err := s.db.GetOption(ctx, OptionGeneral)
	if err != nil {
		return out, err
	}
	if !ok {
		return out, nil
	}

	if err := json.Unmarshal(raw, &out); err != nil {
		s.logger.Warn("stored general settings are malformed, using defaults", zap.Error(err))
		return DefaultGeneral(s.host), nil
	}
	if out.Password != "" {
		plain, err := s.cipher.Open(out.Password)
		if err != nil {
			s.logger.Warn("stored SMTP password could not be decrypted", zap.Error(err))
			plain = ""
		}
		out.Password = plain
	}
	out.normalize(s.host)
	return out, nil
}

// SaveGeneral persists in. A blank password keeps the stored one.
func (s *Store) SaveGeneral(ctx context.Context, in SmtpSettings) error {
	in.normalize(s.host)
	if in.Password == "" {
		current, err := s.General(ctx)
		if err != nil {
			return fmt.Errorf("failed to load current password: %w", err)
		}
		in.Password = current.Password
	}

	sealed, err := s.cipher.Seal(in.Password)
	if err != nil {
		return fmt.Errorf("failed to encrypt SMTP password: %w", err)
	}
	in.Password = sealed
	if err := s.save(ctx, OptionGeneral, in); err != nil {
		return err
	}
	s.publish(events.RecordGeneral)
	return nil
}

// Advanced returns the stored header overrides, or empty ones.
func (s *Store) Advanced(ctx context.Context) (AdvancedSettings, error) {
	var out AdvancedSettings
	raw, ok, err := s.db.GetOption(ctx, OptionAdvanced)
	if err != nil || !ok {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		s.logger.Warn("stored advanced settings are malformed, using defaults", zap.Error(err))
		return AdvancedSettings{}, nil
	}
	return out, nil
}

// SaveAdvanced persists in as given.
func (s *Store) SaveAdvanced(ctx context.Context, in AdvancedSettings) error {
	if err := s.save(ctx, OptionAdvanced, in); err != nil {
		return err
	}
	s.publish(events.RecordAdvanced)
	return nil
}

func (s *Store) save(ctx context.Context, option string, record interface{}) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", option, err)
	}
	if err := s.db.SetOption(ctx, option, raw); err != nil {
		return err
	}
	s.logger.Info("settings saved", zap.String("option", option))
	return nil
}

func (s *Store) publish(record string) {
	if s.dispatcher == nil {
		return
	}
	ev := events.SettingsSavedEvent{Meta: events.NewMeta(s.now()), Record: record}
	if err := s.dispatcher.Publish(ev); err != nil {
		s.logger.Debug("settings event not published", zap.Error(err))
	}
}
