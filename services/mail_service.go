package services

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	mail "gopkg.in/gomail.v2"

	"mailrelay/settings"
)

// ErrNoRecipients is returned by Send for a message without To addresses.
var ErrNoRecipients = errors.New("message has no recipients")

// Message is an outgoing email before the relay's header overrides apply.
type Message struct {
	From        string   `json:"from,omitempty"`
	FromName    string   `json:"from_name,omitempty"`
	To          []string `json:"to"`
	Cc          []string `json:"cc,omitempty"`
	Bcc         []string `json:"bcc,omitempty"`
	ReplyTo     string   `json:"reply_to,omitempty"`
	Subject     string   `json:"subject"`
	Body        string   `json:"body"`
	ContentType string   `json:"content_type,omitempty"` // defaults to text/html
}

// Sender delivers composed messages. *gomail.Dialer satisfies it.
type Sender interface {
	DialAndSend(m ...*mail.Message) error
}

// DialerFunc builds a Sender for the current relay settings.
type DialerFunc func(cfg settings.SmtpSettings) Sender

// SettingsSource supplies the relay configuration for each send.
type SettingsSource interface {
	General(ctx context.Context) (settings.SmtpSettings, error)
	Advanced(ctx context.Context) (settings.AdvancedSettings, error)
}

// AttemptLogger records the outcome of each send.
type AttemptLogger interface {
	LogSent(ctx context.Context, to, subject string) error
	LogFailed(ctx context.Context, to, subject, errMsg string) error
}

// MailService sends mail through the configured relay and logs every attempt
type MailService struct {
	settings SettingsSource
	attempts AttemptLogger
	dial     DialerFunc
	logger   *zap.Logger
}

// NewMailService creates a new MailService instance
func NewMailService(src SettingsSource, attempts AttemptLogger, dial DialerFunc, logger *zap.Logger) *MailService {
	return &MailService{
		settings: src,
		attempts: attempts,
		dial:     dial,
		logger:   logger.Named("mail"),
	}
}

// GomailDialer returns a DialerFunc backed by gomail. SSL is used for the
// ssl encryption mode, STARTTLS otherwise.
func GomailDialer(skipTLSVerify bool, logger *zap.Logger) DialerFunc {
	if skipTLSVerify {
		logger.Warn("TLS certificate verification is DISABLED")
	}
	return func(cfg settings.SmtpSettings) Sender {
		d := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
		d.SSL = cfg.Encryption == settings.EncryptionSSL
		d.TLSConfig = &tls.Config{
			ServerName:         cfg.Host,
			InsecureSkipVerify: skipTLSVerify,
		}
		return d
	}
}

// Send delivers msg and logs the attempt whatever the outcome. A failure to
// write the log is reported but never replaces the send result.
func (s *MailService) Send(ctx context.Context, msg Message) (err error) {
	to := strings.Join(msg.To, ", ")
	defer func() {
		var logErr error
		if err != nil {
			logErr = s.attempts.LogFailed(ctx, to, msg.Subject, err.Error())
		} else {
			logErr = s.attempts.LogSent(ctx, to, msg.Subject)
		}
		if logErr != nil {
			s.logger.Error("failed to log email attempt", zap.String("to", to), zap.Error(logErr))
		}
	}()

	if len(msg.To) == 0 {
		return ErrNoRecipients
	}
	general, err := s.settings.General(ctx)
	if err != nil {
		return fmt.Errorf("could not load SMTP settings: %w", err)
	}
	advanced, err := s.settings.Advanced(ctx)
	if err != nil {
		return fmt.Errorf("could not load header overrides: %w", err)
	}

	m := buildMessage(msg, general, advanced)
	if err = s.dial(general).DialAndSend(m); err != nil {
		s.logger.Warn("email send failed",
			zap.String("to", to),
			zap.String("host", general.Host),
			zap.Int("port", general.Port),
			zap.Error(err),
		)
		return fmt.Errorf("could not send email: %w", err)
	}

	s.logger.Info("email sent", zap.String("to", to), zap.Int("port", general.Port))
	return nil
}

// buildMessage composes msg with the relay's From address and the
// Reply-To/CC/BCC overrides. A forced override replaces whatever the message
// carries; an unforced one only fills a header the message left empty.
func buildMessage(msg Message, general settings.SmtpSettings, adv settings.AdvancedSettings) *mail.Message {
	m := mail.NewMessage()

	fromAddr, fromName := msg.From, msg.FromName
	if general.ForceFromAddress || fromAddr == "" {
		fromAddr, fromName = general.FromEmail, general.FromName
		if fromAddr == "" {
			fromAddr = general.Username
		}
	}
	m.SetAddressHeader("From", fromAddr, fromName)
	m.SetHeader("To", msg.To...)

	switch {
	case adv.ReplyToEmail != "" && (adv.ForceReplyTo || msg.ReplyTo == ""):
		m.SetAddressHeader("Reply-To", adv.ReplyToEmail, adv.ReplyToName)
	case msg.ReplyTo != "":
		m.SetHeader("Reply-To", msg.ReplyTo)
	}

	if cc := override(m, msg.Cc, adv.CcEmail, adv.CcName, adv.ForceCc); len(cc) > 0 {
		m.SetHeader("Cc", cc...)
	}
	if bcc := override(m, msg.Bcc, adv.BccEmail, adv.BccName, adv.ForceBcc); len(bcc) > 0 {
		m.SetHeader("Bcc", bcc...)
	}

	m.SetHeader("Subject", msg.Subject)
	contentType := msg.ContentType
	if contentType == "" {
		contentType = "text/html"
	}
	m.SetBody(contentType, msg.Body)
	return m
}

func override(m *mail.Message, current []string, email, name string, force bool) []string {
	if email == "" || (!force && len(current) > 0) {
		return current
	}
	return []string{m.FormatAddress(email, name)}
}
