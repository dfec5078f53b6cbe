package settings

import (
	"net/mail"
	"strings"
)

// Translator localizes a user-facing message.
type Translator func(string) string

// Validator produces advisory error lists. Every rule is evaluated so the
// caller sees all problems at once.
type Validator struct {
	translate Translator
}

// NewValidator returns a Validator; a nil translator leaves messages as is.
func NewValidator(t Translator) *Validator {
	if t == nil {
		t = func(s string) string { return s }
	}
	return &Validator{translate: t}
}

// ValidEmail reports whether s is a bare RFC 5322 addr-spec.
func (v *Validator) ValidEmail(s string) bool {
	if s == "" {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return false
	}
	return addr.Name == "" && addr.Address == s
}

func (v *Validator) ValidateGeneral(s SmtpSettings) []string {
	var errs []string
	if strings.TrimSpace(s.Username) == "" {
		errs = append(errs, v.translate("SMTP username is required."))
	}
	if s.Password == "" {
		errs = append(errs, v.translate("SMTP password is required."))
	}
	if s.FromEmail != "" && !v.ValidEmail(s.FromEmail) {
		errs = append(errs, v.translate("From email address is invalid."))
	}
	if s.Encryption != EncryptionTLS && s.Encryption != EncryptionSSL {
		errs = append(errs, v.translate("Encryption must be either TLS or SSL."))
	}
	return errs
}

// ValidateAdvanced checks the override addresses. Empty addresses mean
// "no override" and are valid.
func (v *Validator) ValidateAdvanced(a AdvancedSettings) []string {
	var errs []string
	if a.ReplyToEmail != "" && !v.ValidEmail(a.ReplyToEmail) {
		errs = append(errs, v.translate("Reply-To email address is invalid."))
	}
	if a.CcEmail != "" && !v.ValidEmail(a.CcEmail) {
		errs = append(errs, v.translate("CC email address is invalid."))
	}
	if a.BccEmail != "" && !v.ValidEmail(a.BccEmail) {
		errs = append(errs, v.translate("BCC email address is invalid."))
	}
	return errs
}
