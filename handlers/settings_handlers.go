package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"mailrelay/settings"
)

// generalView is the general record as exposed over HTTP; the password is
// never returned.
type generalView struct {
	settings.SmtpSettings
	PasswordSet bool `json:"password_set"`
}

func newGeneralView(s settings.SmtpSettings) generalView {
	v := generalView{SmtpSettings: s, PasswordSet: s.Password != ""}
	v.Password = ""
	return v
}

// GetGeneralSettingsHandler returns the SMTP relay settings.
func GetGeneralSettingsHandler(store *settings.Store, logger *zap.Logger) http.HandlerFunc {
	rs := newResponder(logger)
	return func(w http.ResponseWriter, r *http.Request) {
		current, err := store.General(r.Context())
		if err != nil {
			rs.internal(w, "Could not load relay settings", err)
			return
		}
		rs.ok(w, "Relay settings loaded", newGeneralView(current))
	}
}

// SaveGeneralSettingsHandler validates and stores the SMTP relay settings.
// The candidate is validated the way it will be stored: a blank password
// keeps the stored one and a blank encryption means tls.
func SaveGeneralSettingsHandler(store *settings.Store, validator *settings.Validator, logger *zap.Logger) http.HandlerFunc {
	rs := newResponder(logger)
	return func(w http.ResponseWriter, r *http.Request) {
		var req settings.SmtpSettings
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			rs.fail(w, http.StatusBadRequest, "Relay settings must be a JSON object")
			return
		}

		candidate := req
		candidate.Encryption = strings.ToLower(strings.TrimSpace(candidate.Encryption))
		if candidate.Encryption == "" {
			candidate.Encryption = settings.EncryptionTLS
		}
		if candidate.Password == "" {
			current, err := store.General(r.Context())
			if err != nil {
				rs.internal(w, "Could not load relay settings", err)
				return
			}
			candidate.Password = current.Password
		}
		if errs := validator.ValidateGeneral(candidate); len(errs) > 0 {
			rs.invalid(w, errs)
			return
		}

		if err := store.SaveGeneral(r.Context(), req); err != nil {
			rs.internal(w, "Could not save relay settings", err)
			return
		}
		saved, err := store.General(r.Context())
		if err != nil {
			rs.internal(w, "Could not load relay settings", err)
			return
		}
		rs.ok(w, "Relay settings saved", newGeneralView(saved))
	}
}

// GetAdvancedSettingsHandler returns the header overrides.
func GetAdvancedSettingsHandler(store *settings.Store, logger *zap.Logger) http.HandlerFunc {
	rs := newResponder(logger)
	return func(w http.ResponseWriter, r *http.Request) {
		current, err := store.Advanced(r.Context())
		if err != nil {
			rs.internal(w, "Could not load header overrides", err)
			return
		}
		rs.ok(w, "Header overrides loaded", current)
	}
}

// SaveAdvancedSettingsHandler validates and stores the header overrides.
func SaveAdvancedSettingsHandler(store *settings.Store, validator *settings.Validator, logger *zap.Logger) http.HandlerFunc {
	rs := newResponder(logger)
	return func(w http.ResponseWriter, r *http.Request) {
		var req settings.AdvancedSettings
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			rs.fail(w, http.StatusBadRequest, "Header overrides must be a JSON object")
			return
		}
		if errs := validator.ValidateAdvanced(req); len(errs) > 0 {
			rs.invalid(w, errs)
			return
		}
		if err := store.SaveAdvanced(r.Context(), req); err != nil {
			rs.internal(w, "Could not save header overrides", err)
			return
		}
		rs.ok(w, "Header overrides saved", req)
	}
}
