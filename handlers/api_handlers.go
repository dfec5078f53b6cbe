package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"mailrelay/database"
	"mailrelay/emaillog"
	"mailrelay/services"
	"mailrelay/stats"
	"mailrelay/utils"
)

// SendMailRequest struct for parsing the JSON payload.
type SendMailRequest struct {
	To      string   `json:"to"`
	CC      []string `json:"cc,omitempty"`
	BCC     []string `json:"bcc,omitempty"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}

// SendMailHandler sends a message through the configured relay; the admin
// UI uses it for test emails.
func SendMailHandler(mailer *services.MailService, logger *zap.Logger) http.HandlerFunc {
	rs := newResponder(logger)
	return func(w http.ResponseWriter, r *http.Request) {
		var req SendMailRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			rs.fail(w, http.StatusBadRequest, "Test email must be a JSON object")
			return
		}
		req.To = utils.SanitizeEmail(req.To)
		if req.To == "" || req.Subject == "" || req.Body == "" {
			rs.fail(w, http.StatusBadRequest, "Fields 'to', 'subject', and 'body' are required.")
			return
		}

		err := mailer.Send(r.Context(), services.Message{
			To:      []string{req.To},
			Cc:      sanitizeAddresses(req.CC),
			Bcc:     sanitizeAddresses(req.BCC),
			Subject: req.Subject,
			Body:    req.Body,
		})
		if err != nil {
			rs.log.Warn("test email not relayed", zap.String("to", req.To), zap.Error(err))
			rs.fail(w, http.StatusBadGateway, "Relay rejected the test email: "+err.Error())
			return
		}
		rs.ok(w, "Test email relayed", nil)
	}
}

func sanitizeAddresses(in []string) []string {
	var out []string
	for _, addr := range in {
		if addr = utils.SanitizeEmail(addr); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

// GetLogsHandler returns the most recent log entries, optionally by status.
func GetLogsHandler(log *emaillog.Logger, logger *zap.Logger) http.HandlerFunc {
	rs := newResponder(logger)
	return func(w http.ResponseWriter, r *http.Request) {
		status := r.URL.Query().Get("status")
		if status != "" && status != database.StatusSent && status != database.StatusFailed {
			rs.fail(w, http.StatusBadRequest, "Invalid status. Use 'sent' or 'failed'.")
			return
		}
		limit := intParam(r, "limit", 50)

		logs, err := log.Recent(r.Context(), limit, status)
		if err != nil {
			rs.internal(w, "Could not read the email log", err)
			return
		}
		if logs == nil {
			logs = []database.EmailLog{}
		}
		rs.ok(w, "Email log entries loaded", logs)
	}
}

// ClearLogsHandler deletes entries older than ?days (default defaultDays).
func ClearLogsHandler(log *emaillog.Logger, defaultDays int, logger *zap.Logger) http.HandlerFunc {
	rs := newResponder(logger)
	return func(w http.ResponseWriter, r *http.Request) {
		days := intParam(r, "days", defaultDays)
		removed, err := log.ClearOld(r.Context(), days)
		if err != nil {
			rs.internal(w, "Could not prune the email log", err)
			return
		}
		rs.ok(w, "Old email log entries pruned", map[string]interface{}{"removed": removed, "days_kept": days})
	}
}

var errInvalidPeriod = errors.New("invalid period")

func periodParam(r *http.Request) (string, error) {
	period := r.URL.Query().Get("period")
	switch period {
	case "":
		return emaillog.PeriodToday, nil
	case emaillog.PeriodToday, emaillog.PeriodWeek, emaillog.PeriodMonth, emaillog.PeriodAll:
		return period, nil
	default:
		return "", errInvalidPeriod
	}
}

// GetEmailStatsHandler returns the send summary for ?period.
func GetEmailStatsHandler(log *emaillog.Logger, logger *zap.Logger) http.HandlerFunc {
	rs := newResponder(logger)
	return func(w http.ResponseWriter, r *http.Request) {
		period, err := periodParam(r)
		if err != nil {
			rs.fail(w, http.StatusBadRequest, "Invalid period. Use today, week, month or all.")
			return
		}
		summary, err := log.Statistics(r.Context(), period)
		if err != nil {
			rs.internal(w, "Could not compute send statistics", err)
			return
		}
		rs.ok(w, "Send statistics computed", summary)
	}
}

// GetDailyChartHandler returns per-day chart series for ?days. Windows
// longer than emaillog.MaxWindowDays are capped.
func GetDailyChartHandler(agg *stats.Aggregator, logger *zap.Logger) http.HandlerFunc {
	rs := newResponder(logger)
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := agg.DailyChartData(r.Context(), intParam(r, "days", 7))
		if err != nil {
			rs.internal(w, "Could not build the daily send chart", err)
			return
		}
		rs.ok(w, "Daily send chart built", data)
	}
}

// GetHourlyChartHandler returns per-hour chart series for ?days.
func GetHourlyChartHandler(agg *stats.Aggregator, logger *zap.Logger) http.HandlerFunc {
	rs := newResponder(logger)
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := agg.ChartData(r.Context(), intParam(r, "days", 7))
		if err != nil {
			rs.internal(w, "Could not build the hourly send chart", err)
			return
		}
		rs.ok(w, "Hourly send chart built", data)
	}
}

// GetKeyMetricsHandler returns the dashboard's headline numbers.
func GetKeyMetricsHandler(agg *stats.Aggregator, logger *zap.Logger) http.HandlerFunc {
	rs := newResponder(logger)
	return func(w http.ResponseWriter, r *http.Request) {
		metrics, err := agg.KeyMetrics(r.Context())
		if err != nil {
			rs.internal(w, "Could not compute key metrics", err)
			return
		}
		rs.ok(w, "Key metrics computed", metrics)
	}
}

// intParam parses a positive integer query parameter, falling back to def.
func intParam(r *http.Request, name string, def int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			return parsed
		}
	}
	return def
}
