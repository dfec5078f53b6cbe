package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"mailrelay/emaillog"
	"mailrelay/services"
	"mailrelay/settings"
	"mailrelay/stats"
	"mailrelay/utils"
)

// Deps are the components the admin API serves.
type Deps struct {
	Settings      *settings.Store
	Validator     *settings.Validator
	Log           *emaillog.Logger
	Stats         *stats.Aggregator
	Mailer        *services.MailService
	Metrics       http.Handler
	SendLimiter   *utils.SendLimiter // nil disables send throttling
	RetentionDays int
	StaticDir     string // dashboard assets; not served when empty
	Logger        *zap.Logger
}

// NewRouter wires the admin API routes. Handlers log on d.Logger named "api".
func NewRouter(d Deps) *mux.Router {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	apiLog := logger.Named("api")

	r := mux.NewRouter()
	r.Use(requestLogger(logger))

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/settings/general", GetGeneralSettingsHandler(d.Settings, apiLog)).Methods(http.MethodGet)
	api.HandleFunc("/settings/general", SaveGeneralSettingsHandler(d.Settings, d.Validator, apiLog)).Methods(http.MethodPut)
	api.HandleFunc("/settings/advanced", GetAdvancedSettingsHandler(d.Settings, apiLog)).Methods(http.MethodGet)
	api.HandleFunc("/settings/advanced", SaveAdvancedSettingsHandler(d.Settings, d.Validator, apiLog)).Methods(http.MethodPut)
	api.Handle("/send", throttle(d.SendLimiter, SendMailHandler(d.Mailer, apiLog), apiLog)).Methods(http.MethodPost)
	api.HandleFunc("/logs", GetLogsHandler(d.Log, apiLog)).Methods(http.MethodGet)
	api.HandleFunc("/logs", ClearLogsHandler(d.Log, d.RetentionDays, apiLog)).Methods(http.MethodDelete)
	api.HandleFunc("/stats", GetEmailStatsHandler(d.Log, apiLog)).Methods(http.MethodGet)
	api.HandleFunc("/stats/daily", GetDailyChartHandler(d.Stats, apiLog)).Methods(http.MethodGet)
	api.HandleFunc("/stats/hourly", GetHourlyChartHandler(d.Stats, apiLog)).Methods(http.MethodGet)
	api.HandleFunc("/stats/key", GetKeyMetricsHandler(d.Stats, apiLog)).Methods(http.MethodGet)

	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics).Methods(http.MethodGet)
	}
	if d.StaticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(d.StaticDir)))
	}
	return r
}

func throttle(l *utils.SendLimiter, next http.Handler, logger *zap.Logger) http.Handler {
	if l == nil {
		return next
	}
	rs := newResponder(logger)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if client := utils.ClientIP(r); !l.Allow(client) {
			rs.log.Info("test email throttled", zap.String("client", client))
			rs.fail(w, http.StatusTooManyRequests, "Send rate limit exceeded. Please try again later.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func requestLogger(logger *zap.Logger) mux.MiddlewareFunc {
	logger = logger.Named("http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
