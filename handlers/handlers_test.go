package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
	mail "gopkg.in/gomail.v2"

	"mailrelay/database"
	"mailrelay/emaillog"
	"mailrelay/events"
	"mailrelay/metrics"
	"mailrelay/services"
	"mailrelay/settings"
	"mailrelay/stats"
	"mailrelay/utils"
)

type stubSender struct {
	err  error
	sent int
}

func (s *stubSender) DialAndSend(m ...*mail.Message) error {
	if s.err != nil {
		return s.err
	}
	s.sent += len(m)
	return nil
}

type testServer struct {
	router http.Handler
	sender *stubSender
	log    *emaillog.Logger
	store  *settings.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWithLogger(t, zaptest.NewLogger(t))
}

// newTestServerWithLogger builds the router with apiLogger as Deps.Logger; the
// components behind the handlers keep logging to the test output.
func newTestServerWithLogger(t *testing.T, apiLogger *zap.Logger) *testServer {
	t.Helper()
	logger := zaptest.NewLogger(t)
	db := database.NewMemoryStore()
	d := events.New(logger)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	t.Cleanup(m.Subscribe(d))

	ts := &testServer{sender: &stubSender{}}
	ts.store = settings.NewStore(db, "smtp.relay.test", logger, settings.WithDispatcher(d))
	ts.log = emaillog.New(db, logger,
		emaillog.WithDispatcher(d),
		emaillog.WithClock(func() time.Time { return time.Date(2026, 5, 20, 14, 30, 0, 0, time.UTC) }),
	)
	mailer := services.NewMailService(ts.store, ts.log, func(settings.SmtpSettings) services.Sender { return ts.sender }, logger)

	ts.router = NewRouter(Deps{
		Settings:      ts.store,
		Validator:     settings.NewValidator(nil),
		Log:           ts.log,
		Stats:         stats.New(ts.log),
		Mailer:        mailer,
		Metrics:       metrics.Handler(reg),
		SendLimiter:   utils.NewSendLimiter(3),
		RetentionDays: 30,
		Logger:        apiLogger,
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, target, body string) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	var resp APIResponse
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func TestGeneralSettings_SaveAndRead(t *testing.T) {
	ts := newTestServer(t)

	rec, resp := ts.do(t, http.MethodPut, "/api/settings/general",
		`{"username":"relay","password":"secret","encryption":"ssl","from_email":"noreply@example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "success", resp.Status)

	rec, resp = ts.do(t, http.MethodGet, "/api/settings/general", "")
	require.Equal(t, http.StatusOK, rec.Code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "relay", data["username"])
	assert.Equal(t, "ssl", data["encryption"])
	assert.EqualValues(t, 465, data["port"])
	assert.Equal(t, "smtp.relay.test", data["host"])
	assert.Equal(t, "", data["password"])
	assert.Equal(t, true, data["password_set"])
}

func TestGeneralSettings_BlankPasswordKeepsStored(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPut, "/api/settings/general",
		`{"username":"relay","password":"secret","encryption":"tls","from_email":"noreply@example.com"}`)

	rec, _ := ts.do(t, http.MethodPut, "/api/settings/general",
		`{"username":"relay2","password":"","encryption":"tls","from_email":"noreply@example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	current, err := ts.store.General(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	require.NoError(t, err)
	assert.Equal(t, "relay2", current.Username)
	assert.Equal(t, "secret", current.Password)
}

func TestGeneralSettings_BlankEncryptionMeansTLS(t *testing.T) {
	ts := newTestServer(t)

	rec, resp := ts.do(t, http.MethodPut, "/api/settings/general",
		`{"username":"relay","password":"secret","from_email":"noreply@example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "tls", data["encryption"])
	assert.EqualValues(t, 587, data["port"])

	rec, _ = ts.do(t, http.MethodPut, "/api/settings/general",
		`{"username":"relay","password":"secret","encryption":" SSL "}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	_, resp = ts.do(t, http.MethodGet, "/api/settings/general", "")
	assert.Equal(t, "ssl", resp.Data.(map[string]interface{})["encryption"])
}

func TestGeneralSettings_Invalid(t *testing.T) {
	ts := newTestServer(t)

	rec, resp := ts.do(t, http.MethodPut, "/api/settings/general",
		`{"username":"","password":"","encryption":"starttls","from_email":"nope"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "error", resp.Status)
	assert.Len(t, resp.Data, 4)

	rec, _ = ts.do(t, http.MethodPut, "/api/settings/general", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdvancedSettings(t *testing.T) {
	ts := newTestServer(t)

	rec, resp := ts.do(t, http.MethodPut, "/api/settings/advanced", `{"cc_email":"not-an-email"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, []interface{}{"CC email address is invalid."}, resp.Data)

	rec, _ = ts.do(t, http.MethodPut, "/api/settings/advanced", `{"bcc_email":"archive@example.com","force_bcc":true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	_, resp = ts.do(t, http.MethodGet, "/api/settings/advanced", "")
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "archive@example.com", data["bcc_email"])
	assert.Equal(t, true, data["force_bcc"])
}

func TestSendMail(t *testing.T) {
	ts := newTestServer(t)

	rec, _ := ts.do(t, http.MethodPost, "/api/send", `{"to":"a@example.com","subject":"Hi","body":"<p>test</p>"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, ts.sender.sent)

	ts.sender.err = errors.New("454 TLS not available")
	rec, resp := ts.do(t, http.MethodPost, "/api/send", `{"to":"a@example.com","subject":"Hi","body":"x"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, resp.Message, "454 TLS not available")

	rec, _ = ts.do(t, http.MethodPost, "/api/send", `{"to":"a@example.com"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	_, resp = ts.do(t, http.MethodGet, "/api/stats?period=today", "")
	data := resp.Data.(map[string]interface{})
	assert.EqualValues(t, 1, data["sent"])
	assert.EqualValues(t, 1, data["failed"])
	assert.EqualValues(t, 50, data["success_rate"])
}

func TestSendMail_Throttled(t *testing.T) {
	ts := newTestServer(t)
	body := `{"to":"a@example.com","subject":"Hi","body":"x"}`
	for i := 0; i < 3; i++ {
		rec, _ := ts.do(t, http.MethodPost, "/api/send", body)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec, resp := ts.do(t, http.MethodPost, "/api/send", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, 3, ts.sender.sent)
}

func TestLogs(t *testing.T) {
	ts := newTestServer(t)
	ctx := httptest.NewRequest(http.MethodGet, "/", nil).Context()
	require.NoError(t, ts.log.LogSent(ctx, "a@example.com", "one"))
	require.NoError(t, ts.log.LogFailed(ctx, "b@example.com", "two", "550"))

	rec, resp := ts.do(t, http.MethodGet, "/api/logs?status=failed", "")
	require.Equal(t, http.StatusOK, rec.Code)
	logs := resp.Data.([]interface{})
	require.Len(t, logs, 1)
	assert.Equal(t, "two", logs[0].(map[string]interface{})["subject"])

	rec, _ = ts.do(t, http.MethodGet, "/api/logs?status=bounced", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp = ts.do(t, http.MethodDelete, "/api/logs?days=0", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, resp.Data.(map[string]interface{})["removed"])
}

func TestStats_InvalidPeriod(t *testing.T) {
	ts := newTestServer(t)
	rec, _ := ts.do(t, http.MethodGet, "/api/stats?period=year", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCharts(t *testing.T) {
	ts := newTestServer(t)
	ctx := httptest.NewRequest(http.MethodGet, "/", nil).Context()
	require.NoError(t, ts.log.LogSent(ctx, "a@example.com", "one"))

	rec, resp := ts.do(t, http.MethodGet, "/api/stats/daily?days=3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	daily := resp.Data.(map[string]interface{})
	assert.Equal(t, []interface{}{"May 18", "May 19", "May 20"}, daily["labels"])
	assert.Equal(t, []interface{}{0.0, 0.0, 1.0}, daily["total"])

	_, resp = ts.do(t, http.MethodGet, "/api/stats/hourly", "")
	hourly := resp.Data.(map[string]interface{})
	assert.Equal(t, []interface{}{"May 20, 14:00"}, hourly["labels"])

	rec, resp = ts.do(t, http.MethodGet, "/api/stats/key", "")
	require.Equal(t, http.StatusOK, rec.Code)
	today := resp.Data.(map[string]interface{})["today"].(map[string]interface{})
	assert.EqualValues(t, 1, today["sent"])
}

func TestDailyChart_WindowCapped(t *testing.T) {
	ts := newTestServer(t)

	for _, days := range []string{"367", "2000000000"} {
		rec, resp := ts.do(t, http.MethodGet, "/api/stats/daily?days="+days, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, resp.Data.(map[string]interface{})["labels"], emaillog.MaxWindowDays)
	}

	rec, _ := ts.do(t, http.MethodGet, "/api/stats/hourly?days=2000000000", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = ts.do(t, http.MethodDelete, "/api/logs?days=2000000000", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlers_LogOnInjectedLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ts := newTestServerWithLogger(t, zap.New(core))
	ts.sender.err = errors.New("421 service not available")

	rec, _ := ts.do(t, http.MethodPost, "/api/send", `{"to":"a@example.com","subject":"Hi","body":"x"}`)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	failures := logs.FilterMessage("test email not relayed").All()
	require.Len(t, failures, 1)
	assert.Equal(t, "api", failures[0].LoggerName)

	requests := logs.FilterMessage("request").All()
	require.Len(t, requests, 1)
	assert.Equal(t, "http", requests[0].LoggerName)
	assert.EqualValues(t, http.StatusBadGateway, requests[0].ContextMap()["status"])
}

func TestResponder_Internal(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	rs := newResponder(zap.New(core))
	rec := httptest.NewRecorder()

	rs.internal(rec, "Could not read the email log", errors.New("disk I/O error"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"message":"Could not read the email log","status":"error"}`, rec.Body.String())
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "disk I/O error", logs.All()[0].ContextMap()["error"])

	rec = httptest.NewRecorder()
	newResponder(nil).ok(rec, "done", nil)
	assert.JSONEq(t, `{"message":"done","status":"success"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ctx := httptest.NewRequest(http.MethodGet, "/", nil).Context()
	require.NoError(t, ts.log.LogSent(ctx, "a@example.com", "one"))

	rec, _ := ts.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `mailrelay_emails_total{status="sent"} 1`)
}

func TestIntParam(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?days=14&limit=-3&bad=x", nil)
	assert.Equal(t, 14, intParam(req, "days", 7))
	assert.Equal(t, 50, intParam(req, "limit", 50))
	assert.Equal(t, 7, intParam(req, "bad", 7))
	assert.Equal(t, 7, intParam(req, "missing", 7))
}
