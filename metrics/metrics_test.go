package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailrelay/events"
)

func TestSubscribe_CountsEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	d := events.New(nil)
	unsubscribe := m.Subscribe(d)
	now := time.Now()

	require.NoError(t, d.Publish(events.SentEvent{Meta: events.NewMeta(now)}))
	require.NoError(t, d.Publish(events.SentEvent{Meta: events.NewMeta(now)}))
	require.NoError(t, d.Publish(events.FailedEvent{Meta: events.NewMeta(now)}))
	require.NoError(t, d.Publish(events.LogsPrunedEvent{Meta: events.NewMeta(now), Removed: 4, Reason: events.PruneByAge}))
	require.NoError(t, d.Publish(events.SettingsSavedEvent{Meta: events.NewMeta(now), Record: events.RecordGeneral}))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.EmailsLogged.WithLabelValues("sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmailsLogged.WithLabelValues("failed")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.LogsPruned.WithLabelValues(events.PruneByAge)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SettingsSaved.WithLabelValues(events.RecordGeneral)))

	unsubscribe()
	require.NoError(t, d.Publish(events.SentEvent{Meta: events.NewMeta(now)}))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EmailsLogged.WithLabelValues("sent")))
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.EmailsLogged.WithLabelValues("sent").Inc()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `mailrelay_emails_total{status="sent"} 1`))
}
