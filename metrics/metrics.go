package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mailrelay/events"
)

// Metrics holds the relay's Prometheus collectors.
type Metrics struct {
	EmailsLogged  *prometheus.CounterVec
	LogsPruned    *prometheus.CounterVec
	SettingsSaved *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EmailsLogged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailrelay_emails_total",
			Help: "Total number of logged send attempts by outcome",
		}, []string{"status"}),
		LogsPruned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailrelay_log_entries_pruned_total",
			Help: "Total number of email log entries removed, by age or by the retention ceiling",
		}, []string{"reason"}),
		SettingsSaved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailrelay_settings_saved_total",
			Help: "Total number of settings saves by record",
		}, []string{"record"}),
	}
	reg.MustRegister(m.EmailsLogged, m.LogsPruned, m.SettingsSaved)
	return m
}

// Subscribe feeds the counters from d and returns a func that detaches them.
func (m *Metrics) Subscribe(d *events.Dispatcher) (unsubscribe func()) {
	unsubs := []func(){
		d.OnSent(func(events.SentEvent) {
			m.EmailsLogged.WithLabelValues("sent").Inc()
		}),
		d.OnFailed(func(events.FailedEvent) {
			m.EmailsLogged.WithLabelValues("failed").Inc()
		}),
		d.OnLogsPruned(func(e events.LogsPrunedEvent) {
			m.LogsPruned.WithLabelValues(e.Reason).Add(float64(e.Removed))
		}),
		d.OnSettingsSaved(func(e events.SettingsSavedEvent) {
			m.SettingsSaved.WithLabelValues(e.Record).Inc()
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Handler exposes the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
