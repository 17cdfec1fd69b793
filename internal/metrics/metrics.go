package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/schovi/nodemux/internal/session"
)

const namespace = "nodemux"

// Metrics holds the Prometheus metrics of a run. It observes sessions as a
// session.Listener and counts interrupts for the console.
type Metrics struct {
	registry *prometheus.Registry

	CommandsTotal    *prometheus.CounterVec
	FinishedTotal    *prometheus.CounterVec
	InterruptsTotal  *prometheus.CounterVec
	OutputBytesTotal *prometheus.CounterVec
	Sessions         *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_total",
				Help:      "Commands dispatched to a node.",
			},
			[]string{"node"},
		),
		FinishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_finished_total",
				Help:      "Commands that left the waiting state, completed or interrupted.",
			},
			[]string{"node"},
		),
		InterruptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "interrupts_total",
				Help:      "Interrupts sent to a node.",
			},
			[]string{"node"},
		),
		OutputBytesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "output_bytes_total",
				Help:      "Filtered output bytes appended to a node's buffer.",
			},
			[]string{"node"},
		),
		Sessions: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sessions",
				Help:      "Sessions by state.",
			},
			[]string{"state"},
		),
	}

	m.registry.MustRegister(
		m.CommandsTotal,
		m.FinishedTotal,
		m.InterruptsTotal,
		m.OutputBytesTotal,
		m.Sessions,
	)
	return m
}

// Track subscribes to sessions and counts them by their current state.
func (m *Metrics) Track(sessions []*session.Session) {
	for _, s := range sessions {
		m.Sessions.WithLabelValues(string(s.State())).Inc()
		s.AddListener(m)
	}
}

func (m *Metrics) OnOutput(s *session.Session, chunk []byte) {
	m.OutputBytesTotal.WithLabelValues(s.ID()).Add(float64(len(chunk)))
}

func (m *Metrics) OnStateChange(s *session.Session, from, to session.State) {
	m.Sessions.WithLabelValues(string(from)).Dec()
	m.Sessions.WithLabelValues(string(to)).Inc()

	switch {
	case from == session.StateIdle && to == session.StateWaiting:
		m.CommandsTotal.WithLabelValues(s.ID()).Inc()
	case from == session.StateWaiting && to == session.StateIdle:
		m.FinishedTotal.WithLabelValues(s.ID()).Inc()
	}
}

func (m *Metrics) ObserveInterrupt(node string) {
	m.InterruptsTotal.WithLabelValues(node).Inc()
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, log zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
