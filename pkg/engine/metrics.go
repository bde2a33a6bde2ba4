package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Warzone2100/warzone2100-sub038/pkg/fault"
	"github.com/Warzone2100/warzone2100-sub038/pkg/vm"
)

const engineMetricsNamespace = "wzscript"

type metrics struct {
	ticks        prometheus.Counter
	instructions prometheus.Counter
	faults       *prometheus.CounterVec
	instances    *prometheus.GaugeVec
}

func newMetrics() *metrics {
	return &metrics{
		ticks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: engineMetricsNamespace,
				Subsystem: "engine",
				Name:      "ticks_total",
				Help:      "Scheduler ticks run",
			},
		),
		instructions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: engineMetricsNamespace,
				Subsystem: "engine",
				Name:      "instructions_total",
				Help:      "Instructions executed over all instances",
			},
		),
		faults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: engineMetricsNamespace,
				Subsystem: "engine",
				Name:      "faults_total",
				Help:      "Instance faults by error kind",
			},
			[]string{"kind"},
		),
		instances: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: engineMetricsNamespace,
				Subsystem: "engine",
				Name:      "instances",
				Help:      "Instances by lifecycle state",
			},
			[]string{"state"},
		),
	}
}

func (m *metrics) register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.ticks, m.instructions, m.faults, m.instances} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *metrics) observe(r TickReport, counts map[vm.State]int) {
	m.ticks.Inc()
	m.instructions.Add(float64(r.Steps))
	for _, f := range r.Faults {
		kind := f.Kind
		if kind == "" {
			kind = fault.HostFailure
		}
		m.faults.WithLabelValues(string(kind)).Inc()
	}
	for _, s := range vm.States() {
		m.instances.WithLabelValues(s.String()).Set(float64(counts[s]))
	}
}
